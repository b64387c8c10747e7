package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/univ-lifecycle-api/internal/service"
	appErrors "github.com/noah-isme/univ-lifecycle-api/pkg/errors"
	"github.com/noah-isme/univ-lifecycle-api/pkg/response"
)

type admissionService interface {
	Intake(ctx context.Context, req service.IntakeRequest) (*service.IntakeResult, error)
	SubmitDraft(ctx context.Context, req service.SubmitDraftRequest) (*service.IntakeResult, error)
}

// AdmissionHandler exposes application intake.
type AdmissionHandler struct {
	service admissionService
}

// NewAdmissionHandler constructs the handler.
func NewAdmissionHandler(service admissionService) *AdmissionHandler {
	return &AdmissionHandler{service: service}
}

// Intake godoc
// @Summary Evaluate a new application and record its initial status
// @Tags Admissions
// @Accept json
// @Produce json
// @Param payload body service.IntakeRequest true "Intake payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admissions/intake [post]
func (h *AdmissionHandler) Intake(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.IntakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid intake payload"))
		return
	}
	req.ActorID = claims.UserID
	result, err := h.service.Intake(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Submit godoc
// @Summary Submit a draft application
// @Tags Admissions
// @Accept json
// @Produce json
// @Param entityId path string true "Application ID"
// @Param payload body service.SubmitDraftRequest true "Submission payload"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /admissions/{entityId}/submit [post]
func (h *AdmissionHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.SubmitDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid submission payload"))
		return
	}
	req.ApplicationID = c.Param("entityId")
	req.ActorID = claims.UserID
	result, err := h.service.SubmitDraft(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
