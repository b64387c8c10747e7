package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/univ-lifecycle-api/internal/models"
	"github.com/noah-isme/univ-lifecycle-api/internal/service"
	appErrors "github.com/noah-isme/univ-lifecycle-api/pkg/errors"
	"github.com/noah-isme/univ-lifecycle-api/pkg/response"
)

type guardService interface {
	IsActionAllowed(ctx context.Context, ref models.EntityRef, actionCode string) (bool, error)
	AllowedActions(ctx context.Context, ref models.EntityRef) ([]service.ActionDecision, error)
}

type transitionService interface {
	Apply(ctx context.Context, req service.TransitionRequest) (*service.TransitionResult, error)
	AvailableTransitions(ctx context.Context, ref models.EntityRef) ([]models.WorkflowTransition, error)
}

type milestoneReactor interface {
	OnMilestoneCrossed(ctx context.Context, ref models.EntityRef, milestoneCode string) (*service.MilestoneOutcome, error)
}

type milestoneDispatcher interface {
	Dispatch(event service.MilestoneEvent) (string, error)
}

type historyService interface {
	List(ctx context.Context, ref models.EntityRef, filter models.HistoryFilter) ([]models.AuditRecord, *models.Pagination, error)
	PendingActions(ctx context.Context, ref models.EntityRef) ([]models.PendingAction, error)
	Export(ctx context.Context, ref models.EntityRef, format string) ([]byte, string, error)
}

type holdService interface {
	PlaceHold(ctx context.Context, ref models.EntityRef, holdCode, actorID string) (*models.LifecycleEntity, error)
	LiftHold(ctx context.Context, ref models.EntityRef, holdCode, actorID string) (*models.LifecycleEntity, error)
}

// milestoneRequest is the body of a milestone notification.
type milestoneRequest struct {
	MilestoneCode string `json:"milestoneCode" binding:"required"`
}

// LifecycleHandler exposes the guard, transition, milestone and history
// endpoints of a single entity.
type LifecycleHandler struct {
	guard       guardService
	transitions transitionService
	reactor     milestoneReactor
	dispatcher  milestoneDispatcher
	history     historyService
	holds       holdService
}

// NewLifecycleHandler constructs the handler. dispatcher may be nil, in which
// case asynchronous milestone delivery is rejected.
func NewLifecycleHandler(guard guardService, transitions transitionService, reactor milestoneReactor, dispatcher milestoneDispatcher, history historyService, holds holdService) *LifecycleHandler {
	return &LifecycleHandler{
		guard:       guard,
		transitions: transitions,
		reactor:     reactor,
		dispatcher:  dispatcher,
		history:     history,
		holds:       holds,
	}
}

// CheckAction godoc
// @Summary Check whether an action is allowed for an entity
// @Tags Lifecycle
// @Produce json
// @Param entityType path string true "student or application"
// @Param entityId path string true "Entity ID"
// @Param action path string true "Action code"
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /lifecycle/{entityType}/{entityId}/actions/{action} [get]
func (h *LifecycleHandler) CheckAction(c *gin.Context) {
	ref, err := entityRefFromPath(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	action := strings.TrimSpace(c.Param("action"))
	allowed, err := h.guard.IsActionAllowed(c.Request.Context(), ref, action)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"action": action, "allowed": allowed}, nil)
}

// ListActions godoc
// @Summary List every catalog action with its guard decision
// @Tags Lifecycle
// @Produce json
// @Param entityType path string true "student or application"
// @Param entityId path string true "Entity ID"
// @Success 200 {object} response.Envelope
// @Router /lifecycle/{entityType}/{entityId}/actions [get]
func (h *LifecycleHandler) ListActions(c *gin.Context) {
	ref, err := entityRefFromPath(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	decisions, err := h.guard.AllowedActions(c.Request.Context(), ref)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decisions, nil)
}

// ApplyTransition godoc
// @Summary Move an entity along a workflow transition
// @Tags Lifecycle
// @Accept json
// @Produce json
// @Param entityType path string true "student or application"
// @Param entityId path string true "Entity ID"
// @Param payload body service.TransitionRequest true "Transition payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /lifecycle/{entityType}/{entityId}/transitions [post]
func (h *LifecycleHandler) ApplyTransition(c *gin.Context) {
	ref, err := entityRefFromPath(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid transition payload"))
		return
	}
	req.Entity = ref
	req.ActorID = claims.UserID
	result, err := h.transitions.Apply(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ListTransitions godoc
// @Summary List transitions leaving the entity's current status
// @Tags Lifecycle
// @Produce json
// @Param entityType path string true "student or application"
// @Param entityId path string true "Entity ID"
// @Success 200 {object} response.Envelope
// @Router /lifecycle/{entityType}/{entityId}/transitions [get]
func (h *LifecycleHandler) ListTransitions(c *gin.Context) {
	ref, err := entityRefFromPath(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	transitions, err := h.transitions.AvailableTransitions(c.Request.Context(), ref)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transitions, nil)
}

// CrossMilestone godoc
// @Summary Report that an entity reached a financial milestone
// @Description With async=true the event is queued and 202 is returned.
// @Tags Lifecycle
// @Accept json
// @Produce json
// @Param entityType path string true "student or application"
// @Param entityId path string true "Entity ID"
// @Param async query bool false "Queue the event instead of applying it inline"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /lifecycle/{entityType}/{entityId}/milestones [post]
func (h *LifecycleHandler) CrossMilestone(c *gin.Context) {
	ref, err := entityRefFromPath(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req milestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid milestone payload"))
		return
	}

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		if h.dispatcher == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "asynchronous milestone delivery is disabled"))
			return
		}
		jobID, err := h.dispatcher.Dispatch(service.MilestoneEvent{Entity: ref, MilestoneCode: req.MilestoneCode})
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Accepted(c, jobID)
		return
	}

	outcome, err := h.reactor.OnMilestoneCrossed(c.Request.Context(), ref, req.MilestoneCode)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcome, nil)
}

// History godoc
// @Summary List the status history of an entity
// @Tags Lifecycle
// @Produce json
// @Param entityType path string true "student or application"
// @Param entityId path string true "Entity ID"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /lifecycle/{entityType}/{entityId}/history [get]
func (h *LifecycleHandler) History(c *gin.Context) {
	ref, err := entityRefFromPath(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.HistoryFilter{Page: queryInt(c, "page", 1), PageSize: queryInt(c, "pageSize", 20)}
	records, pagination, err := h.history.List(c.Request.Context(), ref, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// ExportHistory godoc
// @Summary Download the status history of an entity
// @Tags Lifecycle
// @Produce text/csv
// @Produce application/pdf
// @Param entityType path string true "student or application"
// @Param entityId path string true "Entity ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /lifecycle/{entityType}/{entityId}/history/export [get]
func (h *LifecycleHandler) ExportHistory(c *gin.Context) {
	ref, err := entityRefFromPath(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", service.HistoryFormatCSV)))
	body, contentType, err := h.history.Export(c.Request.Context(), ref, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, fmt.Sprintf("%s-%s-history.%s", ref.Type, ref.ID, format), contentType, body)
}

// PendingActions godoc
// @Summary List manual transitions surfaced by milestones
// @Tags Lifecycle
// @Produce json
// @Param entityType path string true "student or application"
// @Param entityId path string true "Entity ID"
// @Success 200 {object} response.Envelope
// @Router /lifecycle/{entityType}/{entityId}/pending-actions [get]
func (h *LifecycleHandler) PendingActions(c *gin.Context) {
	ref, err := entityRefFromPath(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	actions, err := h.history.PendingActions(c.Request.Context(), ref)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, actions, nil)
}

// PlaceHold godoc
// @Summary Place a financial hold on an entity
// @Tags Lifecycle
// @Produce json
// @Param entityType path string true "student or application"
// @Param entityId path string true "Entity ID"
// @Param holdCode path string true "Hold reason code"
// @Success 200 {object} response.Envelope
// @Router /lifecycle/{entityType}/{entityId}/holds/{holdCode} [put]
func (h *LifecycleHandler) PlaceHold(c *gin.Context) {
	h.changeHold(c, h.holds.PlaceHold)
}

// LiftHold godoc
// @Summary Lift a financial hold from an entity
// @Tags Lifecycle
// @Produce json
// @Param entityType path string true "student or application"
// @Param entityId path string true "Entity ID"
// @Param holdCode path string true "Hold reason code"
// @Success 200 {object} response.Envelope
// @Router /lifecycle/{entityType}/{entityId}/holds/{holdCode} [delete]
func (h *LifecycleHandler) LiftHold(c *gin.Context) {
	h.changeHold(c, h.holds.LiftHold)
}

func (h *LifecycleHandler) changeHold(c *gin.Context, change func(context.Context, models.EntityRef, string, string) (*models.LifecycleEntity, error)) {
	ref, err := entityRefFromPath(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	entity, err := change(c.Request.Context(), ref, c.Param("holdCode"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entity, nil)
}
