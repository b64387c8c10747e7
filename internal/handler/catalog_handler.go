package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/univ-lifecycle-api/internal/models"
	"github.com/noah-isme/univ-lifecycle-api/internal/service"
	appErrors "github.com/noah-isme/univ-lifecycle-api/pkg/errors"
	"github.com/noah-isme/univ-lifecycle-api/pkg/response"
)

type catalogAdmin interface {
	Reload(ctx context.Context) (*service.Catalog, error)
	SetMilestoneAction(ctx context.Context, row models.MilestoneAction) (*service.Catalog, error)
	SetHoldBlockedAction(ctx context.Context, row models.HoldBlockedAction) (*service.Catalog, error)
	SetMilestoneStatusImpact(ctx context.Context, row models.MilestoneStatusImpact) (*service.Catalog, error)
}

// CatalogHandler exposes rule catalog administration.
type CatalogHandler struct {
	catalog catalogAdmin
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(catalog catalogAdmin) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// Reload godoc
// @Summary Reload the rule catalog from the database
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /catalog/reload [post]
func (h *CatalogHandler) Reload(c *gin.Context) {
	catalog, err := h.catalog.Reload(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"actions": len(catalog.Actions())}, nil)
}

// PutMilestoneAction godoc
// @Summary Create or update a milestone enablement rule
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body models.MilestoneAction true "Rule"
// @Success 200 {object} response.Envelope
// @Router /catalog/rules/milestone-actions [put]
func (h *CatalogHandler) PutMilestoneAction(c *gin.Context) {
	var row models.MilestoneAction
	if err := c.ShouldBindJSON(&row); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid milestone action rule"))
		return
	}
	if _, err := h.catalog.SetMilestoneAction(c.Request.Context(), row); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row, nil)
}

// PutHoldBlock godoc
// @Summary Create or update a hold blocking rule
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body models.HoldBlockedAction true "Rule"
// @Success 200 {object} response.Envelope
// @Router /catalog/rules/hold-blocks [put]
func (h *CatalogHandler) PutHoldBlock(c *gin.Context) {
	var row models.HoldBlockedAction
	if err := c.ShouldBindJSON(&row); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid hold block rule"))
		return
	}
	if _, err := h.catalog.SetHoldBlockedAction(c.Request.Context(), row); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row, nil)
}

// PutMilestoneImpact godoc
// @Summary Create or update a milestone status impact rule
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body models.MilestoneStatusImpact true "Rule"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /catalog/rules/milestone-impacts [put]
func (h *CatalogHandler) PutMilestoneImpact(c *gin.Context) {
	var row models.MilestoneStatusImpact
	if err := c.ShouldBindJSON(&row); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid milestone impact rule"))
		return
	}
	if _, err := h.catalog.SetMilestoneStatusImpact(c.Request.Context(), row); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row, nil)
}
