package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/univ-lifecycle-api/internal/models"
)

// IsActionAllowed decides whether an entity may perform an action.
//
// Holds are deny-only and always win: a single active hold with a blocking row
// for the action denies it. Absent a block, an action with any milestone row
// is gated and allowed only when one of its enabled milestones is at or below
// the threshold the entity has reached. Only an action with no milestone rows
// at all is ungated. Finance never grants access directly, it only lifts gates.
func IsActionAllowed(entity *models.LifecycleEntity, actionCode string, catalog *Catalog) bool {
	if entity == nil || catalog == nil {
		return false
	}
	for _, hold := range entity.ActiveHoldCodes {
		for _, block := range catalog.HoldBlocks(hold) {
			if block.ActionCode == actionCode && block.IsBlocked {
				return false
			}
		}
	}

	if !catalog.IsGated(actionCode) {
		return true
	}
	reached := catalog.milestoneThreshold(entity.FinancialMilestoneCode)
	if reached < 0 {
		return false
	}
	for _, code := range catalog.EnablingMilestones(actionCode) {
		m, ok := catalog.Milestone(code)
		if ok && m.PercentageThreshold <= reached {
			return true
		}
	}
	return false
}

// ActionDecision pairs a catalog action with the guard outcome for an entity.
type ActionDecision struct {
	Action  models.Action `json:"action"`
	Allowed bool          `json:"allowed"`
}

type catalogSource interface {
	Current(ctx context.Context) (*Catalog, error)
}

type entityReader interface {
	GetEntity(ctx context.Context, ref models.EntityRef) (*models.LifecycleEntity, error)
}

// GuardService evaluates action guards against stored entity state.
type GuardService struct {
	catalog  catalogSource
	entities entityReader
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewGuardService constructs a guard service.
func NewGuardService(catalog catalogSource, entities entityReader, metrics *MetricsService, logger *zap.Logger) *GuardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GuardService{catalog: catalog, entities: entities, metrics: metrics, logger: logger}
}

// IsActionAllowed loads the entity and catalog and evaluates the guard. It
// fails closed: when either cannot be loaded the answer is false alongside
// the error.
func (s *GuardService) IsActionAllowed(ctx context.Context, ref models.EntityRef, actionCode string) (bool, error) {
	catalog, err := s.catalog.Current(ctx)
	if err != nil {
		s.metrics.ObserveGuardDecision(actionCode, false)
		return false, err
	}
	entity, err := loadEntity(ctx, s.entities, ref)
	if err != nil {
		s.metrics.ObserveGuardDecision(actionCode, false)
		return false, err
	}
	allowed := IsActionAllowed(entity, actionCode, catalog)
	s.metrics.ObserveGuardDecision(actionCode, allowed)
	s.logger.Debug("guard evaluated",
		zap.String("entity_type", ref.Type),
		zap.String("entity_id", ref.ID),
		zap.String("action", actionCode),
		zap.Bool("allowed", allowed),
	)
	return allowed, nil
}

// AllowedActions evaluates every catalog action for the entity.
func (s *GuardService) AllowedActions(ctx context.Context, ref models.EntityRef) ([]ActionDecision, error) {
	catalog, err := s.catalog.Current(ctx)
	if err != nil {
		return nil, err
	}
	entity, err := loadEntity(ctx, s.entities, ref)
	if err != nil {
		return nil, err
	}
	actions := catalog.Actions()
	decisions := make([]ActionDecision, 0, len(actions))
	for _, action := range actions {
		decisions = append(decisions, ActionDecision{
			Action:  action,
			Allowed: IsActionAllowed(entity, action.Code, catalog),
		})
	}
	return decisions, nil
}
