package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/univ-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/univ-lifecycle-api/pkg/errors"
)

// MilestoneOutcome reports what crossing a milestone did to an entity.
type MilestoneOutcome struct {
	Entity             *models.LifecycleEntity `json:"entity"`
	MilestoneCode      string                  `json:"milestoneCode"`
	Duplicate          bool                    `json:"duplicate"`
	AppliedRecords     []models.AuditRecord    `json:"appliedRecords,omitempty"`
	PendingTransitions []models.PendingAction  `json:"pendingTransitions,omitempty"`
}

// MilestoneReactor turns financial milestone events into lifecycle effects.
// It is the only component that moves an entity without a human actor.
type MilestoneReactor struct {
	transitions *TransitionService
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewMilestoneReactor constructs the reactor on top of the transition engine
// so both share the same per-entity serialisation.
func NewMilestoneReactor(transitions *TransitionService, metrics *MetricsService, logger *zap.Logger) *MilestoneReactor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MilestoneReactor{transitions: transitions, metrics: metrics, logger: logger}
}

// OnMilestoneCrossed records that the entity reached milestoneCode. Delivery
// of a milestone at or below the one already reached is a no-op. Automatic
// status impacts are applied through the workflow graph with no actor; manual
// impacts become pending actions for operators. The milestone update, every
// automatic transition and their audit records persist together or not at all.
func (r *MilestoneReactor) OnMilestoneCrossed(ctx context.Context, ref models.EntityRef, milestoneCode string) (*MilestoneOutcome, error) {
	milestoneCode = strings.TrimSpace(milestoneCode)
	var outcome *MilestoneOutcome
	err := r.transitions.mutate(ctx, ref, func(entity *models.LifecycleEntity, catalog *Catalog) (*models.LifecycleChange, error) {
		var change *models.LifecycleChange
		var err error
		outcome, change, err = planMilestone(entity, catalog, milestoneCode, r.transitions.now())
		return change, err
	})
	if err != nil {
		r.metrics.ObserveMilestoneEvent(milestoneCode, outcomeLabel(err))
		if appErrors.CodeOf(err) == appErrors.ErrReactor.Code {
			r.logger.Error("automatic milestone rule failed",
				zap.String("entity_type", ref.Type),
				zap.String("entity_id", ref.ID),
				zap.String("milestone", milestoneCode),
				zap.Error(err),
			)
		}
		return nil, err
	}

	if outcome.Duplicate {
		r.metrics.ObserveMilestoneEvent(milestoneCode, "duplicate")
		r.logger.Info("milestone already reached, ignoring",
			zap.String("entity_type", ref.Type),
			zap.String("entity_id", ref.ID),
			zap.String("milestone", milestoneCode),
		)
		return outcome, nil
	}
	r.metrics.ObserveMilestoneEvent(milestoneCode, "applied")
	for _, rec := range outcome.AppliedRecords {
		r.metrics.ObserveTransition(derefString(rec.TriggerCode), "applied")
	}
	r.logger.Info("milestone crossed",
		zap.String("entity_type", ref.Type),
		zap.String("entity_id", ref.ID),
		zap.String("milestone", milestoneCode),
		zap.String("status", outcome.Entity.CurrentStatusCode),
		zap.Int("automatic_transitions", len(outcome.AppliedRecords)),
		zap.Int("pending_transitions", len(outcome.PendingTransitions)),
	)
	return outcome, nil
}

// planMilestone computes the effects of a milestone crossing without touching
// storage. A nil change means there is nothing to persist.
func planMilestone(entity *models.LifecycleEntity, catalog *Catalog, milestoneCode string, now time.Time) (*MilestoneOutcome, *models.LifecycleChange, error) {
	milestone, ok := catalog.Milestone(milestoneCode)
	if !ok {
		return nil, nil, appErrors.Clone(appErrors.ErrUnknownMilestone, fmt.Sprintf("unknown financial milestone %s", milestoneCode))
	}
	if catalog.milestoneThreshold(entity.FinancialMilestoneCode) >= milestone.PercentageThreshold {
		return &MilestoneOutcome{Entity: entity, MilestoneCode: milestoneCode, Duplicate: true}, nil, nil
	}

	next := entity.Clone()
	code := milestone.Code
	next.FinancialMilestoneCode = &code
	outcome := &MilestoneOutcome{MilestoneCode: milestoneCode}

	// the catalog only indexes active impacts
	for _, impact := range catalog.Impacts(milestoneCode) {
		if !impact.IsAutomatic {
			outcome.PendingTransitions = append(outcome.PendingTransitions, models.PendingAction{
				ID:               uuid.NewString(),
				EntityType:       entity.EntityType,
				EntityID:         entity.EntityID,
				MilestoneCode:    milestoneCode,
				TargetStatusCode: impact.TargetStatusCode,
				CreatedAt:        now,
			})
			continue
		}
		if next.CurrentStatusCode == impact.TargetStatusCode {
			continue
		}
		edge, ok := findTriggerTo(catalog, next.CurrentStatusCode, impact.TargetStatusCode)
		if !ok {
			inner := appErrors.Clone(appErrors.ErrNoSuchTransition,
				fmt.Sprintf("no transition from %s to %s", next.CurrentStatusCode, impact.TargetStatusCode))
			return nil, nil, appErrors.WrapAs(appErrors.ErrReactor, inner,
				fmt.Sprintf("automatic impact of milestone %s cannot reach %s", milestoneCode, impact.TargetStatusCode))
		}
		moved, record, err := applyTransition(next, catalog, transitionInput{
			TriggerCode: edge.TriggerCode,
			Notes:       fmt.Sprintf("milestone %s reached (%g%% paid)", milestoneCode, milestone.PercentageThreshold),
		}, now)
		if err != nil {
			return nil, nil, appErrors.WrapAs(appErrors.ErrReactor, err,
				fmt.Sprintf("automatic impact of milestone %s failed", milestoneCode))
		}
		next = moved
		outcome.AppliedRecords = append(outcome.AppliedRecords, record)
	}

	outcome.Entity = next
	return outcome, &models.LifecycleChange{
		Entity:          next,
		ExpectedVersion: entity.Version,
		Records:         outcome.AppliedRecords,
		PendingActions:  outcome.PendingTransitions,
	}, nil
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
