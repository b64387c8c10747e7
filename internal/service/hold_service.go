package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/univ-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/univ-lifecycle-api/pkg/errors"
)

// HoldService places and lifts financial holds. Holds never change status;
// they only feed the guard.
type HoldService struct {
	transitions *TransitionService
	logger      *zap.Logger
}

// NewHoldService constructs the service on top of the transition engine's
// serialised write path.
func NewHoldService(transitions *TransitionService, logger *zap.Logger) *HoldService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HoldService{transitions: transitions, logger: logger}
}

// PlaceHold activates holdCode on the entity. Placing an active hold again is
// a no-op.
func (s *HoldService) PlaceHold(ctx context.Context, ref models.EntityRef, holdCode, actorID string) (*models.LifecycleEntity, error) {
	return s.update(ctx, ref, holdCode, actorID, true)
}

// LiftHold removes holdCode from the entity. Lifting an inactive hold is a
// no-op.
func (s *HoldService) LiftHold(ctx context.Context, ref models.EntityRef, holdCode, actorID string) (*models.LifecycleEntity, error) {
	return s.update(ctx, ref, holdCode, actorID, false)
}

func (s *HoldService) update(ctx context.Context, ref models.EntityRef, holdCode, actorID string, place bool) (*models.LifecycleEntity, error) {
	holdCode = strings.TrimSpace(holdCode)
	if strings.TrimSpace(actorID) == "" {
		return nil, appErrors.Clone(appErrors.ErrActorRequired, "hold changes must name an actor")
	}
	var result *models.LifecycleEntity
	err := s.transitions.mutate(ctx, ref, func(entity *models.LifecycleEntity, catalog *Catalog) (*models.LifecycleChange, error) {
		if _, ok := catalog.HoldReason(holdCode); !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown hold reason %s", holdCode))
		}
		next, changed := toggleHold(entity, holdCode, place)
		result = next
		if !changed {
			return nil, nil
		}
		return &models.LifecycleChange{Entity: next, ExpectedVersion: entity.Version}, nil
	})
	if err != nil {
		return nil, err
	}
	verb := "lifted"
	if place {
		verb = "placed"
	}
	s.logger.Info("financial hold "+verb,
		zap.String("entity_type", ref.Type),
		zap.String("entity_id", ref.ID),
		zap.String("hold", holdCode),
		zap.String("actor", actorID),
	)
	return result, nil
}

func toggleHold(entity *models.LifecycleEntity, holdCode string, place bool) (*models.LifecycleEntity, bool) {
	next := entity.Clone()
	idx := -1
	for i, code := range next.ActiveHoldCodes {
		if code == holdCode {
			idx = i
			break
		}
	}
	switch {
	case place && idx < 0:
		next.ActiveHoldCodes = append(next.ActiveHoldCodes, holdCode)
		return next, true
	case !place && idx >= 0:
		next.ActiveHoldCodes = append(next.ActiveHoldCodes[:idx], next.ActiveHoldCodes[idx+1:]...)
		return next, true
	}
	return entity, false
}
