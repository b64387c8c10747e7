package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/univ-lifecycle-api/internal/models"
	"github.com/noah-isme/univ-lifecycle-api/internal/repository"
	appErrors "github.com/noah-isme/univ-lifecycle-api/pkg/errors"
)

type lifecycleStore interface {
	GetEntity(ctx context.Context, ref models.EntityRef) (*models.LifecycleEntity, error)
	CreateEntity(ctx context.Context, entity *models.LifecycleEntity, record models.AuditRecord) error
	Commit(ctx context.Context, change models.LifecycleChange) error
}

// TransitionRequest is a caller-initiated status change. ActorID is required:
// only milestone rules may move an entity without a human actor.
type TransitionRequest struct {
	Entity      models.EntityRef `json:"-"`
	TriggerCode string           `json:"triggerCode" validate:"required"`
	ReasonCode  *string          `json:"reasonCode,omitempty"`
	ActorID     string           `json:"-"`
	Notes       string           `json:"notes"`
}

// TransitionResult is the entity state after a successful transition and the
// audit record written with it.
type TransitionResult struct {
	Entity *models.LifecycleEntity `json:"entity"`
	Record models.AuditRecord      `json:"record"`
}

// TransitionService is the sole writer of an entity's current status.
type TransitionService struct {
	store      lifecycleStore
	catalog    catalogSource
	locks      *entityLocks
	validator  *validator.Validate
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
	maxRetries int
}

// TransitionServiceOption configures the service.
type TransitionServiceOption func(*TransitionService)

// WithTransitionRetries bounds how often a lost optimistic race is retried
// against fresh state before CONCURRENT_MODIFICATION is returned.
func WithTransitionRetries(n int) TransitionServiceOption {
	return func(s *TransitionService) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithTransitionClock overrides the time source.
func WithTransitionClock(now func() time.Time) TransitionServiceOption {
	return func(s *TransitionService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTransitionMetrics attaches Prometheus instrumentation.
func WithTransitionMetrics(metrics *MetricsService) TransitionServiceOption {
	return func(s *TransitionService) {
		s.metrics = metrics
	}
}

// NewTransitionService constructs the transition engine.
func NewTransitionService(store lifecycleStore, catalog catalogSource, logger *zap.Logger, opts ...TransitionServiceOption) *TransitionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &TransitionService{
		store:      store,
		catalog:    catalog,
		locks:      newEntityLocks(),
		validator:  validator.New(),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		maxRetries: 3,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Apply performs a caller-initiated transition.
func (s *TransitionService) Apply(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid transition payload")
	}
	if strings.TrimSpace(req.ActorID) == "" {
		return nil, appErrors.Clone(appErrors.ErrActorRequired, "transitions requested by callers must name an actor")
	}
	actor := req.ActorID
	return s.transition(ctx, req.Entity, transitionInput{
		TriggerCode: strings.TrimSpace(req.TriggerCode),
		ReasonCode:  req.ReasonCode,
		ActorID:     &actor,
		Notes:       req.Notes,
	})
}

// Initialize creates the lifecycle state of a new entity in status together
// with its first audit record. status must exist in the catalog.
func (s *TransitionService) Initialize(ctx context.Context, ref models.EntityRef, status string, trigger, actorID *string, notes string) (*TransitionResult, error) {
	catalog, err := s.catalog.Current(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := catalog.Status(status); !ok {
		return nil, appErrors.Clone(appErrors.ErrNoSuchTransition, fmt.Sprintf("unknown initial status %s", status))
	}
	now := s.now()
	entity := &models.LifecycleEntity{
		EntityType:        ref.Type,
		EntityID:          ref.ID,
		CurrentStatusCode: status,
		StatusChangedAt:   now,
		Version:           1,
	}
	record := models.AuditRecord{
		ID:           uuid.NewString(),
		EntityType:   ref.Type,
		EntityID:     ref.ID,
		ToStatusCode: status,
		TriggerCode:  trimmedPtr(trigger),
		ActorID:      trimmedPtr(actorID),
		Notes:        strings.TrimSpace(notes),
		CreatedAt:    now,
	}

	unlock := s.locks.Lock(ref)
	defer unlock()
	if err := s.store.CreateEntity(ctx, entity, record); err != nil {
		if errors.Is(err, repository.ErrEntityExists) {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("%s %s already has lifecycle state", ref.Type, ref.ID))
		}
		return nil, appErrors.WrapAs(appErrors.ErrStorage, err, "failed to create lifecycle state")
	}
	s.metrics.ObserveTransition(derefString(record.TriggerCode), "initialized")
	s.logger.Info("lifecycle state created",
		zap.String("entity_type", ref.Type),
		zap.String("entity_id", ref.ID),
		zap.String("status", status),
	)
	return &TransitionResult{Entity: entity, Record: record}, nil
}

// AvailableTransitions lists the edges leaving the entity's current status.
func (s *TransitionService) AvailableTransitions(ctx context.Context, ref models.EntityRef) ([]models.WorkflowTransition, error) {
	catalog, err := s.catalog.Current(ctx)
	if err != nil {
		return nil, err
	}
	entity, err := loadEntity(ctx, s.store, ref)
	if err != nil {
		return nil, err
	}
	return catalog.TransitionsFrom(entity.CurrentStatusCode), nil
}

func (s *TransitionService) transition(ctx context.Context, ref models.EntityRef, in transitionInput) (*TransitionResult, error) {
	var result *TransitionResult
	err := s.mutate(ctx, ref, func(entity *models.LifecycleEntity, catalog *Catalog) (*models.LifecycleChange, error) {
		next, record, err := applyTransition(entity, catalog, in, s.now())
		if err != nil {
			return nil, err
		}
		result = &TransitionResult{Entity: next, Record: record}
		return &models.LifecycleChange{
			Entity:          next,
			ExpectedVersion: entity.Version,
			Records:         []models.AuditRecord{record},
		}, nil
	})
	s.metrics.ObserveTransition(in.TriggerCode, outcomeLabel(err))
	if err != nil {
		return nil, err
	}
	s.logger.Info("lifecycle transition applied",
		zap.String("entity_type", ref.Type),
		zap.String("entity_id", ref.ID),
		zap.String("trigger", in.TriggerCode),
		zap.Stringp("from", result.Record.FromStatusCode),
		zap.String("to", result.Record.ToStatusCode),
		zap.Stringp("actor", result.Record.ActorID),
	)
	return result, nil
}

// mutate runs plan against the entity's current state while holding the
// entity lock and commits the resulting change. A version conflict from a
// concurrent writer outside this process replans against fresh state. A nil
// change commits nothing.
func (s *TransitionService) mutate(ctx context.Context, ref models.EntityRef, plan func(*models.LifecycleEntity, *Catalog) (*models.LifecycleChange, error)) error {
	unlock := s.locks.Lock(ref)
	defer unlock()

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		catalog, err := s.catalog.Current(ctx)
		if err != nil {
			return err
		}
		entity, err := loadEntity(ctx, s.store, ref)
		if err != nil {
			return err
		}
		change, err := plan(entity, catalog)
		if err != nil {
			return err
		}
		if change == nil {
			return nil
		}
		err = s.store.Commit(ctx, *change)
		if err == nil {
			change.Entity.Version = change.ExpectedVersion + 1
			return nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return appErrors.WrapAs(appErrors.ErrStorage, err, "failed to persist lifecycle change")
		}
		lastErr = appErrors.WrapAs(appErrors.ErrConcurrentModification, err, "")
		s.logger.Warn("lifecycle change lost optimistic race",
			zap.String("entity_type", ref.Type),
			zap.String("entity_id", ref.ID),
			zap.Int("attempt", attempt+1),
		)
	}
	return lastErr
}

func loadEntity(ctx context.Context, store entityReader, ref models.EntityRef) (*models.LifecycleEntity, error) {
	entity, err := store.GetEntity(ctx, ref)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, ref.Type+" "+ref.ID+" has no lifecycle state")
		}
		return nil, appErrors.WrapAs(appErrors.ErrStorage, err, "failed to load lifecycle state")
	}
	return entity, nil
}

func outcomeLabel(err error) string {
	if err == nil {
		return "applied"
	}
	if code := appErrors.CodeOf(err); code != "" {
		return strings.ToLower(code)
	}
	return "error"
}
