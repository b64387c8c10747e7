package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/univ-lifecycle-api/internal/models"
	"github.com/noah-isme/univ-lifecycle-api/internal/repository"
)

var fixedNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func strPtr(v string) *string { return &v }

func testSnapshot() models.CatalogSnapshot {
	return models.CatalogSnapshot{
		Statuses: []models.StatusCode{
			{Code: "APDR", Category: models.StatusCategoryApplication, LabelEN: "Draft", Active: true},
			{Code: "APSB", Category: models.StatusCategoryApplication, LabelEN: "Submitted", Active: true},
			{Code: "APPY", Category: models.StatusCategoryApplication, LabelEN: "Pending payment", Active: true},
			{Code: "APIV", Category: models.StatusCategoryReview, LabelEN: "In review", Active: true},
			{Code: "APRJ", Category: models.StatusCategoryDecision, LabelEN: "Rejected", Active: true},
			{Code: "ADMT", Category: models.StatusCategoryDecision, LabelEN: "Admitted", Active: true},
			{Code: "ENRL", Category: models.StatusCategoryEnrollment, LabelEN: "Enrolled", Active: true},
			{Code: "SUSP", Category: models.StatusCategoryAcademic, LabelEN: "Suspended", Active: true},
		},
		Reasons: []models.TransitionReason{
			{Code: "INCOMPLETE", ReasonType: models.ReasonTypeReject, LabelEN: "Incomplete documents"},
			{Code: "DEBT", ReasonType: models.ReasonTypeHold, LabelEN: "Outstanding balance"},
		},
		Transitions: []models.WorkflowTransition{
			{FromStatus: "APDR", ToStatus: "APSB", TriggerCode: "TRSB"},
			{FromStatus: "APDR", ToStatus: "APPY", TriggerCode: "TRPY"},
			{FromStatus: "APDR", ToStatus: "APRJ", TriggerCode: "TRAR"},
			{FromStatus: "APSB", ToStatus: "APIV", TriggerCode: "TRVF"},
			{FromStatus: "APIV", ToStatus: "ADMT", TriggerCode: "TRAD"},
			{FromStatus: "APIV", ToStatus: "APRJ", TriggerCode: "TRRJ", RequiresReason: true},
			{FromStatus: "ADMT", ToStatus: "ENRL", TriggerCode: "TRMN"},
			{FromStatus: "ADMT", ToStatus: "ENRL", TriggerCode: "TREN", IsAutomatic: true},
			{FromStatus: "ENRL", ToStatus: "SUSP", TriggerCode: "TRSP", RequiresReason: true},
		},
		Milestones: []models.FinancialMilestone{
			{Code: "PM00", PercentageThreshold: 0},
			{Code: "PM25", PercentageThreshold: 25},
			{Code: "PM50", PercentageThreshold: 50},
			{Code: "PM100", PercentageThreshold: 100},
		},
		HoldReasons: []models.FinancialHoldReason{
			{Code: "HOLD_BAL", LabelEN: "Overdue balance"},
			{Code: "HOLD_DOC", LabelEN: "Missing documents"},
		},
		Actions: []models.Action{
			{Code: "REGISTER", Kind: models.ActionKindStudent, Category: "enrollment"},
			{Code: "EXAM", Kind: models.ActionKindSubject, Category: "academic"},
			{Code: "VIEW_GRADES", Kind: models.ActionKindStudent, Category: "academic"},
		},
		MilestoneActions: []models.MilestoneAction{
			{MilestoneCode: "PM50", ActionCode: "REGISTER", IsEnabled: true},
			{MilestoneCode: "PM100", ActionCode: "EXAM", IsEnabled: true},
			{MilestoneCode: "PM25", ActionCode: "EXAM", IsEnabled: false},
		},
		HoldBlocks: []models.HoldBlockedAction{
			{HoldReasonCode: "HOLD_BAL", ActionCode: "REGISTER", IsBlocked: true},
			{HoldReasonCode: "HOLD_DOC", ActionCode: "VIEW_GRADES", IsBlocked: false},
		},
		Impacts: []models.MilestoneStatusImpact{
			{MilestoneCode: "PM50", TargetStatusCode: "ENRL", IsAutomatic: true, IsActive: true},
			{MilestoneCode: "PM25", TargetStatusCode: "APIV", IsAutomatic: false, IsActive: true},
			{MilestoneCode: "PM100", TargetStatusCode: "SUSP", IsAutomatic: true, IsActive: false},
		},
	}
}

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := BuildCatalog(testSnapshot())
	require.NoError(t, err)
	return c
}

type staticCatalog struct {
	catalog *Catalog
	err     error
}

func (s *staticCatalog) Current(context.Context) (*Catalog, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.catalog, nil
}

// memoryLifecycleStore mimics the SQL store: versioned compare-and-swap
// commits that persist all or nothing.
type memoryLifecycleStore struct {
	mu        sync.Mutex
	entities  map[models.EntityRef]*models.LifecycleEntity
	records   []models.AuditRecord
	pending   []models.PendingAction
	conflicts int
	commitErr error
	getErr    error
	commits   int
}

func newMemoryStore(entities ...*models.LifecycleEntity) *memoryLifecycleStore {
	s := &memoryLifecycleStore{entities: make(map[models.EntityRef]*models.LifecycleEntity)}
	for _, e := range entities {
		if e.Version == 0 {
			e.Version = 1
		}
		s.entities[e.Ref()] = e.Clone()
	}
	return s
}

func (s *memoryLifecycleStore) GetEntity(_ context.Context, ref models.EntityRef) (*models.LifecycleEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	e, ok := s.entities[ref]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return e.Clone(), nil
}

func (s *memoryLifecycleStore) CreateEntity(_ context.Context, entity *models.LifecycleEntity, record models.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[entity.Ref()]; ok {
		return repository.ErrEntityExists
	}
	if s.commitErr != nil {
		return s.commitErr
	}
	s.entities[entity.Ref()] = entity.Clone()
	s.records = append(s.records, record)
	return nil
}

func (s *memoryLifecycleStore) Commit(_ context.Context, change models.LifecycleChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts > 0 {
		s.conflicts--
		return repository.ErrVersionConflict
	}
	if s.commitErr != nil {
		return s.commitErr
	}
	ref := change.Entity.Ref()
	current, ok := s.entities[ref]
	if !ok || current.Version != change.ExpectedVersion {
		return repository.ErrVersionConflict
	}
	next := change.Entity.Clone()
	next.Version = change.ExpectedVersion + 1
	s.entities[ref] = next
	s.records = append(s.records, change.Records...)
	s.pending = append(s.pending, change.PendingActions...)
	s.commits++
	return nil
}

func (s *memoryLifecycleStore) ListAuditRecords(_ context.Context, ref models.EntityRef, filter models.HistoryFilter) ([]models.AuditRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AuditRecord
	for _, r := range s.records {
		if r.EntityType == ref.Type && r.EntityID == ref.ID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if filter.PageSize > 0 {
		start := (filter.Page - 1) * filter.PageSize
		if start > len(out) {
			start = len(out)
		}
		end := start + filter.PageSize
		if end > len(out) {
			end = len(out)
		}
		out = out[start:end]
	}
	return out, total, nil
}

func (s *memoryLifecycleStore) ListPendingActions(_ context.Context, ref models.EntityRef) ([]models.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PendingAction
	for _, p := range s.pending {
		if p.EntityType == ref.Type && p.EntityID == ref.ID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memoryLifecycleStore) entity(ref models.EntityRef) *models.LifecycleEntity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entities[ref].Clone()
}

func (s *memoryLifecycleStore) recordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func studentAt(id, status string, milestone *string, holds ...string) *models.LifecycleEntity {
	return &models.LifecycleEntity{
		EntityType:             models.EntityTypeStudent,
		EntityID:               id,
		CurrentStatusCode:      status,
		ActiveHoldCodes:        holds,
		FinancialMilestoneCode: milestone,
		StatusChangedAt:        fixedNow.Add(-24 * time.Hour),
		Version:                1,
	}
}

func newTestTransitionService(t *testing.T, store *memoryLifecycleStore, opts ...TransitionServiceOption) *TransitionService {
	t.Helper()
	opts = append([]TransitionServiceOption{WithTransitionClock(func() time.Time { return fixedNow })}, opts...)
	return NewTransitionService(store, &staticCatalog{catalog: testCatalog(t)}, nil, opts...)
}
