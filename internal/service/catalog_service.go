package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/univ-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/univ-lifecycle-api/pkg/errors"
)

// CatalogSnapshotCacheKey stores the shared rule snapshot in Redis.
const CatalogSnapshotCacheKey = "lifecycle:catalog:snapshot"

type catalogStore interface {
	LoadSnapshot(ctx context.Context) (*models.CatalogSnapshot, error)
	UpsertMilestoneAction(ctx context.Context, row models.MilestoneAction) error
	UpsertHoldBlockedAction(ctx context.Context, row models.HoldBlockedAction) error
	UpsertMilestoneStatusImpact(ctx context.Context, row models.MilestoneStatusImpact) error
}

// ruleLocker is implemented by stores that can serialise rule writes across
// instances.
type ruleLocker interface {
	WithRuleLock(ctx context.Context, fn func(context.Context) error) error
}

// SnapshotCache shares catalog snapshots between instances.
type SnapshotCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type loadedCatalog struct {
	catalog  *Catalog
	loadedAt time.Time
}

// CatalogService serves the rule catalog to concurrent requests. The current
// catalog is swapped atomically so readers never observe a half-built value.
type CatalogService struct {
	store     catalogStore
	cache     SnapshotCache
	ttl       time.Duration
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time

	current  atomic.Pointer[loadedCatalog]
	reloadMu sync.Mutex
	writeMu  sync.Mutex
}

// NewCatalogService constructs the catalog service. cache may be nil.
func NewCatalogService(store catalogStore, cache SnapshotCache, ttl time.Duration, metrics *MetricsService, logger *zap.Logger) *CatalogService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		store:     store,
		cache:     cache,
		ttl:       ttl,
		metrics:   metrics,
		validator: validator.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// Current returns the catalog in force, reloading it once the cache window
// has elapsed. Load failures surface as CATALOG_UNAVAILABLE; a stale catalog
// is never served past its window.
func (s *CatalogService) Current(ctx context.Context) (*Catalog, error) {
	if loaded := s.current.Load(); loaded != nil && s.now().Sub(loaded.loadedAt) < s.ttl {
		return loaded.catalog, nil
	}
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	if loaded := s.current.Load(); loaded != nil && s.now().Sub(loaded.loadedAt) < s.ttl {
		return loaded.catalog, nil
	}
	return s.reloadLocked(ctx, true)
}

// Reload discards the shared snapshot and rebuilds the catalog from storage.
func (s *CatalogService) Reload(ctx context.Context) (*Catalog, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	s.invalidateShared(ctx)
	return s.reloadLocked(ctx, false)
}

func (s *CatalogService) reloadLocked(ctx context.Context, useShared bool) (*Catalog, error) {
	if useShared {
		if catalog, ok := s.loadShared(ctx); ok {
			s.current.Store(&loadedCatalog{catalog: catalog, loadedAt: s.now()})
			return catalog, nil
		}
	}

	snap, err := s.store.LoadSnapshot(ctx)
	if err != nil {
		s.metrics.ObserveCatalogLoad("database", false)
		s.logger.Error("rule catalog load failed", zap.Error(err))
		return nil, appErrors.WrapAs(appErrors.ErrCatalogUnavailable, err, "")
	}
	catalog, err := BuildCatalog(*snap)
	if err != nil {
		s.metrics.ObserveCatalogLoad("database", false)
		s.logger.Error("rule catalog rejected", zap.Error(err))
		return nil, appErrors.WrapAs(appErrors.ErrCatalogUnavailable, err, "")
	}
	s.metrics.ObserveCatalogLoad("database", true)
	s.current.Store(&loadedCatalog{catalog: catalog, loadedAt: s.now()})
	if s.cache != nil {
		if err := s.cache.Set(ctx, CatalogSnapshotCacheKey, snap, s.ttl); err != nil {
			s.logger.Warn("failed to share rule catalog snapshot", zap.Error(err))
		}
	}
	return catalog, nil
}

func (s *CatalogService) loadShared(ctx context.Context) (*Catalog, bool) {
	if s.cache == nil {
		return nil, false
	}
	var snap models.CatalogSnapshot
	if err := s.cache.Get(ctx, CatalogSnapshotCacheKey, &snap); err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("shared rule catalog unavailable, using database", zap.Error(err))
		}
		return nil, false
	}
	catalog, err := BuildCatalog(snap)
	if err != nil {
		s.logger.Warn("shared rule catalog rejected, using database", zap.Error(err))
		return nil, false
	}
	s.metrics.ObserveCatalogLoad("cache", true)
	return catalog, true
}

func (s *CatalogService) invalidateShared(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, CatalogSnapshotCacheKey); err != nil {
		s.logger.Warn("failed to invalidate shared rule catalog", zap.Error(err))
	}
}

// SetMilestoneAction creates or updates a milestone enablement rule.
func (s *CatalogService) SetMilestoneAction(ctx context.Context, row models.MilestoneAction) (*Catalog, error) {
	return s.writeRule(ctx, row, func(snap *models.CatalogSnapshot) {
		for i, existing := range snap.MilestoneActions {
			if existing.MilestoneCode == row.MilestoneCode && existing.ActionCode == row.ActionCode {
				snap.MilestoneActions[i] = row
				return
			}
		}
		snap.MilestoneActions = append(snap.MilestoneActions, row)
	}, func(ctx context.Context) error {
		return s.store.UpsertMilestoneAction(ctx, row)
	})
}

// SetHoldBlockedAction creates or updates a hold blocking rule.
func (s *CatalogService) SetHoldBlockedAction(ctx context.Context, row models.HoldBlockedAction) (*Catalog, error) {
	return s.writeRule(ctx, row, func(snap *models.CatalogSnapshot) {
		for i, existing := range snap.HoldBlocks {
			if existing.HoldReasonCode == row.HoldReasonCode && existing.ActionCode == row.ActionCode {
				snap.HoldBlocks[i] = row
				return
			}
		}
		snap.HoldBlocks = append(snap.HoldBlocks, row)
	}, func(ctx context.Context) error {
		return s.store.UpsertHoldBlockedAction(ctx, row)
	})
}

// SetMilestoneStatusImpact creates or updates a milestone status impact rule.
func (s *CatalogService) SetMilestoneStatusImpact(ctx context.Context, row models.MilestoneStatusImpact) (*Catalog, error) {
	return s.writeRule(ctx, row, func(snap *models.CatalogSnapshot) {
		for i, existing := range snap.Impacts {
			if existing.MilestoneCode == row.MilestoneCode && existing.TargetStatusCode == row.TargetStatusCode {
				snap.Impacts[i] = row
				return
			}
		}
		snap.Impacts = append(snap.Impacts, row)
	}, func(ctx context.Context) error {
		return s.store.UpsertMilestoneStatusImpact(ctx, row)
	})
}

// writeRule rejects rows that would leave the catalog inconsistent, persists
// the row and swaps in a freshly loaded catalog. Validation and the write run
// under one lock so concurrent writers always validate against the latest
// rules.
func (s *CatalogService) writeRule(ctx context.Context, row interface{}, apply func(*models.CatalogSnapshot), persist func(context.Context) error) (*Catalog, error) {
	if err := s.validator.Struct(row); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid rule payload")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	write := func(ctx context.Context) error {
		snap, err := s.store.LoadSnapshot(ctx)
		if err != nil {
			return appErrors.WrapAs(appErrors.ErrCatalogUnavailable, err, "")
		}
		apply(snap)
		if _, err := BuildCatalog(*snap); err != nil {
			return appErrors.WrapAs(appErrors.ErrValidation, err, err.Error())
		}
		if err := persist(ctx); err != nil {
			return appErrors.WrapAs(appErrors.ErrStorage, err, "failed to persist rule")
		}
		return nil
	}

	var err error
	if locker, ok := s.store.(ruleLocker); ok {
		err = locker.WithRuleLock(ctx, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		if appErrors.CodeOf(err) == "" {
			err = appErrors.WrapAs(appErrors.ErrStorage, err, "failed to lock rule catalog")
		}
		return nil, err
	}
	return s.Reload(ctx)
}
