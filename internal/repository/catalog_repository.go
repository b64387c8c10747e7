package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/univ-lifecycle-api/internal/models"
)

// CatalogRepository reads the lifecycle rule tables and writes the
// administrative rule rows.
type CatalogRepository struct {
	db      *sqlx.DB
	timeout time.Duration
}

// catalogRuleLockKey identifies the advisory lock serialising rule writes
// across instances.
const catalogRuleLockKey int64 = 0x6c6966656379636c

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB, timeout time.Duration) *CatalogRepository {
	return &CatalogRepository{db: db, timeout: timeout}
}

// LoadSnapshot reads every rule table inside one read-only transaction so the
// snapshot is consistent. Any failure discards the whole snapshot.
func (r *CatalogRepository) LoadSnapshot(ctx context.Context) (*models.CatalogSnapshot, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin catalog snapshot: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	snap := &models.CatalogSnapshot{}
	loads := []struct {
		name  string
		dest  interface{}
		query string
	}{
		{"status codes", &snap.Statuses, `SELECT code, category, label_en, label_local, active FROM lifecycle_status_codes ORDER BY code`},
		{"transition reasons", &snap.Reasons, `SELECT code, reason_type, label_en, label_local FROM lifecycle_transition_reasons ORDER BY code`},
		{"workflow transitions", &snap.Transitions, `SELECT from_status, to_status, trigger_code, is_automatic, requires_reason FROM lifecycle_workflow_transitions ORDER BY from_status, trigger_code`},
		{"financial milestones", &snap.Milestones, `SELECT code, percentage_threshold, label_en, label_local FROM financial_milestones ORDER BY percentage_threshold, code`},
		{"hold reasons", &snap.HoldReasons, `SELECT code, label_en, label_local FROM financial_hold_reasons ORDER BY code`},
		{"actions", &snap.Actions, `SELECT code, kind, category, label_en FROM lifecycle_actions ORDER BY category, code`},
		{"milestone actions", &snap.MilestoneActions, `SELECT milestone_code, action_code, is_enabled FROM milestone_actions ORDER BY milestone_code, action_code`},
		{"hold blocked actions", &snap.HoldBlocks, `SELECT hold_reason_code, action_code, is_blocked FROM hold_blocked_actions ORDER BY hold_reason_code, action_code`},
		{"milestone status impacts", &snap.Impacts, `SELECT milestone_code, target_status_code, is_automatic, is_active FROM milestone_status_impacts ORDER BY milestone_code, target_status_code`},
	}
	for _, load := range loads {
		if err := tx.SelectContext(ctx, load.dest, load.query); err != nil {
			return nil, fmt.Errorf("load %s: %w", load.name, err)
		}
	}
	return snap, nil
}

// WithRuleLock runs fn while holding a transaction-scoped Postgres advisory
// lock, so that only one instance validates and writes catalog rules at a
// time. fn uses its own connections; the lock is released on return.
func (r *CatalogRepository) WithRuleLock(ctx context.Context, fn func(context.Context) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rule lock: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, catalogRuleLockKey); err != nil {
		return fmt.Errorf("acquire rule lock: %w", err)
	}
	if err := fn(ctx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("release rule lock: %w", err)
	}
	return nil
}

// UpsertMilestoneAction creates or updates a milestone enablement row.
func (r *CatalogRepository) UpsertMilestoneAction(ctx context.Context, row models.MilestoneAction) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	const query = `INSERT INTO milestone_actions (milestone_code, action_code, is_enabled)
	VALUES (:milestone_code, :action_code, :is_enabled)
	ON CONFLICT (milestone_code, action_code) DO UPDATE SET is_enabled = EXCLUDED.is_enabled`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("upsert milestone action: %w", err)
	}
	return nil
}

// UpsertHoldBlockedAction creates or updates a hold blocking row.
func (r *CatalogRepository) UpsertHoldBlockedAction(ctx context.Context, row models.HoldBlockedAction) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	const query = `INSERT INTO hold_blocked_actions (hold_reason_code, action_code, is_blocked)
	VALUES (:hold_reason_code, :action_code, :is_blocked)
	ON CONFLICT (hold_reason_code, action_code) DO UPDATE SET is_blocked = EXCLUDED.is_blocked`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("upsert hold blocked action: %w", err)
	}
	return nil
}

// UpsertMilestoneStatusImpact creates or updates a milestone status impact row.
func (r *CatalogRepository) UpsertMilestoneStatusImpact(ctx context.Context, row models.MilestoneStatusImpact) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	const query = `INSERT INTO milestone_status_impacts (milestone_code, target_status_code, is_automatic, is_active)
	VALUES (:milestone_code, :target_status_code, :is_automatic, :is_active)
	ON CONFLICT (milestone_code, target_status_code) DO UPDATE SET is_automatic = EXCLUDED.is_automatic, is_active = EXCLUDED.is_active`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("upsert milestone status impact: %w", err)
	}
	return nil
}
