package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/univ-lifecycle-api/internal/models"
)

var (
	// ErrVersionConflict is returned by Commit when the entity changed since
	// it was read.
	ErrVersionConflict = errors.New("lifecycle entity version conflict")
	// ErrEntityExists is returned by CreateEntity for an entity that already
	// has lifecycle state.
	ErrEntityExists = errors.New("lifecycle entity already exists")
)

const pqUniqueViolation = "23505"

// LifecycleRepository persists entity lifecycle state, the append-only audit
// trail and pending manual actions.
type LifecycleRepository struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewLifecycleRepository constructs the repository. A positive timeout bounds
// every store call.
func NewLifecycleRepository(db *sqlx.DB, timeout time.Duration) *LifecycleRepository {
	return &LifecycleRepository{db: db, timeout: timeout}
}

type lifecycleEntityRow struct {
	models.LifecycleEntity
	HoldCodes pq.StringArray `db:"active_hold_codes"`
}

const entityColumns = `entity_type, entity_id, current_status_code, active_hold_codes, financial_milestone_code, status_changed_at, version`

// GetEntity loads the lifecycle state of an entity.
func (r *LifecycleRepository) GetEntity(ctx context.Context, ref models.EntityRef) (*models.LifecycleEntity, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + entityColumns + ` FROM lifecycle_entities WHERE entity_type = $1 AND entity_id = $2`
	var row lifecycleEntityRow
	if err := r.db.GetContext(ctx, &row, query, ref.Type, ref.ID); err != nil {
		return nil, err
	}
	entity := row.LifecycleEntity
	entity.ActiveHoldCodes = []string(row.HoldCodes)
	if entity.ActiveHoldCodes == nil {
		entity.ActiveHoldCodes = []string{}
	}
	return &entity, nil
}

// CreateEntity inserts the initial lifecycle state together with its first
// audit record.
func (r *LifecycleRepository) CreateEntity(ctx context.Context, entity *models.LifecycleEntity, record models.AuditRecord) (err error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin lifecycle create transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertQuery = `INSERT INTO lifecycle_entities (` + entityColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err = tx.ExecContext(ctx, insertQuery,
		entity.EntityType,
		entity.EntityID,
		entity.CurrentStatusCode,
		pq.Array(holdCodes(entity)),
		entity.FinancialMilestoneCode,
		entity.StatusChangedAt,
		entity.Version,
	); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			err = ErrEntityExists
			return err
		}
		return fmt.Errorf("insert lifecycle entity: %w", err)
	}
	if err = appendAuditRecords(ctx, tx, []models.AuditRecord{record}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit lifecycle create: %w", err)
	}
	return nil
}

// Commit persists a lifecycle change in one transaction. The entity row is
// only updated when its stored version still equals change.ExpectedVersion,
// otherwise ErrVersionConflict is returned and nothing is written.
func (r *LifecycleRepository) Commit(ctx context.Context, change models.LifecycleChange) (err error) {
	if change.Entity == nil {
		return errors.New("commit lifecycle change: entity is required")
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin lifecycle transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	entity := change.Entity
	const updateQuery = `UPDATE lifecycle_entities
	SET current_status_code = $1, active_hold_codes = $2, financial_milestone_code = $3, status_changed_at = $4, version = version + 1
	WHERE entity_type = $5 AND entity_id = $6 AND version = $7`
	result, err := tx.ExecContext(ctx, updateQuery,
		entity.CurrentStatusCode,
		pq.Array(holdCodes(entity)),
		entity.FinancialMilestoneCode,
		entity.StatusChangedAt,
		entity.EntityType,
		entity.EntityID,
		change.ExpectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update lifecycle entity: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check lifecycle update rows: %w", err)
	}
	if rows == 0 {
		err = ErrVersionConflict
		return err
	}

	if err = appendAuditRecords(ctx, tx, change.Records); err != nil {
		return err
	}
	if len(change.PendingActions) > 0 {
		const pendingQuery = `INSERT INTO lifecycle_pending_actions (id, entity_type, entity_id, milestone_code, target_status_code, created_at)
	VALUES (:id, :entity_type, :entity_id, :milestone_code, :target_status_code, :created_at)`
		for i := range change.PendingActions {
			if _, err = tx.NamedExecContext(ctx, pendingQuery, &change.PendingActions[i]); err != nil {
				return fmt.Errorf("insert pending action: %w", err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit lifecycle change: %w", err)
	}
	return nil
}

// ListAuditRecords returns an entity's audit trail newest first together with
// the total record count.
func (r *LifecycleRepository) ListAuditRecords(ctx context.Context, ref models.EntityRef, filter models.HistoryFilter) ([]models.AuditRecord, int, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var total int
	const countQuery = `SELECT COUNT(*) FROM lifecycle_audit_records WHERE entity_type = $1 AND entity_id = $2`
	if err := r.db.GetContext(ctx, &total, countQuery, ref.Type, ref.ID); err != nil {
		return nil, 0, fmt.Errorf("count audit records: %w", err)
	}

	query := `SELECT id, entity_type, entity_id, from_status_code, to_status_code, trigger_code, actor_id, notes, created_at
	FROM lifecycle_audit_records WHERE entity_type = $1 AND entity_id = $2 ORDER BY created_at DESC, seq DESC`
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.PageSize, (page-1)*filter.PageSize)
	}
	records := make([]models.AuditRecord, 0)
	if err := r.db.SelectContext(ctx, &records, query, ref.Type, ref.ID); err != nil {
		return nil, 0, fmt.Errorf("list audit records: %w", err)
	}
	return records, total, nil
}

// ListPendingActions returns the manual transitions surfaced for an entity.
func (r *LifecycleRepository) ListPendingActions(ctx context.Context, ref models.EntityRef) ([]models.PendingAction, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	const query = `SELECT id, entity_type, entity_id, milestone_code, target_status_code, created_at
	FROM lifecycle_pending_actions WHERE entity_type = $1 AND entity_id = $2 ORDER BY created_at DESC`
	actions := make([]models.PendingAction, 0)
	if err := r.db.SelectContext(ctx, &actions, query, ref.Type, ref.ID); err != nil {
		return nil, fmt.Errorf("list pending actions: %w", err)
	}
	return actions, nil
}

// appendAuditRecords only ever inserts; audit rows are never updated.
func appendAuditRecords(ctx context.Context, tx *sqlx.Tx, records []models.AuditRecord) error {
	const query = `INSERT INTO lifecycle_audit_records (id, entity_type, entity_id, from_status_code, to_status_code, trigger_code, actor_id, notes, created_at)
	VALUES (:id, :entity_type, :entity_id, :from_status_code, :to_status_code, :trigger_code, :actor_id, :notes, :created_at)`
	for i := range records {
		if _, err := tx.NamedExecContext(ctx, query, &records[i]); err != nil {
			return fmt.Errorf("append audit record: %w", err)
		}
	}
	return nil
}

func holdCodes(entity *models.LifecycleEntity) []string {
	if entity.ActiveHoldCodes == nil {
		return []string{}
	}
	return entity.ActiveHoldCodes
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
