package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/univ-lifecycle-api/internal/models"
)

func newCatalogRepoMock(t *testing.T) (*CatalogRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewCatalogRepository(sqlx.NewDb(db, "sqlmock"), time.Second), mock, func() { db.Close() }
}

func TestCatalogRepositoryLoadSnapshot(t *testing.T) {
	repo, mock, cleanup := newCatalogRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM lifecycle_status_codes").WillReturnRows(
		sqlmock.NewRows([]string{"code", "category", "label_en", "label_local", "active"}).
			AddRow("APSB", "application", "Submitted", "Diajukan", true).
			AddRow("APIV", "review", "In review", "Ditinjau", true))
	mock.ExpectQuery("FROM lifecycle_transition_reasons").WillReturnRows(
		sqlmock.NewRows([]string{"code", "reason_type", "label_en", "label_local"}).
			AddRow("INCOMPLETE", "reject", "Incomplete", "Tidak lengkap"))
	mock.ExpectQuery("FROM lifecycle_workflow_transitions").WillReturnRows(
		sqlmock.NewRows([]string{"from_status", "to_status", "trigger_code", "is_automatic", "requires_reason"}).
			AddRow("APSB", "APIV", "TRVF", false, false))
	mock.ExpectQuery("FROM financial_milestones").WillReturnRows(
		sqlmock.NewRows([]string{"code", "percentage_threshold", "label_en", "label_local"}).
			AddRow("PM50", 50.0, "Half paid", "Lunas separuh"))
	mock.ExpectQuery("FROM financial_hold_reasons").WillReturnRows(
		sqlmock.NewRows([]string{"code", "label_en", "label_local"}).
			AddRow("HOLD_BAL", "Balance", "Tunggakan"))
	mock.ExpectQuery("FROM lifecycle_actions").WillReturnRows(
		sqlmock.NewRows([]string{"code", "kind", "category", "label_en"}).
			AddRow("REGISTER", "student", "enrollment", "Register"))
	mock.ExpectQuery("FROM milestone_actions").WillReturnRows(
		sqlmock.NewRows([]string{"milestone_code", "action_code", "is_enabled"}).
			AddRow("PM50", "REGISTER", true))
	mock.ExpectQuery("FROM hold_blocked_actions").WillReturnRows(
		sqlmock.NewRows([]string{"hold_reason_code", "action_code", "is_blocked"}).
			AddRow("HOLD_BAL", "REGISTER", true))
	mock.ExpectQuery("FROM milestone_status_impacts").WillReturnRows(
		sqlmock.NewRows([]string{"milestone_code", "target_status_code", "is_automatic", "is_active"}))
	mock.ExpectRollback()

	snap, err := repo.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Statuses, 2)
	assert.Equal(t, models.StatusCategoryReview, snap.Statuses[1].Category)
	assert.Equal(t, "TRVF", snap.Transitions[0].TriggerCode)
	assert.Equal(t, 50.0, snap.Milestones[0].PercentageThreshold)
	assert.Equal(t, "REGISTER", snap.HoldBlocks[0].ActionCode)
	assert.Empty(t, snap.Impacts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepositoryLoadSnapshotFailsAsAWhole(t *testing.T) {
	repo, mock, cleanup := newCatalogRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM lifecycle_status_codes").WillReturnError(errors.New("relation does not exist"))
	mock.ExpectRollback()

	snap, err := repo.LoadSnapshot(context.Background())
	assert.Nil(t, snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load status codes")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepositoryUpserts(t *testing.T) {
	repo, mock, cleanup := newCatalogRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO milestone_actions")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO hold_blocked_actions")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO milestone_status_impacts")).WillReturnError(errors.New("fk violation"))

	ctx := context.Background()
	require.NoError(t, repo.UpsertMilestoneAction(ctx, models.MilestoneAction{MilestoneCode: "PM50", ActionCode: "REGISTER", IsEnabled: true}))
	require.NoError(t, repo.UpsertHoldBlockedAction(ctx, models.HoldBlockedAction{HoldReasonCode: "HOLD_BAL", ActionCode: "REGISTER", IsBlocked: true}))
	err := repo.UpsertMilestoneStatusImpact(ctx, models.MilestoneStatusImpact{MilestoneCode: "PM50", TargetStatusCode: "ENRL"})
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepositoryWithRuleLock(t *testing.T) {
	repo, mock, cleanup := newCatalogRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WithArgs(catalogRuleLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ran := false
	require.NoError(t, repo.WithRuleLock(context.Background(), func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepositoryWithRuleLockReleasesOnError(t *testing.T) {
	repo, mock, cleanup := newCatalogRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WithArgs(catalogRuleLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	boom := errors.New("rule rejected")
	err := repo.WithRuleLock(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}
