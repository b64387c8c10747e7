package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMajorRepositoryGetValidationRules(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewMajorRepository(sqlx.NewDb(db, "sqlmock"), time.Second)

	mock.ExpectQuery(regexp.QuoteMeta("FROM majors WHERE id = $1")).
		WithArgs("CS").
		WillReturnRows(sqlmock.NewRows([]string{"id", "min_gpa", "min_graduation_year", "registration_fee", "allowed_certificate_types"}).
			AddRow("CS", 3.0, nil, 150000.0, "{IB,National}"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM major_test_minimums")).
		WithArgs("CS").
		WillReturnRows(sqlmock.NewRows([]string{"test_code", "min_score"}).
			AddRow("ENG", 60.0).
			AddRow("MATH", 70.0))

	rules, err := repo.GetValidationRules(context.Background(), "CS")
	require.NoError(t, err)
	assert.Equal(t, "CS", rules.MajorID)
	require.NotNil(t, rules.MinGPA)
	assert.Equal(t, 3.0, *rules.MinGPA)
	assert.Nil(t, rules.MinGraduationYear)
	assert.Equal(t, []string{"IB", "National"}, rules.AllowedCertificateTypes)
	assert.Equal(t, map[string]float64{"ENG": 60, "MATH": 70}, rules.MinTestScores)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMajorRepositoryUnknownMajor(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewMajorRepository(sqlx.NewDb(db, "sqlmock"), 0)

	mock.ExpectQuery("FROM majors").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = repo.GetValidationRules(context.Background(), "LAW")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}
