package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/univ-lifecycle-api/internal/models"
)

// MajorRepository reads the admission rules configured per major.
type MajorRepository struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewMajorRepository constructs the repository.
func NewMajorRepository(db *sqlx.DB, timeout time.Duration) *MajorRepository {
	return &MajorRepository{db: db, timeout: timeout}
}

type majorRulesRow struct {
	models.MajorValidationRules
	CertificateTypes pq.StringArray `db:"allowed_certificate_types"`
}

// GetValidationRules returns the rules for a major. sql.ErrNoRows is returned
// for an unknown major.
func (r *MajorRepository) GetValidationRules(ctx context.Context, majorID string) (*models.MajorValidationRules, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	const query = `SELECT id, min_gpa, min_graduation_year, registration_fee, allowed_certificate_types
	FROM majors WHERE id = $1`
	var row majorRulesRow
	if err := r.db.GetContext(ctx, &row, query, majorID); err != nil {
		return nil, err
	}

	var minimums []struct {
		TestCode string  `db:"test_code"`
		MinScore float64 `db:"min_score"`
	}
	const minimumsQuery = `SELECT test_code, min_score FROM major_test_minimums WHERE major_id = $1 ORDER BY test_code`
	if err := r.db.SelectContext(ctx, &minimums, minimumsQuery, majorID); err != nil {
		return nil, fmt.Errorf("list major test minimums: %w", err)
	}

	rules := row.MajorValidationRules
	rules.AllowedCertificateTypes = []string(row.CertificateTypes)
	if len(minimums) > 0 {
		rules.MinTestScores = make(map[string]float64, len(minimums))
		for _, m := range minimums {
			rules.MinTestScores[m.TestCode] = m.MinScore
		}
	}
	return &rules, nil
}
