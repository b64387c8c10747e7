package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/univ-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/univ-lifecycle-api/pkg/errors"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestDecide(t *testing.T) {
	rules := models.MajorValidationRules{
		MajorID:                 "CS",
		MinTestScores:           map[string]float64{"MATH": 70, "ENG": 60},
		MinGPA:                  floatPtr(3.0),
		MinGraduationYear:       intPtr(2022),
		AllowedCertificateTypes: []string{"IB", "National"},
	}
	passing := models.ApplicantData{
		TestScores:      map[string]float64{"MATH": 82, "ENG": 60},
		GPA:             floatPtr(3.4),
		GraduationYear:  intPtr(2024),
		CertificateType: "national",
	}

	t.Run("draft skips evaluation", func(t *testing.T) {
		d := Decide(rules, models.ApplicantData{}, true)
		assert.Equal(t, models.StatusApplicationDraft, d.StatusCode)
		assert.Empty(t, d.TriggerCode)
		assert.Empty(t, d.Failures)
	})

	t.Run("all rules pass without fee", func(t *testing.T) {
		d := Decide(rules, passing, false)
		assert.Equal(t, models.StatusApplicationSubmitted, d.StatusCode)
		assert.Equal(t, models.TriggerSubmitForReview, d.TriggerCode)
		assert.False(t, d.RequiresFee)
	})

	t.Run("fee pending", func(t *testing.T) {
		withFee := rules
		withFee.RegistrationFee = 150000
		d := Decide(withFee, passing, false)
		assert.Equal(t, models.StatusApplicationPendingPayment, d.StatusCode)
		assert.Equal(t, models.TriggerAwaitPayment, d.TriggerCode)
		assert.True(t, d.RequiresFee)
	})

	t.Run("gpa below minimum", func(t *testing.T) {
		applicant := passing
		applicant.GPA = floatPtr(2.8)
		d := Decide(rules, applicant, false)
		assert.Equal(t, models.StatusApplicationRejected, d.StatusCode)
		assert.Equal(t, models.TriggerAutoReject, d.TriggerCode)
		assert.Equal(t, []string{"gpa 2.8 below minimum 3"}, d.Failures)
	})

	t.Run("failures take precedence over fee", func(t *testing.T) {
		withFee := rules
		withFee.RegistrationFee = 10
		applicant := passing
		applicant.CertificateType = ""
		d := Decide(withFee, applicant, false)
		assert.Equal(t, models.StatusApplicationRejected, d.StatusCode)
		assert.False(t, d.RequiresFee)
	})

	t.Run("every failure reported in order", func(t *testing.T) {
		d := Decide(rules, models.ApplicantData{
			TestScores:      map[string]float64{"MATH": 50},
			GraduationYear:  intPtr(2019),
			CertificateType: "GED",
		}, false)
		assert.Equal(t, []string{
			"ENG score missing (minimum 60)",
			"MATH score 50 below minimum 70",
			"gpa missing (minimum 3)",
			"graduation year 2019 before minimum 2022",
			"certificate type GED not in allowed types [IB, National]",
		}, d.Failures)
	})

	t.Run("no rules configured", func(t *testing.T) {
		d := Decide(models.MajorValidationRules{MajorID: "ART"}, models.ApplicantData{}, false)
		assert.Equal(t, models.StatusApplicationSubmitted, d.StatusCode)
	})
}

type majorRuleStoreStub struct {
	rules map[string]*models.MajorValidationRules
	err   error
}

func (s *majorRuleStoreStub) GetValidationRules(_ context.Context, majorID string) (*models.MajorValidationRules, error) {
	if s.err != nil {
		return nil, s.err
	}
	r, ok := s.rules[majorID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return r, nil
}

func newTestAdmissionService(t *testing.T, store *memoryLifecycleStore) *AdmissionService {
	t.Helper()
	majors := &majorRuleStoreStub{rules: map[string]*models.MajorValidationRules{
		"CS":  {MajorID: "CS", MinGPA: floatPtr(3.0)},
		"MED": {MajorID: "MED", RegistrationFee: 250000},
	}}
	return NewAdmissionService(majors, newTestTransitionService(t, store), nil, nil)
}

func TestAdmissionIntakeRejectsBelowMinimum(t *testing.T) {
	store := newMemoryStore()
	svc := newTestAdmissionService(t, store)

	res, err := svc.Intake(context.Background(), IntakeRequest{
		ApplicationID: "app-1",
		MajorID:       "CS",
		Applicant:     models.ApplicantData{GPA: floatPtr(2.8)},
		ActorID:       "registrar-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "APRJ", res.Entity.CurrentStatusCode)
	assert.Equal(t, "TRAR", *res.Record.TriggerCode)
	assert.Equal(t, "registrar-1", *res.Record.ActorID)
	assert.Contains(t, res.Record.Notes, "gpa 2.8 below minimum 3")
	assert.Equal(t, 1, store.recordCount())
}

func TestAdmissionIntakeFeeAndDraft(t *testing.T) {
	store := newMemoryStore()
	svc := newTestAdmissionService(t, store)

	res, err := svc.Intake(context.Background(), IntakeRequest{ApplicationID: "app-2", MajorID: "MED", ActorID: "r"})
	require.NoError(t, err)
	assert.Equal(t, "APPY", res.Entity.CurrentStatusCode)
	assert.Equal(t, "registration fee required", res.Record.Notes)

	res, err = svc.Intake(context.Background(), IntakeRequest{ApplicationID: "app-3", MajorID: "CS", IsDraft: true, ActorID: "r"})
	require.NoError(t, err)
	assert.Equal(t, "APDR", res.Entity.CurrentStatusCode)
	assert.Nil(t, res.Record.TriggerCode)
	assert.Equal(t, "draft created", res.Record.Notes)
}

func TestAdmissionIntakeErrors(t *testing.T) {
	store := newMemoryStore()
	svc := newTestAdmissionService(t, store)

	_, err := svc.Intake(context.Background(), IntakeRequest{MajorID: "CS"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Intake(context.Background(), IntakeRequest{ApplicationID: "app-1", MajorID: "LAW"})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = svc.Intake(context.Background(), IntakeRequest{ApplicationID: "app-1", MajorID: "CS", Applicant: models.ApplicantData{GPA: floatPtr(3.5)}, ActorID: "r"})
	require.NoError(t, err)
	_, err = svc.Intake(context.Background(), IntakeRequest{ApplicationID: "app-1", MajorID: "CS", Applicant: models.ApplicantData{GPA: floatPtr(3.5)}, ActorID: "r"})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	failing := NewAdmissionService(&majorRuleStoreStub{err: errors.New("db down")}, newTestTransitionService(t, store), nil, nil)
	_, err = failing.Intake(context.Background(), IntakeRequest{ApplicationID: "app-9", MajorID: "CS"})
	assert.True(t, errors.Is(err, appErrors.ErrStorage))
}

func TestAdmissionSubmitDraft(t *testing.T) {
	draft := &models.LifecycleEntity{EntityType: models.EntityTypeApplication, EntityID: "app-1", CurrentStatusCode: "APDR"}
	store := newMemoryStore(draft)
	svc := newTestAdmissionService(t, store)

	res, err := svc.SubmitDraft(context.Background(), SubmitDraftRequest{
		ApplicationID: "app-1",
		MajorID:       "CS",
		Applicant:     models.ApplicantData{GPA: floatPtr(3.2)},
		ActorID:       "applicant-portal",
	})
	require.NoError(t, err)
	assert.Equal(t, "APSB", res.Entity.CurrentStatusCode)
	assert.Equal(t, "APDR", *res.Record.FromStatusCode)

	_, err = svc.SubmitDraft(context.Background(), SubmitDraftRequest{
		ApplicationID: "app-1",
		MajorID:       "CS",
		Applicant:     models.ApplicantData{GPA: floatPtr(3.2)},
		ActorID:       "applicant-portal",
	})
	assert.True(t, errors.Is(err, appErrors.ErrNoSuchTransition), "only drafts can be submitted")
}
