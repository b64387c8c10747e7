package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/univ-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/univ-lifecycle-api/pkg/errors"
)

type majorRuleStore interface {
	GetValidationRules(ctx context.Context, majorID string) (*models.MajorValidationRules, error)
}

// IntakeRequest carries the data collected for a new application.
type IntakeRequest struct {
	ApplicationID string               `json:"applicationId" validate:"required"`
	MajorID       string               `json:"majorId" validate:"required"`
	Applicant     models.ApplicantData `json:"applicant"`
	IsDraft       bool                 `json:"isDraft"`
	ActorID       string               `json:"-"`
}

// SubmitDraftRequest re-evaluates a draft application for submission.
type SubmitDraftRequest struct {
	ApplicationID string               `json:"-" validate:"required"`
	MajorID       string               `json:"majorId" validate:"required"`
	Applicant     models.ApplicantData `json:"applicant"`
	ActorID       string               `json:"-"`
}

// IntakeResult is the decision taken at intake and the state it produced.
type IntakeResult struct {
	Decision models.AdmissionDecision `json:"decision"`
	Entity   *models.LifecycleEntity  `json:"entity"`
	Record   models.AuditRecord       `json:"record"`
}

// AdmissionService applies admission decisions to application lifecycles.
type AdmissionService struct {
	majors      majorRuleStore
	transitions *TransitionService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAdmissionService constructs the admission service.
func NewAdmissionService(majors majorRuleStore, transitions *TransitionService, validate *validator.Validate, logger *zap.Logger) *AdmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdmissionService{majors: majors, transitions: transitions, validator: validate, logger: logger}
}

// Intake decides the initial status of a new application and records it.
func (s *AdmissionService) Intake(ctx context.Context, req IntakeRequest) (*IntakeResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid intake payload")
	}
	rules, err := s.loadRules(ctx, req.MajorID)
	if err != nil {
		return nil, err
	}
	decision := Decide(*rules, req.Applicant, req.IsDraft)

	var trigger *string
	if decision.TriggerCode != "" {
		trigger = &decision.TriggerCode
	}
	actor := req.ActorID
	ref := models.EntityRef{Type: models.EntityTypeApplication, ID: req.ApplicationID}
	result, err := s.transitions.Initialize(ctx, ref, decision.StatusCode, trigger, &actor, decisionNote(decision))
	if err != nil {
		return nil, err
	}
	s.logger.Info("application intake decided",
		zap.String("application_id", req.ApplicationID),
		zap.String("major_id", req.MajorID),
		zap.String("status", decision.StatusCode),
		zap.Int("failed_rules", len(decision.Failures)),
	)
	return &IntakeResult{Decision: decision, Entity: result.Entity, Record: result.Record}, nil
}

// SubmitDraft evaluates a draft application and moves it out of draft
// through the workflow graph.
func (s *AdmissionService) SubmitDraft(ctx context.Context, req SubmitDraftRequest) (*IntakeResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid submission payload")
	}
	rules, err := s.loadRules(ctx, req.MajorID)
	if err != nil {
		return nil, err
	}
	decision := Decide(*rules, req.Applicant, false)
	result, err := s.transitions.Apply(ctx, TransitionRequest{
		Entity:      models.EntityRef{Type: models.EntityTypeApplication, ID: req.ApplicationID},
		TriggerCode: decision.TriggerCode,
		ActorID:     req.ActorID,
		Notes:       decisionNote(decision),
	})
	if err != nil {
		return nil, err
	}
	return &IntakeResult{Decision: decision, Entity: result.Entity, Record: result.Record}, nil
}

func (s *AdmissionService) loadRules(ctx context.Context, majorID string) (*models.MajorValidationRules, error) {
	rules, err := s.majors.GetValidationRules(ctx, majorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "major not found")
		}
		return nil, appErrors.WrapAs(appErrors.ErrStorage, err, "failed to load major validation rules")
	}
	return rules, nil
}

func decisionNote(d models.AdmissionDecision) string {
	switch {
	case len(d.Failures) > 0:
		return "admission rules failed: " + strings.Join(d.Failures, "; ")
	case d.RequiresFee:
		return "registration fee required"
	case d.TriggerCode == "":
		return "draft created"
	default:
		return fmt.Sprintf("admission rules passed, status %s", d.StatusCode)
	}
}
