package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/univ-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/univ-lifecycle-api/pkg/errors"
)

// transitionInput describes a single requested status change. A nil ActorID
// marks a system-driven change.
type transitionInput struct {
	TriggerCode string
	ReasonCode  *string
	ActorID     *string
	Notes       string
}

// applyTransition validates a trigger against the workflow graph and computes
// the successor state together with its audit record. The input entity is not
// modified.
func applyTransition(entity *models.LifecycleEntity, catalog *Catalog, in transitionInput, now time.Time) (*models.LifecycleEntity, models.AuditRecord, error) {
	from := entity.CurrentStatusCode
	t, ok := catalog.Transition(from, in.TriggerCode)
	if !ok {
		return nil, models.AuditRecord{}, appErrors.Clone(appErrors.ErrNoSuchTransition,
			fmt.Sprintf("no transition from %s with trigger %s", from, in.TriggerCode))
	}

	reason := ""
	if in.ReasonCode != nil {
		reason = strings.TrimSpace(*in.ReasonCode)
	}
	if t.RequiresReason && reason == "" {
		return nil, models.AuditRecord{}, appErrors.Clone(appErrors.ErrReasonRequired,
			fmt.Sprintf("transition %s/%s requires a reason", from, in.TriggerCode))
	}
	var reasonRow *models.TransitionReason
	if reason != "" {
		r, ok := catalog.Reason(reason)
		if !ok {
			return nil, models.AuditRecord{}, appErrors.Clone(appErrors.ErrUnknownReason,
				fmt.Sprintf("unknown transition reason %s", reason))
		}
		reasonRow = &r
	}

	if !t.IsAutomatic && isBlank(in.ActorID) {
		return nil, models.AuditRecord{}, appErrors.Clone(appErrors.ErrActorRequired,
			fmt.Sprintf("transition %s/%s must be performed by an actor", from, in.TriggerCode))
	}

	next := entity.Clone()
	next.CurrentStatusCode = t.ToStatus
	next.StatusChangedAt = now

	trigger := t.TriggerCode
	record := models.AuditRecord{
		ID:             uuid.NewString(),
		EntityType:     entity.EntityType,
		EntityID:       entity.EntityID,
		FromStatusCode: &from,
		ToStatusCode:   t.ToStatus,
		TriggerCode:    &trigger,
		ActorID:        trimmedPtr(in.ActorID),
		Notes:          transitionNote(reasonRow, in.Notes),
		CreatedAt:      now,
	}
	return next, record, nil
}

// findTriggerTo derives the trigger that moves from into target, preferring
// automatic edges.
func findTriggerTo(catalog *Catalog, from, target string) (models.WorkflowTransition, bool) {
	var fallback *models.WorkflowTransition
	for _, t := range catalog.TransitionsFrom(from) {
		if t.ToStatus != target {
			continue
		}
		if t.IsAutomatic {
			return t, true
		}
		if fallback == nil {
			tt := t
			fallback = &tt
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return models.WorkflowTransition{}, false
}

func transitionNote(reason *models.TransitionReason, extra string) string {
	parts := make([]string, 0, 2)
	if reason != nil {
		label := reason.LabelEN
		if label == "" {
			label = reason.Code
		}
		parts = append(parts, fmt.Sprintf("reason %s (%s): %s", reason.Code, reason.ReasonType, label))
	}
	if extra = strings.TrimSpace(extra); extra != "" {
		parts = append(parts, extra)
	}
	return strings.Join(parts, "; ")
}

func trimmedPtr(v *string) *string {
	if isBlank(v) {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	return &trimmed
}

func isBlank(v *string) bool {
	return v == nil || strings.TrimSpace(*v) == ""
}
