package models

import "time"

// StatusCategory groups status codes by lifecycle phase.
type StatusCategory string

const (
	StatusCategoryApplication StatusCategory = "application"
	StatusCategoryReview      StatusCategory = "review"
	StatusCategoryDecision    StatusCategory = "decision"
	StatusCategoryEnrollment  StatusCategory = "enrollment"
	StatusCategoryAcademic    StatusCategory = "academic"
	StatusCategoryGraduation  StatusCategory = "graduation"
)

// Valid reports whether the category is one of the known lifecycle phases.
func (c StatusCategory) Valid() bool {
	switch c {
	case StatusCategoryApplication, StatusCategoryReview, StatusCategoryDecision,
		StatusCategoryEnrollment, StatusCategoryAcademic, StatusCategoryGraduation:
		return true
	}
	return false
}

// ReasonType classifies transition reasons.
type ReasonType string

const (
	ReasonTypeRequestInfo ReasonType = "request_info"
	ReasonTypeReject      ReasonType = "reject"
	ReasonTypeHold        ReasonType = "hold"
)

// ActionKind distinguishes student-level from subject-level actions.
type ActionKind string

const (
	ActionKindStudent ActionKind = "student"
	ActionKindSubject ActionKind = "subject"
)

// StatusCode is a lifecycle state an entity can occupy.
type StatusCode struct {
	Code       string         `db:"code" json:"code"`
	Category   StatusCategory `db:"category" json:"category"`
	LabelEN    string         `db:"label_en" json:"labelEn"`
	LabelLocal string         `db:"label_local" json:"labelLocal"`
	Active     bool           `db:"active" json:"active"`
}

// TransitionReason justifies a transition that requires one.
type TransitionReason struct {
	Code       string     `db:"code" json:"code"`
	ReasonType ReasonType `db:"reason_type" json:"reasonType"`
	LabelEN    string     `db:"label_en" json:"labelEn"`
	LabelLocal string     `db:"label_local" json:"labelLocal"`
}

// WorkflowTransition is a single edge of the status graph.
type WorkflowTransition struct {
	FromStatus     string `db:"from_status" json:"fromStatus"`
	ToStatus       string `db:"to_status" json:"toStatus"`
	TriggerCode    string `db:"trigger_code" json:"triggerCode"`
	IsAutomatic    bool   `db:"is_automatic" json:"isAutomatic"`
	RequiresReason bool   `db:"requires_reason" json:"requiresReason"`
}

// FinancialMilestone is a fraction-of-tuition-paid checkpoint.
type FinancialMilestone struct {
	Code                string  `db:"code" json:"code"`
	PercentageThreshold float64 `db:"percentage_threshold" json:"percentageThreshold"`
	LabelEN             string  `db:"label_en" json:"labelEn"`
	LabelLocal          string  `db:"label_local" json:"labelLocal"`
}

// FinancialHoldReason is a block that can be placed on an entity.
type FinancialHoldReason struct {
	Code       string `db:"code" json:"code"`
	LabelEN    string `db:"label_en" json:"labelEn"`
	LabelLocal string `db:"label_local" json:"labelLocal"`
}

// Action is a discrete operation guarded by holds and milestones.
type Action struct {
	Code     string     `db:"code" json:"code"`
	Kind     ActionKind `db:"kind" json:"kind"`
	Category string     `db:"category" json:"category"`
	LabelEN  string     `db:"label_en" json:"labelEn"`
}

// MilestoneAction enables an action once the milestone is reached.
type MilestoneAction struct {
	MilestoneCode string `db:"milestone_code" json:"milestoneCode" validate:"required"`
	ActionCode    string `db:"action_code" json:"actionCode" validate:"required"`
	IsEnabled     bool   `db:"is_enabled" json:"isEnabled"`
}

// HoldBlockedAction forbids an action while the hold is active.
type HoldBlockedAction struct {
	HoldReasonCode string `db:"hold_reason_code" json:"holdReasonCode" validate:"required"`
	ActionCode     string `db:"action_code" json:"actionCode" validate:"required"`
	IsBlocked      bool   `db:"is_blocked" json:"isBlocked"`
}

// MilestoneStatusImpact moves an entity to a status when the milestone is reached.
type MilestoneStatusImpact struct {
	MilestoneCode    string `db:"milestone_code" json:"milestoneCode" validate:"required"`
	TargetStatusCode string `db:"target_status_code" json:"targetStatusCode" validate:"required"`
	IsAutomatic      bool   `db:"is_automatic" json:"isAutomatic"`
	IsActive         bool   `db:"is_active" json:"isActive"`
}

// CatalogSnapshot is the flat set of rule rows read from storage.
type CatalogSnapshot struct {
	Statuses         []StatusCode            `json:"statuses"`
	Reasons          []TransitionReason      `json:"reasons"`
	Transitions      []WorkflowTransition    `json:"transitions"`
	Milestones       []FinancialMilestone    `json:"milestones"`
	HoldReasons      []FinancialHoldReason   `json:"holdReasons"`
	Actions          []Action                `json:"actions"`
	MilestoneActions []MilestoneAction       `json:"milestoneActions"`
	HoldBlocks       []HoldBlockedAction     `json:"holdBlocks"`
	Impacts          []MilestoneStatusImpact `json:"impacts"`
}

// Entity types governed by the lifecycle engine.
const (
	EntityTypeStudent     = "student"
	EntityTypeApplication = "application"
)

// EntityRef identifies an entity whose lifecycle is tracked.
type EntityRef struct {
	Type string `json:"entityType"`
	ID   string `json:"entityId"`
}

// LifecycleEntity is the lifecycle state of a student or application.
type LifecycleEntity struct {
	EntityType             string    `db:"entity_type" json:"entityType"`
	EntityID               string    `db:"entity_id" json:"entityId"`
	CurrentStatusCode      string    `db:"current_status_code" json:"currentStatusCode"`
	ActiveHoldCodes        []string  `db:"-" json:"activeHoldCodes"`
	FinancialMilestoneCode *string   `db:"financial_milestone_code" json:"financialMilestoneCode,omitempty"`
	StatusChangedAt        time.Time `db:"status_changed_at" json:"statusChangedAt"`
	Version                int64     `db:"version" json:"version"`
}

// Ref returns the entity reference.
func (e *LifecycleEntity) Ref() EntityRef {
	return EntityRef{Type: e.EntityType, ID: e.EntityID}
}

// Clone returns a deep copy so callers can compute a successor state safely.
func (e *LifecycleEntity) Clone() *LifecycleEntity {
	if e == nil {
		return nil
	}
	c := *e
	c.ActiveHoldCodes = append([]string(nil), e.ActiveHoldCodes...)
	if e.FinancialMilestoneCode != nil {
		code := *e.FinancialMilestoneCode
		c.FinancialMilestoneCode = &code
	}
	return &c
}

// AuditRecord is an immutable entry of an entity's status history.
type AuditRecord struct {
	ID             string    `db:"id" json:"id"`
	EntityType     string    `db:"entity_type" json:"entityType"`
	EntityID       string    `db:"entity_id" json:"entityId"`
	FromStatusCode *string   `db:"from_status_code" json:"fromStatusCode,omitempty"`
	ToStatusCode   string    `db:"to_status_code" json:"toStatusCode"`
	TriggerCode    *string   `db:"trigger_code" json:"triggerCode,omitempty"`
	ActorID        *string   `db:"actor_id" json:"actorId,omitempty"`
	Notes          string    `db:"notes" json:"notes"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// PendingAction is a manual transition made available by a milestone.
type PendingAction struct {
	ID               string    `db:"id" json:"id"`
	EntityType       string    `db:"entity_type" json:"entityType"`
	EntityID         string    `db:"entity_id" json:"entityId"`
	MilestoneCode    string    `db:"milestone_code" json:"milestoneCode"`
	TargetStatusCode string    `db:"target_status_code" json:"targetStatusCode"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}

// LifecycleChange is the unit persisted atomically by the lifecycle store:
// the entity successor state guarded by its previous version, the audit
// records describing it and any pending manual actions it surfaced.
type LifecycleChange struct {
	Entity          *LifecycleEntity
	ExpectedVersion int64
	Records         []AuditRecord
	PendingActions  []PendingAction
}

// HistoryFilter paginates audit history queries. A non-positive PageSize
// selects every record.
type HistoryFilter struct {
	Page     int
	PageSize int
}
