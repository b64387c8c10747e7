package service

import (
	"fmt"
	"strings"

	"github.com/noah-isme/univ-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/univ-lifecycle-api/pkg/errors"
)

type transitionKey struct {
	from    string
	trigger string
}

// Catalog is an immutable, indexed view over the rule rows in force. It is
// never mutated after BuildCatalog returns; reloads build a new value.
type Catalog struct {
	statuses         map[string]models.StatusCode
	reasons          map[string]models.TransitionReason
	milestones       map[string]models.FinancialMilestone
	holdReasons      map[string]models.FinancialHoldReason
	actions          map[string]models.Action
	actionOrder      []string
	transitions      map[transitionKey]models.WorkflowTransition
	transitionsFrom  map[string][]models.WorkflowTransition
	milestoneActions map[string][]models.MilestoneAction
	enablers         map[string][]string
	gated            map[string]bool
	holdBlocks       map[string][]models.HoldBlockedAction
	impacts          map[string][]models.MilestoneStatusImpact
}

// BuildCatalog indexes a snapshot and validates its consistency. Inactive rule
// rows (disabled milestone actions, non-blocking holds, inactive impacts) are
// dropped so that every indexed row is in force. A disabled milestone row
// still marks its action as gated.
func BuildCatalog(snap models.CatalogSnapshot) (*Catalog, error) {
	c := &Catalog{
		statuses:         make(map[string]models.StatusCode, len(snap.Statuses)),
		reasons:          make(map[string]models.TransitionReason, len(snap.Reasons)),
		milestones:       make(map[string]models.FinancialMilestone, len(snap.Milestones)),
		holdReasons:      make(map[string]models.FinancialHoldReason, len(snap.HoldReasons)),
		actions:          make(map[string]models.Action, len(snap.Actions)),
		transitions:      make(map[transitionKey]models.WorkflowTransition, len(snap.Transitions)),
		transitionsFrom:  make(map[string][]models.WorkflowTransition),
		milestoneActions: make(map[string][]models.MilestoneAction),
		enablers:         make(map[string][]string),
		gated:            make(map[string]bool),
		holdBlocks:       make(map[string][]models.HoldBlockedAction),
		impacts:          make(map[string][]models.MilestoneStatusImpact),
	}
	var problems []string
	report := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	for _, s := range snap.Statuses {
		if _, dup := c.statuses[s.Code]; dup {
			report("duplicate status %s", s.Code)
		}
		if !s.Category.Valid() {
			report("status %s has unknown category %q", s.Code, s.Category)
		}
		c.statuses[s.Code] = s
	}
	for _, r := range snap.Reasons {
		c.reasons[r.Code] = r
	}
	for _, m := range snap.Milestones {
		if _, dup := c.milestones[m.Code]; dup {
			report("duplicate milestone %s", m.Code)
		}
		if m.PercentageThreshold < 0 || m.PercentageThreshold > 100 {
			report("milestone %s threshold %g outside 0..100", m.Code, m.PercentageThreshold)
		}
		c.milestones[m.Code] = m
	}
	for _, h := range snap.HoldReasons {
		c.holdReasons[h.Code] = h
	}
	for _, a := range snap.Actions {
		if _, dup := c.actions[a.Code]; !dup {
			c.actionOrder = append(c.actionOrder, a.Code)
		}
		c.actions[a.Code] = a
	}

	for _, t := range snap.Transitions {
		if _, ok := c.statuses[t.FromStatus]; !ok {
			report("transition %s/%s starts at unknown status %s", t.FromStatus, t.TriggerCode, t.FromStatus)
		}
		if _, ok := c.statuses[t.ToStatus]; !ok {
			report("transition %s/%s targets unknown status %s", t.FromStatus, t.TriggerCode, t.ToStatus)
		}
		if strings.TrimSpace(t.TriggerCode) == "" {
			report("transition %s->%s has no trigger", t.FromStatus, t.ToStatus)
		}
		key := transitionKey{from: t.FromStatus, trigger: t.TriggerCode}
		if _, dup := c.transitions[key]; dup {
			report("duplicate transition %s/%s", t.FromStatus, t.TriggerCode)
			continue
		}
		c.transitions[key] = t
		c.transitionsFrom[t.FromStatus] = append(c.transitionsFrom[t.FromStatus], t)
	}

	for _, ma := range snap.MilestoneActions {
		if _, ok := c.actions[ma.ActionCode]; ok {
			c.gated[ma.ActionCode] = true
		}
		if !ma.IsEnabled {
			continue
		}
		if _, ok := c.milestones[ma.MilestoneCode]; !ok {
			report("milestone action references unknown milestone %s", ma.MilestoneCode)
		}
		if _, ok := c.actions[ma.ActionCode]; !ok {
			report("milestone action references unknown action %s", ma.ActionCode)
		}
		c.milestoneActions[ma.MilestoneCode] = append(c.milestoneActions[ma.MilestoneCode], ma)
		c.enablers[ma.ActionCode] = append(c.enablers[ma.ActionCode], ma.MilestoneCode)
	}

	for _, hb := range snap.HoldBlocks {
		if !hb.IsBlocked {
			continue
		}
		if _, ok := c.holdReasons[hb.HoldReasonCode]; !ok {
			report("hold block references unknown hold %s", hb.HoldReasonCode)
		}
		if _, ok := c.actions[hb.ActionCode]; !ok {
			report("hold block references unknown action %s", hb.ActionCode)
		}
		c.holdBlocks[hb.HoldReasonCode] = append(c.holdBlocks[hb.HoldReasonCode], hb)
	}

	automatic := make(map[string]string)
	for _, im := range snap.Impacts {
		if !im.IsActive {
			continue
		}
		if _, ok := c.milestones[im.MilestoneCode]; !ok {
			report("status impact references unknown milestone %s", im.MilestoneCode)
		}
		target, ok := c.statuses[im.TargetStatusCode]
		if !ok {
			report("status impact of %s targets unknown status %s", im.MilestoneCode, im.TargetStatusCode)
		}
		if im.IsAutomatic && ok {
			key := im.MilestoneCode + "|" + string(target.Category)
			if prev, dup := automatic[key]; dup {
				report("milestone %s has conflicting automatic impacts %s and %s in category %s",
					im.MilestoneCode, prev, im.TargetStatusCode, target.Category)
			}
			automatic[key] = im.TargetStatusCode
		}
		c.impacts[im.MilestoneCode] = append(c.impacts[im.MilestoneCode], im)
	}

	if len(problems) > 0 {
		return nil, appErrors.Clone(appErrors.ErrCatalogInvalid, "rule catalog is inconsistent: "+strings.Join(problems, "; "))
	}
	return c, nil
}

// Transition returns the edge leaving from for trigger.
func (c *Catalog) Transition(from, trigger string) (models.WorkflowTransition, bool) {
	t, ok := c.transitions[transitionKey{from: from, trigger: trigger}]
	return t, ok
}

// TransitionsFrom lists the edges leaving a status in catalog order.
func (c *Catalog) TransitionsFrom(from string) []models.WorkflowTransition {
	return append([]models.WorkflowTransition(nil), c.transitionsFrom[from]...)
}

// Status looks up a status code.
func (c *Catalog) Status(code string) (models.StatusCode, bool) {
	s, ok := c.statuses[code]
	return s, ok
}

// Reason looks up a transition reason.
func (c *Catalog) Reason(code string) (models.TransitionReason, bool) {
	r, ok := c.reasons[code]
	return r, ok
}

// Milestone looks up a financial milestone.
func (c *Catalog) Milestone(code string) (models.FinancialMilestone, bool) {
	m, ok := c.milestones[code]
	return m, ok
}

// HoldReason looks up a financial hold reason.
func (c *Catalog) HoldReason(code string) (models.FinancialHoldReason, bool) {
	h, ok := c.holdReasons[code]
	return h, ok
}

// Actions lists catalog actions in load order.
func (c *Catalog) Actions() []models.Action {
	out := make([]models.Action, 0, len(c.actionOrder))
	for _, code := range c.actionOrder {
		out = append(out, c.actions[code])
	}
	return out
}

// MilestoneActions returns enabled action rows for a milestone.
func (c *Catalog) MilestoneActions(milestone string) []models.MilestoneAction {
	return c.milestoneActions[milestone]
}

// HoldBlocks returns blocking rows for a hold reason.
func (c *Catalog) HoldBlocks(hold string) []models.HoldBlockedAction {
	return c.holdBlocks[hold]
}

// Impacts returns active status impacts for a milestone.
func (c *Catalog) Impacts(milestone string) []models.MilestoneStatusImpact {
	return c.impacts[milestone]
}

// IsGated reports whether any milestone row, enabled or not, governs the
// action. Disabling the last enabling row closes the gate.
func (c *Catalog) IsGated(action string) bool {
	return c.gated[action]
}

// EnablingMilestones lists the milestones whose enabled rows unlock the action.
func (c *Catalog) EnablingMilestones(action string) []string {
	return c.enablers[action]
}

// milestoneThreshold returns the threshold reached by an entity, or -1 when
// no milestone has been reached or the code is unknown.
func (c *Catalog) milestoneThreshold(code *string) float64 {
	if code == nil || *code == "" {
		return -1
	}
	m, ok := c.milestones[*code]
	if !ok {
		return -1
	}
	return m.PercentageThreshold
}
