package models

import (
	"slices"
	"time"
)

// IndustryAll scopes a rule or workflow to every industry.
const IndustryAll = "all"

// RuleKind selects what a matched rule produces.
type RuleKind string

const (
	RuleKindEscalationAction RuleKind = "escalation_action"
	RuleKindWorkflowTrigger  RuleKind = "workflow_trigger"
)

// Rule is a prioritized, conditionally triggered unit. Escalation rules carry
// actions; workflow-trigger rules reference the workflow to start.
type Rule struct {
	ID             string      `json:"id"                    yaml:"id"                    validate:"required"`
	Name           string      `json:"name"                  yaml:"name"                  validate:"required"`
	IndustryScope  []string    `json:"industry_scope"        yaml:"industry_scope"        validate:"required,min=1,dive,required"`
	Priority       int         `json:"priority"              yaml:"priority"`
	Active         bool        `json:"active"                yaml:"active"`
	Conditions     []Condition `json:"conditions"            yaml:"conditions"            validate:"required,min=1,dive"`
	Kind           RuleKind    `json:"kind"                  yaml:"kind"                  validate:"required,oneof=escalation_action workflow_trigger"`
	Actions        []Action    `json:"actions,omitempty"     yaml:"actions,omitempty"     validate:"dive"`
	WorkflowID     string      `json:"workflow_id,omitempty" yaml:"workflow_id,omitempty"`
	TriggeredCount int64       `json:"triggered_count"       yaml:"-"`
	CreatedAt      time.Time   `json:"created_at"            yaml:"-"`
	UpdatedAt      time.Time   `json:"updated_at"            yaml:"-"`
}

// AppliesTo reports whether the rule is scoped to the given industry.
func (r *Rule) AppliesTo(industry string) bool {
	return slices.Contains(r.IndustryScope, IndustryAll) || slices.Contains(r.IndustryScope, industry)
}

// Clone returns a copy that shares no slices with r.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}

	clone := *r
	clone.IndustryScope = slices.Clone(r.IndustryScope)
	clone.Conditions = slices.Clone(r.Conditions)
	clone.Actions = slices.Clone(r.Actions)

	return &clone
}
