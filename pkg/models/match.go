package models

// ConditionTrace records how a single condition evaluated.
type ConditionTrace struct {
	Index     int           `json:"index"`
	Kind      ConditionKind `json:"kind"`
	Field     string        `json:"field"`
	Operator  Operator      `json:"operator"`
	Expected  any           `json:"expected"`
	Actual    any           `json:"actual,omitempty"`
	Present   bool          `json:"present"`
	Connector Connector     `json:"connector,omitempty"`
	Outcome   bool          `json:"outcome"`
}

// MatchTrace is the audit record of a rule evaluation.
type MatchTrace struct {
	RuleID     string           `json:"rule_id"`
	Conditions []ConditionTrace `json:"conditions"`
	Result     bool             `json:"result"`
}

// MatchResult is a rule that matched a context, together with its payload.
type MatchResult struct {
	Rule       *Rule      `json:"rule"`
	Trace      MatchTrace `json:"trace"`
	Actions    []Action   `json:"actions,omitempty"`
	WorkflowID string     `json:"workflow_id,omitempty"`
}

// IsWorkflowTrigger reports whether the match references a workflow to start.
func (m MatchResult) IsWorkflowTrigger() bool {
	return m.Rule != nil && m.Rule.Kind == RuleKindWorkflowTrigger
}
