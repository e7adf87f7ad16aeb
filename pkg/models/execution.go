package models

import (
	"maps"
	"slices"
	"time"
)

// ExecutionStatus is the lifecycle state of an Execution.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusPaused    ExecutionStatus = "paused"
)

// IsTerminal reports whether no further transitions may leave the status.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// StepStatus is the result recorded for a single step run.
type StepStatus string

const (
	StepStatusSuccess StepStatus = "success"
	StepStatusFailed  StepStatus = "failed"
	StepStatusSkipped StepStatus = "skipped"
)

// StepOutcome is one entry of an execution's append-only log.
type StepOutcome struct {
	StepID    string     `json:"step_id"`
	Name      string     `json:"name"`
	Kind      StepKind   `json:"kind"`
	Status    StepStatus `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	Output    any        `json:"output,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Execution is one run of a workflow for a conversation.
type Execution struct {
	ID             string          `json:"id"`
	WorkflowID     string          `json:"workflow_id"`
	ConversationID string          `json:"conversation_id"`
	Status         ExecutionStatus `json:"status"`
	CurrentStepID  string          `json:"current_step_id,omitempty"`
	Variables      map[string]any  `json:"variables"`
	Log            []StepOutcome   `json:"log"`
	Output         any             `json:"output,omitempty"`
	Error          string          `json:"error,omitempty"`
	FailedStepID   string          `json:"failed_step_id,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// Clone returns a copy of e whose variables and log are not shared with e.
// Variable values and step outputs are copied shallowly.
func (e *Execution) Clone() *Execution {
	if e == nil {
		return nil
	}

	clone := *e
	clone.Variables = maps.Clone(e.Variables)
	clone.Log = slices.Clone(e.Log)

	if e.CompletedAt != nil {
		completedAt := *e.CompletedAt
		clone.CompletedAt = &completedAt
	}

	return &clone
}

// ExecutionFilter narrows execution listings. At least one field should be set.
type ExecutionFilter struct {
	WorkflowID     string `json:"workflow_id,omitempty"     query:"workflow_id"`
	ConversationID string `json:"conversation_id,omitempty" query:"conversation_id"`
}
