// Package models defines the domain types for conversation escalation rules and workflows.
package models

import (
	"maps"
	"time"
)

// Workflow is a directed graph of steps with a single entry point.
type Workflow struct {
	ID             string           `json:"id"                   yaml:"id"                   validate:"required"`
	Name           string           `json:"name"                 yaml:"name"                 validate:"required"`
	Description    string           `json:"description,omitempty" yaml:"description,omitempty"`
	Industry       string           `json:"industry"             yaml:"industry"             validate:"required"`
	Steps          map[string]*Step `json:"steps"                yaml:"steps"                validate:"required,min=1"`
	EntryStepID    string           `json:"entry_step_id"        yaml:"entry_step_id"        validate:"required"`
	Active         bool             `json:"active"               yaml:"active"`
	Variables      map[string]any   `json:"variables,omitempty"  yaml:"variables,omitempty"`
	ExecutionCount int64            `json:"execution_count"      yaml:"-"`
	CreatedAt      time.Time        `json:"created_at"           yaml:"-"`
	UpdatedAt      time.Time        `json:"updated_at"           yaml:"-"`
}

// AppliesTo reports whether the workflow serves the given industry.
func (w *Workflow) AppliesTo(industry string) bool {
	return w.Industry == IndustryAll || w.Industry == industry
}

// Step returns the step with the given id.
func (w *Workflow) Step(id string) (*Step, bool) {
	step, ok := w.Steps[id]
	if !ok || step == nil {
		return nil, false
	}

	return step, true
}

// Clone returns a deep copy of the workflow's steps and default variables.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}

	clone := *w
	clone.Variables = maps.Clone(w.Variables)

	if w.Steps != nil {
		clone.Steps = make(map[string]*Step, len(w.Steps))
		for id, step := range w.Steps {
			clone.Steps[id] = step.Clone()
		}
	}

	return &clone
}
