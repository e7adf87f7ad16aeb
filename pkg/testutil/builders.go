// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/dukex/escalate/pkg/models"
	"github.com/google/uuid"
)

// CreateTestRule creates an active escalation rule matching confidence below 60.
func CreateTestRule(overrides ...func(*models.Rule)) *models.Rule {
	rule := &models.Rule{
		ID:            uuid.New().String(),
		Name:          "Low confidence",
		IndustryScope: []string{models.IndustryAll},
		Priority:      1,
		Active:        true,
		Conditions: []models.Condition{
			{Kind: models.ConditionKindConfidence, Operator: models.OperatorLessThan, Value: 60},
		},
		Kind: models.RuleKindEscalationAction,
		Actions: []models.Action{
			{Type: models.ActionTypeAssignAgent, Target: "tier-1", Priority: models.ActionPriorityHigh},
		},
	}

	for _, override := range overrides {
		override(rule)
	}

	return rule
}

// TriggersWorkflow turns the rule into a workflow trigger.
func TriggersWorkflow(workflowID string) func(*models.Rule) {
	return func(r *models.Rule) {
		r.Kind = models.RuleKindWorkflowTrigger
		r.Actions = nil
		r.WorkflowID = workflowID
	}
}

// WithConditions replaces the rule conditions.
func WithConditions(conditions ...models.Condition) func(*models.Rule) {
	return func(r *models.Rule) {
		r.Conditions = conditions
	}
}

// CreateTestWorkflow creates an active workflow from steps. The first step is
// the entry step.
func CreateTestWorkflow(id string, steps ...*models.Step) *models.Workflow {
	workflow := &models.Workflow{
		ID:       id,
		Name:     "Workflow " + id,
		Industry: models.IndustryAll,
		Steps:    make(map[string]*models.Step, len(steps)),
		Active:   true,
	}

	for i, step := range steps {
		if i == 0 {
			workflow.EntryStepID = step.ID
		}

		workflow.Steps[step.ID] = step
	}

	return workflow
}

// CreateTestStep creates a notification step with valid params.
func CreateTestStep(id string, overrides ...func(*models.Step)) *models.Step {
	step := &models.Step{
		ID:   id,
		Name: "Step " + id,
		Kind: models.StepKindNotification,
		Params: map[string]string{
			"channel": "sms",
			"target":  "{{phone}}",
			"message": "Hello {{name}}",
		},
	}

	for _, override := range overrides {
		override(step)
	}

	return step
}

func WithKind(kind models.StepKind, params map[string]string) func(*models.Step) {
	return func(s *models.Step) {
		s.Kind = kind
		s.Params = params
	}
}

func WithNext(next string) func(*models.Step) {
	return func(s *models.Step) {
		s.Next = next
	}
}

func WithOnSuccess(id string) func(*models.Step) {
	return func(s *models.Step) {
		s.OnSuccess = id
	}
}

func WithOnFailure(id string) func(*models.Step) {
	return func(s *models.Step) {
		s.OnFailure = id
	}
}
