package registry

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/dukex/escalate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func escalationRule(id string, priority int, scope ...string) *models.Rule {
	if len(scope) == 0 {
		scope = []string{models.IndustryAll}
	}

	return &models.Rule{
		ID:            id,
		Name:          "rule " + id,
		IndustryScope: scope,
		Priority:      priority,
		Active:        true,
		Kind:          models.RuleKindEscalationAction,
		Conditions: []models.Condition{
			{Kind: models.ConditionKindConfidence, Operator: models.OperatorLessThan, Value: 60},
		},
		Actions: []models.Action{
			{Type: models.ActionTypeAssignAgent, Target: "tier-2", Priority: models.ActionPriorityHigh},
		},
	}
}

func twoStepWorkflow(id string) *models.Workflow {
	return &models.Workflow{
		ID:          id,
		Name:        "workflow " + id,
		Industry:    "banking",
		Active:      true,
		EntryStepID: "check",
		Steps: map[string]*models.Step{
			"check": {
				ID:        "check",
				Kind:      models.StepKindDecision,
				Params:    map[string]string{"field": "monthlyIncome", "operator": "greater_than", "value": "2000"},
				OnSuccess: "notify",
			},
			"notify": {
				ID:     "notify",
				Kind:   models.StepKindNotification,
				Params: map[string]string{"channel": "sms", "target": "{{phone}}", "message": "approved"},
			},
		},
	}
}

func TestRegistry_RegisterRule(t *testing.T) {
	registry := newTestRegistry()

	require.NoError(t, registry.RegisterRule(escalationRule("r1", 10)))

	rule, err := registry.Rule("r1")
	require.NoError(t, err)
	assert.Equal(t, "rule r1", rule.Name)
	assert.False(t, rule.CreatedAt.IsZero())

	_, err = registry.Rule("missing")
	require.ErrorIs(t, err, models.ErrRuleNotFound)
}

func TestRegistry_RegisterRule_CollectsAllViolations(t *testing.T) {
	registry := newTestRegistry()

	rule := &models.Rule{
		ID:   "bad",
		Kind: models.RuleKindEscalationAction,
		Conditions: []models.Condition{
			{Kind: "mood", Operator: models.OperatorLessThan, Value: 1},
			{Kind: models.ConditionKindCustom, Operator: models.OperatorEquals},
			{Kind: models.ConditionKindKeyword, Operator: models.OperatorContains, Value: " , "},
		},
	}

	err := registry.RegisterRule(rule)
	require.ErrorIs(t, err, models.ErrValidation)

	var validationErr *models.ValidationError
	require.ErrorAs(t, err, &validationErr)

	assert.Contains(t, validationErr.Violations, "name: is required")
	assert.Contains(t, validationErr.Violations, "industry_scope: is required")
	assert.Contains(t, validationErr.Violations, "conditions[1].field: is required")
	assert.Contains(t, validationErr.Violations, "conditions[1].value: is required")
	assert.Contains(t, validationErr.Violations, "conditions[2].value: must list at least one keyword")
	assert.Contains(t, validationErr.Violations, "actions: escalation rules need at least one action")
	assert.GreaterOrEqual(t, len(validationErr.Violations), 7)

	assert.Empty(t, registry.Rules(), "nothing is partially registered")
}

func TestRegistry_RegisterRule_WorkflowTriggerNeedsReference(t *testing.T) {
	registry := newTestRegistry()

	rule := escalationRule("wt", 1)
	rule.Kind = models.RuleKindWorkflowTrigger
	rule.Actions = nil

	err := registry.RegisterRule(rule)
	require.ErrorIs(t, err, models.ErrValidation)
	assert.Contains(t, err.Error(), "workflow_id")

	rule.WorkflowID = "loan-review"
	require.NoError(t, registry.RegisterRule(rule))
}

func TestRegistry_ReRegisterKeepsCountersAndOrder(t *testing.T) {
	registry := newTestRegistry()

	require.NoError(t, registry.RegisterRule(escalationRule("first", 5)))
	require.NoError(t, registry.RegisterRule(escalationRule("second", 5)))

	_, err := registry.IncrementTriggered("first")
	require.NoError(t, err)
	count, err := registry.IncrementTriggered("first")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	updated := escalationRule("first", 5)
	updated.Name = "renamed"
	require.NoError(t, registry.RegisterRule(updated))

	rule, err := registry.Rule("first")
	require.NoError(t, err)
	assert.Equal(t, "renamed", rule.Name)
	assert.Equal(t, int64(2), rule.TriggeredCount)

	active := registry.ActiveRules("banking")
	require.Len(t, active, 2)
	assert.Equal(t, "first", active[0].ID)
	assert.Equal(t, "second", active[1].ID)

	require.NoError(t, registry.RegisterWorkflow(twoStepWorkflow("wf")))
	_, err = registry.IncrementExecutions("wf")
	require.NoError(t, err)
	require.NoError(t, registry.RegisterWorkflow(twoStepWorkflow("wf")))

	workflow, err := registry.Workflow("wf")
	require.NoError(t, err)
	assert.Equal(t, int64(1), workflow.ExecutionCount)
}

func TestRegistry_ActiveRulesOrderingAndScope(t *testing.T) {
	registry := newTestRegistry()

	require.NoError(t, registry.RegisterRule(escalationRule("low", 1)))
	require.NoError(t, registry.RegisterRule(escalationRule("banking-high", 10, "banking")))
	require.NoError(t, registry.RegisterRule(escalationRule("telecom", 50, "telecom")))
	require.NoError(t, registry.RegisterRule(escalationRule("mid-a", 5)))
	require.NoError(t, registry.RegisterRule(escalationRule("mid-b", 5, "banking", "insurance")))

	inactive := escalationRule("inactive", 100)
	inactive.Active = false
	require.NoError(t, registry.RegisterRule(inactive))

	ids := func(rules []*models.Rule) []string {
		out := make([]string, len(rules))
		for i, rule := range rules {
			out[i] = rule.ID
		}

		return out
	}

	assert.Equal(t, []string{"banking-high", "mid-a", "mid-b", "low"}, ids(registry.ActiveRules("banking")))
	assert.Equal(t, []string{"telecom", "mid-a", "low"}, ids(registry.ActiveRules("telecom")))
	assert.Len(t, registry.Rules(), 6)

	_, err := registry.SetRuleActive("inactive", true)
	require.NoError(t, err)
	assert.Equal(t, "inactive", registry.ActiveRules("banking")[0].ID)

	_, err = registry.SetRuleActive("missing", true)
	require.ErrorIs(t, err, models.ErrRuleNotFound)
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	registry := newTestRegistry()
	rule := escalationRule("r", 1)

	require.NoError(t, registry.RegisterRule(rule))

	rule.Name = "mutated after register"

	stored, err := registry.Rule("r")
	require.NoError(t, err)
	assert.Equal(t, "rule r", stored.Name)

	stored.Conditions[0].Value = 99

	again, err := registry.Rule("r")
	require.NoError(t, err)
	assert.Equal(t, 60, again.Conditions[0].Value)
}

func TestRegistry_RegisterWorkflow(t *testing.T) {
	registry := newTestRegistry()

	require.NoError(t, registry.RegisterWorkflow(twoStepWorkflow("wf")))

	workflow, err := registry.Workflow("wf")
	require.NoError(t, err)
	assert.Len(t, workflow.Steps, 2)

	assert.Len(t, registry.ActiveWorkflows("banking"), 1)
	assert.Empty(t, registry.ActiveWorkflows("telecom"))

	_, err = registry.SetWorkflowActive("wf", false)
	require.NoError(t, err)
	assert.Empty(t, registry.ActiveWorkflows("banking"))
	assert.Len(t, registry.Workflows(), 1)

	_, err = registry.Workflow("missing")
	require.ErrorIs(t, err, models.ErrWorkflowNotFound)
}

func TestRegistry_RegisterWorkflow_FillsStepIDs(t *testing.T) {
	registry := newTestRegistry()

	workflow := twoStepWorkflow("wf")
	workflow.Steps["notify"].ID = ""

	require.NoError(t, registry.RegisterWorkflow(workflow))

	stored, err := registry.Workflow("wf")
	require.NoError(t, err)
	assert.Equal(t, "notify", stored.Steps["notify"].ID)
	assert.Empty(t, workflow.Steps["notify"].ID, "caller's definition is not modified")
}

func TestRegistry_RegisterWorkflow_Violations(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*models.Workflow)
		expected []string
	}{
		{
			name:     "missing entry step",
			mutate:   func(w *models.Workflow) { w.EntryStepID = "nope" },
			expected: []string{`entry_step_id: step "nope" does not exist`},
		},
		{
			name: "dangling edges",
			mutate: func(w *models.Workflow) {
				w.Steps["check"].Next = "ghost"
				w.Steps["check"].OnFailure = "phantom"
			},
			expected: []string{
				`steps.check.next: step "ghost" does not exist`,
				`steps.check.on_failure: step "phantom" does not exist`,
			},
		},
		{
			name:     "key and id disagree",
			mutate:   func(w *models.Workflow) { w.Steps["notify"].ID = "other" },
			expected: []string{`steps.notify.id: "other" does not match its key`},
		},
		{
			name:     "unknown step kind",
			mutate:   func(w *models.Workflow) { w.Steps["notify"].Kind = "sms" },
			expected: []string{"steps.notify.kind: sms is not one of [ai_response api_call data_fetch decision notification wait]"},
		},
		{
			name:     "nil step",
			mutate:   func(w *models.Workflow) { w.Steps["empty"] = nil },
			expected: []string{"steps.empty: step is required"},
		},
		{
			name:     "missing params",
			mutate:   func(w *models.Workflow) { delete(w.Steps["notify"].Params, "message") },
			expected: []string{"steps.notify.params: message is required"},
		},
		{
			name:     "bad decision operator",
			mutate:   func(w *models.Workflow) { w.Steps["check"].Params["operator"] = "between" },
			expected: []string{"steps.check.params.operator"},
		},
		{
			name: "missing name and industry",
			mutate: func(w *models.Workflow) {
				w.Name = ""
				w.Industry = ""
			},
			expected: []string{"name: is required", "industry: is required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := newTestRegistry()
			workflow := twoStepWorkflow("wf")
			tt.mutate(workflow)

			err := registry.RegisterWorkflow(workflow)
			require.ErrorIs(t, err, models.ErrValidation)

			var validationErr *models.ValidationError
			require.ErrorAs(t, err, &validationErr)

			joined := fmt.Sprint(validationErr.Violations)
			for _, expected := range tt.expected {
				assert.Contains(t, joined, expected)
			}

			assert.Empty(t, registry.Workflows())
		})
	}
}

func TestRegistry_WaitDurationAcceptsTemplates(t *testing.T) {
	registry := newTestRegistry()

	workflow := &models.Workflow{
		ID:          "wait",
		Name:        "wait",
		Industry:    models.IndustryAll,
		EntryStepID: "pause",
		Steps: map[string]*models.Step{
			"pause": {Kind: models.StepKindWait, Params: map[string]string{"duration": "{{delay}}"}},
		},
	}
	require.NoError(t, registry.RegisterWorkflow(workflow))

	workflow.Steps["pause"].Params["duration"] = "soon"
	require.ErrorIs(t, registry.RegisterWorkflow(workflow), models.ErrValidation)
}

func TestRegistry_ConcurrentIncrements(t *testing.T) {
	registry := newTestRegistry()
	require.NoError(t, registry.RegisterRule(escalationRule("r", 1)))

	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, _ = registry.IncrementTriggered("r")
			_ = registry.ActiveRules("banking")
		}()
	}

	wg.Wait()

	rule, err := registry.Rule("r")
	require.NoError(t, err)
	assert.Equal(t, int64(50), rule.TriggeredCount)

	_, err = registry.IncrementTriggered("missing")
	require.ErrorIs(t, err, models.ErrRuleNotFound)
	_, err = registry.IncrementExecutions("missing")
	require.ErrorIs(t, err, models.ErrWorkflowNotFound)
}
