package workflow_test

import (
	"context"
	"testing"

	"github.com/dukex/escalate/pkg/events"
	"github.com/dukex/escalate/pkg/mocks"
	"github.com/dukex/escalate/pkg/models"
	"github.com/dukex/escalate/pkg/registry"
	"github.com/dukex/escalate/pkg/testutil"
	"github.com/dukex/escalate/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T, rules ...*models.Rule) *registry.Registry {
	t.Helper()

	reg := registry.New(discardLogger())
	for _, rule := range rules {
		require.NoError(t, reg.RegisterRule(rule))
	}

	return reg
}

func TestTriggerMatcher_Match(t *testing.T) {
	lowConfidence := testutil.CreateTestRule(func(r *models.Rule) {
		r.ID = "low-confidence"
		r.Priority = 10
	})
	manager := testutil.CreateTestRule(
		func(r *models.Rule) { r.ID = "manager" },
		testutil.WithConditions(models.Condition{
			Kind: models.ConditionKindKeyword, Operator: models.OperatorContains, Value: "manager,supervisor",
		}),
		testutil.TriggersWorkflow("handoff"),
	)
	vip := testutil.CreateTestRule(
		func(r *models.Rule) { r.ID = "vip" },
		testutil.WithConditions(models.Condition{
			Kind: models.ConditionKindCustomerTier, Operator: models.OperatorEquals, Value: "vip",
		}),
	)

	reg := newRegistry(t, lowConfidence, manager, vip)
	matcher := workflow.NewTriggerMatcher(reg, nil, discardLogger())

	results := matcher.Match(context.Background(), models.Context{
		models.ContextConfidence: 45,
		models.ContextMessage:    "let me speak to your manager",
	}, "banking")

	require.Len(t, results, 2)

	assert.Equal(t, "low-confidence", results[0].Rule.ID)
	assert.False(t, results[0].IsWorkflowTrigger())
	assert.Len(t, results[0].Actions, 1)
	assert.True(t, results[0].Trace.Result)
	assert.Equal(t, int64(1), results[0].Rule.TriggeredCount)

	assert.Equal(t, "manager", results[1].Rule.ID)
	assert.True(t, results[1].IsWorkflowTrigger())
	assert.Equal(t, "handoff", results[1].WorkflowID)
	require.Len(t, results[1].Trace.Conditions, 1)
	assert.True(t, results[1].Trace.Conditions[0].Outcome)

	stored, err := reg.Rule("vip")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.TriggeredCount)

	stored, err = reg.Rule("manager")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.TriggeredCount)
}

func TestTriggerMatcher_Match_ConfidenceScenario(t *testing.T) {
	reg := newRegistry(t, testutil.CreateTestRule())
	matcher := workflow.NewTriggerMatcher(reg, nil, discardLogger())

	assert.Len(t, matcher.Match(context.Background(), models.Context{models.ContextConfidence: 45}, "telecom"), 1)
	assert.Empty(t, matcher.Match(context.Background(), models.Context{models.ContextConfidence: 75}, "telecom"))
	assert.Empty(t, matcher.Match(context.Background(), models.Context{}, "telecom"))
}

func TestTriggerMatcher_Match_IndustryScope(t *testing.T) {
	banking := testutil.CreateTestRule(func(r *models.Rule) {
		r.ID = "banking-only"
		r.IndustryScope = []string{"banking"}
	})

	reg := newRegistry(t, banking)
	matcher := workflow.NewTriggerMatcher(reg, nil, discardLogger())
	signal := models.Context{models.ContextConfidence: 10}

	assert.Len(t, matcher.Match(context.Background(), signal, "banking"), 1)
	assert.Empty(t, matcher.Match(context.Background(), signal, "retail"))
}

func TestTriggerMatcher_Match_PublishesRuleMatched(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "low-confidence", mock.MatchedBy(func(event events.RuleMatched) bool {
		return event.RuleID == "low-confidence" && event.Industry == "banking" && event.Triggered == 1
	})).Return(nil).Once()

	reg := newRegistry(t, testutil.CreateTestRule(func(r *models.Rule) { r.ID = "low-confidence" }))
	matcher := workflow.NewTriggerMatcher(reg, bus, discardLogger())

	results := matcher.Match(context.Background(), models.Context{models.ContextConfidence: 20}, "banking")

	require.Len(t, results, 1)
	bus.AssertExpectations(t)
}
