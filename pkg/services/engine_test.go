package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/escalate/pkg/handlers"
	"github.com/dukex/escalate/pkg/models"
	"github.com/dukex/escalate/pkg/persistence/memory"
	"github.com/dukex/escalate/pkg/protocol"
	"github.com/dukex/escalate/pkg/registry"
	"github.com/dukex/escalate/pkg/services"
	"github.com/dukex/escalate/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, config services.EngineConfig) *services.Engine {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if config.Registry == nil {
		config.Registry = registry.New(logger)
	}

	if config.Ledger == nil {
		config.Ledger = memory.NewLedger()
	}

	if config.Handlers.Notification == nil {
		config.Handlers.Notification = protocol.StepHandlerFunc(func(_ context.Context, params map[string]string, _ map[string]any) (any, map[string]any, error) {
			return params["message"], nil, nil
		})
	}

	config.Handlers.Decision = handlers.Decision{}
	config.Logger = logger

	return services.NewEngine(config)
}

func loanWorkflow() *models.Workflow {
	return testutil.CreateTestWorkflow("loan",
		testutil.CreateTestStep("check",
			testutil.WithKind(models.StepKindDecision, map[string]string{
				"field": "monthlyIncome", "operator": "greater_than", "value": "2000",
			}),
			testutil.WithOnSuccess("approve"),
			testutil.WithOnFailure("reject")),
		testutil.CreateTestStep("approve", testutil.WithKind(models.StepKindNotification, map[string]string{
			"channel": "sms", "target": "{{phone}}", "message": "approved",
		})),
		testutil.CreateTestStep("reject", testutil.WithKind(models.StepKindNotification, map[string]string{
			"channel": "sms", "target": "{{phone}}", "message": "rejected",
		})),
	)
}

func TestEngine_RegisterGeneratesIDs(t *testing.T) {
	engine := newEngine(t, services.EngineConfig{})
	ctx := context.Background()

	wf := loanWorkflow()
	wf.ID = ""
	require.NoError(t, engine.RegisterWorkflow(ctx, wf))
	assert.NotEmpty(t, wf.ID)

	rule := testutil.CreateTestRule(func(r *models.Rule) { r.ID = "" })
	require.NoError(t, engine.RegisterRule(ctx, rule))
	assert.NotEmpty(t, rule.ID)

	require.ErrorIs(t, engine.RegisterRule(ctx, nil), services.ErrRuleNil)
	require.ErrorIs(t, engine.RegisterWorkflow(ctx, nil), services.ErrWorkflowNil)

	invalid := testutil.CreateTestRule(testutil.WithConditions())
	err := engine.RegisterRule(ctx, invalid)
	assert.True(t, services.IsValidationError(err))
}

func TestEngine_EvaluateTriggers(t *testing.T) {
	engine := newEngine(t, services.EngineConfig{})
	ctx := context.Background()

	require.NoError(t, engine.RegisterWorkflow(ctx, loanWorkflow()))
	require.NoError(t, engine.RegisterRule(ctx, testutil.CreateTestRule(func(r *models.Rule) { r.ID = "escalate" })))
	require.NoError(t, engine.RegisterRule(ctx, testutil.CreateTestRule(
		func(r *models.Rule) { r.ID = "loan-request" },
		testutil.WithConditions(models.Condition{Kind: models.ConditionKindKeyword, Operator: models.OperatorContains, Value: "loan"}),
		testutil.TriggersWorkflow("loan"),
	)))

	matches, err := engine.EvaluateTriggers(ctx, models.Context{
		models.ContextConfidence: 30,
		models.ContextMessage:    "I need a loan",
	}, "banking")
	require.NoError(t, err)
	require.Len(t, matches, 2)

	executions, err := engine.ListExecutions(ctx, models.ExecutionFilter{WorkflowID: "loan"})
	require.NoError(t, err)
	assert.Empty(t, executions)

	_, err = engine.EvaluateTriggers(ctx, models.Context{}, "")
	assert.True(t, services.IsValidationError(err))
}

func TestEngine_HandleEvent(t *testing.T) {
	engine := newEngine(t, services.EngineConfig{})
	ctx := context.Background()

	require.NoError(t, engine.RegisterWorkflow(ctx, loanWorkflow()))
	require.NoError(t, engine.RegisterRule(ctx, testutil.CreateTestRule(func(r *models.Rule) { r.ID = "escalate" })))
	require.NoError(t, engine.RegisterRule(ctx, testutil.CreateTestRule(
		func(r *models.Rule) { r.ID = "loan-request" },
		testutil.WithConditions(models.Condition{Kind: models.ConditionKindKeyword, Operator: models.OperatorContains, Value: "loan"}),
		testutil.TriggersWorkflow("loan"),
	)))

	outcome, err := engine.HandleEvent(ctx, models.ConversationEvent{
		ConversationID: "conv-1",
		Industry:       "banking",
		Context:        models.Context{models.ContextConfidence: 30, models.ContextMessage: "loan please"},
		Variables:      map[string]any{"monthlyIncome": 2500, "phone": "+233200000000"},
	})
	require.NoError(t, err)

	require.Len(t, outcome.Matches, 2)
	require.Len(t, outcome.Actions, 1)
	assert.Equal(t, models.ActionTypeAssignAgent, outcome.Actions[0].Type)

	require.Len(t, outcome.Executions, 1)
	execution := outcome.Executions[0]
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, "approved", execution.Output)

	wf, err := engine.Workflow(ctx, "loan")
	require.NoError(t, err)
	assert.Equal(t, int64(1), wf.ExecutionCount)

	stored, err := engine.GetExecution(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, execution.Log, stored.Log)

	listed, err := engine.ListExecutions(ctx, models.ExecutionFilter{WorkflowID: "loan", ConversationID: "conv-1"})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	listed, err = engine.ListExecutions(ctx, models.ExecutionFilter{WorkflowID: "loan", ConversationID: "conv-2"})
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestEngine_HandleEvent_UsesContextProvider(t *testing.T) {
	engine := newEngine(t, services.EngineConfig{
		Contexts: protocol.StaticContextProvider{
			"conv-1": models.Context{models.ContextConfidence: 10},
		},
	})
	ctx := context.Background()

	require.NoError(t, engine.RegisterRule(ctx, testutil.CreateTestRule()))

	outcome, err := engine.HandleEvent(ctx, models.ConversationEvent{ConversationID: "conv-1", Industry: "telecom"})
	require.NoError(t, err)
	assert.Len(t, outcome.Actions, 1)
}

func TestEngine_HandleEvent_ReportsStartFailures(t *testing.T) {
	engine := newEngine(t, services.EngineConfig{})
	ctx := context.Background()

	wf := loanWorkflow()
	require.NoError(t, engine.RegisterWorkflow(ctx, wf))
	_, err := engine.SetWorkflowActive(ctx, "loan", false)
	require.NoError(t, err)

	require.NoError(t, engine.RegisterRule(ctx, testutil.CreateTestRule(testutil.TriggersWorkflow("loan"))))
	require.NoError(t, engine.RegisterRule(ctx, testutil.CreateTestRule(testutil.TriggersWorkflow("missing"))))

	outcome, err := engine.HandleEvent(ctx, models.ConversationEvent{
		ConversationID: "conv-1",
		Industry:       "banking",
		Context:        models.Context{models.ContextConfidence: 5},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrWorkflowInactive)
	assert.ErrorIs(t, err, models.ErrWorkflowNotFound)
	require.NotNil(t, outcome)
	assert.Len(t, outcome.Matches, 2)
	assert.Empty(t, outcome.Executions)

	_, err = engine.HandleEvent(ctx, models.ConversationEvent{Industry: "banking"})
	require.ErrorIs(t, err, services.ErrEmptyConversationID)
}

func TestEngine_StartExecution_Errors(t *testing.T) {
	engine := newEngine(t, services.EngineConfig{})
	ctx := context.Background()

	_, err := engine.StartExecution(ctx, "ghost", "conv-1", nil)
	assert.True(t, services.IsNotFoundError(err))

	require.NoError(t, engine.RegisterWorkflow(ctx, loanWorkflow()))
	_, err = engine.SetWorkflowActive(ctx, "loan", false)
	require.NoError(t, err)

	_, err = engine.StartExecution(ctx, "loan", "conv-1", nil)
	assert.True(t, services.IsConflictError(err))

	_, err = engine.StartExecution(ctx, "loan", "", nil)
	assert.True(t, services.IsValidationError(err))

	_, err = engine.ListExecutions(ctx, models.ExecutionFilter{})
	assert.True(t, services.IsValidationError(err))
}

func TestEngine_PauseResumeAndCancel(t *testing.T) {
	engine := newEngine(t, services.EngineConfig{Handlers: protocol.Handlers{Wait: handlers.Wait{}}})
	ctx := context.Background()

	wf := testutil.CreateTestWorkflow("callback",
		testutil.CreateTestStep("wait",
			testutil.WithKind(models.StepKindWait, map[string]string{"duration": "60000", "mode": "suspend"}),
			testutil.WithNext("notify")),
		testutil.CreateTestStep("notify", testutil.WithKind(models.StepKindNotification, map[string]string{
			"channel": "sms", "target": "+1", "message": "we are back",
		})),
	)
	require.NoError(t, engine.RegisterWorkflow(ctx, wf))

	first, err := engine.StartExecution(ctx, "callback", "conv-1", nil)
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusPaused, first.Status)

	resumed, err := engine.ResumeExecution(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, resumed.Status)
	assert.Equal(t, "we are back", resumed.Output)

	_, err = engine.ResumeExecution(ctx, first.ID)
	assert.True(t, services.IsConflictError(err))

	second, err := engine.StartExecution(ctx, "callback", "conv-2", nil)
	require.NoError(t, err)
	require.NoError(t, engine.CancelExecution(ctx, second.ID))

	cancelled, err := engine.GetExecution(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, cancelled.Status)

	err = engine.CancelExecution(ctx, second.ID)
	assert.True(t, services.IsConflictError(err))

	err = engine.CancelExecution(ctx, "ghost")
	assert.True(t, services.IsNotFoundError(err))
}

func TestEngine_HealthCheck(t *testing.T) {
	engine := newEngine(t, services.EngineConfig{})

	message, ok := engine.HealthCheck(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "Engine is healthy", message)
}

func TestServiceError(t *testing.T) {
	err := services.NewValidationError("op", "code", "bad input", services.ErrInvalidRequest)

	assert.Equal(t, "op: bad input", err.Error())
	assert.True(t, errors.Is(err, services.ErrInvalidRequest))
	assert.True(t, services.IsValidationError(err))
	assert.False(t, services.IsConflictError(err))
}
