package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/escalate/pkg/eventbus"
	"github.com/dukex/escalate/pkg/models"
	"github.com/dukex/escalate/pkg/persistence"
	"github.com/dukex/escalate/pkg/protocol"
	"github.com/dukex/escalate/pkg/registry"
	"github.com/dukex/escalate/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// EngineConfig wires the engine's collaborators. Registry, Ledger and Logger
// are required.
type EngineConfig struct {
	Registry  *registry.Registry
	Ledger    persistence.Ledger
	Handlers  protocol.Handlers
	Publisher eventbus.EventPublisher
	Contexts  protocol.ContextProvider
	Tracer    trace.Tracer
	MaxSteps  int
	Logger    *slog.Logger
}

// EventOutcome is the result of handling one conversation event.
type EventOutcome struct {
	ConversationID string               `json:"conversation_id"`
	Matches        []models.MatchResult `json:"matches"`
	Actions        []models.Action      `json:"actions"`
	Executions     []*models.Execution  `json:"executions"`
}

// Engine is the entry point to rule evaluation and workflow execution.
type Engine struct {
	registry *registry.Registry
	ledger   persistence.Ledger
	matcher  *workflow.TriggerMatcher
	executor *workflow.Executor
	contexts protocol.ContextProvider
	validate *validator.Validate
	logger   *slog.Logger
}

func NewEngine(config EngineConfig) *Engine {
	opts := []workflow.ExecutorOption{workflow.WithMaxSteps(config.MaxSteps)}

	if config.Publisher != nil {
		opts = append(opts, workflow.WithPublisher(config.Publisher))
	}

	if config.Tracer != nil {
		opts = append(opts, workflow.WithTracer(config.Tracer))
	}

	return &Engine{
		registry: config.Registry,
		ledger:   config.Ledger,
		matcher:  workflow.NewTriggerMatcher(config.Registry, config.Publisher, config.Logger),
		executor: workflow.NewExecutor(config.Handlers, config.Ledger, config.Logger, opts...),
		contexts: config.Contexts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   config.Logger.With("module", "engine"),
	}
}

// RegisterRule validates and stores a rule. An empty id is generated.
func (e *Engine) RegisterRule(_ context.Context, rule *models.Rule) error {
	if rule == nil {
		return ErrRuleNil
	}

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	return e.registry.RegisterRule(rule)
}

// RegisterWorkflow validates and stores a workflow. An empty id is generated.
func (e *Engine) RegisterWorkflow(_ context.Context, wf *models.Workflow) error {
	if wf == nil {
		return ErrWorkflowNil
	}

	if wf.ID == "" {
		wf.ID = uuid.New().String()
	}

	return e.registry.RegisterWorkflow(wf)
}

func (e *Engine) Rule(_ context.Context, id string) (*models.Rule, error) {
	return e.registry.Rule(id)
}

func (e *Engine) Rules(_ context.Context) []*models.Rule {
	return e.registry.Rules()
}

func (e *Engine) SetRuleActive(_ context.Context, id string, active bool) (*models.Rule, error) {
	return e.registry.SetRuleActive(id, active)
}

func (e *Engine) Workflow(_ context.Context, id string) (*models.Workflow, error) {
	return e.registry.Workflow(id)
}

func (e *Engine) Workflows(_ context.Context) []*models.Workflow {
	return e.registry.Workflows()
}

func (e *Engine) SetWorkflowActive(_ context.Context, id string, active bool) (*models.Workflow, error) {
	return e.registry.SetWorkflowActive(id, active)
}

// EvaluateTriggers matches the context against the active rules of industry.
// Workflow trigger matches are returned, not started.
func (e *Engine) EvaluateTriggers(ctx context.Context, c models.Context, industry string) ([]models.MatchResult, error) {
	if industry == "" {
		return nil, NewValidationError("evaluate_triggers", "industry_required", "industry is required", ErrInvalidRequest)
	}

	return e.matcher.Match(ctx, c, industry), nil
}

// HandleEvent evaluates the event's context and starts every matched
// workflow. Failures to start one workflow do not prevent the others; they
// are joined into the returned error alongside the outcome.
func (e *Engine) HandleEvent(ctx context.Context, event models.ConversationEvent) (*EventOutcome, error) {
	if event.ConversationID == "" {
		return nil, ErrEmptyConversationID
	}

	if len(event.Context) == 0 && e.contexts != nil {
		c, err := e.contexts.Context(ctx, event.ConversationID)
		if err != nil {
			return nil, fmt.Errorf("failed to load context for conversation %s: %w", event.ConversationID, err)
		}

		event.Context = c
	}

	if err := e.validate.Struct(event); err != nil {
		return nil, NewValidationError("handle_event", "invalid_event", err.Error(), ErrInvalidRequest)
	}

	matches, err := e.EvaluateTriggers(ctx, event.Context, event.Industry)
	if err != nil {
		return nil, err
	}

	outcome := &EventOutcome{
		ConversationID: event.ConversationID,
		Matches:        matches,
		Actions:        make([]models.Action, 0),
		Executions:     make([]*models.Execution, 0),
	}

	var errs []error

	for _, match := range matches {
		if !match.IsWorkflowTrigger() {
			outcome.Actions = append(outcome.Actions, match.Actions...)
			continue
		}

		execution, err := e.StartExecution(ctx, match.WorkflowID, event.ConversationID, event.Variables)
		if err != nil {
			e.logger.Warn("Failed to start matched workflow",
				"rule_id", match.Rule.ID,
				"workflow_id", match.WorkflowID,
				"conversation_id", event.ConversationID,
				"error", err)

			errs = append(errs, fmt.Errorf("rule %s: %w", match.Rule.ID, err))

			continue
		}

		outcome.Executions = append(outcome.Executions, execution)
	}

	return outcome, errors.Join(errs...)
}

// StartExecution runs an active workflow synchronously to completion, failure
// or pause.
func (e *Engine) StartExecution(ctx context.Context, workflowID, conversationID string, variables map[string]any) (*models.Execution, error) {
	if conversationID == "" {
		return nil, ErrEmptyConversationID
	}

	wf, err := e.registry.Workflow(workflowID)
	if err != nil {
		return nil, err
	}

	if !wf.Active {
		return nil, fmt.Errorf("%w: %s", models.ErrWorkflowInactive, workflowID)
	}

	if _, err := e.registry.IncrementExecutions(workflowID); err != nil {
		return nil, err
	}

	return e.executor.Start(ctx, wf, conversationID, variables)
}

func (e *Engine) GetExecution(ctx context.Context, id string) (*models.Execution, error) {
	return e.ledger.Get(ctx, id)
}

// ListExecutions returns executions by workflow and/or conversation, oldest first.
func (e *Engine) ListExecutions(ctx context.Context, filter models.ExecutionFilter) ([]*models.Execution, error) {
	switch {
	case filter.WorkflowID == "" && filter.ConversationID == "":
		return nil, ErrFilterRequired
	case filter.WorkflowID == "":
		return e.ledger.ByConversation(ctx, filter.ConversationID)
	}

	executions, err := e.ledger.ByWorkflow(ctx, filter.WorkflowID)
	if err != nil || filter.ConversationID == "" {
		return executions, err
	}

	filtered := make([]*models.Execution, 0, len(executions))

	for _, execution := range executions {
		if execution.ConversationID == filter.ConversationID {
			filtered = append(filtered, execution)
		}
	}

	return filtered, nil
}

func (e *Engine) CancelExecution(ctx context.Context, id string) error {
	return e.executor.Cancel(ctx, id)
}

// ResumeExecution continues a paused execution with the workflow's current definition.
func (e *Engine) ResumeExecution(ctx context.Context, id string) (*models.Execution, error) {
	execution, err := e.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	wf, err := e.registry.Workflow(execution.WorkflowID)
	if err != nil {
		return nil, err
	}

	return e.executor.Resume(ctx, wf, id)
}

// HealthCheck checks the health of the registry and the ledger.
func (e *Engine) HealthCheck(ctx context.Context) (string, bool) {
	if err := e.registry.HealthCheck(ctx); err != nil {
		return "Registry is unhealthy: " + err.Error(), false
	}

	if e.ledger == nil {
		return "Ledger not initialized", false
	}

	if err := e.ledger.HealthCheck(ctx); err != nil {
		return "Ledger is unhealthy: " + err.Error(), false
	}

	return "Engine is healthy", true
}
