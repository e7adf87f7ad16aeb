// Package workflow matches rules against conversation contexts and drives
// workflow executions through their step graphs.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/dukex/escalate/pkg/eventbus"
	"github.com/dukex/escalate/pkg/events"
	"github.com/dukex/escalate/pkg/models"
	"github.com/dukex/escalate/pkg/otelhelper"
	"github.com/dukex/escalate/pkg/persistence"
	"github.com/dukex/escalate/pkg/protocol"
	"github.com/dukex/escalate/pkg/template"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultMaxSteps bounds the number of steps one execution may run. Workflow
// graphs may contain cycles.
const DefaultMaxSteps = 1000

// ErrNoHandler is wrapped in a StepHandlerError when no handler serves a step kind.
var ErrNoHandler = errors.New("no handler registered for step kind")

type ExecutorOption func(*Executor)

// WithPublisher publishes lifecycle events for every execution.
func WithPublisher(publisher eventbus.EventPublisher) ExecutorOption {
	return func(e *Executor) {
		e.publisher = publisher
	}
}

func WithTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

func WithMaxSteps(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.now = now
	}
}

// Executor runs workflow executions. Each call to Start or Resume drives one
// execution on the calling goroutine until it completes, fails or pauses.
type Executor struct {
	handlers  protocol.Handlers
	ledger    persistence.Ledger
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	logger    *slog.Logger
	maxSteps  int
	now       func() time.Time

	mu      sync.Mutex
	running map[string]context.CancelCauseFunc
}

func NewExecutor(handlers protocol.Handlers, ledger persistence.Ledger, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		handlers: handlers,
		ledger:   ledger,
		tracer:   noop.NewTracerProvider().Tracer("escalate"),
		logger:   logger.With("module", "workflow_executor"),
		maxSteps: DefaultMaxSteps,
		now:      time.Now,
		running:  make(map[string]context.CancelCauseFunc),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Start creates an execution of workflow for a conversation and runs it.
// Workflow defaults are overridden by variables. A failed run is reported
// through the returned execution's status; err is only set when the
// execution could not be recorded.
func (e *Executor) Start(ctx context.Context, workflow *models.Workflow, conversationID string, variables map[string]any) (*models.Execution, error) {
	if workflow == nil {
		return nil, &models.WorkflowNotFoundError{}
	}

	bag := maps.Clone(workflow.Variables)
	if bag == nil {
		bag = make(map[string]any, len(variables))
	}

	maps.Copy(bag, variables)

	now := e.now().UTC()
	execution := &models.Execution{
		ID:             uuid.NewString(),
		WorkflowID:     workflow.ID,
		ConversationID: conversationID,
		Status:         models.ExecutionStatusRunning,
		CurrentStepID:  workflow.EntryStepID,
		Variables:      bag,
		Log:            []models.StepOutcome{},
		StartedAt:      now,
		UpdatedAt:      now,
	}

	stop, release, err := e.claim(execution.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := e.record(ctx, execution); err != nil {
		return nil, err
	}

	e.publish(ctx, execution, events.ExecutionStarted{
		BaseEvent:   e.baseEvent(events.ExecutionStartedEvent, execution),
		ExecutionID: execution.ID,
		EntryStepID: execution.CurrentStepID,
		Variables:   maps.Clone(execution.Variables),
	})

	return e.run(ctx, stop, workflow, execution)
}

// Resume continues a paused execution at its current step. Only one caller
// in this process may drive an execution at a time.
func (e *Executor) Resume(ctx context.Context, workflow *models.Workflow, executionID string) (*models.Execution, error) {
	stop, release, err := e.claim(executionID)
	if err != nil {
		return nil, err
	}
	defer release()

	execution, err := e.ledger.Get(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if workflow == nil || workflow.ID != execution.WorkflowID {
		return nil, &models.WorkflowNotFoundError{ID: execution.WorkflowID}
	}

	if execution.Status != models.ExecutionStatusPaused {
		return execution, fmt.Errorf("%w: execution %s is %s", models.ErrExecutionNotPaused, execution.ID, execution.Status)
	}

	execution.Status = models.ExecutionStatusRunning
	execution.UpdatedAt = e.now().UTC()

	if err := e.record(ctx, execution); err != nil {
		return nil, err
	}

	e.publish(ctx, execution, events.ExecutionResumed{
		BaseEvent:   e.baseEvent(events.ExecutionResumedEvent, execution),
		ExecutionID: execution.ID,
		StepID:      execution.CurrentStepID,
	})

	return e.run(ctx, stop, workflow, execution)
}

// Cancel requests cancellation of an execution. A running execution stops
// before its next step; a paused one fails immediately.
func (e *Executor) Cancel(ctx context.Context, executionID string) error {
	reason := &models.CancelledError{ExecutionID: executionID, Reason: "cancelled by request"}

	e.mu.Lock()
	if stop, ok := e.running[executionID]; ok {
		e.mu.Unlock()
		stop(reason)

		return nil
	}

	_, release := e.claimLocked(executionID)
	e.mu.Unlock()

	defer release()

	execution, err := e.ledger.Get(ctx, executionID)
	if err != nil {
		return err
	}

	switch {
	case execution.Status.IsTerminal():
		return fmt.Errorf("%w: execution %s is %s", models.ErrExecutionFinished, execution.ID, execution.Status)
	case execution.Status == models.ExecutionStatusRunning:
		return fmt.Errorf("%w: %s", models.ErrExecutionRemote, execution.ID)
	}

	e.fail(execution, execution.CurrentStepID, reason)

	if err := e.record(ctx, execution); err != nil {
		return err
	}

	e.publishTerminal(ctx, execution)

	return nil
}

// claim marks id as driven by the caller until release is called. Cancel
// stops a claimed execution through the returned context.
func (e *Executor) claim(id string) (context.Context, func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.running[id]; ok {
		return nil, nil, fmt.Errorf("%w: execution %s is running", models.ErrExecutionNotPaused, id)
	}

	stop, release := e.claimLocked(id)

	return stop, release, nil
}

// claimLocked must be called with e.mu held.
func (e *Executor) claimLocked(id string) (context.Context, func()) {
	stop, cancel := context.WithCancelCause(context.Background())
	e.running[id] = cancel

	return stop, func() {
		e.mu.Lock()
		delete(e.running, id)
		e.mu.Unlock()

		cancel(nil)
	}
}

// run drives execution until it leaves the running state. stop is checked
// between steps only and never interrupts a running handler.
func (e *Executor) run(ctx context.Context, stop context.Context, workflow *models.Workflow, execution *models.Execution) (*models.Execution, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.execute",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.WorkflowNameKey, workflow.Name),
		attribute.String(otelhelper.ConversationIDKey, execution.ConversationID),
	)
	defer span.End()

	logger := e.logger.With(
		"execution_id", execution.ID,
		"workflow_id", workflow.ID,
		"conversation_id", execution.ConversationID,
	)

	logger.Info("Running execution", "step_id", execution.CurrentStepID)

	steps := 0

	for execution.Status == models.ExecutionStatusRunning {
		if err := cancellation(ctx, stop, execution.ID); err != nil {
			logger.Info("Execution cancelled", "step_id", execution.CurrentStepID)
			e.fail(execution, execution.CurrentStepID, err)

			break
		}

		if steps >= e.maxSteps {
			e.fail(execution, execution.CurrentStepID, &models.WorkflowIntegrityError{
				WorkflowID: workflow.ID,
				StepID:     execution.CurrentStepID,
				Message:    fmt.Sprintf("exceeded %d steps", e.maxSteps),
			})

			break
		}

		step, ok := workflow.Step(execution.CurrentStepID)
		if !ok {
			e.fail(execution, execution.CurrentStepID, &models.WorkflowIntegrityError{
				WorkflowID: workflow.ID,
				StepID:     execution.CurrentStepID,
				Message:    "step does not exist",
			})

			break
		}

		steps++

		next := e.step(ctx, logger, execution, step)

		if err := e.record(ctx, execution); err != nil {
			otelhelper.SetError(span, err)

			return execution, err
		}

		e.publish(ctx, execution, events.StepCompleted{
			BaseEvent:   e.baseEvent(events.StepCompletedEvent, execution),
			ExecutionID: execution.ID,
			Outcome:     execution.Log[len(execution.Log)-1],
			NextStepID:  next,
		})
	}

	if execution.Status == models.ExecutionStatusPaused {
		if cause := context.Cause(stop); cause != nil {
			e.fail(execution, execution.CurrentStepID, cause)
		}
	}

	switch execution.Status {
	case models.ExecutionStatusPaused:
		logger.Info("Execution paused", "resume_step_id", execution.CurrentStepID)

		e.publish(ctx, execution, events.ExecutionPaused{
			BaseEvent:    e.baseEvent(events.ExecutionPausedEvent, execution),
			ExecutionID:  execution.ID,
			ResumeStepID: execution.CurrentStepID,
		})

		return execution, nil
	case models.ExecutionStatusFailed:
		span.SetAttributes(attribute.String(otelhelper.StepIDKey, execution.FailedStepID))
		otelhelper.SetError(span, errors.New(execution.Error))

		logger.Warn("Execution failed", "failed_step_id", execution.FailedStepID, "error", execution.Error)

		// the last step outcome was already recorded, but cancellation and
		// integrity failures happen between steps
		if err := e.record(ctx, execution); err != nil {
			return execution, err
		}
	default:
		logger.Info("Execution completed", "steps", len(execution.Log))
	}

	e.publishTerminal(ctx, execution)

	return execution, nil
}

// step runs one step, appends its outcome and moves the execution to the
// next step or state. It returns the id of the next step, if any.
func (e *Executor) step(ctx context.Context, logger *slog.Logger, execution *models.Execution, step *models.Step) string {
	logger = logger.With("step_id", step.ID, "step_kind", step.Kind)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.step",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.String(otelhelper.StepKindKey, string(step.Kind)),
	)
	defer span.End()

	output, err := e.invoke(ctx, execution, step)

	suspended := errors.Is(err, protocol.ErrSuspend)
	if suspended {
		err = nil
	}

	outcome := models.StepOutcome{
		StepID:    step.ID,
		Name:      step.Name,
		Kind:      step.Kind,
		Status:    models.StepStatusSuccess,
		Timestamp: e.now().UTC(),
		Output:    output,
	}

	if err != nil {
		outcome.Status = models.StepStatusFailed
		outcome.Error = err.Error()

		otelhelper.SetError(span, err)
	}

	execution.Log = append(execution.Log, outcome)
	execution.UpdatedAt = outcome.Timestamp

	if err != nil {
		if step.OnFailure != "" {
			logger.Warn("Step failed, routing to failure step", "error", err, "on_failure", step.OnFailure)

			execution.CurrentStepID = step.OnFailure

			return step.OnFailure
		}

		logger.Warn("Step failed", "error", err)
		e.fail(execution, step.ID, err)

		return ""
	}

	if output != nil {
		execution.Output = output
	}

	next := step.SuccessTarget()

	if taken, ok := output.(bool); ok && step.Kind == models.StepKindDecision && !taken {
		next = step.OnFailure
	}

	logger.Debug("Step succeeded", "next_step_id", next)

	if next == "" {
		e.complete(execution)

		return ""
	}

	execution.CurrentStepID = next

	if suspended {
		execution.Status = models.ExecutionStatusPaused
	}

	return next
}

// invoke renders the step params and calls the handler for its kind. The
// variables returned by the handler are merged even when it fails.
func (e *Executor) invoke(ctx context.Context, execution *models.Execution, step *models.Step) (any, error) {
	handler, ok := e.handlers.For(step.Kind)
	if !ok {
		return nil, &models.StepHandlerError{StepID: step.ID, Kind: step.Kind, Err: ErrNoHandler}
	}

	params := template.RenderParams(step.Params, execution.Variables)

	// handlers run to completion; cancellation is observed before the next step
	output, vars, err := handler.Handle(context.WithoutCancel(ctx), params, maps.Clone(execution.Variables))

	if execution.Variables == nil {
		execution.Variables = make(map[string]any, len(vars))
	}

	maps.Copy(execution.Variables, vars)

	if err != nil && !errors.Is(err, protocol.ErrSuspend) {
		return output, &models.StepHandlerError{StepID: step.ID, Kind: step.Kind, Err: err}
	}

	return output, err
}

func (e *Executor) complete(execution *models.Execution) {
	now := e.now().UTC()

	execution.Status = models.ExecutionStatusCompleted
	execution.CurrentStepID = ""
	execution.UpdatedAt = now
	execution.CompletedAt = &now
}

// fail moves the execution to failed. Step errors report the first failing
// step in the log, other causes report themselves.
func (e *Executor) fail(execution *models.Execution, stepID string, cause error) {
	now := e.now().UTC()

	execution.Status = models.ExecutionStatusFailed
	execution.FailedStepID = stepID
	execution.Error = cause.Error()
	execution.UpdatedAt = now
	execution.CompletedAt = &now

	if !errors.Is(cause, models.ErrStepHandler) {
		return
	}

	for _, outcome := range execution.Log {
		if outcome.Status == models.StepStatusFailed {
			execution.FailedStepID = outcome.StepID
			execution.Error = outcome.Error

			return
		}
	}
}

// record writes a copy of the execution to the ledger, even when ctx is
// already cancelled.
func (e *Executor) record(ctx context.Context, execution *models.Execution) error {
	if err := e.ledger.Record(context.WithoutCancel(ctx), execution); err != nil {
		e.logger.Error("Failed to record execution", "execution_id", execution.ID, "error", err)

		return fmt.Errorf("failed to record execution %s: %w", execution.ID, err)
	}

	return nil
}

func (e *Executor) publishTerminal(ctx context.Context, execution *models.Execution) {
	duration := execution.UpdatedAt.Sub(execution.StartedAt)

	if execution.Status == models.ExecutionStatusCompleted {
		e.publish(ctx, execution, events.ExecutionCompleted{
			BaseEvent:   e.baseEvent(events.ExecutionCompletedEvent, execution),
			ExecutionID: execution.ID,
			Output:      execution.Output,
			Steps:       len(execution.Log),
			Duration:    duration,
		})

		return
	}

	e.publish(ctx, execution, events.ExecutionFailed{
		BaseEvent:    e.baseEvent(events.ExecutionFailedEvent, execution),
		ExecutionID:  execution.ID,
		FailedStepID: execution.FailedStepID,
		Error:        execution.Error,
		Duration:     duration,
	})
}

func (e *Executor) publish(ctx context.Context, execution *models.Execution, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(context.WithoutCancel(ctx), execution.ID, event); err != nil {
		e.logger.Error("Failed to publish event",
			"execution_id", execution.ID,
			"event_type", event.GetType(),
			"error", err)
	}
}

func (e *Executor) baseEvent(eventType events.EventType, execution *models.Execution) events.BaseEvent {
	return events.BaseEvent{
		ID:             uuid.NewString(),
		Type:           eventType,
		Timestamp:      e.now().UTC(),
		WorkflowID:     execution.WorkflowID,
		ConversationID: execution.ConversationID,
	}
}

// cancellation returns the reason the execution must stop, if any.
func cancellation(ctx, stop context.Context, executionID string) error {
	if cause := context.Cause(stop); cause != nil {
		return cause
	}

	if err := ctx.Err(); err != nil {
		return &models.CancelledError{ExecutionID: executionID, Reason: err.Error()}
	}

	return nil
}
