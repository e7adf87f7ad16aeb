// Package main provides the escalate worker, which runs the engine for
// conversation signals received from the event bus.
package main

import (
	"context"
	"log/slog"

	"github.com/dukex/escalate/pkg/eventbus"
	"github.com/dukex/escalate/pkg/events"
	"github.com/dukex/escalate/pkg/services"
)

type WorkerManager struct {
	id       string
	logger   *slog.Logger
	engine   *services.Engine
	eventBus eventbus.EventBus
}

func NewWorkerManager(id string, engine *services.Engine, eventBus eventbus.EventBus, logger *slog.Logger) *WorkerManager {
	return &WorkerManager{
		id:       id,
		logger:   logger.With("module", "escalate-worker", "worker_id", id),
		engine:   engine,
		eventBus: eventBus,
	}
}

// Start subscribes to conversation signals and blocks until ctx is done.
func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	if err := w.eventBus.Handle(events.ConversationSignalEvent, w.handleConversationSignal); err != nil {
		return err
	}

	if err := w.eventBus.Subscribe(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	<-ctx.Done()

	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}

// handleConversationSignal always acks: a redelivered signal would start the
// matched workflows a second time.
func (w *WorkerManager) handleConversationSignal(ctx context.Context, event any) error {
	signal, ok := event.(*events.ConversationSignal)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ConversationSignal")

		return nil
	}

	logger := w.logger.With(
		"conversation_id", signal.ConversationID,
		"industry", signal.Industry,
		"event_id", signal.ID,
	)
	logger.InfoContext(ctx, "Processing conversation signal")

	outcome, err := w.engine.HandleEvent(ctx, signal.ConversationEvent())
	if outcome == nil {
		logger.ErrorContext(ctx, "Failed to handle conversation signal", "error", err)

		return nil
	}

	if err != nil {
		logger.WarnContext(ctx, "Some matched workflows did not start", "error", err)
	}

	logger.InfoContext(ctx, "Conversation signal handled",
		"matches", len(outcome.Matches),
		"actions", len(outcome.Actions),
		"executions", len(outcome.Executions))

	return nil
}
