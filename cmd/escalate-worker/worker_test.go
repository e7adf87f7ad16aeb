package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/escalate/pkg/channels/gochannel"
	"github.com/dukex/escalate/pkg/eventbus"
	"github.com/dukex/escalate/pkg/events"
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

func setupWorker(t *testing.T) (*WorkerManager, *services.Engine, *eventbus.WatermillEventBus) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	pub, sub := gochannel.CreateTestChannel(watermill.NopLogger{})
	bus := eventbus.NewWatermillEventBus(pub, sub, logger)

	t.Cleanup(func() { _ = bus.Close() })

	engine := services.NewEngine(services.EngineConfig{
		Registry: registry.New(logger),
		Ledger:   memory.NewLedger(),
		Handlers: protocol.Handlers{
			Decision:     handlers.Decision{},
			Notification: handlers.NewNotification(bus),
		},
		Publisher: bus,
		Logger:    logger,
	})

	ctx := context.Background()

	require.NoError(t, engine.RegisterWorkflow(ctx, testutil.CreateTestWorkflow("callback", testutil.CreateTestStep("notify"))))
	require.NoError(t, engine.RegisterRule(ctx, testutil.CreateTestRule(testutil.TriggersWorkflow("callback"))))

	return NewWorkerManager("worker-test", engine, bus, logger), engine, bus
}

func newSignal(conversationID string, confidence float64) events.ConversationSignal {
	return events.ConversationSignal{
		BaseEvent: events.BaseEvent{
			ID:             "evt-" + conversationID,
			Type:           events.ConversationSignalEvent,
			Timestamp:      time.Now().UTC(),
			ConversationID: conversationID,
		},
		Industry:  "banking",
		Context:   models.Context{models.ContextConfidence: confidence},
		Variables: map[string]any{"phone": "+15550100", "name": "Ada"},
	}
}

func TestWorkerManager_RunsMatchedWorkflows(t *testing.T) {
	worker, engine, bus := setupWorker(t)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- worker.Start(ctx) }()

	require.NoError(t, bus.Publish(ctx, "conv-1", newSignal("conv-1", 20)))
	require.NoError(t, bus.Publish(ctx, "conv-2", newSignal("conv-2", 95)))

	assert.Eventually(t, func() bool {
		executions, err := engine.ListExecutions(ctx, models.ExecutionFilter{ConversationID: "conv-1"})
		return err == nil && len(executions) == 1 && executions[0].Status == models.ExecutionStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	executions, err := engine.ListExecutions(ctx, models.ExecutionFilter{ConversationID: "conv-2"})
	require.NoError(t, err)
	assert.Empty(t, executions)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorkerManager_AcksInvalidSignals(t *testing.T) {
	worker, _, _ := setupWorker(t)
	ctx := context.Background()

	invalid := newSignal("", 10)
	assert.NoError(t, worker.handleConversationSignal(ctx, &invalid))
	assert.NoError(t, worker.handleConversationSignal(ctx, "not a signal"))
}
