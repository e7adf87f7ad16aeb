package cmd_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dukex/escalate/pkg/channels/kafka"
	"github.com/dukex/escalate/pkg/cmd"
	"github.com/dukex/escalate/pkg/mocks"
	"github.com/dukex/escalate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewLedger(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	tests := []struct {
		name        string
		databaseURL string
	}{
		{name: "memory", databaseURL: "memory://"},
		{name: "file", databaseURL: "file://" + filepath.Join(t.TempDir(), "ledger")},
		{name: "bare path", databaseURL: filepath.Join(t.TempDir(), "ledger")},
		{name: "redis", databaseURL: "redis://" + mr.Addr()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, err := cmd.NewLedger(ctx, discardLogger(), tt.databaseURL)
			require.NoError(t, err)

			t.Cleanup(func() { _ = ledger.Close(ctx) })

			require.NoError(t, ledger.HealthCheck(ctx))

			_, err = ledger.Get(ctx, "missing")
			assert.ErrorIs(t, err, models.ErrExecutionNotFound)
		})
	}
}

func TestNewLedger_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := cmd.NewLedger(ctx, discardLogger(), "mongodb://localhost")
	require.ErrorIs(t, err, cmd.ErrUnsupportedLedger)

	_, err = cmd.NewLedger(ctx, discardLogger(), "redis://127.0.0.1:1")
	require.Error(t, err)
}

func TestNewEventBus(t *testing.T) {
	bus, err := cmd.NewEventBus(cmd.EventBusConfig{Provider: "gochannel"}, discardLogger())
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	_, err = cmd.NewEventBus(cmd.EventBusConfig{Provider: "rabbitmq"}, discardLogger())
	require.ErrorIs(t, err, cmd.ErrUnsupportedEventBus)

	t.Setenv("KAFKA_BROKERS", "")

	_, err = cmd.NewEventBus(cmd.EventBusConfig{Provider: "kafka", ConsumerGroup: "escalate"}, discardLogger())
	require.ErrorIs(t, err, kafka.ErrNoBrokers)
}

func TestNewHandlers(t *testing.T) {
	ctx := context.Background()

	table, closeHandlers, err := cmd.NewHandlers(ctx, cmd.HandlersConfig{Logger: discardLogger()})
	require.NoError(t, err)
	require.NoError(t, closeHandlers())

	for _, kind := range []models.StepKind{models.StepKindDecision, models.StepKindWait, models.StepKindAPICall} {
		_, ok := table.For(kind)
		assert.True(t, ok, kind)
	}

	for _, kind := range []models.StepKind{models.StepKindNotification, models.StepKindDataFetch, models.StepKindAIResponse} {
		_, ok := table.For(kind)
		assert.False(t, ok, kind)
	}

	mr := miniredis.RunT(t)

	table, closeHandlers, err = cmd.NewHandlers(ctx, cmd.HandlersConfig{
		Publisher:  &mocks.MockEventBus{},
		RedisURL:   "redis://" + mr.Addr(),
		AIEndpoint: "http://localhost:8000/generate",
		Logger:     discardLogger(),
	})
	require.NoError(t, err)

	defer func() { _ = closeHandlers() }()

	for _, kind := range []models.StepKind{models.StepKindNotification, models.StepKindDataFetch, models.StepKindAIResponse} {
		_, ok := table.For(kind)
		assert.True(t, ok, kind)
	}

	_, _, err = cmd.NewHandlers(ctx, cmd.HandlersConfig{RedisURL: "not-a-url", Logger: discardLogger()})
	require.Error(t, err)
}

const definitionsYAML = `
workflows:
  - id: callback
    name: Callback
    industry: all
    entry_step_id: notify
    active: true
    steps:
      notify:
        kind: notification
        params:
          channel: sms
          target: "{{phone}}"
          message: We will call you back
rules:
  - id: callback-request
    name: Callback request
    industry_scope: [all]
    active: true
    kind: workflow_trigger
    workflow_id: callback
    conditions:
      - kind: keyword
        operator: contains
        value: call me
`

func TestNewRuntime(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "definitions.yaml"), []byte(definitionsYAML), 0o600))

	rt, err := cmd.NewRuntime(ctx, cmd.RuntimeConfig{
		ServiceName:     "escalate-test",
		DatabaseURL:     "memory://",
		EventBus:        "gochannel",
		DefinitionsPath: dir,
		ReloadSchedule:  "@every 1h",
	}, discardLogger())
	require.NoError(t, err)

	require.NotNil(t, rt.Reloader)

	outcome, err := rt.Engine.HandleEvent(ctx, models.ConversationEvent{
		ConversationID: "conv-1",
		Industry:       "retail",
		Context:        models.Context{models.ContextMessage: "please call me tomorrow"},
		Variables:      map[string]any{"phone": "+15550100"},
	})
	require.NoError(t, err)
	require.Len(t, outcome.Executions, 1)
	assert.Equal(t, models.ExecutionStatusCompleted, outcome.Executions[0].Status)

	require.NoError(t, rt.Close(ctx))
}

func TestNewRuntime_ReleasesOnError(t *testing.T) {
	_, err := cmd.NewRuntime(context.Background(), cmd.RuntimeConfig{
		DatabaseURL:     "memory://",
		EventBus:        "gochannel",
		DefinitionsPath: t.TempDir(),
		ReloadSchedule:  "not a schedule",
	}, discardLogger())
	require.Error(t, err)
}
