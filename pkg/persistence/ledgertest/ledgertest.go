// Package ledgertest holds the behaviour every persistence.Ledger backend must share.
package ledgertest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dukex/escalate/pkg/models"
	"github.com/dukex/escalate/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewExecution builds a running execution started at the given offset from a fixed instant.
func NewExecution(id, workflowID, conversationID string, offset time.Duration) *models.Execution {
	startedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC).Add(offset)

	return &models.Execution{
		ID:             id,
		WorkflowID:     workflowID,
		ConversationID: conversationID,
		Status:         models.ExecutionStatusRunning,
		CurrentStepID:  "start",
		Variables:      map[string]any{"monthlyIncome": 2500.0, "name": "Ada"},
		Log:            []models.StepOutcome{},
		StartedAt:      startedAt,
		UpdatedAt:      startedAt,
	}
}

// Run exercises a ledger created fresh by newLedger for every subtest.
func Run(t *testing.T, newLedger func(t *testing.T) persistence.Ledger) {
	t.Helper()

	t.Run("record and get", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := context.Background()

		execution := NewExecution("exec-1", "wf-1", "conv-1", 0)
		require.NoError(t, ledger.Record(ctx, execution))

		execution.Variables["name"] = "mutated"

		stored, err := ledger.Get(ctx, "exec-1")
		require.NoError(t, err)
		assert.Equal(t, "wf-1", stored.WorkflowID)
		assert.Equal(t, "conv-1", stored.ConversationID)
		assert.Equal(t, models.ExecutionStatusRunning, stored.Status)
		assert.Equal(t, "Ada", stored.Variables["name"])
		assert.True(t, execution.StartedAt.Equal(stored.StartedAt))
	})

	t.Run("updated status is visible", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := context.Background()

		execution := NewExecution("exec-1", "wf-1", "conv-1", 0)
		require.NoError(t, ledger.Record(ctx, execution))

		completedAt := execution.StartedAt.Add(time.Second)
		execution.Status = models.ExecutionStatusCompleted
		execution.CurrentStepID = ""
		execution.CompletedAt = &completedAt
		execution.Output = "done"
		execution.Log = append(execution.Log, models.StepOutcome{
			StepID:    "start",
			Name:      "Start",
			Kind:      models.StepKindDecision,
			Status:    models.StepStatusSuccess,
			Timestamp: completedAt,
			Output:    true,
		})
		require.NoError(t, ledger.Record(ctx, execution))

		stored, err := ledger.Get(ctx, "exec-1")
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
		require.NotNil(t, stored.CompletedAt)
		assert.True(t, completedAt.Equal(*stored.CompletedAt))
		require.Len(t, stored.Log, 1)
		assert.Equal(t, "start", stored.Log[0].StepID)
		assert.Equal(t, true, stored.Log[0].Output)
		assert.Equal(t, "done", stored.Output)
	})

	t.Run("terminal status is never overwritten", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := context.Background()

		execution := NewExecution("exec-1", "wf-1", "conv-1", 0)
		execution.Status = models.ExecutionStatusFailed
		execution.Error = "boom"
		require.NoError(t, ledger.Record(ctx, execution))

		rewrite := execution.Clone()
		rewrite.Status = models.ExecutionStatusRunning
		err := ledger.Record(ctx, rewrite)
		require.ErrorIs(t, err, persistence.ErrExecutionTerminal)

		stored, err := ledger.Get(ctx, "exec-1")
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
		assert.Equal(t, "boom", stored.Error)
	})

	t.Run("log is append-only", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := context.Background()

		execution := NewExecution("exec-1", "wf-1", "conv-1", 0)
		execution.Log = []models.StepOutcome{
			{StepID: "a", Status: models.StepStatusSuccess},
			{StepID: "b", Status: models.StepStatusFailed, Error: "boom"},
		}
		require.NoError(t, ledger.Record(ctx, execution))

		shorter := execution.Clone()
		shorter.Log = shorter.Log[:1]
		require.ErrorIs(t, ledger.Record(ctx, shorter), persistence.ErrLogRewritten)
	})

	t.Run("missing execution", func(t *testing.T) {
		ledger := newLedger(t)

		_, err := ledger.Get(context.Background(), "nope")
		require.ErrorIs(t, err, models.ErrExecutionNotFound)
	})

	t.Run("indexes", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := context.Background()

		require.NoError(t, ledger.Record(ctx, NewExecution("exec-3", "wf-1", "conv-2", 2*time.Second)))
		require.NoError(t, ledger.Record(ctx, NewExecution("exec-1", "wf-1", "conv-1", 0)))
		require.NoError(t, ledger.Record(ctx, NewExecution("exec-2", "wf-2", "conv-1", time.Second)))

		byWorkflow, err := ledger.ByWorkflow(ctx, "wf-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"exec-1", "exec-3"}, ids(byWorkflow))

		byConversation, err := ledger.ByConversation(ctx, "conv-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"exec-1", "exec-2"}, ids(byConversation))

		none, err := ledger.ByWorkflow(ctx, "wf-unknown")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("concurrent records", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := context.Background()

		var wg sync.WaitGroup

		for i := range 10 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				id := fmt.Sprintf("exec-%d", i)
				assert.NoError(t, ledger.Record(ctx, NewExecution(id, "wf-1", id, time.Duration(i)*time.Second)))
			}()
		}

		wg.Wait()

		executions, err := ledger.ByWorkflow(ctx, "wf-1")
		require.NoError(t, err)
		assert.Len(t, executions, 10)
	})

	t.Run("health check", func(t *testing.T) {
		ledger := newLedger(t)

		require.NoError(t, ledger.HealthCheck(context.Background()))
	})
}

func ids(executions []*models.Execution) []string {
	out := make([]string, len(executions))
	for i, execution := range executions {
		out[i] = execution.ID
	}

	return out
}
