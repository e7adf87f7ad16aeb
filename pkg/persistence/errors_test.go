package persistence

import (
	"errors"
	"testing"
	"time"

	"github.com/dukex/escalate/pkg/models"
	"github.com/stretchr/testify/assert"
)

func execution(status models.ExecutionStatus, steps ...string) *models.Execution {
	log := make([]models.StepOutcome, len(steps))
	for i, step := range steps {
		log[i] = models.StepOutcome{StepID: step, Status: models.StepStatusSuccess}
	}

	return &models.Execution{ID: "exec-1", Status: status, Log: log}
}

func TestCheckAppend(t *testing.T) {
	tests := []struct {
		name     string
		stored   *models.Execution
		next     *models.Execution
		expected error
	}{
		{"first record", nil, execution(models.ExecutionStatusRunning), nil},
		{"append steps", execution(models.ExecutionStatusRunning, "a"), execution(models.ExecutionStatusRunning, "a", "b"), nil},
		{"running to completed", execution(models.ExecutionStatusRunning, "a"), execution(models.ExecutionStatusCompleted, "a"), nil},
		{"paused to running", execution(models.ExecutionStatusPaused, "a"), execution(models.ExecutionStatusRunning, "a"), nil},
		{"terminal retried", execution(models.ExecutionStatusFailed, "a"), execution(models.ExecutionStatusFailed, "a"), nil},
		{"terminal overwritten", execution(models.ExecutionStatusCompleted, "a"), execution(models.ExecutionStatusRunning, "a"), ErrExecutionTerminal},
		{"terminal flipped", execution(models.ExecutionStatusCompleted, "a"), execution(models.ExecutionStatusFailed, "a"), ErrExecutionTerminal},
		{"terminal extended", execution(models.ExecutionStatusCompleted, "a"), execution(models.ExecutionStatusCompleted, "a", "b"), ErrExecutionTerminal},
		{"log shortened", execution(models.ExecutionStatusRunning, "a", "b"), execution(models.ExecutionStatusRunning, "a"), ErrLogRewritten},
		{"log altered", execution(models.ExecutionStatusRunning, "a"), execution(models.ExecutionStatusRunning, "x", "b"), ErrLogRewritten},
		{"missing id", nil, &models.Execution{}, ErrInvalidExecutionID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckAppend(tt.stored, tt.next)
			if tt.expected == nil {
				assert.NoError(t, err)
				return
			}

			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestLedgerError(t *testing.T) {
	err := NewLedgerError("Get", "exec-1", &models.ExecutionNotFoundError{ID: "exec-1"})

	assert.True(t, IsExecutionNotFound(err))
	assert.False(t, IsConflict(err))
	assert.True(t, IsConflict(NewLedgerError("Record", "exec-1", ErrLogRewritten)))
	assert.Contains(t, err.Error(), "Get operation failed for execution exec-1")
	assert.True(t, errors.Is(err, models.ErrExecutionNotFound))
}

func TestSortExecutions(t *testing.T) {
	now := time.Now()
	executions := []*models.Execution{
		{ID: "c", StartedAt: now.Add(time.Second)},
		{ID: "b", StartedAt: now},
		{ID: "a", StartedAt: now},
	}

	SortExecutions(executions)

	assert.Equal(t, "a", executions[0].ID)
	assert.Equal(t, "b", executions[1].ID)
	assert.Equal(t, "c", executions[2].ID)
}
