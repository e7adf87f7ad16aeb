package persistence

import (
	"errors"
	"fmt"

	"github.com/dukex/escalate/pkg/models"
)

var (
	// ErrExecutionTerminal indicates an attempt to change an execution that already finished.
	ErrExecutionTerminal = errors.New("execution already reached a terminal status")

	// ErrLogRewritten indicates a record that drops or alters already recorded steps.
	ErrLogRewritten = errors.New("execution log is append-only")

	// ErrInvalidExecutionID indicates an empty or unsafe execution id.
	ErrInvalidExecutionID = errors.New("invalid execution id")
)

// LedgerError wraps ledger failures with the operation and execution involved.
type LedgerError struct {
	Op          string
	ExecutionID string
	Err         error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

func NewLedgerError(op, executionID string, err error) *LedgerError {
	return &LedgerError{Op: op, ExecutionID: executionID, Err: err}
}

func IsExecutionNotFound(err error) bool {
	return errors.Is(err, models.ErrExecutionNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrExecutionTerminal) || errors.Is(err, ErrLogRewritten)
}

// CheckAppend reports whether next may replace stored. Re-recording an
// identical terminal state is accepted so writers can retry.
func CheckAppend(stored, next *models.Execution) error {
	if next == nil || next.ID == "" {
		return ErrInvalidExecutionID
	}

	if stored == nil {
		return nil
	}

	if stored.Status.IsTerminal() {
		if next.Status != stored.Status || len(next.Log) != len(stored.Log) {
			return fmt.Errorf("%w: stored status %s", ErrExecutionTerminal, stored.Status)
		}
	}

	if len(next.Log) < len(stored.Log) {
		return fmt.Errorf("%w: %d recorded steps, got %d", ErrLogRewritten, len(stored.Log), len(next.Log))
	}

	for i, outcome := range stored.Log {
		if next.Log[i].StepID != outcome.StepID || next.Log[i].Status != outcome.Status {
			return fmt.Errorf("%w: step %d changed from %s to %s", ErrLogRewritten, i, outcome.StepID, next.Log[i].StepID)
		}
	}

	return nil
}
