// Package file provides an execution ledger storing one JSON document per
// execution on the local file system.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/escalate/pkg/models"
	"github.com/dukex/escalate/pkg/persistence"
)

const executionsDir = "executions"

// Ledger keeps executions under <root>/executions/<id>.json. Indexes are
// computed by scanning the directory, so listings grow linearly with history.
type Ledger struct {
	root string
	mu   sync.Mutex
}

// NewLedger accepts a plain directory or a file:// URL.
func NewLedger(root string) (*Ledger, error) {
	cleanRoot := strings.TrimPrefix(root, "file://")
	if cleanRoot == "" {
		return nil, errors.New("file ledger root cannot be empty")
	}

	if err := os.MkdirAll(filepath.Join(cleanRoot, executionsDir), 0750); err != nil {
		return nil, fmt.Errorf("failed to create executions directory: %w", err)
	}

	return &Ledger{root: cleanRoot}, nil
}

func validateExecutionID(executionID string) error {
	if executionID == "" {
		return fmt.Errorf("%w: empty", persistence.ErrInvalidExecutionID)
	}

	if strings.Contains(executionID, "..") || strings.ContainsAny(executionID, `/\`) {
		return fmt.Errorf("%w: %q contains invalid characters", persistence.ErrInvalidExecutionID, executionID)
	}

	return nil
}

func (l *Ledger) path(executionID string) string {
	return filepath.Join(l.root, executionsDir, executionID+".json")
}

func (l *Ledger) Record(_ context.Context, execution *models.Execution) error {
	if execution == nil {
		return persistence.NewLedgerError("Record", "", persistence.ErrInvalidExecutionID)
	}

	if err := validateExecutionID(execution.ID); err != nil {
		return persistence.NewLedgerError("Record", execution.ID, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	stored, err := l.read(execution.ID)
	if err != nil && !persistence.IsExecutionNotFound(err) {
		return persistence.NewLedgerError("Record", execution.ID, err)
	}

	if err := persistence.CheckAppend(stored, execution); err != nil {
		return persistence.NewLedgerError("Record", execution.ID, err)
	}

	data, err := json.Marshal(execution)
	if err != nil {
		return persistence.NewLedgerError("Record", execution.ID, fmt.Errorf("failed to marshal execution: %w", err))
	}

	// write then rename so readers never observe a partial document
	tmp := l.path(execution.ID) + ".tmp"

	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return persistence.NewLedgerError("Record", execution.ID, fmt.Errorf("failed to write execution: %w", err))
	}

	if err := os.Rename(tmp, l.path(execution.ID)); err != nil {
		return persistence.NewLedgerError("Record", execution.ID, fmt.Errorf("failed to replace execution: %w", err))
	}

	return nil
}

func (l *Ledger) Get(_ context.Context, id string) (*models.Execution, error) {
	if err := validateExecutionID(id); err != nil {
		return nil, persistence.NewLedgerError("Get", id, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	execution, err := l.read(id)
	if err != nil {
		return nil, persistence.NewLedgerError("Get", id, err)
	}

	return execution, nil
}

func (l *Ledger) ByWorkflow(_ context.Context, workflowID string) ([]*models.Execution, error) {
	return l.scan(func(execution *models.Execution) bool {
		return execution.WorkflowID == workflowID
	})
}

func (l *Ledger) ByConversation(_ context.Context, conversationID string) ([]*models.Execution, error) {
	return l.scan(func(execution *models.Execution) bool {
		return execution.ConversationID == conversationID
	})
}

// HealthCheck verifies the executions directory still exists.
func (l *Ledger) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(filepath.Join(l.root, executionsDir)); err != nil {
		return fmt.Errorf("file ledger unavailable: %w", err)
	}

	return nil
}

func (l *Ledger) Close(_ context.Context) error {
	return nil
}

func (l *Ledger) read(id string) (*models.Execution, error) {
	data, err := os.ReadFile(l.path(id)) // #nosec G304 -- id is validated
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &models.ExecutionNotFoundError{ID: id}
		}

		return nil, fmt.Errorf("failed to read execution: %w", err)
	}

	var execution models.Execution
	if err := json.Unmarshal(data, &execution); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
	}

	return &execution, nil
}

func (l *Ledger) scan(keep func(*models.Execution) bool) ([]*models.Execution, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(l.root, executionsDir))
	if err != nil {
		return nil, fmt.Errorf("failed to read executions directory: %w", err)
	}

	executions := make([]*models.Execution, 0)

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		execution, err := l.read(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}

		if keep(execution) {
			executions = append(executions, execution)
		}
	}

	persistence.SortExecutions(executions)

	return executions, nil
}
