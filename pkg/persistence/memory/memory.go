// Package memory provides the in-process execution ledger.
package memory

import (
	"context"
	"sync"

	"github.com/dukex/escalate/pkg/models"
	"github.com/dukex/escalate/pkg/persistence"
)

type Ledger struct {
	mu             sync.RWMutex
	executions     map[string]*models.Execution
	byWorkflow     map[string][]string
	byConversation map[string][]string
}

func NewLedger() *Ledger {
	return &Ledger{
		executions:     make(map[string]*models.Execution),
		byWorkflow:     make(map[string][]string),
		byConversation: make(map[string][]string),
	}
}

func (l *Ledger) Record(_ context.Context, execution *models.Execution) error {
	if execution == nil {
		return persistence.NewLedgerError("Record", "", persistence.ErrInvalidExecutionID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	stored, exists := l.executions[execution.ID]

	if err := persistence.CheckAppend(stored, execution); err != nil {
		return persistence.NewLedgerError("Record", execution.ID, err)
	}

	l.executions[execution.ID] = execution.Clone()

	if !exists {
		l.byWorkflow[execution.WorkflowID] = append(l.byWorkflow[execution.WorkflowID], execution.ID)
		l.byConversation[execution.ConversationID] = append(l.byConversation[execution.ConversationID], execution.ID)
	}

	return nil
}

func (l *Ledger) Get(_ context.Context, id string) (*models.Execution, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	execution, ok := l.executions[id]
	if !ok {
		return nil, &models.ExecutionNotFoundError{ID: id}
	}

	return execution.Clone(), nil
}

func (l *Ledger) ByWorkflow(_ context.Context, workflowID string) ([]*models.Execution, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.collect(l.byWorkflow[workflowID]), nil
}

func (l *Ledger) ByConversation(_ context.Context, conversationID string) ([]*models.Execution, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.collect(l.byConversation[conversationID]), nil
}

func (l *Ledger) HealthCheck(_ context.Context) error {
	return nil
}

func (l *Ledger) Close(_ context.Context) error {
	return nil
}

func (l *Ledger) collect(ids []string) []*models.Execution {
	executions := make([]*models.Execution, 0, len(ids))
	for _, id := range ids {
		executions = append(executions, l.executions[id].Clone())
	}

	persistence.SortExecutions(executions)

	return executions
}
