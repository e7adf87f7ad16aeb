// Package persistence defines the execution ledger and the rules every
// backend enforces when recording executions.
package persistence

import (
	"cmp"
	"context"
	"slices"

	"github.com/dukex/escalate/pkg/models"
)

// Ledger stores executions keyed by id and indexed by workflow and conversation.
//
// Record upserts a copy of the execution. Once a terminal status is stored it
// is never replaced, and a record may only extend the stored step log.
type Ledger interface {
	Record(ctx context.Context, execution *models.Execution) error
	Get(ctx context.Context, id string) (*models.Execution, error)
	ByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error)
	ByConversation(ctx context.Context, conversationID string) ([]*models.Execution, error)
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// SortExecutions orders executions by start time, then id.
func SortExecutions(executions []*models.Execution) {
	slices.SortFunc(executions, func(a, b *models.Execution) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}

		return cmp.Compare(a.ID, b.ID)
	})
}
