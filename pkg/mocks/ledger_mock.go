package mocks

import (
	"context"

	"github.com/dukex/escalate/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockLedger is a mock implementation of persistence.Ledger interface.
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Record(ctx context.Context, execution *models.Execution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockLedger) Get(ctx context.Context, id string) (*models.Execution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Execution), args.Error(1)
}

func (m *MockLedger) ByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Execution), args.Error(1)
}

func (m *MockLedger) ByConversation(ctx context.Context, conversationID string) ([]*models.Execution, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Execution), args.Error(1)
}

func (m *MockLedger) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockLedger) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
