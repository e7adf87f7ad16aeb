package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockStepHandler is a mock implementation of protocol.StepHandler interface.
type MockStepHandler struct {
	mock.Mock
}

func (m *MockStepHandler) Handle(ctx context.Context, params map[string]string, variables map[string]any) (any, map[string]any, error) {
	args := m.Called(ctx, params, variables)

	var vars map[string]any
	if v := args.Get(1); v != nil {
		vars = v.(map[string]any)
	}

	return args.Get(0), vars, args.Error(2)
}
