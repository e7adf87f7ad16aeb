// Package protocol defines the contracts between the workflow executor and the
// collaborators it drives.
package protocol

import (
	"context"
	"errors"

	"github.com/dukex/escalate/pkg/models"
)

// ErrSuspend is returned by a step handler that wants the execution paused
// after the step. The step counts as successful and the execution resumes at
// the step's success target.
var ErrSuspend = errors.New("execution suspended")

// StepHandler runs one step kind. Params are already rendered against the
// variables. The returned variables are merged into the execution's bag, even
// when err is non-nil.
type StepHandler interface {
	Handle(ctx context.Context, params map[string]string, variables map[string]any) (output any, vars map[string]any, err error)
}

// StepHandlerFunc adapts a function to StepHandler.
type StepHandlerFunc func(ctx context.Context, params map[string]string, variables map[string]any) (any, map[string]any, error)

func (f StepHandlerFunc) Handle(ctx context.Context, params map[string]string, variables map[string]any) (any, map[string]any, error) {
	return f(ctx, params, variables)
}

// Handlers is the dispatch table of step handlers, one slot per step kind.
// A nil slot means the kind is not supported by this engine instance.
type Handlers struct {
	AIResponse   StepHandler
	APICall      StepHandler
	DataFetch    StepHandler
	Decision     StepHandler
	Notification StepHandler
	Wait         StepHandler
}

// For returns the handler registered for kind.
func (h Handlers) For(kind models.StepKind) (StepHandler, bool) {
	var handler StepHandler

	switch kind {
	case models.StepKindAIResponse:
		handler = h.AIResponse
	case models.StepKindAPICall:
		handler = h.APICall
	case models.StepKindDataFetch:
		handler = h.DataFetch
	case models.StepKindDecision:
		handler = h.Decision
	case models.StepKindNotification:
		handler = h.Notification
	case models.StepKindWait:
		handler = h.Wait
	}

	return handler, handler != nil
}

// ContextProvider supplies the signal bag computed upstream for a conversation.
type ContextProvider interface {
	Context(ctx context.Context, conversationID string) (models.Context, error)
}

// StaticContextProvider serves contexts from a fixed map keyed by conversation id.
type StaticContextProvider map[string]models.Context

func (p StaticContextProvider) Context(_ context.Context, conversationID string) (models.Context, error) {
	c, ok := p[conversationID]
	if !ok {
		return models.Context{}, nil
	}

	return c, nil
}
