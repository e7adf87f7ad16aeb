package web

import (
	"github.com/dukex/escalate/pkg/models"
	"github.com/dukex/escalate/pkg/services"
)

// SetActiveRequest toggles a rule or workflow.
type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// EvaluateTriggersRequest is the body of POST /triggers/evaluate.
type EvaluateTriggersRequest struct {
	Industry string         `json:"industry" validate:"required"`
	Context  models.Context `json:"context"`
}

// EvaluateTriggersResponse lists matched rules with their traces.
type EvaluateTriggersResponse struct {
	Matches []MatchResponse `json:"matches"`
	Actions []models.Action `json:"actions"`
}

// MatchResponse is a match without the full rule body.
type MatchResponse struct {
	RuleID     string            `json:"rule_id"`
	RuleName   string            `json:"rule_name"`
	RuleKind   models.RuleKind   `json:"rule_kind"`
	Actions    []models.Action   `json:"actions,omitempty"`
	WorkflowID string            `json:"workflow_id,omitempty"`
	Trace      models.MatchTrace `json:"trace"`
}

// EventResponse is the body returned by POST /events. Error is set when some
// matched workflows could not be started.
type EventResponse struct {
	ConversationID string              `json:"conversation_id"`
	Matches        []MatchResponse     `json:"matches"`
	Actions        []models.Action     `json:"actions"`
	Executions     []*models.Execution `json:"executions"`
	Error          string              `json:"error,omitempty"`
}

// StartExecutionRequest is the body of POST /executions.
type StartExecutionRequest struct {
	WorkflowID     string         `json:"workflow_id"     validate:"required"`
	ConversationID string         `json:"conversation_id" validate:"required"`
	Variables      map[string]any `json:"variables"`
}

// ExecutionsResponse wraps an execution listing.
type ExecutionsResponse struct {
	Executions []*models.Execution `json:"executions"`
	TotalCount int                 `json:"total_count"`
}

func transformMatches(matches []models.MatchResult) []MatchResponse {
	responses := make([]MatchResponse, 0, len(matches))

	for _, match := range matches {
		response := MatchResponse{
			Actions:    match.Actions,
			WorkflowID: match.WorkflowID,
			Trace:      match.Trace,
		}

		if match.Rule != nil {
			response.RuleID = match.Rule.ID
			response.RuleName = match.Rule.Name
			response.RuleKind = match.Rule.Kind
		}

		responses = append(responses, response)
	}

	return responses
}

func collectActions(matches []models.MatchResult) []models.Action {
	actions := make([]models.Action, 0)

	for _, match := range matches {
		actions = append(actions, match.Actions...)
	}

	return actions
}

func transformOutcome(outcome *services.EventOutcome, err error) EventResponse {
	response := EventResponse{
		ConversationID: outcome.ConversationID,
		Matches:        transformMatches(outcome.Matches),
		Actions:        outcome.Actions,
		Executions:     outcome.Executions,
	}

	if err != nil {
		response.Error = err.Error()
	}

	return response
}
