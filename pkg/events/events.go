// Package events defines the messages published on the event bus for
// execution lifecycle and conversation signals.
package events

import (
	"time"

	"github.com/dukex/escalate/pkg/models"
)

type EventType string

// Topic carries every escalate event; consumers filter by event type.
const Topic = "escalate.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	StepCompletedEvent      EventType = "execution.step.completed"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionPausedEvent    EventType = "execution.paused"
	ExecutionResumedEvent   EventType = "execution.resumed"

	// Matching events.
	RuleMatchedEvent EventType = "rule.matched"

	// Inbound conversation signals consumed by the worker.
	ConversationSignalEvent EventType = "conversation.signal"

	// Outbound notifications emitted by notification steps.
	NotificationRequestedEvent EventType = "notification.requested"
)

type BaseEvent struct {
	ID             string         `json:"id"`
	Type           EventType      `json:"type"`
	Timestamp      time.Time      `json:"timestamp"`
	WorkflowID     string         `json:"workflow_id,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	EntryStepID string         `json:"entry_step_id"`
	Variables   map[string]any `json:"variables,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type StepCompleted struct {
	BaseEvent

	ExecutionID string             `json:"execution_id"`
	Outcome     models.StepOutcome `json:"outcome"`
	NextStepID  string             `json:"next_step_id,omitempty"`
}

func (e StepCompleted) GetType() EventType {
	return StepCompletedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	Output      any           `json:"output,omitempty"`
	Steps       int           `json:"steps"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID  string        `json:"execution_id"`
	FailedStepID string        `json:"failed_step_id,omitempty"`
	Error        string        `json:"error"`
	Duration     time.Duration `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionPaused struct {
	BaseEvent

	ExecutionID  string `json:"execution_id"`
	ResumeStepID string `json:"resume_step_id,omitempty"`
}

func (e ExecutionPaused) GetType() EventType {
	return ExecutionPausedEvent
}

type ExecutionResumed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	StepID      string `json:"step_id,omitempty"`
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

type RuleMatched struct {
	BaseEvent

	RuleID    string            `json:"rule_id"`
	RuleKind  models.RuleKind   `json:"rule_kind"`
	Industry  string            `json:"industry"`
	Actions   []models.Action   `json:"actions,omitempty"`
	Trace     models.MatchTrace `json:"trace"`
	Triggered int64             `json:"triggered_count"`
}

func (e RuleMatched) GetType() EventType {
	return RuleMatchedEvent
}

// ConversationSignal is an inbound conversation event published by upstream
// analytics for the worker to evaluate.
type ConversationSignal struct {
	BaseEvent

	Industry  string         `json:"industry"`
	Context   models.Context `json:"context"`
	Variables map[string]any `json:"variables,omitempty"`
}

func (e ConversationSignal) GetType() EventType {
	return ConversationSignalEvent
}

// ConversationEvent converts the signal into the engine's input.
func (e ConversationSignal) ConversationEvent() models.ConversationEvent {
	return models.ConversationEvent{
		ConversationID: e.ConversationID,
		Industry:       e.Industry,
		Context:        e.Context,
		Variables:      e.Variables,
	}
}

type NotificationRequested struct {
	BaseEvent

	Channel string `json:"channel"`
	Target  string `json:"target"`
	Message string `json:"message"`
}

func (e NotificationRequested) GetType() EventType {
	return NotificationRequestedEvent
}
