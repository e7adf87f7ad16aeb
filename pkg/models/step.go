package models

import "maps"

// StepKind is the closed set of step variants a workflow may contain.
type StepKind string

const (
	StepKindAIResponse   StepKind = "ai_response"
	StepKindAPICall      StepKind = "api_call"
	StepKindDataFetch    StepKind = "data_fetch"
	StepKindDecision     StepKind = "decision"
	StepKindNotification StepKind = "notification"
	StepKindWait         StepKind = "wait"
)

// StepKinds lists every supported step kind.
var StepKinds = []StepKind{
	StepKindAIResponse,
	StepKindAPICall,
	StepKindDataFetch,
	StepKindDecision,
	StepKindNotification,
	StepKindWait,
}

// Step is a unit of work in a workflow. Params are templates rendered against
// the execution variables before the handler runs. A step without edges is terminal.
type Step struct {
	ID        string            `json:"id"                   yaml:"id"`
	Name      string            `json:"name"                 yaml:"name"`
	Kind      StepKind          `json:"kind"                 yaml:"kind"                 validate:"required,oneof=ai_response api_call data_fetch decision notification wait"`
	Params    map[string]string `json:"params,omitempty"     yaml:"params,omitempty"`
	Next      string            `json:"next,omitempty"       yaml:"next,omitempty"`
	OnSuccess string            `json:"on_success,omitempty" yaml:"on_success,omitempty"`
	OnFailure string            `json:"on_failure,omitempty" yaml:"on_failure,omitempty"`
}

// Edges returns the outgoing references keyed by edge name.
func (s *Step) Edges() map[string]string {
	edges := make(map[string]string, 3)

	if s.Next != "" {
		edges["next"] = s.Next
	}

	if s.OnSuccess != "" {
		edges["on_success"] = s.OnSuccess
	}

	if s.OnFailure != "" {
		edges["on_failure"] = s.OnFailure
	}

	return edges
}

// IsTerminal reports whether the step has no outgoing edges.
func (s *Step) IsTerminal() bool {
	return s.Next == "" && s.OnSuccess == "" && s.OnFailure == ""
}

// SuccessTarget is the step that follows a successful run: on_success, else next.
func (s *Step) SuccessTarget() string {
	if s.OnSuccess != "" {
		return s.OnSuccess
	}

	return s.Next
}

func (s *Step) Clone() *Step {
	if s == nil {
		return nil
	}

	clone := *s
	clone.Params = maps.Clone(s.Params)

	return &clone
}
