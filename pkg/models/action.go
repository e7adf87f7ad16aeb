package models

// ActionType is the kind of escalation performed for a matched rule.
type ActionType string

const (
	ActionTypeAssignAgent        ActionType = "assign_agent"
	ActionTypeCreateTicket       ActionType = "create_ticket"
	ActionTypeNotify             ActionType = "notify"
	ActionTypeTransferDepartment ActionType = "transfer_department"
	ActionTypeSendMessage        ActionType = "send_message"
)

// ActionPriority ranks the urgency of an escalation action.
type ActionPriority string

const (
	ActionPriorityLow    ActionPriority = "low"
	ActionPriorityMedium ActionPriority = "medium"
	ActionPriorityHigh   ActionPriority = "high"
	ActionPriorityUrgent ActionPriority = "urgent"
)

// Action is an escalation returned to the caller when a rule matches.
type Action struct {
	Type     ActionType     `json:"type"               yaml:"type"               validate:"required,oneof=assign_agent create_ticket notify transfer_department send_message"`
	Target   string         `json:"target"             yaml:"target"             validate:"required"`
	Priority ActionPriority `json:"priority"           yaml:"priority"           validate:"required,oneof=low medium high urgent"`
	Template string         `json:"template,omitempty" yaml:"template,omitempty"`
}
