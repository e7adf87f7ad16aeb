package models

// ConditionKind identifies which conversation signal a condition inspects.
type ConditionKind string

const (
	ConditionKindConfidence         ConditionKind = "confidence"
	ConditionKindSentiment          ConditionKind = "sentiment"
	ConditionKindKeyword            ConditionKind = "keyword"
	ConditionKindConversationLength ConditionKind = "conversation_length"
	ConditionKindCustomerTier       ConditionKind = "customer_tier"
	ConditionKindAmount             ConditionKind = "amount"
	ConditionKindCustom             ConditionKind = "custom"
)

// Operator is the comparison applied between a context value and a condition value.
type Operator string

const (
	OperatorLessThan    Operator = "less_than"
	OperatorGreaterThan Operator = "greater_than"
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals" // Decision steps only
	OperatorContains    Operator = "contains"
	OperatorNotContains Operator = "not_contains"
)

// Connector joins a condition to the one that follows it.
type Connector string

const (
	ConnectorAnd  Connector = "and"
	ConnectorOr   Connector = "or"
	ConnectorNone Connector = "none"
)

// Condition is a single predicate over the conversation context.
// Connector describes the relation to the next condition in a rule;
// the last condition's connector is ignored.
type Condition struct {
	Kind      ConditionKind `json:"kind"                yaml:"kind"                validate:"required,oneof=confidence sentiment keyword conversation_length customer_tier amount custom"`
	Operator  Operator      `json:"operator"            yaml:"operator"            validate:"required,oneof=less_than greater_than equals contains not_contains"`
	Value     any           `json:"value"               yaml:"value"`
	Connector Connector     `json:"connector,omitempty" yaml:"connector,omitempty" validate:"omitempty,oneof=and or none"`
	Field     string        `json:"field,omitempty"     yaml:"field,omitempty"     validate:"required_if=Kind custom"`
}

// ContextField returns the context key the condition reads.
func (c Condition) ContextField() string {
	switch c.Kind {
	case ConditionKindConfidence:
		return ContextConfidence
	case ConditionKindSentiment:
		return ContextSentiment
	case ConditionKindKeyword:
		return ContextMessage
	case ConditionKindConversationLength:
		return ContextConversationLength
	case ConditionKindCustomerTier:
		return ContextCustomerTier
	case ConditionKindAmount:
		return ContextAmount
	case ConditionKindCustom:
		return c.Field
	default:
		return ""
	}
}

// JoinsWithOr reports whether the condition is OR-ed with the next one.
// Unset and "none" connectors behave as "and".
func (c Condition) JoinsWithOr() bool {
	return c.Connector == ConnectorOr
}
