package conditions

import (
	"errors"
	"fmt"

	"github.com/dukex/escalate/pkg/models"
)

// ErrMissingVariable is returned when a decision references an unset variable.
var ErrMissingVariable = errors.New("variable is not set")

// EvaluateVariable applies a decision predicate to variables[field]. Besides the
// condition operators it supports not_equals. Equality compares numerically when
// both sides are numbers and falls back to exact string comparison otherwise.
func EvaluateVariable(field string, operator models.Operator, value any, variables map[string]any) (bool, error) {
	actual, ok := models.Context(variables).Lookup(field)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrMissingVariable, field)
	}

	switch operator {
	case models.OperatorLessThan, models.OperatorGreaterThan,
		models.OperatorEquals, models.OperatorContains, models.OperatorNotContains:
		return compare(models.ConditionKindCustom, operator, actual, value), nil
	case models.OperatorNotEquals:
		return !compare(models.ConditionKindCustom, models.OperatorEquals, actual, value), nil
	default:
		return false, fmt.Errorf("unsupported operator %q", operator)
	}
}
