// Package conditions evaluates rule conditions and decision predicates against
// a conversation context or an execution's variables.
package conditions

import (
	"strings"

	"github.com/dukex/escalate/pkg/models"
	"github.com/spf13/cast"
)

// Evaluate reports whether the condition holds for the given context.
// It never fails: a missing field or a value that cannot be compared yields false.
func Evaluate(condition models.Condition, ctx models.Context) bool {
	actual, ok := ctx.Lookup(condition.ContextField())
	if !ok {
		return false
	}

	return compare(condition.Kind, condition.Operator, actual, condition.Value)
}

// Trace evaluates the condition and records what was compared.
func Trace(index int, condition models.Condition, ctx models.Context) models.ConditionTrace {
	actual, present := ctx.Lookup(condition.ContextField())

	trace := models.ConditionTrace{
		Index:     index,
		Kind:      condition.Kind,
		Field:     condition.ContextField(),
		Operator:  condition.Operator,
		Expected:  condition.Value,
		Actual:    actual,
		Present:   present,
		Connector: condition.Connector,
	}

	if present {
		trace.Outcome = compare(condition.Kind, condition.Operator, actual, condition.Value)
	}

	return trace
}

// EvaluateAll folds the conditions left to right. The connector on condition
// i joins the running result with condition i+1; an empty list never matches.
func EvaluateAll(conds []models.Condition, ctx models.Context) (bool, []models.ConditionTrace) {
	traces := make([]models.ConditionTrace, 0, len(conds))
	if len(conds) == 0 {
		return false, traces
	}

	var result bool

	for i, condition := range conds {
		trace := Trace(i, condition, ctx)
		traces = append(traces, trace)

		if i == 0 {
			result = trace.Outcome
			continue
		}

		if conds[i-1].JoinsWithOr() {
			result = result || trace.Outcome
		} else {
			result = result && trace.Outcome
		}
	}

	return result, traces
}

func compare(kind models.ConditionKind, operator models.Operator, actual, expected any) bool {
	switch kind {
	case models.ConditionKindCustomerTier:
		if operator != models.OperatorEquals {
			return false
		}

		return stringEquals(actual, expected)
	case models.ConditionKindKeyword:
		return matchKeywords(operator, actual, expected)
	case models.ConditionKindCustom:
		switch operator {
		case models.OperatorContains, models.OperatorNotContains:
			return matchKeywords(operator, actual, expected)
		case models.OperatorEquals:
			if equal, ok := numericEquals(actual, expected); ok {
				return equal
			}

			return stringEquals(actual, expected)
		default:
			return compareNumbers(operator, actual, expected)
		}
	default:
		return compareNumbers(operator, actual, expected)
	}
}

func compareNumbers(operator models.Operator, actual, expected any) bool {
	a, ok := toNumber(actual)
	if !ok {
		return false
	}

	b, ok := toNumber(expected)
	if !ok {
		return false
	}

	switch operator {
	case models.OperatorLessThan:
		return a < b
	case models.OperatorGreaterThan:
		return a > b
	case models.OperatorEquals:
		return a == b
	default:
		return false
	}
}

func numericEquals(actual, expected any) (bool, bool) {
	a, ok := toNumber(actual)
	if !ok {
		return false, false
	}

	b, ok := toNumber(expected)
	if !ok {
		return false, false
	}

	return a == b, true
}

func stringEquals(actual, expected any) bool {
	a, ok := toString(actual)
	if !ok {
		return false
	}

	b, ok := toString(expected)
	if !ok {
		return false
	}

	return a == b
}

// matchKeywords treats expected as a comma separated keyword list.
// Contains holds when any keyword occurs in actual, NotContains when none does.
func matchKeywords(operator models.Operator, actual, expected any) bool {
	text, ok := actual.(string)
	if !ok {
		return false
	}

	keywords := splitKeywords(expected)
	if len(keywords) == 0 {
		return false
	}

	found := containsAny(strings.ToLower(text), keywords)

	switch operator {
	case models.OperatorContains:
		return found
	case models.OperatorNotContains:
		return !found
	default:
		return false
	}
}

func splitKeywords(value any) []string {
	raw, ok := toString(value)
	if !ok {
		return nil
	}

	parts := strings.Split(raw, ",")
	keywords := make([]string, 0, len(parts))

	for _, part := range parts {
		keyword := strings.ToLower(strings.TrimSpace(part))
		if keyword != "" {
			keywords = append(keywords, keyword)
		}
	}

	return keywords
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}

	return false
}

// toNumber coerces numbers and numeric strings. Booleans and nil are not numbers.
func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case nil, bool:
		return 0, false
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, false
		}

		value = trimmed
	}

	number, err := cast.ToFloat64E(value)
	if err != nil {
		return 0, false
	}

	return number, true
}

func toString(value any) (string, bool) {
	switch value.(type) {
	case nil, bool:
		return "", false
	}

	text, err := cast.ToStringE(value)
	if err != nil {
		return "", false
	}

	return text, true
}
