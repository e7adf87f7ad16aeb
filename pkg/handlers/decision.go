package handlers

import (
	"context"

	"github.com/dukex/escalate/pkg/conditions"
	"github.com/dukex/escalate/pkg/models"
)

// Decision compares variables[field] with value. The boolean output selects
// the branch; a missing variable is an error.
type Decision struct{}

func (Decision) Handle(_ context.Context, params map[string]string, variables map[string]any) (any, map[string]any, error) {
	field, err := required(params, "field")
	if err != nil {
		return nil, nil, err
	}

	operator, err := required(params, "operator")
	if err != nil {
		return nil, nil, err
	}

	taken, err := conditions.EvaluateVariable(field, models.Operator(operator), params["value"], variables)
	if err != nil {
		return nil, nil, err
	}

	return taken, resultVariables(params, "", taken), nil
}
