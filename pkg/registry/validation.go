package registry

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/dukex/escalate/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
)

func newValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	return validate
}

func (r *Registry) validateRule(rule *models.Rule) error {
	if rule == nil {
		return &models.ValidationError{Entity: "rule", Violations: []string{"rule is required"}}
	}

	violations := r.structViolations(rule)

	for i, condition := range rule.Conditions {
		violations = append(violations, conditionViolations(i, condition)...)
	}

	switch rule.Kind {
	case models.RuleKindEscalationAction:
		if len(rule.Actions) == 0 {
			violations = append(violations, "actions: escalation rules need at least one action")
		}
	case models.RuleKindWorkflowTrigger:
		if rule.WorkflowID == "" {
			violations = append(violations, "workflow_id: workflow trigger rules need a workflow reference")
		}
	}

	if len(violations) > 0 {
		return &models.ValidationError{Entity: "rule", ID: rule.ID, Violations: violations}
	}

	return nil
}

func conditionViolations(index int, condition models.Condition) []string {
	var violations []string

	prefix := fmt.Sprintf("conditions[%d]", index)

	if condition.Value == nil {
		violations = append(violations, prefix+".value: is required")
	}

	if condition.Operator == models.OperatorContains || condition.Operator == models.OperatorNotContains {
		keywords, err := cast.ToStringE(condition.Value)
		if err != nil || strings.Trim(keywords, ", ") == "" {
			violations = append(violations, prefix+".value: must list at least one keyword")
		}
	}

	return violations
}

// validateWorkflow checks fields, per-kind step parameters and graph integrity.
// Steps keyed without an id take their key as id.
func (r *Registry) validateWorkflow(workflow *models.Workflow) error {
	if workflow == nil {
		return &models.ValidationError{Entity: "workflow", Violations: []string{"workflow is required"}}
	}

	violations := r.structViolations(workflow)

	ids := make([]string, 0, len(workflow.Steps))
	for id := range workflow.Steps {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	for _, id := range ids {
		step := workflow.Steps[id]
		prefix := "steps." + id

		if step == nil {
			violations = append(violations, prefix+": step is required")
			continue
		}

		if step.ID == "" {
			step.ID = id
		}

		if step.ID != id {
			violations = append(violations, fmt.Sprintf("%s.id: %q does not match its key", prefix, step.ID))
		}

		for _, violation := range r.structViolations(step) {
			violations = append(violations, prefix+"."+violation)
		}

		violations = append(violations, paramViolations(prefix, step)...)

		for _, edge := range []string{"next", "on_success", "on_failure"} {
			target, ok := step.Edges()[edge]
			if !ok {
				continue
			}

			if next, exists := workflow.Steps[target]; !exists || next == nil {
				violations = append(violations, fmt.Sprintf("%s.%s: step %q does not exist", prefix, edge, target))
			}
		}
	}

	if workflow.EntryStepID != "" {
		if entry, ok := workflow.Steps[workflow.EntryStepID]; !ok || entry == nil {
			violations = append(violations, fmt.Sprintf("entry_step_id: step %q does not exist", workflow.EntryStepID))
		}
	}

	if len(violations) > 0 {
		return &models.ValidationError{Entity: "workflow", ID: workflow.ID, Violations: violations}
	}

	return nil
}

func (r *Registry) structViolations(value any) []string {
	err := r.validate.Struct(value)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []string{err.Error()}
	}

	violations := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		violations = append(violations, describe(fieldErr))
	}

	return violations
}

func describe(fieldErr validator.FieldError) string {
	// Namespace is "Rule.conditions[0].kind"; drop the type name.
	_, field, found := strings.Cut(fieldErr.Namespace(), ".")
	if !found {
		field = fieldErr.Field()
	}

	switch fieldErr.Tag() {
	case "required", "required_if":
		return field + ": is required"
	case "min":
		return fmt.Sprintf("%s: needs at least %s item(s)", field, fieldErr.Param())
	case "oneof":
		return fmt.Sprintf("%s: %v is not one of [%s]", field, fieldErr.Value(), fieldErr.Param())
	default:
		return fmt.Sprintf("%s: failed %q validation", field, fieldErr.Tag())
	}
}
