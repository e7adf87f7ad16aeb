package registry

import (
	"fmt"
	"sort"

	"github.com/dukex/escalate/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// templatedOr matches a literal pattern or a value containing a {{...}} token
// that is only known at run time.
func templatedOr(pattern string) string {
	return fmt.Sprintf(`^(%s|.*\{\{.*\}\}.*)$`, pattern)
}

func stringProperty() map[string]any {
	return map[string]any{"type": "string", "minLength": 1}
}

func objectSchema(required []string, properties map[string]any) map[string]any {
	return map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"type":       "object",
		"required":   required,
		"properties": properties,
	}
}

// ParamSchemas describes the parameters each step kind accepts. Handlers may
// read additional optional parameters.
func ParamSchemas() map[models.StepKind]map[string]any {
	return map[models.StepKind]map[string]any{
		models.StepKindAIResponse: objectSchema(
			[]string{"prompt"},
			map[string]any{
				"prompt":          stringProperty(),
				"result_variable": stringProperty(),
			},
		),
		models.StepKindAPICall: objectSchema(
			[]string{"endpoint"},
			map[string]any{
				"endpoint": map[string]any{"type": "string", "pattern": templatedOr(`https?://.+`)},
				"method": map[string]any{
					"type":    "string",
					"pattern": templatedOr(`GET|POST|PUT|PATCH|DELETE|get|post|put|patch|delete`),
				},
				"body":            map[string]any{"type": "string"},
				"result_variable": stringProperty(),
				"merge_response":  map[string]any{"type": "string", "enum": []any{"true", "false"}},
				"timeout":         map[string]any{"type": "string", "pattern": templatedOr(`\d+`)},
			},
		),
		models.StepKindDataFetch: objectSchema(
			[]string{"collection", "query"},
			map[string]any{
				"collection":      stringProperty(),
				"query":           stringProperty(),
				"result_variable": stringProperty(),
			},
		),
		models.StepKindDecision: objectSchema(
			[]string{"field", "operator", "value"},
			map[string]any{
				"field": stringProperty(),
				"operator": map[string]any{
					"type": "string",
					"enum": []any{"less_than", "greater_than", "equals", "not_equals", "contains", "not_contains"},
				},
				"value":           map[string]any{"type": "string"},
				"result_variable": stringProperty(),
			},
		),
		models.StepKindNotification: objectSchema(
			[]string{"channel", "target", "message"},
			map[string]any{
				"channel": stringProperty(),
				"target":  stringProperty(),
				"message": stringProperty(),
			},
		),
		models.StepKindWait: objectSchema(
			[]string{"duration"},
			map[string]any{
				"duration": map[string]any{"type": "string", "pattern": templatedOr(`\d+`)},
				"mode":     map[string]any{"type": "string", "enum": []any{"inline", "suspend"}},
			},
		),
	}
}

const rootField = "(root)"

var paramSchemas = mustCompileSchemas()

func mustCompileSchemas() map[models.StepKind]*gojsonschema.Schema {
	compiled := make(map[models.StepKind]*gojsonschema.Schema)

	for kind, schema := range ParamSchemas() {
		s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
		if err != nil {
			panic(fmt.Sprintf("compile %s parameter schema: %v", kind, err))
		}

		compiled[kind] = s
	}

	return compiled
}

func paramViolations(prefix string, step *models.Step) []string {
	schema, ok := paramSchemas[step.Kind]
	if !ok {
		// unknown kinds are reported by struct validation
		return nil
	}

	document := make(map[string]any, len(step.Params))
	for key, value := range step.Params {
		document[key] = value
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(document))
	if err != nil {
		return []string{fmt.Sprintf("%s.params: %v", prefix, err)}
	}

	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))

	for _, resultErr := range result.Errors() {
		field := resultErr.Field()
		if field == rootField {
			violations = append(violations, fmt.Sprintf("%s.params: %s", prefix, resultErr.Description()))
			continue
		}

		violations = append(violations, fmt.Sprintf("%s.params.%s: %s", prefix, field, resultErr.Description()))
	}

	sort.Strings(violations)

	return violations
}
