// Package template substitutes {{name}} tokens in step parameters with
// execution variables.
package template

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cast"
)

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// Render replaces every {{name}} token in input with the matching variable.
// Whitespace inside the braces is ignored and dotted names walk nested maps.
// Tokens that do not resolve are left untouched. Substituted text is never
// rescanned.
func Render(input string, vars map[string]any) string {
	if !strings.Contains(input, openDelim) {
		return input
	}

	var out strings.Builder

	out.Grow(len(input))

	rest := input
	for {
		start := strings.Index(rest, openDelim)
		if start < 0 {
			out.WriteString(rest)
			break
		}

		end := strings.Index(rest[start+len(openDelim):], closeDelim)
		if end < 0 {
			out.WriteString(rest)
			break
		}

		end += start + len(openDelim)
		token := rest[start : end+len(closeDelim)]
		name := strings.TrimSpace(rest[start+len(openDelim) : end])

		out.WriteString(rest[:start])

		if value, ok := lookup(vars, name); ok {
			out.WriteString(stringify(value))
		} else {
			out.WriteString(token)
		}

		rest = rest[end+len(closeDelim):]
	}

	return out.String()
}

// RenderParams renders every parameter value and returns a new map.
func RenderParams(params map[string]string, vars map[string]any) map[string]string {
	rendered := make(map[string]string, len(params))
	for key, value := range params {
		rendered[key] = Render(value, vars)
	}

	return rendered
}

// IsTemplated reports whether input contains a {{...}} token.
func IsTemplated(input string) bool {
	start := strings.Index(input, openDelim)
	if start < 0 {
		return false
	}

	return strings.Contains(input[start+len(openDelim):], closeDelim)
}

func lookup(vars map[string]any, name string) (any, bool) {
	if name == "" || vars == nil {
		return nil, false
	}

	if value, ok := vars[name]; ok {
		return value, value != nil
	}

	current := any(vars)

	for _, part := range strings.Split(name, ".") {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = object[part]
		if !ok {
			return nil, false
		}
	}

	return current, current != nil
}

func stringify(value any) string {
	switch v := value.(type) {
	case map[string]any, []any, []string, []map[string]any:
		encoded, err := json.Marshal(v)
		if err == nil {
			return string(encoded)
		}
	}

	return cast.ToString(value)
}
