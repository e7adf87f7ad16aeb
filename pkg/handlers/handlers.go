// Package handlers provides the built-in step handlers.
package handlers

import (
	"errors"
	"fmt"
)

var (
	ErrMissingParam     = errors.New("missing required parameter")
	ErrInvalidParam     = errors.New("invalid parameter")
	ErrUnexpectedStatus = errors.New("unexpected response status")
	ErrRecordNotFound   = errors.New("record not found")
)

func required(params map[string]string, name string) (string, error) {
	value := params[name]
	if value == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingParam, name)
	}

	return value, nil
}

// resultVariables stores value under the result_variable param, or fallback
// when the param is empty. An empty name yields no variables.
func resultVariables(params map[string]string, fallback string, value any) map[string]any {
	name := params["result_variable"]
	if name == "" {
		name = fallback
	}

	if name == "" {
		return nil
	}

	return map[string]any{name: value}
}
