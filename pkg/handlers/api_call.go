package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultAPITimeout = 30 * time.Second
	maxResponseBytes  = 1 << 20
)

// APICall performs an HTTP request against endpoint. JSON responses are
// decoded; anything else is kept as text. Status codes of 400 and above fail
// the step with the response as output.
type APICall struct {
	client *http.Client
	logger *slog.Logger
}

// NewAPICall creates the handler. A nil client uses http.DefaultClient.
func NewAPICall(client *http.Client, logger *slog.Logger) *APICall {
	if client == nil {
		client = http.DefaultClient
	}

	return &APICall{
		client: client,
		logger: logger.With("module", "api_call_handler"),
	}
}

func (a *APICall) Handle(ctx context.Context, params map[string]string, _ map[string]any) (any, map[string]any, error) {
	endpoint, err := required(params, "endpoint")
	if err != nil {
		return nil, nil, err
	}

	method := strings.ToUpper(params["method"])
	if method == "" {
		method = http.MethodGet
	}

	timeout := DefaultAPITimeout

	if raw := params["timeout"]; raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms <= 0 {
			return nil, nil, fmt.Errorf("%w: timeout %q", ErrInvalidParam, raw)
		}

		timeout = time.Duration(ms) * time.Millisecond
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if params["body"] != "" {
		body = strings.NewReader(params["body"])
	}

	req, err := http.NewRequestWithContext(reqCtx, method, endpoint, body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create http request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	a.logger.Debug("API call completed",
		"method", method,
		"endpoint", endpoint,
		"status_code", resp.StatusCode,
		"body_length", len(raw))

	payload := decodeBody(raw)
	output := map[string]any{
		"status_code": resp.StatusCode,
		"body":        payload,
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return output, nil, fmt.Errorf("%w: %s %s returned %d", ErrUnexpectedStatus, method, endpoint, resp.StatusCode)
	}

	vars := resultVariables(params, "", payload)

	if params["merge_response"] == "true" {
		if fields, ok := payload.(map[string]any); ok {
			if vars == nil {
				vars = make(map[string]any, len(fields))
			}

			maps.Copy(vars, fields)
		}
	}

	return output, vars, nil
}

func decodeBody(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}

	return decoded
}
