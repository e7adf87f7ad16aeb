package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// DefaultResponseVariable receives the generated reply unless result_variable is set.
const DefaultResponseVariable = "ai_response"

// Generator produces a reply for a rendered prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, variables map[string]any) (string, error)
}

type GeneratorFunc func(ctx context.Context, prompt string, variables map[string]any) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string, variables map[string]any) (string, error) {
	return f(ctx, prompt, variables)
}

type AIResponse struct {
	generator Generator
}

func NewAIResponse(generator Generator) *AIResponse {
	return &AIResponse{generator: generator}
}

func (a *AIResponse) Handle(ctx context.Context, params map[string]string, variables map[string]any) (any, map[string]any, error) {
	prompt, err := required(params, "prompt")
	if err != nil {
		return nil, nil, err
	}

	reply, err := a.generator.Generate(ctx, prompt, variables)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate response: %w", err)
	}

	return reply, resultVariables(params, DefaultResponseVariable, reply), nil
}

// HTTPGenerator posts {"prompt", "variables"} to an endpoint and reads
// {"response"} back.
type HTTPGenerator struct {
	Endpoint string
	Client   *http.Client
}

type generateRequest struct {
	Prompt    string         `json:"prompt"`
	Variables map[string]any `json:"variables,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (g HTTPGenerator) Generate(ctx context.Context, prompt string, variables map[string]any) (string, error) {
	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}

	payload, err := json.Marshal(generateRequest{Prompt: prompt, Variables: variables})
	if err != nil {
		return "", fmt.Errorf("failed to marshal prompt: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("generator request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, resp.Body)

		return "", fmt.Errorf("%w: generator returned %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var decoded generateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode generator response: %w", err)
	}

	return decoded.Response, nil
}
