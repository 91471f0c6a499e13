package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/teamwork/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ResponseFormat asks the provider for a JSON reply matching Schema.
type ResponseFormat struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

// Request captures the normalized model input produced by agents.
type Request struct {
	Messages       []core.Message   `json:"messages"`
	Tools          []ToolDefinition `json:"tools,omitempty"`
	ResponseFormat *ResponseFormat  `json:"response_format,omitempty"`
	Temperature    *float64         `json:"temperature,omitempty"` // nil keeps the provider default
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a completed model turn.
type Response struct {
	ID           string       `json:"id"`
	Message      core.Message `json:"message"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// HasToolCalls reports whether the model asked for tool execution.
func (r *Response) HasToolCalls() bool { return len(r.Message.ToolCalls) > 0 }

// Decode unmarshals the structured reply into v. Empty or malformed content
// yields core.ErrUnparseableResponse.
func (r *Response) Decode(v any) error {
	content := strings.TrimSpace(r.Message.Content)
	content = stripCodeFence(content)
	if content == "" {
		return core.ErrUnparseableResponse
	}
	if err := json.Unmarshal([]byte(content), v); err != nil {
		return fmt.Errorf("%w: %v", core.ErrUnparseableResponse, err)
	}
	return nil
}

// stripCodeFence removes a surrounding ```json fence some providers emit.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// Info contains metadata about a provider implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Provider is the contract agents and tools use to reach a language model.
type Provider interface {
	Completions(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the provider implementation.
	Info() Info
}

// Float returns a pointer to f, for Request.Temperature.
func Float(f float64) *float64 { return &f }
