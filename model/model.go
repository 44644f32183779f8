package model

import (
	"context"
	"fmt"
	"strings"
)

// Role identifies the author of a conversation message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a single provider-agnostic conversation entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// ToolCalls is set on assistant messages that request tool execution.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID links a tool-role message back to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// Name is the tool name on tool-role messages.
	Name string `json:"name,omitempty"`
}

// ToolCall represents a function call request surfaced by a model provider.
// Unified across vendors so downstream logic does not need per-provider branching.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string of arguments
}

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input produced by executors.
type Request struct {
	Instructions string           `json:"instructions"` // System prompt for the model
	Messages     []Message        `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// Usage captures token usage statistics for a response.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response is the completed output of a single model call.
type Response struct {
	Text         string     `json:"text"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *Usage     `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// TimeoutError indicates a model call exceeded its deadline.
type TimeoutError struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("model call to %s:%s timed out", e.Provider, e.Model)
}

// Model is the minimal interface required by executors to drive generation.
type Model interface {
	// Complete runs one model call over the conversation so far and returns
	// the assistant's answer, which either carries final text or tool calls.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// Factory resolves a "provider:model" spec into a ready Model. The runtime
// uses it to build per-agent models lazily from definition strings.
type Factory func(spec string) (Model, error)

// ParseSpec splits a "provider:model" spec into provider and model name.
// A "provider/model" form is normalized first. A bare name without provider
// is an error so misconfigured definitions fail at startup.
func ParseSpec(spec string) (provider, name string, err error) {
	normalized := strings.Replace(spec, "/", ":", 1)
	provider, name, found := strings.Cut(normalized, ":")
	if !found || provider == "" || name == "" {
		return "", "", fmt.Errorf("invalid model spec %q: want provider:model", spec)
	}
	return provider, name, nil
}

// EstimateTokens approximates token count for providers or paths that do not
// report usage. Roughly four characters per token.
func EstimateTokens(text string) int {
	return len(text) / 4
}
