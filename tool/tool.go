// Package tool implements the function / tool calling subsystem that lets agents
// invoke structured capabilities (file access, database queries, web lookups,
// delegation) with schema validated arguments and consistent error handling.
package tool

import (
	"context"
	"fmt"

	"github.com/skydesk-ai/skydesk/internal/util"
)

// Result statuses recorded in conversation logs.
const (
	StatusCompleted = "completed"
	StatusError     = "error"
)

// PreviewLength bounds the result preview stored in log metadata.
const PreviewLength = 200

// Tool defines the interface for extending agent capabilities with external functions.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions (snake_case names)
//   - Define proper JSON schema for parameters
//   - Handle errors gracefully
//   - Be thread-safe if used concurrently
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool does.
	// This description is provided to the LLM to help it understand when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	// This schema is used for parameter validation and LLM function calling.
	Parameters() map[string]any

	// Execute runs the tool with already-parsed arguments. Implementations
	// return a Result for ordinary outcomes, including domain failures the
	// model should see; an error return is reserved for validation and
	// execution faults that the caller wraps uniformly.
	Execute(ctx context.Context, args map[string]any) (*Result, error)
}

// Result is the normalized outcome of a tool execution. Content carries the
// text handed back to the model; Status distinguishes ordinary completions
// from failures that are reported to the model rather than raised.
type Result struct {
	Status  string `json:"status"`
	Content string `json:"content"`
}

// NewResult wraps content in a completed result.
func NewResult(content string) *Result {
	return &Result{Status: StatusCompleted, Content: content}
}

// ErrorResult wraps a failure description in an error result.
func ErrorResult(content string) *Result {
	return &Result{Status: StatusError, Content: content}
}

// Preview returns the leading PreviewLength bytes of the content, trimmed to
// a rune boundary so log metadata stays valid UTF-8.
func (r *Result) Preview() string {
	return trimToRuneBoundary(r.Content, PreviewLength)
}

// Length returns the content length in bytes.
func (r *Result) Length() int { return len(r.Content) }

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// InvalidParametersError indicates the model supplied arguments that do not
// match the tool's declared schema.
type InvalidParametersError struct {
	Tool   string `json:"tool"`
	Reason string `json:"reason"`
}

func (e *InvalidParametersError) Error() string {
	return fmt.Sprintf("invalid parameters for tool %s: %s", e.Tool, e.Reason)
}

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Run executes a tool and converts every failure mode into an error Result,
// so a misbehaving tool degrades a single call rather than the whole turn.
func Run(ctx context.Context, t Tool, args map[string]any) *Result {
	result, err := t.Execute(ctx, args)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if result == nil {
		return ErrorResult(fmt.Sprintf("tool %s returned no result", t.Name()))
	}
	return result
}

// Definition renders a tool as a model-facing function definition.
func Definition(t Tool) map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name(),
			"description": t.Description(),
			"parameters":  t.Parameters(),
		},
	}
}
