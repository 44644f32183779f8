package session

import (
	"fmt"
	"time"
)

// Message roles stored in conversation logs.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Tool lifecycle statuses recorded in message metadata.
const (
	ToolStatusStarted   = "started"
	ToolStatusCompleted = "completed"
	ToolStatusError     = "error"
)

// Metadata keys used on tool messages.
const (
	MetaToolName      = "tool_name"
	MetaToolParams    = "tool_params"
	MetaToolStatus    = "tool_status"
	MetaResultPreview = "result_preview"
	MetaResultLength  = "result_length"
)

// Message is one entry in an agent's conversation log. Logs are append-only;
// a Message is never mutated after it is written.
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewUserMessage creates a user message stamped with the current time.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now().UTC()}
}

// NewAssistantMessage creates an assistant message stamped with the current time.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content, Timestamp: time.Now().UTC()}
}

// NewToolStarted records that a tool call began, including its parameters.
func NewToolStarted(toolName string, params map[string]any) Message {
	return Message{
		Role:      RoleTool,
		Content:   fmt.Sprintf("Calling tool: %s", toolName),
		Timestamp: time.Now().UTC(),
		Metadata: map[string]any{
			MetaToolName:   toolName,
			MetaToolParams: params,
			MetaToolStatus: ToolStatusStarted,
		},
	}
}

// NewToolCompleted records a successful tool call with a result preview.
func NewToolCompleted(toolName, preview string, length int) Message {
	return Message{
		Role:      RoleTool,
		Content:   fmt.Sprintf("Tool completed: %s", toolName),
		Timestamp: time.Now().UTC(),
		Metadata: map[string]any{
			MetaToolName:      toolName,
			MetaToolStatus:    ToolStatusCompleted,
			MetaResultPreview: preview,
			MetaResultLength:  length,
		},
	}
}

// NewToolError records a failed tool call with the error preview.
func NewToolError(toolName, preview string, length int) Message {
	return Message{
		Role:      RoleTool,
		Content:   fmt.Sprintf("Tool failed: %s", toolName),
		Timestamp: time.Now().UTC(),
		Metadata: map[string]any{
			MetaToolName:      toolName,
			MetaToolStatus:    ToolStatusError,
			MetaResultPreview: preview,
			MetaResultLength:  length,
		},
	}
}

// ToolName returns the tool name from metadata, if any.
func (m Message) ToolName() string {
	s, _ := m.Metadata[MetaToolName].(string)
	return s
}

// ToolStatus returns the tool lifecycle status from metadata, if any.
func (m Message) ToolStatus() string {
	s, _ := m.Metadata[MetaToolStatus].(string)
	return s
}

// ValidatePairing checks the started/terminal invariant over a log: every
// started tool message must be followed by a completed or error message for
// the same tool before the log ends, and terminal messages must answer a
// pending start.
func ValidatePairing(msgs []Message) error {
	pending := make([]string, 0, 4)
	for i, m := range msgs {
		if m.Role != RoleTool {
			continue
		}
		switch m.ToolStatus() {
		case ToolStatusStarted:
			pending = append(pending, m.ToolName())
		case ToolStatusCompleted, ToolStatusError:
			if len(pending) == 0 {
				return fmt.Errorf("message %d: terminal tool message for %q without a start", i, m.ToolName())
			}
			last := pending[len(pending)-1]
			if last != m.ToolName() {
				return fmt.Errorf("message %d: terminal tool message for %q, expected %q", i, m.ToolName(), last)
			}
			pending = pending[:len(pending)-1]
		default:
			return fmt.Errorf("message %d: tool message without a valid status", i)
		}
	}
	if len(pending) > 0 {
		return fmt.Errorf("unterminated tool call for %q", pending[len(pending)-1])
	}
	return nil
}

// Metadata is the session.json document tracking identity and token usage.
type Metadata struct {
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	TotalTokens  int       `json:"total_tokens"`
}
