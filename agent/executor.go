package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/skydesk-ai/skydesk/internal/util"
	"github.com/skydesk-ai/skydesk/logging"
	"github.com/skydesk-ai/skydesk/model"
	"github.com/skydesk-ai/skydesk/session"
	"github.com/skydesk-ai/skydesk/tool"
)

// DefaultMaxIterations caps model/tool round trips per turn.
const DefaultMaxIterations = 10

// FinalizeFunc lets the caller transform the final assistant text before it
// is persisted, e.g. to apply an output guardrail. Returning an error aborts
// the turn without persisting an assistant message.
type FinalizeFunc func(ctx context.Context, input, output string) (string, error)

// Executor drives the model/tool loop for one (session, agent) pair. Turns
// are serialized; concurrent RunTurn calls queue up on the internal mutex.
type Executor struct {
	def           Definition
	model         model.Model
	tools         []tool.Tool
	toolsByName   map[string]tool.Tool
	sessions      *session.Manager
	sessionID     string
	userID        string
	maxIterations int
	logger        logging.Logger

	mu sync.Mutex
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	// MaxIterations caps model/tool round trips per turn. Zero means
	// DefaultMaxIterations.
	MaxIterations int
	Logger        logging.Logger
}

// NewExecutor creates an executor over a composed toolset.
func NewExecutor(
	def Definition,
	m model.Model,
	tools []tool.Tool,
	sessions *session.Manager,
	sessionID, userID string,
	optFns ...func(o *ExecutorOptions),
) *Executor {
	opts := ExecutorOptions{
		MaxIterations: DefaultMaxIterations,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}

	byName := make(map[string]tool.Tool, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
	}

	return &Executor{
		def:           def,
		model:         m,
		tools:         tools,
		toolsByName:   byName,
		sessions:      sessions,
		sessionID:     sessionID,
		userID:        userID,
		maxIterations: opts.MaxIterations,
		logger:        opts.Logger,
	}
}

// Definition returns the agent definition this executor runs.
func (e *Executor) Definition() Definition { return e.def }

// RunTurn executes one user turn: persist the user message, loop the model
// against the toolset until it answers with text, then persist and return
// the final assistant message. Every tool call is recorded as a started plus
// completed/error message pair before the next model call.
func (e *Executor) RunTurn(ctx context.Context, input string, finalize FinalizeFunc) (string, *model.Usage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.logger.Info("executor.turn.start", "agent", e.def.Name, "session_id", e.sessionID)

	if err := e.sessions.Append(e.sessionID, e.def.Name, session.NewUserMessage(input)); err != nil {
		return "", nil, err
	}

	messages, err := e.historyMessages()
	if err != nil {
		return "", nil, err
	}

	instructions, err := e.instructions()
	if err != nil {
		return "", nil, err
	}

	usage := &model.Usage{}
	defs := e.toolDefinitions()

	for i := 0; i < e.maxIterations; i++ {
		resp, err := e.model.Complete(ctx, model.Request{
			Instructions: instructions,
			Messages:     messages,
			Tools:        defs,
		})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				info := e.model.Info()
				return "", usage, &model.TimeoutError{Provider: info.Provider, Model: info.Name}
			}
			return "", usage, fmt.Errorf("model call failed for agent %s: %w", e.def.Name, err)
		}
		e.accumulateUsage(usage, resp, messages)

		if len(resp.ToolCalls) == 0 {
			text := resp.Text
			if finalize != nil {
				text, err = finalize(ctx, input, text)
				if err != nil {
					return "", usage, err
				}
			}
			if err := e.sessions.Append(e.sessionID, e.def.Name, session.NewAssistantMessage(text)); err != nil {
				return "", usage, err
			}
			e.logger.Info("executor.turn.done", "agent", e.def.Name, "iterations", i+1)
			return text, usage, nil
		}

		messages = append(messages, model.Message{
			Role:      model.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			result := e.runToolCall(ctx, call)
			messages = append(messages, model.Message{
				Role:       model.RoleTool,
				Content:    result.Content,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	return "", usage, &ExecutionLimitError{Agent: e.def.Name, Limit: e.maxIterations}
}

// runToolCall executes a single call, recording the started and terminal
// messages around it. Failures become error results the model can react to.
func (e *Executor) runToolCall(ctx context.Context, call model.ToolCall) *tool.Result {
	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			args = map[string]any{}
		}
	}

	start := time.Now()
	e.logger.Debug("tool.call.start", "agent", e.def.Name, "tool", call.Name, "fc_id", call.ID)

	if err := e.sessions.Append(e.sessionID, e.def.Name, session.NewToolStarted(call.Name, args)); err != nil {
		e.logger.Error("tool.call.persist_failed", "tool", call.Name, "error", err.Error())
	}

	var result *tool.Result
	if t, ok := e.toolsByName[call.Name]; ok {
		result = tool.Run(ctx, t, args)
	} else {
		result = tool.ErrorResult(fmt.Sprintf("unknown tool %q", call.Name))
	}

	var terminal session.Message
	if result.Status == tool.StatusError {
		terminal = session.NewToolError(call.Name, result.Preview(), result.Length())
		e.logger.Warn("tool.call.error", "agent", e.def.Name, "tool", call.Name, "error", result.Preview())
	} else {
		terminal = session.NewToolCompleted(call.Name, result.Preview(), result.Length())
		e.logger.Info("tool.call.success", "agent", e.def.Name, "tool", call.Name,
			"duration_ms", time.Since(start).Milliseconds())
	}
	if err := e.sessions.Append(e.sessionID, e.def.Name, terminal); err != nil {
		e.logger.Error("tool.call.persist_failed", "tool", call.Name, "error", err.Error())
	}

	return result
}

// historyMessages rebuilds the model conversation from the persisted log.
// Tool lifecycle entries are audit records; only user and assistant text is
// replayed into the model context.
func (e *Executor) historyMessages() ([]model.Message, error) {
	history, err := e.sessions.History(e.sessionID, e.def.Name)
	if err != nil {
		return nil, err
	}
	messages := make([]model.Message, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case session.RoleUser:
			messages = append(messages, model.Message{Role: model.RoleUser, Content: msg.Content})
		case session.RoleAssistant:
			messages = append(messages, model.Message{Role: model.RoleAssistant, Content: msg.Content})
		}
	}
	return messages, nil
}

// instructions renders the agent prompt behind a context header carrying the
// current UTC time and the session identity.
func (e *Executor) instructions() (string, error) {
	prompt, err := util.RenderTemplate(e.def.Prompt, map[string]any{
		"UserID":    e.userID,
		"SessionID": e.sessionID,
		"Now":       time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("render prompt for agent %s: %w", e.def.Name, err)
	}
	header := fmt.Sprintf("Current datetime (UTC): %s\nUser ID: %s\nSession ID: %s\n\n",
		time.Now().UTC().Format(time.RFC3339), e.userID, e.sessionID)
	return header + prompt, nil
}

func (e *Executor) toolDefinitions() []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(e.tools))
	for _, t := range e.tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// accumulateUsage adds real usage when the provider reports it, falling back
// to a length estimate otherwise.
func (e *Executor) accumulateUsage(total *model.Usage, resp *model.Response, messages []model.Message) {
	if resp.Usage != nil {
		total.InputTokens += resp.Usage.InputTokens
		total.OutputTokens += resp.Usage.OutputTokens
		total.TotalTokens += resp.Usage.TotalTokens
		return
	}
	input := 0
	for _, msg := range messages {
		input += model.EstimateTokens(msg.Content)
	}
	output := model.EstimateTokens(resp.Text)
	total.InputTokens += input
	total.OutputTokens += output
	total.TotalTokens += input + output
}
