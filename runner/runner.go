package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/skydesk-ai/skydesk/agent"
	"github.com/skydesk-ai/skydesk/guardrail"
	"github.com/skydesk-ai/skydesk/logging"
	"github.com/skydesk-ai/skydesk/model"
	"github.com/skydesk-ai/skydesk/session"
	"github.com/skydesk-ai/skydesk/tool"
)

// rejectedResponse is returned to the user when the input guardrail blocks a
// request. The original text is still persisted for auditability.
const rejectedResponse = "I can't help with that request."

// ChatRequest is one user turn against the router agent.
type ChatRequest struct {
	UserID    string `json:"userId"`
	Question  string `json:"question"`
	SessionID string `json:"sessionId,omitempty"`
}

// ChatResponse is the completed turn.
type ChatResponse struct {
	SessionID string       `json:"sessionId"`
	Response  string       `json:"response"`
	Metadata  UsageSummary `json:"metadata"`
}

// UsageSummary reports cumulative token usage for the session.
type UsageSummary struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// DelegationCycleError indicates an agent delegated, directly or through
// intermediaries, back to an agent already on the delegation call stack.
type DelegationCycleError struct {
	Agent string   `json:"agent"`
	Stack []string `json:"stack"`
}

func (e *DelegationCycleError) Error() string {
	return fmt.Sprintf("delegation cycle: %q already active in stack %v", e.Agent, e.Stack)
}

// Options configures a Runner.
type Options struct {
	// MaxIterations caps model/tool round trips per executor turn. Zero
	// means the executor default.
	MaxIterations int
	// Guardrails applies input/output checks. Nil disables checking.
	Guardrails *guardrail.Pipeline
	Logger     logging.Logger
}

// Runner orchestrates chat turns: session resolution, guardrails, executor
// caching, and delegation between agents. Public methods are safe for
// concurrent use.
type Runner struct {
	agents       *agent.Registry
	tools        *tool.Registry
	sessions     *session.Manager
	modelFactory model.Factory
	defaultModel string

	maxIterations int
	guardrails    *guardrail.Pipeline
	logger        logging.Logger

	// executors caches one executor per (session, agent). Creation is
	// serialized per key via the entry's Once; unrelated keys proceed
	// independently.
	executors sync.Map // map[string]*executorEntry
}

type executorEntry struct {
	once sync.Once
	exec *agent.Executor
	err  error
}

// New constructs a Runner.
func New(
	agents *agent.Registry,
	tools *tool.Registry,
	sessions *session.Manager,
	modelFactory model.Factory,
	defaultModel string,
	optFns ...func(o *Options),
) *Runner {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Runner{
		agents:        agents,
		tools:         tools,
		sessions:      sessions,
		modelFactory:  modelFactory,
		defaultModel:  defaultModel,
		maxIterations: opts.MaxIterations,
		guardrails:    opts.Guardrails,
		logger:        opts.Logger,
	}
}

// Chat runs one user turn against the router agent and returns the final
// answer with cumulative session usage.
func (r *Runner) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Question == "" {
		return nil, fmt.Errorf("question must not be empty")
	}

	sessionID, err := r.sessions.Resolve(req.SessionID, req.UserID)
	if err != nil {
		return nil, err
	}
	routerName := r.agents.Router()

	r.logger.Info("chat.turn.start", "session_id", sessionID, "user_id", req.UserID)

	if r.guardrails != nil {
		verdict, err := r.guardrails.CheckInput(ctx, req.Question)
		if err != nil {
			return nil, err
		}
		if verdict.Rejected() {
			return r.rejectInput(sessionID, routerName, req.Question, verdict)
		}
	}

	exec, err := r.executor(sessionID, req.UserID, routerName)
	if err != nil {
		return nil, err
	}

	ctx = withStack(ctx, routerName)
	answer, usage, err := exec.RunTurn(ctx, req.Question, r.outputFinalize())
	if err != nil {
		return nil, err
	}

	if err := r.sessions.AddUsage(sessionID, usage.InputTokens, usage.OutputTokens); err != nil {
		return nil, err
	}
	return r.respond(sessionID, answer)
}

// rejectInput persists the blocked exchange and answers with the canned
// rejection. No executor runs and no tool call is recorded.
func (r *Runner) rejectInput(sessionID, routerName, question string, verdict *guardrail.Verdict) (*ChatResponse, error) {
	r.logger.Warn("chat.input.rejected", "session_id", sessionID, "reason", verdict.Reason)

	if err := r.sessions.Append(sessionID, routerName, session.NewUserMessage(question)); err != nil {
		return nil, err
	}
	if err := r.sessions.Append(sessionID, routerName, session.NewAssistantMessage(rejectedResponse)); err != nil {
		return nil, err
	}
	return r.respond(sessionID, rejectedResponse)
}

// outputFinalize returns the FinalizeFunc applying the output guardrail. The
// executor calls it before persisting the final assistant message, so a
// rejected original never reaches the log.
func (r *Runner) outputFinalize() agent.FinalizeFunc {
	if r.guardrails == nil {
		return nil
	}
	return func(ctx context.Context, input, output string) (string, error) {
		verdict, err := r.guardrails.CheckOutput(ctx, input, output)
		if err != nil {
			return "", err
		}
		switch verdict.Decision {
		case guardrail.DecisionRevised:
			return verdict.Response, nil
		case guardrail.DecisionRejected:
			r.logger.Warn("chat.output.rejected", "reason", verdict.Reason)
			return rejectedResponse, nil
		default:
			return output, nil
		}
	}
}

func (r *Runner) respond(sessionID, answer string) (*ChatResponse, error) {
	meta, err := r.sessions.Metadata(sessionID)
	if err != nil {
		return nil, err
	}
	return &ChatResponse{
		SessionID: sessionID,
		Response:  answer,
		Metadata: UsageSummary{
			InputTokens:  meta.InputTokens,
			OutputTokens: meta.OutputTokens,
			TotalTokens:  meta.TotalTokens,
		},
	}, nil
}

// executor returns the cached executor for (session, agent), creating it on
// first use. Concurrent callers for the same key receive the same instance.
func (r *Runner) executor(sessionID, userID, agentName string) (*agent.Executor, error) {
	key := sessionID + ":" + agentName
	entryAny, _ := r.executors.LoadOrStore(key, &executorEntry{})
	entry := entryAny.(*executorEntry)
	entry.once.Do(func() {
		entry.exec, entry.err = r.buildExecutor(sessionID, userID, agentName)
	})
	if entry.err != nil {
		return nil, entry.err
	}
	return entry.exec, nil
}

// buildExecutor resolves the definition, model and composed toolset for one
// (session, agent) pair.
func (r *Runner) buildExecutor(sessionID, userID, agentName string) (*agent.Executor, error) {
	def, err := r.agents.Lookup(agentName)
	if err != nil {
		return nil, err
	}

	spec := def.Model
	if spec == "" {
		spec = r.defaultModel
	}
	m, err := r.modelFactory(spec)
	if err != nil {
		return nil, fmt.Errorf("build model for agent %s: %w", agentName, err)
	}

	tools, err := r.composeTools(def, sessionID, userID)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("executor.created", "session_id", sessionID, "agent", agentName, "tools", len(tools))
	return agent.NewExecutor(def, m, tools, r.sessions, sessionID, userID, func(o *agent.ExecutorOptions) {
		o.MaxIterations = r.maxIterations
		o.Logger = r.logger
	}), nil
}

// composeTools assembles an agent's toolset: native workspace tools when
// granted, the listed registered tools, and for the router one delegation
// tool per sub-agent.
func (r *Runner) composeTools(def agent.Definition, sessionID, userID string) ([]tool.Tool, error) {
	var tools []tool.Tool

	if def.Tools.Native {
		tools = append(tools, tool.NativeTools(r.sessions.Workspace(sessionID))...)
	}

	native := make(map[string]bool)
	for _, name := range tool.NativeToolNames() {
		native[name] = true
	}
	var listed []string
	for _, name := range def.Tools.Include {
		if native[name] {
			if !def.Tools.Native {
				tools = append(tools, r.nativeByName(name, sessionID))
			}
			continue
		}
		listed = append(listed, name)
	}
	selected, err := r.tools.Select(listed)
	if err != nil {
		return nil, &agent.ConfigError{Source: def.Name, Reason: err.Error()}
	}
	tools = append(tools, selected...)

	if def.IsRouter() {
		for _, sub := range r.agents.SubAgents() {
			tools = append(tools, r.delegationTool(sub, sessionID, userID))
		}
	}
	return tools, nil
}

func (r *Runner) nativeByName(name, sessionID string) tool.Tool {
	ws := r.sessions.Workspace(sessionID)
	for _, t := range tool.NativeTools(ws) {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

// delegationTool builds the synthetic tool exposing a sub-agent. The
// delegated turn runs on the sub-agent's own executor and conversation log;
// only the final text crosses back.
func (r *Runner) delegationTool(sub agent.Definition, sessionID, userID string) tool.Tool {
	return tool.NewAgentTool(sub.Name, sub.Description, func(ctx context.Context, query string) (string, error) {
		stack := stackFrom(ctx)
		for _, name := range stack {
			if name == sub.Name {
				return "", &DelegationCycleError{Agent: sub.Name, Stack: stack}
			}
		}

		exec, err := r.executor(sessionID, userID, sub.Name)
		if err != nil {
			return "", err
		}

		from := "unknown"
		if len(stack) > 0 {
			from = stack[len(stack)-1]
		}
		r.logger.Info("delegation.start", "session_id", sessionID, "from", from, "to", sub.Name)
		answer, usage, err := exec.RunTurn(withStack(ctx, sub.Name), query, nil)
		if err != nil {
			return "", err
		}
		if err := r.sessions.AddUsage(sessionID, usage.InputTokens, usage.OutputTokens); err != nil {
			return "", err
		}
		return answer, nil
	})
}

// stackKey carries the delegation call stack through context.
type stackKey struct{}

func withStack(ctx context.Context, agentName string) context.Context {
	stack := append(append([]string{}, stackFrom(ctx)...), agentName)
	return context.WithValue(ctx, stackKey{}, stack)
}

func stackFrom(ctx context.Context) []string {
	stack, _ := ctx.Value(stackKey{}).([]string)
	return stack
}
