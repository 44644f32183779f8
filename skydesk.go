// Package skydesk provides a high-level façade over the runner and its
// services (agents, models, tools, sessions, guardrails). Most applications
// interact with this package by:
//  1. Loading a config.Config (or starting from config.Default())
//  2. Creating an App via New()
//  3. Calling Chat() directly or Serve() to expose the HTTP API
//
// The façade wires the concrete pieces together; the orchestration itself
// lives in the runner package.
package skydesk

import (
	"context"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/skydesk-ai/skydesk/agent"
	"github.com/skydesk-ai/skydesk/config"
	"github.com/skydesk-ai/skydesk/guardrail"
	"github.com/skydesk-ai/skydesk/knowledge"
	"github.com/skydesk-ai/skydesk/logging"
	"github.com/skydesk-ai/skydesk/model"
	"github.com/skydesk-ai/skydesk/model/anthropic"
	"github.com/skydesk-ai/skydesk/model/openai"
	"github.com/skydesk-ai/skydesk/runner"
	"github.com/skydesk-ai/skydesk/server"
	"github.com/skydesk-ai/skydesk/session"
	"github.com/skydesk-ai/skydesk/tool"
)

// Options overrides pieces of the wiring. Any unset field is built from the
// configuration.
type Options struct {
	// Logger replaces the logger built from cfg.Logging.
	Logger logging.Logger
	// ModelFactory replaces the provider-backed factory. Tests use this to
	// inject mock models.
	ModelFactory model.Factory
	// ExtraTools are registered alongside the built-in tools.
	ExtraTools []tool.Tool
}

// App aggregates the wired services behind simple entry points.
type App struct {
	cfg      *config.Config
	logger   logging.Logger
	sessions *session.Manager
	agents   *agent.Registry
	runner   *runner.Runner

	supportDB *tool.SupportDB
}

// New wires an App from configuration. Agent definitions are loaded from
// cfg.Agents.Dir and validated against the assembled tool registry.
func New(cfg *config.Config, optFns ...func(o *Options)) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.New(&logging.Config{
			Level:  logging.ParseLevel(cfg.Logging.Level),
			Format: cfg.Logging.Format,
		})
	}

	sessions, err := session.NewManager(cfg.Sessions.Root, func(o *session.ManagerOptions) {
		o.Logger = logger
	})
	if err != nil {
		return nil, err
	}

	app := &App{cfg: cfg, logger: logger, sessions: sessions}

	tools, err := app.buildTools(opts.ExtraTools)
	if err != nil {
		return nil, err
	}

	defs, err := agent.LoadDir(cfg.Agents.Dir)
	if err != nil {
		return nil, err
	}
	agents, err := agent.NewRegistry(defs, tools)
	if err != nil {
		return nil, err
	}
	if want := cfg.Agents.Router; want != "" && agents.Router() != want {
		return nil, &agent.ConfigError{
			Source: cfg.Agents.Dir,
			Reason: fmt.Sprintf("router agent is %q, config expects %q", agents.Router(), want),
		}
	}
	app.agents = agents

	factory := opts.ModelFactory
	if factory == nil {
		factory = app.buildModelFactory()
	}

	guardrails, err := app.buildGuardrails(factory)
	if err != nil {
		return nil, err
	}

	app.runner = runner.New(agents, tools, sessions, factory, cfg.Models.Default, func(o *runner.Options) {
		o.MaxIterations = cfg.Agents.MaxIterations
		o.Guardrails = guardrails
		o.Logger = logger
	})
	return app, nil
}

// Chat runs one user turn against the router agent.
func (a *App) Chat(ctx context.Context, req runner.ChatRequest) (*runner.ChatResponse, error) {
	return a.runner.Chat(ctx, req)
}

// Serve runs the HTTP API until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	srv := server.New(a.cfg.Server.Addr, a.runner, a.agents, func(o *server.Options) {
		o.Logger = a.logger
	})
	return srv.Start(ctx)
}

// Agents returns the validated agent registry.
func (a *App) Agents() *agent.Registry { return a.agents }

// Sessions returns the session manager.
func (a *App) Sessions() *session.Manager { return a.sessions }

// Close releases backing resources such as the support database handle.
func (a *App) Close() error {
	if a.supportDB != nil {
		return a.supportDB.Close()
	}
	return nil
}

// buildTools assembles the shared tool registry: web search always, the
// support database and knowledge store when configured, plus any extras.
func (a *App) buildTools(extra []tool.Tool) (*tool.Registry, error) {
	registry := tool.NewRegistry()
	if err := registry.Register(tool.NewWebSearchTool()); err != nil {
		return nil, err
	}

	if path := a.cfg.Tools.SupportDBPath; path != "" {
		sdb, err := tool.OpenSupportDB(path)
		if err != nil {
			return nil, err
		}
		a.supportDB = sdb
		for _, t := range sdb.Tools() {
			if err := registry.Register(t); err != nil {
				return nil, err
			}
		}
	}

	if path := a.cfg.Tools.KnowledgePath; path != "" {
		store, err := knowledge.NewPersistentStore(path)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(store.Tool()); err != nil {
			return nil, err
		}
	}

	for _, t := range extra {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// buildModelFactory resolves "provider:model" specs to provider adapters.
func (a *App) buildModelFactory() model.Factory {
	cfg := a.cfg
	return func(spec string) (model.Model, error) {
		provider, name, err := model.ParseSpec(spec)
		if err != nil {
			return nil, err
		}
		switch provider {
		case "openai":
			return openai.NewModel(func(o *openai.Options) {
				o.Model = name
				o.APIKey = cfg.Models.OpenAIAPIKey
			}), nil
		case "anthropic":
			return anthropic.NewModel(func(o *anthropic.Options) {
				o.Model = anthropicsdk.Model(name)
				o.APIKey = cfg.Models.AnthropicAPIKey
			}), nil
		default:
			return nil, fmt.Errorf("unknown model provider %q", provider)
		}
	}
}

func (a *App) buildGuardrails(factory model.Factory) (*guardrail.Pipeline, error) {
	if !a.cfg.Guardrail.Enabled {
		return nil, nil
	}
	spec := a.cfg.Guardrail.Model
	if spec == "" {
		spec = a.cfg.Models.Default
	}
	m, err := factory(spec)
	if err != nil {
		return nil, fmt.Errorf("build guardrail model: %w", err)
	}
	evaluator := guardrail.NewModelEvaluator(m, func(o *guardrail.ModelEvaluatorOptions) {
		o.Logger = a.logger
	})
	return guardrail.NewPipeline(evaluator, func(o *guardrail.Options) {
		o.Timeout = a.cfg.Guardrail.Timeout
		o.FailOpen = a.cfg.Guardrail.FailOpen
		o.Logger = a.logger
	}), nil
}
