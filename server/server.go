// Package server exposes the runner over HTTP. The API is small: POST /chat
// runs one turn against the router agent, GET /agents lists the configured
// fleet and GET /healthz answers liveness probes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/skydesk-ai/skydesk/agent"
	"github.com/skydesk-ai/skydesk/guardrail"
	"github.com/skydesk-ai/skydesk/logging"
	"github.com/skydesk-ai/skydesk/model"
	"github.com/skydesk-ai/skydesk/runner"
)

// Options configures a Server.
type Options struct {
	Logger logging.Logger
	// ReadTimeout bounds reading the request. Zero means 30s.
	ReadTimeout time.Duration
}

// Server wraps the runner behind a chi router.
type Server struct {
	runner *runner.Runner
	agents *agent.Registry
	logger logging.Logger

	httpServer *http.Server
}

// New constructs a Server listening on addr.
func New(addr string, r *runner.Runner, agents *agent.Registry, optFns ...func(o *Options)) *Server {
	opts := Options{
		Logger:      logging.NoOpLogger{},
		ReadTimeout: 30 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		runner: r,
		agents: agents,
		logger: opts.Logger,
	}
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: opts.ReadTimeout,
	}
	return s
}

// Handler returns the HTTP routing tree. Exposed separately so tests can
// drive it through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/agents", s.handleAgents)
	r.Post("/chat", s.handleChat)
	return r
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server.listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("server.shutdown")
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// agentSummary is one entry in the GET /agents listing.
type agentSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
}

func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	defs := s.agents.List()
	out := make([]agentSummary, len(defs))
	for i, def := range defs {
		out[i] = agentSummary{
			Name:        def.Name,
			Description: def.Description,
			Type:        def.Trigger.Type,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": out})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req runner.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "field 'question' must not be empty")
		return
	}

	resp, err := s.runner.Chat(r.Context(), req)
	if err != nil {
		s.logger.Error("server.chat.failed", "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusFor maps runner errors onto HTTP status codes. Configuration
// problems are the operator's fault, timeouts and iteration limits are
// upstream failures, anything else is a plain 500.
func statusFor(err error) int {
	var cfgErr *agent.ConfigError
	var unknownErr *agent.UnknownAgentError
	var limitErr *agent.ExecutionLimitError
	var guardTimeout *guardrail.TimeoutError
	var modelTimeout *model.TimeoutError
	switch {
	case errors.As(err, &cfgErr), errors.As(err, &unknownErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &limitErr):
		return http.StatusBadGateway
	case errors.As(err, &guardTimeout), errors.As(err, &modelTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
