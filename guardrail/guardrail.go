// Package guardrail applies safety checks around agent turns. An input check
// runs before any model or tool call; an output check runs on the final
// assistant text before it is persisted. Each check produces a verdict:
// approved, revised (output replaced) or rejected (turn blocked).
package guardrail

import (
	"context"
	"fmt"
	"time"

	"github.com/skydesk-ai/skydesk/logging"
)

// Verdict decisions.
const (
	DecisionApproved = "approved"
	DecisionRevised  = "revised"
	DecisionRejected = "rejected"
)

// Verdict is the outcome of a single guardrail evaluation.
type Verdict struct {
	Decision string `json:"decision"`
	// Reason explains a rejection.
	Reason string `json:"reason,omitempty"`
	// Response carries the replacement text for revised verdicts.
	Response string `json:"response,omitempty"`
}

// Approved reports whether the content may proceed unchanged.
func (v *Verdict) Approved() bool { return v.Decision == DecisionApproved }

// Rejected reports whether the content must be blocked.
func (v *Verdict) Rejected() bool { return v.Decision == DecisionRejected }

// Evaluator performs the underlying safety evaluation. Implementations must
// honor context cancellation.
type Evaluator interface {
	// EvaluateInput checks a user request before execution.
	EvaluateInput(ctx context.Context, input string) (*Verdict, error)

	// EvaluateOutput checks the final assistant text for a request.
	EvaluateOutput(ctx context.Context, input, output string) (*Verdict, error)
}

// TimeoutError indicates a guardrail evaluation exceeded its deadline and the
// pipeline is configured fail-closed.
type TimeoutError struct {
	Stage   string        `json:"stage"` // "input" or "output"
	Timeout time.Duration `json:"timeout"`
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("guardrail %s check timed out after %s", e.Stage, e.Timeout)
}

// Options configures a Pipeline.
type Options struct {
	// Timeout bounds a single evaluation. Zero means 10s.
	Timeout time.Duration
	// FailOpen approves content on evaluation timeout instead of failing the
	// turn. The default is fail-closed.
	FailOpen bool
	Logger   logging.Logger
}

// Pipeline wraps an Evaluator with deadline handling. A nil evaluator
// disables checking entirely; every verdict is then approved.
type Pipeline struct {
	evaluator Evaluator
	timeout   time.Duration
	failOpen  bool
	logger    logging.Logger
}

// NewPipeline creates a guardrail pipeline around an evaluator.
func NewPipeline(evaluator Evaluator, optFns ...func(o *Options)) *Pipeline {
	opts := Options{
		Timeout: 10 * time.Second,
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Pipeline{
		evaluator: evaluator,
		timeout:   opts.Timeout,
		failOpen:  opts.FailOpen,
		logger:    opts.Logger,
	}
}

// CheckInput evaluates a user request. Exactly one evaluation runs per call.
func (p *Pipeline) CheckInput(ctx context.Context, input string) (*Verdict, error) {
	return p.run(ctx, "input", func(ctx context.Context) (*Verdict, error) {
		return p.evaluator.EvaluateInput(ctx, input)
	})
}

// CheckOutput evaluates the final assistant text for a request.
func (p *Pipeline) CheckOutput(ctx context.Context, input, output string) (*Verdict, error) {
	return p.run(ctx, "output", func(ctx context.Context) (*Verdict, error) {
		return p.evaluator.EvaluateOutput(ctx, input, output)
	})
}

func (p *Pipeline) run(ctx context.Context, stage string, eval func(ctx context.Context) (*Verdict, error)) (*Verdict, error) {
	if p.evaluator == nil {
		return &Verdict{Decision: DecisionApproved}, nil
	}

	evalCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	verdict, err := eval(evalCtx)
	if err != nil {
		if evalCtx.Err() == context.DeadlineExceeded {
			if p.failOpen {
				p.logger.Warn("guardrail.timeout.fail_open", "stage", stage, "timeout", p.timeout)
				return &Verdict{Decision: DecisionApproved}, nil
			}
			return nil, &TimeoutError{Stage: stage, Timeout: p.timeout}
		}
		return nil, fmt.Errorf("guardrail %s check: %w", stage, err)
	}

	p.logger.Debug("guardrail.verdict", "stage", stage, "decision", verdict.Decision)
	return verdict, nil
}
