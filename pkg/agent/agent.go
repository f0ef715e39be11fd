// SPDX-License-Identifier: Apache-2.0

// Package agent binds a role and a finished prompt to the completion service
// and owns the throttling-aware retry policy.
package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/medteam/pkg/core"
	"github.com/jllopis/medteam/pkg/errors"
	"github.com/jllopis/medteam/pkg/llm"
	"github.com/jllopis/medteam/pkg/resilience"
	"github.com/jllopis/medteam/pkg/telemetry"
)

// Policy holds the retry and generation parameters of an agent.
type Policy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	Backoff         resilience.BackoffStrategy
	MaxDelay        time.Duration
	Temperature     float64
	MaxOutputTokens int
	// AttemptTimeout bounds a single completion call. Zero disables it.
	AttemptTimeout time.Duration
}

// DefaultPolicy returns five attempts with 2s linear backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     5,
		BaseDelay:       2 * time.Second,
		Backoff:         resilience.BackoffLinear,
		MaxDelay:        60 * time.Second,
		Temperature:     0.2,
		MaxOutputTokens: 1024,
		AttemptTimeout:  90 * time.Second,
	}
}

// Validate reports out-of-range settings as configuration errors.
func (p Policy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return errors.New(errors.CodeConfiguration, "max attempts must be at least 1", nil).
			WithContext("max_attempts", p.MaxAttempts)
	case p.BaseDelay < 0 || p.MaxDelay < 0 || p.AttemptTimeout < 0:
		return errors.New(errors.CodeConfiguration, "delays and timeouts must not be negative", nil)
	case p.MaxOutputTokens < 1:
		return errors.New(errors.CodeConfiguration, "max output tokens must be positive", nil).
			WithContext("max_output_tokens", p.MaxOutputTokens)
	case p.Temperature < 0 || p.Temperature > 2:
		return errors.New(errors.CodeConfiguration, "temperature must be within [0, 2]", nil).
			WithContext("temperature", p.Temperature)
	}
	switch p.Backoff {
	case "", resilience.BackoffLinear, resilience.BackoffExponential:
	default:
		return errors.New(errors.CodeConfiguration, "unknown backoff strategy", nil).
			WithContext("backoff", string(p.Backoff))
	}
	return nil
}

// RetryConfig returns the retry loop for this policy. Only throttling is retried.
func (p Policy) RetryConfig() resilience.RetryConfig {
	rc := resilience.LinearRetryConfig(p.MaxAttempts, p.BaseDelay).WithMaxDelay(p.MaxDelay)
	if p.Backoff == resilience.BackoffExponential {
		rc.Strategy = resilience.BackoffExponential
		rc.Multiplier = 2.0
	}
	return rc.WithIsRecoverable(llm.IsThrottled)
}

// Transition describes one state change of an agent execution.
type Transition struct {
	Role    core.Role
	From    core.AgentState
	To      core.AgentState
	Attempt int
	// Delay is the backoff about to be slept, set on transitions to Retrying.
	Delay time.Duration
	Err   error
}

// Observer receives state transitions synchronously from the executing goroutine.
type Observer func(Transition)

// Result is the single terminal outcome of Execute.
type Result struct {
	Role     core.Role
	Text     string
	Err      *errors.Error
	State    core.AgentState
	Attempts int
	Duration time.Duration
	Usage    llm.Usage
}

// OK reports whether the agent produced text.
func (r Result) OK() bool {
	return r.Err == nil && r.State == core.AgentSucceeded
}

// Agent is one specialist or aggregator task.
type Agent struct {
	role     core.Role
	prompt   string
	client   llm.Provider
	policy   Policy
	model    string
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *telemetry.Metrics
	observer Observer
}

// Option configures an Agent instance.
type Option func(*Agent) error

// New creates an Agent for role with a finished prompt.
func New(role core.Role, prompt string, client llm.Provider, policy Policy, opts ...Option) (*Agent, error) {
	a := &Agent{
		role:   role,
		prompt: prompt,
		client: client,
		policy: policy,
		logger: slog.Default(),
		tracer: otel.Tracer("medteam/agent"),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(string(a.role)) == "" {
		return nil, errors.New(errors.CodeConfiguration, "agent role is required", nil)
	}
	if strings.TrimSpace(a.prompt) == "" {
		return nil, errors.New(errors.CodeConfiguration, "agent prompt is empty", nil).
			WithContext("role", string(role))
	}
	if a.client == nil {
		return nil, errors.New(errors.CodeConfiguration, "completion client is required", nil).
			WithContext("role", string(role))
	}
	if err := a.policy.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// WithLogger sets the logger. nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) error {
		if l != nil {
			a.logger = l
		}
		return nil
	}
}

// WithTracer sets the tracer used for execution spans.
func WithTracer(t trace.Tracer) Option {
	return func(a *Agent) error {
		if t != nil {
			a.tracer = t
		}
		return nil
	}
}

// WithMetrics records attempts and outcomes on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *Agent) error {
		a.metrics = m
		return nil
	}
}

// WithModel sets the model name sent with every request.
func WithModel(model string) Option {
	return func(a *Agent) error {
		a.model = model
		return nil
	}
}

// WithObserver registers a callback for state transitions.
func WithObserver(o Observer) Option {
	return func(a *Agent) error {
		a.observer = o
		return nil
	}
}

// Role returns the agent role.
func (a *Agent) Role() core.Role { return a.role }

// Prompt returns the finished prompt.
func (a *Agent) Prompt() string { return a.prompt }

// Policy returns the agent policy.
func (a *Agent) Policy() Policy { return a.policy }

// Execute submits the prompt until it succeeds, fails unrecoverably, runs out
// of attempts while throttled, or ctx is done. It always returns exactly one
// terminal Result.
func (a *Agent) Execute(ctx context.Context) Result {
	start := time.Now()
	ctx, span := a.tracer.Start(ctx, "Agent.Execute",
		trace.WithAttributes(telemetry.AgentAttributes(string(a.role), a.model,
			a.policy.MaxAttempts, a.policy.Temperature, a.policy.MaxOutputTokens)...))
	defer span.End()
	log := a.logger.With("role", string(a.role))

	res := Result{Role: a.role}
	state := core.AgentPending
	move := func(to core.AgentState, delay time.Duration, err error) {
		if a.observer != nil {
			a.observer(Transition{Role: a.role, From: state, To: to, Attempt: res.Attempts, Delay: delay, Err: err})
		}
		state = to
	}

	rc := a.policy.RetryConfig().WithOnRetry(func(attempt int, delay time.Duration, err error) {
		log.WarnContext(ctx, "completion throttled, backing off",
			"attempt", attempt, "delay", delay, "error", err)
		move(core.AgentRetrying, delay, err)
	})

	resp, err := resilience.DoWithResult(ctx, rc, func() (*llm.ChatResponse, error) {
		res.Attempts++
		move(core.AgentRunning, 0, nil)
		a.metrics.RecordAttempt(ctx, string(a.role))
		log.DebugContext(ctx, "completion attempt", "attempt", res.Attempts)

		resp, err := a.attempt(ctx)
		if llm.IsThrottled(err) {
			a.metrics.RecordThrottle(ctx, string(a.role))
			span.AddEvent("throttled", trace.WithAttributes(attribute.Int(telemetry.AttrAgentAttempt, res.Attempts)))
		}
		return resp, err
	})
	res.Duration = time.Since(start)

	var outcome error
	if err != nil {
		res.Err = terminalError(ctx, a.role, err, res.Attempts, a.policy.MaxAttempts)
		res.State = core.AgentFailed
		move(core.AgentFailed, 0, res.Err)
		outcome = res.Err

		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Message)
		span.SetAttributes(telemetry.ErrorAttributes(res.Err)...)
		log.ErrorContext(ctx, "agent failed",
			"attempts", res.Attempts, "code", string(res.Err.Code), "error", res.Err)
	} else {
		res.Text = resp.Content
		res.Usage = resp.Usage
		res.State = core.AgentSucceeded
		move(core.AgentSucceeded, 0, nil)

		span.SetAttributes(
			attribute.Int(telemetry.AttrLLMTokensInput, resp.Usage.PromptTokens),
			attribute.Int(telemetry.AttrLLMTokensOutput, resp.Usage.CompletionTokens),
		)
		log.DebugContext(ctx, "agent succeeded", "attempts", res.Attempts, "duration", res.Duration)
	}
	span.SetAttributes(
		attribute.Int(telemetry.AttrAgentAttempt, res.Attempts),
		attribute.String(telemetry.AttrAgentOutcome, string(res.State)),
	)
	a.metrics.RecordAgentOutcome(ctx, string(a.role), outcome, res.Duration)
	return res
}

func (a *Agent) attempt(ctx context.Context) (*llm.ChatResponse, error) {
	req := llm.Prompt(a.prompt, a.policy.Temperature, a.policy.MaxOutputTokens)
	req.Model = a.model

	client := a.client
	if p, ok := client.(llm.Pacer); ok {
		next, err := p.Pace(ctx)
		if err != nil {
			return nil, err
		}
		client = next
	}

	var resp *llm.ChatResponse
	err := resilience.WithTimeout(ctx, a.policy.AttemptTimeout, func(ctx context.Context) error {
		var err error
		resp, err = client.Chat(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return nil, errors.New(errors.CodeUnrecoverable, "completion service returned no text", nil)
	}
	return resp, nil
}
