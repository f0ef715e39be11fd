// SPDX-License-Identifier: Apache-2.0

// Package orchestrator runs every specialist agent concurrently, waits for
// all of them, and feeds their outputs to the aggregator.
package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jllopis/medteam/pkg/agent"
	"github.com/jllopis/medteam/pkg/audit"
	"github.com/jllopis/medteam/pkg/core"
	"github.com/jllopis/medteam/pkg/errors"
	"github.com/jllopis/medteam/pkg/llm"
	"github.com/jllopis/medteam/pkg/prompt"
	"github.com/jllopis/medteam/pkg/registry"
	"github.com/jllopis/medteam/pkg/telemetry"
)

// Orchestrator dispatches one agent per specialist role. It holds no per-run
// state and is safe for concurrent use.
type Orchestrator struct {
	client   llm.Provider
	reg      *registry.Registry
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *telemetry.Metrics
	store    audit.Store
	observer agent.Observer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// New creates an Orchestrator over a validated registry.
func New(client llm.Provider, reg *registry.Registry, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		client: client,
		reg:    reg,
		cfg:    DefaultConfig(),
		logger: slog.Default(),
		tracer: otel.Tracer("medteam/orchestrator"),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.client == nil {
		return nil, errors.New(errors.CodeConfiguration, "completion client is required", nil)
	}
	if o.reg == nil {
		return nil, errors.New(errors.CodeConfiguration, "specialist registry is required", nil)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) error {
		o.cfg = cfg
		return nil
	}
}

// WithLogger sets the logger. nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if l != nil {
			o.logger = l
		}
		return nil
	}
}

// WithTracer sets the tracer for run and agent spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) error {
		if t != nil {
			o.tracer = t
		}
		return nil
	}
}

// WithMetrics records run and agent metrics on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) error {
		o.metrics = m
		return nil
	}
}

// WithAuditStore records every agent and run outcome in store.
func WithAuditStore(store audit.Store) Option {
	return func(o *Orchestrator) error {
		o.store = store
		return nil
	}
}

// WithObserver forwards agent state transitions of every run to fn.
func WithObserver(fn agent.Observer) Option {
	return func(o *Orchestrator) error {
		o.observer = fn
		return nil
	}
}

// Config returns the run configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// Run analyses one medical report. The returned Report is never nil. The
// error is nil only when a final diagnosis was produced; degraded
// specialists alone do not fail the run.
func (o *Orchestrator) Run(ctx context.Context, source string) (*Report, error) {
	rep := &Report{
		RunID:     uuid.NewString(),
		State:     core.RunDispatched,
		StartedAt: time.Now(),
	}
	ctx = telemetry.ContextWithRunID(ctx, rep.RunID)
	ctx, span := o.tracer.Start(ctx, "Orchestrator.Run")
	defer span.End()

	if strings.TrimSpace(source) == "" {
		return o.finish(ctx, span, rep, core.RunRejected,
			errors.New(errors.CodeInvalidInput, "medical report is empty", nil))
	}
	rep.Input = prompt.Truncate(source, o.cfg.MaxReportChars)
	rep.Truncated = rep.Input != source

	roles := o.reg.Specialists()
	agents := make([]*agent.Agent, len(roles))
	for i, role := range roles {
		text, err := o.reg.Builder().Build(role, rep.Input, nil)
		if err != nil {
			return o.finish(ctx, span, rep, core.RunRejected, errors.As(err))
		}
		if agents[i], err = o.newAgent(role, text); err != nil {
			return o.finish(ctx, span, rep, core.RunRejected, errors.As(err))
		}
	}

	span.SetAttributes(telemetry.RunAttributes(rep.RunID, len(roles), len([]rune(rep.Input)), rep.Truncated)...)
	o.logger.InfoContext(ctx, "run dispatched",
		"specialists", len(roles), "report_chars", len([]rune(rep.Input)), "truncated", rep.Truncated)

	rep.State = core.RunAwaitingAll
	rep.Specialists = o.fanOut(ctx, agents)
	for _, res := range rep.Specialists {
		o.recordAgent(ctx, rep.RunID, res)
	}

	if ctx.Err() != nil {
		return o.finish(ctx, span, rep, core.RunCanceled,
			errors.New(errors.CodeCanceled, "run canceled before aggregation", ctx.Err()))
	}

	rep.Aggregation = o.aggregationInput(rep.Specialists)
	rep.State = core.RunAggregating
	o.logger.DebugContext(ctx, "aggregating", "degraded", rolesString(rep.Degraded()))

	promptText, final, err := o.aggregate(ctx, rep.Aggregation)
	rep.AggregatorPrompt = promptText
	if err != nil {
		return o.finish(ctx, span, rep, core.RunAggregationFailed,
			errors.New(errors.CodeAggregation, "cannot build aggregator", err))
	}
	rep.Final = &final
	o.recordAgent(ctx, rep.RunID, final)

	if !final.OK() {
		if ctx.Err() != nil || final.Err.Code == errors.CodeCanceled {
			return o.finish(ctx, span, rep, core.RunCanceled,
				errors.New(errors.CodeCanceled, "run canceled during aggregation", final.Err))
		}
		return o.finish(ctx, span, rep, core.RunAggregationFailed,
			errors.New(errors.CodeAggregation, "aggregation failed", final.Err).
				WithContext("cause_code", string(final.Err.Code)))
	}
	return o.finish(ctx, span, rep, core.RunCompleted, nil)
}

// fanOut executes every agent concurrently and blocks until all have a
// terminal result. Each goroutine owns one slot of the result slice.
func (o *Orchestrator) fanOut(ctx context.Context, agents []*agent.Agent) []agent.Result {
	results := make([]agent.Result, len(agents))
	var g errgroup.Group
	if o.cfg.MaxConcurrency > 0 {
		g.SetLimit(o.cfg.MaxConcurrency)
	}
	for i, a := range agents {
		g.Go(func() error {
			results[i] = a.Execute(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) newAgent(role core.Role, text string) (*agent.Agent, error) {
	return agent.New(role, text, o.client, o.cfg.Policy,
		agent.WithModel(o.cfg.Model),
		agent.WithLogger(o.logger),
		agent.WithTracer(o.tracer),
		agent.WithMetrics(o.metrics),
		agent.WithObserver(o.observer),
	)
}

func (o *Orchestrator) finish(ctx context.Context, span trace.Span, rep *Report, state core.RunState, err *errors.Error) (*Report, error) {
	rep.State = state
	rep.Err = err
	rep.FinishedAt = time.Now()
	degraded := rep.Degraded()

	span.SetAttributes(
		attribute.String(telemetry.AttrRunState, string(state)),
		attribute.Int(telemetry.AttrRunDegraded, len(degraded)),
	)
	o.metrics.RecordRun(ctx, string(state), len(degraded), rep.Duration())
	o.recordRun(ctx, rep)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Message)
		span.SetAttributes(telemetry.ErrorAttributes(err)...)
		o.logger.ErrorContext(ctx, "run finished without diagnosis",
			"state", string(state), "code", string(err.Code), "error", err, "duration", rep.Duration())
		return rep, err
	}
	o.logger.InfoContext(ctx, "run completed",
		"degraded", rolesString(degraded), "duration", rep.Duration())
	return rep, nil
}

func (o *Orchestrator) recordAgent(ctx context.Context, runID string, res agent.Result) {
	if o.store == nil {
		return
	}
	ev := audit.Event{
		RunID:      runID,
		Kind:       audit.KindAgent,
		Role:       string(res.Role),
		Status:     string(res.State),
		Attempts:   res.Attempts,
		FinishedAt: time.Now(),
	}
	ev.StartedAt = ev.FinishedAt.Add(-res.Duration)
	if res.Err != nil {
		ev.ErrorCode = string(res.Err.Code)
		ev.Error = res.Err.Error()
	}
	o.record(ctx, ev)
}

func (o *Orchestrator) recordRun(ctx context.Context, rep *Report) {
	if o.store == nil {
		return
	}
	ev := audit.Event{
		RunID:      rep.RunID,
		Kind:       audit.KindRun,
		Status:     string(rep.State),
		StartedAt:  rep.StartedAt,
		FinishedAt: rep.FinishedAt,
		Detail: map[string]any{
			"specialists": len(rep.Specialists),
			"truncated":   rep.Truncated,
		},
	}
	if degraded := rep.Degraded(); len(degraded) > 0 {
		ev.Detail["degraded"] = rolesString(degraded)
	}
	if rep.Err != nil {
		ev.ErrorCode = string(rep.Err.Code)
		ev.Error = rep.Err.Error()
	}
	o.record(ctx, ev)
}

// record writes ev even when ctx is canceled so that canceled runs leave a trail.
func (o *Orchestrator) record(ctx context.Context, ev audit.Event) {
	if err := o.store.Record(context.WithoutCancel(ctx), ev); err != nil {
		o.logger.WarnContext(ctx, "audit record failed", "kind", string(ev.Kind), "role", ev.Role, "error", err)
	}
}

func rolesString(roles []core.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}
