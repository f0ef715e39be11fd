// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides logging, tracing and metrics for medteam.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/medteam/pkg/errors"
)

// Metrics tracks completion attempts, throttling and run outcomes.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	attempts      metric.Int64Counter
	throttles     metric.Int64Counter
	agentOutcomes metric.Int64Counter
	agentDuration metric.Float64Histogram
	runOutcomes   metric.Int64Counter
	runDuration   metric.Float64Histogram
}

// NewMetrics creates instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsFromMeter(otel.Meter("medteam"))
}

// NewMetricsFromMeter creates instruments on meter.
func NewMetricsFromMeter(meter metric.Meter) (*Metrics, error) {
	attempts, err := meter.Int64Counter(
		"medteam.agent.attempts",
		metric.WithDescription("Completion attempts by role"),
	)
	if err != nil {
		return nil, err
	}

	throttles, err := meter.Int64Counter(
		"medteam.agent.throttled",
		metric.WithDescription("Attempts rejected by the completion service with a rate-limit signal"),
	)
	if err != nil {
		return nil, err
	}

	agentOutcomes, err := meter.Int64Counter(
		"medteam.agent.outcomes",
		metric.WithDescription("Terminal agent results by role and error code"),
	)
	if err != nil {
		return nil, err
	}

	agentDuration, err := meter.Float64Histogram(
		"medteam.agent.duration",
		metric.WithDescription("Agent execution time including backoff"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	runOutcomes, err := meter.Int64Counter(
		"medteam.run.outcomes",
		metric.WithDescription("Orchestration runs by terminal state"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"medteam.run.duration",
		metric.WithDescription("Orchestration run time"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		attempts:      attempts,
		throttles:     throttles,
		agentOutcomes: agentOutcomes,
		agentDuration: agentDuration,
		runOutcomes:   runOutcomes,
		runDuration:   runDuration,
	}, nil
}

// RecordAttempt counts one completion attempt for role.
func (m *Metrics) RecordAttempt(ctx context.Context, role string) {
	if m == nil {
		return
	}
	m.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrAgentRole, role)))
}

// RecordThrottle counts one throttled attempt for role.
func (m *Metrics) RecordThrottle(ctx context.Context, role string) {
	if m == nil {
		return
	}
	m.throttles.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrAgentRole, role)))
}

// RecordAgentOutcome records a terminal agent result. err is nil on success.
func (m *Metrics) RecordAgentOutcome(ctx context.Context, role string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := "OK"
	if err != nil {
		code = string(errors.As(err).Code)
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrAgentRole, role),
		attribute.String(AttrErrorCode, code),
	)
	m.agentOutcomes.Add(ctx, 1, attrs)
	m.agentDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordRun records a terminal run state.
func (m *Metrics) RecordRun(ctx context.Context, state string, degraded int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrRunState, state),
		attribute.Bool(AttrRunDegraded, degraded > 0),
	)
	m.runOutcomes.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, elapsed.Seconds(), attrs)
}
