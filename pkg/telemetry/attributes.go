// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"

	"github.com/jllopis/medteam/pkg/errors"
)

// Semantic conventions for medteam telemetry.
// These follow OpenTelemetry naming conventions where applicable.
const (
	// Run attributes
	AttrRunID          = "medteam.run.id"
	AttrRunState       = "medteam.run.state"
	AttrRunSpecialists = "medteam.run.specialists"
	AttrRunDegraded    = "medteam.run.degraded"
	AttrReportChars    = "medteam.report.chars"
	AttrReportTruncate = "medteam.report.truncated"

	// Agent attributes
	AttrAgentRole     = "medteam.agent.role"
	AttrAgentAttempt  = "medteam.agent.attempt"
	AttrAgentMaxTries = "medteam.agent.max_attempts"
	AttrAgentOutcome  = "medteam.agent.outcome"

	// Error attributes
	AttrErrorCode        = "error.code"
	AttrErrorRecoverable = "error.recoverable"

	// LLM attributes (standard gen_ai conventions)
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMTemperature  = "gen_ai.request.temperature"
	AttrLLMMaxTokens    = "gen_ai.request.max_tokens"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
)

// RunAttributes returns attributes for an orchestration run span.
func RunAttributes(runID string, specialists, reportChars int, truncated bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrRunID, runID),
		attribute.Int(AttrRunSpecialists, specialists),
		attribute.Int(AttrReportChars, reportChars),
		attribute.Bool(AttrReportTruncate, truncated),
	}
}

// AgentAttributes returns common attributes for agent spans.
func AgentAttributes(role, model string, maxAttempts int, temperature float64, maxTokens int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrAgentRole, role),
		attribute.Int(AttrAgentMaxTries, maxAttempts),
		attribute.Float64(AttrLLMTemperature, temperature),
		attribute.Int(AttrLLMMaxTokens, maxTokens),
	}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrLLMModel, model))
	}
	return attrs
}

// ErrorAttributes returns attributes describing err, if any.
func ErrorAttributes(err error) []attribute.KeyValue {
	if err == nil {
		return nil
	}
	e := errors.As(err)
	attrs := []attribute.KeyValue{
		attribute.String(AttrErrorCode, string(e.Code)),
		attribute.String(AttrErrorRecoverable, e.RecoverableString()),
	}
	for k, v := range e.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}
