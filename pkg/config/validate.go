// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"strings"
)

// Providers lists the accepted values of llm.provider.
var Providers = []string{"groq", "openai", "anthropic", "gemini", "ollama", "mock"}

var credentialEnv = map[string][]string{
	"groq":      {"GROQ_API_KEY"},
	"openai":    {"OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// DefaultModel returns the model used when llm.model is empty.
func DefaultModel(provider string) string {
	switch provider {
	case "groq":
		return "llama-3.1-8b-instant"
	case "openai":
		return "gpt-4o-mini"
	case "anthropic":
		return "claude-3-5-haiku-latest"
	case "gemini":
		return "gemini-2.0-flash"
	case "ollama":
		return "llama3.1"
	default:
		return ""
	}
}

// CredentialEnv returns the environment variables consulted for provider's key.
func CredentialEnv(provider string) []string {
	return append([]string(nil), credentialEnv[provider]...)
}

// ResolveAPIKey returns llm.api_key or, when empty, the first non-empty
// provider environment variable.
func (c LLMConfig) ResolveAPIKey() string {
	if key := strings.TrimSpace(c.APIKey); key != "" {
		return key
	}
	for _, name := range credentialEnv[c.Provider] {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// NeedsCredential reports whether the provider requires an API key.
func (c LLMConfig) NeedsCredential() bool {
	_, ok := credentialEnv[c.Provider]
	return ok
}

// Validate reports the first invalid setting as a CONFIGURATION error. A
// missing credential is fatal at startup, never a per-call error.
func (c *Config) Validate() error {
	if err := c.LLM.validate(); err != nil {
		return err
	}
	if err := c.Agent.validate(); err != nil {
		return err
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return invalid("log.format", c.Log.Format)
	}

	o := c.Orchestrator
	if o.MaxReportChars < 0 {
		return invalid("orchestrator.max_report_chars", o.MaxReportChars)
	}
	if o.MaxConcurrency < 0 {
		return invalid("orchestrator.max_concurrency", o.MaxConcurrency)
	}
	if strings.TrimSpace(o.FailurePlaceholder) == "" {
		return invalid("orchestrator.failure_placeholder", o.FailurePlaceholder)
	}

	if c.Telemetry.Enabled {
		switch c.Telemetry.Exporter {
		case "", "stdout", "none":
		case "otlp":
			if c.Telemetry.OTLPEndpoint == "" {
				return configError("telemetry.otlp_endpoint is required for the otlp exporter", nil)
			}
		default:
			return invalid("telemetry.exporter", c.Telemetry.Exporter)
		}
	}
	if c.Audit.Enabled && strings.TrimSpace(c.Audit.Path) == "" {
		return configError("audit.path is required when audit is enabled", nil)
	}
	return nil
}

func (c LLMConfig) validate() error {
	known := false
	for _, p := range Providers {
		if c.Provider == p {
			known = true
			break
		}
	}
	if !known {
		return invalid("llm.provider", c.Provider)
	}
	if c.NeedsCredential() && c.ResolveAPIKey() == "" {
		return configError(fmt.Sprintf("missing credential for provider %s", c.Provider), nil).
			WithContext("env", strings.Join(credentialEnv[c.Provider], " or "))
	}
	if c.RequestsPerSecond < 0 {
		return invalid("llm.requests_per_second", c.RequestsPerSecond)
	}
	if c.Burst < 0 {
		return invalid("llm.burst", c.Burst)
	}
	return nil
}

func (a AgentConfig) validate() error {
	switch {
	case a.MaxAttempts < 1:
		return invalid("agent.max_attempts", a.MaxAttempts)
	case a.BaseDelay < 0:
		return invalid("agent.base_delay", a.BaseDelay)
	case a.MaxDelay < 0:
		return invalid("agent.max_delay", a.MaxDelay)
	case a.AttemptTimeout < 0:
		return invalid("agent.attempt_timeout", a.AttemptTimeout)
	case a.Temperature < 0 || a.Temperature > 2:
		return invalid("agent.temperature", a.Temperature)
	case a.MaxOutputTokens < 1:
		return invalid("agent.max_output_tokens", a.MaxOutputTokens)
	}
	switch a.Backoff {
	case "linear", "exponential":
	default:
		return invalid("agent.backoff", a.Backoff)
	}
	return nil
}

func invalid(key string, value any) error {
	return configError(fmt.Sprintf("invalid value for %s", key), nil).
		WithContext("key", key).
		WithContext("value", fmt.Sprint(value))
}
