// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jllopis/medteam/pkg/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LLM.Provider != "groq" {
		t.Errorf("expected default provider groq, got %s", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "llama-3.1-8b-instant" {
		t.Errorf("expected default groq model, got %s", cfg.LLM.Model)
	}
	if cfg.Agent.MaxAttempts != 5 || cfg.Agent.BaseDelay != 2*time.Second {
		t.Errorf("unexpected agent defaults: %+v", cfg.Agent)
	}
	if cfg.Agent.Temperature != 0.2 || cfg.Agent.MaxOutputTokens != 1024 {
		t.Errorf("unexpected generation defaults: %+v", cfg.Agent)
	}
	if cfg.Agent.AttemptTimeout != 90*time.Second || cfg.Agent.Backoff != "linear" {
		t.Errorf("unexpected agent defaults: %+v", cfg.Agent)
	}
	if cfg.Orchestrator.MaxReportChars != 2500 {
		t.Errorf("expected max_report_chars 2500, got %d", cfg.Orchestrator.MaxReportChars)
	}
	if cfg.Orchestrator.FailurePlaceholder != "No data: analysis failed" {
		t.Errorf("unexpected placeholder %q", cfg.Orchestrator.FailurePlaceholder)
	}
	if cfg.Output.Path != "results/final_diagnosis.txt" {
		t.Errorf("unexpected output path %q", cfg.Output.Path)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("MEDTEAM_LLM_PROVIDER", "openai")
	t.Setenv("MEDTEAM_AGENT_MAX_ATTEMPTS", "3")
	t.Setenv("MEDTEAM_AGENT_BASE_DELAY", "250ms")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected provider openai from env, got %s", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("expected openai default model, got %s", cfg.LLM.Model)
	}
	if cfg.Agent.MaxAttempts != 3 {
		t.Errorf("expected max_attempts 3, got %d", cfg.Agent.MaxAttempts)
	}
	if cfg.Agent.BaseDelay != 250*time.Millisecond {
		t.Errorf("expected base_delay 250ms, got %v", cfg.Agent.BaseDelay)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "medteam.yaml", `
llm:
  provider: anthropic
  model: claude-test
agent:
  backoff: exponential
  max_delay: 30s
orchestrator:
  max_concurrency: 2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" || cfg.LLM.Model != "claude-test" {
		t.Errorf("unexpected llm config: %+v", cfg.LLM)
	}
	if cfg.Agent.Backoff != "exponential" || cfg.Agent.MaxDelay != 30*time.Second {
		t.Errorf("unexpected agent config: %+v", cfg.Agent)
	}
	if cfg.Orchestrator.MaxConcurrency != 2 {
		t.Errorf("expected max_concurrency 2, got %d", cfg.Orchestrator.MaxConcurrency)
	}
	if cfg.Agent.MaxAttempts != 5 {
		t.Errorf("defaults lost: max_attempts %d", cfg.Agent.MaxAttempts)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.IsCode(err, errors.CodeConfiguration) {
		t.Fatalf("expected CONFIGURATION error, got %v", err)
	}
}

func TestLoadWithProfile(t *testing.T) {
	tmpDir := t.TempDir()
	basePath := writeFile(t, tmpDir, "config.yaml", `
llm:
  provider: "ollama"
  model: "llama3.1"
log:
  level: "info"
`)
	writeFile(t, tmpDir, "config.dev.yaml", `
llm:
  provider: "mock"
log:
  level: "debug"
`)

	tests := []struct {
		name         string
		profile      string
		wantProvider string
		wantLogLevel string
	}{
		{"no profile - base only", "", "ollama", "info"},
		{"dev profile", "dev", "mock", "debug"},
		{"nonexistent profile - falls back to base", "staging", "ollama", "info"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadWithProfile(basePath, tc.profile)
			if err != nil {
				t.Fatalf("LoadWithProfile failed: %v", err)
			}
			if cfg.LLM.Provider != tc.wantProvider {
				t.Errorf("provider: got %s, want %s", cfg.LLM.Provider, tc.wantProvider)
			}
			if cfg.Log.Level != tc.wantLogLevel {
				t.Errorf("log level: got %s, want %s", cfg.Log.Level, tc.wantLogLevel)
			}
			if cfg.LLM.Model != "llama3.1" {
				t.Errorf("model: got %s, want llama3.1", cfg.LLM.Model)
			}
		})
	}
}

func TestLoadWithCLIOverrides(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
llm:
  provider: ollama
  model: model-a
`)
	t.Setenv("MEDTEAM_LLM_PROVIDER", "openai")

	cfg, err := LoadWithCLI([]string{
		"diagnose",
		"--config", path,
		"--set", "llm.provider=anthropic",
		"--set=agent.max_attempts=7",
		"--set", "audit.enabled=true",
		"--set", "agent.attempt_timeout=15s",
		"--set", "orchestrator.failure_placeholder=No data: analysis failed",
		"report.txt",
	})
	if err != nil {
		t.Fatalf("LoadWithCLI failed: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("expected cli override provider, got %s", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "model-a" {
		t.Errorf("expected model from file, got %s", cfg.LLM.Model)
	}
	if cfg.Agent.MaxAttempts != 7 {
		t.Errorf("expected max_attempts 7, got %d", cfg.Agent.MaxAttempts)
	}
	if !cfg.Audit.Enabled {
		t.Error("expected audit.enabled=true")
	}
	if cfg.Agent.AttemptTimeout != 15*time.Second {
		t.Errorf("expected attempt_timeout 15s, got %v", cfg.Agent.AttemptTimeout)
	}
	if cfg.Orchestrator.FailurePlaceholder != "No data: analysis failed" {
		t.Errorf("placeholder decoded as %q", cfg.Orchestrator.FailurePlaceholder)
	}
}

func TestLoadWithCLIProfile(t *testing.T) {
	tmpDir := t.TempDir()
	basePath := writeFile(t, tmpDir, "config.yaml", "llm:\n  provider: ollama\n")
	writeFile(t, tmpDir, "config.dev.yaml", "llm:\n  provider: mock\n")

	for _, args := range [][]string{
		{"--config", basePath, "--profile", "dev"},
		{"--config", basePath, "--env", "dev"},
		{"--config=" + basePath, "--profile=dev"},
	} {
		cfg, err := LoadWithCLI(args)
		if err != nil {
			t.Fatalf("LoadWithCLI(%v) failed: %v", args, err)
		}
		if cfg.LLM.Provider != "mock" {
			t.Errorf("LoadWithCLI(%v) provider = %s", args, cfg.LLM.Provider)
		}
	}
}

func TestParseCLIOverridesErrors(t *testing.T) {
	for _, args := range [][]string{
		{"--config"},
		{"--set"},
		{"--set", "invalid"},
		{"--set", "=value"},
	} {
		if _, err := parseCLIOverrides(args); !errors.IsCode(err, errors.CodeConfiguration) {
			t.Errorf("parseCLIOverrides(%v) = %v, want CONFIGURATION error", args, err)
		}
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		raw  string
		want any
	}{
		{"5", 5},
		{"0.5", 0.5},
		{"true", true},
		{"2s", "2s"},
		{"a: b", "a: b"},
	}
	for _, tc := range tests {
		if got := parseValue(tc.raw); got != tc.want {
			t.Errorf("parseValue(%q) = %#v, want %#v", tc.raw, got, tc.want)
		}
	}
	if m, ok := parseValue(`{"a": 1}`).(map[string]any); !ok || m["a"] != 1 {
		t.Errorf("flow map not decoded: %#v", parseValue(`{"a": 1}`))
	}
}

func TestEnvKey(t *testing.T) {
	if got := envKey("MEDTEAM_AGENT_MAX_OUTPUT_TOKENS"); got != "agent.max_output_tokens" {
		t.Errorf("envKey = %q", got)
	}
}

func TestProfileConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	devPath := writeFile(t, tmpDir, "config.dev.yaml", "test")
	basePath := filepath.Join(tmpDir, "config.yaml")

	tests := []struct {
		name     string
		base     string
		profile  string
		wantPath string
	}{
		{"existing profile", basePath, "dev", devPath},
		{"nonexistent profile", basePath, "prod", ""},
		{"empty profile", basePath, "", ""},
		{"empty base", "", "dev", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := profileConfigPath(tc.base, tc.profile); got != tc.wantPath {
				t.Errorf("got %q, want %q", got, tc.wantPath)
			}
		})
	}
}
