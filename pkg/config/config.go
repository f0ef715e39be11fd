// SPDX-License-Identifier: Apache-2.0

// Package config loads medteam settings with koanf.
//
// Sources are layered: defaults, then the YAML file (plus an optional
// profile overlay such as config.dev.yaml), then MEDTEAM_* environment
// variables, then --set key=value flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/jllopis/medteam/pkg/errors"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "MEDTEAM_"

type Config struct {
	Log          LogConfig          `koanf:"log"`
	LLM          LLMConfig          `koanf:"llm"`
	Agent        AgentConfig        `koanf:"agent"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
	Audit        AuditConfig        `koanf:"audit"`
	Output       OutputConfig       `koanf:"output"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider string `koanf:"provider"` // groq, openai, anthropic, gemini, ollama, mock
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
	// RequestsPerSecond paces calls shared by every agent. Zero disables pacing.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

type AgentConfig struct {
	MaxAttempts     int           `koanf:"max_attempts"`
	BaseDelay       time.Duration `koanf:"base_delay"`
	Backoff         string        `koanf:"backoff"` // linear, exponential
	MaxDelay        time.Duration `koanf:"max_delay"`
	Temperature     float64       `koanf:"temperature"`
	MaxOutputTokens int           `koanf:"max_output_tokens"`
	AttemptTimeout  time.Duration `koanf:"attempt_timeout"`
}

type OrchestratorConfig struct {
	MaxReportChars     int    `koanf:"max_report_chars"`
	FailurePlaceholder string `koanf:"failure_placeholder"`
	MaxConcurrency     int    `koanf:"max_concurrency"`
	TemplatesPath      string `koanf:"templates_path"`
}

type TelemetryConfig struct {
	Enabled      bool   `koanf:"enabled"`
	Exporter     string `koanf:"exporter"` // stdout, otlp, none
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type AuditConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

type OutputConfig struct {
	Path string `koanf:"path"`
}

func defaults() map[string]any {
	return map[string]any{
		"log.level":  "info",
		"log.format": "text",

		"llm.provider":            "groq",
		"llm.requests_per_second": 0,
		"llm.burst":               1,

		"agent.max_attempts":      5,
		"agent.base_delay":        "2s",
		"agent.backoff":           "linear",
		"agent.max_delay":         "60s",
		"agent.temperature":       0.2,
		"agent.max_output_tokens": 1024,
		"agent.attempt_timeout":   "90s",

		"orchestrator.max_report_chars":    2500,
		"orchestrator.failure_placeholder": "No data: analysis failed",
		"orchestrator.max_concurrency":     0,

		"telemetry.enabled":  false,
		"telemetry.exporter": "stdout",

		"audit.enabled": false,
		"audit.path":    "results/audit.db",

		"output.path": "results/final_diagnosis.txt",
	}
}

// Load reads configuration from path (may be empty) and the environment.
func Load(path string) (*Config, error) {
	return load(path, "", nil)
}

// LoadWithProfile loads path and then overlays the profile file next to it
// (config.yaml + "dev" -> config.dev.yaml) when that file exists.
func LoadWithProfile(path, profile string) (*Config, error) {
	return load(path, profile, nil)
}

// LoadWithCLI parses --config, --profile (alias --env) and repeated --set
// key=value arguments. Unrelated arguments are ignored.
func LoadWithCLI(args []string) (*Config, error) {
	opts, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	return load(opts.path, opts.profile, opts.sets)
}

func load(path, profile string, sets map[string]any) (*Config, error) {
	k := koanf.New(".")
	for key, value := range defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, configError("set default", err).WithContext("key", key)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, configError("load config file", err).WithContext("path", path)
		}
		if overlay := profileConfigPath(path, profile); overlay != "" {
			if err := k.Load(file.Provider(overlay), yaml.Parser()); err != nil {
				return nil, configError("load profile config", err).WithContext("path", overlay)
			}
		}
	}

	// MEDTEAM_AGENT_MAX_ATTEMPTS -> agent.max_attempts
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, configError("load environment", err)
	}

	for key, value := range sets {
		if err := k.Set(key, value); err != nil {
			return nil, configError("apply --set", err).WithContext("key", key)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, configError("decode config", err)
	}
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultModel(cfg.LLM.Provider)
	}
	return &cfg, nil
}

// envKey maps MEDTEAM_SECTION_SOME_KEY to section.some_key. Only the first
// underscore separates the section so that keys may contain underscores.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

// profileConfigPath returns the overlay file for profile, or "" when there
// is none on disk.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	ext := filepath.Ext(base)
	candidate := strings.TrimSuffix(base, ext) + "." + profile + ext
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}

type cliOptions struct {
	path    string
	profile string
	sets    map[string]any
}

func parseCLIOverrides(args []string) (cliOptions, error) {
	opts := cliOptions{sets: map[string]any{}}
	for i := 0; i < len(args); i++ {
		name, value, hasValue := strings.Cut(args[i], "=")
		switch name {
		case "--config", "-config", "--profile", "-profile", "--env", "-env", "--set", "-set":
		default:
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return opts, configError(fmt.Sprintf("missing value for %s", name), nil)
			}
			i++
			value = args[i]
		}
		switch strings.TrimLeft(name, "-") {
		case "config":
			opts.path = value
		case "profile", "env":
			opts.profile = value
		case "set":
			key, raw, ok := strings.Cut(value, "=")
			key = strings.TrimSpace(key)
			if !ok || key == "" {
				return opts, configError("--set expects key=value", nil).WithContext("value", value)
			}
			opts.sets[key] = parseValue(raw)
		}
	}
	return opts, nil
}

// parseValue decodes a --set value as a YAML scalar or flow collection so
// that numbers and booleans keep their type. Undecodable input stays a string.
func parseValue(raw string) any {
	var v any
	if err := yamlv3.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		return raw
	}
	switch v.(type) {
	case map[string]any, []any:
		if trimmed := strings.TrimSpace(raw); !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
			return raw
		}
	}
	return v
}

func configError(msg string, cause error) *errors.Error {
	return errors.New(errors.CodeConfiguration, msg, cause)
}
