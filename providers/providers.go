// SPDX-License-Identifier: Apache-2.0

// Package providers selects the single completion backend a process uses.
package providers

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/jllopis/medteam/pkg/config"
	"github.com/jllopis/medteam/pkg/errors"
	"github.com/jllopis/medteam/pkg/llm"
	"github.com/jllopis/medteam/providers/anthropic"
	"github.com/jllopis/medteam/providers/gemini"
	"github.com/jllopis/medteam/providers/ollama"
	"github.com/jllopis/medteam/providers/openai"
)

// MockResponse is the canned completion returned by the mock provider.
const MockResponse = "Mock analysis: no abnormal findings reported."

// New builds the provider named by cfg.Provider. Credentials come from
// cfg.ResolveAPIKey; a required but missing key is a CONFIGURATION error.
func New(ctx context.Context, cfg config.LLMConfig) (llm.Provider, error) {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	apiKey := cfg.ResolveAPIKey()
	if cfg.NeedsCredential() && apiKey == "" {
		return nil, errors.New(errors.CodeConfiguration,
			"missing credential for provider "+cfg.Provider, nil).
			WithContext("env", config.CredentialEnv(cfg.Provider))
	}

	switch cfg.Provider {
	case "groq":
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.NewGroq(apiKey, opts...), nil
	case "openai":
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.NewWithAPIKey(apiKey, opts...), nil
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.NewWithAPIKey(apiKey, opts...), nil
	case "gemini":
		clientCfg := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
		if cfg.BaseURL != "" {
			clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
		}
		return gemini.NewWithConfig(ctx, clientCfg, gemini.WithModel(cfg.Model))
	case "ollama":
		return ollama.New(cfg.BaseURL, ollama.WithModel(cfg.Model))
	case "mock":
		return &llm.MockProvider{Response: MockResponse}, nil
	default:
		return nil, errors.New(errors.CodeConfiguration, "unknown provider "+cfg.Provider, nil)
	}
}
