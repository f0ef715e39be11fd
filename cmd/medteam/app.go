// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/jllopis/medteam/pkg/agent"
	"github.com/jllopis/medteam/pkg/audit"
	"github.com/jllopis/medteam/pkg/config"
	"github.com/jllopis/medteam/pkg/errors"
	"github.com/jllopis/medteam/pkg/llm"
	"github.com/jllopis/medteam/pkg/orchestrator"
	"github.com/jllopis/medteam/pkg/registry"
	"github.com/jllopis/medteam/pkg/resilience"
	"github.com/jllopis/medteam/pkg/telemetry"
	"github.com/jllopis/medteam/providers"
)

// app holds everything a diagnose run needs. close releases it in reverse
// order of acquisition.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	orch    *orchestrator.Orchestrator
	store   *audit.SQLiteStore
	closers []func(context.Context) error
}

// loadConfig loads and validates configuration from the global flags.
func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithCLI(c.global.ConfigArgs)
	if err != nil {
		return nil, NewConfigError(err, "")
	}
	if err := cfg.Validate(); err != nil {
		return nil, NewConfigError(err, cfg.LLM.Provider)
	}
	return cfg, nil
}

// loadConfigUnchecked loads configuration without validating credentials,
// for commands that never reach the provider.
func (c *cli) loadConfigUnchecked() (*config.Config, error) {
	cfg, err := config.LoadWithCLI(c.global.ConfigArgs)
	if err != nil {
		return nil, NewConfigError(err, "")
	}
	return cfg, nil
}

// loadRegistry returns the embedded table or the one at templates_path.
func loadRegistry(cfg *config.Config) (*registry.Registry, error) {
	if cfg.Orchestrator.TemplatesPath == "" {
		return registry.Default()
	}
	return registry.Load(cfg.Orchestrator.TemplatesPath)
}

// agentPolicy maps the agent section onto a retry policy.
func agentPolicy(cfg config.AgentConfig) agent.Policy {
	return agent.Policy{
		MaxAttempts:     cfg.MaxAttempts,
		BaseDelay:       cfg.BaseDelay,
		Backoff:         resilience.BackoffStrategy(cfg.Backoff),
		MaxDelay:        cfg.MaxDelay,
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
		AttemptTimeout:  cfg.AttemptTimeout,
	}
}

func orchestratorConfig(cfg *config.Config) orchestrator.Config {
	return orchestrator.Config{
		Policy:             agentPolicy(cfg.Agent),
		MaxReportChars:     cfg.Orchestrator.MaxReportChars,
		FailurePlaceholder: cfg.Orchestrator.FailurePlaceholder,
		MaxConcurrency:     cfg.Orchestrator.MaxConcurrency,
		Model:              cfg.LLM.Model,
	}
}

// newApp wires logging, telemetry, the provider, the registry, the audit
// store and the orchestrator from cfg.
func (c *cli) newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: telemetry.ConfigureSlog(c.stderr, cfg.Log.Level, cfg.Log.Format),
	}

	shutdown, err := telemetry.InitWithConfig(ctx, "medteam", version, telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return nil, errors.New(errors.CodeConfiguration, "failed to initialize telemetry", err)
	}
	a.closers = append(a.closers, func(ctx context.Context) error { return shutdown(ctx) })

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		a.close()
		return nil, errors.New(errors.CodeInternal, "failed to create metrics", err)
	}

	provider, err := providers.New(ctx, cfg.LLM)
	if err != nil {
		a.close()
		return nil, NewConfigError(err, cfg.LLM.Provider)
	}
	client := llm.NewRateLimited(provider, cfg.LLM.RequestsPerSecond, cfg.LLM.Burst)

	reg, err := loadRegistry(cfg)
	if err != nil {
		a.close()
		return nil, NewConfigError(err, "")
	}

	opts := []orchestrator.Option{
		orchestrator.WithConfig(orchestratorConfig(cfg)),
		orchestrator.WithLogger(a.logger),
		orchestrator.WithMetrics(metrics),
	}
	if cfg.Audit.Enabled {
		store, err := audit.OpenSQLite(cfg.Audit.Path)
		if err != nil {
			a.close()
			return nil, errors.New(errors.CodeConfiguration, "failed to open audit store", err).
				WithContext("path", cfg.Audit.Path)
		}
		a.store = store
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		opts = append(opts, orchestrator.WithAuditStore(store))
	}

	a.orch, err = orchestrator.New(client, reg, opts...)
	if err != nil {
		a.close()
		return nil, NewConfigError(err, "")
	}
	return a, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("shutdown failed", "error", err)
		}
	}
	a.closers = nil
}
