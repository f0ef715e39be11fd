// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jllopis/medteam/pkg/audit"
	"github.com/jllopis/medteam/pkg/errors"
)

type historyEntry struct {
	RunID     string         `json:"run_id"`
	Kind      string         `json:"kind"`
	Role      string         `json:"role,omitempty"`
	Status    string         `json:"status"`
	Attempts  int            `json:"attempts"`
	ErrorCode string         `json:"error_code,omitempty"`
	Error     string         `json:"error,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	Duration  string         `json:"duration"`
}

// runHistory lists audited runs from the SQLite store.
func (c *cli) runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	runID := fs.String("run", "", "show the agents of one run")
	status := fs.String("status", "", "filter by status")
	limit := fs.Int("limit", 20, "maximum rows")
	if err := fs.Parse(args); err != nil {
		return NewInvalidArgumentError("history", err.Error())
	}

	cfg, err := c.loadConfigUnchecked()
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.Audit.Path); err != nil {
		return NewCLIError(
			errors.New(errors.CodeInvalidInput, "no audit database", err).WithContext("path", cfg.Audit.Path),
			"enable auditing with --set audit.enabled=true and run diagnose first",
		)
	}
	store, err := audit.OpenSQLite(cfg.Audit.Path)
	if err != nil {
		return errors.New(errors.CodeInternal, "failed to open audit store", err)
	}
	defer store.Close()

	filter := audit.Filter{RunID: *runID, Status: *status, Limit: *limit}
	if *runID == "" {
		filter.Kind = audit.KindRun
	}
	events, err := store.List(ctx, filter)
	if err != nil {
		return errors.New(errors.CodeInternal, "failed to list audit events", err)
	}

	entries := make([]historyEntry, 0, len(events))
	for _, ev := range events {
		entries = append(entries, historyEntry{
			RunID:     ev.RunID,
			Kind:      string(ev.Kind),
			Role:      ev.Role,
			Status:    ev.Status,
			Attempts:  ev.Attempts,
			ErrorCode: ev.ErrorCode,
			Error:     ev.Error,
			Detail:    ev.Detail,
			StartedAt: ev.StartedAt,
			Duration:  ev.Duration().Round(time.Millisecond).String(),
		})
	}

	if c.global.JSON {
		return c.printJSON(entries)
	}
	w := c.newTabWriter()
	writeRow(w, "RUN", "KIND", "ROLE", "STATUS", "ATTEMPTS", "CODE", "STARTED", "DURATION")
	for _, e := range entries {
		writeRow(w, e.RunID, e.Kind, e.Role, e.Status, fmt.Sprint(e.Attempts), e.ErrorCode, formatTime(e.StartedAt), e.Duration)
	}
	return w.Flush()
}
