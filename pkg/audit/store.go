// SPDX-License-Identifier: Apache-2.0

// Package audit records the outcome of every agent and run. Generated text is
// never stored; only roles, states, attempt counts and error codes.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Kind distinguishes per-agent rows from the run summary row.
type Kind string

const (
	KindAgent Kind = "agent"
	KindRun   Kind = "run"
)

// Event is one audit row.
type Event struct {
	RunID      string
	Kind       Kind
	Role       string
	Status     string
	Attempts   int
	ErrorCode  string
	Error      string
	Detail     map[string]any
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the elapsed time of the audited step.
func (e Event) Duration() time.Duration {
	if e.StartedAt.IsZero() || e.FinishedAt.IsZero() {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// Store persists audit events.
type Store interface {
	Record(ctx context.Context, event Event) error
	List(ctx context.Context, filter Filter) ([]Event, error)
}

// Filter limits audit event queries. Zero fields match everything.
type Filter struct {
	RunID  string
	Kind   Kind
	Role   string
	Status string
	Limit  int
}

func (f Filter) match(ev Event) bool {
	switch {
	case f.RunID != "" && ev.RunID != f.RunID:
		return false
	case f.Kind != "" && ev.Kind != f.Kind:
		return false
	case f.Role != "" && ev.Role != f.Role:
		return false
	case f.Status != "" && ev.Status != f.Status:
		return false
	}
	return true
}

// MemoryStore keeps audit events in memory.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryStore returns an in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record appends an audit event.
func (s *MemoryStore) Record(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.StartedAt = normalizeTime(event.StartedAt)
	event.FinishedAt = normalizeTime(event.FinishedAt)
	s.events = append(s.events, event)
	return nil
}

// List returns filtered audit events in insertion order.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, 0, len(s.events))
	for _, ev := range s.events {
		if !filter.match(ev) {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func encodeDetail(detail map[string]any) (string, error) {
	if len(detail) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeDetail(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeTime(value time.Time) time.Time {
	if value.IsZero() {
		return value
	}
	return value.UTC()
}
