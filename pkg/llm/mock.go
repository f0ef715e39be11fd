// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// MockProvider is a testing implementation of Provider.
type MockProvider struct {
	Response string
	Err      error
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	calls atomic.Int64
}

// Chat implements Provider.
func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m.calls.Add(1)
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{
		Content: m.Response,
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 10,
			TotalTokens:      20,
		},
	}, nil
}

// Calls returns how many times Chat was invoked.
func (m *MockProvider) Calls() int { return int(m.calls.Load()) }

// FailingMockProvider always fails.
type FailingMockProvider struct {
	Err error

	calls atomic.Int64
}

// Chat implements Provider.
func (f *FailingMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	f.calls.Add(1)
	if f.Err == nil {
		return nil, fmt.Errorf("mock error")
	}
	return nil, f.Err
}

// Calls returns how many times Chat was invoked.
func (f *FailingMockProvider) Calls() int { return int(f.calls.Load()) }

// Throttled returns the error a backend reports for HTTP 429.
func Throttled() error {
	return ServiceError("mock", 429, fmt.Errorf("429 Too Many Requests"))
}

// Unavailable returns a non-retryable service error with the given status.
func Unavailable(status int) error {
	return ServiceError("mock", status, fmt.Errorf("status %d", status))
}

// ScriptedMockProvider returns a pre-defined sequence of outcomes and
// records every request it receives.
type ScriptedMockProvider struct {
	mu       sync.Mutex
	steps    []step
	requests []ChatRequest
}

type step struct {
	content string
	err     error
}

// NewScriptedMockProvider creates a provider that answers with responses in order.
func NewScriptedMockProvider(responses ...string) *ScriptedMockProvider {
	s := &ScriptedMockProvider{}
	for _, r := range responses {
		s.steps = append(s.steps, step{content: r})
	}
	return s
}

// AddResponse appends a successful response to the queue.
func (s *ScriptedMockProvider) AddResponse(response string) *ScriptedMockProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step{content: response})
	return s
}

// AddError appends a failure to the queue.
func (s *ScriptedMockProvider) AddError(err error) *ScriptedMockProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step{err: err})
	return s
}

// Chat pops the next scripted outcome.
func (s *ScriptedMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		return nil, fmt.Errorf("scripted mock: no more responses available (call %d)", len(s.requests))
	}

	next := s.steps[0]
	s.steps = s.steps[1:]
	if next.err != nil {
		return nil, next.err
	}
	return &ChatResponse{
		Content: next.content,
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 10,
			TotalTokens:      20,
		},
	}, nil
}

// CallCount returns how many times Chat was invoked.
func (s *ScriptedMockProvider) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns a copy of every request received.
func (s *ScriptedMockProvider) Requests() []ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatRequest(nil), s.requests...)
}

// ThrottlingProvider reports Throttled for the first Throttles calls and
// answers Response afterwards. Throttles < 0 throttles forever.
type ThrottlingProvider struct {
	Throttles int
	Response  string

	calls atomic.Int64
}

// Chat implements Provider.
func (t *ThrottlingProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	n := t.calls.Add(1)
	if t.Throttles < 0 || n <= int64(t.Throttles) {
		return nil, Throttled()
	}
	return &ChatResponse{Content: t.Response}, nil
}

// Calls returns how many times Chat was invoked.
func (t *ThrottlingProvider) Calls() int { return int(t.calls.Load()) }
