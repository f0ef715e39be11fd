// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jllopis/medteam/pkg/agent"
	"github.com/jllopis/medteam/pkg/audit"
	"github.com/jllopis/medteam/pkg/core"
	"github.com/jllopis/medteam/pkg/errors"
	"github.com/jllopis/medteam/pkg/llm"
	"github.com/jllopis/medteam/pkg/registry"
)

const sampleReport = "Patient Name: Jane Roe\nAge: 45\nChief complaint: episodic palpitations and shortness of breath."

var fixedOutputs = map[core.Role]string{
	core.RoleCardiologist:       "A",
	core.RolePsychologist:       "B",
	core.RolePulmonologist:      "C",
	core.RoleNeurologist:        "D",
	core.RoleGastroenterologist: "E",
}

// fakeService answers by role, detected from the prompt preamble.
type fakeService struct {
	mu       sync.Mutex
	fail     map[core.Role]error
	final    string
	finalErr error
	prompts  map[core.Role][]string
	block    chan struct{}

	// finalThrottles is how many aggregator calls are throttled before it
	// answers. Negative throttles every call.
	finalThrottles int
}

func newFakeService() *fakeService {
	return &fakeService{
		fail:    map[core.Role]error{},
		final:   "1. Panic disorder\n2. Arrhythmia\n3. GERD",
		prompts: map[core.Role][]string{},
	}
}

func roleOf(prompt string) core.Role {
	if strings.Contains(prompt, "multidisciplinary team") {
		return core.RoleAggregator
	}
	for role := range fixedOutputs {
		if strings.Contains(prompt, "Act like a "+strings.ToLower(string(role))) {
			return role
		}
	}
	return ""
}

func (f *fakeService) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	text := req.Messages[0].Content
	role := roleOf(text)

	f.mu.Lock()
	f.prompts[role] = append(f.prompts[role], text)
	err := f.fail[role]
	block := f.block
	f.mu.Unlock()

	if role == core.RoleAggregator {
		f.mu.Lock()
		throttled := f.finalThrottles != 0
		if f.finalThrottles > 0 {
			f.finalThrottles--
		}
		f.mu.Unlock()
		if throttled {
			return nil, llm.Throttled()
		}
		if f.finalErr != nil {
			return nil, f.finalErr
		}
		return &llm.ChatResponse{Content: f.final}, nil
	}
	if block != nil && err == nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, llm.TransportError("fake", ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}
	return &llm.ChatResponse{Content: fixedOutputs[role]}, nil
}

func (f *fakeService) calls(role core.Role) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts[role])
}

func (f *fakeService) aggregatorPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts[core.RoleAggregator]) == 0 {
		return ""
	}
	return f.prompts[core.RoleAggregator][0]
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Policy.BaseDelay = time.Millisecond
	cfg.Policy.AttemptTimeout = 5 * time.Second
	return cfg
}

func newTestOrchestrator(t *testing.T, client llm.Provider, opts ...Option) *Orchestrator {
	t.Helper()
	reg, err := registry.Default()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	opts = append([]Option{WithConfig(testConfig())}, opts...)
	o, err := New(client, reg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestRunAllSpecialistsSucceed(t *testing.T) {
	svc := newFakeService()
	o := newTestOrchestrator(t, svc)

	rep, err := o.Run(context.Background(), sampleReport)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.State != core.RunCompleted {
		t.Fatalf("state = %s", rep.State)
	}
	if len(rep.Aggregation) != 5 {
		t.Fatalf("aggregation input size = %d, want 5", len(rep.Aggregation))
	}
	for role, want := range fixedOutputs {
		if rep.Aggregation[role] != want {
			t.Errorf("aggregation[%s] = %q, want %q", role, rep.Aggregation[role], want)
		}
		section := string(role) + " Report:\n" + want
		if !strings.Contains(rep.AggregatorPrompt, section) {
			t.Errorf("aggregator prompt missing section %q", section)
		}
	}
	if svc.aggregatorPrompt() != rep.AggregatorPrompt {
		t.Error("prompt sent to the service differs from the recorded one")
	}
	text, ok := rep.Diagnosis()
	if !ok || text != svc.final {
		t.Errorf("Diagnosis() = %q, %v", text, ok)
	}
	if len(rep.Degraded()) != 0 {
		t.Errorf("Degraded() = %v", rep.Degraded())
	}
	if rep.RunID == "" || rep.FinishedAt.Before(rep.StartedAt) {
		t.Errorf("bad run bookkeeping: %+v", rep)
	}
}

func TestRunSpecialistPromptsEmbedReport(t *testing.T) {
	svc := newFakeService()
	o := newTestOrchestrator(t, svc)
	if _, err := o.Run(context.Background(), sampleReport); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for role := range fixedOutputs {
		svc.mu.Lock()
		prompts := svc.prompts[role]
		svc.mu.Unlock()
		if len(prompts) != 1 {
			t.Fatalf("%s prompts = %d", role, len(prompts))
		}
		if !strings.Contains(prompts[0], sampleReport) {
			t.Errorf("%s prompt does not embed the report", role)
		}
		if strings.Contains(prompts[0], "{{") {
			t.Errorf("%s prompt has unresolved placeholders", role)
		}
	}
}

func TestRunOneSpecialistFails(t *testing.T) {
	svc := newFakeService()
	svc.fail[core.RoleNeurologist] = llm.Unavailable(500)
	o := newTestOrchestrator(t, svc)

	rep, err := o.Run(context.Background(), sampleReport)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Final == nil || !rep.Final.OK() {
		t.Fatalf("expected final result, got %+v", rep.Final)
	}
	if rep.Aggregation[core.RoleNeurologist] != DefaultFailurePlaceholder {
		t.Errorf("failed role = %q, want placeholder", rep.Aggregation[core.RoleNeurologist])
	}
	genuine := 0
	for role, text := range rep.Aggregation {
		if role != core.RoleNeurologist && text == fixedOutputs[role] {
			genuine++
		}
	}
	if genuine != 4 {
		t.Errorf("real outputs = %d, want 4", genuine)
	}
	degraded := rep.Degraded()
	if len(degraded) != 1 || degraded[0] != core.RoleNeurologist {
		t.Errorf("Degraded() = %v", degraded)
	}
	if svc.calls(core.RoleNeurologist) != 1 {
		t.Errorf("unrecoverable specialist retried: %d calls", svc.calls(core.RoleNeurologist))
	}
	res, ok := rep.Specialist(core.RoleNeurologist)
	if !ok || res.Err == nil || res.Err.Code != errors.CodeUnrecoverable {
		t.Errorf("Specialist(Neurologist) = %+v", res)
	}
}

func TestRunThrottledSpecialistBecomesPlaceholder(t *testing.T) {
	svc := newFakeService()
	svc.fail[core.RolePsychologist] = llm.Throttled()
	o := newTestOrchestrator(t, svc)

	rep, err := o.Run(context.Background(), sampleReport)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := svc.calls(core.RolePsychologist); got != 5 {
		t.Errorf("psychologist calls = %d, want 5", got)
	}
	res, _ := rep.Specialist(core.RolePsychologist)
	if res.Err == nil || res.Err.Code != errors.CodeRateLimit {
		t.Errorf("expected RATE_LIMITED, got %v", res.Err)
	}
	if !strings.Contains(rep.AggregatorPrompt, "Psychologist Report:\n"+DefaultFailurePlaceholder) {
		t.Error("aggregator prompt lacks the placeholder section")
	}
}

func TestRunAggregationFailure(t *testing.T) {
	svc := newFakeService()
	svc.finalErr = llm.Unavailable(503)
	o := newTestOrchestrator(t, svc)

	rep, err := o.Run(context.Background(), sampleReport)
	if !errors.IsCode(err, errors.CodeAggregation) {
		t.Fatalf("expected AGGREGATION_FAILED, got %v", err)
	}
	if rep == nil || rep.State != core.RunAggregationFailed {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if _, ok := rep.Diagnosis(); ok {
		t.Error("Diagnosis() should report no result")
	}
	if len(rep.Degraded()) != 0 {
		t.Error("specialists should not be degraded")
	}
}

func TestRunAggregatorRecoversAfterThrottling(t *testing.T) {
	svc := newFakeService()
	svc.finalThrottles = 2
	o := newTestOrchestrator(t, svc)

	rep, err := o.Run(context.Background(), sampleReport)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.State != core.RunCompleted {
		t.Fatalf("state = %s", rep.State)
	}
	if rep.Final == nil || rep.Final.Attempts != 3 {
		t.Fatalf("final = %+v, want 3 attempts", rep.Final)
	}
	if text, ok := rep.Diagnosis(); !ok || text != svc.final {
		t.Errorf("Diagnosis() = %q, %v", text, ok)
	}
	if got := svc.calls(core.RoleAggregator); got != 3 {
		t.Errorf("aggregator calls = %d, want 3", got)
	}
}

func TestRunAggregatorAlwaysThrottled(t *testing.T) {
	svc := newFakeService()
	svc.finalThrottles = -1
	o := newTestOrchestrator(t, svc)

	rep, err := o.Run(context.Background(), sampleReport)
	if !errors.IsCode(err, errors.CodeAggregation) {
		t.Fatalf("expected AGGREGATION_FAILED, got %v", err)
	}
	if rep.State != core.RunAggregationFailed {
		t.Fatalf("state = %s", rep.State)
	}
	if cause := errors.As(err).Context["cause_code"]; cause != string(errors.CodeRateLimit) {
		t.Errorf("cause_code = %v, want RATE_LIMITED", cause)
	}
	if got := svc.calls(core.RoleAggregator); got != 5 {
		t.Errorf("aggregator calls = %d, want 5", got)
	}
	if rep.Final == nil || rep.Final.Attempts != 5 || rep.Final.Err.Code != errors.CodeRateLimit {
		t.Errorf("final = %+v", rep.Final)
	}
}

func TestRunCanceledDuringAggregation(t *testing.T) {
	svc := newFakeService()
	svc.finalThrottles = -1

	cfg := testConfig()
	cfg.Policy.BaseDelay = time.Hour
	cfg.Policy.MaxDelay = 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o := newTestOrchestrator(t, svc, WithConfig(cfg), WithObserver(func(tr agent.Transition) {
		if tr.Role == core.RoleAggregator && tr.To == core.AgentRetrying {
			cancel()
		}
	}))

	done := make(chan struct{})
	var (
		rep *Report
		err error
	)
	go func() {
		rep, err = o.Run(ctx, sampleReport)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if !errors.IsCode(err, errors.CodeCanceled) {
		t.Fatalf("expected CANCELED, got %v", err)
	}
	if rep.State != core.RunCanceled {
		t.Errorf("state = %s", rep.State)
	}
	if rep.Final == nil || rep.Final.State != core.AgentFailed || rep.Final.Err.Code != errors.CodeCanceled {
		t.Errorf("final = %+v", rep.Final)
	}
	if got := svc.calls(core.RoleAggregator); got != 1 {
		t.Errorf("retry initiated after cancellation: %d aggregator calls", got)
	}
	if len(rep.Degraded()) != 0 {
		t.Errorf("Degraded() = %v", rep.Degraded())
	}
}

func TestRunPacedClientOutlastsAttemptTimeout(t *testing.T) {
	svc := newFakeService()
	cfg := testConfig()
	cfg.Policy.AttemptTimeout = 100 * time.Millisecond
	// Six calls at 4/s queue for up to 1.25s, longer than any single attempt may take.
	o := newTestOrchestrator(t, llm.NewRateLimited(svc, 4, 1), WithConfig(cfg))

	rep, err := o.Run(context.Background(), sampleReport)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.State != core.RunCompleted {
		t.Fatalf("state = %s", rep.State)
	}
	if degraded := rep.Degraded(); len(degraded) != 0 {
		for _, role := range degraded {
			res, _ := rep.Specialist(role)
			t.Errorf("%s degraded: %v", role, res.Err)
		}
	}
	for role := range fixedOutputs {
		if got := svc.calls(role); got != 1 {
			t.Errorf("%s calls = %d, want 1", role, got)
		}
	}
}

func TestRunRejectsBlankInput(t *testing.T) {
	svc := newFakeService()
	o := newTestOrchestrator(t, svc)

	rep, err := o.Run(context.Background(), " \n\t")
	if !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
	if rep.State != core.RunRejected {
		t.Errorf("state = %s", rep.State)
	}
	for role := range fixedOutputs {
		if svc.calls(role) != 0 {
			t.Errorf("%s was dispatched", role)
		}
	}
}

func TestRunTruncatesReport(t *testing.T) {
	svc := newFakeService()
	cfg := testConfig()
	cfg.MaxReportChars = 10
	o := newTestOrchestrator(t, svc, WithConfig(cfg))

	rep, err := o.Run(context.Background(), strings.Repeat("x", 50))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Truncated || rep.Input != strings.Repeat("x", 10) {
		t.Errorf("Input = %q truncated=%v", rep.Input, rep.Truncated)
	}
}

func TestRunCanceledWhileSpecialistsRun(t *testing.T) {
	svc := newFakeService()
	svc.block = make(chan struct{})
	svc.fail[core.RoleCardiologist] = llm.Throttled()

	cfg := testConfig()
	cfg.Policy.BaseDelay = time.Hour
	cfg.Policy.MaxDelay = 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var once sync.Once
	o := newTestOrchestrator(t, svc, WithConfig(cfg), WithObserver(func(tr agent.Transition) {
		if tr.To == core.AgentRetrying {
			once.Do(cancel)
		}
	}))

	done := make(chan struct{})
	var (
		rep *Report
		err error
	)
	go func() {
		rep, err = o.Run(ctx, sampleReport)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if !errors.IsCode(err, errors.CodeCanceled) {
		t.Fatalf("expected CANCELED, got %v", err)
	}
	if rep.State != core.RunCanceled {
		t.Errorf("state = %s", rep.State)
	}
	if rep.Final != nil {
		t.Error("aggregator must not run after cancellation")
	}
	if svc.calls(core.RoleCardiologist) != 1 {
		t.Errorf("retry initiated after cancellation: %d calls", svc.calls(core.RoleCardiologist))
	}
	if svc.calls(core.RoleAggregator) != 0 {
		t.Error("aggregator was called")
	}
	for _, res := range rep.Specialists {
		if !res.State.Terminal() {
			t.Errorf("%s left in state %s", res.Role, res.State)
		}
	}
}

func TestRunMaxConcurrency(t *testing.T) {
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	svc := newFakeService()
	client := &llm.MockProvider{ChatFunc: func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		mu.Lock()
		active++
		if active > maxSeen {
			maxSeen = active
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return svc.Chat(ctx, req)
	}}
	cfg := testConfig()
	cfg.MaxConcurrency = 2
	o := newTestOrchestrator(t, client, WithConfig(cfg))

	if _, err := o.Run(context.Background(), sampleReport); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if maxSeen > 2 {
		t.Errorf("max concurrent calls = %d, want <= 2", maxSeen)
	}
}

func TestRunRecordsAudit(t *testing.T) {
	svc := newFakeService()
	svc.fail[core.RoleGastroenterologist] = llm.Unavailable(400)
	store := audit.NewMemoryStore()
	o := newTestOrchestrator(t, svc, WithAuditStore(store))

	rep, err := o.Run(context.Background(), sampleReport)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	events, err := store.List(context.Background(), audit.Filter{RunID: rep.RunID})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 7 {
		t.Fatalf("events = %d, want 5 specialists + aggregator + run", len(events))
	}
	runs, _ := store.List(context.Background(), audit.Filter{RunID: rep.RunID, Kind: audit.KindRun})
	if len(runs) != 1 || runs[0].Status != string(core.RunCompleted) {
		t.Fatalf("run events = %+v", runs)
	}
	if runs[0].Detail["degraded"] != string(core.RoleGastroenterologist) {
		t.Errorf("degraded detail = %v", runs[0].Detail["degraded"])
	}
	failed, _ := store.List(context.Background(), audit.Filter{RunID: rep.RunID, Status: string(core.AgentFailed)})
	if len(failed) != 1 || failed[0].ErrorCode != string(errors.CodeUnrecoverable) {
		t.Errorf("failed events = %+v", failed)
	}
}

func TestNewValidation(t *testing.T) {
	reg, err := registry.Default()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if _, err := New(nil, reg); !errors.IsCode(err, errors.CodeConfiguration) {
		t.Errorf("nil client: %v", err)
	}
	if _, err := New(newFakeService(), nil); !errors.IsCode(err, errors.CodeConfiguration) {
		t.Errorf("nil registry: %v", err)
	}
	cfg := testConfig()
	cfg.FailurePlaceholder = ""
	if _, err := New(newFakeService(), reg, WithConfig(cfg)); !errors.IsCode(err, errors.CodeConfiguration) {
		t.Errorf("empty placeholder: %v", err)
	}
}
