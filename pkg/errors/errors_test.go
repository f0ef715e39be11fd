// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("connection reset")
	e := New(CodeUnrecoverable, "completion failed", cause)

	if e.Code != CodeUnrecoverable {
		t.Errorf("expected CodeUnrecoverable, got %v", e.Code)
	}
	if e.Message != "completion failed" {
		t.Errorf("expected message 'completion failed', got %q", e.Message)
	}
	if e.Err != cause {
		t.Errorf("expected cause to be preserved")
	}
	if !errors.Is(e, cause) {
		t.Errorf("expected errors.Is to work with wrapped error")
	}
}

func TestWithContext(t *testing.T) {
	e := New(CodeRateLimit, "throttled", nil)
	e.WithContext("role", "Cardiologist").
		WithContext("attempt", 3)

	if e.Context["role"] != "Cardiologist" {
		t.Errorf("expected context role to be 'Cardiologist'")
	}
	if e.Context["attempt"] != 3 {
		t.Errorf("expected context attempt to be 3")
	}
}

func TestWithAttribute(t *testing.T) {
	e := New(CodeRateLimit, "throttled", nil)
	e.WithAttribute("medteam.role", "Neurologist")

	if e.Attributes["medteam.role"] != "Neurologist" {
		t.Errorf("expected attribute medteam.role")
	}
}

func TestWithRecoverable(t *testing.T) {
	e := New(CodeUnrecoverable, "bad request", nil)
	if e.Recoverable {
		t.Errorf("expected recoverable to be false by default")
	}

	e.WithRecoverable(true)
	if !e.Recoverable {
		t.Errorf("expected recoverable to be true after WithRecoverable")
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name     string
		e        *Error
		expected string
	}{
		{
			name:     "with cause",
			e:        New(CodeTimeout, "attempt timed out", errors.New("deadline exceeded")),
			expected: "[TIMEOUT] attempt timed out: deadline exceeded",
		},
		{
			name:     "without cause",
			e:        New(CodeConfiguration, "missing GROQ_API_KEY", nil),
			expected: "[CONFIGURATION] missing GROQ_API_KEY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.Error(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status      int
		code        ErrorCode
		recoverable bool
		wantStatus  int
	}{
		{429, CodeRateLimit, true, 429},
		{401, CodeUnrecoverable, false, 401},
		{400, CodeUnrecoverable, false, 400},
		{503, CodeUnrecoverable, false, 503},
		{0, CodeUnrecoverable, false, 502},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			e := FromStatus(tt.status, "remote", nil)
			if e.Code != tt.code {
				t.Errorf("expected %s, got %s", tt.code, e.Code)
			}
			if e.Recoverable != tt.recoverable {
				t.Errorf("expected recoverable=%v", tt.recoverable)
			}
			if e.StatusCode != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, e.StatusCode)
			}
		})
	}
}

func TestAsAndCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("provider: %w", New(CodeRateLimit, "slow down", nil))

	if got := CodeOf(wrapped); got != CodeRateLimit {
		t.Errorf("expected RATE_LIMITED through wrapping, got %q", got)
	}
	if !IsCode(wrapped, CodeRateLimit) {
		t.Errorf("expected IsCode to match")
	}
	if IsCode(nil, CodeRateLimit) {
		t.Errorf("nil error must not match any code")
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Errorf("plain errors carry no code")
	}

	if As(nil) != nil {
		t.Errorf("expected nil for nil error")
	}
	if e := As(errors.New("plain")); e.Code != CodeInternal {
		t.Errorf("expected plain error wrapped as INTERNAL, got %s", e.Code)
	}
	if e := As(wrapped); e.Code != CodeRateLimit {
		t.Errorf("expected As to find wrapped error, got %s", e.Code)
	}
}

func TestMarshalJSON(t *testing.T) {
	e := New(CodeRateLimit, "throttled", errors.New("429 Too Many Requests"))
	e.WithContext("role", "Psychologist").
		WithRecoverable(true)

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("unexpected error marshaling: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unexpected error unmarshaling: %v", err)
	}

	if result["code"] != "RATE_LIMITED" {
		t.Errorf("expected code 'RATE_LIMITED', got %v", result["code"])
	}
	if result["recoverable"] != true {
		t.Errorf("expected recoverable true")
	}
	if result["cause"] != "429 Too Many Requests" {
		t.Errorf("expected cause to be rendered, got %v", result["cause"])
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{CodeInvalidInput, 400},
		{CodeTimeout, 408},
		{CodeRateLimit, 429},
		{CodeCanceled, 499},
		{CodeAggregation, 502},
		{CodeInternal, 500},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			e := New(tt.code, "test", nil)
			if e.StatusCode != tt.expected {
				t.Errorf("expected status %d, got %d", tt.expected, e.StatusCode)
			}
		})
	}
}
