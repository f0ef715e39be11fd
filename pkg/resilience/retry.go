// SPDX-License-Identifier: Apache-2.0

// Package resilience provides retry/backoff and timeout boundaries for calls
// to the completion service.
package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/jllopis/medteam/pkg/errors"
)

// BackoffStrategy selects how the delay grows between attempts.
type BackoffStrategy string

const (
	// BackoffLinear waits InitialDelay * n after the n-th failed attempt.
	BackoffLinear BackoffStrategy = "linear"
	// BackoffExponential waits InitialDelay * Multiplier^(n-1) after the n-th failed attempt.
	BackoffExponential BackoffStrategy = "exponential"
)

// RetryConfig controls retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (must be >= 1).
	MaxAttempts int

	// InitialDelay is the base backoff delay.
	InitialDelay time.Duration

	// MaxDelay caps the backoff delay. Zero means no cap.
	MaxDelay time.Duration

	// Strategy defaults to BackoffExponential.
	Strategy BackoffStrategy

	// Multiplier for exponential backoff (default 2.0).
	Multiplier float64

	// Jitter adds randomness to backoff to prevent thundering herd.
	// Value between 0 and 1; 0.1 means ±10% jitter.
	Jitter float64

	// IsRecoverable determines if an error should be retried.
	// If nil, errors.Error values use their Recoverable flag and any other
	// error is retried.
	IsRecoverable func(error) bool

	// OnRetry is called after a recoverable failure, before sleeping.
	// attempt is the 1-based number of the attempt that just failed.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryConfig returns a sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		Strategy:      BackoffExponential,
		Multiplier:    2.0,
		Jitter:        0.1,
		IsRecoverable: isRecoverableDefault,
	}
}

// LinearRetryConfig returns a jitter-free linear backoff configuration.
func LinearRetryConfig(maxAttempts int, baseDelay time.Duration) RetryConfig {
	return RetryConfig{
		MaxAttempts:   maxAttempts,
		InitialDelay:  baseDelay,
		Strategy:      BackoffLinear,
		IsRecoverable: isRecoverableDefault,
	}
}

// WithMaxAttempts returns a new config with MaxAttempts set.
func (rc RetryConfig) WithMaxAttempts(max int) RetryConfig {
	rc.MaxAttempts = max
	return rc
}

// WithInitialDelay returns a new config with InitialDelay set.
func (rc RetryConfig) WithInitialDelay(d time.Duration) RetryConfig {
	rc.InitialDelay = d
	return rc
}

// WithMaxDelay returns a new config with MaxDelay set.
func (rc RetryConfig) WithMaxDelay(d time.Duration) RetryConfig {
	rc.MaxDelay = d
	return rc
}

// WithIsRecoverable returns a new config with IsRecoverable set.
func (rc RetryConfig) WithIsRecoverable(fn func(error) bool) RetryConfig {
	rc.IsRecoverable = fn
	return rc
}

// WithOnRetry returns a new config with OnRetry set.
func (rc RetryConfig) WithOnRetry(fn func(attempt int, delay time.Duration, err error)) RetryConfig {
	rc.OnRetry = fn
	return rc
}

// Do executes fn with retry logic, returning the last error if all attempts fail.
// No attempt is started once ctx is done; the wait between attempts is
// interrupted by cancellation and reported as errors.CodeCanceled.
func (rc RetryConfig) Do(ctx context.Context, fn func() error) error {
	if rc.MaxAttempts < 1 {
		rc.MaxAttempts = 1
	}
	if rc.IsRecoverable == nil {
		rc.IsRecoverable = isRecoverableDefault
	}

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return canceled(ctx, attempt, rc.MaxAttempts)
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !rc.IsRecoverable(err) || attempt >= rc.MaxAttempts {
			return err
		}
		if ctx.Err() != nil {
			return canceled(ctx, attempt, rc.MaxAttempts)
		}

		delay := rc.Backoff(attempt)
		if rc.OnRetry != nil {
			rc.OnRetry(attempt, delay, err)
		}
		if err := sleep(ctx, delay); err != nil {
			return canceled(ctx, attempt, rc.MaxAttempts)
		}
	}
}

// DoWithResult executes fn with retry logic, returning both result and error.
func DoWithResult[T any](ctx context.Context, rc RetryConfig, fn func() (T, error)) (T, error) {
	var result T
	err := rc.Do(ctx, func() error {
		var fnErr error
		result, fnErr = fn()
		return fnErr
	})
	return result, err
}

// Backoff returns the delay to wait after the given 1-based failed attempt.
func (rc RetryConfig) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var delay time.Duration
	switch rc.Strategy {
	case BackoffLinear:
		delay = rc.InitialDelay * time.Duration(attempt)
	default:
		mult := rc.Multiplier
		if mult == 0 {
			mult = 2.0
		}
		delay = time.Duration(float64(rc.InitialDelay) * math.Pow(mult, float64(attempt-1)))
	}

	if rc.MaxDelay > 0 && delay > rc.MaxDelay {
		delay = rc.MaxDelay
	}

	if rc.Jitter > 0 {
		jitterRange := float64(delay) * rc.Jitter * 2 * (rand.Float64() - 0.5)
		delay = time.Duration(float64(delay) + jitterRange)
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func canceled(ctx context.Context, attempt, max int) *errors.Error {
	return errors.New(errors.CodeCanceled, "context canceled during retry", ctx.Err()).
		WithContext("attempt", attempt).
		WithContext("max_attempts", max)
}

// isRecoverableDefault considers errors recoverable based on type.
func isRecoverableDefault(err error) bool {
	if err == nil {
		return false
	}
	if errors.CodeOf(err) != "" {
		return errors.As(err).Recoverable
	}
	return true
}
