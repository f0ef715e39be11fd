// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"

	"github.com/jllopis/medteam/pkg/core"
	"github.com/jllopis/medteam/pkg/errors"
	"github.com/jllopis/medteam/pkg/llm"
)

// terminalError maps the last failure of the retry loop to the agent's
// terminal error. Cancellation wins over whatever the last attempt reported.
func terminalError(ctx context.Context, role core.Role, err error, attempts, maxAttempts int) *errors.Error {
	switch {
	case ctx.Err() != nil || errors.IsCode(err, errors.CodeCanceled):
		return WrapCanceled(err, role, attempts)
	case llm.IsThrottled(err):
		return WrapRateLimited(err, role, attempts, maxAttempts)
	default:
		return WrapUnrecoverable(err, role, attempts)
	}
}

// WrapRateLimited reports that every attempt was throttled.
func WrapRateLimited(err error, role core.Role, attempts, maxAttempts int) *errors.Error {
	if err == nil {
		return nil
	}
	return errors.New(errors.CodeRateLimit, "rate limit persisted after all attempts", err).
		WithContext("role", string(role)).
		WithContext("attempts", attempts).
		WithContext("max_attempts", maxAttempts).
		WithAttribute("medteam.agent.role", string(role)).
		WithRecoverable(false)
}

// WrapUnrecoverable reports a failure that retrying cannot fix. The remote
// status code, when known, is preserved.
func WrapUnrecoverable(err error, role core.Role, attempts int) *errors.Error {
	if err == nil {
		return nil
	}
	e := errors.New(errors.CodeUnrecoverable, "completion failed", err).
		WithContext("role", string(role)).
		WithContext("attempts", attempts).
		WithAttribute("medteam.agent.role", string(role)).
		WithRecoverable(false)
	if cause := errors.As(err); cause.Code == errors.CodeUnrecoverable && cause.StatusCode != 0 {
		e.StatusCode = cause.StatusCode
	}
	if code := errors.CodeOf(err); code != "" {
		e.WithContext("cause_code", string(code))
	}
	return e
}

// WrapCanceled reports that the caller stopped the agent.
func WrapCanceled(err error, role core.Role, attempts int) *errors.Error {
	if err == nil {
		err = context.Canceled
	}
	return errors.New(errors.CodeCanceled, "agent canceled", err).
		WithContext("role", string(role)).
		WithContext("attempts", attempts).
		WithAttribute("medteam.agent.role", string(role)).
		WithRecoverable(false)
}
