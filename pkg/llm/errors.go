// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	stderrors "errors"

	"github.com/jllopis/medteam/pkg/errors"
)

// ServiceError classifies a remote failure. status is the HTTP-like status
// reported by the backend, 0 when the call never produced one.
func ServiceError(provider string, status int, cause error) *errors.Error {
	msg := provider + " request failed"
	if status == 429 {
		msg = provider + " throttled the request"
	}
	return errors.FromStatus(status, msg, cause).
		WithAttribute("gen_ai.system", provider).
		WithContext("provider", provider)
}

// TransportError classifies a failure that happened before any status was
// received. Context cancellation and deadlines keep their identity so callers
// can tell them apart from network faults.
func TransportError(provider string, cause error) *errors.Error {
	switch {
	case stderrors.Is(cause, context.Canceled):
		return errors.New(errors.CodeCanceled, provider+" request canceled", cause)
	case stderrors.Is(cause, context.DeadlineExceeded):
		return errors.New(errors.CodeTimeout, provider+" request timed out", cause)
	}
	return ServiceError(provider, 0, cause)
}

// IsThrottled reports whether err is an explicit rate-limit signal.
func IsThrottled(err error) bool {
	return errors.IsCode(err, errors.CodeRateLimit)
}
