// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/jllopis/medteam/pkg/errors"
)

// Pacer is implemented by providers that meter their own request rate.
// Pace blocks until one request may be sent and returns the provider that
// sends it without pacing again. Callers that bound each request with a
// deadline call Pace first so the queueing time is not charged to it.
type Pacer interface {
	Pace(ctx context.Context) (Provider, error)
}

// RateLimited paces requests to a shared Provider with a token bucket so
// concurrent agents stay under a known request rate.
type RateLimited struct {
	next    Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps p. rps <= 0 disables pacing and returns p unchanged.
func NewRateLimited(p Provider, rps float64, burst int) Provider {
	if rps <= 0 {
		return p
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: p, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Pace waits for a token under ctx. When the token cannot arrive before
// ctx's deadline it waits for ctx to end instead of failing early, so the
// error is always a cancellation.
func (r *RateLimited) Pace(ctx context.Context) (Provider, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() == nil {
			<-ctx.Done()
		}
		return nil, errors.New(errors.CodeCanceled, "canceled while waiting for rate limiter", ctx.Err())
	}
	return r.next, nil
}

// Chat waits for a token, then forwards the request. A wait that would pass
// ctx's deadline fails at once with a timeout.
func (r *RateLimited) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, errors.New(errors.CodeCanceled, "canceled while waiting for rate limiter", ctx.Err())
		}
		return nil, errors.New(errors.CodeTimeout, "rate limiter wait exceeds deadline", err)
	}
	return r.next.Chat(ctx, req)
}

var (
	_ Provider = (*RateLimited)(nil)
	_ Pacer    = (*RateLimited)(nil)
)
