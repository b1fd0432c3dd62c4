// Package ratelimit throttles calls to remote inference endpoints.
package ratelimit

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket. A nil *Limiter never blocks.
type Limiter struct {
	limiter *rate.Limiter
}

// New returns a limiter allowing requestsPerSecond sustained calls.
// A non-positive rate returns nil, which disables limiting.
func New(requestsPerSecond float64) *Limiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	burst := int(math.Ceil(requestsPerSecond))
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Wait blocks until a request can be made or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	return l.limiter.Wait(ctx)
}
