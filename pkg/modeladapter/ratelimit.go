package modeladapter

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

var _ Provider = (*RateLimited)(nil)

// RateLimited wraps a Provider with proactive request pacing and reactive
// 429 retry with exponential backoff and jitter. Only the Submit call is
// retried; a text stream that fails after it started is not replayed.
type RateLimited struct {
	inner      Provider
	limiter    *rate.Limiter // nil when no RPM limit is set
	maxRetries int
	baseDelay  time.Duration

	// sleepFunc is used for testing; defaults to a context-aware sleep.
	sleepFunc func(ctx context.Context, d time.Duration) error
	// randFunc returns a random float64 in [0,1); used for jitter. Defaults to rand.Float64.
	randFunc func() float64
}

// RateLimitOpts configures a RateLimited provider.
type RateLimitOpts struct {
	RPM        int           // Requests per minute (0 = no limit).
	Burst      int           // Requests allowed at once (default 1).
	MaxRetries int           // Max retries on 429 (default 3).
	BaseDelay  time.Duration // Initial backoff delay (default 1s).
}

// NewRateLimited wraps a Provider with rate limiting.
func NewRateLimited(inner Provider, opts RateLimitOpts) *RateLimited {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}

	r := &RateLimited{
		inner:      inner,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		sleepFunc:  contextSleep,
		randFunc:   rand.Float64,
	}

	if opts.RPM > 0 {
		r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RPM)), opts.Burst)
	}

	return r
}

// SetSleepFunc overrides the sleep function (for testing).
func (r *RateLimited) SetSleepFunc(fn func(ctx context.Context, d time.Duration) error) {
	r.sleepFunc = fn
}

// SetRandFunc overrides the random number generator (for testing).
func (r *RateLimited) SetRandFunc(fn func() float64) { r.randFunc = fn }

// contextSleep sleeps for d or until ctx is cancelled.
func contextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// jitter applies ±25% random jitter to a duration.
func (r *RateLimited) jitter(d time.Duration) time.Duration {
	factor := 0.75 + r.randFunc()*0.5 //nolint:mnd // jitter range: ±25%
	return time.Duration(float64(d) * factor)
}

// Submit implements Provider with pacing and 429 retry.
func (r *RateLimited) Submit(ctx context.Context, req Request) (Response, error) {
	var lastErr error

	for attempt := range r.maxRetries + 1 {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := r.inner.Submit(ctx, req)
		if err == nil {
			return resp, nil
		}

		var rle *RateLimitError
		if !errors.As(err, &rle) {
			return nil, err
		}

		lastErr = err

		if attempt >= r.maxRetries {
			break
		}

		// baseDelay * 2^attempt, or RetryAfter if larger, with jitter.
		backoff := r.jitter(max(
			r.baseDelay*time.Duration(math.Pow(2, float64(attempt))), //nolint:mnd // exponential backoff formula
			rle.RetryAfter,
		))

		if err := r.sleepFunc(ctx, backoff); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}
