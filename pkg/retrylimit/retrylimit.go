// Package retrylimit retries flaky calls with exponential backoff behind an
// adaptive rate limit. The limit rises slowly while calls succeed and drops
// sharply on throttling or server errors.
//
//	lim := retrylimit.NewAdaptiveLimiter(2, 0.2, 5, 0.5, 0.5)
//	err := retrylimit.Do(ctx, retrylimit.DefaultPolicy(), lim, func(ctx context.Context) error {
//	    return callModel(ctx)
//	})
package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// AdaptiveLimiter is a token bucket whose rate follows call outcomes.
type AdaptiveLimiter struct {
	mu        sync.Mutex
	lim       *rate.Limiter
	min, max  rate.Limit
	stepUp    rate.Limit
	stepDown  float64
	lastError time.Time
	calm      time.Duration
}

// NewAdaptiveLimiter starts at initial calls per second and moves between
// min and max: up by stepUp on success, multiplied by stepDown on failure.
func NewAdaptiveLimiter(initial, min, max, stepUp rate.Limit, stepDown float64) *AdaptiveLimiter {
	if min <= 0 {
		min = 0.1
	}
	if initial < min {
		initial = min
	}
	if max < initial {
		max = initial
	}
	return &AdaptiveLimiter{
		lim:      rate.NewLimiter(initial, 1),
		min:      min,
		max:      max,
		stepUp:   stepUp,
		stepDown: stepDown,
		calm:     10 * time.Second,
	}
}

// Wait blocks until a call may start.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error { return a.lim.Wait(ctx) }

// Success raises the rate once the limiter has been error-free for a while.
func (a *AdaptiveLimiter) Success() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if time.Since(a.lastError) > a.calm {
		a.set(a.lim.Limit() + a.stepUp)
	}
}

// Throttled lowers the rate after an overload signal.
func (a *AdaptiveLimiter) Throttled() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastError = time.Now()
	a.set(rate.Limit(float64(a.lim.Limit()) * a.stepDown))
}

// Limit is the current rate in calls per second.
func (a *AdaptiveLimiter) Limit() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return float64(a.lim.Limit())
}

func (a *AdaptiveLimiter) set(l rate.Limit) {
	l = max(a.min, min(a.max, l))
	if l != a.lim.Limit() {
		a.lim.SetLimit(l)
	}
}

// StatusError is an HTTP failure with its status code.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string { return fmt.Sprintf("http status %d: %s", e.Code, e.Body) }

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Permanent marks an error that must not be retried.
type Permanent struct{ Err error }

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// Policy configures Do.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
	Logger       zerolog.Logger
}

// DefaultPolicy tries three times with a short backoff. Callers usually
// bound the whole sequence with a context deadline as well.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 400 * time.Millisecond,
		MaxDelay:     4 * time.Second,
		Multiplier:   2,
		Jitter:       true,
		Logger:       zerolog.Nop(),
	}
}

// Do runs fn until it succeeds, returns a Permanent or non-retryable
// StatusError, ctx ends, or attempts run out. lim may be nil.
func Do(ctx context.Context, p Policy, lim *AdaptiveLimiter, fn func(ctx context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	delay := p.InitialDelay
	var last error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return err
			}
		}
		err := fn(ctx)
		if err == nil {
			if lim != nil {
				lim.Success()
			}
			return nil
		}
		last = err

		var perm *Permanent
		if errors.As(err, &perm) {
			return perm.Err
		}
		var se *StatusError
		if errors.As(err, &se) {
			if !se.Retryable() {
				return err
			}
			if lim != nil {
				lim.Throttled()
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := delay
		if p.Jitter && wait > 4 {
			wait += time.Duration(rand.Int63n(int64(wait / 4)))
		}
		p.Logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", wait).Msg("retrying")
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay = min(p.MaxDelay, time.Duration(float64(delay)*p.Multiplier))
	}
	return fmt.Errorf("after %d attempts: %w", p.MaxAttempts, last)
}
