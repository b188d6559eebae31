// Package ratelimit bounds in-flight work for the proxy, combining a
// proactive token bucket with a hard concurrency ceiling, the same
// dual proactive/reactive shape as the teacher's GitHub connector rate
// limiter, simplified here since the proxy has no response headers to
// react to: it only needs to decide, cheaply, whether to accept or
// shed a request.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter throttles outbound tool calls and bounds how many may be in
// flight at once. Acquire blocks (subject to ctx) on both the proactive
// rate and the concurrency ceiling; TryAcquire is the
// non-blocking variant the proxy uses to decide between serving a
// request and returning 503.
type Limiter struct {
	bucket *rate.Limiter
	slots  chan struct{}
}

// New creates a Limiter allowing up to ratePerSecond proactive
// requests per second, with at most maxInFlight concurrently admitted.
// A non-positive maxInFlight disables the concurrency ceiling.
func New(ratePerSecond float64, maxInFlight int) *Limiter {
	l := &Limiter{bucket: rate.NewLimiter(rate.Limit(ratePerSecond), 1)}
	if maxInFlight > 0 {
		l.slots = make(chan struct{}, maxInFlight)
	}
	return l
}

// Acquire blocks until both the proactive rate and the concurrency
// ceiling admit one more request, or ctx is cancelled. Callers must
// call Release when done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.bucket.Wait(ctx); err != nil {
		return err
	}
	if l.slots == nil {
		return nil
	}
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire reports whether a request can be admitted right now,
// without blocking. It still consumes a proactive token on success.
func (l *Limiter) TryAcquire() bool {
	if l.slots != nil {
		select {
		case l.slots <- struct{}{}:
		default:
			return false
		}
	}
	if !l.bucket.AllowN(time.Now(), 1) {
		l.Release()
		return false
	}
	return true
}

// Release frees one concurrency slot. Safe to call only after a
// successful Acquire or TryAcquire.
func (l *Limiter) Release() {
	if l.slots != nil {
		select {
		case <-l.slots:
		default:
		}
	}
}

// InFlight returns the number of currently admitted requests.
func (l *Limiter) InFlight() int {
	if l.slots == nil {
		return 0
	}
	return len(l.slots)
}
