// Package admission provides a circuit breaker for the counter store.
package admission

import (
	"sync/atomic"
	"time"
)

// BreakerOptions configures store breaker thresholds.
type BreakerOptions struct {
	FailureThreshold int64
	OpenDuration     time.Duration
}

// storeBreaker trips after consecutive storage failures so a degraded backend
// is skipped instead of stalling every request. Rate limiting fails open
// while the breaker is open.
type storeBreaker struct {
	failures  atomic.Int64
	openUntil atomic.Int64
	opts      BreakerOptions
}

func newStoreBreaker(opts BreakerOptions) *storeBreaker {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 5
	}
	if opts.OpenDuration <= 0 {
		opts.OpenDuration = 500 * time.Millisecond
	}
	return &storeBreaker{opts: opts}
}

// allow reports whether the store should be consulted.
func (b *storeBreaker) allow(now time.Time) bool {
	if b == nil {
		return true
	}
	until := b.openUntil.Load()
	if until == 0 {
		return true
	}
	if now.UnixNano() < until {
		return false
	}
	// Half-open: let traffic probe the store again.
	b.openUntil.Store(0)
	b.failures.Store(b.opts.FailureThreshold - 1)
	return true
}

func (b *storeBreaker) onSuccess() {
	if b == nil {
		return
	}
	b.failures.Store(0)
}

func (b *storeBreaker) onFailure(now time.Time) {
	if b == nil {
		return
	}
	if b.failures.Add(1) >= b.opts.FailureThreshold {
		b.openUntil.Store(now.Add(b.opts.OpenDuration).UnixNano())
	}
}
