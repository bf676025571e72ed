// Package store defines the counter storage contract used by the rate limit
// algorithms. Implementations must make Update atomic per key so that two
// concurrent requests against the same identifier observe a linearizable
// read-modify-write.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable indicates the storage backend cannot be reached. Callers
// treat it as retryable; the engine fails open on it.
var ErrUnavailable = errors.New("counter store unavailable")

// Entry is the mutable counter state kept per identifier and algorithm key.
type Entry struct {
	Count        int64       `json:"count"`
	FirstRequest time.Time   `json:"first_request"`
	LastRequest  time.Time   `json:"last_request"`
	ResetTime    time.Time   `json:"reset_time"`
	Timestamps   []time.Time `json:"timestamps,omitempty"`
	Tokens       float64     `json:"tokens,omitempty"`
	LastRefill   time.Time   `json:"last_refill,omitempty"`
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	copied := *e
	if e.Timestamps != nil {
		copied.Timestamps = make([]time.Time, len(e.Timestamps))
		copy(copied.Timestamps, e.Timestamps)
	}
	return &copied
}

// UpdateFunc mutates an entry under the store's per-key atomicity guarantee.
// The argument is nil when no entry exists; returning nil deletes the entry.
type UpdateFunc func(entry *Entry) *Entry

// CounterStore is the injected storage backend for rate limit counters.
type CounterStore interface {
	// Get returns the entry for key, or false when absent or expired.
	Get(ctx context.Context, key string) (*Entry, bool, error)
	// Set stores the entry under key with the provided time-to-live.
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error
	// Delete removes the entry for key.
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every entry whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	// Increment atomically adds n to the counter under key and returns the
	// new count, creating the entry when absent.
	Increment(ctx context.Context, key string, n int64, ttl time.Duration) (int64, error)
	// Update applies fn atomically to the entry under key. It never runs fn
	// once ctx is cancelled, so a cancelled request is charged at most once.
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) (*Entry, error)
	// Cleanup sweeps expired entries.
	Cleanup(ctx context.Context) error
}
