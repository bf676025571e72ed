// Package store provides the in-memory counter store.
package store

import (
	"context"
	"strings"
	"sync"
	"time"
)

const shardCount = 64

// MemoryStore keeps counters in sharded mutex-guarded maps. It is the default
// single-process backend; a distributed deployment swaps in a shared store
// without the engine noticing.
type MemoryStore struct {
	shards [shardCount]memoryShard
	now    func() time.Time
}

type memoryShard struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	entry     *Entry
	expiresAt time.Time
}

// MemoryOption customizes a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the store clock.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore constructs an in-memory counter store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{now: time.Now}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]*memoryEntry)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the entry for key when present and not expired.
func (s *MemoryStore) Get(ctx context.Context, key string) (*Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	shard := s.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	stored, ok := shard.entries[key]
	if !ok {
		return nil, false, nil
	}
	if s.expired(stored) {
		delete(shard.entries, key)
		return nil, false, nil
	}
	return stored.entry.Clone(), true, nil
}

// Set stores the entry under key.
func (s *MemoryStore) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	shard := s.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	shard.entries[key] = &memoryEntry{entry: entry.Clone(), expiresAt: s.expiry(ttl)}
	return nil
}

// Delete removes the entry for key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	shard := s.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.entries, key)
	return nil
}

// DeletePrefix removes every entry whose key starts with prefix.
func (s *MemoryStore) DeletePrefix(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if prefix == "" {
		return nil
	}
	for i := range s.shards {
		shard := &s.shards[i]
		shard.mu.Lock()
		for key := range shard.entries {
			if strings.HasPrefix(key, prefix) {
				delete(shard.entries, key)
			}
		}
		shard.mu.Unlock()
	}
	return nil
}

// Increment atomically adds n to the counter under key.
func (s *MemoryStore) Increment(ctx context.Context, key string, n int64, ttl time.Duration) (int64, error) {
	entry, err := s.Update(ctx, key, ttl, func(entry *Entry) *Entry {
		now := s.now()
		if entry == nil {
			entry = &Entry{FirstRequest: now}
		}
		entry.Count += n
		if entry.Count < 0 {
			entry.Count = 0
		}
		entry.LastRequest = now
		return entry
	})
	if err != nil {
		return 0, err
	}
	return entry.Count, nil
}

// Update applies fn under the key's shard lock. The callback never runs once
// ctx is cancelled.
func (s *MemoryStore) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shard := s.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var current *Entry
	if stored, ok := shard.entries[key]; ok && !s.expired(stored) {
		current = stored.entry.Clone()
	}
	updated := fn(current)
	if updated == nil {
		delete(shard.entries, key)
		return nil, nil
	}
	shard.entries[key] = &memoryEntry{entry: updated.Clone(), expiresAt: s.expiry(ttl)}
	return updated, nil
}

// Cleanup sweeps expired entries across all shards.
func (s *MemoryStore) Cleanup(ctx context.Context) error {
	for i := range s.shards {
		if err := ctx.Err(); err != nil {
			return err
		}
		shard := &s.shards[i]
		shard.mu.Lock()
		for key, stored := range shard.entries {
			if s.expired(stored) {
				delete(shard.entries, key)
			}
		}
		shard.mu.Unlock()
	}
	return nil
}

// Len reports the number of live entries.
func (s *MemoryStore) Len() int {
	total := 0
	for i := range s.shards {
		shard := &s.shards[i]
		shard.mu.Lock()
		for _, stored := range shard.entries {
			if !s.expired(stored) {
				total++
			}
		}
		shard.mu.Unlock()
	}
	return total
}

func (s *MemoryStore) shard(key string) *memoryShard {
	return &s.shards[fnv32a(key)%shardCount]
}

func (s *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *MemoryStore) expired(stored *memoryEntry) bool {
	if stored == nil {
		return true
	}
	if stored.expiresAt.IsZero() {
		return false
	}
	return !s.now().Before(stored.expiresAt)
}

func fnv32a(s string) uint32 {
	const offset32 = 2166136261
	const prime32 = 16777619
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
