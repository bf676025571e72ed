// Package redisstore provides a Redis-backed counter store. It satisfies the
// same contract as the in-memory store, which is what makes the engine safe
// to run behind a shared backend: cross-node consistency is the store's
// problem, not the engine's.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/Cardow-Co/conciergus.ai-sub001/internal/store"
)

const (
	keyPrefix  = "admission:counter:"
	maxRetries = 8
)

// Config carries Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Store persists counter entries in Redis as JSON values with TTLs.
type Store struct {
	client *redis.Client
}

var _ store.CounterStore = (*Store)(nil)

// New connects to Redis and verifies the connection.
func New(cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Store{client: client}, nil
}

// NewWithClient wraps an existing client, used by tests.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Get returns the entry for key.
func (s *Store) Get(ctx context.Context, key string) (*store.Entry, bool, error) {
	data, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("get", err)
	}
	entry, err := decodeEntry(data)
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// Set stores the entry under key with a TTL.
func (s *Store) Set(ctx context.Context, key string, entry *store.Entry, ttl time.Duration) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, keyPrefix+key, payload, ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

// Delete removes the entry for key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// DeletePrefix removes every entry whose key starts with prefix.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) error {
	if prefix == "" {
		return nil
	}
	iter := s.client.Scan(ctx, 0, keyPrefix+prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return unavailable("delete", err)
		}
	}
	if err := iter.Err(); err != nil {
		return unavailable("scan", err)
	}
	return nil
}

// Increment atomically adds n to the counter under key.
func (s *Store) Increment(ctx context.Context, key string, n int64, ttl time.Duration) (int64, error) {
	entry, err := s.Update(ctx, key, ttl, func(entry *store.Entry) *store.Entry {
		now := time.Now()
		if entry == nil {
			entry = &store.Entry{FirstRequest: now}
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

// Update applies fn under an optimistic WATCH/MULTI loop. The callback may
// run more than once; only the transaction that commits wins.
func (s *Store) Update(ctx context.Context, key string, ttl time.Duration, fn store.UpdateFunc) (*store.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullKey := keyPrefix + key
	var updated *store.Entry

	txn := func(tx *redis.Tx) error {
		var current *store.Entry
		data, err := tx.Get(ctx, fullKey).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			current, err = decodeEntry(data)
			if err != nil {
				return err
			}
		}
		updated = fn(current)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if updated == nil {
				pipe.Del(ctx, fullKey)
				return nil
			}
			payload, err := json.Marshal(updated)
			if err != nil {
				return err
			}
			pipe.Set(ctx, fullKey, payload, ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := s.client.Watch(ctx, txn, fullKey)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, unavailable("update", err)
	}
	return nil, unavailable("update", redis.TxFailedErr)
}

// Cleanup is a no-op: Redis expires entries via their TTLs.
func (s *Store) Cleanup(ctx context.Context) error {
	return nil
}

func decodeEntry(data []byte) (*store.Entry, error) {
	var entry store.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode counter entry: %w", err)
	}
	return &entry, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", store.ErrUnavailable, op, err)
}
