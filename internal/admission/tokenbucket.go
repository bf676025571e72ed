// Package admission implements the token bucket algorithm, which also backs
// the leaky bucket policy setting.
package admission

import (
	"context"
	"time"

	"github.com/Cardow-Co/conciergus.ai-sub001/internal/store"
)

// tokenBucket refills tokens proportionally to elapsed time and consumes one
// per request, allowing bursts up to the bucket size.
type tokenBucket struct {
	store store.CounterStore
}

func (a *tokenBucket) apply(ctx context.Context, cfg *Config, key string, now time.Time) (*Info, error) {
	bucketSize := cfg.BurstLimit
	if bucketSize <= 0 {
		bucketSize = cfg.MaxRequests
	}
	refillRate := cfg.RefillRate
	if refillRate <= 0 {
		refillRate = float64(cfg.MaxRequests) / cfg.Window.Seconds()
	}

	allowed := false
	entry, err := a.store.Update(ctx, key, entryTTL(cfg), func(entry *store.Entry) *store.Entry {
		if entry == nil {
			entry = &store.Entry{
				FirstRequest: now,
				Tokens:       float64(bucketSize),
				LastRefill:   now,
			}
		}
		elapsed := now.Sub(entry.LastRefill).Seconds()
		if elapsed > 0 {
			entry.Tokens += elapsed * refillRate
			if entry.Tokens > float64(bucketSize) {
				entry.Tokens = float64(bucketSize)
			}
		}
		entry.LastRefill = now

		allowed = entry.Tokens >= 1
		if allowed {
			entry.Tokens--
		}
		entry.Count++
		entry.LastRequest = now
		return entry
	})
	if err != nil {
		return nil, err
	}

	info := &Info{
		Limit:     bucketSize,
		Remaining: clampRemaining(int64(entry.Tokens)),
		ResetTime: now.Add(durationForTokens(float64(bucketSize)-entry.Tokens, refillRate)),
		Algorithm: AlgorithmTokenBucket,
		Blocked:   !allowed,
	}
	if !allowed {
		info.RetryAfter = ceilSeconds(durationForTokens(1-entry.Tokens, refillRate))
		if info.RetryAfter <= 0 {
			info.RetryAfter = time.Second
		}
		info.Reason = ReasonRateLimited
	}
	return info, nil
}

// durationForTokens converts a token deficit into the wait until the refill
// covers it.
func durationForTokens(tokens float64, refillRate float64) time.Duration {
	if tokens <= 0 || refillRate <= 0 {
		return 0
	}
	return time.Duration(tokens / refillRate * float64(time.Second))
}
