// Package admission implements the sliding window algorithm.
package admission

import (
	"context"
	"time"

	"github.com/Cardow-Co/conciergus.ai-sub001/internal/store"
)

// slidingWindow stores individual request timestamps and prunes those older
// than the trailing window on every check.
type slidingWindow struct {
	store store.CounterStore
}

func (a *slidingWindow) apply(ctx context.Context, cfg *Config, key string, now time.Time) (*Info, error) {
	cutoff := now.Add(-cfg.Window)

	entry, err := a.store.Update(ctx, key, entryTTL(cfg), func(entry *store.Entry) *store.Entry {
		if entry == nil {
			entry = &store.Entry{FirstRequest: now}
		}
		kept := entry.Timestamps[:0]
		for _, ts := range entry.Timestamps {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		entry.Timestamps = append(kept, now)
		entry.Count = int64(len(entry.Timestamps))
		entry.LastRequest = now
		entry.ResetTime = entry.Timestamps[0].Add(cfg.Window)
		return entry
	})
	if err != nil {
		return nil, err
	}

	blocked := entry.Count > cfg.MaxRequests
	info := &Info{
		Limit:     cfg.MaxRequests,
		Remaining: clampRemaining(cfg.MaxRequests - entry.Count),
		ResetTime: entry.ResetTime,
		Algorithm: AlgorithmSlidingWindow,
		Blocked:   blocked,
	}
	if blocked {
		info.RetryAfter = ceilSeconds(entry.ResetTime.Sub(now))
		info.Reason = ReasonRateLimited
	}
	return info, nil
}
