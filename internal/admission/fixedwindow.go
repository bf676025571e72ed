// Package admission implements the fixed window algorithm.
package admission

import (
	"context"
	"strconv"
	"time"

	"github.com/Cardow-Co/conciergus.ai-sub001/internal/store"
)

// fixedWindow counts requests per aligned window bucket. Counts reset hard at
// the boundary, which permits up to a 2x burst straddling it; that is the
// documented trade-off of this algorithm, not a bug.
type fixedWindow struct {
	store store.CounterStore
}

func (a *fixedWindow) apply(ctx context.Context, cfg *Config, key string, now time.Time) (*Info, error) {
	bucketStart := now.Truncate(cfg.Window)
	resetTime := bucketStart.Add(cfg.Window)
	bucketKey := key + "\x1f" + strconv.FormatInt(bucketStart.UnixMilli(), 10)

	entry, err := a.store.Update(ctx, bucketKey, entryTTL(cfg), func(entry *store.Entry) *store.Entry {
		if entry == nil {
			entry = &store.Entry{FirstRequest: now, ResetTime: resetTime}
		}
		entry.Count++
		entry.LastRequest = now
		return entry
	})
	if err != nil {
		return nil, err
	}

	blocked := entry.Count > cfg.MaxRequests
	info := &Info{
		Limit:     cfg.MaxRequests,
		Remaining: clampRemaining(cfg.MaxRequests - entry.Count),
		ResetTime: resetTime,
		Algorithm: AlgorithmFixedWindow,
		Blocked:   blocked,
	}
	if blocked {
		info.RetryAfter = ceilSeconds(resetTime.Sub(now))
		info.Reason = ReasonRateLimited
	}
	return info, nil
}
