// Package admission defines the algorithm dispatch contract.
package admission

import (
	"context"
	"math"
	"time"
)

// algorithm is one interchangeable counting strategy. Implementations consume
// the counter store and must keep the per-key read-modify-write atomic.
type algorithm interface {
	apply(ctx context.Context, cfg *Config, key string, now time.Time) (*Info, error)
}

// entryTTL bounds counter lifetime: no entry outlives two window durations.
func entryTTL(cfg *Config) time.Duration {
	return 2 * cfg.Window
}

// ceilSeconds rounds a duration up to whole seconds, never below one second
// for a positive input.
func ceilSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(d.Seconds())) * time.Second
}

func clampRemaining(remaining int64) int64 {
	if remaining < 0 {
		return 0
	}
	return remaining
}
