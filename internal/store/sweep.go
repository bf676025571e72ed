// Package store provides the background sweep loop.
package store

import (
	"context"
	"time"
)

// Sweeper is the subset of CounterStore the sweep loop needs.
type Sweeper interface {
	Cleanup(ctx context.Context) error
}

// SweepLoop periodically removes expired counter entries so the request path
// never has to.
type SweepLoop struct {
	store    Sweeper
	interval time.Duration
	onError  func(error)
}

// NewSweepLoop constructs a sweep loop.
func NewSweepLoop(store Sweeper, interval time.Duration, onError func(error)) *SweepLoop {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SweepLoop{store: store, interval: interval, onError: onError}
}

// Run sweeps until ctx is cancelled.
func (l *SweepLoop) Run(ctx context.Context) {
	if l == nil || l.store == nil {
		return
	}
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.store.Cleanup(ctx); err != nil && l.onError != nil {
				l.onError(err)
			}
		}
	}
}
