package accelcache

import (
	"context"
	"log/slog"
	"time"
)

// Janitor runs periodic stale eviction against a pool. The pool itself
// never runs timers; maintenance cadence is the caller's policy, and the
// Janitor is that policy packaged for the common case.
type Janitor struct {
	pool     *Pool
	interval time.Duration
	ttl      time.Duration
}

// NewJanitor creates a maintenance loop for the pool. Non-positive interval
// or ttl fall back to the pool defaults (interval = ttl / 2).
func NewJanitor(p *Pool, interval, ttl time.Duration) *Janitor {
	if ttl <= 0 {
		ttl = DefaultPoolConfig().TensorTTL
	}
	if interval <= 0 {
		interval = ttl / 2
	}
	return &Janitor{pool: p, interval: interval, ttl: ttl}
}

// Run blocks, evicting stale buffers every interval until ctx is cancelled.
// Callers typically run it in its own goroutine:
//
//	go accelcache.NewJanitor(pool, 0, 0).Run(ctx)
func (j *Janitor) Run(ctx context.Context) {
	slog.Info("janitor: started",
		"interval", j.interval,
		"ttl", j.ttl,
	)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("janitor: stopped")
			return
		case <-ticker.C:
			removed := j.pool.EvictStale(j.ttl)
			if removed > 0 {
				slog.Debug("janitor: eviction pass",
					"removed", removed,
					"total_size_mb", j.pool.Stats().TotalSizeMB,
				)
			}
		}
	}
}
