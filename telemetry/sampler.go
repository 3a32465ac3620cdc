package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/accelcache"
)

// Sampler snapshots both caches on a fixed cadence and publishes onto a
// bus. All background work lives here; the caches themselves never tick.
type Sampler struct {
	pool     *accelcache.Pool
	cache    *accelcache.GraphCache
	bus      *Bus
	interval time.Duration
}

// NewSampler creates a sampler. Either cache may be nil (its section of the
// snapshot stays zero). A non-positive interval defaults to 10s.
func NewSampler(pool *accelcache.Pool, cache *accelcache.GraphCache, bus *Bus, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Sampler{pool: pool, cache: cache, bus: bus, interval: interval}
}

// Sample takes one snapshot immediately.
func (s *Sampler) Sample() Snapshot {
	snap := Snapshot{
		TraceID:   uuid.New().String(),
		Timestamp: time.Now(),
	}
	if s.pool != nil {
		snap.Pool = s.pool.Stats()
	}
	if s.cache != nil {
		snap.Graph = s.cache.Info()
	}
	return snap
}

// Run blocks, sampling and publishing every interval until ctx is
// cancelled. Callers typically run it in its own goroutine.
func (s *Sampler) Run(ctx context.Context) {
	slog.Info("telemetry: sampler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("telemetry: sampler stopped")
			return
		case <-ticker.C:
			s.bus.Publish(s.Sample())
		}
	}
}
