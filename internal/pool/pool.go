// Package pool implements the reusable-buffer side of the inference
// acceleration cache: buckets of typed, shaped, device-located buffers keyed
// by (shape, dtype, device), with hard per-key caps, TTL eviction, and
// pool-wide stats.
//
// Scheduling model: synchronous, blocking calls only. The pool spawns no
// goroutines and runs no timers; stale eviction happens when a caller (or
// the accelcache Janitor) invokes EvictStale.
package pool

import (
	"log/slog"
	"sync"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/accelcache/internal/tensor"
)

// Pool routes acquisitions to shape buckets, lazily creating them.
//
// Thread-safety: one pool-wide mutex serializes bucket creation, in-use
// flips, and membership changes. Concurrent acquire/release storms can never
// hand the same buffer to two callers or corrupt bucket counts.
type Pool struct {
	mu      sync.Mutex
	cfg     Config
	alloc   tensor.Allocator
	enabled bool
	buckets map[Key]*bucket

	hits      uint64
	misses    uint64
	evictions uint64

	budgetWarned bool
}

// New creates a pool. A nil allocator defaults to host memory. Pooling is
// active only when cfg.Enabled is set and the allocator reports support;
// otherwise every operation degrades to a safe pass-through so callers never
// special-case "pool disabled".
func New(cfg Config, alloc tensor.Allocator) *Pool {
	if alloc == nil {
		alloc = tensor.HostAllocator{}
	}
	p := &Pool{
		cfg:     cfg,
		alloc:   alloc,
		enabled: cfg.Enabled && alloc.Supported(),
		buckets: make(map[Key]*bucket),
	}
	if !p.enabled {
		slog.Info("pool: disabled, operating in pass-through mode",
			"config_enabled", cfg.Enabled,
			"allocator_supported", alloc.Supported(),
		)
	}
	return p
}

// Enabled reports whether pooling is active.
func (p *Pool) Enabled() bool { return p.enabled }

// Acquire returns a buffer for the given shape/dtype/device, reusing a
// pooled one when available. Contents are whatever was last written, not
// zeroed. Fails with ErrPoolExhausted when the bucket's cap is reached and
// every buffer is held.
func (p *Pool) Acquire(shape tensor.Shape, dtype tensor.DType, dev tensor.Device) (*tensor.Tensor, error) {
	if !p.enabled {
		return p.alloc.Allocate(shape, dtype, dev)
	}

	now := time.Now()
	key := KeyFor(shape, dtype, dev)

	p.mu.Lock()
	b, ok := p.buckets[key]
	if !ok {
		b = newBucket(key, shape, dtype, dev, p.cfg.MaxTensorsPerShape)
		p.buckets[key] = b
	}

	t, reused, err := b.acquire(p.alloc, now)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if reused {
		p.hits++
	} else {
		p.misses++
		p.checkBudgetLocked()
	}
	p.mu.Unlock()

	slog.Debug("pool: buffer acquired",
		"key", key.String(),
		"buffer_id", t.ID(),
		"reused", reused,
	)
	return t, nil
}

// AcquireFilled is Acquire plus an unconditional overwrite of the buffer's
// contents with fill. A convenience for callers that need a known state, not
// part of pooling bookkeeping.
func (p *Pool) AcquireFilled(shape tensor.Shape, dtype tensor.DType, dev tensor.Device, fill float64) (*tensor.Tensor, error) {
	t, err := p.Acquire(shape, dtype, dev)
	if err != nil {
		return nil, err
	}
	t.Fill(fill)
	return t, nil
}

// Release returns a buffer to its owning bucket, resolved from the buffer's
// own shape/dtype/device metadata. Returns false when no owning bucket
// tracks the buffer (untracked pass-through buffers included). Releasing
// twice in a row is an idempotent no-op.
func (p *Pool) Release(t *tensor.Tensor) bool {
	if !p.enabled || t == nil {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.buckets[KeyOf(t)]
	if !ok {
		return false
	}
	return b.release(t, time.Now())
}

// WithBuffer runs fn with an acquired buffer and guarantees Release on every
// exit path, including panics.
func (p *Pool) WithBuffer(shape tensor.Shape, dtype tensor.DType, dev tensor.Device, fn func(*tensor.Tensor) error) error {
	t, err := p.Acquire(shape, dtype, dev)
	if err != nil {
		return err
	}
	defer p.Release(t)
	return fn(t)
}

// Preallocate eagerly creates up to n available buffers for a key, bounded
// by the per-key cap. Returns how many were actually created.
func (p *Pool) Preallocate(shape tensor.Shape, dtype tensor.DType, dev tensor.Device, n int) int {
	if !p.enabled || n <= 0 {
		return 0
	}

	now := time.Now()
	key := KeyFor(shape, dtype, dev)

	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.buckets[key]
	if !ok {
		b = newBucket(key, shape, dtype, dev, p.cfg.MaxTensorsPerShape)
		p.buckets[key] = b
	}
	created := b.preallocate(p.alloc, n, now)
	p.checkBudgetLocked()
	return created
}

// EvictStale removes every available buffer idle longer than ttl across all
// buckets. Held buffers are never touched regardless of staleness. With
// defragmentation enabled, buckets left empty are dropped too.
func (p *Pool) EvictStale(ttl time.Duration) int {
	if !p.enabled {
		return 0
	}

	now := time.Now()

	p.mu.Lock()
	removed := 0
	for key, b := range p.buckets {
		removed += b.evictStale(ttl, now)
		if p.cfg.EnableDefragmentation && len(b.entries) == 0 {
			delete(p.buckets, key)
		}
	}
	p.evictions += uint64(removed)
	p.mu.Unlock()

	if removed > 0 {
		slog.Info("pool: stale buffers evicted",
			"removed", removed,
			"ttl", ttl,
		)
	}
	return removed
}

// Clear removes every available buffer from every bucket. Buffers currently
// held stay tracked until released.
func (p *Pool) Clear() {
	if !p.enabled {
		return
	}

	p.mu.Lock()
	removed := 0
	for key, b := range p.buckets {
		removed += b.clear()
		if p.cfg.EnableDefragmentation && len(b.entries) == 0 {
			delete(p.buckets, key)
		}
	}
	p.mu.Unlock()

	slog.Info("pool: cleared", "removed", removed)
}

// Stats returns a snapshot of pool-wide state. TotalSizeMB counts every
// tracked buffer whether held or available.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		Enabled:   p.enabled,
		BudgetMB:  p.cfg.MaxPoolSizeMB,
		Hits:      p.hits,
		Misses:    p.misses,
		Evictions: p.evictions,
	}
	var totalBytes int64
	for _, b := range p.buckets {
		s.TotalPools++
		s.TotalTensors += len(b.entries)
		s.InUse += b.inUseCount()
		totalBytes += b.sizeBytes()
	}
	s.TotalSizeMB = float64(totalBytes) / (1024 * 1024)
	s.OverBudget = p.cfg.MaxPoolSizeMB > 0 && s.TotalSizeMB > float64(p.cfg.MaxPoolSizeMB)
	return s
}

// checkBudgetLocked logs once when tracked size first crosses the advisory
// budget. The budget never blocks growth; eviction policy is the caller's.
func (p *Pool) checkBudgetLocked() {
	if p.cfg.MaxPoolSizeMB <= 0 || p.budgetWarned {
		return
	}
	var totalBytes int64
	for _, b := range p.buckets {
		totalBytes += b.sizeBytes()
	}
	totalMB := float64(totalBytes) / (1024 * 1024)
	if totalMB > float64(p.cfg.MaxPoolSizeMB) {
		p.budgetWarned = true
		slog.Warn("pool: tracked size exceeds advisory budget",
			"total_mb", totalMB,
			"budget_mb", p.cfg.MaxPoolSizeMB,
			"action", "run EvictStale or lower MaxTensorsPerShape",
		)
	}
}
