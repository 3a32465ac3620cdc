package pool

import (
	"fmt"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/accelcache/internal/tensor"
)

// pooled is one tracked buffer plus its bookkeeping.
type pooled struct {
	t        *tensor.Tensor
	inUse    bool
	lastUsed time.Time
}

// bucket manages reusable buffers for exactly one Key.
//
// Invariants: len(entries) <= max at all times; at most one caller holds any
// entry (inUse flips happen under the pool lock). All methods are called
// with the pool lock held.
type bucket struct {
	key     Key
	shape   tensor.Shape
	dtype   tensor.DType
	dev     tensor.Device
	max     int
	entries []*pooled
}

func newBucket(key Key, shape tensor.Shape, dtype tensor.DType, dev tensor.Device, max int) *bucket {
	return &bucket{
		key:   key,
		shape: shape.Clone(),
		dtype: dtype,
		dev:   dev,
		max:   max,
	}
}

// acquire returns an available buffer (identity reuse, contents whatever was
// last written), allocating a new one while under the cap. A full bucket
// with every buffer held fails immediately with ErrPoolExhausted.
// The second return reports whether the buffer was reused.
func (b *bucket) acquire(alloc tensor.Allocator, now time.Time) (*tensor.Tensor, bool, error) {
	for _, e := range b.entries {
		if !e.inUse {
			e.inUse = true
			e.lastUsed = now
			return e.t, true, nil
		}
	}

	if len(b.entries) >= b.max {
		return nil, false, fmt.Errorf("%w: %s (cap %d, all held)", ErrPoolExhausted, b.key, b.max)
	}

	t, err := alloc.Allocate(b.shape, b.dtype, b.dev)
	if err != nil {
		return nil, false, fmt.Errorf("pool: allocate %s: %w", b.key, err)
	}
	b.entries = append(b.entries, &pooled{t: t, inUse: true, lastUsed: now})
	return t, false, nil
}

// release locates a buffer by identity and marks it available. Releasing an
// already-available buffer is an idempotent no-op that still returns true;
// untracked buffers return false.
func (b *bucket) release(t *tensor.Tensor, now time.Time) bool {
	for _, e := range b.entries {
		if e.t == t {
			e.inUse = false
			e.lastUsed = now
			return true
		}
	}
	return false
}

// clear removes every available buffer. Held buffers are never revoked.
func (b *bucket) clear() int {
	kept := b.entries[:0]
	removed := 0
	for _, e := range b.entries {
		if e.inUse {
			kept = append(kept, e)
		} else {
			removed++
		}
	}
	b.releaseTail(len(kept))
	b.entries = kept
	return removed
}

// preallocate eagerly creates up to n available buffers, bounded by the cap.
// Returns how many were actually created.
func (b *bucket) preallocate(alloc tensor.Allocator, n int, now time.Time) int {
	created := 0
	for created < n && len(b.entries) < b.max {
		t, err := alloc.Allocate(b.shape, b.dtype, b.dev)
		if err != nil {
			break
		}
		b.entries = append(b.entries, &pooled{t: t, lastUsed: now})
		created++
	}
	return created
}

// evictStale removes available buffers idle longer than ttl.
func (b *bucket) evictStale(ttl time.Duration, now time.Time) int {
	kept := b.entries[:0]
	removed := 0
	for _, e := range b.entries {
		if !e.inUse && now.Sub(e.lastUsed) > ttl {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	b.releaseTail(len(kept))
	b.entries = kept
	return removed
}

// releaseTail nils the backing-array slots past the kept prefix so evicted
// buffers actually become collectible instead of lingering until the slice
// regrows.
func (b *bucket) releaseTail(kept int) {
	for i := kept; i < len(b.entries); i++ {
		b.entries[i] = nil
	}
}

func (b *bucket) sizeBytes() int64 {
	var total int64
	for _, e := range b.entries {
		total += int64(e.t.NumBytes())
	}
	return total
}

func (b *bucket) inUseCount() int {
	n := 0
	for _, e := range b.entries {
		if e.inUse {
			n++
		}
	}
	return n
}
