package pool

import (
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/accelcache/internal/tensor"
)

// Config contains configuration for the buffer pool.
type Config struct {
	// Enabled turns pooling on. When false every operation is a safe
	// pass-through: Acquire allocates untracked buffers, Release is a no-op.
	Enabled bool
	// MaxPoolSizeMB is the advisory global byte budget. The pool never
	// refuses an allocation because of it; crossing it is logged and
	// reported via Stats so a maintenance loop can evict.
	MaxPoolSizeMB int
	// MaxTensorsPerShape is the hard per-bucket cap. Once this many buffers
	// exist for one (shape, dtype, device) key and all are held, Acquire
	// fails with ErrPoolExhausted rather than blocking.
	MaxTensorsPerShape int
	// TensorTTL is the default staleness horizon used by maintenance loops
	// calling EvictStale.
	TensorTTL time.Duration
	// EnableDefragmentation drops empty buckets during stale eviction so
	// long-running processes don't accumulate dead shape keys.
	EnableDefragmentation bool
}

// DefaultConfig returns the production defaults used by the serving loop.
func DefaultConfig() Config {
	return Config{
		Enabled:               true,
		MaxPoolSizeMB:         512,
		MaxTensorsPerShape:    8,
		TensorTTL:             5 * time.Minute,
		EnableDefragmentation: true,
	}
}

// Stats is a snapshot of pool-wide state.
type Stats struct {
	// Enabled reports whether pooling is active (config + allocator support).
	Enabled bool `json:"enabled"`
	// TotalPools is the number of distinct shape buckets.
	TotalPools int `json:"total_pools"`
	// TotalTensors counts every tracked buffer, held or available.
	TotalTensors int `json:"total_tensors"`
	// InUse counts buffers currently held by callers.
	InUse int `json:"in_use"`
	// TotalSizeMB sums every tracked buffer's size regardless of use state.
	TotalSizeMB float64 `json:"total_size_mb"`
	// BudgetMB echoes the advisory budget from Config.
	BudgetMB int `json:"budget_mb"`
	// OverBudget is true when TotalSizeMB exceeds BudgetMB.
	OverBudget bool `json:"over_budget"`
	// Hits counts acquisitions satisfied by reuse.
	Hits uint64 `json:"hits"`
	// Misses counts acquisitions that allocated a new buffer.
	Misses uint64 `json:"misses"`
	// Evictions counts buffers removed by TTL eviction.
	Evictions uint64 `json:"evictions"`
}

// Key identifies one bucket: shape + dtype + device. Two keys are equal iff
// all three components match exactly; distinct triples never collapse.
type Key struct {
	shape  string
	dtype  tensor.DType
	device string
}

// KeyFor derives the bucket key for a (shape, dtype, device) triple.
func KeyFor(shape tensor.Shape, dtype tensor.DType, dev tensor.Device) Key {
	return Key{shape: shape.Key(), dtype: dtype, device: dev.String()}
}

// KeyOf derives the bucket key from a tensor's own metadata.
func KeyOf(t *tensor.Tensor) Key {
	return KeyFor(t.Shape(), t.DType(), t.Device())
}

func (k Key) String() string {
	return k.shape + "/" + k.dtype.String() + "@" + k.device
}
