package accelcache

import (
	"github.com/e7canasta/orion-care-sensor/modules/accelcache/internal/graph"
	"github.com/e7canasta/orion-care-sensor/modules/accelcache/internal/pool"
	"github.com/e7canasta/orion-care-sensor/modules/accelcache/internal/tensor"
)

// Public API - re-export internal types as the stable contract.
// Implementations live in internal/ so they can be refactored without
// breaking clients.

// --- Numeric buffers ---

// Tensor is a typed, shaped, device-located numeric buffer supporting
// in-place copy and independent clone.
type Tensor = tensor.Tensor

// Shape represents buffer dimensions, outermost first.
type Shape = tensor.Shape

// DType represents the element type of a buffer.
type DType = tensor.DType

// Element types.
const (
	Float16  = tensor.Float16
	Float32  = tensor.Float32
	Float64  = tensor.Float64
	BFloat16 = tensor.BFloat16
	Int8     = tensor.Int8
	Int16    = tensor.Int16
	Int32    = tensor.Int32
	Int64    = tensor.Int64
	Uint8    = tensor.Uint8
	Bool     = tensor.Bool
)

// Device identifies a compute device (type + index).
type Device = tensor.Device

// DeviceType represents the compute device family.
type DeviceType = tensor.DeviceType

// Device families.
const (
	CPU   = tensor.CPU
	CUDA  = tensor.CUDA
	ROCm  = tensor.ROCm
	Metal = tensor.Metal
)

// CPU0 is the default host device.
var CPU0 = tensor.CPU0

// CUDADevice returns the device identifier for a CUDA GPU index.
func CUDADevice(index int) Device { return tensor.CUDADevice(index) }

// NewTensor allocates a zeroed tensor.
func NewTensor(shape Shape, dtype DType, dev Device) *Tensor {
	return tensor.New(shape, dtype, dev)
}

// Allocator creates device buffers for the pool. Supported reports whether
// pooled allocation is usable on this backend at all.
type Allocator = tensor.Allocator

// HostAllocator allocates plain host-memory tensors. Always supported.
type HostAllocator = tensor.HostAllocator

// --- Buffer pool ---

// Pool routes buffer acquisitions to shape buckets with hard per-key caps.
type Pool = pool.Pool

// PoolConfig configures a Pool.
type PoolConfig = pool.Config

// PoolStats is a snapshot of pool-wide state.
type PoolStats = pool.Stats

// PoolKey identifies one bucket: shape + dtype + device.
type PoolKey = pool.Key

// PoolKeyFor derives the bucket key for a (shape, dtype, device) triple.
func PoolKeyFor(shape Shape, dtype DType, dev Device) PoolKey {
	return pool.KeyFor(shape, dtype, dev)
}

// ErrPoolExhausted is returned by Acquire when a bucket's per-key cap is
// reached and every buffer is held. The pool never blocks or waits.
var ErrPoolExhausted = pool.ErrPoolExhausted

// NewPool creates a buffer pool. A nil allocator defaults to host memory.
func NewPool(cfg PoolConfig, alloc Allocator) *Pool {
	return pool.New(cfg, alloc)
}

// DefaultPoolConfig returns the production pool defaults.
func DefaultPoolConfig() PoolConfig { return pool.DefaultConfig() }

// --- Graph replay cache ---

// GraphCache is the shape-keyed capture/warmup/replay cache.
type GraphCache = graph.Cache

// GraphConfig configures a GraphCache.
type GraphConfig = graph.Config

// GraphInfo is a snapshot of graph cache state.
type GraphInfo = graph.Info

// RunOptions controls one GraphCache.Run invocation.
type RunOptions = graph.RunOptions

// Batch is a named mapping of buffers flowing through one forward pass.
type Batch = graph.Batch

// InputName is the canonical name for a single-input batch.
const InputName = graph.InputName

// Single wraps a bare tensor into the canonical single-input batch.
func Single(t *Tensor) Batch { return graph.Single(t) }

// Forward is the forward-pass callable supplied by the model wrapper.
type Forward = graph.Forward

// ForwardFunc adapts a function to the Forward interface.
type ForwardFunc = graph.ForwardFunc

// Backend is the accelerator capability surface the graph cache consumes.
type Backend = graph.Backend

// Executable is a pre-recorded, replayable operation sequence.
type Executable = graph.Executable

// HostBackend is the reference Backend for host execution.
type HostBackend = graph.HostBackend

// NewGraphCache creates a graph replay cache around a forward-pass runner.
// A nil backend defaults to host execution.
func NewGraphCache(runner Forward, backend Backend, cfg GraphConfig) *GraphCache {
	return graph.New(runner, backend, cfg)
}

// DefaultGraphConfig returns the production graph cache defaults.
func DefaultGraphConfig() GraphConfig { return graph.DefaultConfig() }
