package graph

import (
	"context"

	"github.com/e7canasta/orion-care-sensor/modules/accelcache/internal/tensor"
)

// Executable is a pre-recorded sequence of accelerator operations bound to
// fixed static buffers. Replay re-executes the sequence against those
// buffers; it never allocates.
type Executable interface {
	Replay(ctx context.Context) error
	// Free releases resources held by the recording. Called on eviction.
	Free()
}

// Backend is the accelerator capability surface the cache consumes.
// Capability queries return false instead of erroring, so call sites never
// special-case unsupported hardware.
type Backend interface {
	// CaptureSupported reports whether programs can be captured and
	// replayed on the given device.
	CaptureSupported(dev tensor.Device) bool

	// Synchronize blocks until all pending work on the device completes.
	Synchronize(dev tensor.Device) error

	// Record runs fn once while recording its operation sequence and
	// returns an executable bound to the buffers fn touched.
	Record(ctx context.Context, dev tensor.Device, fn func(context.Context) error) (Executable, error)
}

// HostBackend is the reference Backend for host execution. "Replay" re-runs
// the recorded closure against the same static buffers: semantics match a
// device graph exactly, minus the dispatch savings. Device backends
// implement Backend over their own capture APIs.
type HostBackend struct{}

func (HostBackend) CaptureSupported(tensor.Device) bool { return true }

func (HostBackend) Synchronize(tensor.Device) error { return nil }

func (HostBackend) Record(ctx context.Context, _ tensor.Device, fn func(context.Context) error) (Executable, error) {
	if err := fn(ctx); err != nil {
		return nil, err
	}
	return &hostExecutable{fn: fn}, nil
}

type hostExecutable struct {
	fn func(context.Context) error
}

func (e *hostExecutable) Replay(ctx context.Context) error { return e.fn(ctx) }

func (e *hostExecutable) Free() {}
