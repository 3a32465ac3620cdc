package graph

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-care-sensor/modules/accelcache/internal/tensor"
)

// doubler is a deterministic forward pass: out = 2 * in, same shape.
type doubler struct {
	calls uint64 // atomic
	fail  atomic.Bool
}

func (d *doubler) Forward(ctx context.Context, in Batch) (Batch, error) {
	atomic.AddUint64(&d.calls, 1)
	if d.fail.Load() {
		return nil, fmt.Errorf("inference backend unavailable")
	}

	t := in[InputName]
	out := tensor.New(t.Shape(), t.DType(), t.Device())
	src := t.Float32s()
	dst := out.Float32s()
	for i, v := range src {
		dst[i] = 2 * v
	}
	return Single(out), nil
}

func testCache(runner Forward, warmup, capacity int) *Cache {
	cfg := DefaultConfig()
	cfg.WarmupIterations = warmup
	cfg.MaxCachedGraphs = capacity
	return New(runner, nil, cfg)
}

func input(dims ...int) Batch {
	t := tensor.New(tensor.Shape(dims), tensor.Float32, tensor.CPU0)
	t.Fill(1.0)
	return Single(t)
}

// TestWarmupThreshold verifies a shape is captured on exactly the configured
// call, not before.
func TestWarmupThreshold(t *testing.T) {
	d := &doubler{}
	c := testCache(d, 3, 16)
	in := input(1, 4)
	key := in.ShapeKey()
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		_, err := c.Run(ctx, in)
		require.NoError(t, err)
		assert.False(t, c.HasGraph(key), "call %d is still warmup", i)
	}
	assert.Equal(t, 2, c.Info().WarmupProgress[key])

	_, err := c.Run(ctx, in)
	require.NoError(t, err)
	assert.True(t, c.HasGraph(key), "third call must trigger capture")
	assert.NotContains(t, c.Info().WarmupProgress, key, "captured shape drops its warmup counter")
}

// TestReplayCorrectness verifies replayed outputs match uncached outputs for
// fresh input contents.
func TestReplayCorrectness(t *testing.T) {
	d := &doubler{}
	c := testCache(d, 1, 16)
	ctx := context.Background()

	in := input(2, 2)
	_, err := c.Run(ctx, in) // warmup + capture
	require.NoError(t, err)
	require.True(t, c.HasGraph(in.ShapeKey()))

	// New contents through the replay path. The capturing call already
	// replayed once to serve its own result.
	in[InputName].Fill(3.0)
	out, err := c.Run(ctx, in)
	require.NoError(t, err)

	for _, v := range out[InputName].Float32s() {
		assert.Equal(t, float32(6.0), v)
	}
	assert.Equal(t, uint64(2), c.Info().TotalReplays)
}

// TestReplayOutputIsIndependent verifies the returned batch is a clone:
// mutating it never corrupts the next replay's result.
func TestReplayOutputIsIndependent(t *testing.T) {
	d := &doubler{}
	c := testCache(d, 1, 16)
	ctx := context.Background()

	in := input(4)
	_, err := c.Run(ctx, in)
	require.NoError(t, err)

	first, err := c.Run(ctx, in)
	require.NoError(t, err)
	first[InputName].Fill(-99)

	second, err := c.Run(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, float32(2.0), second[InputName].Float32s()[0],
		"mutating a returned output must not leak into later replays")
}

// TestExplicitCapture verifies Capture outside the auto-capture path.
func TestExplicitCapture(t *testing.T) {
	d := &doubler{}
	c := testCache(d, 3, 16)
	ctx := context.Background()

	in := input(1, 8)
	require.True(t, c.Capture(ctx, in, ""))
	assert.True(t, c.HasGraph(in.ShapeKey()))

	// Capturing an already-captured key is a no-op success.
	require.True(t, c.Capture(ctx, in, ""))
	assert.Equal(t, 1, c.Info().Count)

	// Empty sample cannot be captured.
	assert.False(t, c.Capture(ctx, Batch{}, ""))
}

// TestFIFOEviction verifies at capacity the earliest-captured entry is
// evicted and its shape returns to the warming state.
func TestFIFOEviction(t *testing.T) {
	d := &doubler{}
	c := testCache(d, 1, 2)
	ctx := context.Background()

	a, b, e := input(2), input(4), input(8)

	_, err := c.Run(ctx, a)
	require.NoError(t, err)
	_, err = c.Run(ctx, b)
	require.NoError(t, err)
	require.Equal(t, []string{a.ShapeKey(), b.ShapeKey()}, c.Info().CachedKeys)

	// Third shape evicts the first; the second stays.
	_, err = c.Run(ctx, e)
	require.NoError(t, err)

	assert.False(t, c.HasGraph(a.ShapeKey()), "earliest capture must be evicted")
	assert.True(t, c.HasGraph(b.ShapeKey()))
	assert.True(t, c.HasGraph(e.ShapeKey()))
	assert.Equal(t, 2, c.Info().Count)

	// The evicted shape warms up again from zero and can be re-captured.
	_, err = c.Run(ctx, a)
	require.NoError(t, err)
	assert.True(t, c.HasGraph(a.ShapeKey()), "evicted shape re-captures after fresh warmup")
	assert.False(t, c.HasGraph(b.ShapeKey()), "re-capture evicts the new oldest entry")
}

// TestCaptureFailureFallsBack verifies a failed capture pins the shape to the
// slow path until Clear, and never breaks serving.
func TestCaptureFailureFallsBack(t *testing.T) {
	d := &doubler{}
	c := testCache(d, 1, 16)
	ctx := context.Background()

	in := input(2, 2)
	d.fail.Store(true)

	// Warmup threshold reached, capture fails, the call itself errors only
	// because the runner errors.
	_, err := c.Run(ctx, in)
	require.Error(t, err)
	assert.False(t, c.HasGraph(in.ShapeKey()))
	assert.Equal(t, 1, c.Info().FailedShapes)

	// Runner recovers, but the shape stays on the slow path: no re-capture.
	d.fail.Store(false)
	before := atomic.LoadUint64(&d.calls)
	for i := 0; i < 5; i++ {
		out, err := c.Run(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, float32(2.0), out[InputName].Float32s()[0])
	}
	assert.False(t, c.HasGraph(in.ShapeKey()))
	assert.Equal(t, before+5, atomic.LoadUint64(&d.calls), "slow path runs the model every call")

	// Clear lifts the failure mark; the shape can capture again.
	c.Clear()
	_, err = c.Run(ctx, in)
	require.NoError(t, err)
	assert.True(t, c.HasGraph(in.ShapeKey()))
}

// TestRunOptionsZeroValue verifies the zero options run plain forward passes
// with no capture bookkeeping.
func TestRunOptionsZeroValue(t *testing.T) {
	d := &doubler{}
	c := testCache(d, 1, 16)
	ctx := context.Background()

	in := input(2)
	for i := 0; i < 3; i++ {
		_, err := c.RunWithOptions(ctx, in, RunOptions{})
		require.NoError(t, err)
	}

	info := c.Info()
	assert.Equal(t, 0, info.Count)
	assert.Empty(t, info.WarmupProgress)
}

// TestDisabledCache verifies a disabled cache serves every call uncached.
func TestDisabledCache(t *testing.T) {
	d := &doubler{}
	cfg := DefaultConfig()
	cfg.Enabled = false
	c := New(d, nil, cfg)
	ctx := context.Background()

	in := input(2)
	for i := 0; i < 5; i++ {
		out, err := c.Run(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, float32(2.0), out[InputName].Float32s()[0])
	}

	assert.False(t, c.Enabled())
	assert.Equal(t, 0, c.Info().Count)
	assert.False(t, c.Capture(ctx, in, ""))
}

// TestZeroCapacity verifies a capacity of zero disables capture entirely.
func TestZeroCapacity(t *testing.T) {
	d := &doubler{}
	c := testCache(d, 1, 0)
	ctx := context.Background()

	in := input(2)
	_, err := c.Run(ctx, in)
	require.NoError(t, err)
	assert.False(t, c.Capture(ctx, in, ""))
	assert.Equal(t, 0, c.Info().Count)
}

// TestClear verifies Clear drops graphs, warmup counters, and replay totals.
func TestClear(t *testing.T) {
	d := &doubler{}
	c := testCache(d, 1, 16)
	ctx := context.Background()

	in := input(2)
	_, err := c.Run(ctx, in)
	require.NoError(t, err)
	_, err = c.Run(ctx, in) // one replay
	require.NoError(t, err)
	require.True(t, c.HasGraph(in.ShapeKey()))

	c.Clear()

	info := c.Info()
	assert.Equal(t, 0, info.Count)
	assert.Empty(t, info.CachedKeys)
	assert.Empty(t, info.WarmupProgress)
	assert.Equal(t, uint64(0), info.TotalReplays)
	assert.False(t, c.HasGraph(in.ShapeKey()))
}

// TestBatchShapeKey verifies key derivation: sorted names, no collapsing
// across distinct name/shape combinations.
func TestBatchShapeKey(t *testing.T) {
	a := tensor.New(tensor.Shape{1, 3}, tensor.Float32, tensor.CPU0)
	b := tensor.New(tensor.Shape{4}, tensor.Float32, tensor.CPU0)

	multi := Batch{"image": a, "mask": b}
	assert.Equal(t, "image:1x3|mask:4", multi.ShapeKey())

	swapped := Batch{"image": b, "mask": a}
	assert.NotEqual(t, multi.ShapeKey(), swapped.ShapeKey())

	assert.Equal(t, "input:1x3", Single(a).ShapeKey())
}

// TestConcurrentReplays runs replays for two shapes from many goroutines;
// results must stay correct under contention.
func TestConcurrentReplays(t *testing.T) {
	d := &doubler{}
	c := testCache(d, 1, 16)
	ctx := context.Background()

	small, large := input(2), input(16)
	_, err := c.Run(ctx, small)
	require.NoError(t, err)
	_, err = c.Run(ctx, large)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				in := input(2)
				if w%2 == 0 {
					in = input(16)
				}
				fill := float64(i + 1)
				in[InputName].Fill(fill)

				out, err := c.Run(ctx, in)
				if err != nil {
					t.Errorf("replay failed: %v", err)
					return
				}
				if got := out[InputName].Float32s()[0]; got != float32(2*fill) {
					t.Errorf("replay returned %v for input %v", got, fill)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	// 400 goroutine replays plus one per capturing call.
	assert.Equal(t, uint64(402), c.Info().TotalReplays)
}

// trackedExec is an Executable that holds its Replay open for a while and
// records whether Free arrived during that window.
type trackedExec struct {
	fn      func(context.Context) error
	hold    time.Duration
	entered chan struct{}
	once    sync.Once

	replaying   atomic.Bool
	freed       atomic.Bool
	freedMidRun atomic.Bool
}

func (e *trackedExec) Replay(ctx context.Context) error {
	e.replaying.Store(true)
	defer e.replaying.Store(false)
	e.once.Do(func() { close(e.entered) })
	time.Sleep(e.hold)
	return e.fn(ctx)
}

func (e *trackedExec) Free() {
	if e.replaying.Load() {
		e.freedMidRun.Store(true)
	}
	e.freed.Store(true)
}

// trackedBackend records like the host backend but hands out trackedExecs.
type trackedBackend struct {
	hold time.Duration

	mu    sync.Mutex
	execs []*trackedExec
}

func (b *trackedBackend) CaptureSupported(tensor.Device) bool { return true }

func (b *trackedBackend) Synchronize(tensor.Device) error { return nil }

func (b *trackedBackend) Record(ctx context.Context, _ tensor.Device, fn func(context.Context) error) (Executable, error) {
	if err := fn(ctx); err != nil {
		return nil, err
	}
	e := &trackedExec{fn: fn, hold: b.hold, entered: make(chan struct{})}
	b.mu.Lock()
	b.execs = append(b.execs, e)
	b.mu.Unlock()
	return e, nil
}

// TestEvictionWaitsForInFlightReplay verifies eviction never frees an
// executable whose replay is still running: freeing takes the entry mutex,
// so a capture that evicts at capacity blocks until the replay finishes.
func TestEvictionWaitsForInFlightReplay(t *testing.T) {
	d := &doubler{}
	be := &trackedBackend{hold: 50 * time.Millisecond}
	cfg := DefaultConfig()
	cfg.WarmupIterations = 1
	cfg.MaxCachedGraphs = 1
	c := New(d, be, cfg)
	ctx := context.Background()

	a, b := input(2), input(4)
	require.True(t, c.Capture(ctx, a, ""))
	require.Len(t, be.execs, 1)
	aExec := be.execs[0]

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(ctx, a)
		done <- err
	}()
	<-aExec.entered // shape A's replay is inside the executable

	// Capturing B at capacity 1 must evict A, but only after the replay
	// drains.
	require.True(t, c.Capture(ctx, b, ""))

	require.NoError(t, <-done)
	assert.True(t, aExec.freed.Load(), "evicted executable must be freed")
	assert.False(t, aExec.freedMidRun.Load(), "eviction freed the executable while its replay was in flight")
	assert.False(t, c.HasGraph(a.ShapeKey()))
	assert.True(t, c.HasGraph(b.ShapeKey()))
}

// TestHostBackendReplay verifies the host backend's record/replay contract
// directly: the closure result lands in the same output batch every replay.
func TestHostBackendReplay(t *testing.T) {
	var backend HostBackend
	require.True(t, backend.CaptureSupported(tensor.CPU0))
	require.NoError(t, backend.Synchronize(tensor.CPU0))

	runs := 0
	exec, err := backend.Record(context.Background(), tensor.CPU0, func(ctx context.Context) error {
		runs++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, runs, "recording runs the closure once")

	require.NoError(t, exec.Replay(context.Background()))
	require.NoError(t, exec.Replay(context.Background()))
	assert.Equal(t, 3, runs)

	exec.Free()
}
