// Package graph implements the replayable-program side of the inference
// acceleration cache: a shape-keyed capture/warmup/replay state machine with
// capacity-bounded FIFO eviction.
//
// Per-key lifecycle: UNCAPTURED (warming up) → CAPTURED → (eviction) →
// UNCAPTURED. Capture failure is never fatal; the shape falls back to the
// uncached slow path until Clear.
//
// Eviction is FIFO on capture order, not LRU on replay recency. For serving
// traffic the shape set is near-static, so the simpler policy wins; a
// workload that cycles through more shapes than MaxCachedGraphs will thrash
// regardless of policy.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/accelcache/internal/tensor"
)

// Config contains configuration for the graph replay cache.
type Config struct {
	// Enabled turns capture and replay on. When false every Run is a direct
	// forward pass.
	Enabled bool
	// WarmupIterations is how many auto-capture calls a shape must see
	// before a capture attempt, and how many warmup passes a capture records
	// having run.
	WarmupIterations int
	// MaxCachedGraphs caps the number of captured entries. At capacity the
	// earliest-captured entry is evicted.
	MaxCachedGraphs int
	// Device is the device this cache serves; capture support is queried
	// against it.
	Device tensor.Device
}

// DefaultConfig returns the production defaults used by the serving loop.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		WarmupIterations: 3,
		MaxCachedGraphs:  16,
		Device:           tensor.CPU0,
	}
}

// Info is a snapshot of cache state.
type Info struct {
	// Enabled reports whether capture/replay is active.
	Enabled bool `json:"enabled"`
	// Count is the number of captured entries.
	Count int `json:"count"`
	// Capacity echoes MaxCachedGraphs.
	Capacity int `json:"capacity"`
	// CachedKeys lists captured shape keys in capture order (oldest first).
	CachedKeys []string `json:"cached_keys"`
	// WarmupProgress maps uncaptured shape keys to calls seen so far.
	WarmupProgress map[string]int `json:"warmup_progress"`
	// FailedShapes is the number of shapes pinned to the slow path by a
	// failed capture.
	FailedShapes int `json:"failed_shapes"`
	// TotalReplays counts replays across all captured entries, including
	// entries already evicted since the last Clear.
	TotalReplays uint64 `json:"total_replays"`
}

// RunOptions controls one Run invocation. The zero value disables both
// caching and auto-capture (a plain forward pass).
type RunOptions struct {
	// UseCache replays a captured graph when one exists for the input shape.
	UseCache bool
	// AutoCapture counts warmup calls per shape and captures once the
	// threshold is reached.
	AutoCapture bool
}

// captured owns one replayable program and its static buffers. The static
// buffers are shared by every caller using this shape and are strictly
// copy-in/copy-out: the entry mutex serializes the copy/replay/clone
// critical section so replays for one shape never race.
type captured struct {
	mu    sync.Mutex
	freed bool // guarded by mu

	id          string
	key         string
	exec        Executable
	staticIn    Batch
	staticOut   Batch
	warmupIters int
	capturedAt  time.Time
	replays     uint64 // atomic
}

// errEvicted marks a replay that lost the race against eviction: the caller
// fetched the entry, eviction freed it first. Handled as a plain cache miss.
var errEvicted = errors.New("graph: entry evicted")

// free releases the entry's executable under the entry mutex, so an in-flight
// replay always finishes before its program is torn down. Lock order is
// cache then entry; replay never takes the cache mutex while holding the
// entry mutex, so callers may hold the cache mutex here.
func (g *captured) free() {
	g.mu.Lock()
	g.exec.Free()
	g.freed = true
	g.mu.Unlock()
}

// Cache is the shape-keyed graph replay cache.
//
// Thread-safety: the cache mutex guards bookkeeping (entries map, capture
// order, warmup counters); each entry carries its own mutex for the replay
// critical section. Distinct shapes replay concurrently; forward passes on
// the slow path run with no lock held.
type Cache struct {
	mu      sync.Mutex
	runner  Forward
	backend Backend
	cfg     Config

	graphs  map[string]*captured
	order   []string // capture order, oldest first
	warmups map[string]int
	failed  map[string]bool

	totalReplays uint64 // atomic
}

// New creates a cache around the given forward-pass runner. A nil backend
// defaults to host execution. The runner must not be nil.
func New(runner Forward, backend Backend, cfg Config) *Cache {
	if runner == nil {
		panic("graph: nil forward runner")
	}
	if backend == nil {
		backend = HostBackend{}
	}
	return &Cache{
		runner:  runner,
		backend: backend,
		cfg:     cfg,
		graphs:  make(map[string]*captured),
		order:   make([]string, 0),
		warmups: make(map[string]int),
		failed:  make(map[string]bool),
	}
}

// Enabled reports whether capture/replay is active: configuration AND
// backend capability on the configured device.
func (c *Cache) Enabled() bool {
	return c.cfg.Enabled && c.backend.CaptureSupported(c.cfg.Device)
}

// HasGraph reports whether a captured graph exists for the key.
func (c *Cache) HasGraph(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.graphs[key]
	return ok
}

// Capture records a replayable graph for the sample input's shape. An empty
// key is derived from the sample. Returns false when disabled or when
// warmup/recording fails for any reason; failure is logged, never fatal.
// Capturing a key that already has a graph is a no-op returning true.
func (c *Cache) Capture(ctx context.Context, sample Batch, key string) (ok bool) {
	if !c.Enabled() || len(sample) == 0 || c.cfg.MaxCachedGraphs <= 0 {
		return false
	}
	if key == "" {
		key = sample.ShapeKey()
	}

	c.mu.Lock()
	if _, exists := c.graphs[key]; exists {
		c.mu.Unlock()
		return true
	}
	c.mu.Unlock()

	// Warmup and recording run arbitrary model code; a panic there must
	// degrade to the slow path, not kill the serving loop.
	defer func() {
		if r := recover(); r != nil {
			slog.Error("graph: capture panicked",
				"key", key,
				"panic", fmt.Sprint(r),
			)
			c.markFailed(key)
			ok = false
		}
	}()

	entry, err := c.record(ctx, sample, key)
	if err != nil {
		slog.Warn("graph: capture failed, shape stays on slow path",
			"key", key,
			"error", err,
		)
		c.markFailed(key)
		return false
	}

	c.mu.Lock()
	if _, exists := c.graphs[key]; exists {
		// Raced with another capture of the same key; keep the winner.
		c.mu.Unlock()
		entry.exec.Free()
		return true
	}
	for len(c.order) >= c.cfg.MaxCachedGraphs && len(c.order) > 0 {
		c.evictOldestLocked()
	}
	c.graphs[key] = entry
	c.order = append(c.order, key)
	delete(c.warmups, key)
	c.mu.Unlock()

	slog.Info("graph: captured",
		"key", key,
		"graph_id", entry.id,
		"warmup_iterations", entry.warmupIters,
	)
	return true
}

// record performs the capture protocol: static input allocation, one warmup
// pass, device synchronize, then one recorded pass whose output becomes the
// static output.
func (c *Cache) record(ctx context.Context, sample Batch, key string) (*captured, error) {
	dev := sample.Device()

	// Static input: device-resident copy of the sample, reused for the life
	// of the entry.
	staticIn := sample.Clone()

	// Warmup stabilizes addresses and lazy initialization before recording.
	if _, err := c.runner.Forward(ctx, staticIn); err != nil {
		return nil, fmt.Errorf("warmup: %w", err)
	}
	if err := c.backend.Synchronize(dev); err != nil {
		return nil, fmt.Errorf("synchronize: %w", err)
	}

	// Record one pass. The first run's output buffers become the static
	// output; replays write into them.
	var staticOut Batch
	exec, err := c.backend.Record(ctx, dev, func(ctx context.Context) error {
		out, err := c.runner.Forward(ctx, staticIn)
		if err != nil {
			return err
		}
		if staticOut == nil {
			staticOut = out
			return nil
		}
		return out.CopyInto(staticOut)
	})
	if err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}
	if staticOut == nil {
		return nil, fmt.Errorf("record: forward produced no output")
	}

	return &captured{
		id:          uuid.New().String(),
		key:         key,
		exec:        exec,
		staticIn:    staticIn,
		staticOut:   staticOut,
		warmupIters: c.cfg.WarmupIterations,
		capturedAt:  time.Now(),
	}, nil
}

// Run executes a forward pass with caching and auto-capture enabled.
func (c *Cache) Run(ctx context.Context, in Batch) (Batch, error) {
	return c.RunWithOptions(ctx, in, RunOptions{UseCache: true, AutoCapture: true})
}

// RunWithOptions executes a forward pass under explicit options.
//
// Replay path: the input is copied element-wise into the entry's static
// input, the program replays, and an independent clone of the static output
// is returned — never the live buffer, whose contents the next replay will
// overwrite.
func (c *Cache) RunWithOptions(ctx context.Context, in Batch, opts RunOptions) (Batch, error) {
	key := in.ShapeKey()
	enabled := c.Enabled()

	if opts.UseCache && enabled {
		c.mu.Lock()
		g := c.graphs[key]
		c.mu.Unlock()

		if g != nil {
			out, err := c.replay(ctx, g, in)
			if err == nil {
				return out, nil
			}
			// Replay failure degrades to the uncached path; correctness
			// over speed. Losing the race against eviction is an ordinary
			// miss, not worth a warning.
			if !errors.Is(err, errEvicted) {
				slog.Warn("graph: replay failed, running uncached",
					"key", key,
					"graph_id", g.id,
					"error", err,
				)
			}
		}
	}

	if opts.AutoCapture && enabled {
		c.mu.Lock()
		_, has := c.graphs[key]
		failed := c.failed[key]
		ready := false
		if !has && !failed {
			c.warmups[key]++
			ready = c.warmups[key] >= c.cfg.WarmupIterations
		}
		c.mu.Unlock()

		if ready && c.Capture(ctx, in, key) {
			// Benefit this very call from the fresh capture.
			return c.RunWithOptions(ctx, in, RunOptions{UseCache: true})
		}
	}

	return c.runner.Forward(ctx, in)
}

func (c *Cache) replay(ctx context.Context, g *captured, in Batch) (Batch, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.freed {
		return nil, errEvicted
	}
	if err := in.CopyInto(g.staticIn); err != nil {
		return nil, err
	}
	if err := g.exec.Replay(ctx); err != nil {
		return nil, err
	}
	n := atomic.AddUint64(&g.replays, 1)
	atomic.AddUint64(&c.totalReplays, 1)

	slog.Debug("graph: replayed",
		"key", g.key,
		"graph_id", g.id,
		"replays", n,
	)
	return g.staticOut.Clone(), nil
}

// Clear drops all captured graphs, warmup counters, and failure marks.
func (c *Cache) Clear() {
	c.mu.Lock()
	for _, g := range c.graphs {
		g.free()
	}
	n := len(c.graphs)
	c.graphs = make(map[string]*captured)
	c.order = c.order[:0]
	c.warmups = make(map[string]int)
	c.failed = make(map[string]bool)
	atomic.StoreUint64(&c.totalReplays, 0)
	c.mu.Unlock()

	slog.Info("graph: cache cleared", "dropped", n)
}

// Info returns a snapshot of cache state.
func (c *Cache) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, len(c.order))
	copy(keys, c.order)
	warmups := make(map[string]int, len(c.warmups))
	for k, v := range c.warmups {
		warmups[k] = v
	}

	return Info{
		Enabled:        c.Enabled(),
		Count:          len(c.graphs),
		Capacity:       c.cfg.MaxCachedGraphs,
		CachedKeys:     keys,
		WarmupProgress: warmups,
		FailedShapes:   len(c.failed),
		TotalReplays:   atomic.LoadUint64(&c.totalReplays),
	}
}

// evictOldestLocked removes the earliest-captured entry. The evicted shape
// returns to the warming state: its counter restarts from zero.
func (c *Cache) evictOldestLocked() {
	key := c.order[0]
	c.order = c.order[1:]
	if g, ok := c.graphs[key]; ok {
		g.free()
		delete(c.graphs, key)
		slog.Info("graph: evicted earliest-captured entry",
			"key", key,
			"graph_id", g.id,
			"replays", atomic.LoadUint64(&g.replays),
		)
	}
	delete(c.warmups, key)
}

func (c *Cache) markFailed(key string) {
	c.mu.Lock()
	c.failed[key] = true
	delete(c.warmups, key)
	c.mu.Unlock()
}
