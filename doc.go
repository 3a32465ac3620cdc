// Package accelcache implements the inference acceleration resource cache
// for the Orion sensor: a pair of shape-keyed caches that let a GPU-backed
// serving loop avoid repeated allocation and dispatch overhead.
//
// # Philosophy
//
// "Cache the expensive setup, never the semantics."
//
// Orion workers run the same model shapes thousands of times per hour. The
// two costs worth removing are buffer allocation and per-call dispatch; both
// caches here remove exactly those and nothing else. Every cache miss,
// disablement, or capture failure falls through to a correctness-preserving
// uncached path — only true buffer exhaustion surfaces as an error, because
// no safe fallback allocation exists once an explicit cap is hit.
//
// # Components
//
//   - Pool: reusable typed/shaped/device-located buffers, bucketed by
//     (shape, dtype, device) with a hard per-key cap and TTL eviction.
//   - GraphCache: per-shape capture/warmup/replay of a fixed operation
//     sequence bound to static buffers, with FIFO capacity eviction.
//
// The two caches are independent libraries with no knowledge of each other.
// The model wrapper supplies a Forward callable and an accelerator Backend;
// host reference implementations are included.
//
// # Basic Usage
//
// Buffer pool side:
//
//	pool := accelcache.NewPool(accelcache.DefaultPoolConfig(), nil)
//	buf, err := pool.Acquire(accelcache.Shape{1, 3, 64, 64}, accelcache.Float32, accelcache.CPU0)
//	if err != nil {
//	    // ErrPoolExhausted: retry, allocate off-pool, or fail fast
//	}
//	defer pool.Release(buf)
//
// Graph cache side:
//
//	cache := accelcache.NewGraphCache(model, nil, accelcache.DefaultGraphConfig())
//	out, err := cache.Run(ctx, accelcache.Single(frameTensor))
//
// Run warms the input shape up, captures automatically, and replays on every
// subsequent call with that shape.
//
// # Ownership
//
// Pool buffers are exclusively owned by the holder between Acquire and
// Release; contents are whatever was last written (identity reuse, no
// zeroing). A captured graph's static buffers are shared by every caller of
// that shape and are strictly copy-in/copy-out: Run always returns an
// independent clone, never the live static output.
//
// # Scheduling Model
//
// Synchronous, blocking calls only. Neither cache spawns goroutines or
// timers; periodic maintenance belongs to the caller (see Janitor). All pool
// operations are safe for concurrent use; the graph cache serializes
// per-shape replays and runs slow-path forwards unlocked.
//
// # Monitoring
//
// Pool.Stats and GraphCache.Info return non-blocking snapshots. The
// telemetry subpackage samples both onto a fan-out bus and can publish them
// to MQTT alongside the sensor's other health topics.
package accelcache
