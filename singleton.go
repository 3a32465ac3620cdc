package accelcache

import "sync"

// Process-wide shared pool. Explicit state with a documented init/reset
// lifecycle rather than a hidden static, so tests can isolate themselves.

var (
	defaultMu   sync.Mutex
	defaultPool *Pool
)

// Default returns the process-wide shared pool, lazily constructing it with
// DefaultPoolConfig and host allocation on first use.
//
// Lifecycle:
//  1. Default() — lazy init on first call
//  2. SetDefault(p) — install a custom pool before serving starts
//  3. ResetDefault() — drop the shared instance (test isolation)
func Default() *Pool {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultPool == nil {
		defaultPool = NewPool(DefaultPoolConfig(), nil)
	}
	return defaultPool
}

// SetDefault replaces the process-wide pool. Intended for process startup,
// before the serving loop runs; buffers held from a previous default remain
// valid but can no longer be released into it through Default().
func SetDefault(p *Pool) {
	defaultMu.Lock()
	defaultPool = p
	defaultMu.Unlock()
}

// ResetDefault drops the shared instance. The next Default() call
// constructs a fresh pool. Test helper; not for use mid-serving.
func ResetDefault() {
	defaultMu.Lock()
	defaultPool = nil
	defaultMu.Unlock()
}
