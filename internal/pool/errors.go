package pool

import "errors"

// ErrPoolExhausted is returned by Acquire when a bucket's per-key cap is
// reached and every buffer is held. The pool never blocks or waits; callers
// retry, allocate off-pool, or fail fast.
var ErrPoolExhausted = errors.New("buffer pool exhausted")
