// Package probe executes checks against their targets. It owns the
// self-growing client pool probes rent clients from and the kind-dispatch
// table that turns a scheduled job into a ProbeResult.
package probe

import "sync"

// DefaultCapacity is the pool's starting size when NewPoolWithCapacity isn't used.
const DefaultCapacity = 1000

// DefaultGrowFactor is how many entries a pool grows by when exhausted.
const DefaultGrowFactor = 20

// Pool is a fixed-capacity-until-exhausted set of reusable values of type T
// (typically an *http.Client). Checkout never blocks and never fails: once
// every entry is rented, the pool grows by growFactor in place rather than
// waiting for a return. The pool never shrinks.
type Pool[T any] struct {
	mu         sync.Mutex
	new        func() T
	entries    []T
	free       []int // indices into entries currently available
	growFactor int
}

// NewPool builds a pool with the default capacity and grow factor.
func NewPool[T any](newFn func() T) *Pool[T] {
	return NewPoolWithCapacity(newFn, DefaultCapacity, DefaultGrowFactor)
}

// NewPoolWithCapacity builds a pool pre-populated with initialCapacity
// entries, growing by growFactor whenever checkout finds nothing free.
func NewPoolWithCapacity[T any](newFn func() T, initialCapacity, growFactor int) *Pool[T] {
	p := &Pool[T]{
		new:        newFn,
		growFactor: growFactor,
	}
	p.growLocked(initialCapacity)
	return p
}

// growLocked appends n freshly constructed entries and marks them free.
// Caller must hold p.mu.
func (p *Pool[T]) growLocked(n int) {
	start := len(p.entries)
	for i := 0; i < n; i++ {
		p.entries = append(p.entries, p.new())
		p.free = append(p.free, start+i)
	}
}

// Checkout rents one entry from the pool. If none are free, the pool grows
// by growFactor first — checkout always succeeds and never blocks.
func (p *Pool[T]) Checkout() Handle[T] {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		p.growLocked(p.growFactor)
	}

	n := len(p.free)
	idx := p.free[n-1]
	p.free = p.free[:n-1]

	return Handle[T]{pool: p, index: idx}
}

// Size reports the current total number of entries the pool has grown to,
// for metrics (sentinel_client_pool_size).
func (p *Pool[T]) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// returnEntry marks index free again. Called by Handle.Release.
func (p *Pool[T]) returnEntry(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, index)
}

// Handle is a rental: the caller owns entries[index] exclusively until
// Release is called. Callers must not retain the value after releasing.
type Handle[T any] struct {
	pool  *Pool[T]
	index int
}

// Value returns the rented entry.
func (h Handle[T]) Value() T {
	h.pool.mu.Lock()
	defer h.pool.mu.Unlock()
	return h.pool.entries[h.index]
}

// Release returns the entry to the pool for reuse.
func (h Handle[T]) Release() {
	h.pool.returnEntry(h.index)
}
