// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package eval

import (
	"sync"
	"sync/atomic"
	"time"

	"nickandperla.net/xpr/internal/expr"
)

// AsyncRegistry tracks suspended evaluations so their owner can wait for
// them on shutdown.
type AsyncRegistry struct {
	mu      sync.Mutex
	pending map[int64]*expr.Future
	counter atomic.Int64
	wg      sync.WaitGroup
}

// NewAsyncRegistry creates a new async registry.
func NewAsyncRegistry() *AsyncRegistry {
	return &AsyncRegistry{
		pending: make(map[int64]*expr.Future),
	}
}

// Track registers f until it settles and returns it.
func (r *AsyncRegistry) Track(f *expr.Future) *expr.Future {
	id := r.counter.Add(1)
	r.mu.Lock()
	r.pending[id] = f
	r.mu.Unlock()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		<-f.Done()
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
	}()
	return f
}

// Pending returns the number of unsettled evaluations.
func (r *AsyncRegistry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Total returns how many evaluations have been tracked.
func (r *AsyncRegistry) Total() int64 {
	return r.counter.Load()
}

// Shutdown waits for pending evaluations to settle, giving up after five
// seconds.
func (r *AsyncRegistry) Shutdown() {
	r.ShutdownTimeout(5 * time.Second)
}

// ShutdownTimeout waits up to d for pending evaluations and reports whether
// all of them settled.
func (r *AsyncRegistry) ShutdownTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
