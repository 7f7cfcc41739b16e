// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package expr

import (
	"context"
	"sync"
)

// Future is a value that becomes available later. Functions registered with
// an evaluator return a Future to make evaluation asynchronous.
type Future struct {
	done chan struct{}
	once sync.Once
	val  Value
	err  error
}

// NewFuture creates an unresolved future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future already completed with v.
func Resolved(v Value) *Future {
	f := NewFuture()
	f.Resolve(v)
	return f
}

// Rejected returns a future already completed with err.
func Rejected(err error) *Future {
	f := NewFuture()
	f.Reject(err)
	return f
}

// Go runs fn in a new goroutine and returns a future for its result.
func Go(fn func() (Value, error)) *Future {
	f := NewFuture()
	go func() {
		v, err := fn()
		f.settle(v, err)
	}()
	return f
}

func (*Future) Kind() Kind     { return KindFuture }
func (*Future) String() string { return "[future]" }
func (*Future) value()         {}

// Resolve completes the future with v. A future passed as v is followed
// until it settles. Only the first completion counts.
func (f *Future) Resolve(v Value) {
	f.settle(v, nil)
}

// Reject completes the future with err.
func (f *Future) Reject(err error) {
	f.complete(nil, err)
}

func (f *Future) settle(v Value, err error) {
	if err != nil {
		f.complete(nil, err)
		return
	}
	if inner, ok := v.(*Future); ok {
		if inner == f {
			return
		}
		go func() {
			<-inner.done
			f.complete(inner.val, inner.err)
		}()
		return
	}
	if v == nil {
		v = Undefined{}
	}
	f.complete(v, nil)
}

func (f *Future) complete(v Value, err error) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
	})
}

// Done is closed once the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result returns the outcome without blocking. ok is false while pending.
func (f *Future) Result() (v Value, err error, ok bool) {
	select {
	case <-f.done:
		return f.val, f.err, true
	default:
		return nil, nil, false
	}
}

// Await blocks until the future settles or ctx ends.
func (f *Future) Await(ctx context.Context) (Value, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Then returns a future completed with fn applied to f's value. Rejections
// skip fn and propagate. fn may itself return a future.
func (f *Future) Then(fn func(Value) (Value, error)) *Future {
	next := NewFuture()
	go func() {
		<-f.done
		if f.err != nil {
			next.complete(nil, f.err)
			return
		}
		v, err := fn(f.val)
		next.settle(v, err)
	}()
	return next
}

// All waits for every future among vals and completes with the fully
// resolved slice. Non-future entries are passed through.
func All(vals []Value) *Future {
	out := make([]Value, len(vals))
	copy(out, vals)
	return Go(func() (Value, error) {
		for i, v := range out {
			fut, ok := v.(*Future)
			if !ok {
				continue
			}
			<-fut.done
			if fut.err != nil {
				return nil, fut.err
			}
			out[i] = fut.val
		}
		return NewArray(out...), nil
	})
}

// Await resolves v if it is a future and returns it unchanged otherwise.
func Await(ctx context.Context, v Value) (Value, error) {
	if fut, ok := v.(*Future); ok {
		return fut.Await(ctx)
	}
	return v, nil
}
