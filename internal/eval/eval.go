// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package eval implements the xpr stack machine and the program rewriting
// passes built on it.
package eval

import (
	"math"

	"github.com/rs/zerolog"

	"nickandperla.net/xpr/internal/expr"
	"nickandperla.net/xpr/internal/ops"
)

// Resolution is a resolver's answer for an unknown name: either another name
// to look up in the scope, or a value to use directly.
type Resolution struct {
	Alias string
	Value expr.Value
}

// Resolver is consulted for names that are neither functions, enabled unary
// operators nor scope variables.
type Resolver func(name string) (Resolution, bool)

// Evaluator executes compiled programs against a scope.
type Evaluator struct {
	reg       *ops.Registry
	resolver  Resolver
	log       zerolog.Logger
	async     *AsyncRegistry
	onSuspend func()
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithRegistry sets the operator tables.
func WithRegistry(r *ops.Registry) Option {
	return func(e *Evaluator) { e.reg = r }
}

// WithResolver sets the fallback resolver for unknown names.
func WithResolver(r Resolver) Option {
	return func(e *Evaluator) { e.resolver = r }
}

// WithLogger sets the logger used for suspension tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Evaluator) { e.log = l }
}

// WithAsyncRegistry sets the registry suspended evaluations are tracked in.
func WithAsyncRegistry(r *AsyncRegistry) Option {
	return func(e *Evaluator) { e.async = r }
}

// WithSuspendHook sets a callback run each time an evaluation suspends.
func WithSuspendHook(fn func()) Option {
	return func(e *Evaluator) { e.onSuspend = fn }
}

// New creates a new Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.reg == nil {
		e.reg = ops.NewRegistry()
	}
	if e.async == nil {
		e.async = NewAsyncRegistry()
	}
	return e
}

// Registry returns the operator tables.
func (e *Evaluator) Registry() *ops.Registry {
	return e.reg
}

// Async returns the registry of suspended evaluations.
func (e *Evaluator) Async() *AsyncRegistry {
	return e.async
}

// Evaluate runs prog against scope. When a function called during
// evaluation returns a pending *expr.Future, the result is a future that
// completes once the rest of the program has run. The scope may be written
// by assignments and function definitions; a nil scope is replaced by an
// empty one.
func (e *Evaluator) Evaluate(prog []expr.Instruction, scope *Scope) (expr.Value, error) {
	if scope == nil {
		scope = NewScope()
	}
	st := &state{root: prog}
	m := newMachine(e, st, prog, scope)
	m.top = true
	v, err := m.run()
	if err != nil {
		return nil, err
	}
	if fut, ok := v.(*expr.Future); ok {
		if rv, rerr, done := fut.Result(); done {
			if rerr != nil {
				return nil, st.annotate(rerr)
			}
			return normalize(rv), nil
		}
		return e.async.Track(fut.Then(func(rv expr.Value) (expr.Value, error) {
			return normalize(rv), nil
		})), nil
	}
	return normalize(v), nil
}

// normalize turns the -0 left by negation into 0.
func normalize(v expr.Value) expr.Value {
	if n, ok := v.(expr.Number); ok && n == 0 && math.Signbit(float64(n)) {
		return expr.Number(0)
	}
	return v
}
