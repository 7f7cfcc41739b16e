// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package xpr provides the public API for compiling and evaluating xpr
// expressions.
package xpr

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"nickandperla.net/xpr/internal/errs"
	"nickandperla.net/xpr/internal/eval"
	"nickandperla.net/xpr/internal/expr"
	"nickandperla.net/xpr/internal/ops"
	"nickandperla.net/xpr/internal/parser"
	"nickandperla.net/xpr/internal/store"
	"nickandperla.net/xpr/internal/telemetry"
)

// Values and evaluation types.
type (
	Value      = expr.Value
	Number     = expr.Number
	String     = expr.String
	Bool       = expr.Bool
	Null       = expr.Null
	Undefined  = expr.Undefined
	Array      = expr.Array
	Object     = expr.Object
	Function   = expr.Function
	Future     = expr.Future
	Scope      = eval.Scope
	Resolution = eval.Resolution
	Resolver   = eval.Resolver
)

// Error types.
type (
	SyntaxError     = errs.SyntaxError
	VariableError   = errs.VariableError
	AccessError     = errs.AccessError
	FunctionError   = errs.FunctionError
	EvaluationError = errs.EvaluationError
)

// Library storage types.
type (
	Store        = store.Store
	HistoryStore = store.HistoryStore
	VersionEntry = store.VersionEntry
)

// ErrNoStore is returned by the library methods of a Parser without a store.
var ErrNoStore = errors.New("xpr: no expression store configured")

// ErrNoHistory is returned by History when the store keeps no versions.
var ErrNoHistory = errors.New("xpr: store does not keep history")

const defaultCacheSize = 512

// Parser is a configured xpr language: its operators, functions, resolver,
// prelude and expression library. A Parser is safe for concurrent use once
// built.
type Parser struct {
	reg       *ops.Registry
	resolver  Resolver
	log       zerolog.Logger
	metrics   *telemetry.Metrics
	store     Store
	prelude   string
	noPrelude bool
	cacheSize int

	ctx    context.Context
	cancel context.CancelFunc

	eval    *eval.Evaluator
	globals *Scope
	group   singleflight.Group

	mu    sync.Mutex
	cache map[string]*Expression
	order []string

	errs []error
}

// New creates a Parser with the given options.
func New(opts ...Option) *Parser {
	p := &Parser{
		reg:       ops.NewRegistry(),
		log:       zerolog.Nop(),
		cacheSize: defaultCacheSize,
		cache:     make(map[string]*Expression),
		globals:   eval.NewScope(),
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())

	for _, opt := range opts {
		opt(p)
	}

	p.eval = p.evaluator(nil, eval.NewAsyncRegistry())

	for _, err := range p.errs {
		p.log.Error().Err(err).Msg("configuration failed")
	}
	if !p.noPrelude {
		p.loadPrelude()
	}
	return p
}

func (p *Parser) fail(err error) {
	p.errs = append(p.errs, err)
}

// Err reports the errors met while applying options and loading the
// prelude.
func (p *Parser) Err() error {
	return errors.Join(p.errs...)
}

// evaluator builds an evaluator whose library lookups skip the names in
// visited.
func (p *Parser) evaluator(visited map[string]bool, async *eval.AsyncRegistry) *eval.Evaluator {
	return eval.New(
		eval.WithRegistry(p.reg),
		eval.WithResolver(p.resolve(visited, async)),
		eval.WithLogger(p.log),
		eval.WithAsyncRegistry(async),
		eval.WithSuspendHook(p.metrics.Suspended),
	)
}

// resolve consults the caller's resolver and then the expression library.
// A library entry resolves to the value of its expression.
func (p *Parser) resolve(visited map[string]bool, async *eval.AsyncRegistry) Resolver {
	return func(name string) (Resolution, bool) {
		if p.resolver != nil {
			if r, ok := p.resolver(name); ok {
				return r, true
			}
		}
		if p.store == nil || visited[name] || name == PreludeName {
			return Resolution{}, false
		}
		src, ok, err := p.store.Get(name)
		if err != nil {
			p.log.Warn().Err(err).Str("name", name).Msg("library lookup failed")
			return Resolution{}, false
		}
		if !ok {
			return Resolution{}, false
		}
		x, err := p.Parse(src)
		if err != nil {
			p.log.Warn().Err(err).Str("name", name).Msg("library expression does not compile")
			return Resolution{}, false
		}
		next := maps.Clone(visited)
		if next == nil {
			next = make(map[string]bool)
		}
		next[name] = true
		v, err := p.evaluator(next, async).Evaluate(x.prog, p.globals.Child())
		if err != nil {
			p.log.Warn().Err(err).Str("name", name).Msg("library expression failed")
			return Resolution{}, false
		}
		return Resolution{Value: v}, true
	}
}

func (p *Parser) loadPrelude() {
	src := p.prelude
	if src == "" {
		src = DefaultPrelude
	}
	if p.store != nil {
		if override, ok, err := p.store.Get(PreludeName); err == nil && ok {
			src = override
		}
	}
	x, err := p.Parse(src)
	if err != nil {
		p.fail(err)
		p.log.Error().Err(err).Msg("prelude does not compile")
		return
	}
	v, err := p.eval.Evaluate(x.prog, p.globals)
	if err == nil {
		_, err = expr.Await(p.ctx, v)
	}
	if err != nil {
		p.fail(err)
		p.log.Error().Err(err).Msg("prelude failed")
	}
}

// Parse compiles src. Compiled expressions are cached by source, and
// concurrent compiles of the same source share one parse.
func (p *Parser) Parse(src string) (*Expression, error) {
	if x, ok := p.cached(src); ok {
		p.metrics.CacheHit()
		return x, nil
	}
	v, err, _ := p.group.Do(src, func() (any, error) {
		if x, ok := p.cached(src); ok {
			return x, nil
		}
		prog, err := parser.Parse(src, parser.Config{Registry: p.reg})
		p.metrics.ObserveParse(err)
		if err != nil {
			p.log.Debug().Err(err).Str("expression", src).Msg("parse failed")
			return nil, err
		}
		x := &Expression{source: src, prog: prog, p: p}
		p.remember(src, x)
		return x, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Expression), nil
}

func (p *Parser) cached(src string) (*Expression, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	x, ok := p.cache[src]
	return x, ok
}

func (p *Parser) remember(src string, x *Expression) {
	if p.cacheSize <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.cache[src]; ok {
		return
	}
	for len(p.order) >= p.cacheSize {
		delete(p.cache, p.order[0])
		p.order = p.order[1:]
	}
	p.cache[src] = x
	p.order = append(p.order, src)
}

// NewScope creates a scope that sees the prelude and holds vars converted
// with FromGo.
func (p *Parser) NewScope(vars map[string]any) (*Scope, error) {
	s := p.globals.Child()
	for name, v := range vars {
		val, err := expr.FromGo(v)
		if err != nil {
			return nil, err
		}
		s.Set(name, val)
	}
	return s, nil
}

// Evaluate compiles and evaluates src against scope.
func (p *Parser) Evaluate(src string, scope *Scope) (Value, error) {
	x, err := p.Parse(src)
	if err != nil {
		return nil, err
	}
	return x.Evaluate(scope)
}

// Define validates src and stores it in the library under name. Library
// entries resolve like variables in later evaluations.
func (p *Parser) Define(name, src string) error {
	if p.store == nil {
		return ErrNoStore
	}
	if _, err := p.Parse(src); err != nil {
		return err
	}
	if err := p.store.Put(name, src); err != nil {
		return err
	}
	p.log.Debug().Str("name", name).Msg("expression defined")
	return nil
}

// Lookup returns the library source stored under name.
func (p *Parser) Lookup(name string) (string, bool, error) {
	if p.store == nil {
		return "", false, ErrNoStore
	}
	return p.store.Get(name)
}

// Forget removes a library entry and its history.
func (p *Parser) Forget(name string) error {
	if p.store == nil {
		return ErrNoStore
	}
	return p.store.Delete(name)
}

// Names lists the library entries.
func (p *Parser) Names() ([]string, error) {
	if p.store == nil {
		return nil, ErrNoStore
	}
	return p.store.List()
}

// History returns up to limit versions of a library entry, newest first.
func (p *Parser) History(name string, limit int) ([]VersionEntry, error) {
	if p.store == nil {
		return nil, ErrNoStore
	}
	hs, ok := p.store.(HistoryStore)
	if !ok {
		return nil, ErrNoHistory
	}
	return hs.GetHistory(name, limit)
}

// Close waits for pending asynchronous evaluations and releases the store.
func (p *Parser) Close() error {
	p.eval.Async().Shutdown()
	p.cancel()
	if p.store != nil {
		return p.store.Close()
	}
	return nil
}

// Parse compiles src with a default Parser.
func Parse(src string) (*Expression, error) {
	return New(WithNoPrelude()).Parse(src)
}

// Evaluate compiles and evaluates src with a default Parser, waiting for
// asynchronous results.
func Evaluate(src string, vars map[string]any) (Value, error) {
	p := New()
	defer p.Close()
	scope, err := p.NewScope(vars)
	if err != nil {
		return nil, err
	}
	x, err := p.Parse(src)
	if err != nil {
		return nil, err
	}
	return x.Resolve(context.Background(), scope)
}

// NewFunction creates a function value for use in scopes or resolvers.
// Functions placed in a scope are data: expressions cannot call them.
func NewFunction(name string, arity int, fn func(args []Value) (Value, error)) *Function {
	return expr.NewFunction(name, arity, fn)
}

// FromGo converts a Go value into a Value.
func FromGo(v any) (Value, error) {
	return expr.FromGo(v)
}

// ToGo converts a Value into plain Go data.
func ToGo(v Value) any {
	return expr.ToGo(v)
}

// Snippet renders the source line of a positioned error with a caret under
// the offending column.
func Snippet(err error, src string) string {
	return errs.Snippet(err, src)
}

// ErrorKind names the xpr error type of err, or "" for other errors.
func ErrorKind(err error) string {
	return errs.Kind(err)
}

// UnmarshalJSON decodes JSON into a Value, keeping object key order.
func UnmarshalJSON(data []byte) (Value, error) {
	return expr.UnmarshalJSON(data)
}

// MarshalJSON encodes v as JSON. Non-finite numbers and undefined encode
// as null.
func MarshalJSON(v Value) ([]byte, error) {
	return expr.MarshalJSON(v)
}
