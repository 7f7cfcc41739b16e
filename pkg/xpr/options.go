// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package xpr

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"nickandperla.net/xpr/internal/expr"
	"nickandperla.net/xpr/internal/store"
	"nickandperla.net/xpr/internal/telemetry"
)

// Option configures a Parser.
type Option func(*Parser)

// WithConfig applies a file configuration. Options given after it override
// its settings.
func WithConfig(cfg Config) Option {
	return func(p *Parser) {
		if cfg.MemberAccess != nil {
			p.reg.Options.MemberAccess = *cfg.MemberAccess
		}
		for name, on := range cfg.Operators {
			p.reg.SetOperator(name, on)
		}
		if cfg.CacheSize != 0 {
			p.cacheSize = cfg.CacheSize
		}
		if cfg.Prelude != nil {
			p.prelude = *cfg.Prelude
			p.noPrelude = *cfg.Prelude == ""
		}
		if cfg.Log.Level != "" || cfg.Log.Format != "" {
			level, err := telemetry.ParseLevel(cfg.Log.Level)
			if err != nil {
				p.fail(err)
			} else {
				p.log = telemetry.NewLogger(os.Stderr, level, cfg.Log.Format == "console")
			}
		}
		switch cfg.Store.Driver {
		case "memory":
			WithMemoryStore()(p)
		case "sqlite":
			WithSQLiteStore(cfg.Store.Path)(p)
		}
	}
}

// WithOperators enables or disables operators by option name, such as
// "comparison", "logical", "in" or "fndef".
func WithOperators(ops map[string]bool) Option {
	return func(p *Parser) {
		for name, on := range ops {
			p.reg.SetOperator(name, on)
		}
	}
}

// WithMemberAccess enables or disables the `.name` syntax.
func WithMemberAccess(on bool) Option {
	return func(p *Parser) {
		p.reg.Options.MemberAccess = on
	}
}

// WithFunction registers a callable function.
func WithFunction(name string, arity int, fn func(args []Value) (Value, error)) Option {
	return func(p *Parser) {
		p.reg.AddFunction(expr.NewFunction(name, arity, fn))
	}
}

// WithAsyncFunction registers a function that runs on its own goroutine.
// Expressions calling it evaluate to a *Future. The context passed to fn is
// canceled when the Parser is closed.
func WithAsyncFunction(name string, arity int, fn func(ctx context.Context, args []Value) (Value, error)) Option {
	return func(p *Parser) {
		p.reg.AddFunction(expr.NewFunction(name, arity, func(args []Value) (Value, error) {
			ctx := p.ctx
			return expr.Go(func() (Value, error) { return fn(ctx, args) }), nil
		}))
	}
}

// WithConstant declares a named constant usable in expressions.
func WithConstant(name string, v Value) Option {
	return func(p *Parser) {
		p.reg.Constants[name] = v
	}
}

// WithResolver sets the resolver consulted for names that are neither
// functions nor scope variables. It is asked before the expression library.
func WithResolver(r Resolver) Option {
	return func(p *Parser) {
		p.resolver = r
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Parser) {
		p.log = l
	}
}

// WithMetrics registers Prometheus collectors for parsing and evaluation on
// reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(p *Parser) {
		p.metrics = telemetry.NewMetrics(reg)
	}
}

// WithStore configures the named-expression library.
func WithStore(s Store) Option {
	return func(p *Parser) {
		p.store = s
	}
}

// WithMemoryStore configures an in-memory expression library.
func WithMemoryStore() Option {
	return func(p *Parser) {
		p.store = store.NewMemory()
	}
}

// WithSQLiteStore configures SQLite persistence at the given path. An error
// opening the database is reported by Parser.Err.
func WithSQLiteStore(path string) Option {
	return func(p *Parser) {
		s, err := store.NewSQLite(path)
		if err != nil {
			p.fail(err)
			return
		}
		p.store = s
	}
}

// WithCacheSize bounds the number of compiled expressions kept. Zero or less
// disables the cache.
func WithCacheSize(n int) Option {
	return func(p *Parser) {
		p.cacheSize = n
	}
}

// WithPrelude sets the source evaluated into every Parser scope. If not set,
// DefaultPrelude is used.
func WithPrelude(source string) Option {
	return func(p *Parser) {
		p.prelude = source
	}
}

// WithNoPrelude disables the prelude.
func WithNoPrelude() Option {
	return func(p *Parser) {
		p.noPrelude = true
	}
}
