// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package xpr

import (
	"context"
	"time"

	"nickandperla.net/xpr/internal/eval"
	"nickandperla.net/xpr/internal/expr"
)

// Expression is a compiled program. It is immutable and may be evaluated
// concurrently with distinct scopes.
type Expression struct {
	source string
	prog   []expr.Instruction
	p      *Parser
}

// Evaluate runs the expression against scope. A nil scope is a fresh child
// of the Parser's prelude scope. The result is a *Future when a called
// function returned one; use Resolve to wait for it.
func (x *Expression) Evaluate(scope *Scope) (Value, error) {
	if scope == nil {
		scope = x.p.globals.Child()
	}
	start := time.Now()
	v, err := x.p.eval.Evaluate(x.prog, scope)
	_, async := v.(*expr.Future)
	x.p.metrics.ObserveEvaluation(start, async, err)
	if err != nil {
		x.p.log.Debug().Err(err).Str("expression", x.source).Msg("evaluation failed")
	}
	return v, err
}

// Resolve evaluates the expression and waits for an asynchronous result or
// for ctx to end.
func (x *Expression) Resolve(ctx context.Context, scope *Scope) (Value, error) {
	v, err := x.Evaluate(scope)
	if err != nil {
		return nil, err
	}
	return expr.Await(ctx, v)
}

// Simplify returns the expression with the given bindings folded in and
// every operation on known values precomputed.
func (x *Expression) Simplify(bindings map[string]Value) *Expression {
	return x.derive(eval.Simplify(x.prog, x.p.reg, bindings))
}

// Substitute returns the expression with every reference to the variable
// name replaced by with.
func (x *Expression) Substitute(name string, with *Expression) *Expression {
	return x.derive(eval.Substitute(x.prog, name, with.prog))
}

func (x *Expression) derive(prog []expr.Instruction) *Expression {
	return &Expression{source: expr.Format(prog), prog: prog, p: x.p}
}

// Variables lists the variables the expression refers to, excluding
// registered functions and operators. With withMembers set, member chains
// are reported as dotted paths.
func (x *Expression) Variables(withMembers bool) []string {
	return eval.Variables(x.prog, x.p.reg, withMembers)
}

// Symbols lists every name the expression refers to, including functions.
func (x *Expression) Symbols(withMembers bool) []string {
	return eval.Symbols(x.prog, withMembers)
}

// String regenerates source text from the compiled program.
func (x *Expression) String() string {
	return expr.Format(x.prog)
}

// Source returns the text the expression was compiled from. For derived
// expressions it is the regenerated text.
func (x *Expression) Source() string {
	return x.source
}

// Program returns a copy of the compiled instructions.
func (x *Expression) Program() []expr.Instruction {
	return expr.CloneProgram(x.prog)
}
