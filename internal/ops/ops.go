// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package ops holds the operator, function and constant tables an xpr
// parser and evaluator share.
package ops

import (
	"maps"

	"nickandperla.net/xpr/internal/errs"
	"nickandperla.net/xpr/internal/expr"
	"nickandperla.net/xpr/internal/token"
)

// BinaryFunc implements a binary operator on forced operands.
type BinaryFunc func(a, b expr.Value) (expr.Value, error)

// Options controls which language features are available.
type Options struct {
	// Operators enables or disables operators by option name (see
	// token.OptionName). Missing entries are enabled.
	Operators map[string]bool
	// MemberAccess enables the `.name` syntax.
	MemberAccess bool
}

// DefaultOptions enables every operator and member access.
func DefaultOptions() Options {
	return Options{Operators: map[string]bool{}, MemberAccess: true}
}

// Registry holds the operator tables. A registry must not be modified once
// expressions compiled against it are being evaluated.
type Registry struct {
	Unary     map[string]*expr.Function
	Binary    map[string]BinaryFunc
	Functions map[string]*expr.Function
	Constants map[string]expr.Value
	Options   Options

	owned map[*expr.Function]struct{}
}

// NewRegistry returns a registry populated with the built-in operators,
// functions and constants.
func NewRegistry() *Registry {
	r := &Registry{
		Unary:     make(map[string]*expr.Function),
		Binary:    make(map[string]BinaryFunc),
		Functions: make(map[string]*expr.Function),
		Constants: make(map[string]expr.Value),
		Options:   DefaultOptions(),
		owned:     make(map[*expr.Function]struct{}),
	}
	registerBinary(r)
	registerUnary(r)
	registerFunctions(r)
	registerConstants(r)
	return r
}

// Clone returns a copy whose tables can be modified independently.
func (r *Registry) Clone() *Registry {
	c := &Registry{
		Unary:     maps.Clone(r.Unary),
		Binary:    maps.Clone(r.Binary),
		Functions: maps.Clone(r.Functions),
		Constants: maps.Clone(r.Constants),
		Options: Options{
			Operators:    maps.Clone(r.Options.Operators),
			MemberAccess: r.Options.MemberAccess,
		},
		owned: maps.Clone(r.owned),
	}
	if c.Options.Operators == nil {
		c.Options.Operators = map[string]bool{}
	}
	return c
}

// AddFunction registers fn under its name in the function table.
func (r *Registry) AddFunction(fn *expr.Function) {
	r.Functions[fn.Name] = fn
	r.owned[fn] = struct{}{}
}

// AddUnary registers fn as a prefix operator named name.
func (r *Registry) AddUnary(name string, fn *expr.Function) {
	if fn.Name == "" {
		fn.Name = name
	}
	r.Unary[name] = fn
	r.owned[fn] = struct{}{}
}

// Owns reports whether fn was registered as a function or unary operator.
func (r *Registry) Owns(fn *expr.Function) bool {
	_, ok := r.owned[fn]
	return ok
}

// Enabled reports whether the operator symbol op may be used.
func (r *Registry) Enabled(op string) bool {
	on, ok := r.Options.Operators[token.OptionName(op)]
	return !ok || on
}

// SetOperator enables or disables an operator by option name.
func (r *Registry) SetOperator(option string, on bool) {
	if r.Options.Operators == nil {
		r.Options.Operators = map[string]bool{}
	}
	r.Options.Operators[option] = on
}

// IsUnary reports whether name is a registered unary operator.
func (r *Registry) IsUnary(name string) bool {
	_, ok := r.Unary[name]
	return ok
}

// IsPrefix reports whether op can start a prefix operator application.
func (r *Registry) IsPrefix(op string) bool {
	return op != "!" && r.IsUnary(op) && r.Enabled(op)
}

// IsConstant reports whether name is a declared constant.
func (r *Registry) IsConstant(name string) bool {
	_, ok := r.Constants[name]
	return ok
}

// IsFunction reports whether name is in the function table.
func (r *Registry) IsFunction(name string) bool {
	_, ok := r.Functions[name]
	return ok
}

// ApplyBinary looks up and applies a binary operator.
func (r *Registry) ApplyBinary(op string, a, b expr.Value) (expr.Value, error) {
	fn, ok := r.Binary[op]
	if !ok {
		return nil, errs.Evaluation("", "unknown binary operator %s", op)
	}
	return fn(a, b)
}

// ApplyUnary looks up and applies a unary operator.
func (r *Registry) ApplyUnary(op string, a expr.Value) (expr.Value, error) {
	fn, ok := r.Unary[op]
	if !ok {
		return nil, errs.Evaluation("", "unknown unary operator %s", op)
	}
	return fn.Call([]expr.Value{a})
}
