// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package eval

import (
	"nickandperla.net/xpr/internal/expr"
	"nickandperla.net/xpr/internal/ops"
)

// Simplify partially evaluates prog: variables found in bindings become
// literals and operators whose operands are all literals are replaced by
// their result. Lazy bodies are simplified recursively. Assignment, the
// logical and conditional operators, calls and member writes are left alone,
// as is any operation that fails, so the error surfaces at evaluation time.
// The input is never modified.
func Simplify(prog []expr.Instruction, reg *ops.Registry, bindings map[string]expr.Value) []expr.Instruction {
	if reg == nil {
		reg = ops.NewRegistry()
	}
	out := make([]expr.Instruction, 0, len(prog))
	literal := func(back int) (expr.Value, bool) {
		i := len(out) - back
		if i < 0 || out[i].Op != expr.INUMBER {
			return nil, false
		}
		return out[i].Value, true
	}
	replace := func(n int, v expr.Value) {
		out = append(out[:len(out)-n], expr.Literal(v))
	}

	for _, in := range prog {
		switch in.Op {
		case expr.IVAR:
			if v, ok := boundLiteral(in.Name, reg, bindings); ok {
				out = append(out, expr.Literal(v))
				continue
			}
		case expr.IOP1:
			if a, ok := literal(1); ok {
				if fn, known := reg.Unary[in.Name]; known && fn.Pure {
					if v, err := reg.ApplyUnary(in.Name, a); foldable(v, err) {
						replace(1, v)
						continue
					}
				}
			}
		case expr.IOP2:
			if in.Name == "=" || in.Name == "and" || in.Name == "or" {
				break
			}
			b, okb := literal(1)
			a, oka := literal(2)
			if !oka || !okb {
				break
			}
			if in.Name == "[" {
				if key, ok := ops.Key(b); ok && guard(key) != nil {
					break
				}
			}
			if v, err := reg.ApplyBinary(in.Name, a, b); foldable(v, err) {
				replace(2, v)
				continue
			}
		case expr.IMEMBER:
			if a, ok := literal(1); ok && guard(in.Name) == nil {
				if v, err := member(a, in.Name); foldable(v, err) {
					replace(1, expr.Clone(v))
					continue
				}
			}
		case expr.IARRAY:
			elems := make([]expr.Value, in.Count)
			all := in.Count <= len(out)
			for i := 0; all && i < in.Count; i++ {
				v, ok := literal(in.Count - i)
				elems[i], all = v, ok
			}
			if all {
				replace(in.Count, expr.NewArray(elems...))
				continue
			}
		case expr.IEXPR:
			out = append(out, expr.Lazy(Simplify(in.Body, reg, bindings)))
			continue
		}
		out = append(out, expr.CloneProgram([]expr.Instruction{in})...)
	}
	return out
}

func boundLiteral(name string, reg *ops.Registry, bindings map[string]expr.Value) (expr.Value, bool) {
	v, ok := bindings[name]
	if !ok || v == nil || reg.IsFunction(name) || guard(name) != nil {
		return nil, false
	}
	switch v.(type) {
	case *expr.Function, *expr.Future:
		return nil, false
	}
	return expr.Clone(v), true
}

func foldable(v expr.Value, err error) bool {
	if err != nil || v == nil {
		return false
	}
	switch v.(type) {
	case *expr.Function, *expr.Future:
		return false
	}
	return true
}
