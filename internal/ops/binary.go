// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package ops

import (
	"math"
	"strings"

	"nickandperla.net/xpr/internal/errs"
	"nickandperla.net/xpr/internal/expr"
)

func registerBinary(r *Registry) {
	r.Binary["+"] = add
	r.Binary["-"] = arithmetic("-", func(a, b float64) float64 { return a - b })
	r.Binary["*"] = arithmetic("*", func(a, b float64) float64 { return a * b })
	r.Binary["/"] = arithmetic("/", func(a, b float64) float64 { return a / b })
	r.Binary["%"] = arithmetic("%", math.Mod)
	r.Binary["^"] = arithmetic("^", math.Pow)
	r.Binary["||"] = concat
	r.Binary["=="] = func(a, b expr.Value) (expr.Value, error) { return expr.Bool(expr.Equal(a, b)), nil }
	r.Binary["!="] = func(a, b expr.Value) (expr.Value, error) { return expr.Bool(!expr.Equal(a, b)), nil }
	r.Binary["<"] = comparison("<", func(c int) bool { return c < 0 })
	r.Binary["<="] = comparison("<=", func(c int) bool { return c <= 0 })
	r.Binary[">"] = comparison(">", func(c int) bool { return c > 0 })
	r.Binary[">="] = comparison(">=", func(c int) bool { return c >= 0 })
	r.Binary["in"] = contains
	r.Binary["not in"] = func(a, b expr.Value) (expr.Value, error) {
		v, err := contains(a, b)
		if err != nil {
			return nil, err
		}
		if b, ok := v.(expr.Bool); ok {
			return !b, nil
		}
		return v, nil
	}
	r.Binary["??"] = func(a, b expr.Value) (expr.Value, error) {
		if expr.IsNullish(a) {
			return b, nil
		}
		return a, nil
	}
	r.Binary["as"] = convert
	r.Binary["["] = Index
	r.Binary["and"] = func(a, b expr.Value) (expr.Value, error) {
		return expr.Bool(expr.Truthy(a) && expr.Truthy(b)), nil
	}
	r.Binary["or"] = func(a, b expr.Value) (expr.Value, error) {
		return expr.Bool(expr.Truthy(a) || expr.Truthy(b)), nil
	}
}

func operandError(op string, a, b expr.Value) error {
	return errs.Evaluation("", "cannot apply %s to %s and %s", op, a.Kind(), b.Kind())
}

func isUndefined(v expr.Value) bool {
	return v.Kind() == expr.KindUndefined
}

func arithmetic(op string, fn func(a, b float64) float64) BinaryFunc {
	return func(a, b expr.Value) (expr.Value, error) {
		if isUndefined(a) || isUndefined(b) {
			return expr.Undefined{}, nil
		}
		x, ok1 := a.(expr.Number)
		y, ok2 := b.(expr.Number)
		if !ok1 || !ok2 {
			return nil, operandError(op, a, b)
		}
		return expr.Number(fn(float64(x), float64(y))), nil
	}
}

func add(a, b expr.Value) (expr.Value, error) {
	if isUndefined(a) || isUndefined(b) {
		return expr.Undefined{}, nil
	}
	switch x := a.(type) {
	case expr.Number:
		switch y := b.(type) {
		case expr.Number:
			return x + y, nil
		case expr.String:
			return expr.String(x.String()) + y, nil
		}
	case expr.String:
		switch b.(type) {
		case expr.String, expr.Number, expr.Bool:
			return x + expr.String(b.String()), nil
		}
	case expr.Bool:
		if y, ok := b.(expr.String); ok {
			return expr.String(x.String()) + y, nil
		}
	case *expr.Array:
		if y, ok := b.(*expr.Array); ok {
			return joinArrays(x, y), nil
		}
	case *expr.Object:
		if y, ok := b.(*expr.Object); ok {
			out := expr.NewObject()
			for _, k := range x.Keys() {
				v, _ := x.Get(k)
				out.Set(k, v)
			}
			for _, k := range y.Keys() {
				v, _ := y.Get(k)
				out.Set(k, v)
			}
			return out, nil
		}
	}
	return nil, operandError("+", a, b)
}

func joinArrays(x, y *expr.Array) *expr.Array {
	elems := make([]expr.Value, 0, len(x.Elems)+len(y.Elems))
	elems = append(elems, x.Elems...)
	elems = append(elems, y.Elems...)
	return expr.NewArray(elems...)
}

func concat(a, b expr.Value) (expr.Value, error) {
	if isUndefined(a) || isUndefined(b) {
		return expr.Undefined{}, nil
	}
	if x, ok := a.(*expr.Array); ok {
		if y, ok := b.(*expr.Array); ok {
			return joinArrays(x, y), nil
		}
		return nil, operandError("||", a, b)
	}
	if isScalar(a) && isScalar(b) {
		return expr.String(a.String() + b.String()), nil
	}
	return nil, operandError("||", a, b)
}

func isScalar(v expr.Value) bool {
	switch v.(type) {
	case expr.String, expr.Number, expr.Bool, expr.Null:
		return true
	}
	return false
}

func comparison(op string, ok func(c int) bool) BinaryFunc {
	return func(a, b expr.Value) (expr.Value, error) {
		if isUndefined(a) || isUndefined(b) {
			return expr.Undefined{}, nil
		}
		switch x := a.(type) {
		case expr.Number:
			if y, isNum := b.(expr.Number); isNum {
				if math.IsNaN(float64(x)) || math.IsNaN(float64(y)) {
					return expr.Bool(false), nil
				}
				return expr.Bool(ok(compareFloat(float64(x), float64(y)))), nil
			}
		case expr.String:
			if y, isStr := b.(expr.String); isStr {
				return expr.Bool(ok(strings.Compare(string(x), string(y)))), nil
			}
		}
		return nil, operandError(op, a, b)
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func contains(a, b expr.Value) (expr.Value, error) {
	switch y := b.(type) {
	case expr.Undefined:
		return expr.Undefined{}, nil
	case *expr.Array:
		for _, e := range y.Elems {
			if expr.Equal(a, e) {
				return expr.Bool(true), nil
			}
		}
		return expr.Bool(false), nil
	case expr.String:
		if x, ok := a.(expr.String); ok {
			return expr.Bool(strings.Contains(string(y), string(x))), nil
		}
	case *expr.Object:
		if x, ok := a.(expr.String); ok {
			return expr.Bool(y.Has(string(x))), nil
		}
	}
	return nil, operandError("in", a, b)
}

func convert(a, b expr.Value) (expr.Value, error) {
	target, ok := b.(expr.String)
	if !ok {
		return nil, errs.Evaluation("", "conversion target must be a string, got %s", b.Kind())
	}
	switch strings.ToLower(string(target)) {
	case "number":
		return expr.Number(ToNumber(a)), nil
	case "int", "integer":
		return expr.Number(math.Round(ToNumber(a))), nil
	case "boolean":
		return expr.Bool(expr.Truthy(a)), nil
	case "string":
		if isUndefined(a) {
			return expr.String("undefined"), nil
		}
		return expr.String(a.String()), nil
	}
	return nil, errs.Evaluation("", "unknown conversion type %q", string(target))
}

// Index implements a[b] for arrays, strings and objects. Missing entries
// yield undefined.
func Index(a, b expr.Value) (expr.Value, error) {
	if isUndefined(a) || isUndefined(b) {
		return expr.Undefined{}, nil
	}
	switch x := a.(type) {
	case *expr.Array:
		i, ok := intIndex(b)
		if !ok {
			return nil, errs.Evaluation("", "array index must be a number, got %s", b.Kind())
		}
		if i < 0 || i >= len(x.Elems) {
			return expr.Undefined{}, nil
		}
		return x.Elems[i], nil
	case expr.String:
		i, ok := intIndex(b)
		if !ok {
			return nil, errs.Evaluation("", "string index must be a number, got %s", b.Kind())
		}
		runes := []rune(string(x))
		if i < 0 || i >= len(runes) {
			return expr.Undefined{}, nil
		}
		return expr.String(runes[i]), nil
	case *expr.Object:
		key, ok := Key(b)
		if !ok {
			return nil, errs.Evaluation("", "object key must be a string or number, got %s", b.Kind())
		}
		if v, found := x.Get(key); found {
			return v, nil
		}
		return expr.Undefined{}, nil
	}
	return nil, operandError("[", a, b)
}

// Key converts an index value to an object key.
func Key(v expr.Value) (string, bool) {
	switch x := v.(type) {
	case expr.String:
		return string(x), true
	case expr.Number:
		return x.String(), true
	}
	return "", false
}

func intIndex(v expr.Value) (int, bool) {
	n, ok := v.(expr.Number)
	if !ok {
		return 0, false
	}
	f := float64(n)
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return -1, true
	}
	return int(f), true
}
