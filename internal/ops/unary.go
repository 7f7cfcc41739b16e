// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package ops

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"nickandperla.net/xpr/internal/errs"
	"nickandperla.net/xpr/internal/expr"
)

var mathUnary = map[string]func(float64) float64{
	"abs":   math.Abs,
	"acos":  math.Acos,
	"acosh": math.Acosh,
	"asin":  math.Asin,
	"asinh": math.Asinh,
	"atan":  math.Atan,
	"atanh": math.Atanh,
	"cbrt":  math.Cbrt,
	"ceil":  math.Ceil,
	"cos":   math.Cos,
	"cosh":  math.Cosh,
	"exp":   math.Exp,
	"expm1": math.Expm1,
	"floor": math.Floor,
	"ln":    math.Log,
	"log":   math.Log,
	"log1p": math.Log1p,
	"log2":  math.Log2,
	"log10": math.Log10,
	"lg":    math.Log10,
	"round": roundHalfUp,
	"sign":  sign,
	"sin":   math.Sin,
	"sinh":  math.Sinh,
	"sqrt":  math.Sqrt,
	"tan":   math.Tan,
	"tanh":  math.Tanh,
	"trunc": math.Trunc,
	"-":     func(x float64) float64 { return -x },
	"!":     Factorial,
}

func registerUnary(r *Registry) {
	for name, fn := range mathUnary {
		r.AddUnary(name, pureUnary(name, numericUnary(name, fn)))
	}
	r.AddUnary("+", pureUnary("+", func(v expr.Value) (expr.Value, error) {
		if isUndefined(v) {
			return v, nil
		}
		return expr.Number(ToNumber(v)), nil
	}))
	r.AddUnary("not", pureUnary("not", func(v expr.Value) (expr.Value, error) {
		return expr.Bool(!expr.Truthy(v)), nil
	}))
	r.AddUnary("length", pureUnary("length", length))
}

func pureUnary(name string, fn func(expr.Value) (expr.Value, error)) *expr.Function {
	f := expr.NewFunction(name, 1, func(args []expr.Value) (expr.Value, error) {
		if len(args) == 0 {
			return fn(expr.Undefined{})
		}
		return fn(args[0])
	})
	f.Pure = true
	return f
}

func numericUnary(name string, fn func(float64) float64) func(expr.Value) (expr.Value, error) {
	return func(v expr.Value) (expr.Value, error) {
		switch x := v.(type) {
		case expr.Undefined:
			return v, nil
		case expr.Number:
			return expr.Number(fn(float64(x))), nil
		}
		return nil, errs.Evaluation("", "cannot apply %s to %s", name, v.Kind())
	}
}

func length(v expr.Value) (expr.Value, error) {
	switch x := v.(type) {
	case expr.Undefined:
		return v, nil
	case expr.String:
		return expr.Number(utf8.RuneCountInString(string(x))), nil
	case *expr.Array:
		return expr.Number(x.Len()), nil
	case *expr.Object:
		return expr.Number(x.Len()), nil
	}
	return nil, errs.Evaluation("", "cannot take length of %s", v.Kind())
}

func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return x
}

// Factorial returns n! for non-negative integers and Gamma(n+1) otherwise.
func Factorial(n float64) float64 {
	if n != math.Trunc(n) || n < 0 || n > 170 {
		return math.Gamma(n + 1)
	}
	res := 1.0
	for i := 2.0; i <= n; i++ {
		res *= i
	}
	return res
}

// ToNumber converts v to a number: booleans become 0 or 1, null becomes 0,
// strings are parsed (empty is 0, malformed is NaN).
func ToNumber(v expr.Value) float64 {
	switch x := v.(type) {
	case expr.Number:
		return float64(x)
	case expr.Bool:
		if x {
			return 1
		}
		return 0
	case expr.Null:
		return 0
	case expr.String:
		s := strings.TrimSpace(string(x))
		if s == "" {
			return 0
		}
		switch s {
		case "Infinity", "+Infinity":
			return math.Inf(1)
		case "-Infinity":
			return math.Inf(-1)
		}
		if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
			if n, err := strconv.ParseUint(s[2:], 16, 64); err == nil {
				return float64(n)
			}
			return math.NaN()
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return math.NaN()
}
