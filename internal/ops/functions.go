// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package ops

import (
	"math"
	"math/rand/v2"
	"strings"

	"nickandperla.net/xpr/internal/errs"
	"nickandperla.net/xpr/internal/expr"
)

func registerFunctions(r *Registry) {
	def := func(name string, n int, pure bool, call func([]expr.Value) (expr.Value, error)) {
		fn := expr.NewFunction(name, n, call)
		fn.Pure = pure
		r.AddFunction(fn)
	}
	def("random", -1, false, random)
	def("fac", 1, true, numbers("fac", 1, func(x []float64) float64 { return Factorial(x[0]) }))
	def("min", -1, true, extremum("min", math.Min, math.Inf(1)))
	def("max", -1, true, extremum("max", math.Max, math.Inf(-1)))
	def("hypot", -1, true, hypot)
	def("pyt", -1, true, hypot)
	def("pow", 2, true, numbers("pow", 2, func(x []float64) float64 { return math.Pow(x[0], x[1]) }))
	def("atan2", 2, true, numbers("atan2", 2, func(x []float64) float64 { return math.Atan2(x[0], x[1]) }))
	def("roundTo", 2, true, numbers("roundTo", 2, roundTo))
	def("map", 2, false, mapFn)
	def("fold", 3, false, fold)
	def("filter", 2, false, filter)
	def("indexOf", 2, true, indexOf)
	def("join", 2, true, join)
	def("if", 3, true, func(args []expr.Value) (expr.Value, error) {
		if err := arity("if", args, 3); err != nil {
			return nil, err
		}
		if expr.Truthy(args[0]) {
			return args[1], nil
		}
		return args[2], nil
	})
	def("sum", 1, true, sum)
	def("keys", 1, true, keys)
	def("values", 1, true, values)
}

func registerConstants(r *Registry) {
	r.Constants["PI"] = expr.Number(math.Pi)
	r.Constants["E"] = expr.Number(math.E)
	r.Constants["true"] = expr.Bool(true)
	r.Constants["false"] = expr.Bool(false)
	r.Constants["null"] = expr.Null{}
	r.Constants["undefined"] = expr.Undefined{}
	r.Constants["Infinity"] = expr.Number(math.Inf(1))
	r.Constants["NaN"] = expr.Number(math.NaN())
}

func arity(name string, args []expr.Value, n int) error {
	if len(args) < n {
		return errs.Evaluation("", "%s expects %d arguments, got %d", name, n, len(args))
	}
	return nil
}

func numbers(name string, n int, fn func([]float64) float64) func([]expr.Value) (expr.Value, error) {
	return func(args []expr.Value) (expr.Value, error) {
		if err := arity(name, args, n); err != nil {
			return nil, err
		}
		xs := make([]float64, n)
		for i := 0; i < n; i++ {
			switch v := args[i].(type) {
			case expr.Undefined:
				return v, nil
			case expr.Number:
				xs[i] = float64(v)
			default:
				return nil, errs.Evaluation("", "%s: argument %d must be a number, got %s", name, i+1, v.Kind())
			}
		}
		return expr.Number(fn(xs)), nil
	}
}

// spread treats a single array argument as the argument list.
func spread(args []expr.Value) []expr.Value {
	if len(args) == 1 {
		if arr, ok := args[0].(*expr.Array); ok {
			return arr.Elems
		}
	}
	return args
}

func floats(name string, args []expr.Value) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		n, ok := a.(expr.Number)
		if !ok {
			return nil, errs.Evaluation("", "%s: argument %d must be a number, got %s", name, i+1, a.Kind())
		}
		out[i] = float64(n)
	}
	return out, nil
}

func random(args []expr.Value) (expr.Value, error) {
	scale := 1.0
	if len(args) > 0 {
		if n, ok := args[0].(expr.Number); ok {
			scale = float64(n)
		}
	}
	return expr.Number(rand.Float64() * scale), nil
}

func extremum(name string, pick func(a, b float64) float64, start float64) func([]expr.Value) (expr.Value, error) {
	return func(args []expr.Value) (expr.Value, error) {
		xs, err := floats(name, spread(args))
		if err != nil {
			return nil, err
		}
		res := start
		for _, x := range xs {
			res = pick(res, x)
		}
		return expr.Number(res), nil
	}
}

func hypot(args []expr.Value) (expr.Value, error) {
	xs, err := floats("hypot", spread(args))
	if err != nil {
		return nil, err
	}
	total := 0.0
	for _, x := range xs {
		if math.IsInf(x, 0) {
			return expr.Number(math.Inf(1)), nil
		}
		total += x * x
	}
	return expr.Number(math.Sqrt(total)), nil
}

func roundTo(x []float64) float64 {
	scale := math.Pow(10, math.Trunc(x[1]))
	return roundHalfUp(x[0]*scale) / scale
}

func callback(name string, v expr.Value) (*expr.Function, error) {
	fn, ok := v.(*expr.Function)
	if !ok {
		return nil, errs.Evaluation("", "%s: first argument must be a function, got %s", name, v.Kind())
	}
	return fn, nil
}

func arrayArg(name string, v expr.Value, pos int) (*expr.Array, error) {
	arr, ok := v.(*expr.Array)
	if !ok {
		return nil, errs.Evaluation("", "%s: argument %d must be an array, got %s", name, pos, v.Kind())
	}
	return arr, nil
}

// iterate runs step for indices start..n-1 in order, handing each result to
// collect. When a step returns a future, the remaining steps run after it
// settles and iterate itself returns a future.
func iterate(start, n int, step func(i int) (expr.Value, error), collect func(i int, v expr.Value) error, done func() (expr.Value, error)) (expr.Value, error) {
	for i := start; i < n; i++ {
		v, err := step(i)
		if err != nil {
			return nil, err
		}
		if fut, ok := v.(*expr.Future); ok {
			return fut.Then(func(rv expr.Value) (expr.Value, error) {
				if err := collect(i, rv); err != nil {
					return nil, err
				}
				return iterate(i+1, n, step, collect, done)
			}), nil
		}
		if err := collect(i, v); err != nil {
			return nil, err
		}
	}
	return done()
}

func mapFn(args []expr.Value) (expr.Value, error) {
	if err := arity("map", args, 2); err != nil {
		return nil, err
	}
	fn, err := callback("map", args[0])
	if err != nil {
		return nil, err
	}
	arr, err := arrayArg("map", args[1], 2)
	if err != nil {
		return nil, err
	}
	items := append([]expr.Value(nil), arr.Elems...)
	out := make([]expr.Value, len(items))
	return iterate(0, len(items),
		func(i int) (expr.Value, error) { return fn.Invoke(items[i], expr.Number(i)) },
		func(i int, v expr.Value) error { out[i] = v; return nil },
		func() (expr.Value, error) { return expr.NewArray(out...), nil })
}

func fold(args []expr.Value) (expr.Value, error) {
	if err := arity("fold", args, 3); err != nil {
		return nil, err
	}
	fn, err := callback("fold", args[0])
	if err != nil {
		return nil, err
	}
	arr, err := arrayArg("fold", args[2], 3)
	if err != nil {
		return nil, err
	}
	items := append([]expr.Value(nil), arr.Elems...)
	acc := args[1]
	return iterate(0, len(items),
		func(i int) (expr.Value, error) { return fn.Invoke(acc, items[i], expr.Number(i)) },
		func(_ int, v expr.Value) error { acc = v; return nil },
		func() (expr.Value, error) { return acc, nil })
}

func filter(args []expr.Value) (expr.Value, error) {
	if err := arity("filter", args, 2); err != nil {
		return nil, err
	}
	fn, err := callback("filter", args[0])
	if err != nil {
		return nil, err
	}
	arr, err := arrayArg("filter", args[1], 2)
	if err != nil {
		return nil, err
	}
	items := append([]expr.Value(nil), arr.Elems...)
	var out []expr.Value
	return iterate(0, len(items),
		func(i int) (expr.Value, error) { return fn.Invoke(items[i], expr.Number(i)) },
		func(i int, v expr.Value) error {
			if expr.Truthy(v) {
				out = append(out, items[i])
			}
			return nil
		},
		func() (expr.Value, error) { return expr.NewArray(out...), nil })
}

func indexOf(args []expr.Value) (expr.Value, error) {
	if err := arity("indexOf", args, 2); err != nil {
		return nil, err
	}
	switch hay := args[1].(type) {
	case *expr.Array:
		for i, e := range hay.Elems {
			if expr.Equal(args[0], e) {
				return expr.Number(i), nil
			}
		}
		return expr.Number(-1), nil
	case expr.String:
		needle, ok := args[0].(expr.String)
		if !ok {
			return nil, errs.Evaluation("", "indexOf: cannot search a string for %s", args[0].Kind())
		}
		i := strings.Index(string(hay), string(needle))
		if i < 0 {
			return expr.Number(-1), nil
		}
		return expr.Number(len([]rune(string(hay)[:i]))), nil
	}
	return nil, errs.Evaluation("", "indexOf: argument 2 must be an array or string, got %s", args[1].Kind())
}

func join(args []expr.Value) (expr.Value, error) {
	if err := arity("join", args, 2); err != nil {
		return nil, err
	}
	arr, err := arrayArg("join", args[1], 2)
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(arr.Elems))
	for i, e := range arr.Elems {
		if !expr.IsNullish(e) {
			parts[i] = e.String()
		}
	}
	return expr.String(strings.Join(parts, args[0].String())), nil
}

func sum(args []expr.Value) (expr.Value, error) {
	if err := arity("sum", args, 1); err != nil {
		return nil, err
	}
	arr, err := arrayArg("sum", args[0], 1)
	if err != nil {
		return nil, err
	}
	xs, err := floats("sum", arr.Elems)
	if err != nil {
		return nil, err
	}
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return expr.Number(total), nil
}

func objectArg(name string, args []expr.Value) (*expr.Object, error) {
	if err := arity(name, args, 1); err != nil {
		return nil, err
	}
	o, ok := args[0].(*expr.Object)
	if !ok {
		return nil, errs.Evaluation("", "%s: argument must be an object, got %s", name, args[0].Kind())
	}
	return o, nil
}

func keys(args []expr.Value) (expr.Value, error) {
	o, err := objectArg("keys", args)
	if err != nil {
		return nil, err
	}
	ks := o.Keys()
	out := make([]expr.Value, len(ks))
	for i, k := range ks {
		out[i] = expr.String(k)
	}
	return expr.NewArray(out...), nil
}

func values(args []expr.Value) (expr.Value, error) {
	o, err := objectArg("values", args)
	if err != nil {
		return nil, err
	}
	ks := o.Keys()
	out := make([]expr.Value, len(ks))
	for i, k := range ks {
		out[i], _ = o.Get(k)
	}
	return expr.NewArray(out...), nil
}
