// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package eval

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"nickandperla.net/xpr/internal/errs"
	"nickandperla.net/xpr/internal/expr"
	"nickandperla.net/xpr/internal/parser"
)

func compile(t *testing.T, e *Evaluator, src string) []expr.Instruction {
	t.Helper()
	prog, err := parser.Parse(src, parser.Config{Registry: e.Registry()})
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return prog
}

// run evaluates src and waits for asynchronous results.
func run(t *testing.T, e *Evaluator, src string, scope *Scope) (expr.Value, error) {
	t.Helper()
	v, err := e.Evaluate(compile(t, e, src), scope)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return expr.Await(ctx, v)
}

func mustRun(t *testing.T, e *Evaluator, src string, scope *Scope) expr.Value {
	t.Helper()
	v, err := run(t, e, src, scope)
	if err != nil {
		t.Fatalf("%q: unexpected error: %v", src, err)
	}
	return v
}

func TestEvaluate(t *testing.T) {
	e := New()
	cases := map[string]string{
		"1 + 2 * 3":                       "7",
		"(1 + 2) * 3":                     "9",
		"2^3^2":                           "512",
		"-2^2":                            "-4",
		"10 % 4":                          "2",
		"3!":                              "6",
		"'a' + 1":                         "a1",
		"[1, 2] || [3]":                   "1,2,3",
		"'ab' || 'cd'":                    "abcd",
		"sqrt 16 + 1":                     "5",
		"max(1, 5, 3)":                    "5",
		"[1, 2, 3][1]":                    "2",
		"'hello'.length":                  "5",
		"{a: 1 + 1}.a":                    "2",
		"2 in [1, 2]":                     "true",
		"null ?? 'x'":                     "x",
		"'3.7' as 'int'":                  "4",
		"1 < 2 and 3 > 2":                 "true",
		"0 or ''":                         "false",
		"1 == 1 ? 'yes' : 'no'":           "yes",
		"x = 4; y = x * 2; x + y":         "12",
		"f(a, b) = a - b; f(5, 2)":        "3",
		"map(sin, [0])":                   "0",
		"fold(max, 0, [4, 9, 2])":         "9",
		"filter(g(x) = x > 1, [1, 2, 3])": "2,3",
		"undefined + 1":                   "undefined",
		"case when false then 1 end":      "undefined",
	}
	for src, want := range cases {
		v, err := run(t, e, src, nil)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", src, err)
			continue
		}
		if v.String() != want {
			t.Errorf("%q = %s, want %s", src, v, want)
		}
	}
}

func TestShortCircuit(t *testing.T) {
	e := New()
	calls := 0
	e.Registry().AddFunction(expr.NewFunction("fail", 0, func([]expr.Value) (expr.Value, error) {
		calls++
		return nil, errors.New("fail called")
	}))

	v := mustRun(t, e, "a and fail()", ScopeFrom(map[string]expr.Value{"a": expr.Bool(false)}))
	if v != expr.Bool(false) {
		t.Errorf("expected false, got %v", v)
	}
	v = mustRun(t, e, "a or fail()", ScopeFrom(map[string]expr.Value{"a": expr.Bool(true)}))
	if v != expr.Bool(true) {
		t.Errorf("expected true, got %v", v)
	}
	v = mustRun(t, e, "a ? 1 : fail()", ScopeFrom(map[string]expr.Value{"a": expr.Bool(true)}))
	if v != expr.Number(1) {
		t.Errorf("expected 1, got %v", v)
	}
	if calls != 0 {
		t.Errorf("fail was called %d times", calls)
	}

	// The untaken branch may reference names that do not exist.
	if v := mustRun(t, e, "true ? 1 : missing", nil); v != expr.Number(1) {
		t.Errorf("expected 1, got %v", v)
	}
}

func TestPrototypeGuard(t *testing.T) {
	e := New()
	scope := func() *Scope {
		return ScopeFrom(map[string]expr.Value{"x": expr.NewObject()})
	}
	for _, src := range []string{
		"x.__proto__",
		`x["constructor"]`,
		"x.prototype = 1",
		"constructor = 1",
		"{__proto__: 1}",
		"prototype",
		"f(constructor) = 1",
	} {
		_, err := run(t, e, src, scope())
		var ae *errs.AccessError
		if !errors.As(err, &ae) {
			t.Errorf("%q: expected AccessError, got %v", src, err)
		}
	}
}

func TestScopeFunctionsAreNotCallable(t *testing.T) {
	e := New()
	exec := expr.NewFunction("exec", 0, func([]expr.Value) (expr.Value, error) {
		t.Error("exec must not run")
		return expr.String("x"), nil
	})
	scope := ScopeFrom(map[string]expr.Value{"exec": exec})

	_, err := run(t, e, "exec()", scope)
	var fe *errs.FunctionError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FunctionError, got %v", err)
	}
	if !strings.Contains(fe.Error(), "exec") {
		t.Errorf("error should name the callee: %v", fe)
	}
	if fe.Expression != "exec()" {
		t.Errorf("expected expression text, got %q", fe.Expression)
	}

	if _, err := run(t, e, "map(exec, [1])", scope); !errors.As(err, &fe) {
		t.Errorf("passing a scope function to map: expected FunctionError, got %v", err)
	}
	if _, err := run(t, e, "5()", nil); !errors.As(err, &fe) {
		t.Errorf("calling a number: expected FunctionError, got %v", err)
	}
}

func TestResolver(t *testing.T) {
	greet := expr.NewFunction("greet", 1, func(args []expr.Value) (expr.Value, error) {
		return expr.String("hi " + args[0].String()), nil
	})
	e := New(WithResolver(func(name string) (Resolution, bool) {
		switch name {
		case "$name":
			return Resolution{Alias: "name"}, true
		case "greet":
			return Resolution{Value: greet}, true
		case "answer":
			return Resolution{Value: expr.Number(42)}, true
		}
		return Resolution{}, false
	}))
	scope := ScopeFrom(map[string]expr.Value{"name": expr.String("ada")})
	if v := mustRun(t, e, "greet($name)", scope); v != expr.String("hi ada") {
		t.Errorf("expected hi ada, got %v", v)
	}
	if v := mustRun(t, e, "answer + 1", nil); v != expr.Number(43) {
		t.Errorf("expected 43, got %v", v)
	}
	_, err := run(t, e, "nobody", nil)
	var ve *errs.VariableError
	if !errors.As(err, &ve) || ve.VariableName != "nobody" {
		t.Errorf("expected VariableError for nobody, got %v", err)
	}
}

func TestCase(t *testing.T) {
	e := New()
	src := `case x when 1 then "one" when 2 then "two" else "many" end`
	for x, want := range map[float64]expr.Value{2: expr.String("two"), 9: expr.String("many")} {
		scope := ScopeFrom(map[string]expr.Value{"x": expr.Number(x)})
		if v := mustRun(t, e, src, scope); v != want {
			t.Errorf("x=%v: got %v, want %v", x, v, want)
		}
	}
	noElse := `case x when 1 then "one" when 2 then "two" end`
	v := mustRun(t, e, noElse, ScopeFrom(map[string]expr.Value{"x": expr.Number(9)}))
	if v.Kind() != expr.KindUndefined {
		t.Errorf("expected undefined, got %v", v)
	}

	calls := 0
	e.Registry().AddFunction(expr.NewFunction("probe", 0, func([]expr.Value) (expr.Value, error) {
		calls++
		return expr.Bool(true), nil
	}))
	v = mustRun(t, e, "case when 1 > 0 then 'a' when probe() then 'b' end", nil)
	if v != expr.String("a") || calls != 0 {
		t.Errorf("got %v with %d probe calls", v, calls)
	}
}

func TestRecursiveInlineFunction(t *testing.T) {
	e := New()
	if v := mustRun(t, e, "(f(x) = x > 1 ? x*f(x-1) : 1)(5)", nil); v != expr.Number(120) {
		t.Errorf("expected 120, got %v", v)
	}
}

func TestClosureSeesDefiningScope(t *testing.T) {
	e := New()
	scope := NewScope()
	v := mustRun(t, e, "f(x) = x + y; y = 10; f(1)", scope)
	if v != expr.Number(11) {
		t.Errorf("expected 11, got %v", v)
	}
	fn, ok := scope.Get("f")
	if !ok || fn.Kind() != expr.KindFunction {
		t.Fatalf("expected f in scope, got %v", fn)
	}
	if _, ok := scope.Get("x"); ok {
		t.Error("parameter leaked into the defining scope")
	}
	// A closure stored in the scope stays callable in later evaluations.
	if v := mustRun(t, e, "f(2)", scope); v != expr.Number(12) {
		t.Errorf("expected 12, got %v", v)
	}
	// Missing arguments are undefined.
	if v := mustRun(t, e, "g(a, b) = b; g(1)", nil); v.Kind() != expr.KindUndefined {
		t.Errorf("expected undefined, got %v", v)
	}
}

func TestFunctionTableWinsOverScope(t *testing.T) {
	e := New()
	scope := ScopeFrom(map[string]expr.Value{
		"min": expr.Number(5),
		"sin": expr.Number(7),
		"x":   expr.Number(2),
	})
	if v := mustRun(t, e, "min(1, 2)", scope); v != expr.Number(1) {
		t.Errorf("expected function table min, got %v", v)
	}
	if v := mustRun(t, e, "x", scope); v != expr.Number(2) {
		t.Errorf("expected 2, got %v", v)
	}

	// A disabled unary operator falls through to the scope.
	e.Registry().SetOperator("sin", false)
	if v, err := run(t, e, "sin + 1", scope); err != nil || v != expr.Number(8) {
		t.Errorf("expected 8, got %v, %v", v, err)
	}
}

func TestAssignment(t *testing.T) {
	e := New()
	scope := ScopeFrom(map[string]expr.Value{
		"o": expr.NewObject(),
		"a": expr.NewArray(expr.Number(1), expr.Number(2)),
	})
	if v := mustRun(t, e, "o.k = 5; o.k", scope); v != expr.Number(5) {
		t.Errorf("expected 5, got %v", v)
	}
	if v := mustRun(t, e, "a[2] = 3; a", scope); v.String() != "1,2,3" {
		t.Errorf("expected 1,2,3, got %v", v)
	}
	if _, err := run(t, e, "a[7] = 1", scope); errs.Kind(err) != "EvaluationError" {
		t.Errorf("expected EvaluationError for out of range index, got %v", err)
	}
	mustRun(t, e, "z = 1 + 1", scope)
	if v, _ := scope.Get("z"); v != expr.Number(2) {
		t.Errorf("expected z = 2, got %v", v)
	}
}

func TestLiteralsAreFreshPerEvaluation(t *testing.T) {
	e := New()
	prog := compile(t, e, "xs = [1]; xs[1] = 2; xs")
	for i := 0; i < 2; i++ {
		v, err := e.Evaluate(prog, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v.String() != "1,2" {
			t.Errorf("run %d: expected 1,2, got %v", i, v)
		}
	}
}

func TestMemberOfNullish(t *testing.T) {
	e := New()
	_, err := run(t, e, "n.a", ScopeFrom(map[string]expr.Value{"n": expr.Null{}}))
	var ee *errs.EvaluationError
	if !errors.As(err, &ee) || ee.PropertyName != "a" {
		t.Errorf("expected EvaluationError for property a, got %v", err)
	}
	if v := mustRun(t, e, "(5).a", nil); v.Kind() != expr.KindUndefined {
		t.Errorf("expected undefined, got %v", v)
	}
}

func TestClosureErrorNamesCaller(t *testing.T) {
	e := New()
	scope := NewScope()
	mustRun(t, e, "scale(x) = x * factor", scope)

	_, err := run(t, e, "1 + scale(2)", scope)
	var ve *errs.VariableError
	if !errors.As(err, &ve) {
		t.Fatalf("expected VariableError, got %v", err)
	}
	if ve.VariableName != "factor" {
		t.Errorf("expected variable name factor, got %q", ve.VariableName)
	}
	if !strings.Contains(ve.Expression, "scale(2)") || strings.Contains(ve.Expression, "factor") {
		t.Errorf("expected the calling expression, got %q", ve.Expression)
	}
}

func TestUndefinedVariable(t *testing.T) {
	e := New()
	_, err := run(t, e, "y + 1", nil)
	var ve *errs.VariableError
	if !errors.As(err, &ve) {
		t.Fatalf("expected VariableError, got %v", err)
	}
	if ve.VariableName != "y" {
		t.Errorf("expected variable name y, got %q", ve.VariableName)
	}
	if !strings.Contains(ve.Expression, "y + 1") {
		t.Errorf("expected expression text, got %q", ve.Expression)
	}
}

func TestStackParity(t *testing.T) {
	e := New()
	cases := [][]expr.Instruction{
		{expr.Literal(expr.Number(1)), expr.Literal(expr.Number(2))},
		{},
		{expr.Binary("+")},
		{expr.VarName("x")},
	}
	for _, prog := range cases {
		_, err := e.Evaluate(prog, nil)
		if errs.Kind(err) != "EvaluationError" {
			t.Errorf("%s: expected EvaluationError, got %v", expr.Dump(prog), err)
		}
	}
}

func TestNegativeZero(t *testing.T) {
	e := New()
	v := mustRun(t, e, "-0", nil)
	n, ok := v.(expr.Number)
	if !ok || n != 0 || math.Signbit(float64(n)) {
		t.Errorf("expected 0, got %v", v)
	}
}

func TestCallerErrorsPropagateUnchanged(t *testing.T) {
	e := New()
	boom := errors.New("boom")
	e.Registry().AddFunction(expr.NewFunction("explode", 0, func([]expr.Value) (expr.Value, error) {
		return nil, boom
	}))
	if _, err := run(t, e, "1 + explode()", nil); err != boom {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	e := New()
	sources := []string{
		"1 + 2 * 3",
		"-2^2",
		"a ? b : c",
		"x = 3; x * 2",
		"(f(n) = n < 2 ? n : f(n - 1) + f(n - 2))(10)",
		"case a when 1 then 'one' else 'other' end",
		"case when a > 1 then [a, b] end",
		"{k: a, 'odd key': [1, 'two']}.k",
		"o.k = 2; o",
		"sin(a)^2 + cos a^2",
		"a and not b or c",
		"'it\\'s' + 3!",
	}
	vars := func() *Scope {
		return ScopeFrom(map[string]expr.Value{
			"a": expr.Number(1), "b": expr.Bool(false), "c": expr.Number(3),
			"o": expr.NewObject(),
		})
	}
	for _, src := range sources {
		prog := compile(t, e, src)
		formatted := expr.Format(prog)
		again, err := parser.Parse(formatted, parser.Config{Registry: e.Registry()})
		if err != nil {
			t.Errorf("%q formatted as %q does not parse: %v", src, formatted, err)
			continue
		}
		want, werr := e.Evaluate(prog, vars())
		got, gerr := e.Evaluate(again, vars())
		if (werr == nil) != (gerr == nil) {
			t.Errorf("%q: errors differ: %v vs %v", src, werr, gerr)
			continue
		}
		if werr == nil && !sameValue(want, got) {
			t.Errorf("%q: %v, formatted %q gives %v", src, want, formatted, got)
		}
	}
}

func sameValue(a, b expr.Value) bool {
	ja, err := expr.MarshalJSON(a)
	if err != nil {
		return false
	}
	jb, err := expr.MarshalJSON(b)
	if err != nil {
		return false
	}
	return string(ja) == string(jb)
}
