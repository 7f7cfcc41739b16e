// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package eval

import (
	"fmt"
	"math"
	"testing"

	exprlang "github.com/expr-lang/expr"

	"nickandperla.net/xpr/internal/expr"
)

// TestAgainstExprLang checks expressions whose syntax and semantics coincide
// with expr-lang against its result.
func TestAgainstExprLang(t *testing.T) {
	env := map[string]any{"a": 6.0, "b": 4.0, "s": "go"}
	sources := []string{
		"1 + 2 * 3",
		"(1 + 2) * 3",
		"10 / 4",
		"7 % 3",
		"10 - 4 - 3",
		"2 ^ 3",
		"-a + b",
		"a * b - a / b",
		"'a' + 'b'",
		"s + 'lang'",
		"1 < 2 and 3 > 2",
		"a >= b or false",
		"not (a == b)",
		"a != b ? a : b",
		"abs(-3) + 1",
		"max(a, b)",
		"min(a, b)",
		"ceil(2.1) + floor(2.9)",
		"[1, 2, 3][2]",
		"{x: 1, y: 2}.y",
	}

	e := New()
	for _, src := range sources {
		prog, err := exprlang.Compile(src, exprlang.Env(env))
		if err != nil {
			t.Fatalf("expr-lang compile %q: %v", src, err)
		}
		want, err := exprlang.Run(prog, env)
		if err != nil {
			t.Fatalf("expr-lang run %q: %v", src, err)
		}

		vars := make(map[string]expr.Value, len(env))
		for k, v := range env {
			vars[k], _ = expr.FromGo(v)
		}
		got, err := e.Evaluate(compile(t, e, src), ScopeFrom(vars))
		if err != nil {
			t.Errorf("%q: unexpected error: %v", src, err)
			continue
		}
		if !agrees(got, want) {
			t.Errorf("%q = %v, expr-lang says %v (%T)", src, got, want, want)
		}
	}
}

func agrees(got expr.Value, want any) bool {
	switch w := want.(type) {
	case int:
		return agrees(got, float64(w))
	case float64:
		n, ok := got.(expr.Number)
		return ok && math.Abs(float64(n)-w) < 1e-9
	case bool:
		return got == expr.Bool(w)
	case string:
		return got == expr.String(w)
	}
	return fmt.Sprint(expr.ToGo(got)) == fmt.Sprint(want)
}
