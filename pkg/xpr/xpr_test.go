// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package xpr

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEvaluateFreeFunction(t *testing.T) {
	v, err := Evaluate("price * (1 + rate)", map[string]any{"price": 100, "rate": 0.25})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != Number(125) {
		t.Errorf("expected 125, got %v", v)
	}
	if _, err := Parse("1 +"); ErrorKind(err) != "SyntaxError" {
		t.Errorf("expected SyntaxError, got %v", err)
	}
}

func TestParseCachesBySource(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := New(WithNoPrelude(), WithMetrics(reg))
	defer p.Close()

	a, err := p.Parse("x + 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := p.Parse("x + 1")
	if a != b {
		t.Error("expected the same compiled expression for the same source")
	}

	var wg sync.WaitGroup
	results := make([]*Expression, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = p.Parse("y * 2")
		}(i)
	}
	wg.Wait()
	for _, x := range results {
		if x != results[0] {
			t.Fatal("concurrent parses produced different expressions")
		}
	}
	if got := testutil.ToFloat64(p.metrics.CacheHits); got < 1 {
		t.Errorf("expected cache hits to be counted, got %v", got)
	}
}

func TestCacheSize(t *testing.T) {
	p := New(WithNoPrelude(), WithCacheSize(2))
	a, _ := p.Parse("1")
	p.Parse("2")
	p.Parse("3")
	again, _ := p.Parse("1")
	if a == again {
		t.Error("expected the oldest entry to be evicted")
	}

	p = New(WithNoPrelude(), WithCacheSize(0))
	a, _ = p.Parse("1")
	again, _ = p.Parse("1")
	if a == again {
		t.Error("expected no caching with size 0")
	}
}

func TestExpressionMethods(t *testing.T) {
	p := New(WithNoPrelude())
	x, err := p.Parse("a * b + c.d")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if x.Source() != "a * b + c.d" {
		t.Errorf("unexpected source %q", x.Source())
	}
	if got := x.Variables(false); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("unexpected variables %v", got)
	}
	if got := x.Variables(true); !slices.Equal(got, []string{"a", "b", "c.d"}) {
		t.Errorf("unexpected dotted variables %v", got)
	}

	simple := x.Simplify(map[string]Value{"a": Number(2), "b": Number(3)})
	if got := simple.Variables(false); !slices.Equal(got, []string{"c"}) {
		t.Errorf("expected only c after simplify, got %v", got)
	}

	inner, _ := p.Parse("n - 1")
	sub := x.Substitute("a", inner)
	scope, _ := p.NewScope(map[string]any{"n": 5, "b": 2, "c": map[string]any{"d": 1}})
	v, err := sub.Evaluate(scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != Number(9) {
		t.Errorf("expected 9, got %v", v)
	}

	again, err := p.Parse(sub.String())
	if err != nil {
		t.Fatalf("regenerated source %q does not parse: %v", sub.String(), err)
	}
	if v2, _ := again.Evaluate(scope); v2 != v {
		t.Errorf("regenerated source gives %v, want %v", v2, v)
	}

	prog := x.Program()
	prog[0].Name = "changed"
	if x.Variables(false)[0] != "a" {
		t.Error("Program exposed the internal instructions")
	}
}

func TestFunctionsAndConstants(t *testing.T) {
	p := New(
		WithNoPrelude(),
		WithFunction("twice", 1, func(args []Value) (Value, error) {
			return args[0].(Number) * 2, nil
		}),
		WithConstant("ANSWER", Number(42)),
	)
	v, err := p.Evaluate("twice(ANSWER)", nil)
	if err != nil || v != Number(84) {
		t.Errorf("expected 84, got %v, %v", v, err)
	}
}

func TestAsyncFunction(t *testing.T) {
	p := New(WithNoPrelude(), WithAsyncFunction("fetch", 1, func(ctx context.Context, args []Value) (Value, error) {
		select {
		case <-time.After(5 * time.Millisecond):
			return args[0].(Number) + 1, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))
	defer p.Close()

	x, _ := p.Parse("fetch(1) * 10")
	v, err := x.Evaluate(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := v.(*Future); !ok {
		t.Fatalf("expected a future, got %v", v)
	}
	v, err = x.Resolve(context.Background(), nil)
	if err != nil || v != Number(20) {
		t.Errorf("expected 20, got %v, %v", v, err)
	}
}

func TestConcurrentEvaluation(t *testing.T) {
	p := New(WithAsyncFunction("fetch", 1, func(ctx context.Context, args []Value) (Value, error) {
		select {
		case <-time.After(time.Millisecond):
			return args[0].(Number) + 1, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))
	defer p.Close()

	x, err := p.Parse("m = fetch(n); total = m * 2 + o.k; clamp(total, 0, 1000)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			scope, err := p.NewScope(map[string]any{"n": n, "o": map[string]any{"k": n * 3}})
			if err != nil {
				t.Errorf("scope %d: %v", n, err)
				return
			}
			v, err := x.Evaluate(scope)
			if fut, ok := v.(*Future); ok && err == nil {
				v, err = fut.Await(ctx)
			}
			want := Number((n+1)*2 + n*3)
			if err != nil || v != want {
				t.Errorf("n=%d: got %v, %v, want %v", n, v, err, want)
			}
			if m, _ := scope.Get("m"); m != Number(n+1) {
				t.Errorf("n=%d: scope holds m=%v", n, m)
			}
			if total, _ := scope.Get("total"); total != want {
				t.Errorf("n=%d: scope holds total=%v", n, total)
			}
		}(i)
	}
	wg.Wait()
}

func TestOperatorOptions(t *testing.T) {
	p := New(WithNoPrelude(), WithOperators(map[string]bool{"add": false}), WithMemberAccess(false))
	if _, err := p.Parse("1 + 2"); ErrorKind(err) != "SyntaxError" {
		t.Errorf("expected SyntaxError with + disabled, got %v", err)
	}
	var ae *AccessError
	if _, err := p.Parse("a.b"); !errors.As(err, &ae) {
		t.Errorf("expected AccessError with member access disabled, got %v", err)
	}
}

func TestPreludeErrorNamesCaller(t *testing.T) {
	p := New()
	defer p.Close()

	_, err := p.Evaluate("clamp('a', 1, 2)", nil)
	var ee *EvaluationError
	if !errors.As(err, &ee) {
		t.Fatalf("expected EvaluationError, got %v", err)
	}
	if !strings.Contains(ee.Expression, "clamp(") {
		t.Errorf("expected the calling expression, got %q", ee.Expression)
	}
	for _, name := range []string{"lerp", "min(", "avg"} {
		if strings.Contains(ee.Expression, name) {
			t.Errorf("expression leaks prelude source %q: %q", name, ee.Expression)
		}
	}
}

func TestResolverComesFirst(t *testing.T) {
	p := New(WithNoPrelude(), WithMemoryStore(), WithResolver(func(name string) (Resolution, bool) {
		if name == "rate" {
			return Resolution{Value: Number(2)}, true
		}
		return Resolution{}, false
	}))
	defer p.Close()
	p.Define("rate", "1")
	if v, err := p.Evaluate("rate", nil); err != nil || v != Number(2) {
		t.Errorf("expected resolver value 2, got %v, %v", v, err)
	}
}

func TestLibrary(t *testing.T) {
	p := New(WithSQLiteStore(filepath.Join(t.TempDir(), "lib.db")))
	if err := p.Err(); err != nil {
		t.Fatalf("unexpected configuration error: %v", err)
	}
	defer p.Close()

	if err := p.Define("tax", "0.2"); err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	if err := p.Define("gross", "net * (1 + tax)"); err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	if err := p.Define("broken", "1 +"); ErrorKind(err) != "SyntaxError" {
		t.Errorf("expected SyntaxError for invalid source, got %v", err)
	}

	v, err := p.Evaluate("net = 10; gross", nil)
	if err == nil {
		t.Errorf("library expressions do not see the caller's scope, got %v", v)
	}
	v, err = p.Evaluate("100 * (1 + tax)", nil)
	if err != nil || v != Number(120) {
		t.Errorf("expected 120, got %v, %v", v, err)
	}

	p.Define("tax", "0.25")
	history, err := p.History("tax", 0)
	if err != nil || len(history) != 2 {
		t.Fatalf("expected 2 versions, got %v, %v", history, err)
	}
	names, _ := p.Names()
	if !slices.Equal(names, []string{"gross", "tax"}) {
		t.Errorf("unexpected names %v", names)
	}
	if src, ok, _ := p.Lookup("tax"); !ok || src != "0.25" {
		t.Errorf("unexpected lookup %q %v", src, ok)
	}
	p.Forget("tax")
	if _, ok, _ := p.Lookup("tax"); ok {
		t.Error("expected tax to be forgotten")
	}
}

func TestLibraryCycle(t *testing.T) {
	p := New(WithNoPrelude(), WithMemoryStore())
	defer p.Close()
	p.Define("a", "b + 1")
	p.Define("b", "a + 1")
	var ve *VariableError
	if _, err := p.Evaluate("a", nil); !errors.As(err, &ve) {
		t.Errorf("expected VariableError for a cyclic definition, got %v", err)
	}
}

func TestNoStore(t *testing.T) {
	p := New(WithNoPrelude())
	if err := p.Define("x", "1"); !errors.Is(err, ErrNoStore) {
		t.Errorf("expected ErrNoStore, got %v", err)
	}
	if _, err := p.Names(); !errors.Is(err, ErrNoStore) {
		t.Errorf("expected ErrNoStore, got %v", err)
	}
}

func TestBadSQLitePath(t *testing.T) {
	p := New(WithNoPrelude(), WithSQLiteStore(filepath.Join(t.TempDir(), "missing", "dir", "x.db")))
	if p.Err() == nil {
		t.Skip("driver created the database lazily")
	}
	if err := p.Define("x", "1"); !errors.Is(err, ErrNoStore) {
		t.Errorf("expected ErrNoStore after failed open, got %v", err)
	}
}
