// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package expr

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func TestTruthy(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Undefined{}, false},
		{Null{}, false},
		{Bool(false), false},
		{Bool(true), true},
		{Number(0), false},
		{Number(math.NaN()), false},
		{Number(math.Inf(-1)), true},
		{Number(-2.5), true},
		{String(""), false},
		{String("0"), true},
		{NewArray(), true},
		{NewObject(), true},
	}
	for _, c := range cases {
		if got := Truthy(c.v); got != c.want {
			t.Errorf("Truthy(%v) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestEqual(t *testing.T) {
	arr := NewArray(Number(1))
	if !Equal(Number(2), Number(2)) {
		t.Error("2 == 2")
	}
	if Equal(Number(2), String("2")) {
		t.Error("2 != '2'")
	}
	if !Equal(Undefined{}, Undefined{}) {
		t.Error("undefined == undefined")
	}
	if Equal(Undefined{}, Null{}) {
		t.Error("undefined != null")
	}
	if !Equal(arr, arr) {
		t.Error("array identity")
	}
	if Equal(arr, NewArray(Number(1))) {
		t.Error("distinct arrays compare by identity")
	}
}

func TestObjectKeepsOrder(t *testing.T) {
	o := NewObject()
	o.Set("b", Number(1))
	o.Set("a", Number(2))
	o.Set("b", Number(3))
	keys := o.Keys()
	if len(keys) != 2 || keys[0] != "b" || keys[1] != "a" {
		t.Fatalf("unexpected key order %v", keys)
	}
	data, err := o.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if string(data) != `{"b":3,"a":2}` {
		t.Errorf("unexpected json %s", data)
	}
	o.Delete("b")
	if o.Has("b") || o.Len() != 1 {
		t.Errorf("delete failed: %v", o.Keys())
	}
}

func TestUnmarshalJSONKeepsOrder(t *testing.T) {
	src := `{"z": 1, "a": {"y": [true, null, "s"], "b": 2.5}, "m": -3}`
	v, err := UnmarshalJSON([]byte(src))
	if err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	o := v.(*Object)
	if keys := o.Keys(); len(keys) != 3 || keys[0] != "z" || keys[1] != "a" || keys[2] != "m" {
		t.Errorf("unexpected key order %v", keys)
	}
	data, err := MarshalJSON(v)
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if want := `{"z":1,"a":{"y":[true,null,"s"],"b":2.5},"m":-3}`; string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}

	for _, bad := range []string{``, `{"a":`, `[1,]`, `1 2`} {
		if _, err := UnmarshalJSON([]byte(bad)); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	inner := NewArray(Number(1))
	outer := NewArray(inner)
	c := Clone(outer).(*Array)
	c.Elems[0].(*Array).Elems[0] = Number(9)
	if inner.Elems[0] != Number(1) {
		t.Error("clone aliases nested array")
	}
}

func TestFromGoToGo(t *testing.T) {
	v, err := FromGo(map[string]any{"n": 1, "s": "x", "l": []any{true, nil}})
	if err != nil {
		t.Fatalf("FromGo: %v", err)
	}
	o := v.(*Object)
	if n, _ := o.Get("n"); n != Number(1) {
		t.Errorf("n = %v", n)
	}
	back := ToGo(v).(map[string]any)
	l := back["l"].([]any)
	if l[0] != true || l[1] != nil {
		t.Errorf("unexpected list %v", l)
	}
	if _, err := FromGo(struct{}{}); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestFormatNumber(t *testing.T) {
	cases := map[float64]string{
		3:      "3",
		0.5:    "0.5",
		-2:     "-2",
		1e21:   "1e+21",
		1.5e-7: "1.5e-07",
	}
	for in, want := range cases {
		if got := FormatNumber(in); got != want {
			t.Errorf("FormatNumber(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestFutureResolve(t *testing.T) {
	f := NewFuture()
	if _, _, ok := f.Result(); ok {
		t.Fatal("new future should be pending")
	}
	f.Resolve(Number(4))
	f.Resolve(Number(5))
	v, err := f.Await(context.Background())
	if err != nil || v != Number(4) {
		t.Fatalf("got %v, %v", v, err)
	}
}

func TestFutureThenChains(t *testing.T) {
	src := Go(func() (Value, error) {
		time.Sleep(5 * time.Millisecond)
		return Number(2), nil
	})
	doubled := src.Then(func(v Value) (Value, error) {
		return Go(func() (Value, error) { return v.(Number) * 2, nil }), nil
	})
	v, err := doubled.Await(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != Number(4) {
		t.Errorf("expected 4, got %v", v)
	}
}

func TestFutureRejectionPropagates(t *testing.T) {
	boom := errors.New("boom")
	called := false
	f := Rejected(boom).Then(func(v Value) (Value, error) {
		called = true
		return v, nil
	})
	_, err := f.Await(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if called {
		t.Error("Then callback ran on rejection")
	}
}

func TestFutureAwaitContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := NewFuture().Await(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestAll(t *testing.T) {
	v, err := All([]Value{Number(1), Resolved(Number(2))}).Await(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	arr := v.(*Array)
	if arr.Elems[0] != Number(1) || arr.Elems[1] != Number(2) {
		t.Errorf("unexpected %v", arr)
	}
}

func TestFormat(t *testing.T) {
	prog := []Instruction{
		Var("x"),
		Literal(Number(-2)),
		Binary("*"),
		Literal(String("a\"b")),
		Counted(IARRAY, 2),
	}
	if got := Format(prog); got != `[(x * (-2)), "a\"b"]` {
		t.Errorf("unexpected format %s", got)
	}
}

func TestFormatCase(t *testing.T) {
	prog := []Instruction{
		Var("x"),
		Lazy([]Instruction{Literal(Number(1))}),
		Lazy([]Instruction{Literal(String("one"))}),
		Counted(IWHENMATCH, 0),
		Lazy([]Instruction{Literal(String("many"))}),
		Counted(ICASEELSE, 1),
		Counted(ICASEMATCH, 2),
	}
	want := `(case x when (1) then ("one") else ("many") end)`
	if got := Format(prog); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestCloneProgram(t *testing.T) {
	body := []Instruction{Literal(NewArray(Number(1)))}
	prog := []Instruction{Lazy(body)}
	c := CloneProgram(prog)
	c[0].Body[0].Value.(*Array).Elems[0] = Number(2)
	c[0].Body[0].Name = "changed"
	if body[0].Value.(*Array).Elems[0] != Number(1) || body[0].Name != "" {
		t.Error("clone aliases original program")
	}
}
