// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package eval

import (
	"fmt"
	"sync"
	"testing"

	"nickandperla.net/xpr/internal/expr"
)

func TestScopeChain(t *testing.T) {
	parent := ScopeFrom(map[string]expr.Value{"a": expr.Number(1)})
	child := parent.Child()
	child.Set("b", expr.Number(2))

	if v, ok := child.Get("a"); !ok || v != expr.Number(1) {
		t.Errorf("child should see parent's a, got %v", v)
	}
	if parent.Has("b") {
		t.Error("parent should not see child's b")
	}
	child.Set("a", expr.Number(3))
	if v, _ := parent.Get("a"); v != expr.Number(1) {
		t.Errorf("child write should shadow, not overwrite, got %v", v)
	}
	child.Delete("a")
	if v, _ := child.Get("a"); v != expr.Number(1) {
		t.Errorf("after delete the parent value should show through, got %v", v)
	}
}

func TestScopeNamesAndClone(t *testing.T) {
	s := ScopeFrom(map[string]expr.Value{"z": expr.Null{}, "a": expr.Null{}})
	names := s.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "z" {
		t.Errorf("expected sorted names, got %v", names)
	}
	c := s.Clone()
	c.Set("m", expr.Bool(true))
	if s.Has("m") {
		t.Error("clone shares storage with the original")
	}
	if len(s.Map()) != 2 {
		t.Errorf("expected 2 entries, got %d", len(s.Map()))
	}
}

func TestScopeConcurrentAccess(t *testing.T) {
	s := NewScope()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("v%d", i)
			for j := 0; j < 100; j++ {
				s.Set(name, expr.Number(j))
				s.Get(name)
				s.Names()
			}
		}(i)
	}
	wg.Wait()
	if len(s.Names()) != 8 {
		t.Errorf("expected 8 names, got %d", len(s.Names()))
	}
}
