// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package eval

import (
	"sort"
	"sync"

	"nickandperla.net/xpr/internal/expr"
)

// Scope is a thread-safe variable map. Lookups fall back to the parent scope;
// writes always go to the scope itself.
type Scope struct {
	mu     sync.RWMutex
	vars   map[string]expr.Value
	parent *Scope
}

// NewScope creates a new empty scope.
func NewScope() *Scope {
	return &Scope{
		vars: make(map[string]expr.Value),
	}
}

// ScopeFrom creates a scope holding a copy of vars.
func ScopeFrom(vars map[string]expr.Value) *Scope {
	s := NewScope()
	for k, v := range vars {
		s.vars[k] = v
	}
	return s
}

// Child creates an empty scope whose lookups fall back to s.
func (s *Scope) Child() *Scope {
	c := NewScope()
	c.parent = s
	return c
}

// Get retrieves a value by name, walking parent scopes.
func (s *Scope) Get(name string) (expr.Value, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		v, ok := cur.vars[name]
		cur.mu.RUnlock()
		if ok {
			return v, true
		}
	}
	return nil, false
}

// Set stores a value by name.
func (s *Scope) Set(name string, v expr.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = v
}

// Has returns true if the name resolves in s or a parent.
func (s *Scope) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Delete removes a name from s. Parent scopes are untouched.
func (s *Scope) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vars, name)
}

// Map returns a copy of the variables defined directly in s.
func (s *Scope) Map() map[string]expr.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]expr.Value, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}

// Names returns the sorted names defined directly in s.
func (s *Scope) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.vars))
	for k := range s.vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Clone creates a shallow copy of s sharing its parent.
func (s *Scope) Clone() *Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := NewScope()
	clone.parent = s.parent
	for k, v := range s.vars {
		clone.vars[k] = v
	}
	return clone
}
