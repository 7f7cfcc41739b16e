// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package eval

import (
	"fmt"
	"sync"

	"nickandperla.net/xpr/internal/errs"
	"nickandperla.net/xpr/internal/expr"
	"nickandperla.net/xpr/internal/ops"
)

// Stack cells that are not values.
type (
	// varName is an assignment target pushed by IVARNAME.
	varName string

	// thunk is the evaluated form of IEXPR: a body bound to the scope it
	// was pushed in, run at most once.
	thunk struct {
		e     *Evaluator
		st    *state
		body  []expr.Instruction
		scope *Scope
		done  bool
		val   expr.Value
		err   error
	}

	// branch is a when/else clause waiting for its case instruction. cond
	// is nil for else.
	branch struct {
		cond  any
		value any
	}

	// objectBuilder is an object literal under construction.
	objectBuilder struct {
		obj *expr.Object
	}
)

func (t *thunk) force() (expr.Value, error) {
	if !t.done {
		t.val, t.err = newMachine(t.e, t.st, t.body, t.scope).run()
		t.done = true
	}
	return t.val, t.err
}

var deniedNames = map[string]bool{
	"__proto__":   true,
	"prototype":   true,
	"constructor": true,
}

func guard(name string) error {
	if deniedNames[name] {
		e := errs.Access(name, "", "access to %q is denied", name)
		e.Token = name
		return e
	}
	return nil
}

// state is shared by every machine of one evaluation, including the
// machines that run thunks and closures.
type state struct {
	root []expr.Instruction

	mu      sync.Mutex
	allowed map[*expr.Function]struct{}
	names   map[*expr.Function]string

	srcOnce sync.Once
	src     string
}

func (s *state) allow(fn *expr.Function) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.allowed == nil {
		s.allowed = make(map[*expr.Function]struct{})
	}
	s.allowed[fn] = struct{}{}
}

func (s *state) isAllowed(fn *expr.Function) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.allowed[fn]
	return ok
}

func (s *state) remember(v expr.Value, name string) {
	fn, ok := v.(*expr.Function)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.names == nil {
		s.names = make(map[*expr.Function]string)
	}
	s.names[fn] = name
}

func (s *state) nameOf(fn *expr.Function) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.names[fn]
}

func (s *state) expression() string {
	s.srcOnce.Do(func() {
		s.src = expr.Format(s.root)
	})
	return s.src
}

// annotate fills in the expression text of xpr errors raised without it.
func (s *state) annotate(err error) error {
	if err == nil {
		return nil
	}
	if c := errs.ContextOf(err); c != nil && c.Expression == "" {
		c.Expression = s.expression()
	}
	return err
}

type machine struct {
	e     *Evaluator
	st    *state
	prog  []expr.Instruction
	scope *Scope
	stack []any
	pc    int
	// top is set on the machine that runs the evaluated program itself.
	// Only it annotates errors, so a closure body or a thunk reports the
	// expression of the evaluation that called it.
	top bool
}

func newMachine(e *Evaluator, st *state, prog []expr.Instruction, scope *Scope) *machine {
	return &machine{e: e, st: st, prog: prog, scope: scope}
}

func (m *machine) annotate(err error) error {
	if !m.top {
		return err
	}
	return m.st.annotate(err)
}

// run executes instructions from pc. When the top of the stack becomes a
// pending future the machine suspends: run returns a future that resumes
// the same stack at the next instruction once the value arrives.
func (m *machine) run() (expr.Value, error) {
	for m.pc < len(m.prog) {
		in := m.prog[m.pc]
		m.pc++
		if err := m.step(in); err != nil {
			return nil, m.annotate(err)
		}
		fut, err := m.settleTop()
		if err != nil {
			return nil, m.annotate(err)
		}
		if fut != nil {
			return m.suspend(fut), nil
		}
	}
	if len(m.stack) != 1 {
		return nil, m.annotate(errs.Evaluation("", "invalid expression: %d values left on the stack", len(m.stack)))
	}
	v, err := m.force(m.stack[0])
	return v, m.annotate(err)
}

// settleTop replaces a settled future on top of the stack with its value and
// returns the future if it is still pending.
func (m *machine) settleTop() (*expr.Future, error) {
	if len(m.stack) == 0 {
		return nil, nil
	}
	fut, ok := m.stack[len(m.stack)-1].(*expr.Future)
	if !ok {
		return nil, nil
	}
	v, err, done := fut.Result()
	if !done {
		return fut, nil
	}
	if err != nil {
		return nil, err
	}
	m.stack[len(m.stack)-1] = v
	return nil, nil
}

func (m *machine) suspend(fut *expr.Future) *expr.Future {
	m.e.log.Debug().Int("pc", m.pc).Int("depth", len(m.stack)).Msg("evaluation suspended")
	if m.e.onSuspend != nil {
		m.e.onSuspend()
	}
	return m.e.async.Track(fut.Then(func(v expr.Value) (expr.Value, error) {
		m.stack[len(m.stack)-1] = v
		m.e.log.Debug().Int("pc", m.pc).Msg("evaluation resumed")
		return m.run()
	}))
}

func (m *machine) push(x any) {
	m.stack = append(m.stack, x)
}

func (m *machine) pop() (any, error) {
	if len(m.stack) == 0 {
		return nil, errs.Evaluation("", "invalid expression: stack underflow")
	}
	x := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return x, nil
}

func (m *machine) popValue() (expr.Value, error) {
	x, err := m.pop()
	if err != nil {
		return nil, err
	}
	return m.force(x)
}

func (m *machine) popValues(n int) ([]expr.Value, error) {
	if n > len(m.stack) {
		return nil, errs.Evaluation("", "invalid expression: stack underflow")
	}
	vals := make([]expr.Value, n)
	for i := n - 1; i >= 0; i-- {
		v, err := m.popValue()
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func (m *machine) force(x any) (expr.Value, error) {
	switch c := x.(type) {
	case expr.Value:
		return c, nil
	case *thunk:
		return c.force()
	}
	return nil, errs.Evaluation("", "invalid expression: unexpected %s operand", cellName(x))
}

func cellName(x any) string {
	switch x.(type) {
	case varName:
		return "variable name"
	case *branch:
		return "case branch"
	case *objectBuilder:
		return "object literal"
	}
	return fmt.Sprintf("%T", x)
}

// apply calls fn once none of vals is a pending future. Otherwise the
// result is a future completed with fn's result after all of them settle.
func (m *machine) apply(vals []expr.Value, fn func([]expr.Value) (expr.Value, error)) (expr.Value, error) {
	pending := false
	for i, v := range vals {
		fut, ok := v.(*expr.Future)
		if !ok {
			continue
		}
		rv, err, done := fut.Result()
		if !done {
			pending = true
			continue
		}
		if err != nil {
			return nil, err
		}
		vals[i] = rv
	}
	if !pending {
		return fn(vals)
	}
	return expr.All(vals).Then(func(arr expr.Value) (expr.Value, error) {
		v, err := fn(arr.(*expr.Array).Elems)
		return v, m.annotate(err)
	}), nil
}

// pushApplied pushes the result of apply.
func (m *machine) pushApplied(vals []expr.Value, fn func([]expr.Value) (expr.Value, error)) error {
	v, err := m.apply(vals, fn)
	if err != nil {
		return err
	}
	m.push(v)
	return nil
}

// retryIfPending pushes v back and rewinds to the current instruction when v
// is a pending future, so the instruction runs again once it has settled.
func (m *machine) retryIfPending(v expr.Value) bool {
	fut, ok := v.(*expr.Future)
	if !ok {
		return false
	}
	if _, _, done := fut.Result(); done {
		return false
	}
	m.push(fut)
	m.pc--
	return true
}

func (m *machine) step(in expr.Instruction) error {
	switch in.Op {
	case expr.INUMBER:
		m.push(expr.Clone(in.Value))
	case expr.IVAR:
		v, err := m.lookup(in.Name)
		if err != nil {
			return err
		}
		m.push(v)
	case expr.IVARNAME:
		m.push(varName(in.Name))
	case expr.IUNDEFINED:
		m.push(expr.Undefined{})
	case expr.IEXPR:
		m.push(&thunk{e: m.e, st: m.st, body: in.Body, scope: m.scope})
	case expr.IOP1:
		a, err := m.popValue()
		if err != nil {
			return err
		}
		return m.pushApplied([]expr.Value{a}, func(v []expr.Value) (expr.Value, error) {
			return m.e.reg.ApplyUnary(in.Name, v[0])
		})
	case expr.IOP2:
		switch in.Name {
		case "=":
			return m.assign()
		case "and", "or":
			return m.logical(in.Name)
		}
		return m.binary(in.Name)
	case expr.IOP3:
		switch in.Name {
		case "?":
			return m.conditional()
		case "=":
			return m.setMember()
		}
		return errs.Evaluation("", "unknown ternary operator %s", in.Name)
	case expr.IFUNCALL:
		return m.call(in.Count)
	case expr.IFUNDEF:
		return m.define(in.Count)
	case expr.IMEMBER:
		if err := guard(in.Name); err != nil {
			return err
		}
		obj, err := m.popValue()
		if err != nil {
			return err
		}
		return m.pushApplied([]expr.Value{obj}, func(v []expr.Value) (expr.Value, error) {
			return member(v[0], in.Name)
		})
	case expr.IARRAY:
		vals, err := m.popValues(in.Count)
		if err != nil {
			return err
		}
		return m.pushApplied(vals, func(v []expr.Value) (expr.Value, error) {
			return expr.NewArray(append([]expr.Value(nil), v...)...), nil
		})
	case expr.IOBJECT:
		m.push(&objectBuilder{obj: expr.NewObject()})
	case expr.IPROPERTY:
		return m.property(in.Name)
	case expr.IOBJECTEND:
		x, err := m.pop()
		if err != nil {
			return err
		}
		ob, ok := x.(*objectBuilder)
		if !ok {
			return errs.Evaluation("", "invalid expression: object end without object")
		}
		m.push(ob.obj)
	case expr.IENDSTATEMENT:
		v, err := m.popValue()
		if err != nil {
			return err
		}
		if m.retryIfPending(v) {
			return nil
		}
		if fut, ok := v.(*expr.Future); ok {
			if _, ferr, _ := fut.Result(); ferr != nil {
				return ferr
			}
		}
	case expr.IWHENMATCH, expr.IWHENCOND:
		value, err := m.pop()
		if err != nil {
			return err
		}
		cond, err := m.pop()
		if err != nil {
			return err
		}
		m.push(&branch{cond: cond, value: value})
	case expr.ICASEELSE:
		value, err := m.pop()
		if err != nil {
			return err
		}
		m.push(&branch{value: value})
	case expr.ICASEMATCH, expr.ICASECOND:
		return m.selectCase(in.Op == expr.ICASEMATCH, in.Count)
	default:
		return errs.Evaluation("", "invalid expression: unknown instruction %s", in.Op)
	}
	return nil
}

// lookup resolves a variable: functions, enabled unary operators, the scope
// chain and finally the resolver.
func (m *machine) lookup(name string) (expr.Value, error) {
	if err := guard(name); err != nil {
		return nil, err
	}
	reg := m.e.reg
	if fn, ok := reg.Functions[name]; ok {
		return fn, nil
	}
	if fn, ok := reg.Unary[name]; ok && reg.Enabled(name) {
		return fn, nil
	}
	if v, ok := m.scope.Get(name); ok {
		m.st.remember(v, name)
		return v, nil
	}
	if m.e.resolver != nil {
		if res, ok := m.e.resolver(name); ok {
			if res.Alias != "" {
				if err := guard(res.Alias); err != nil {
					return nil, err
				}
				if v, ok := m.scope.Get(res.Alias); ok {
					m.st.remember(v, name)
					return v, nil
				}
			} else if res.Value != nil {
				if fn, ok := res.Value.(*expr.Function); ok {
					m.st.allow(fn)
				}
				return res.Value, nil
			}
		}
	}
	return nil, errs.UndefinedVariable(name, "")
}

func (m *machine) callable(fn *expr.Function) bool {
	return fn.Type == expr.Closure || m.e.reg.Owns(fn) || m.st.isAllowed(fn)
}

func (m *machine) calleeName(v expr.Value) string {
	if fn, ok := v.(*expr.Function); ok {
		if name := m.st.nameOf(fn); name != "" {
			return name
		}
	}
	return v.String()
}

func (m *machine) binary(op string) error {
	b, err := m.popValue()
	if err != nil {
		return err
	}
	a, err := m.popValue()
	if err != nil {
		return err
	}
	return m.pushApplied([]expr.Value{a, b}, func(v []expr.Value) (expr.Value, error) {
		if op == "[" {
			if key, ok := ops.Key(v[1]); ok {
				if err := guard(key); err != nil {
					return nil, err
				}
			}
		}
		return m.e.reg.ApplyBinary(op, v[0], v[1])
	})
}

func (m *machine) logical(op string) error {
	rhs, err := m.pop()
	if err != nil {
		return err
	}
	a, err := m.popValue()
	if err != nil {
		return err
	}
	return m.pushApplied([]expr.Value{a}, func(v []expr.Value) (expr.Value, error) {
		left := expr.Truthy(v[0])
		if op == "and" && !left {
			return expr.Bool(false), nil
		}
		if op == "or" && left {
			return expr.Bool(true), nil
		}
		b, err := m.force(rhs)
		if err != nil {
			return nil, err
		}
		return m.apply([]expr.Value{b}, func(w []expr.Value) (expr.Value, error) {
			return expr.Bool(expr.Truthy(w[0])), nil
		})
	})
}

func (m *machine) conditional() error {
	no, err := m.pop()
	if err != nil {
		return err
	}
	yes, err := m.pop()
	if err != nil {
		return err
	}
	cond, err := m.popValue()
	if err != nil {
		return err
	}
	return m.pushApplied([]expr.Value{cond}, func(v []expr.Value) (expr.Value, error) {
		if expr.Truthy(v[0]) {
			return m.force(yes)
		}
		return m.force(no)
	})
}

func (m *machine) assign() error {
	cell, err := m.pop()
	if err != nil {
		return err
	}
	target, err := m.pop()
	if err != nil {
		return err
	}
	name, ok := target.(varName)
	if !ok {
		return errs.Evaluation("", "invalid expression: assignment target is not a variable")
	}
	if err := guard(string(name)); err != nil {
		return err
	}
	v, err := m.force(cell)
	if err != nil {
		return err
	}
	return m.pushApplied([]expr.Value{v}, func(v []expr.Value) (expr.Value, error) {
		m.scope.Set(string(name), v[0])
		return v[0], nil
	})
}

func (m *machine) setMember() error {
	cell, err := m.pop()
	if err != nil {
		return err
	}
	key, err := m.popValue()
	if err != nil {
		return err
	}
	obj, err := m.popValue()
	if err != nil {
		return err
	}
	v, err := m.force(cell)
	if err != nil {
		return err
	}
	return m.pushApplied([]expr.Value{obj, key, v}, func(x []expr.Value) (expr.Value, error) {
		return setMember(x[0], x[1], x[2])
	})
}

func setMember(obj, key, v expr.Value) (expr.Value, error) {
	k, ok := ops.Key(key)
	if !ok {
		return nil, errs.Evaluation("", "property key must be a string or number, got %s", key.Kind())
	}
	if err := guard(k); err != nil {
		return nil, err
	}
	switch o := obj.(type) {
	case *expr.Object:
		o.Set(k, v)
		return v, nil
	case *expr.Array:
		n, isNum := key.(expr.Number)
		i := int(n)
		if !isNum || float64(i) != float64(n) || i < 0 || i > len(o.Elems) {
			return nil, errs.Evaluation("", "invalid array index %s", key)
		}
		if i == len(o.Elems) {
			o.Elems = append(o.Elems, v)
		} else {
			o.Elems[i] = v
		}
		return v, nil
	}
	e := errs.Evaluation("", "cannot set property %q of %s", k, obj.Kind())
	e.PropertyName = k
	return nil, e
}

func member(obj expr.Value, name string) (expr.Value, error) {
	switch o := obj.(type) {
	case *expr.Object:
		if v, ok := o.Get(name); ok {
			return v, nil
		}
		return expr.Undefined{}, nil
	case *expr.Array:
		if name == "length" {
			return expr.Number(o.Len()), nil
		}
	case expr.String:
		if name == "length" {
			return expr.Number(len([]rune(string(o)))), nil
		}
	case expr.Undefined, expr.Null:
		e := errs.Evaluation("", "cannot read property %q of %s", name, obj)
		e.PropertyName = name
		return nil, e
	}
	return expr.Undefined{}, nil
}

func (m *machine) property(key string) error {
	if err := guard(key); err != nil {
		return err
	}
	v, err := m.popValue()
	if err != nil {
		return err
	}
	if m.retryIfPending(v) {
		return nil
	}
	if fut, ok := v.(*expr.Future); ok {
		rv, ferr, _ := fut.Result()
		if ferr != nil {
			return ferr
		}
		v = rv
	}
	if len(m.stack) == 0 {
		return errs.Evaluation("", "invalid expression: property without object")
	}
	ob, ok := m.stack[len(m.stack)-1].(*objectBuilder)
	if !ok {
		return errs.Evaluation("", "invalid expression: property without object")
	}
	ob.obj.Set(key, v)
	return nil
}

func (m *machine) call(argc int) error {
	args, err := m.popValues(argc)
	if err != nil {
		return err
	}
	callee, err := m.popValue()
	if err != nil {
		return err
	}
	vals := append([]expr.Value{callee}, args...)
	return m.pushApplied(vals, func(v []expr.Value) (expr.Value, error) {
		fn, ok := v[0].(*expr.Function)
		if !ok || !m.callable(fn) {
			return nil, errs.NotCallable(m.calleeName(v[0]), "")
		}
		for _, a := range v[1:] {
			if f, ok := a.(*expr.Function); ok && !m.callable(f) {
				return nil, errs.NotCallable(m.calleeName(f), "")
			}
		}
		return fn.Call(v[1:])
	})
}

// define builds a closure over the current scope and binds it under its
// own name, so the body can call itself.
func (m *machine) define(n int) error {
	cell, err := m.pop()
	if err != nil {
		return err
	}
	body, ok := cell.(*thunk)
	if !ok {
		return errs.Evaluation("", "invalid expression: function body is not lazy")
	}
	params := make([]string, n)
	for i := n - 1; i >= 0; i-- {
		x, err := m.pop()
		if err != nil {
			return err
		}
		p, ok := x.(varName)
		if !ok {
			return errs.Evaluation("", "invalid expression: function parameter is not a name")
		}
		if err := guard(string(p)); err != nil {
			return err
		}
		params[i] = string(p)
	}
	x, err := m.pop()
	if err != nil {
		return err
	}
	name, ok := x.(varName)
	if !ok {
		return errs.Evaluation("", "invalid expression: function name is not a name")
	}
	if err := guard(string(name)); err != nil {
		return err
	}

	fn := m.closure(string(name), params, body.body)
	m.scope.Set(string(name), fn)
	m.push(fn)
	return nil
}

func (m *machine) closure(name string, params []string, body []expr.Instruction) *expr.Function {
	e, st, defScope := m.e, m.st, m.scope
	fn := &expr.Function{Name: name, Arity: len(params), Type: expr.Closure}
	fn.Call = func(args []expr.Value) (expr.Value, error) {
		local := defScope.Child()
		for i, p := range params {
			var v expr.Value = expr.Undefined{}
			if i < len(args) {
				v = args[i]
			}
			local.Set(p, v)
		}
		return newMachine(e, st, body, local).run()
	}
	return fn
}

func (m *machine) selectCase(match bool, n int) error {
	branches := make([]*branch, n)
	for i := n - 1; i >= 0; i-- {
		x, err := m.pop()
		if err != nil {
			return err
		}
		b, ok := x.(*branch)
		if !ok {
			return errs.Evaluation("", "invalid expression: case expects %d branches", n)
		}
		branches[i] = b
	}
	subject, err := m.popValue()
	if err != nil {
		return err
	}
	return m.pushApplied([]expr.Value{subject}, func(v []expr.Value) (expr.Value, error) {
		return m.choose(v[0], match, branches, 0)
	})
}

// choose forces branch conditions in order from i and returns the value of
// the first that holds. Later conditions are never forced.
func (m *machine) choose(subject expr.Value, match bool, branches []*branch, i int) (expr.Value, error) {
	holds := func(c expr.Value) bool {
		if match {
			return expr.Equal(subject, c)
		}
		return expr.Truthy(c)
	}
	for ; i < len(branches); i++ {
		b := branches[i]
		if b.cond == nil {
			return m.force(b.value)
		}
		c, err := m.force(b.cond)
		if err != nil {
			return nil, err
		}
		if fut, ok := c.(*expr.Future); ok {
			rv, ferr, done := fut.Result()
			if !done {
				next := i + 1
				return fut.Then(func(cv expr.Value) (expr.Value, error) {
					if holds(cv) {
						return m.force(b.value)
					}
					return m.choose(subject, match, branches, next)
				}), nil
			}
			if ferr != nil {
				return nil, ferr
			}
			c = rv
		}
		if holds(c) {
			return m.force(b.value)
		}
	}
	return expr.Undefined{}, nil
}
