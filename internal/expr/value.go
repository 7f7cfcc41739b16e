// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package expr defines the xpr runtime value domain and the instruction IR.
package expr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/conv"
)

// Kind discriminates the closed set of runtime values.
type Kind int

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
	KindFunction
	KindFuture
)

// String returns the type name of the kind.
func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindFunction:
		return "function"
	case KindFuture:
		return "future"
	}
	return "unknown"
}

// Value is the interface all runtime values implement. The set of
// implementations is closed.
type Value interface {
	Kind() Kind
	// String returns the display form of the value.
	String() string
	value()
}

// Undefined is the absence value, distinct from Null.
type Undefined struct{}

func (Undefined) Kind() Kind     { return KindUndefined }
func (Undefined) String() string { return "undefined" }
func (Undefined) value()         {}

// Null is the null value.
type Null struct{}

func (Null) Kind() Kind     { return KindNull }
func (Null) String() string { return "null" }
func (Null) value()         {}

// Bool is a boolean value.
type Bool bool

func (Bool) Kind() Kind { return KindBool }
func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}
func (Bool) value() {}

// Number is a double precision number.
type Number float64

func (Number) Kind() Kind       { return KindNumber }
func (n Number) String() string { return FormatNumber(float64(n)) }
func (Number) value()           {}

// String is a string value.
type String string

func (String) Kind() Kind       { return KindString }
func (s String) String() string { return string(s) }
func (String) value()           {}

// Array is a mutable ordered list of values.
type Array struct {
	Elems []Value
}

// NewArray creates an array holding elems.
func NewArray(elems ...Value) *Array {
	if elems == nil {
		elems = []Value{}
	}
	return &Array{Elems: elems}
}

func (*Array) Kind() Kind { return KindArray }
func (a *Array) String() string {
	parts := make([]string, len(a.Elems))
	for i, e := range a.Elems {
		parts[i] = e.String()
	}
	return strings.Join(parts, ",")
}
func (*Array) value() {}

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.Elems) }

// Object is a mutable string-keyed map that remembers key insertion order.
type Object struct {
	keys []string
	m    map[string]Value
}

// NewObject creates an empty object.
func NewObject() *Object {
	return &Object{m: make(map[string]Value)}
}

func (*Object) Kind() Kind       { return KindObject }
func (o *Object) String() string { return "[object Object]" }
func (*Object) value()           {}

// Get returns the value stored under key.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.m[key]
	return v, ok
}

// Set stores v under key, appending new keys to the key order.
func (o *Object) Set(key string, v Value) {
	if _, ok := o.m[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.m[key] = v
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.m[key]
	return ok
}

// Delete removes key.
func (o *Object) Delete(key string) {
	if _, ok := o.m[key]; !ok {
		return
	}
	delete(o.m, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i:i], o.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Len returns the number of entries.
func (o *Object) Len() int { return len(o.keys) }

// MarshalJSON encodes the object keeping key order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := MarshalJSON(o.m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FuncKind records where a function came from.
type FuncKind int

const (
	// Native functions are implemented in Go.
	Native FuncKind = iota
	// Closure functions were defined inside an expression.
	Closure
)

// Function is a callable value.
type Function struct {
	Name string
	// Arity is the declared parameter count, -1 when variadic.
	Arity int
	// Pure functions may be folded by the simplifier.
	Pure bool
	Type FuncKind
	Call func(args []Value) (Value, error)
}

// NewFunction wraps a Go implementation as a native function.
func NewFunction(name string, arity int, call func(args []Value) (Value, error)) *Function {
	return &Function{Name: name, Arity: arity, Type: Native, Call: call}
}

func (*Function) Kind() Kind { return KindFunction }
func (f *Function) String() string {
	if f.Name == "" {
		return "function"
	}
	return f.Name
}
func (*Function) value() {}

// Invoke calls the function.
func (f *Function) Invoke(args ...Value) (Value, error) {
	return f.Call(args)
}

// FormatNumber formats n the way expression source spells numbers.
func FormatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	case n == math.Trunc(n) && math.Abs(n) < 1e21:
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// Truthy reports whether v counts as true in a boolean context.
func Truthy(v Value) bool {
	switch x := v.(type) {
	case Undefined, Null:
		return false
	case Bool:
		return bool(x)
	case Number:
		return conv.Ftot(float64(x))
	case String:
		return x != ""
	case *Array, *Object, *Function, *Future:
		return true
	}
	return false
}

// Equal reports strict equality: scalars compare by value, arrays, objects
// and functions by identity.
func Equal(a, b Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case Undefined, Null:
		return true
	case Bool:
		return x == b.(Bool)
	case Number:
		return x == b.(Number)
	case String:
		return x == b.(String)
	}
	return a == b
}

// IsNullish reports whether v is undefined or null.
func IsNullish(v Value) bool {
	k := v.Kind()
	return k == KindUndefined || k == KindNull
}

// Clone deep-copies arrays and objects; other values are returned as is.
func Clone(v Value) Value {
	switch x := v.(type) {
	case *Array:
		elems := make([]Value, len(x.Elems))
		for i, e := range x.Elems {
			elems[i] = Clone(e)
		}
		return &Array{Elems: elems}
	case *Object:
		o := NewObject()
		for _, k := range x.keys {
			o.Set(k, Clone(x.m[k]))
		}
		return o
	}
	return v
}

// FromGo converts a Go value into a Value. Supported inputs are nil, bool,
// numeric types, strings, slices of any, maps keyed by string, Values and
// Go functions of type func([]Value) (Value, error).
func FromGo(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case int:
		return Number(x), nil
	case int8:
		return Number(x), nil
	case int16:
		return Number(x), nil
	case int32:
		return Number(x), nil
	case int64:
		return Number(x), nil
	case uint:
		return Number(x), nil
	case uint8:
		return Number(x), nil
	case uint16:
		return Number(x), nil
	case uint32:
		return Number(x), nil
	case uint64:
		return Number(x), nil
	case float32:
		return Number(x), nil
	case float64:
		return Number(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, err
		}
		return Number(f), nil
	case string:
		return String(x), nil
	case []any:
		arr := &Array{Elems: make([]Value, len(x))}
		for i, e := range x {
			ev, err := FromGo(e)
			if err != nil {
				return nil, err
			}
			arr.Elems[i] = ev
		}
		return arr, nil
	case []float64:
		arr := &Array{Elems: make([]Value, len(x))}
		for i, e := range x {
			arr.Elems[i] = Number(e)
		}
		return arr, nil
	case []string:
		arr := &Array{Elems: make([]Value, len(x))}
		for i, e := range x {
			arr.Elems[i] = String(e)
		}
		return arr, nil
	case map[string]any:
		o := NewObject()
		for _, k := range sortedKeys(x) {
			ev, err := FromGo(x[k])
			if err != nil {
				return nil, err
			}
			o.Set(k, ev)
		}
		return o, nil
	case func([]Value) (Value, error):
		return NewFunction("", -1, x), nil
	}
	return nil, fmt.Errorf("unsupported value of type %T", v)
}

// ToGo converts v into plain Go data (nil, bool, float64, string, []any,
// map[string]any). Functions convert to their name; futures to nil.
func ToGo(v Value) any {
	switch x := v.(type) {
	case Undefined, Null:
		return nil
	case Bool:
		return bool(x)
	case Number:
		return float64(x)
	case String:
		return string(x)
	case *Array:
		out := make([]any, len(x.Elems))
		for i, e := range x.Elems {
			out[i] = ToGo(e)
		}
		return out
	case *Object:
		out := make(map[string]any, len(x.keys))
		for _, k := range x.keys {
			out[k] = ToGo(x.m[k])
		}
		return out
	case *Function:
		return x.String()
	}
	return nil
}

// MarshalJSON encodes v as JSON. Undefined encodes as null, non-finite
// numbers as null, functions as their name.
func MarshalJSON(v Value) ([]byte, error) {
	switch x := v.(type) {
	case Number:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(f)
	case *Array:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range x.Elems {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := MarshalJSON(e)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case *Object:
		return x.MarshalJSON()
	}
	return json.Marshal(ToGo(v))
}

// UnmarshalJSON decodes a JSON document into a Value. Object properties
// keep their document order.
func UnmarshalJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeJSON(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("invalid JSON: data after the top-level value")
	}
	return v, nil
}

func decodeJSON(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	d, ok := tok.(json.Delim)
	if !ok {
		return FromGo(tok)
	}
	switch d {
	case '[':
		arr := NewArray()
		for dec.More() {
			v, err := decodeJSON(dec)
			if err != nil {
				return nil, err
			}
			arr.Elems = append(arr.Elems, v)
		}
		_, err = dec.Token()
		return arr, err
	case '{':
		o := NewObject()
		for dec.More() {
			key, err := dec.Token()
			if err != nil {
				return nil, err
			}
			v, err := decodeJSON(dec)
			if err != nil {
				return nil, err
			}
			o.Set(key.(string), v)
		}
		_, err = dec.Token()
		return o, err
	}
	return nil, fmt.Errorf("invalid JSON: unexpected %v", d)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
