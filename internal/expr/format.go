// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package expr

import (
	"fmt"
	"math"
	"strings"
	"unicode"
)

// Format regenerates expression source from a program. Every operator
// application is parenthesised, so the output parses back to an equivalent
// program.
func Format(prog []Instruction) string {
	var (
		stack   []string
		stmts   []string
		objects [][]string
	)
	pop := func() string {
		if len(stack) == 0 {
			return "?"
		}
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return s
	}
	popN := func(n int) []string {
		out := make([]string, n)
		for i := n - 1; i >= 0; i-- {
			out[i] = pop()
		}
		return out
	}

	for _, in := range prog {
		switch in.Op {
		case INUMBER:
			stack = append(stack, FormatLiteral(in.Value))
		case IVAR, IVARNAME:
			stack = append(stack, in.Name)
		case IUNDEFINED:
			stack = append(stack, "undefined")
		case IOP1:
			a := pop()
			switch in.Name {
			case "-", "+":
				stack = append(stack, "("+in.Name+a+")")
			case "!":
				stack = append(stack, "("+a+"!)")
			default:
				stack = append(stack, "("+in.Name+" "+a+")")
			}
		case IOP2:
			b, a := pop(), pop()
			if in.Name == "[" {
				stack = append(stack, a+"["+b+"]")
			} else {
				stack = append(stack, "("+a+" "+in.Name+" "+b+")")
			}
		case IOP3:
			c, b, a := pop(), pop(), pop()
			switch in.Name {
			case "?":
				stack = append(stack, "("+a+" ? "+b+" : "+c+")")
			case "=":
				stack = append(stack, "("+a+"["+b+"] = "+c+")")
			default:
				stack = append(stack, in.Name+"("+a+", "+b+", "+c+")")
			}
		case IFUNCALL:
			args := popN(in.Count)
			callee := pop()
			stack = append(stack, callee+"("+strings.Join(args, ", ")+")")
		case IFUNDEF:
			body := pop()
			params := popN(in.Count)
			name := pop()
			stack = append(stack, "("+name+"("+strings.Join(params, ", ")+") = "+body+")")
		case IMEMBER:
			stack = append(stack, pop()+"."+in.Name)
		case IARRAY:
			stack = append(stack, "["+strings.Join(popN(in.Count), ", ")+"]")
		case IOBJECT:
			objects = append(objects, nil)
		case IPROPERTY:
			v := pop()
			if len(objects) > 0 {
				objects[len(objects)-1] = append(objects[len(objects)-1], formatKey(in.Name)+": "+v)
			}
		case IOBJECTEND:
			var props []string
			if len(objects) > 0 {
				props = objects[len(objects)-1]
				objects = objects[:len(objects)-1]
			}
			stack = append(stack, "{"+strings.Join(props, ", ")+"}")
		case IENDSTATEMENT:
			stmts = append(stmts, pop())
		case IEXPR:
			stack = append(stack, "("+Format(in.Body)+")")
		case IWHENMATCH, IWHENCOND:
			v, c := pop(), pop()
			stack = append(stack, "when "+c+" then "+v)
		case ICASEELSE:
			stack = append(stack, "else "+pop())
		case ICASEMATCH:
			branches := popN(in.Count)
			subject := pop()
			stack = append(stack, "(case "+subject+" "+strings.Join(branches, " ")+" end)")
		case ICASECOND:
			branches := popN(in.Count)
			pop()
			stack = append(stack, "(case "+strings.Join(branches, " ")+" end)")
		}
	}
	return strings.Join(append(stmts, stack...), "; ")
}

// FormatLiteral renders a value as source text.
func FormatLiteral(v Value) string {
	switch x := v.(type) {
	case nil:
		return "undefined"
	case Number:
		f := float64(x)
		if f < 0 || (f == 0 && math.Signbit(f)) {
			return "(" + FormatNumber(f) + ")"
		}
		return FormatNumber(f)
	case String:
		return Quote(string(x))
	case *Array:
		parts := make([]string, len(x.Elems))
		for i, e := range x.Elems {
			parts[i] = FormatLiteral(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Object:
		parts := make([]string, 0, x.Len())
		for _, k := range x.keys {
			parts = append(parts, formatKey(k)+": "+FormatLiteral(x.m[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return v.String()
}

// Quote returns s as a double-quoted string literal using only the escapes
// the scanner understands.
func Quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		case '\b':
			sb.WriteString(`\b`)
		case '\f':
			sb.WriteString(`\f`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&sb, `\u%04x`, r)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

func formatKey(k string) string {
	if isIdentifier(k) {
		return k
	}
	return Quote(k)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	switch s {
	case "case", "when", "then", "else", "end", "and", "or", "in", "not", "as":
		return false
	}
	return true
}
