// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package eval

import (
	"slices"
	"strings"

	"nickandperla.net/xpr/internal/expr"
	"nickandperla.net/xpr/internal/ops"
)

// Symbols lists the names prog refers to, in order of first appearance.
// With withMembers set, a member chain such as a.b.c is reported as one
// dotted path instead of its root name.
func Symbols(prog []expr.Instruction, withMembers bool) []string {
	var out []string
	collectSymbols(prog, withMembers, &out)
	return out
}

func collectSymbols(prog []expr.Instruction, withMembers bool, out *[]string) {
	add := func(name string) {
		if !slices.Contains(*out, name) {
			*out = append(*out, name)
		}
	}
	path := ""
	for _, in := range prog {
		switch {
		case in.Op == expr.IVAR || in.Op == expr.IVARNAME:
			if !withMembers {
				add(in.Name)
				continue
			}
			if path != "" {
				add(path)
			}
			path = in.Name
		case in.Op == expr.IMEMBER && withMembers && path != "":
			path += "." + in.Name
		case in.Op == expr.IEXPR:
			// The pending path is flushed by whatever consumes the body, so
			// a guard like x.y is listed after the branches that extend it.
			collectSymbols(in.Body, withMembers, out)
		case path != "":
			add(path)
			path = ""
		}
	}
	if path != "" {
		add(path)
	}
}

// Variables is Symbols without the names of registered functions and unary
// operators.
func Variables(prog []expr.Instruction, reg *ops.Registry, withMembers bool) []string {
	if reg == nil {
		reg = ops.NewRegistry()
	}
	var out []string
	for _, name := range Symbols(prog, withMembers) {
		root := name
		if i := strings.IndexByte(name, '.'); i >= 0 {
			root = name[:i]
		}
		if reg.IsFunction(root) || reg.IsUnary(root) {
			continue
		}
		out = append(out, name)
	}
	return out
}
