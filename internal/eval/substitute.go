// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package eval

import "nickandperla.net/xpr/internal/expr"

// Substitute returns a copy of prog in which every reference to the variable
// name, including references inside lazy bodies, is replaced by a copy of
// replacement. Assignment targets are not references and stay as they are.
func Substitute(prog []expr.Instruction, name string, replacement []expr.Instruction) []expr.Instruction {
	out := make([]expr.Instruction, 0, len(prog))
	for _, in := range prog {
		switch {
		case in.Op == expr.IVAR && in.Name == name:
			out = append(out, expr.CloneProgram(replacement)...)
		case in.Op == expr.IEXPR:
			out = append(out, expr.Lazy(Substitute(in.Body, name, replacement)))
		default:
			out = append(out, expr.CloneProgram([]expr.Instruction{in})...)
		}
	}
	return out
}
