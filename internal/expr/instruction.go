// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package expr

import (
	"fmt"
	"strings"
)

// Op is an instruction opcode.
type Op int

const (
	INUMBER       Op = iota // push literal Value
	IVAR                    // push resolved variable Name
	IVARNAME                // push Name as an assignment target
	IUNDEFINED              // push Undefined
	IOP1                    // unary operator Name
	IOP2                    // binary operator Name
	IOP3                    // ternary operator Name
	IFUNCALL                // call with Count arguments
	IFUNDEF                 // define function with Count parameters
	IMEMBER                 // property access Name
	IARRAY                  // array literal of Count elements
	IOBJECT                 // start object literal
	IPROPERTY               // set property Name on the pending object
	IOBJECTEND              // finish object literal
	IENDSTATEMENT           // discard the previous statement value
	IEXPR                   // lazy sub-program Body
	ICASEMATCH              // case with subject, Count branches
	ICASECOND               // case without subject, Count branches
	IWHENMATCH              // when compared against the subject
	IWHENCOND               // when evaluated as a condition
	ICASEELSE               // else branch
)

var opNames = [...]string{
	INUMBER:       "INUMBER",
	IVAR:          "IVAR",
	IVARNAME:      "IVARNAME",
	IUNDEFINED:    "IUNDEFINED",
	IOP1:          "IOP1",
	IOP2:          "IOP2",
	IOP3:          "IOP3",
	IFUNCALL:      "IFUNCALL",
	IFUNDEF:       "IFUNDEF",
	IMEMBER:       "IMEMBER",
	IARRAY:        "IARRAY",
	IOBJECT:       "IOBJECT",
	IPROPERTY:     "IPROPERTY",
	IOBJECTEND:    "IOBJECTEND",
	IENDSTATEMENT: "IENDSTATEMENT",
	IEXPR:         "IEXPR",
	ICASEMATCH:    "ICASEMATCH",
	ICASECOND:     "ICASECOND",
	IWHENMATCH:    "IWHENMATCH",
	IWHENCOND:     "IWHENCOND",
	ICASEELSE:     "ICASEELSE",
}

// String returns the opcode name.
func (o Op) String() string {
	if int(o) >= 0 && int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Instruction is one step of a postfix program. Which payload field is used
// depends on Op.
type Instruction struct {
	Op    Op
	Value Value         // INUMBER
	Name  string        // IVAR, IVARNAME, IOP1-3, IMEMBER, IPROPERTY
	Count int           // IFUNCALL, IFUNDEF, IARRAY, case/when opcodes
	Body  []Instruction // IEXPR
}

// Literal creates an INUMBER instruction.
func Literal(v Value) Instruction { return Instruction{Op: INUMBER, Value: v} }

// Var creates an IVAR instruction.
func Var(name string) Instruction { return Instruction{Op: IVAR, Name: name} }

// VarName creates an IVARNAME instruction.
func VarName(name string) Instruction { return Instruction{Op: IVARNAME, Name: name} }

// Unary creates an IOP1 instruction.
func Unary(op string) Instruction { return Instruction{Op: IOP1, Name: op} }

// Binary creates an IOP2 instruction.
func Binary(op string) Instruction { return Instruction{Op: IOP2, Name: op} }

// Ternary creates an IOP3 instruction.
func Ternary(op string) Instruction { return Instruction{Op: IOP3, Name: op} }

// Lazy creates an IEXPR instruction.
func Lazy(body []Instruction) Instruction { return Instruction{Op: IEXPR, Body: body} }

// Counted creates an instruction whose payload is a count.
func Counted(op Op, n int) Instruction { return Instruction{Op: op, Count: n} }

// String returns a debugging display form.
func (in Instruction) String() string {
	switch in.Op {
	case INUMBER:
		if s, ok := in.Value.(String); ok {
			return fmt.Sprintf("%s %q", in.Op, string(s))
		}
		return fmt.Sprintf("%s %s", in.Op, in.Value)
	case IVAR, IVARNAME, IOP1, IOP2, IOP3, IMEMBER, IPROPERTY:
		return fmt.Sprintf("%s %s", in.Op, in.Name)
	case IFUNCALL, IFUNDEF, IARRAY, ICASEMATCH, ICASECOND, IWHENMATCH, IWHENCOND, ICASEELSE:
		return fmt.Sprintf("%s %d", in.Op, in.Count)
	case IEXPR:
		return fmt.Sprintf("%s [%s]", in.Op, Dump(in.Body))
	}
	return in.Op.String()
}

// Dump returns the debugging form of a whole program.
func Dump(prog []Instruction) string {
	parts := make([]string, len(prog))
	for i, in := range prog {
		parts[i] = in.String()
	}
	return strings.Join(parts, ", ")
}

// CloneProgram deep-copies prog, including nested bodies and literal arrays
// and objects, so rewritten programs never alias the original.
func CloneProgram(prog []Instruction) []Instruction {
	if prog == nil {
		return nil
	}
	out := make([]Instruction, len(prog))
	for i, in := range prog {
		out[i] = in
		if in.Value != nil {
			out[i].Value = Clone(in.Value)
		}
		if in.Body != nil {
			out[i].Body = CloneProgram(in.Body)
		}
	}
	return out
}
