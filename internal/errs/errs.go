// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package errs defines the xpr error taxonomy. Every error carries the
// structured context needed to build an actionable message, populated where
// the error is raised.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Position is a location in expression source.
type Position struct {
	Offset int
	Line   int // 1-based
	Column int // 1-based
}

// Context is the structured detail attached to every xpr error.
type Context struct {
	Position     *Position
	Token        string
	Expression   string
	VariableName string
	FunctionName string
	PropertyName string
}

// Details returns the error context.
func (c *Context) Details() *Context { return c }

func (c *Context) at() string {
	if c.Position == nil {
		return ""
	}
	return fmt.Sprintf(" [%d:%d]", c.Position.Line, c.Position.Column)
}

// SyntaxError reports a lexing or grammar violation.
type SyntaxError struct {
	Message string
	Context
}

func (e *SyntaxError) Error() string {
	return "parse error" + e.at() + ": " + e.Message
}

// VariableError reports a variable that could not be resolved.
type VariableError struct {
	Message string
	Context
}

func (e *VariableError) Error() string {
	return e.Message
}

// AccessError reports denied member or property access.
type AccessError struct {
	Message string
	Context
}

func (e *AccessError) Error() string {
	return "access error" + e.at() + ": " + e.Message
}

// FunctionError reports an attempt to invoke something that is not callable.
type FunctionError struct {
	Message string
	Context
}

func (e *FunctionError) Error() string {
	return e.Message
}

// EvaluationError reports a type mismatch or an internal invariant violation
// such as a malformed program.
type EvaluationError struct {
	Message string
	Context
}

func (e *EvaluationError) Error() string {
	return e.Message
}

// Syntax builds a positioned syntax error.
func Syntax(pos Position, tok, expression, format string, args ...any) *SyntaxError {
	return &SyntaxError{
		Message: fmt.Sprintf(format, args...),
		Context: Context{Position: &pos, Token: tok, Expression: expression},
	}
}

// UndefinedVariable builds the error raised for an unresolved name.
func UndefinedVariable(name, expression string) *VariableError {
	return &VariableError{
		Message: "undefined variable: " + name,
		Context: Context{Token: name, VariableName: name, Expression: expression},
	}
}

// Access builds an access error for a denied property or variable.
func Access(property, expression, format string, args ...any) *AccessError {
	return &AccessError{
		Message: fmt.Sprintf(format, args...),
		Context: Context{PropertyName: property, Expression: expression},
	}
}

// NotCallable builds a function error for a value that cannot be invoked.
func NotCallable(callee, expression string) *FunctionError {
	return &FunctionError{
		Message: callee + " is not a function",
		Context: Context{FunctionName: callee, Expression: expression},
	}
}

// Evaluation builds a generic evaluation error.
func Evaluation(expression, format string, args ...any) *EvaluationError {
	return &EvaluationError{
		Message: fmt.Sprintf(format, args...),
		Context: Context{Expression: expression},
	}
}

// Kind names the taxonomy class of err, or "" for foreign errors.
func Kind(err error) string {
	var (
		se *SyntaxError
		ve *VariableError
		ae *AccessError
		fe *FunctionError
		ee *EvaluationError
	)
	switch {
	case errors.As(err, &se):
		return "SyntaxError"
	case errors.As(err, &ve):
		return "VariableError"
	case errors.As(err, &ae):
		return "AccessError"
	case errors.As(err, &fe):
		return "FunctionError"
	case errors.As(err, &ee):
		return "EvaluationError"
	}
	return ""
}

// ContextOf extracts the structured context from any xpr error.
func ContextOf(err error) *Context {
	var d interface{ Details() *Context }
	if errors.As(err, &d) {
		return d.Details()
	}
	return nil
}

// Snippet renders a caret-annotated excerpt of src for positioned errors:
//
//	parse error [2:5]: unexpected TOP: )
//
//	   1 | a = 1;
//	   2 | b = )
//	     |     ^
//
// Errors without a position are returned unchanged as text.
func Snippet(err error, src string) string {
	c := ContextOf(err)
	if c == nil || c.Position == nil {
		return err.Error()
	}
	lines := strings.Split(src, "\n")
	ln := c.Position.Line
	if ln < 1 {
		ln = 1
	}
	if ln > len(lines) {
		ln = len(lines)
	}
	col := c.Position.Column
	if col < 1 {
		col = 1
	}

	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n\n")
	width := len(fmt.Sprint(ln + 1))
	if ln > 1 {
		fmt.Fprintf(&sb, "  %*d | %s\n", width, ln-1, lines[ln-2])
	}
	fmt.Fprintf(&sb, "  %*d | %s\n", width, ln, lines[ln-1])
	fmt.Fprintf(&sb, "  %*s | %s^\n", width, "", strings.Repeat(" ", col-1))
	if ln < len(lines) {
		fmt.Fprintf(&sb, "  %*d | %s\n", width, ln+1, lines[ln])
	}
	return strings.TrimRight(sb.String(), "\n")
}
