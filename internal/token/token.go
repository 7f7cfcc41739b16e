// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package token defines xpr token kinds and the lexical tables shared by the
// scanner and the parser.
package token

import "fmt"

// Kind represents an xpr token kind.
type Kind int

const (
	EOF Kind = iota
	NUMBER
	STRING
	OP
	NAME
	KEYWORD
	CONST
	PAREN
	BRACKET
	BRACE
	COMMA
	SEMICOLON
)

// String returns the string representation of a token kind.
func (k Kind) String() string {
	switch k {
	case EOF:
		return "EOF"
	case NUMBER:
		return "NUMBER"
	case STRING:
		return "STRING"
	case OP:
		return "OP"
	case NAME:
		return "NAME"
	case KEYWORD:
		return "KEYWORD"
	case CONST:
		return "CONST"
	case PAREN:
		return "PAREN"
	case BRACKET:
		return "BRACKET"
	case BRACE:
		return "BRACE"
	case COMMA:
		return "COMMA"
	case SEMICOLON:
		return "SEMICOLON"
	}
	return "UNKNOWN"
}

// Token is a single lexeme.
type Token struct {
	Kind   Kind
	Text   string  // operator symbol, name, keyword, decoded string or delimiter
	Number float64 // NUMBER only
	Offset int     // byte offset of the first character in the source
}

// Is reports whether the token has the given kind and text.
func (t Token) Is(k Kind, text string) bool {
	return t.Kind == k && t.Text == text
}

// String returns a display form used in error messages.
func (t Token) String() string {
	switch t.Kind {
	case EOF:
		return "EOF"
	case NUMBER:
		return fmt.Sprintf("NUMBER: %v", t.Number)
	case STRING:
		return fmt.Sprintf("STRING: %q", t.Text)
	}
	return t.Kind.String() + ": " + t.Text
}

// Keywords are reserved words of the case/when block.
var Keywords = map[string]bool{
	"case": true,
	"when": true,
	"then": true,
	"else": true,
	"end":  true,
}

// IsKeyword reports whether name is reserved.
func IsKeyword(name string) bool {
	return Keywords[name]
}

// Unicode multiplication signs accepted as '*'.
const (
	RuneBulletOp = '∙' // U+2219
	RuneBullet   = '•' // U+2022
)

// optionNames maps operator symbols onto the stable option key that enables
// or disables them. Symbols missing here use their own text as option key.
var optionNames = map[string]string{
	"+":      "add",
	"-":      "subtract",
	"*":      "multiply",
	"/":      "divide",
	"%":      "remainder",
	"^":      "power",
	"!":      "factorial",
	"<":      "comparison",
	">":      "comparison",
	"<=":     "comparison",
	">=":     "comparison",
	"==":     "comparison",
	"!=":     "comparison",
	"||":     "concatenate",
	"and":    "logical",
	"or":     "logical",
	"not":    "logical",
	"&&":     "logical",
	"?":      "conditional",
	":":      "conditional",
	"=":      "assignment",
	"[":      "array",
	"{":      "object",
	"()=":    "fndef",
	"in":     "in",
	"not in": "in",
	"??":     "coalesce",
	"as":     "conversion",
}

// OptionName returns the option key controlling the operator symbol.
func OptionName(op string) string {
	if name, ok := optionNames[op]; ok {
		return name
	}
	return op
}
