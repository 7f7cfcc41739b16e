// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package scanner provides the on-demand xpr lexer.
package scanner

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	"nickandperla.net/xpr/internal/errs"
	"nickandperla.net/xpr/internal/token"
)

// Config tells the scanner which operators and names are live.
type Config struct {
	// Enabled reports whether an operator symbol may be used. Nil enables all.
	Enabled func(op string) bool
	// IsUnary reports whether name is a registered prefix operator.
	IsUnary func(name string) bool
	// IsConstant reports whether name is a declared constant.
	IsConstant func(name string) bool
}

// Scanner tokenizes xpr source one token per call.
type Scanner struct {
	src   string
	pos   int
	saved int
	cfg   Config
}

// New creates a new Scanner over src.
func New(src string, cfg Config) *Scanner {
	return &Scanner{src: src, cfg: cfg, saved: -1}
}

// Source returns the text being scanned.
func (s *Scanner) Source() string {
	return s.src
}

// Pos returns the current byte offset.
func (s *Scanner) Pos() int {
	return s.pos
}

// Save records the current position for a later Restore. Only one position
// is kept.
func (s *Scanner) Save() {
	s.saved = s.pos
}

// Restore rewinds to the position recorded by Save.
func (s *Scanner) Restore() {
	if s.saved >= 0 {
		s.pos = s.saved
	}
}

// Peek returns the next token without consuming it.
func (s *Scanner) Peek() (token.Token, error) {
	pos := s.pos
	tok, err := s.Next()
	s.pos = pos
	return tok, err
}

// Coordinates converts a byte offset into a 1-based line and column.
func (s *Scanner) Coordinates(offset int) (line, column int) {
	if offset > len(s.src) {
		offset = len(s.src)
	}
	line = 1 + strings.Count(s.src[:offset], "\n")
	lineStart := strings.LastIndexByte(s.src[:offset], '\n') + 1
	column = 1 + utf8.RuneCountInString(s.src[lineStart:offset])
	return line, column
}

// Position returns the error position of offset.
func (s *Scanner) Position(offset int) errs.Position {
	line, col := s.Coordinates(offset)
	return errs.Position{Offset: offset, Line: line, Column: col}
}

// Next returns the next token from the input.
func (s *Scanner) Next() (token.Token, error) {
	if err := s.skipSpace(); err != nil {
		return token.Token{}, err
	}
	if s.pos >= len(s.src) {
		return token.Token{Kind: token.EOF, Offset: s.pos}, nil
	}
	start := s.pos
	c := s.src[s.pos]

	if tok, ok := s.scanRadix(); ok {
		return tok, nil
	}
	if tok, ok := s.scanNumber(); ok {
		return tok, nil
	}
	if tok, ok := s.scanOperator(); ok {
		return tok, nil
	}
	switch c {
	case '"', '\'':
		return s.scanString()
	case '(', ')':
		return s.emit(token.PAREN, start, 1), nil
	case '[', ']':
		return s.emit(token.BRACKET, start, 1), nil
	case '{', '}':
		return s.emit(token.BRACE, start, 1), nil
	case ',':
		return s.emit(token.COMMA, start, 1), nil
	case ';':
		return s.emit(token.SEMICOLON, start, 1), nil
	}
	if tok, ok := s.scanWord(); ok {
		return tok, nil
	}
	r, _ := utf8.DecodeRuneInString(s.src[s.pos:])
	return token.Token{}, s.errorf(start, string(r), "unknown character %q", r)
}

func (s *Scanner) emit(kind token.Kind, start, n int) token.Token {
	s.pos = start + n
	return token.Token{Kind: kind, Text: s.src[start:s.pos], Offset: start}
}

func (s *Scanner) enabled(op string) bool {
	return s.cfg.Enabled == nil || s.cfg.Enabled(op)
}

func (s *Scanner) errorf(offset int, tok, format string, args ...any) error {
	return errs.Syntax(s.Position(offset), tok, s.src, format, args...)
}

func (s *Scanner) skipSpace() error {
	for s.pos < len(s.src) {
		r, size := utf8.DecodeRuneInString(s.src[s.pos:])
		switch {
		case unicode.IsSpace(r):
			s.pos += size
		case strings.HasPrefix(s.src[s.pos:], "/*"):
			end := strings.Index(s.src[s.pos+2:], "*/")
			if end < 0 {
				return s.errorf(s.pos, "/*", "unterminated comment")
			}
			s.pos += 2 + end + 2
		default:
			return nil
		}
	}
	return nil
}

func (s *Scanner) scanRadix() (token.Token, bool) {
	rest := s.src[s.pos:]
	if len(rest) < 3 || rest[0] != '0' {
		return token.Token{}, false
	}
	base := 0
	switch rest[1] {
	case 'x', 'X':
		base = 16
	case 'b', 'B':
		base = 2
	default:
		return token.Token{}, false
	}
	n := 2
	for n < len(rest) && isDigitIn(rest[n], base) {
		n++
	}
	if n == 2 {
		return token.Token{}, false
	}
	v, err := strconv.ParseUint(rest[2:n], base, 64)
	if err != nil {
		return token.Token{}, false
	}
	start := s.pos
	s.pos += n
	return token.Token{Kind: token.NUMBER, Text: rest[:n], Number: float64(v), Offset: start}, true
}

func isDigitIn(c byte, base int) bool {
	if base == 2 {
		return c == '0' || c == '1'
	}
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func (s *Scanner) scanNumber() (token.Token, bool) {
	rest := s.src[s.pos:]
	n, digits := 0, 0
	for n < len(rest) && isDigit(rest[n]) {
		n++
		digits++
	}
	if n < len(rest) && rest[n] == '.' {
		m := n + 1
		for m < len(rest) && isDigit(rest[m]) {
			m++
			digits++
		}
		if digits > 0 {
			n = m
		}
	}
	if digits == 0 {
		return token.Token{}, false
	}
	if n < len(rest) && (rest[n] == 'e' || rest[n] == 'E') {
		m := n + 1
		if m < len(rest) && (rest[m] == '+' || rest[m] == '-') {
			m++
		}
		if m < len(rest) && isDigit(rest[m]) {
			for m < len(rest) && isDigit(rest[m]) {
				m++
			}
			n = m
		}
	}
	v, err := strconv.ParseFloat(rest[:n], 64)
	if err != nil {
		return token.Token{}, false
	}
	start := s.pos
	s.pos += n
	return token.Token{Kind: token.NUMBER, Text: rest[:n], Number: v, Offset: start}, true
}

var compoundOps = []string{">=", "<=", "==", "!=", "&&", "||", "??"}

func (s *Scanner) scanOperator() (token.Token, bool) {
	rest := s.src[s.pos:]
	start := s.pos
	for _, op := range compoundOps {
		if strings.HasPrefix(rest, op) && s.enabled(op) {
			s.pos += len(op)
			text := op
			if op == "&&" {
				text = "and"
			}
			return token.Token{Kind: token.OP, Text: text, Offset: start}, true
		}
	}
	r, size := utf8.DecodeRuneInString(rest)
	if r == token.RuneBulletOp || r == token.RuneBullet {
		if !s.enabled("*") {
			return token.Token{}, false
		}
		s.pos += size
		return token.Token{Kind: token.OP, Text: "*", Offset: start}, true
	}
	switch r {
	case '+', '-', '*', '/', '%', '^', '!', '<', '>', '?', ':', '=', '.':
		op := string(r)
		// '.' and ':' also delimit member access and object literals.
		if op != "." && op != ":" && !s.enabled(op) {
			return token.Token{}, false
		}
		s.pos += size
		return token.Token{Kind: token.OP, Text: op, Offset: start}, true
	}
	return token.Token{}, false
}

func (s *Scanner) scanString() (token.Token, error) {
	start := s.pos
	quote := s.src[s.pos]
	s.pos++
	var sb strings.Builder
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if c == quote {
			s.pos++
			return token.Token{Kind: token.STRING, Text: sb.String(), Offset: start}, nil
		}
		if c != '\\' {
			r, size := utf8.DecodeRuneInString(s.src[s.pos:])
			sb.WriteRune(r)
			s.pos += size
			continue
		}
		escStart := s.pos
		s.pos++
		if s.pos >= len(s.src) {
			break
		}
		switch e := s.src[s.pos]; e {
		case '\'', '"', '\\', '/':
			sb.WriteByte(e)
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case 'u':
			if s.pos+5 > len(s.src) {
				return token.Token{}, s.errorf(escStart, s.src[escStart:], "illegal escape sequence: %s", s.src[escStart:])
			}
			hex := s.src[s.pos+1 : s.pos+5]
			code, err := strconv.ParseUint(hex, 16, 32)
			if err != nil {
				return token.Token{}, s.errorf(escStart, `\u`+hex, `illegal escape sequence: \u%s`, hex)
			}
			r := rune(code)
			s.pos += 4
			if r >= 0xD800 && r < 0xDC00 {
				if lo, ok := s.lowSurrogate(); ok {
					r = utf16.DecodeRune(r, lo)
					s.pos += 6
				}
			}
			sb.WriteRune(r)
		default:
			return token.Token{}, s.errorf(escStart, `\`+string(e), `illegal escape sequence: \%c`, e)
		}
		s.pos++
	}
	return token.Token{}, s.errorf(start, s.src[start:], "unterminated string")
}

// lowSurrogate decodes a \uXXXX low surrogate following the escape that
// ends at s.pos.
func (s *Scanner) lowSurrogate() (rune, bool) {
	i := s.pos + 1
	if i+6 > len(s.src) || s.src[i] != '\\' || s.src[i+1] != 'u' {
		return 0, false
	}
	code, err := strconv.ParseUint(s.src[i+2:i+6], 16, 32)
	if err != nil || code < 0xDC00 || code > 0xDFFF {
		return 0, false
	}
	return rune(code), true
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentChar(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// scanWord scans identifiers and classifies them as named operators,
// constants, keywords, unary operators or plain names.
func (s *Scanner) scanWord() (token.Token, bool) {
	start := s.pos
	i := s.pos
	dollars := 0
	for i < len(s.src) && s.src[i] == '$' && dollars < 2 {
		i++
		dollars++
	}
	r, size := utf8.DecodeRuneInString(s.src[i:])
	if i >= len(s.src) || !isIdentStart(r) {
		return token.Token{}, false
	}
	i += size
	for i < len(s.src) {
		r, size = utf8.DecodeRuneInString(s.src[i:])
		if !isIdentChar(r) {
			break
		}
		i += size
	}
	word := s.src[start:i]
	s.pos = i
	if dollars > 0 {
		return token.Token{Kind: token.NAME, Text: word, Offset: start}, true
	}

	switch word {
	case "and", "or", "in", "as":
		if s.enabled(word) {
			return token.Token{Kind: token.OP, Text: word, Offset: start}, true
		}
	case "not":
		if end, ok := s.lookaheadIn(i); ok && s.enabled("not in") {
			s.pos = end
			return token.Token{Kind: token.OP, Text: "not in", Offset: start}, true
		}
	}
	switch {
	case s.cfg.IsConstant != nil && s.cfg.IsConstant(word):
		return token.Token{Kind: token.CONST, Text: word, Offset: start}, true
	case token.IsKeyword(word):
		return token.Token{Kind: token.KEYWORD, Text: word, Offset: start}, true
	case s.cfg.IsUnary != nil && s.cfg.IsUnary(word) && s.enabled(word):
		return token.Token{Kind: token.OP, Text: word, Offset: start}, true
	}
	return token.Token{Kind: token.NAME, Text: word, Offset: start}, true
}

// lookaheadIn reports whether the word "in" follows offset after whitespace,
// returning the offset just past it.
func (s *Scanner) lookaheadIn(offset int) (int, bool) {
	j := offset
	for j < len(s.src) && (s.src[j] == ' ' || s.src[j] == '\t' || s.src[j] == '\n' || s.src[j] == '\r') {
		j++
	}
	if j == offset || !strings.HasPrefix(s.src[j:], "in") {
		return 0, false
	}
	end := j + 2
	if end < len(s.src) {
		r, _ := utf8.DecodeRuneInString(s.src[end:])
		if isIdentChar(r) {
			return 0, false
		}
	}
	return end, true
}
