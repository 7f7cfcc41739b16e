// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package parser compiles xpr source into a postfix instruction program.
package parser

import (
	"nickandperla.net/xpr/internal/errs"
	"nickandperla.net/xpr/internal/expr"
	"nickandperla.net/xpr/internal/ops"
	"nickandperla.net/xpr/internal/scanner"
	"nickandperla.net/xpr/internal/token"
)

// Config carries the operator tables the grammar is checked against.
type Config struct {
	Registry *ops.Registry
}

// Parse compiles src. Parsing stops at the first error.
func Parse(src string, cfg Config) ([]expr.Instruction, error) {
	reg := cfg.Registry
	if reg == nil {
		reg = ops.NewRegistry()
	}
	p := &parser{
		src: src,
		reg: reg,
		sc: scanner.New(src, scanner.Config{
			Enabled:    reg.Enabled,
			IsUnary:    reg.IsUnary,
			IsConstant: reg.IsConstant,
		}),
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	var prog []expr.Instruction
	if err := p.parseSequence(&prog); err != nil {
		return nil, err
	}
	if p.next.Kind != token.EOF {
		return nil, p.unexpected(p.next)
	}
	return prog, nil
}

type snapshot struct {
	current, next token.Token
}

type parser struct {
	src     string
	reg     *ops.Registry
	sc      *scanner.Scanner
	current token.Token
	next    token.Token
	saved   snapshot
}

func (p *parser) advance() error {
	tok, err := p.sc.Next()
	if err != nil {
		return err
	}
	p.current, p.next = p.next, tok
	return nil
}

func (p *parser) save() {
	p.sc.Save()
	p.saved = snapshot{p.current, p.next}
}

func (p *parser) restore() {
	p.sc.Restore()
	p.current, p.next = p.saved.current, p.saved.next
}

// accept consumes the lookahead when it matches kind and, if non-empty, text.
func (p *parser) accept(kind token.Kind, text string) (bool, error) {
	if p.next.Kind != kind || (text != "" && p.next.Text != text) {
		return false, nil
	}
	return true, p.advance()
}

// acceptOp consumes an operator token whose text is one of set.
func (p *parser) acceptOp(set map[string]bool) (bool, error) {
	if p.next.Kind != token.OP || !set[p.next.Text] {
		return false, nil
	}
	return true, p.advance()
}

func (p *parser) expect(kind token.Kind, text, what string) error {
	ok, err := p.accept(kind, text)
	if err != nil {
		return err
	}
	if !ok {
		return p.errorf(p.next, "expected %s, got %s", what, p.next)
	}
	return nil
}

func (p *parser) errorf(tok token.Token, format string, args ...any) error {
	return errs.Syntax(p.sc.Position(tok.Offset), tok.Text, p.src, format, args...)
}

func (p *parser) unexpected(tok token.Token) error {
	return p.errorf(tok, "unexpected %s", tok)
}

func (p *parser) atStatementEnd() bool {
	switch p.next.Kind {
	case token.EOF:
		return true
	case token.PAREN:
		return p.next.Text == ")"
	}
	return false
}

// parseSequence parses statements separated by ';'. More than one statement
// compiles to a single lazy body with IENDSTATEMENT separators.
func (p *parser) parseSequence(out *[]expr.Instruction) error {
	var body []expr.Instruction
	n := 0
	for {
		if n > 0 {
			body = append(body, expr.Instruction{Op: expr.IENDSTATEMENT})
		}
		if err := p.parseAssignment(&body); err != nil {
			return err
		}
		n++
		ok, err := p.accept(token.SEMICOLON, "")
		if err != nil {
			return err
		}
		if !ok || p.atStatementEnd() {
			break
		}
	}
	if n == 1 {
		*out = append(*out, body...)
		return nil
	}
	*out = append(*out, expr.Lazy(body))
	return nil
}

func (p *parser) parseAssignment(out *[]expr.Instruction) error {
	start := len(*out)
	if err := p.parseConditional(out); err != nil {
		return err
	}
	if p.next.Kind != token.OP || p.next.Text != "=" {
		return nil
	}
	eq := p.next
	if err := p.advance(); err != nil {
		return err
	}

	target := (*out)[start:]
	last := target[len(target)-1]
	var value []expr.Instruction
	switch {
	case last.Op == expr.IVAR && len(target) == 1:
		if err := p.parseAssignment(&value); err != nil {
			return err
		}
		target[0] = expr.VarName(last.Name)
		*out = append(*out, expr.Lazy(value), expr.Binary("="))

	case last.Op == expr.IFUNCALL:
		if !p.reg.Enabled("()=") {
			return p.errorf(eq, "function definition is not permitted")
		}
		if len(target) != last.Count+2 {
			return p.errorf(eq, "expected variable for function definition")
		}
		for i := 0; i <= last.Count; i++ {
			if target[i].Op != expr.IVAR {
				return p.errorf(eq, "function name and parameters must be plain variables")
			}
			target[i] = expr.VarName(target[i].Name)
		}
		if err := p.parseAssignment(&value); err != nil {
			return err
		}
		*out = (*out)[:len(*out)-1]
		*out = append(*out, expr.Lazy(value), expr.Counted(expr.IFUNDEF, last.Count))

	case last.Op == expr.IMEMBER:
		if err := p.parseAssignment(&value); err != nil {
			return err
		}
		*out = (*out)[:len(*out)-1]
		*out = append(*out, expr.Literal(expr.String(last.Name)), expr.Lazy(value), expr.Ternary("="))

	case last.Op == expr.IOP2 && last.Name == "[":
		if err := p.parseAssignment(&value); err != nil {
			return err
		}
		*out = (*out)[:len(*out)-1]
		*out = append(*out, expr.Lazy(value), expr.Ternary("="))

	default:
		return p.errorf(eq, "expected variable for assignment")
	}
	return nil
}

func (p *parser) parseConditional(out *[]expr.Instruction) error {
	if err := p.parseOr(out); err != nil {
		return err
	}
	ok, err := p.acceptOp(map[string]bool{"?": true})
	if err != nil || !ok {
		return err
	}
	var yes, no []expr.Instruction
	if err := p.parseConditional(&yes); err != nil {
		return err
	}
	if err := p.expect(token.OP, ":", "':'"); err != nil {
		return err
	}
	if err := p.parseConditional(&no); err != nil {
		return err
	}
	*out = append(*out, expr.Lazy(yes), expr.Lazy(no), expr.Ternary("?"))
	return nil
}

// parseLazy parses a left-associative chain whose right operands are
// deferred.
func (p *parser) parseLazy(out *[]expr.Instruction, op string, next func(*[]expr.Instruction) error) error {
	if err := next(out); err != nil {
		return err
	}
	set := map[string]bool{op: true}
	for {
		ok, err := p.acceptOp(set)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		var rhs []expr.Instruction
		if err := next(&rhs); err != nil {
			return err
		}
		*out = append(*out, expr.Lazy(rhs), expr.Binary(op))
	}
}

func (p *parser) parseOr(out *[]expr.Instruction) error {
	return p.parseLazy(out, "or", p.parseAnd)
}

func (p *parser) parseAnd(out *[]expr.Instruction) error {
	return p.parseLazy(out, "and", p.parseComparison)
}

// parseBinary parses a left-associative chain of eager binary operators.
func (p *parser) parseBinary(out *[]expr.Instruction, set map[string]bool, next func(*[]expr.Instruction) error) error {
	if err := next(out); err != nil {
		return err
	}
	for {
		ok, err := p.acceptOp(set)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		op := p.current.Text
		if err := next(out); err != nil {
			return err
		}
		*out = append(*out, expr.Binary(op))
	}
}

var (
	comparisonOps     = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true, "in": true, "not in": true}
	additiveOps       = map[string]bool{"+": true, "-": true, "||": true}
	multiplicativeOps = map[string]bool{"*": true, "/": true, "%": true}
	coalesceOps       = map[string]bool{"??": true, "as": true}
)

func (p *parser) parseComparison(out *[]expr.Instruction) error {
	return p.parseBinary(out, comparisonOps, p.parseAdditive)
}

func (p *parser) parseAdditive(out *[]expr.Instruction) error {
	return p.parseBinary(out, additiveOps, p.parseMultiplicative)
}

func (p *parser) parseMultiplicative(out *[]expr.Instruction) error {
	return p.parseBinary(out, multiplicativeOps, p.parseCoalesce)
}

func (p *parser) parseCoalesce(out *[]expr.Instruction) error {
	return p.parseBinary(out, coalesceOps, p.parseUnary)
}

// parseUnary speculatively consumes a prefix operator. A word operator that
// is followed by '(' is reparsed as a call, and one used as a value is
// reparsed as an atom.
func (p *parser) parseUnary(out *[]expr.Instruction) error {
	if p.next.Kind != token.OP || !p.reg.IsPrefix(p.next.Text) {
		return p.parseExponential(out)
	}
	p.save()
	if err := p.advance(); err != nil {
		return err
	}
	op := p.current.Text
	if op != "-" && op != "+" {
		if p.next.Is(token.PAREN, "(") || p.valueFollows() {
			p.restore()
			return p.parseExponential(out)
		}
	}
	if err := p.parseUnary(out); err != nil {
		return err
	}
	*out = append(*out, expr.Unary(op))
	return nil
}

// valueFollows reports whether the lookahead ends an operand, meaning the
// operator just consumed stands alone as a value.
func (p *parser) valueFollows() bool {
	switch p.next.Kind {
	case token.EOF, token.SEMICOLON, token.COMMA:
		return true
	case token.PAREN:
		return p.next.Text == ")"
	case token.BRACKET:
		return p.next.Text == "]"
	case token.BRACE:
		return p.next.Text == "}"
	case token.KEYWORD:
		return p.next.Text != "case"
	}
	return false
}

func (p *parser) parseExponential(out *[]expr.Instruction) error {
	if err := p.parseFactorial(out); err != nil {
		return err
	}
	ok, err := p.acceptOp(map[string]bool{"^": true})
	if err != nil || !ok {
		return err
	}
	if err := p.parseUnary(out); err != nil {
		return err
	}
	*out = append(*out, expr.Binary("^"))
	return nil
}

func (p *parser) parseFactorial(out *[]expr.Instruction) error {
	if err := p.parseMember(out); err != nil {
		return err
	}
	for {
		ok, err := p.acceptOp(map[string]bool{"!": true})
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		*out = append(*out, expr.Unary("!"))
	}
}

// parseMember parses an atom followed by any chain of calls, member
// accesses and index operations.
func (p *parser) parseMember(out *[]expr.Instruction) error {
	if err := p.parseAtom(out); err != nil {
		return err
	}
	for {
		switch {
		case p.next.Is(token.PAREN, "("):
			if err := p.parseCall(out); err != nil {
				return err
			}
		case p.next.Is(token.OP, "."):
			dot := p.next
			if !p.reg.Options.MemberAccess {
				e := errs.Access("", p.src, "member access is not permitted")
				pos := p.sc.Position(dot.Offset)
				e.Position = &pos
				e.Token = "."
				return e
			}
			if err := p.advance(); err != nil {
				return err
			}
			name, ok := propertyName(p.next)
			if !ok {
				return p.errorf(p.next, "expected property name, got %s", p.next)
			}
			if err := p.advance(); err != nil {
				return err
			}
			*out = append(*out, expr.Instruction{Op: expr.IMEMBER, Name: name})
		case p.next.Is(token.BRACKET, "["):
			if !p.reg.Enabled("[") {
				return p.errorf(p.next, "array access is not permitted")
			}
			if err := p.advance(); err != nil {
				return err
			}
			if err := p.parseAssignment(out); err != nil {
				return err
			}
			if err := p.expect(token.BRACKET, "]", "']'"); err != nil {
				return err
			}
			*out = append(*out, expr.Binary("["))
		default:
			return nil
		}
	}
}

func (p *parser) parseCall(out *[]expr.Instruction) error {
	if err := p.advance(); err != nil {
		return err
	}
	argc := 0
	closed, err := p.accept(token.PAREN, ")")
	if err != nil {
		return err
	}
	for !closed {
		if err := p.parseAssignment(out); err != nil {
			return err
		}
		argc++
		comma, err := p.accept(token.COMMA, "")
		if err != nil {
			return err
		}
		if !comma {
			if err := p.expect(token.PAREN, ")", "')'"); err != nil {
				return err
			}
			closed = true
		}
	}
	*out = append(*out, expr.Counted(expr.IFUNCALL, argc))
	return nil
}

// propertyName accepts any word-like token after '.' or as an object key.
func propertyName(tok token.Token) (string, bool) {
	switch tok.Kind {
	case token.NAME, token.KEYWORD, token.CONST:
		return tok.Text, true
	case token.OP:
		if isWord(tok.Text) {
			return tok.Text, true
		}
	}
	return "", false
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func (p *parser) parseAtom(out *[]expr.Instruction) error {
	tok := p.next
	switch tok.Kind {
	case token.NAME:
		*out = append(*out, expr.Var(tok.Text))
	case token.CONST:
		*out = append(*out, expr.Literal(p.reg.Constants[tok.Text]))
	case token.NUMBER:
		*out = append(*out, expr.Literal(expr.Number(tok.Number)))
	case token.STRING:
		*out = append(*out, expr.Literal(expr.String(tok.Text)))
	case token.OP:
		if !p.reg.IsUnary(tok.Text) || !isWord(tok.Text) {
			return p.unexpected(tok)
		}
		*out = append(*out, expr.Var(tok.Text))
	case token.PAREN:
		if tok.Text != "(" {
			return p.unexpected(tok)
		}
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.parseSequence(out); err != nil {
			return err
		}
		return p.expect(token.PAREN, ")", "')'")
	case token.BRACKET:
		if tok.Text != "[" {
			return p.unexpected(tok)
		}
		return p.parseArray(out)
	case token.BRACE:
		if tok.Text != "{" {
			return p.unexpected(tok)
		}
		return p.parseObject(out)
	case token.KEYWORD:
		if tok.Text != "case" {
			return p.unexpected(tok)
		}
		return p.parseCase(out)
	default:
		return p.unexpected(tok)
	}
	return p.advance()
}

func (p *parser) parseArray(out *[]expr.Instruction) error {
	if !p.reg.Enabled("[") {
		return p.errorf(p.next, "array literals are not permitted")
	}
	if err := p.advance(); err != nil {
		return err
	}
	n := 0
	closed, err := p.accept(token.BRACKET, "]")
	if err != nil {
		return err
	}
	for !closed {
		if err := p.parseAssignment(out); err != nil {
			return err
		}
		n++
		comma, err := p.accept(token.COMMA, "")
		if err != nil {
			return err
		}
		if !comma {
			if err := p.expect(token.BRACKET, "]", "']'"); err != nil {
				return err
			}
			closed = true
		}
	}
	*out = append(*out, expr.Counted(expr.IARRAY, n))
	return nil
}

func (p *parser) parseObject(out *[]expr.Instruction) error {
	if !p.reg.Enabled("{") {
		return p.errorf(p.next, "object literals are not permitted")
	}
	if err := p.advance(); err != nil {
		return err
	}
	*out = append(*out, expr.Instruction{Op: expr.IOBJECT})
	closed, err := p.accept(token.BRACE, "}")
	if err != nil {
		return err
	}
	for !closed {
		var key string
		switch tok := p.next; tok.Kind {
		case token.STRING:
			key = tok.Text
		case token.NUMBER:
			key = expr.FormatNumber(tok.Number)
		default:
			name, ok := propertyName(tok)
			if !ok {
				return p.errorf(tok, "expected property name, got %s", tok)
			}
			key = name
		}
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.expect(token.OP, ":", "':'"); err != nil {
			return err
		}
		if err := p.parseAssignment(out); err != nil {
			return err
		}
		*out = append(*out, expr.Instruction{Op: expr.IPROPERTY, Name: key})
		comma, err := p.accept(token.COMMA, "")
		if err != nil {
			return err
		}
		if !comma {
			if err := p.expect(token.BRACE, "}", "'}'"); err != nil {
				return err
			}
			closed = true
		}
	}
	*out = append(*out, expr.Instruction{Op: expr.IOBJECTEND})
	return nil
}

// parseCase parses both case forms. With a subject each when is compared
// against it; without one each when is a condition.
func (p *parser) parseCase(out *[]expr.Instruction) error {
	if err := p.advance(); err != nil {
		return err
	}
	withSubject := !p.next.Is(token.KEYWORD, "when")
	if withSubject {
		if err := p.parseConditional(out); err != nil {
			return err
		}
	} else {
		*out = append(*out, expr.Instruction{Op: expr.IUNDEFINED})
	}
	if !p.next.Is(token.KEYWORD, "when") {
		return p.errorf(p.next, "expected when, got %s", p.next)
	}
	whenOp, caseOp := expr.IWHENCOND, expr.ICASECOND
	if withSubject {
		whenOp, caseOp = expr.IWHENMATCH, expr.ICASEMATCH
	}

	n := 0
	for {
		ok, err := p.accept(token.KEYWORD, "when")
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		var cond, value []expr.Instruction
		if err := p.parseConditional(&cond); err != nil {
			return err
		}
		if err := p.expect(token.KEYWORD, "then", "then"); err != nil {
			return err
		}
		if err := p.parseConditional(&value); err != nil {
			return err
		}
		*out = append(*out, expr.Lazy(cond), expr.Lazy(value), expr.Counted(whenOp, n))
		n++
	}
	ok, err := p.accept(token.KEYWORD, "else")
	if err != nil {
		return err
	}
	if ok {
		var value []expr.Instruction
		if err := p.parseConditional(&value); err != nil {
			return err
		}
		*out = append(*out, expr.Lazy(value), expr.Counted(expr.ICASEELSE, n))
		n++
	}
	if err := p.expect(token.KEYWORD, "end", "end"); err != nil {
		return err
	}
	*out = append(*out, expr.Counted(caseOp, n))
	return nil
}
