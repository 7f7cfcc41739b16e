// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package scanner

import (
	"errors"
	"testing"

	"nickandperla.net/xpr/internal/errs"
	"nickandperla.net/xpr/internal/token"
)

var testConfig = Config{
	IsUnary: func(name string) bool {
		return name == "sin" || name == "not" || name == "length"
	},
	IsConstant: func(name string) bool {
		return name == "PI" || name == "true"
	},
}

func scanAll(t *testing.T, src string, cfg Config) []token.Token {
	t.Helper()
	s := New(src, cfg)
	var toks []token.Token
	for {
		tok, err := s.Next()
		if err != nil {
			t.Fatalf("scan %q: %v", src, err)
		}
		if tok.Kind == token.EOF {
			return toks
		}
		toks = append(toks, tok)
	}
}

func TestScanBasic(t *testing.T) {
	toks := scanAll(t, "x + 2*sin(PI) /* note */ >= 'a\\n'", testConfig)
	want := []struct {
		kind token.Kind
		text string
	}{
		{token.NAME, "x"},
		{token.OP, "+"},
		{token.NUMBER, "2"},
		{token.OP, "*"},
		{token.OP, "sin"},
		{token.PAREN, "("},
		{token.CONST, "PI"},
		{token.PAREN, ")"},
		{token.OP, ">="},
		{token.STRING, "a\n"},
	}
	if len(toks) != len(want) {
		t.Fatalf("expected %d tokens, got %d: %v", len(want), len(toks), toks)
	}
	for i, w := range want {
		if toks[i].Kind != w.kind || toks[i].Text != w.text {
			t.Errorf("token %d: expected %s %q, got %s", i, w.kind, w.text, toks[i])
		}
	}
}

func TestScanNumbers(t *testing.T) {
	cases := map[string]float64{
		"42":     42,
		"3.25":   3.25,
		".5":     0.5,
		"5.":     5,
		"1e3":    1000,
		"2.5E-2": 0.025,
		"0x1F":   31,
		"0b101":  5,
	}
	for src, want := range cases {
		toks := scanAll(t, src, testConfig)
		if len(toks) != 1 || toks[0].Kind != token.NUMBER || toks[0].Number != want {
			t.Errorf("%q: expected number %v, got %v", src, want, toks)
		}
	}
}

func TestScanExponentWithoutDigits(t *testing.T) {
	toks := scanAll(t, "2e", testConfig)
	if len(toks) != 2 || toks[0].Number != 2 || toks[1].Text != "e" {
		t.Errorf("expected 2 then name e, got %v", toks)
	}
}

func TestScanNamedOperators(t *testing.T) {
	toks := scanAll(t, "a and b or not c not in d && e in f as g", testConfig)
	var ops []string
	for _, tok := range toks {
		if tok.Kind == token.OP {
			ops = append(ops, tok.Text)
		}
	}
	want := []string{"and", "or", "not", "not in", "and", "in", "as"}
	if len(ops) != len(want) {
		t.Fatalf("expected ops %v, got %v", want, ops)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("op %d: expected %q, got %q", i, want[i], ops[i])
		}
	}
}

func TestScanIdentifierPrefixedByOperatorWord(t *testing.T) {
	toks := scanAll(t, "android ask notice", testConfig)
	for _, tok := range toks {
		if tok.Kind != token.NAME {
			t.Errorf("expected NAME, got %s", tok)
		}
	}
}

func TestScanDollarNames(t *testing.T) {
	toks := scanAll(t, "$x + $$y", testConfig)
	if toks[0].Text != "$x" || toks[2].Text != "$$y" {
		t.Errorf("unexpected tokens %v", toks)
	}
}

func TestScanKeywords(t *testing.T) {
	toks := scanAll(t, "case x when 1 then 2 else 3 end", testConfig)
	kw := 0
	for _, tok := range toks {
		if tok.Kind == token.KEYWORD {
			kw++
		}
	}
	if kw != 5 {
		t.Errorf("expected 5 keywords, got %d", kw)
	}
}

func TestScanBullets(t *testing.T) {
	toks := scanAll(t, "2∙3•4", testConfig)
	if toks[1].Text != "*" || toks[3].Text != "*" {
		t.Errorf("expected bullets to scan as *, got %v", toks)
	}
}

func TestScanDisabledOperator(t *testing.T) {
	cfg := testConfig
	cfg.Enabled = func(op string) bool { return token.OptionName(op) != "in" }
	toks := scanAll(t, "a in b", cfg)
	if toks[1].Kind != token.NAME {
		t.Errorf("expected disabled 'in' to scan as NAME, got %s", toks[1])
	}

	cfg.Enabled = func(op string) bool { return op != "+" }
	_, err := New("1 + 2", cfg).Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := New("+", cfg)
	if _, err := s.Next(); err == nil {
		t.Error("expected error for disabled +")
	}
}

func TestScanErrors(t *testing.T) {
	cases := []string{
		`"unterminated`,
		`"bad \q escape"`,
		`"\u12"`,
		"/* open",
		"1 # 2",
	}
	for _, src := range cases {
		s := New(src, testConfig)
		var err error
		for err == nil {
			var tok token.Token
			tok, err = s.Next()
			if err == nil && tok.Kind == token.EOF {
				break
			}
		}
		var se *errs.SyntaxError
		if !errors.As(err, &se) {
			t.Errorf("%q: expected SyntaxError, got %v", src, err)
		}
	}
}

func TestScanUnicodeEscape(t *testing.T) {
	toks := scanAll(t, `"é\/"`, testConfig)
	if toks[0].Text != "é/" {
		t.Errorf("unexpected decoded string %q", toks[0].Text)
	}
}

func TestScanSurrogatePair(t *testing.T) {
	cases := map[string]string{
		`"\uD83D\uDE00"`:   "\U0001F600",
		`"a\ud83d\ude00b"`: "a\U0001F600b",
		`"\uD83Dx"`:        "\uFFFDx",
		`"\uD83D\u0041"`:   "\uFFFDA",
	}
	for src, want := range cases {
		toks := scanAll(t, src, testConfig)
		if toks[0].Text != want {
			t.Errorf("%s: got %q, want %q", src, toks[0].Text, want)
		}
	}
}

func TestCoordinates(t *testing.T) {
	s := New("a +\n  b", testConfig)
	line, col := s.Coordinates(6)
	if line != 2 || col != 3 {
		t.Errorf("expected 2:3, got %d:%d", line, col)
	}
}

func TestSaveRestorePeek(t *testing.T) {
	s := New("a b c", testConfig)
	first, _ := s.Next()
	s.Save()
	second, _ := s.Next()
	_, _ = s.Next()
	s.Restore()
	again, _ := s.Next()
	if first.Text != "a" || second.Text != again.Text {
		t.Errorf("restore failed: %s vs %s", second, again)
	}
	peek, _ := s.Peek()
	next, _ := s.Next()
	if peek != next {
		t.Errorf("peek %s differs from next %s", peek, next)
	}
}
