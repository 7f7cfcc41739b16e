// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package main

import (
	"io"
	"strings"
	"testing"
)

func readLine(input string, history []string) (string, bool) {
	e := &lineEditor{in: strings.NewReader(input), out: io.Discard}
	return e.readLine(history)
}

func TestLineEditor(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		history []string
		want    string
	}{
		{"plain", "1 + 2\r", nil, "1 + 2"},
		{"left then insert", "ab\x1b[Dc\r", nil, "acb"},
		{"backspace", "abc\x7f\x7fd\r", nil, "ad"},
		{"home and kill", "abc\x01\x0bxy\r", nil, "xy"},
		{"kill to start", "abc\x1b[D\x15\r", nil, "c"},
		{"delete key", "abc\x01\x1b[3~\r", nil, "bc"},
		{"history up", "\x1b[A\x1b[A\r", []string{"first", "second"}, "first"},
		{"history down restores", "typed\x1b[A\x1b[B\r", []string{"old"}, "typed"},
		{"utf8", "π * 2\r", nil, "π * 2"},
	}
	for _, c := range cases {
		got, eof := readLine(c.input, c.history)
		if eof {
			t.Errorf("%s: unexpected EOF", c.name)
		}
		if got != c.want {
			t.Errorf("%s: expected %q, got %q", c.name, c.want, got)
		}
	}
}

func TestLineEditorEOF(t *testing.T) {
	if _, eof := readLine("\x04", nil); !eof {
		t.Error("expected Ctrl+D on an empty line to end input")
	}
	if got, eof := readLine("ab", nil); !eof || got != "ab" {
		t.Errorf("expected partial line at end of input, got %q %v", got, eof)
	}
}

func TestParseVars(t *testing.T) {
	vars, err := parseVars([]string{"n=3", "s=hello", "list=[1,2]", "q=\"x\""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vars["n"] != 3.0 || vars["s"] != "hello" || vars["q"] != "x" {
		t.Errorf("unexpected vars %v", vars)
	}
	if l, ok := vars["list"].([]any); !ok || len(l) != 2 {
		t.Errorf("expected a list, got %v", vars["list"])
	}
	if _, err := parseVars([]string{"novalue"}); err == nil {
		t.Error("expected an error without =")
	}
}
