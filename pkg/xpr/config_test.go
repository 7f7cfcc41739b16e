// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package xpr

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
memberAccess: false
operators:
  assignment: false
  in: false
cacheSize: 16
log:
  level: debug
  format: console
store:
  driver: memory
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MemberAccess == nil || *cfg.MemberAccess {
		t.Error("expected member access off")
	}
	if on, ok := cfg.Operators["in"]; !ok || on {
		t.Error("expected in disabled")
	}
	if cfg.CacheSize != 16 || cfg.Log.Level != "debug" || cfg.Store.Driver != "memory" {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestParseConfigErrors(t *testing.T) {
	cases := map[string]string{
		"unknownKey: 1":              "unknownKey",
		"store:\n  driver: postgres": "unknown driver",
		"store:\n  driver: sqlite":   "needs a path",
		"log:\n  format: xml":        "unknown format",
	}
	for src, want := range cases {
		_, err := ParseConfig([]byte(src))
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Errorf("%q: expected error containing %q, got %v", src, want, err)
		}
	}
	if _, err := ParseConfig(nil); err != nil {
		t.Errorf("empty config should be valid: %v", err)
	}
}

func TestLoadConfigAndApply(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "xpr.yaml")
	data := "operators:\n  assignment: false\nstore:\n  driver: sqlite\n  path: " + filepath.Join(dir, "xpr.db") + "\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := New(WithConfig(cfg))
	defer p.Close()
	if err := p.Err(); err != nil {
		t.Fatalf("unexpected configuration error: %v", err)
	}
	if _, err := p.Parse("x = 1"); ErrorKind(err) != "SyntaxError" {
		t.Errorf("expected assignment to be disabled, got %v", err)
	}
	if err := p.Define("one", "1"); err != nil {
		t.Errorf("expected a sqlite store, got %v", err)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}
