// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package xpr

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the file form of the Parser options.
type Config struct {
	MemberAccess *bool           `yaml:"memberAccess"`
	Operators    map[string]bool `yaml:"operators"`
	CacheSize    int             `yaml:"cacheSize"`
	Prelude      *string         `yaml:"prelude"`
	Log          LogConfig       `yaml:"log"`
	Store        StoreConfig     `yaml:"store"`
}

// LogConfig selects the logger built by WithConfig.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// StoreConfig selects the named-expression store.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "memory" or "sqlite"
	Path   string `yaml:"path"`
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("xpr: read config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("xpr: %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes YAML configuration. Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	switch cfg.Store.Driver {
	case "", "memory":
	case "sqlite":
		if cfg.Store.Path == "" {
			return Config{}, fmt.Errorf("store: sqlite driver needs a path")
		}
	default:
		return Config{}, fmt.Errorf("store: unknown driver %q", cfg.Store.Driver)
	}
	switch cfg.Log.Format {
	case "", "json", "console":
	default:
		return Config{}, fmt.Errorf("log: unknown format %q", cfg.Log.Format)
	}
	return cfg, nil
}
