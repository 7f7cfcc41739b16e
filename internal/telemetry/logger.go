// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package telemetry builds the loggers and metrics shared by the xpr
// commands and service.
package telemetry

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ParseLevel converts a level name such as "debug" or "warn" into a zerolog
// level. The empty string means info.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	case "off", "none":
		return zerolog.Disabled, nil
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("telemetry: unknown log level %q", s)
	}
	return level, nil
}

// NewLogger creates a logger writing to w at level. With pretty set the
// output is human-readable console text; otherwise one JSON object per line.
func NewLogger(w io.Writer, level zerolog.Level, pretty bool) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
