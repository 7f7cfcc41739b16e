// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Command xpr evaluates expressions, manages the expression library and
// serves the HTTP evaluation API.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"nickandperla.net/xpr/internal/telemetry"
	"nickandperla.net/xpr/pkg/xpr"
)

// Global flags.
type globals struct {
	logLevel  string
	logFormat string
	config    string
	db        string
	noPrelude bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "xpr",
		Short: "Evaluate xpr expressions",
		Long: `xpr compiles and evaluates expressions with arithmetic, comparison,
logic, arrays, objects and user-defined functions. Named expressions can be
kept in a SQLite library and referenced by name from other expressions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "Log level (debug, info, warn, error, off)")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "console", "Log format: console or json")
	root.PersistentFlags().StringVar(&g.config, "config", "", "Path to a YAML configuration file")
	root.PersistentFlags().StringVar(&g.db, "db", "", "SQLite database path for the expression library")
	root.PersistentFlags().BoolVar(&g.noPrelude, "no-prelude", false, "Disable the prelude")

	root.AddCommand(newEvalCmd(g))
	root.AddCommand(newReplCmd(g))
	root.AddCommand(newVarsCmd(g))
	root.AddCommand(newSimplifyCmd(g))
	root.AddCommand(newLibCmd(g))
	root.AddCommand(newServeCmd(g))

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (g *globals) logger() (zerolog.Logger, error) {
	level, err := telemetry.ParseLevel(g.logLevel)
	if err != nil {
		return zerolog.Nop(), err
	}
	switch g.logFormat {
	case "console", "json":
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q (use console or json)", g.logFormat)
	}
	return telemetry.NewLogger(os.Stderr, level, g.logFormat == "console"), nil
}

// parser builds a Parser from the configuration file and the flags. Flags
// win over the file.
func (g *globals) parser(extra ...xpr.Option) (*xpr.Parser, error) {
	var opts []xpr.Option
	if g.config != "" {
		cfg, err := xpr.LoadConfig(g.config)
		if err != nil {
			return nil, err
		}
		opts = append(opts, xpr.WithConfig(cfg))
	}

	log, err := g.logger()
	if err != nil {
		return nil, err
	}
	opts = append(opts, xpr.WithLogger(log))
	if g.db != "" {
		opts = append(opts, xpr.WithSQLiteStore(g.db))
	}
	if g.noPrelude {
		opts = append(opts, xpr.WithNoPrelude())
	}
	opts = append(opts, extra...)

	p := xpr.New(opts...)
	if err := p.Err(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// metricsParser is parser with Prometheus collectors on a fresh registry.
func (g *globals) metricsParser() (*xpr.Parser, *prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	p, err := g.parser(xpr.WithMetrics(reg))
	return p, reg, err
}

// parseVars reads name=value assignments. Values are JSON when they parse
// as JSON and strings otherwise.
func parseVars(assignments []string) (map[string]any, error) {
	vars := make(map[string]any, len(assignments))
	for _, a := range assignments {
		name, raw, ok := strings.Cut(a, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid variable %q (use name=value)", a)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		vars[name] = v
	}
	return vars, nil
}

// render formats a result for display: JSON when asked, else the value's
// own text with strings quoted.
func render(v xpr.Value, asJSON bool) (string, error) {
	if asJSON {
		b, err := xpr.MarshalJSON(v)
		return string(b), err
	}
	if s, ok := v.(xpr.String); ok {
		return fmt.Sprintf("%q", string(s)), nil
	}
	return v.String(), nil
}
