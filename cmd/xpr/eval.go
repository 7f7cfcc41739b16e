// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"nickandperla.net/xpr/pkg/xpr"
)

func newEvalCmd(g *globals) *cobra.Command {
	var (
		vars   []string
		file   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "eval [expression]",
		Short: "Evaluate an expression",
		Long: `Evaluate an expression given as an argument, read from a file with -f, or
piped on stdin. Variables are bound with --var name=value; values are read as
JSON when possible.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readSource(cmd, args, file)
			if err != nil {
				return err
			}
			values, err := parseVars(vars)
			if err != nil {
				return err
			}

			p, err := g.parser()
			if err != nil {
				return err
			}
			defer p.Close()

			x, err := p.Parse(src)
			if err != nil {
				return fmt.Errorf("%s", xpr.Snippet(err, src))
			}
			scope, err := p.NewScope(values)
			if err != nil {
				return err
			}
			v, err := x.Resolve(cmd.Context(), scope)
			if err != nil {
				return fmt.Errorf("%s", xpr.Snippet(err, src))
			}
			out, err := render(v, asJSON)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&vars, "var", nil, "Bind a variable (name=value)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the expression from a file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

// readSource takes the expression from the argument, the file, or a piped
// stdin, in that order.
func readSource(cmd *cobra.Command, args []string, file string) (string, error) {
	switch {
	case len(args) == 1:
		return args[0], nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", file, err)
		}
		return string(b), nil
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "", fmt.Errorf("no expression given")
	}
	b, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	src := strings.TrimSpace(string(b))
	if src == "" {
		return "", fmt.Errorf("no expression given")
	}
	return src, nil
}
