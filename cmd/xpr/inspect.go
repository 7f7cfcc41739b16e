// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nickandperla.net/xpr/pkg/xpr"
)

func newVarsCmd(g *globals) *cobra.Command {
	var (
		members bool
		symbols bool
		file    string
	)

	cmd := &cobra.Command{
		Use:   "vars [expression]",
		Short: "List the variables an expression refers to",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readSource(cmd, args, file)
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
			names := x.Variables(members)
			if symbols {
				names = x.Symbols(members)
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&members, "members", false, "Report member chains as dotted paths")
	cmd.Flags().BoolVar(&symbols, "symbols", false, "Include function names")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the expression from a file")
	return cmd
}

func newSimplifyCmd(g *globals) *cobra.Command {
	var (
		vars []string
		subs []string
		file string
	)

	cmd := &cobra.Command{
		Use:   "simplify [expression]",
		Short: "Fold known values into an expression",
		Long: `Simplify precomputes every operation whose operands are known, with the
bindings given by --var. --sub name=expression replaces a variable with
another expression first.`,
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
			p, err := g.parser(xpr.WithNoPrelude())
			if err != nil {
				return err
			}
			defer p.Close()

			x, err := p.Parse(src)
			if err != nil {
				return fmt.Errorf("%s", xpr.Snippet(err, src))
			}
			for _, s := range subs {
				name, with, ok := strings.Cut(s, "=")
				name = strings.TrimSpace(name)
				if !ok || name == "" {
					return fmt.Errorf("invalid substitution %q (use name=expression)", s)
				}
				y, err := p.Parse(with)
				if err != nil {
					return fmt.Errorf("%s", xpr.Snippet(err, with))
				}
				x = x.Substitute(name, y)
			}

			bindings := make(map[string]xpr.Value, len(values))
			for name, raw := range values {
				v, err := xpr.FromGo(raw)
				if err != nil {
					return err
				}
				bindings[name] = v
			}
			fmt.Fprintln(cmd.OutOrStdout(), x.Simplify(bindings).String())
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&vars, "var", nil, "Bind a variable (name=value)")
	cmd.Flags().StringArrayVar(&subs, "sub", nil, "Substitute a variable (name=expression)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the expression from a file")
	return cmd
}
