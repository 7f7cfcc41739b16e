// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"nickandperla.net/xpr/pkg/xpr"
)

func newLibCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lib",
		Short: "Manage the named expression library",
		Long: `Library entries are stored in the database given by --db (or the store
section of --config). An entry named NAME resolves like a variable in any
later expression. The entry __prelude__ replaces the built-in prelude.`,
	}
	cmd.AddCommand(newLibDefineCmd(g))
	cmd.AddCommand(newLibGetCmd(g))
	cmd.AddCommand(newLibListCmd(g))
	cmd.AddCommand(newLibHistoryCmd(g))
	cmd.AddCommand(newLibRmCmd(g))
	return cmd
}

// library is parser with a store required.
func (g *globals) library() (*xpr.Parser, error) {
	p, err := g.parser()
	if err != nil {
		return nil, err
	}
	if _, err := p.Names(); errors.Is(err, xpr.ErrNoStore) {
		p.Close()
		return nil, fmt.Errorf("no library configured: pass --db or set store in --config")
	}
	return p, nil
}

func newLibDefineCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "define NAME EXPRESSION",
		Short: "Store an expression under a name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := g.library()
			if err != nil {
				return err
			}
			defer p.Close()
			if err := p.Define(args[0], args[1]); err != nil {
				return fmt.Errorf("%s", xpr.Snippet(err, args[1]))
			}
			return nil
		},
	}
}

func newLibGetCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Print the source stored under a name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := g.library()
			if err != nil {
				return err
			}
			defer p.Close()
			src, ok, err := p.Lookup(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s is not defined", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), src)
			return nil
		},
	}
}

func newLibListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the library entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := g.library()
			if err != nil {
				return err
			}
			defer p.Close()
			names, err := p.Names()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newLibHistoryCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history NAME",
		Short: "Show the stored versions of an entry, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := g.library()
			if err != nil {
				return err
			}
			defer p.Close()
			entries, err := p.History(args[0], limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "v%d\t%s\t%s\n", e.Version, e.Ts, e.Source)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most this many versions")
	return cmd
}

func newLibRmCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME",
		Short: "Remove an entry and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := g.library()
			if err != nil {
				return err
			}
			defer p.Close()
			return p.Forget(args[0])
		},
	}
}
