// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"nickandperla.net/xpr/pkg/xpr"
)

func newReplCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive session",
		Long: `Each line is evaluated in one scope that lasts for the session, so
assignments and function definitions carry over. End a line with \ to
continue it. :vars lists the session variables, :quit leaves.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := g.parser()
			if err != nil {
				return err
			}
			defer p.Close()

			r := newSession(cmd.Context(), p, cmd.OutOrStdout())
			in := cmd.InOrStdin()
			if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
				return r.runRaw(f)
			}
			return r.runBasic(in)
		},
	}
}

type session struct {
	ctx     context.Context
	p       *xpr.Parser
	scope   *xpr.Scope
	out     io.Writer
	nl      string
	history []string
}

func newSession(ctx context.Context, p *xpr.Parser, out io.Writer) *session {
	scope, _ := p.NewScope(nil)
	return &session{ctx: ctx, p: p, scope: scope, out: out, nl: "\n"}
}

func (s *session) banner() {
	fmt.Fprint(s.out, "xpr REPL (Ctrl+D to exit, :help for commands)"+s.nl+s.nl)
}

func (s *session) prompt(cont bool) {
	if cont {
		fmt.Fprint(s.out, "... ")
	} else {
		fmt.Fprint(s.out, ">>> ")
	}
}

func (s *session) println(text string) {
	fmt.Fprint(s.out, strings.ReplaceAll(text, "\n", s.nl)+s.nl)
}

// eval handles one complete input. It reports false when the session
// should end.
func (s *session) eval(input string) bool {
	input = strings.TrimSpace(input)
	switch input {
	case "":
		return true
	case ":quit", ":q":
		return false
	case ":help":
		s.println(":vars   list session variables\n:clear  forget session variables\n:quit   leave")
		return true
	case ":vars":
		for _, name := range s.scope.Names() {
			v, _ := s.scope.Get(name)
			text, _ := render(v, false)
			s.println(name + " = " + text)
		}
		return true
	case ":clear":
		s.scope, _ = s.p.NewScope(nil)
		return true
	}

	s.history = append(s.history, input)
	x, err := s.p.Parse(input)
	if err != nil {
		s.println(xpr.Snippet(err, input))
		return true
	}
	v, err := x.Resolve(s.ctx, s.scope)
	if err != nil {
		s.println(xpr.Snippet(err, input))
		return true
	}
	text, err := render(v, false)
	if err != nil {
		s.println("Error: " + err.Error())
		return true
	}
	s.println(text)
	return true
}

// runBasic handles non-TTY input.
func (s *session) runBasic(in io.Reader) error {
	s.banner()
	reader := bufio.NewReader(in)
	var multiline strings.Builder

	for {
		s.prompt(multiline.Len() > 0)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(s.out)
			return nil
		}
		line = strings.TrimRight(line, "\r\n")

		if strings.HasSuffix(line, "\\") {
			multiline.WriteString(strings.TrimSuffix(line, "\\"))
			multiline.WriteString("\n")
			continue
		}
		multiline.WriteString(line)
		input := multiline.String()
		multiline.Reset()

		if !s.eval(input) {
			return nil
		}
	}
}

// runRaw handles TTY input with line editing and history.
func (s *session) runRaw(f *os.File) error {
	fd := int(f.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set raw mode: %v\n", err)
		return s.runBasic(f)
	}
	defer term.Restore(fd, oldState)

	s.nl = "\r\n"
	s.banner()
	ed := &lineEditor{in: f, out: s.out}
	var multiline strings.Builder

	for {
		s.prompt(multiline.Len() > 0)
		line, eof := ed.readLine(s.history)
		if eof {
			fmt.Fprint(s.out, "\r\n")
			return nil
		}

		if strings.HasSuffix(line, "\\") {
			multiline.WriteString(strings.TrimSuffix(line, "\\"))
			multiline.WriteString("\n")
			continue
		}
		multiline.WriteString(line)
		input := multiline.String()
		multiline.Reset()

		if !s.eval(input) {
			return nil
		}
	}
}
