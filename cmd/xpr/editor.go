// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package main

import (
	"fmt"
	"io"
	"unicode/utf8"
)

// lineEditor reads one line at a time from a terminal in raw mode.
type lineEditor struct {
	in  io.Reader
	out io.Writer

	line   []rune
	cursor int
}

func (e *lineEditor) readByte() (byte, bool) {
	var buf [1]byte
	n, err := e.in.Read(buf[:])
	if err != nil || n == 0 {
		return 0, false
	}
	return buf[0], true
}

// redraw clears from the cursor to the end of the line, prints the rest of
// the line and moves the cursor back.
func (e *lineEditor) redraw() {
	fmt.Fprint(e.out, "\x1b[K")
	fmt.Fprint(e.out, string(e.line[e.cursor:]))
	if e.cursor < len(e.line) {
		fmt.Fprintf(e.out, "\x1b[%dD", len(e.line)-e.cursor)
	}
}

func (e *lineEditor) insert(r rune) {
	e.line = append(e.line, 0)
	copy(e.line[e.cursor+1:], e.line[e.cursor:])
	e.line[e.cursor] = r
	e.cursor++
	fmt.Fprint(e.out, string(r))
	if e.cursor < len(e.line) {
		e.redraw()
	}
}

// replace swaps the whole line, as when walking the history.
func (e *lineEditor) replace(text string) {
	if e.cursor > 0 {
		fmt.Fprintf(e.out, "\x1b[%dD", e.cursor)
	}
	e.line = []rune(text)
	e.cursor = 0
	e.redraw()
	if len(e.line) > 0 {
		fmt.Fprintf(e.out, "\x1b[%dC", len(e.line))
	}
	e.cursor = len(e.line)
}

// readLine returns the next line and whether input ended. history is the
// list of earlier inputs, oldest first.
func (e *lineEditor) readLine(history []string) (string, bool) {
	e.line, e.cursor = nil, 0
	pos := len(history)
	pending := ""

	for {
		b, ok := e.readByte()
		if !ok {
			return string(e.line), true
		}

		switch b {
		case 0x04: // Ctrl+D
			if len(e.line) == 0 {
				return "", true
			}
			if e.cursor < len(e.line) {
				e.line = append(e.line[:e.cursor], e.line[e.cursor+1:]...)
				e.redraw()
			}

		case 0x03: // Ctrl+C
			fmt.Fprint(e.out, "^C\r\n")
			return "", false

		case '\r', '\n':
			fmt.Fprint(e.out, "\r\n")
			return string(e.line), false

		case 0x7f, 0x08: // Backspace
			if e.cursor > 0 {
				e.line = append(e.line[:e.cursor-1], e.line[e.cursor:]...)
				e.cursor--
				fmt.Fprint(e.out, "\x1b[D")
				e.redraw()
			}

		case 0x1b: // Escape sequence
			next, ok := e.readByte()
			if !ok || next != '[' {
				continue
			}
			code, ok := e.readByte()
			if !ok {
				continue
			}
			switch code {
			case 'A': // Up
				if pos > 0 {
					if pos == len(history) {
						pending = string(e.line)
					}
					pos--
					e.replace(history[pos])
				}
			case 'B': // Down
				if pos < len(history) {
					pos++
					if pos == len(history) {
						e.replace(pending)
					} else {
						e.replace(history[pos])
					}
				}
			case 'C': // Right
				if e.cursor < len(e.line) {
					e.cursor++
					fmt.Fprint(e.out, "\x1b[C")
				}
			case 'D': // Left
				if e.cursor > 0 {
					e.cursor--
					fmt.Fprint(e.out, "\x1b[D")
				}
			case '3': // Delete: ESC [ 3 ~
				if t, _ := e.readByte(); t == '~' && e.cursor < len(e.line) {
					e.line = append(e.line[:e.cursor], e.line[e.cursor+1:]...)
					e.redraw()
				}
			}

		case 0x01: // Ctrl+A
			if e.cursor > 0 {
				fmt.Fprintf(e.out, "\x1b[%dD", e.cursor)
				e.cursor = 0
			}

		case 0x05: // Ctrl+E
			if e.cursor < len(e.line) {
				fmt.Fprintf(e.out, "\x1b[%dC", len(e.line)-e.cursor)
				e.cursor = len(e.line)
			}

		case 0x0b: // Ctrl+K
			if e.cursor < len(e.line) {
				e.line = e.line[:e.cursor]
				fmt.Fprint(e.out, "\x1b[K")
			}

		case 0x15: // Ctrl+U
			if e.cursor > 0 {
				fmt.Fprintf(e.out, "\x1b[%dD", e.cursor)
				e.line = e.line[e.cursor:]
				e.cursor = 0
				e.redraw()
			}

		default:
			switch {
			case b >= 0x20 && b < 0x7f:
				e.insert(rune(b))
			case b >= 0x80:
				buf := []byte{b}
				for !utf8.FullRune(buf) && len(buf) < utf8.UTFMax {
					c, ok := e.readByte()
					if !ok {
						break
					}
					buf = append(buf, c)
				}
				r, _ := utf8.DecodeRune(buf)
				e.insert(r)
			}
		}
	}
}
