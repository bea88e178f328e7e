// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package terminal reads interactive input and tidies the screen after prompts.
package terminal

import (
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/term"
)

const defaultWidth = 80

// ClearPrompts erases the lines taken by prompts that have been answered, so a
// summary can replace them. Each entry is one prompt plus what was typed; the
// newline from Enter is accounted for.
func ClearPrompts(entries ...string) {
	width := defaultWidth
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	clearLines(os.Stdout, linesFor(entries, width))
}

// linesFor counts the screen rows the entries wrapped to.
func linesFor(entries []string, width int) int {
	n := 0
	for _, e := range entries {
		rows := (utf8.RuneCountInString(e) + width - 1) / width
		if rows < 1 {
			rows = 1
		}
		n += rows
	}
	return n
}

// clearLines moves up n rows from the current (empty) line, clearing each.
func clearLines(w io.Writer, n int) {
	for i := 0; i <= n; i++ {
		fmt.Fprint(w, "\r\x1b[2K")
		if i < n {
			fmt.Fprint(w, "\x1b[1A")
		}
	}
}
