// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package terminal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// stdinReader is shared so buffered input is not lost between prompts.
var stdinReader = bufio.NewReader(os.Stdin)

// IsInteractive reports whether stdin is a terminal.
func IsInteractive() bool {
	return IsTerminal(os.Stdin)
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// ReadLine prints prompt and reads one line from stdin, without the newline.
func ReadLine(prompt string) (string, error) {
	fmt.Print(prompt)
	return readLine(stdinReader)
}

// ReadSecret prints prompt and reads a line without echoing it. When stdin is
// not a terminal (pipes, CI) the line is read as is, so secrets can be piped in.
func ReadSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	if !IsInteractive() {
		return readLine(stdinReader)
	}
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
