// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package main is the entry point for the pgmulti CLI application.
// It hosts message-driven PostgreSQL batch nodes and their admin tooling.
package main

import (
	"pgmulti/cli/cmd"
)

// main is the entry point for the pgmulti CLI application.
// It initializes and executes the command-line interface.
func main() {
	cmd.Execute()
}
