// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for pgmulti.
// It implements the subcommands that host batch-executing nodes, verify database
// targets, manage stored credentials and serve the admin API, using the Cobra CLI
// framework and pterm for terminal output.
package cmd

import (
	"fmt"
	"os"

	"pgmulti/cli/internal/config"
	apperrors "pgmulti/cli/internal/errors"
	"pgmulti/cli/internal/logging"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	showVersion bool
	configPath  string
	logLevel    string
	logJSON     bool
	noColor     bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "pgmulti",
	Short: "Message-driven PostgreSQL batch connector",
	Long: `pgmulti runs batches of parameterized SQL statements carried by JSON messages
against pooled PostgreSQL connections and emits the aggregated rows as new messages.

Database targets and nodes are declared in a YAML flow file; users and passwords
are kept in the OS keychain.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || os.Getenv("NO_COLOR") != "" {
			pterm.DisableStyling()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("pgmulti %s\n", Version)
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the CLI application.
// It executes the root command and handles any errors that occur during execution.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, logging.PresentError("", err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the flow file (default $XDG_CONFIG_HOME/pgmulti/flow.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error (overrides the flow file)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write diagnostics as JSON lines")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}

// loadConfig reads the flow file named by --config, or the default one.
func loadConfig() (config.Config, error) {
	var (
		c   config.Config
		err error
	)
	if configPath != "" {
		c, err = config.LoadFile(configPath)
	} else {
		c, err = config.Load()
	}
	if err != nil {
		return config.Config{}, apperrors.Wrap(apperrors.ConfigInvalid, "failed to load flow file", err)
	}
	return c, nil
}

// newLogger builds the diagnostic logger; command-line flags win over the flow file.
func newLogger(c config.Config) *pterm.Logger {
	level := c.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	return logging.New(level, os.Stderr, logJSON || c.LogJSON)
}
