// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"fmt"
	"time"

	"pgmulti/cli/internal/dsn"
	"pgmulti/cli/internal/keychain"
	"pgmulti/cli/internal/logging"
	"pgmulti/cli/internal/node"
	"pgmulti/cli/internal/pool"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	pingTimeout time.Duration
	pingDSN     string
)

// pingCmd verifies that a configured database target is reachable with the
// stored credentials.
var pingCmd = &cobra.Command{
	Use:   "ping [target]",
	Short: "Verify connectivity to a database target",
	Long: `The ping command opens a connection to a database target from the flow file
and round-trips to the server. Credentials come from the configured source: the
OS keychain by default, falling back to PGMULTI_USER / PGMULTI_PASSWORD.

With --dsn, an ad-hoc postgres:// URL is checked instead; missing credentials are
taken from PGMULTI_USER / PGMULTI_PASSWORD.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(c)

		var (
			label string
			cfg   dsn.ConnectionConfig
			opts  pool.Options
		)
		switch {
		case pingDSN != "" && len(args) == 0:
			cfg, err = dsn.Parse(pingDSN)
			if err != nil {
				pterm.Println("❌ Invalid connection string. Please check the format and try again.")
				return err
			}
			env := keychain.FromEnv()
			cfg = cfg.WithDefaultCredentials(env.User, env.Password)
			label = cfg.Host
		case pingDSN == "" && len(args) == 1:
			label = args[0]
			target, ok := c.Target(label)
			if !ok {
				pterm.Printf("❌ Database target %q is not defined in the flow file.\n", label)
				return fmt.Errorf("unknown target %q", label)
			}
			source, err := credentialSource(cmd.Context(), c, logger)
			if err != nil {
				return err
			}
			creds, err := source.Resolve(label)
			if err != nil {
				return err
			}
			cfg = node.ConnectionConfigFor(target, creds)
			opts = node.PoolOptions(target)
		default:
			return fmt.Errorf("give either a target id or --dsn")
		}
		opts.MaxConns = 1
		opts.Logger = logger

		p, err := pool.New(cfg, opts)
		if err != nil {
			pterm.Println("❌ Invalid connection settings. Please check the target in the flow file.")
			return err
		}
		defer p.Close()

		stopSpinner := startInlineSpinner("verifying connection to "+cfg.Redacted(), 100*time.Millisecond)
		ctx, cancel := context.WithTimeout(cmd.Context(), pingTimeout)
		defer cancel()
		start := time.Now()
		err = p.Ping(ctx)
		stopSpinner()

		if err != nil {
			logging.PresentDBError(err)
			return err
		}

		pterm.Printf("✅ %s is reachable (%s)\n", label, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 5*time.Second, "Give up after this long")
	pingCmd.Flags().StringVar(&pingDSN, "dsn", "", "Check this postgres:// URL instead of a configured target")
}
