// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"sort"
	"strings"

	"pgmulti/cli/internal/config"
	"pgmulti/cli/internal/keychain"
	"pgmulti/cli/internal/node"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// dbinfoCmd displays the database targets of the flow file with passwords masked.
var dbinfoCmd = &cobra.Command{
	Use:   "dbinfo [target]",
	Short: "Show configured database targets",
	Long: `The dbinfo command displays the connection string of each database target (or
of the one given) with the password replaced by ***, the pool settings, and which
nodes use it. Nothing is dialed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(c.Targets))
		for id := range c.Targets {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		if len(args) == 1 {
			if _, ok := c.Target(args[0]); !ok {
				pterm.Printf("❌ Database target %q is not defined in the flow file.\n", args[0])
				return fmt.Errorf("unknown target %q", args[0])
			}
			ids = []string{args[0]}
		}
		if len(ids) == 0 {
			pterm.Println("⚠️  No database targets configured")
			pterm.Println("   Add one under 'targets:' in the flow file")
			return nil
		}

		km, kmErr := keychain.GetManager()
		for _, id := range ids {
			t := c.Targets[id]

			creds := keychain.FromEnv()
			source := "environment"
			if kmErr == nil {
				if stored, ok, err := km.Get(id); err == nil && ok {
					creds, source = stored, "OS keychain"
				}
			}

			pterm.DefaultBox.
				WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint(id)).
				WithPadding(1).
				Println(describeTarget(c, id, t, creds, source))
			pterm.Println()
		}

		pterm.Println("To update credentials, run: pgmulti creds set <target>")
		pterm.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbinfoCmd)
}

func describeTarget(c config.Config, id string, t config.Target, creds keychain.Credentials, source string) string {
	cfg := node.ConnectionConfigFor(t, creds)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", cfg.Redacted())
	fmt.Fprintf(&b, "Credentials: %s", source)
	if creds.IsZero() {
		b.WriteString(" (none)")
	}
	b.WriteString("\n")
	if t.Pool.MaxConns > 0 {
		fmt.Fprintf(&b, "Max conns:   %d\n", t.Pool.MaxConns)
	}
	if t.ConnectTimeout > 0 {
		fmt.Fprintf(&b, "Timeout:     %s\n", t.ConnectTimeout)
	}

	var users []string
	for _, n := range c.Nodes {
		if n.PostgresDB == id {
			users = append(users, n.ID)
		}
	}
	if len(users) == 0 {
		b.WriteString("Nodes:       none")
	} else {
		fmt.Fprintf(&b, "Nodes:       %s", strings.Join(users, ", "))
	}
	return b.String()
}
