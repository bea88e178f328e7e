// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"strings"

	"pgmulti/cli/internal/keychain"
	"pgmulti/cli/internal/terminal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	credsUser string
)

// credsCmd groups the credential subcommands.
var credsCmd = &cobra.Command{
	Use:   "creds",
	Short: "Manage database credentials in the OS keychain",
	Long: `Credentials are stored per database target id, never in the flow file.
When a target has no stored entry, PGMULTI_USER and PGMULTI_PASSWORD are used.`,
}

var credsGetCmd = &cobra.Command{
	Use:   "get <target>",
	Short: "Show the stored user for a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := openKeychain()
		if err != nil {
			return err
		}
		c, ok, err := km.Get(args[0])
		if err != nil {
			return err
		}
		if !ok {
			pterm.Printf("No credentials stored for %s\n", args[0])
			return nil
		}
		pw := "not set"
		if c.HasPassword() {
			pw = "set"
		}
		pterm.Printf("User:     %s\nPassword: %s\n", c.User, pw)
		return nil
	},
}

var credsSetCmd = &cobra.Command{
	Use:   "set <target>",
	Short: "Store a user and password for a target",
	Long: `Prompts for the user (unless --user is given) and the password. Input is not
echoed on a terminal; when stdin is piped the password is read as one line.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		km, err := openKeychain()
		if err != nil {
			return err
		}

		user := credsUser
		if user == "" {
			if user, err = terminal.ReadLine("User: "); err != nil {
				return fmt.Errorf("failed to read user: %w", err)
			}
		}
		password, err := terminal.ReadSecret("Password: ")
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}

		if terminal.IsInteractive() {
			prompts := []string{"Password: "}
			if credsUser == "" {
				prompts = append([]string{"User: " + user}, prompts...)
			}
			terminal.ClearPrompts(prompts...)
		}

		if err := km.Set(id, keychain.Credentials{User: strings.TrimSpace(user), Password: password}); err != nil {
			pterm.Println("❌ Failed to store credentials.")
			return err
		}
		pterm.Printf("✅ Credentials for %s saved\n", id)
		return nil
	},
}

var credsDeleteCmd = &cobra.Command{
	Use:   "delete <target>",
	Short: "Remove stored credentials for a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := openKeychain()
		if err != nil {
			return err
		}
		if err := km.Delete(args[0]); err != nil {
			return err
		}
		pterm.Printf("Credentials for %s removed\n", args[0])
		return nil
	},
}

var credsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List targets with stored credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := openKeychain()
		if err != nil {
			return err
		}
		ids, err := km.IDs()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			pterm.Println("No credentials stored")
			return nil
		}
		for _, id := range ids {
			pterm.Println(id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(credsCmd)
	credsCmd.AddCommand(credsGetCmd, credsSetCmd, credsDeleteCmd, credsListCmd)
	credsSetCmd.Flags().StringVar(&credsUser, "user", "", "Database user (prompted when omitted)")
}

// envCredentials resolves every target from PGMULTI_USER / PGMULTI_PASSWORD.
type envCredentials struct{}

func (envCredentials) Resolve(string) (keychain.Credentials, error) {
	return keychain.FromEnv(), nil
}
