// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"strings"
	"time"

	"pgmulti/cli/internal/admin"

	"github.com/spf13/cobra"
)

var (
	tokenSubject string
	tokenPerms   []string
	tokenTTL     time.Duration
)

// tokenCmd issues bearer tokens for the admin API.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the admin API",
	Long: `The token command signs a token with admin.jwt_secret from the flow file.
Permissions are postgresdb.read, postgresdb.write or * for both.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		if c.Admin.JWTSecret == "" {
			return fmt.Errorf("admin.jwt_secret is not set in the flow file")
		}
		for _, p := range tokenPerms {
			switch p {
			case admin.PermRead, admin.PermWrite, admin.PermAll:
			default:
				return fmt.Errorf("unknown permission %q (want %s)", p, strings.Join([]string{admin.PermRead, admin.PermWrite, admin.PermAll}, ", "))
			}
		}

		tok, err := admin.IssueToken([]byte(c.Admin.JWTSecret), tokenSubject, tokenPerms, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "Token subject")
	tokenCmd.Flags().StringSliceVar(&tokenPerms, "perm", []string{admin.PermRead}, "Granted permissions")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token lifetime")
}
