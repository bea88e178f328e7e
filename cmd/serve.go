// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"pgmulti/cli/internal/admin"
	"pgmulti/cli/internal/metrics"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	serveAddr string
)

// serveCmd runs the credential admin API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the credential admin API",
	Long: `The serve command exposes GET, POST and DELETE on /postgresdb/{id} to read,
update and remove the credentials of a database target, plus /health and /metrics.
Passwords are never returned; GET only reports whether one is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		km, err := openKeychain()
		if err != nil {
			return err
		}

		addr := c.Admin.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		srv := admin.New(km, admin.Options{
			Addr:           addr,
			AllowedOrigins: c.Admin.AllowedOrigins,
			JWTSecret:      []byte(c.Admin.JWTSecret),
			Metrics:        metrics.New(),
			Logger:         newLogger(c),
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		pterm.Printf("Admin API listening on http://%s\n", addr)
		if c.Admin.JWTSecret == "" {
			pterm.Println("⚠️  admin.jwt_secret is not set; credential routes are unauthenticated")
		}
		return srv.ListenAndServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides admin.addr in the flow file)")
}
