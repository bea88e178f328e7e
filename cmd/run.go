// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pgmulti/cli/internal/config"
	apperrors "pgmulti/cli/internal/errors"
	"pgmulti/cli/internal/flow"
	"pgmulti/cli/internal/host"
	"pgmulti/cli/internal/metrics"
	"pgmulti/cli/internal/node"
	"pgmulti/cli/internal/transport/redisq"

	"github.com/spf13/cobra"
)

var (
	runAcquireTimeout   time.Duration
	runStatementTimeout time.Duration
	runMetricsAddr      string
	runRedisURL         string
	runRedisIn          string
	runRedisOut         string
	runRedisErrors      string
)

// runCmd hosts one node.
var runCmd = &cobra.Command{
	Use:   "run [node]",
	Short: "Run a batch node over JSON lines or Redis lists",
	Long: `The run command hosts one node from the flow file. Each inbound message is a JSON
object whose payload is a list of statements; the node executes them in order on a
pooled connection and emits the resulting message.

By default messages are read from stdin and written to stdout, one per line, and
errors go to stderr as JSON lines. With --redis-url, messages are popped from the
--in list and pushed to the --out and --errors lists instead.

The node argument may be omitted when the flow file declares exactly one node.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		id, err := pickNode(c, args)
		if err != nil {
			return err
		}
		logger := newLogger(c)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var (
			src    host.Source
			sender flow.Sender
			errs   flow.ErrorHandler
		)
		if runRedisURL != "" {
			client, err := redisq.Dial(ctx, runRedisURL)
			if err != nil {
				return err
			}
			defer client.Close()
			sink := redisq.NewSink(client, runRedisOut, runRedisErrors, logger)
			src, sender, errs = redisq.NewSource(client, runRedisIn, 0), sink, sink
		} else {
			ls := host.NewLineSource(os.Stdin)
			defer ls.Close()
			src = ls
			sender = flow.NewLineWriter(os.Stdout)
			errs = flow.NewLineWriter(os.Stderr)
		}

		creds, err := credentialSource(ctx, c, logger)
		if err != nil {
			return err
		}
		m := metrics.New()
		n, err := node.FromConfig(c, id, node.Deps{
			Credentials: creds,
			Sender:      sender,
			Errors:      errs,
			Metrics:     m,
			Logger:      logger,
		}, node.WithStatementTimeout(runStatementTimeout))
		if err != nil {
			return err
		}
		defer n.Close()

		if runMetricsAddr != "" {
			srv := &http.Server{Addr: runMetricsAddr, Handler: m.Handler(), ReadHeaderTimeout: 10 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("metrics listener stopped", logger.Args("addr", runMetricsAddr, "error", err.Error()))
				}
			}()
			defer srv.Close()
		}

		logger.Info("node running", logger.Args("node", id, "configured", n.Configured()))
		err = host.Run(ctx, src, n, host.Options{
			BatchTimeout: runAcquireTimeout,
			Errors:       errs,
			Logger:       logger,
		})
		logger.Info("node stopped", logger.Args("node", id))
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().DurationVar(&runAcquireTimeout, "acquire-timeout", 0, "Bound each batch, including the wait for a connection (0 = none)")
	runCmd.Flags().DurationVar(&runStatementTimeout, "statement-timeout", 0, "Bound each statement (0 = none)")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	runCmd.Flags().StringVar(&runRedisURL, "redis-url", "", "Read and write messages through Redis lists (redis://host:port/db)")
	runCmd.Flags().StringVar(&runRedisIn, "in", "pgmulti:in", "Redis list to pop inbound messages from")
	runCmd.Flags().StringVar(&runRedisOut, "out", "pgmulti:out", "Redis list to push outbound messages to")
	runCmd.Flags().StringVar(&runRedisErrors, "errors", "pgmulti:errors", "Redis list to push error envelopes to (empty to drop)")
}

// pickNode returns the node id to host.
func pickNode(c config.Config, args []string) (string, error) {
	if len(args) == 1 {
		if _, ok := c.Node(args[0]); !ok {
			return "", apperrors.New(apperrors.ConfigInvalid, fmt.Sprintf("node %q is not defined in the flow file", args[0]))
		}
		return args[0], nil
	}
	switch len(c.Nodes) {
	case 0:
		return "", apperrors.New(apperrors.ConfigInvalid, "the flow file declares no nodes")
	case 1:
		return c.Nodes[0].ID, nil
	default:
		return "", apperrors.New(apperrors.ConfigInvalid, fmt.Sprintf("the flow file declares %d nodes; name one", len(c.Nodes)))
	}
}
