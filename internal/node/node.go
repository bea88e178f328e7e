// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package node assembles one batch-executing node: its connection settings,
// its pool, its runner and its error reporter. A Node owns its pool; there is no
// process-wide pool shared between nodes.
package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pgmulti/cli/internal/batch"
	"pgmulti/cli/internal/config"
	"pgmulti/cli/internal/dsn"
	apperrors "pgmulti/cli/internal/errors"
	"pgmulti/cli/internal/flow"
	"pgmulti/cli/internal/keychain"
	"pgmulti/cli/internal/logging"
	"pgmulti/cli/internal/metrics"
	"pgmulti/cli/internal/pool"
	"pgmulti/cli/internal/sqlexec"

	"github.com/pterm/pterm"
)

// Settings are the non-secret settings of a node.
type Settings struct {
	ID   string
	Name string
	// Output enables outbound messages.
	Output bool
	// TargetID is the linked database target; credentials are stored under it.
	TargetID string
	// Target is nil when the node has no (or a dangling) database link.
	Target *config.Target
	// StatementTimeout bounds each statement; zero means none.
	StatementTimeout time.Duration
}

// CredentialSource resolves stored credentials for a target id.
type CredentialSource interface {
	Resolve(id string) (keychain.Credentials, error)
}

// Deps are the collaborators a node talks to.
type Deps struct {
	Credentials CredentialSource
	Sender      flow.Sender
	Errors      flow.ErrorHandler
	Metrics     *metrics.Metrics
	Logger      *pterm.Logger
}

// Node runs batches for one configured node.
type Node struct {
	settings Settings
	reporter *flow.Reporter
	logger   *pterm.Logger

	pool      *pool.Pool
	runner    *batch.Runner
	unwatch   func()
	configErr error

	closeOnce sync.Once
}

// Option adjusts the settings FromConfig derives from a flow file.
type Option func(*Settings)

// WithStatementTimeout bounds each statement the node runs.
func WithStatementTimeout(d time.Duration) Option {
	return func(s *Settings) { s.StatementTimeout = d }
}

// FromConfig builds the node with the given id from a flow file.
func FromConfig(c config.Config, id string, d Deps, opts ...Option) (*Node, error) {
	n, ok := c.Node(id)
	if !ok {
		return nil, apperrors.New(apperrors.ConfigInvalid, fmt.Sprintf("node %q is not defined", id))
	}
	s := Settings{ID: n.ID, Name: n.Name, Output: n.Output, TargetID: n.PostgresDB}
	if t, ok := c.Target(n.PostgresDB); ok {
		s.Target = &t
	}
	for _, opt := range opts {
		opt(&s)
	}
	return New(s, d)
}

// New resolves the node's target and credentials and builds its pool. The pool
// connects lazily, so New does no network I/O.
//
// A node without a database link is not an error: it is created unconfigured,
// ConfigurationMissing is reported once here, and every Input fails fast with it.
func New(s Settings, d Deps) (*Node, error) {
	if s.Target == nil {
		n := newNode(s, d)
		what := "no database configured"
		if s.TargetID != "" {
			what = fmt.Sprintf("database %q is not defined", s.TargetID)
		}
		n.configErr = apperrors.New(apperrors.ConfigurationMissing, fmt.Sprintf("node %s: %s", s.ID, what))
		n.reporter.Report(n.configErr, flow.Message{"node": s.ID})
		return n, nil
	}

	var creds keychain.Credentials
	if d.Credentials != nil {
		var err error
		creds, err = d.Credentials.Resolve(s.TargetID)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CredentialsUnavailable, "failed to read credentials for "+s.TargetID, err)
		}
	}

	return Open(s, ConnectionConfigFor(*s.Target, creds), PoolOptions(*s.Target), d)
}

// Open builds a node on already resolved connection settings.
func Open(s Settings, cfg dsn.ConnectionConfig, opts pool.Options, d Deps) (*Node, error) {
	n := newNode(s, d)
	if opts.Logger == nil {
		opts.Logger = n.logger
	}

	p, err := pool.New(cfg, opts)
	if err != nil {
		return nil, err
	}
	n.pool = p
	n.unwatch = d.Metrics.WatchPool(s.ID, p)
	n.runner = batch.New(batch.FromPool(p), sqlexec.New(s.StatementTimeout), n.reporter, batch.Options{
		Node:    s.ID,
		Output:  s.Output,
		Sender:  d.Sender,
		Metrics: d.Metrics,
		Logger:  n.logger,
	})

	n.logger.Debug("node ready", n.logger.Args("node", s.ID, "target", cfg.Redacted()))
	return n, nil
}

func newNode(s Settings, d Deps) *Node {
	logger := d.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Node{
		settings: s,
		reporter: flow.NewReporter(s.ID, d.Errors, logger),
		logger:   logger,
		unwatch:  func() {},
	}
}

// ID returns the node id.
func (n *Node) ID() string { return n.settings.ID }

// Settings returns the settings the node was built with.
func (n *Node) Settings() Settings { return n.settings }

// Configured reports whether the node has a database.
func (n *Node) Configured() bool { return n.configErr == nil }

// Pool returns the node's pool, or nil when it is unconfigured.
func (n *Node) Pool() *pool.Pool { return n.pool }

// Input runs the batch carried by msg. It is safe for concurrent use; each call
// is independent and waits for a pooled connection.
func (n *Node) Input(ctx context.Context, msg flow.Message) (*batch.Outcome, error) {
	if n.configErr != nil {
		return nil, n.configErr
	}
	return n.runner.Run(ctx, msg)
}

// Close tears down the pool. In-flight batches fail naturally once their
// connection is gone. Close is idempotent.
func (n *Node) Close() {
	n.closeOnce.Do(func() {
		n.unwatch()
		if n.pool != nil {
			n.pool.Close()
		}
	})
}

// ConnectionConfigFor combines a target with its credentials.
func ConnectionConfigFor(t config.Target, c keychain.Credentials) dsn.ConnectionConfig {
	return dsn.NewConnectionConfig(t.Hostname, t.Port, t.DB, c.User, c.Password, t.SSL)
}

// PoolOptions maps a target's pool tuning onto pool options.
func PoolOptions(t config.Target) pool.Options {
	return pool.Options{
		MaxConns:          t.Pool.MaxConns,
		MinConns:          t.Pool.MinConns,
		MaxConnLifetime:   t.Pool.MaxConnLifetime,
		MaxConnIdleTime:   t.Pool.MaxConnIdleTime,
		HealthCheckPeriod: t.Pool.HealthCheckPeriod,
		ConnectTimeout:    t.ConnectTimeout,
		ApplicationName:   t.ApplicationName,
	}
}
