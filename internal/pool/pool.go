// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package pool owns the pgx connection pool of one node.
//
// A Pool is bound to exactly one dsn.ConnectionConfig and lives as long as the
// node that created it. Connections are opened lazily: New performs no network
// I/O, the first Acquire dials and authenticates.
package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pgmulti/cli/internal/dsn"
	apperrors "pgmulti/cli/internal/errors"
	"pgmulti/cli/internal/logging"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pterm/pterm"
)

// closeTimeout bounds the close handshake of a discarded connection.
const closeTimeout = 5 * time.Second

// Options tune the pool. Zero values keep pgxpool defaults.
type Options struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
	ApplicationName   string
	// Logger receives pool diagnostics; nil discards them.
	Logger *pterm.Logger
}

// Stats is a point-in-time snapshot of the pool.
type Stats struct {
	MaxConns        int32
	TotalConns      int32
	IdleConns       int32
	AcquiredConns   int32
	AcquireCount    int64
	EmptyAcquire    int64
	CanceledAcquire int64
	Discarded       int64
}

// Pool hands out leased connections against one ConnectionConfig.
type Pool struct {
	cfg    dsn.ConnectionConfig
	pgx    *pgxpool.Pool
	logger *pterm.Logger

	discarded atomic.Int64
	closeOnce sync.Once
}

// New builds a pool for cfg. It validates the configuration but does not connect.
func New(cfg dsn.ConnectionConfig, opts Options) (*Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ConfigInvalid, "invalid connection settings for "+cfg.Redacted(), err)
	}

	if opts.MaxConns > 0 {
		pc.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		pc.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	if opts.HealthCheckPeriod > 0 {
		pc.HealthCheckPeriod = opts.HealthCheckPeriod
	}
	if opts.ConnectTimeout > 0 {
		pc.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}
	if opts.ApplicationName != "" {
		pc.ConnConfig.RuntimeParams["application_name"] = opts.ApplicationName
	}

	// NewWithConfig only starts the background health checker; with MinConns
	// at zero no connection is opened until the first Acquire.
	p, err := pgxpool.NewWithConfig(context.Background(), pc)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ConfigInvalid, "failed to create pool for "+cfg.Redacted(), err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Pool{cfg: cfg, pgx: p, logger: logger}, nil
}

// Config returns the connection settings the pool was built with.
func (p *Pool) Config() dsn.ConnectionConfig { return p.cfg }

// Acquire leases a connection, waiting while the pool is at capacity. Any
// failure (unreachable host, bad credentials, ctx done) is a ConnectionFailed error.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	c, err := p.pgx.Acquire(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ConnectionFailed, "failed to acquire connection to "+p.cfg.Redacted(), err)
	}
	return &Conn{conn: c, pool: p}, nil
}

// Ping acquires a connection and round-trips to the server.
func (p *Pool) Ping(ctx context.Context) error {
	c, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	err = c.conn.Ping(ctx)
	c.Release(err)
	if err != nil {
		return apperrors.Wrap(apperrors.ConnectionFailed, "ping failed", err)
	}
	return nil
}

// Stat returns current pool counters.
func (p *Pool) Stat() Stats {
	s := p.pgx.Stat()
	return Stats{
		MaxConns:        s.MaxConns(),
		TotalConns:      s.TotalConns(),
		IdleConns:       s.IdleConns(),
		AcquiredConns:   s.AcquiredConns(),
		AcquireCount:    s.AcquireCount(),
		EmptyAcquire:    s.EmptyAcquireCount(),
		CanceledAcquire: s.CanceledAcquireCount(),
		Discarded:       p.discarded.Load(),
	}
}

// Close closes every connection. It is safe to call more than once and never panics.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Warn("pool close panicked", p.logger.Args("target", p.cfg.Redacted(), "panic", fmt.Sprint(r)))
			}
		}()
		p.pgx.Close()
		p.logger.Debug("pool closed", p.logger.Args("target", p.cfg.Redacted()))
	})
}

// Conn is a leased connection. It belongs to one batch until Release.
type Conn struct {
	conn *pgxpool.Conn
	pool *Pool
	once sync.Once
}

// Query runs sql on the leased connection.
func (c *Conn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return c.conn.Query(ctx, sql, args...)
}

// Release gives the connection back. lastErr is the last error seen on it:
// when it shows the session itself is broken the connection is closed and
// dropped from the pool instead of being reused. Only the first call has an
// effect; Release never panics.
func (c *Conn) Release(lastErr error) {
	c.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				c.pool.logger.Warn("connection release panicked", c.pool.logger.Args("panic", fmt.Sprint(r)))
			}
		}()

		if !IsBroken(lastErr) {
			c.conn.Release()
			return
		}

		raw := c.conn.Hijack()
		c.pool.discarded.Add(1)
		c.pool.logger.Debug("discarding broken connection",
			c.pool.logger.Args("target", c.pool.cfg.Redacted(), "error", logging.Mask(lastErr.Error())))

		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		_ = raw.Close(ctx)
	})
}

// IsBroken reports whether err means the session can no longer be trusted:
// I/O failures, timeouts, cancellation mid-query, or a server error in the
// connection-exception / operator-intervention classes. Ordinary SQL errors
// and bind errors leave the session usable.
func IsBroken(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P")
	}

	if pgconn.Timeout(err) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
