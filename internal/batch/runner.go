// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package batch runs one inbound message's statements against one leased
// connection and aggregates the outcome.
//
// A batch moves through Validating, Acquiring, Executing(i), Releasing and
// Completed. Validation and acquisition failures end the batch early; a failing
// statement only marks its own position and the batch carries on. Statements run
// strictly in order because later ones may read what earlier ones wrote. There
// is no implicit transaction: a batch is a unit of convenience, not atomicity.
package batch

import (
	"context"
	"fmt"
	"time"

	apperrors "pgmulti/cli/internal/errors"
	"pgmulti/cli/internal/flow"
	"pgmulti/cli/internal/logging"
	"pgmulti/cli/internal/metrics"
	"pgmulti/cli/internal/pool"
	"pgmulti/cli/internal/sqlexec"

	"github.com/pterm/pterm"
)

// FailedCount marks a failed statement in QueryCounts.
const FailedCount = -1

// Lease is a connection held for the duration of one batch.
type Lease interface {
	sqlexec.Querier
	// Release returns the connection; lastErr decides whether it is reused.
	Release(lastErr error)
}

// Pool hands out leases.
type Pool interface {
	Acquire(ctx context.Context) (Lease, error)
}

// Executor runs one statement on a lease.
type Executor interface {
	Execute(ctx context.Context, q sqlexec.Querier, query string, params sqlexec.Params) ([]sqlexec.Row, error)
}

// Reporter receives every failure together with the message that caused it.
type Reporter interface {
	Report(err error, msg flow.Message)
}

// Outcome is the result of one batch.
type Outcome struct {
	// QueryCounts has one entry per statement: its row count or FailedCount.
	QueryCounts []int
	// Rows concatenates the rows of successful statements marked for output.
	Rows []sqlexec.Row
	// Failed is the number of failed statements.
	Failed int
	// Message is the inbound message annotated with _queryCounts. It is what
	// downstream error handlers see when no outbound message is produced.
	Message flow.Message
	// Sent reports whether an outbound message was emitted.
	Sent bool
}

// Options configure a Runner.
type Options struct {
	// Node labels logs and metrics.
	Node string
	// Output enables outbound messages.
	Output bool
	// Sender receives the outbound message when Output is set.
	Sender  flow.Sender
	Metrics *metrics.Metrics
	Logger  *pterm.Logger
}

// Runner executes batches. It holds no per-batch state, so one Runner serves
// any number of concurrent Run calls; the pool bounds how many make progress.
type Runner struct {
	pool     Pool
	exec     Executor
	reporter Reporter
	opts     Options
	logger   *pterm.Logger
}

// New creates a Runner.
func New(p Pool, exec Executor, reporter Reporter, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{pool: p, exec: exec, reporter: reporter, opts: opts, logger: logger}
}

// Run executes the batch carried by msg.
//
// A malformed payload or a failed acquisition is reported once and returned;
// no statement runs and nothing is sent. Otherwise Run returns the outcome and
// a nil error even when statements failed: each failure has been reported and
// is visible as FailedCount in the outcome.
func (r *Runner) Run(ctx context.Context, msg flow.Message) (*Outcome, error) {
	payload, _ := msg.Payload()
	stmts, err := Decode(payload)
	if err != nil {
		r.report(err, msg)
		r.opts.Metrics.ObserveBatch(r.opts.Node, metrics.BatchRejected)
		return nil, err
	}

	start := time.Now()
	lease, err := r.pool.Acquire(ctx)
	r.opts.Metrics.ObserveAcquire(r.opts.Node, time.Since(start))
	if err != nil {
		if apperrors.KindOf(err) != apperrors.ConnectionFailed {
			err = apperrors.Wrap(apperrors.ConnectionFailed, "failed to acquire connection", err)
		}
		r.report(err, msg)
		r.opts.Metrics.ObserveBatch(r.opts.Node, metrics.BatchConnectionFailed)
		return nil, err
	}

	out := r.execute(ctx, lease, stmts, msg)

	out.Message = msg.WithQueryCounts(out.QueryCounts)
	if r.opts.Output && r.opts.Sender != nil {
		if err := r.opts.Sender.Send(ctx, out.Message.WithPayload(out.Rows)); err != nil {
			r.report(fmt.Errorf("failed to send outbound message: %w", err), out.Message)
		} else {
			out.Sent = true
			r.opts.Metrics.ObserveRows(r.opts.Node, len(out.Rows))
		}
	}

	result := metrics.BatchOK
	if out.Failed > 0 {
		result = metrics.BatchPartial
	}
	r.opts.Metrics.ObserveBatch(r.opts.Node, result)
	r.logger.Debug("batch completed", r.logger.Args(
		"node", r.opts.Node,
		"statements", len(stmts),
		"failed", out.Failed,
		"rows", len(out.Rows),
		"duration", time.Since(start).String(),
	))

	return out, nil
}

// execute runs every statement in order on lease and releases it exactly once.
func (r *Runner) execute(ctx context.Context, lease Lease, stmts []Statement, msg flow.Message) *Outcome {
	out := &Outcome{
		QueryCounts: make([]int, 0, len(stmts)),
		Rows:        []sqlexec.Row{},
	}

	var lastErr error
	defer func() { r.release(lease, lastErr) }()

	for i, st := range stmts {
		t0 := time.Now()
		rows, err := r.exec.Execute(ctx, lease, st.Query, st.Params)
		r.opts.Metrics.ObserveStatement(r.opts.Node, err != nil, time.Since(t0))

		if err != nil {
			lastErr = err
			out.Failed++
			out.QueryCounts = append(out.QueryCounts, FailedCount)
			r.report(apperrors.Query(i, err), msg.WithQueryCounts(out.QueryCounts))
			continue
		}

		lastErr = nil
		out.QueryCounts = append(out.QueryCounts, len(rows))
		if st.Emit && r.opts.Output {
			out.Rows = append(out.Rows, rows...)
		}
	}
	return out
}

func (r *Runner) release(lease Lease, lastErr error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("connection release panicked", r.logger.Args("node", r.opts.Node, "panic", fmt.Sprint(p)))
		}
	}()
	lease.Release(lastErr)
}

func (r *Runner) report(err error, msg flow.Message) {
	if r.reporter != nil {
		r.reporter.Report(err, msg)
	}
}

// FromPool adapts a *pool.Pool to the runner's Pool interface.
func FromPool(p *pool.Pool) Pool { return pgPool{p} }

type pgPool struct{ p *pool.Pool }

func (a pgPool) Acquire(ctx context.Context) (Lease, error) {
	c, err := a.p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}
