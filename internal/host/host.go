// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package host drives a node from a stream of raw messages: it decodes each
// message, stamps it with an id and runs it on its own goroutine, so a slow
// batch never holds up the ones behind it. The pool's capacity is what bounds
// how many batches touch the database at once.
package host

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"pgmulti/cli/internal/batch"
	apperrors "pgmulti/cli/internal/errors"
	"pgmulti/cli/internal/flow"
	"pgmulti/cli/internal/logging"

	"github.com/pterm/pterm"
)

// MaxLineBytes bounds one inbound message on a line source.
const MaxLineBytes = 16 << 20

// Source yields raw inbound messages. Next returns io.EOF when the stream ends
// and ctx.Err() once ctx is done.
type Source interface {
	Next(ctx context.Context) ([]byte, error)
}

// Node is the part of a node the host drives.
type Node interface {
	ID() string
	Input(ctx context.Context, msg flow.Message) (*batch.Outcome, error)
}

// Options tune Run.
type Options struct {
	// BatchTimeout bounds each batch, including the wait for a connection.
	// Zero means none.
	BatchTimeout time.Duration
	// Errors receives messages that cannot be decoded.
	Errors flow.ErrorHandler
	Logger *pterm.Logger
}

// Run feeds messages from src to n until the source ends or ctx is done, then
// waits for in-flight batches. Batches are detached from ctx: a shutdown stops
// intake but lets started batches finish and release their connections.
//
// Run returns nil on a clean end of input or cancellation, and the source error
// otherwise.
func Run(ctx context.Context, src Source, n Node, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	reporter := flow.NewReporter(n.ID(), opts.Errors, logger)

	var (
		wg      sync.WaitGroup
		runErr  error
		batches int
	)
	for {
		raw, err := src.Next(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				runErr = err
				reporter.Report(apperrors.Wrap(apperrors.PayloadShape, "failed to read input", err), flow.Message{"node": n.ID()})
			}
			break
		}

		msg, err := flow.Decode(raw)
		if err != nil {
			reporter.Report(apperrors.Wrap(apperrors.PayloadShape, "invalid message", err), flow.Message{"node": n.ID()})
			continue
		}
		msg = msg.WithID()
		batches++

		wg.Add(1)
		go func(msg flow.Message) {
			defer wg.Done()
			bctx := context.WithoutCancel(ctx)
			if opts.BatchTimeout > 0 {
				var cancel context.CancelFunc
				bctx, cancel = context.WithTimeout(bctx, opts.BatchTimeout)
				defer cancel()
			}
			// The node sends and reports the outcome itself.
			_, _ = n.Input(bctx, msg)
		}(msg)
	}

	logger.Debug("input closed, draining in-flight batches", logger.Args("node", n.ID(), "batches", batches))
	wg.Wait()
	return runErr
}

// LineSource reads one message per line. Blank lines are skipped.
type LineSource struct {
	once  sync.Once
	r     io.Reader
	lines chan []byte
	err   error

	done      chan struct{}
	closeOnce sync.Once
}

// NewLineSource returns a source over r. Reading starts on the first Next.
func NewLineSource(r io.Reader) *LineSource {
	return &LineSource{r: r, lines: make(chan []byte), done: make(chan struct{})}
}

// Close stops the reader goroutine. A read already blocked on r still holds it
// until that read returns; its line is then dropped. Close does not close r.
func (s *LineSource) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// Next returns the next non-empty line. A blocked read on r does not keep Next
// from returning when ctx is done.
func (s *LineSource) Next(ctx context.Context) ([]byte, error) {
	s.once.Do(func() { go s.scan() })

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			if s.err != nil {
				return nil, s.err
			}
			return nil, io.EOF
		}
		return line, nil
	}
}

func (s *LineSource) scan() {
	defer close(s.lines)
	sc := bufio.NewScanner(s.r)
	sc.Buffer(make([]byte, 64<<10), MaxLineBytes)
	for sc.Scan() {
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		// The scanner reuses its buffer.
		select {
		case s.lines <- append([]byte(nil), b...):
		case <-s.done:
			return
		}
	}
	s.err = sc.Err()
}
