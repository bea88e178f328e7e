// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package flow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	apperrors "pgmulti/cli/internal/errors"
	"pgmulti/cli/internal/logging"
)

// Sender delivers outbound messages to the host.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ErrorHandler is the host's error channel. Implementations must be safe for
// concurrent use.
type ErrorHandler interface {
	HandleError(err error, msg Message)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// ErrorHandlerFunc adapts a function to ErrorHandler.
type ErrorHandlerFunc func(err error, msg Message)

func (f ErrorHandlerFunc) HandleError(err error, msg Message) { f(err, msg) }

// ErrorEnvelope is the wire form of an error-channel message.
type ErrorEnvelope struct {
	Error     string  `json:"error"`
	Kind      string  `json:"kind,omitempty"`
	Statement *int    `json:"statement,omitempty"`
	Msg       Message `json:"msg"`
}

// NewErrorEnvelope builds the wire form of (err, msg). The error text is masked.
func NewErrorEnvelope(err error, msg Message) ErrorEnvelope {
	env := ErrorEnvelope{
		Error: logging.Mask(err.Error()),
		Kind:  string(apperrors.KindOf(err)),
		Msg:   msg,
	}
	var e *apperrors.E
	if errors.As(err, &e) && e.Kind == apperrors.QueryFailed && e.Statement >= 0 {
		idx := e.Statement
		env.Statement = &idx
	}
	return env
}

// LineWriter writes messages as JSON lines. A single LineWriter may be shared by
// concurrent batches; each line is written atomically.
type LineWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewLineWriter returns a LineWriter on w.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{enc: json.NewEncoder(w)}
}

// Send writes msg as one line.
func (w *LineWriter) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.write(msg)
}

// HandleError writes the error envelope of (err, msg) as one line.
func (w *LineWriter) HandleError(err error, msg Message) {
	_ = w.write(NewErrorEnvelope(err, msg))
}

func (w *LineWriter) write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(v)
}
