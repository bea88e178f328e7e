// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package flow

import (
	"fmt"

	apperrors "pgmulti/cli/internal/errors"
	"pgmulti/cli/internal/logging"

	"github.com/pterm/pterm"
)

// Reporter forwards failures to the host error channel and to the diagnostic log.
// Report never panics and never returns an error: a broken error channel must
// not take the batch down with it.
type Reporter struct {
	node    string
	handler ErrorHandler
	logger  *pterm.Logger
}

// NewReporter builds a reporter for one node. A nil handler only logs; a nil
// logger discards diagnostics.
func NewReporter(node string, handler ErrorHandler, logger *pterm.Logger) *Reporter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Reporter{node: node, handler: handler, logger: logger}
}

// Report sends (err, msg) to the error channel and logs it.
func (r *Reporter) Report(err error, msg Message) {
	if r == nil || err == nil {
		return
	}

	r.log(err, msg)

	if r.handler == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("error handler panicked",
				r.logger.Args("node", r.node, "panic", logging.Mask(fmt.Sprint(p))))
		}
	}()
	r.handler.HandleError(err, msg)
}

func (r *Reporter) log(err error, msg Message) {
	args := []any{"node", r.node, "kind", string(apperrors.KindOf(err))}
	if id := msg.ID(); id != "" {
		args = append(args, "msgid", id)
	}
	args = append(args, "error", logging.Mask(err.Error()))

	switch apperrors.KindOf(err) {
	case apperrors.QueryFailed:
		r.logger.Warn("statement failed", r.logger.Args(args...))
	default:
		r.logger.Error("batch failed", r.logger.Args(args...))
	}
}
