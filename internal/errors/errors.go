// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package errors defines typed errors with categories for user-friendly reporting.
// It provides a structured approach to error handling with machine-readable error kinds
// and human-friendly messages, so the connector can tell a malformed payload from an
// unreachable database or a failed statement without parsing error text.
//
// Errors wrap their underlying cause, so errors.As on the driver error (for example
// *pgconn.PgError) keeps working through an *E.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// ConfigurationMissing indicates a node without a linked database target.
	ConfigurationMissing Kind = "configuration_missing"
	// PayloadShape indicates an inbound payload that is not a list of statements.
	PayloadShape Kind = "payload_shape"
	// ConnectionFailed indicates the pool could not hand out a connection.
	ConnectionFailed Kind = "connection_failed"
	// QueryFailed indicates a single statement failed to execute.
	QueryFailed Kind = "query_failed"
	// CredentialsUnavailable indicates the credential store could not be used.
	CredentialsUnavailable Kind = "credentials_unavailable"
	// ConfigInvalid indicates a flow file that cannot be loaded or resolved.
	ConfigInvalid Kind = "config_invalid"
)

// E wraps an error with kind and human-friendly message.
// Statement is the zero-based position of the failing statement for QueryFailed
// errors and -1 otherwise.
type E struct {
	Kind      Kind
	Message   string
	Statement int
	Err       error
}

func (e *E) Error() string {
	msg := e.Message
	if e.Kind == QueryFailed && e.Statement >= 0 {
		msg = fmt.Sprintf("statement %d: %s", e.Statement, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *E) Unwrap() error { return e.Err }

// Is reports whether target is an *E of the same kind, so callers can match with
// errors.Is(err, errors.New(errors.PayloadShape, "")).
func (e *E) Is(target error) bool {
	t, ok := target.(*E)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func Wrap(kind Kind, msg string, err error) *E {
	return &E{Kind: kind, Message: msg, Statement: -1, Err: err}
}

func New(kind Kind, msg string) *E { return &E{Kind: kind, Message: msg, Statement: -1} }

// Query wraps a statement failure with its position in the batch.
func Query(index int, err error) *E {
	return &E{Kind: QueryFailed, Message: "query failed", Statement: index, Err: err}
}

// KindOf returns the kind of the first *E in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
