// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"pgmulti/cli/internal/dsn"
	apperrors "pgmulti/cli/internal/errors"
	"pgmulti/cli/internal/sqlexec"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachable points at a port nothing listens on.
func unreachable() dsn.ConnectionConfig {
	return dsn.NewConnectionConfig("127.0.0.1", 1, "db", "u", "secret", false)
}

func TestNew_IsLazy(t *testing.T) {
	p, err := New(unreachable(), Options{MaxConns: 3})
	require.NoError(t, err, "New must not dial")
	defer p.Close()

	s := p.Stat()
	assert.Equal(t, int32(3), s.MaxConns)
	assert.Equal(t, int32(0), s.TotalConns)
	assert.Equal(t, unreachable(), p.Config())
}

func TestAcquire_UnreachableIsConnectionFailed(t *testing.T) {
	p, err := New(unreachable(), Options{ConnectTimeout: time.Second})
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err = p.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.ConnectionFailed))
	assert.NotContains(t, err.Error(), "secret")

	assert.True(t, apperrors.IsKind(p.Ping(ctx), apperrors.ConnectionFailed))
}

func TestClose_Idempotent(t *testing.T) {
	p, err := New(unreachable(), Options{})
	require.NoError(t, err)

	p.Close()
	assert.NotPanics(t, p.Close)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsBroken(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "syntax error", err: &pgconn.PgError{Code: "42601"}, want: false},
		{name: "division by zero", err: &pgconn.PgError{Code: "22012"}, want: false},
		{name: "unique violation wrapped", err: apperrors.Query(2, &pgconn.PgError{Code: "23505"}), want: false},
		{name: "admin shutdown", err: &pgconn.PgError{Code: "57P01"}, want: true},
		{name: "connection failure class", err: &pgconn.PgError{Code: "08006"}, want: true},
		{name: "bind error", err: fmt.Errorf("%w: id", sqlexec.ErrMissingParam), want: false},
		{name: "eof", err: io.EOF, want: true},
		{name: "unexpected eof wrapped", err: fmt.Errorf("read: %w", io.ErrUnexpectedEOF), want: true},
		{name: "closed network connection", err: net.ErrClosed, want: true},
		{name: "net timeout", err: &net.OpError{Op: "read", Err: timeoutErr{}}, want: true},
		{name: "context canceled", err: context.Canceled, want: true},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: true},
		{name: "other error", err: errors.New("cannot scan NULL"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBroken(tt.err))
		})
	}
}
