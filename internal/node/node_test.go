// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package node

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pgmulti/cli/internal/config"
	apperrors "pgmulti/cli/internal/errors"
	"pgmulti/cli/internal/flow"
	"pgmulti/cli/internal/keychain"
	"pgmulti/cli/internal/metrics"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type errorSink struct {
	mu   sync.Mutex
	errs []error
	msgs []flow.Message
}

func (s *errorSink) HandleError(err error, msg flow.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
	s.msgs = append(s.msgs, msg)
}

func (s *errorSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs)
}

type failingCreds struct{}

func (failingCreds) Resolve(string) (keychain.Credentials, error) {
	return keychain.Credentials{}, errors.New("keyring locked")
}

func TestNew_UnconfiguredReportsOnce(t *testing.T) {
	sink := &errorSink{}
	n, err := New(Settings{ID: "n1", TargetID: "gone"}, Deps{Errors: sink})
	require.NoError(t, err)
	defer n.Close()

	assert.False(t, n.Configured())
	assert.Nil(t, n.Pool())
	require.Equal(t, 1, sink.count())
	assert.True(t, apperrors.IsKind(sink.errs[0], apperrors.ConfigurationMissing))
	assert.Contains(t, sink.errs[0].Error(), `"gone"`)

	for i := 0; i < 3; i++ {
		out, err := n.Input(context.Background(), flow.Message{"payload": []any{}})
		assert.Nil(t, out)
		assert.True(t, apperrors.IsKind(err, apperrors.ConfigurationMissing))
	}
	assert.Equal(t, 1, sink.count(), "ConfigurationMissing is reported at construction only")
}

func TestFromConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Targets["orders"] = config.Target{Hostname: "127.0.0.1", Port: 1, DB: "orders", ConnectTimeout: time.Second}
	cfg.Nodes = []config.Node{
		{ID: "linked", PostgresDB: "orders", Output: true},
		{ID: "dangling", PostgresDB: "missing"},
	}

	ring := keychain.NewManagerWithRing(keyring.NewArrayKeyring(nil))
	require.NoError(t, ring.Set("orders", keychain.Credentials{User: "app", Password: "pw"}))

	sink := &errorSink{}
	m := metrics.New()
	deps := Deps{Credentials: ring, Errors: sink, Metrics: m}

	linked, err := FromConfig(cfg, "linked", deps)
	require.NoError(t, err)
	defer linked.Close()
	require.True(t, linked.Configured())

	pc := linked.Pool().Config()
	assert.Equal(t, "app", pc.User)
	assert.Equal(t, "pw", pc.Password)
	assert.Equal(t, 1, pc.Port)
	assert.Equal(t, "disable", pc.SSLMode())

	dangling, err := FromConfig(cfg, "dangling", deps)
	require.NoError(t, err)
	assert.False(t, dangling.Configured())

	_, err = FromConfig(cfg, "absent", deps)
	assert.True(t, apperrors.IsKind(err, apperrors.ConfigInvalid))

	_, err = FromConfig(cfg, "absent", deps, WithStatementTimeout(time.Second))
	assert.True(t, apperrors.IsKind(err, apperrors.ConfigInvalid), "options do not bypass the lookup")

	timed, err := FromConfig(cfg, "linked", deps, WithStatementTimeout(3*time.Second))
	require.NoError(t, err)
	defer timed.Close()
	assert.Equal(t, 3*time.Second, timed.Settings().StatementTimeout)
	assert.Zero(t, linked.Settings().StatementTimeout)
}

func TestNew_CredentialsUnavailable(t *testing.T) {
	_, err := New(Settings{ID: "n1", TargetID: "t", Target: &config.Target{Hostname: "h", DB: "d"}}, Deps{Credentials: failingCreds{}})
	assert.True(t, apperrors.IsKind(err, apperrors.CredentialsUnavailable))
}

func TestInput_UnreachableDatabase(t *testing.T) {
	sink := &errorSink{}
	n, err := New(Settings{
		ID:       "n1",
		Output:   true,
		TargetID: "t",
		Target:   &config.Target{Hostname: "127.0.0.1", Port: 1, DB: "d", ConnectTimeout: time.Second},
	}, Deps{Errors: sink})
	require.NoError(t, err)
	defer n.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := n.Input(ctx, flow.Message{"payload": []any{map[string]any{"query": "SELECT 1"}}})
	assert.Nil(t, out)
	assert.True(t, apperrors.IsKind(err, apperrors.ConnectionFailed))
	assert.Equal(t, 1, sink.count())
}

func TestClose_Idempotent(t *testing.T) {
	n, err := New(Settings{ID: "n1", Target: &config.Target{Hostname: "localhost", DB: "d"}}, Deps{Metrics: metrics.New()})
	require.NoError(t, err)

	n.Close()
	assert.NotPanics(t, n.Close)
}

func TestConnectionConfigFor(t *testing.T) {
	cfg := ConnectionConfigFor(config.Target{Hostname: "db", DB: "app", SSL: true}, keychain.Credentials{User: "u"})
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "require", cfg.SSLMode())
	assert.Equal(t, "postgresql://u@db:5432/app?sslmode=require", cfg.DSN())
}
