// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFlow = `
log_level: debug
targets:
  orders:
    hostname: ${ORDERS_HOST:-localhost}
    port: 6432
    db: orders
    ssl: true
    connect_timeout: 5s
    pool:
      max_conns: 8
      max_conn_idle_time: 1m
nodes:
  - id: n1
    postgresdb: orders
    output: true
  - id: n2
    postgresdb: missing
`

func TestParse(t *testing.T) {
	t.Setenv("ORDERS_HOST", "db.internal")

	c, err := Parse([]byte(sampleFlow))
	require.NoError(t, err)

	assert.Equal(t, "debug", c.LogLevel)
	target, ok := c.Target("orders")
	require.True(t, ok)
	assert.Equal(t, "db.internal", target.Hostname)
	assert.Equal(t, 6432, target.Port)
	assert.True(t, target.SSL)
	assert.Equal(t, 5*time.Second, target.ConnectTimeout)
	assert.Equal(t, int32(8), target.Pool.MaxConns)
	assert.Equal(t, time.Minute, target.Pool.MaxConnIdleTime)

	n, ok := c.Node("n1")
	require.True(t, ok)
	assert.True(t, n.Output)

	// A dangling link is a valid, runtime-handled state.
	n2, ok := c.Node("n2")
	require.True(t, ok)
	_, linked := c.Target(n2.PostgresDB)
	assert.False(t, linked)
}

func TestParse_DefaultExpansion(t *testing.T) {
	os.Unsetenv("ORDERS_HOST")

	c, err := Parse([]byte(sampleFlow))
	require.NoError(t, err)
	assert.Equal(t, "localhost", c.Targets["orders"].Hostname)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "duplicate node ids", yaml: "nodes:\n  - id: a\n  - id: a\n"},
		{name: "node without id", yaml: "nodes:\n  - postgresdb: x\n"},
		{name: "target without host", yaml: "targets:\n  x:\n    db: y\n"},
		{name: "bad port", yaml: "targets:\n  x:\n    hostname: h\n    port: 70000\n"},
		{name: "not yaml", yaml: "targets: [unterminated"},
		{name: "unknown credential source", yaml: "credentials:\n  source: vault\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_MissingReturnsDefaults(t *testing.T) {
	c, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "info", c.LogLevel)
	assert.Empty(t, c.Targets)
}

func TestSaveFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	in := Defaults()
	in.Targets["local"] = Target{Hostname: "localhost", DB: "postgres"}
	in.Nodes = []Node{{ID: "n1", PostgresDB: "local", Output: true}}

	require.NoError(t, SaveFile(path, in))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	out, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, in.Targets, out.Targets)
	assert.Equal(t, in.Nodes, out.Nodes)
}

func TestParse_CredentialsAndAdmin(t *testing.T) {
	t.Setenv("ADMIN_JWT", "signing-key")

	c, err := Parse([]byte(`
credentials:
  source: aws-secretsmanager
  aws_region: eu-west-1
  cache_ttl: 10m
admin:
  addr: 0.0.0.0:1881
  jwt_secret: ${ADMIN_JWT}
`))
	require.NoError(t, err)
	assert.Equal(t, SourceAWS, c.Credentials.Source)
	assert.Equal(t, "eu-west-1", c.Credentials.AWSRegion)
	assert.Equal(t, 10*time.Minute, c.Credentials.CacheTTL)
	assert.Equal(t, "signing-key", c.Admin.JWTSecret)
	assert.Equal(t, "0.0.0.0:1881", c.Admin.Addr)
}
