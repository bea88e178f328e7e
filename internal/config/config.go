// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package config loads and stores the connector's flow file in the XDG config dir.
// Only non-secret settings are kept here; user and password go to the OS keychain.
//
// The flow file is YAML. It names database targets (host, port, database, TLS and
// pool tuning) and the nodes that run batches against them. ${VAR} and
// ${VAR:-default} references are expanded from the environment before parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"pgmulti/cli/internal/xdg"

	"gopkg.in/yaml.v3"
)

// FileName is the default flow file name inside the config directory.
const FileName = "flow.yaml"

// Config holds non-sensitive connector settings.
type Config struct {
	LogLevel string            `yaml:"log_level"`
	LogJSON  bool              `yaml:"log_json,omitempty"`
	Targets  map[string]Target `yaml:"targets,omitempty"`
	Nodes    []Node            `yaml:"nodes,omitempty"`
	Admin    Admin             `yaml:"admin,omitempty"`

	Credentials Credentials `yaml:"credentials,omitempty"`
}

// Credential sources.
const (
	SourceKeychain = "keychain"
	SourceAWS      = "aws-secretsmanager"
)

// Credentials selects where target credentials are read from.
type Credentials struct {
	// Source is SourceKeychain (default) or SourceAWS.
	Source       string        `yaml:"source,omitempty"`
	AWSRegion    string        `yaml:"aws_region,omitempty"`
	SecretPrefix string        `yaml:"secret_prefix,omitempty"`
	CacheTTL     time.Duration `yaml:"cache_ttl,omitempty"`
}

// Target is one database the connector can talk to. Credentials are looked up
// in the keychain under the target's id.
type Target struct {
	Hostname        string        `yaml:"hostname"`
	Port            int           `yaml:"port,omitempty"`
	DB              string        `yaml:"db"`
	SSL             bool          `yaml:"ssl,omitempty"`
	ApplicationName string        `yaml:"application_name,omitempty"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout,omitempty"`
	Pool            Pool          `yaml:"pool,omitempty"`
}

// Pool tunes the pgx pool for a target. Zero values keep pgx defaults.
type Pool struct {
	MaxConns          int32         `yaml:"max_conns,omitempty"`
	MinConns          int32         `yaml:"min_conns,omitempty"`
	MaxConnLifetime   time.Duration `yaml:"max_conn_lifetime,omitempty"`
	MaxConnIdleTime   time.Duration `yaml:"max_conn_idle_time,omitempty"`
	HealthCheckPeriod time.Duration `yaml:"health_check_period,omitempty"`
}

// Node is one batch-executing node. PostgresDB links it to a target id; an empty
// or dangling link is valid and leaves the node without a database.
type Node struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name,omitempty"`
	Topic      string `yaml:"topic,omitempty"`
	PostgresDB string `yaml:"postgresdb,omitempty"`
	Output     bool   `yaml:"output,omitempty"`
}

// Admin configures the credential admin HTTP server.
type Admin struct {
	Addr           string   `yaml:"addr,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	// JWTSecret, when set, requires bearer tokens signed with it. Use
	// ${VAR} to keep it out of the file.
	JWTSecret string `yaml:"jwt_secret,omitempty"`
}

// Defaults returns the configuration used when no flow file exists.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		Targets:  map[string]Target{},
		Admin:    Admin{Addr: "127.0.0.1:1881"},
	}
}

// Path returns the path to the default flow file.
func Path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load reads the default flow file; a missing file returns defaults.
func Load() (Config, error) {
	p, err := Path()
	if err != nil {
		return Config{}, err
	}
	return LoadFile(p)
}

// LoadFile reads a flow file; a missing file returns defaults.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Defaults(), nil
		}
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a flow file after expanding environment variables.
func Parse(data []byte) (Config, error) {
	c := Defaults()
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &c); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	if c.Targets == nil {
		c.Targets = map[string]Target{}
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks structural rules that would make the flow ambiguous.
func (c Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Nodes))
	for i, n := range c.Nodes {
		if strings.TrimSpace(n.ID) == "" {
			return fmt.Errorf("nodes[%d]: id is required", i)
		}
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("nodes[%d]: duplicate id %q", i, n.ID)
		}
		seen[n.ID] = struct{}{}
	}
	switch c.Credentials.Source {
	case "", SourceKeychain, SourceAWS:
	default:
		return fmt.Errorf("credentials.source: unknown source %q", c.Credentials.Source)
	}
	for id, t := range c.Targets {
		if strings.TrimSpace(t.Hostname) == "" {
			return fmt.Errorf("targets.%s: hostname is required", id)
		}
		if t.Port < 0 || t.Port > 65535 {
			return fmt.Errorf("targets.%s: invalid port %d", id, t.Port)
		}
	}
	return nil
}

// Target returns the target with the given id.
func (c Config) Target(id string) (Target, bool) {
	if id == "" {
		return Target{}, false
	}
	t, ok := c.Targets[id]
	return t, ok
}

// Node returns the node with the given id.
func (c Config) Node(id string) (Node, bool) {
	for _, n := range c.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Save writes the default flow file with 0600 permissions.
func Save(c Config) error {
	p, err := Path()
	if err != nil {
		return err
	}
	return SaveFile(p, c)
}

// SaveFile writes a flow file with 0600 permissions.
func SaveFile(path string, c Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

var envVarRegex = regexp.MustCompile(`\$\{[A-Za-z_][A-Za-z0-9_]*(:-[^}]*)?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default}; undefined variables without
// a default expand to the empty string.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1]

		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultVal
	})
}
