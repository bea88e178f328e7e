// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// DefaultPort is the PostgreSQL port used when none is configured.
const DefaultPort = 5432

// ConnectionConfig holds resolved connection parameters for one database target.
// It is a value type: copies never share the Params map with the original, and
// nothing in this package mutates a config after it is built.
type ConnectionConfig struct {
	Host     string
	Port     int
	Database string
	// User and Password may be empty; pgx then falls back to PGUSER/PGPASSWORD
	// and the usual libpq defaults.
	User     string
	Password string
	TLS      bool
	// Params carries extra connection parameters (connect_timeout,
	// application_name, an explicit sslmode, ...).
	Params map[string]string
}

// NewConnectionConfig builds a config from target settings and credentials.
func NewConnectionConfig(host string, port int, database, user, password string, tls bool) ConnectionConfig {
	if port == 0 {
		port = DefaultPort
	}
	return ConnectionConfig{
		Host:     host,
		Port:     port,
		Database: database,
		User:     user,
		Password: password,
		TLS:      tls,
		Params:   map[string]string{},
	}
}

// WithParam returns a copy of c with one extra connection parameter set.
func (c ConnectionConfig) WithParam(key, value string) ConnectionConfig {
	params := make(map[string]string, len(c.Params)+1)
	for k, v := range c.Params {
		params[k] = v
	}
	params[key] = value
	c.Params = params
	return c
}

// SSLMode returns the sslmode sent to the server. An explicit sslmode param wins;
// otherwise TLS maps to "require" and its absence to "disable".
func (c ConnectionConfig) SSLMode() string {
	if mode, ok := c.Params["sslmode"]; ok && mode != "" {
		return mode
	}
	if c.TLS {
		return "require"
	}
	return "disable"
}

// DSN renders the canonical postgresql:// connection string with the user and
// password escaped.
func (c ConnectionConfig) DSN() string {
	return c.url(c.Password).String()
}

// Redacted renders the connection string with the password replaced by ***.
func (c ConnectionConfig) Redacted() string {
	if c.Password == "" {
		return c.DSN()
	}
	return c.url("***").String()
}

func (c ConnectionConfig) url(password string) *url.URL {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	u := &url.URL{
		Scheme: "postgresql",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(port)),
		Path:   "/" + c.Database,
	}
	if c.User != "" {
		if password != "" {
			u.User = url.UserPassword(c.User, password)
		} else {
			u.User = url.User(c.User)
		}
	}
	q := url.Values{}
	for k, v := range c.Params {
		q.Set(k, v)
	}
	q.Set("sslmode", c.SSLMode())
	u.RawQuery = q.Encode()
	return u
}

// ParseError represents an error that occurred during DSN parsing
type ParseError struct {
	DSN    string
	Reason string
	Hint   string
}

func (e *ParseError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("invalid DSN format: %s\nHint: %s", e.Reason, e.Hint)
	}
	return fmt.Sprintf("invalid DSN format: %s", e.Reason)
}

// NewParseError creates a new ParseError
func NewParseError(dsn, reason, hint string) *ParseError {
	return &ParseError{
		DSN:    dsn,
		Reason: reason,
		Hint:   hint,
	}
}
