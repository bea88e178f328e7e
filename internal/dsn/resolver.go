// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package dsn resolves database connection settings. It turns either a raw DSN or
// a configured database target plus credentials into an immutable
// ConnectionConfig, and renders the canonical connection string handed to pgx.
// Only postgres:// and postgresql:// URLs are accepted.
package dsn

var postgres = NewPostgreSQLResolver()

// Parse parses a PostgreSQL DSN into a connection config.
func Parse(dsn string) (ConnectionConfig, error) {
	return postgres.Parse(dsn)
}

// Normalize parses a DSN and renders its canonical form.
func Normalize(dsn string) (string, error) {
	cfg, err := postgres.Parse(dsn)
	if err != nil {
		return "", err
	}
	return postgres.Normalize(cfg)
}

// Validate reports whether dsn can be parsed.
func Validate(dsn string) error {
	return postgres.Validate(dsn)
}

// WithDefaultCredentials returns a copy of c that uses user and password where
// c has none. Credentials already in c are kept.
func (c ConnectionConfig) WithDefaultCredentials(user, password string) ConnectionConfig {
	if c.User == "" {
		c.User = user
		if c.Password == "" {
			c.Password = password
		}
	}
	return c
}
