// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sqlexec executes single parameterized SQL statements over a leased pgx
// connection and returns their rows as JSON-ready maps.
//
// Key features include:
//   - Pure named-parameter translation (:name / @name to $n), see Bind
//   - Positional parameter lists passed through unchanged
//   - Row collection with pgx.RowToMap
//   - Normalization of PostgreSQL-specific values (UUIDs, byte arrays) for JSON output
package sqlexec

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Row is one result row keyed by column name.
type Row = map[string]any

// Querier is the part of a pgx connection the executor needs.
// *pgxpool.Conn, *pgx.Conn and pool.Conn all satisfy it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Executor runs one statement at a time. The zero value is ready to use.
type Executor struct {
	// StatementTimeout bounds a single statement; zero means no limit beyond ctx.
	StatementTimeout time.Duration
}

// New creates an Executor with the given per-statement timeout.
func New(statementTimeout time.Duration) *Executor {
	return &Executor{StatementTimeout: statementTimeout}
}

// Execute binds params into query, runs it on q and collects every returned row.
// Statements that return no rows (INSERT without RETURNING, DDL) yield an empty,
// non-nil slice. There is no retry: the driver's error is returned as is.
func (e *Executor) Execute(ctx context.Context, q Querier, query string, params Params) ([]Row, error) {
	sql, args, err := Bind(query, params)
	if err != nil {
		return nil, err
	}

	if e != nil && e.StatementTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.StatementTimeout)
		defer cancel()
	}

	// Without arguments the simple protocol is used, so a query may hold
	// several semicolon-separated commands.
	if len(args) == 0 {
		args = []any{pgx.QueryExecModeSimpleProtocol}
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	out, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Row{}
	}
	for _, r := range out {
		for k, v := range r {
			r[k] = normalizeValue(v)
		}
	}
	return out, nil
}

// normalizeValue converts pgx values that would not marshal into a readable
// JSON form.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case [16]byte:
		// uuid columns decode to [16]byte when scanned into any
		return uuid.UUID(val).String()
	case []byte:
		return fmt.Sprintf("\\x%x", val)
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = normalizeValue(x)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, x := range val {
			out[k] = normalizeValue(x)
		}
		return out
	default:
		return v
	}
}

// NormalizeParam converts a JSON-decoded parameter value into what pgx expects.
// json.Number becomes int64 when integral and float64 otherwise; arrays and
// objects are converted element-wise.
func NormalizeParam(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = NormalizeParam(x)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, x := range val {
			out[k] = NormalizeParam(x)
		}
		return out
	default:
		return v
	}
}
