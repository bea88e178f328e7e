// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package batch

import (
	"encoding/json"
	"fmt"
	"strings"

	apperrors "pgmulti/cli/internal/errors"
	"pgmulti/cli/internal/sqlexec"
)

// Statement is one entry of a batch.
type Statement struct {
	Query  string
	Params sqlexec.Params
	// Emit places the statement's rows in the outbound payload.
	Emit bool
}

// Decode validates an inbound payload into statements. The payload must be an
// array of objects, each with a non-empty string "query", an optional "params"
// object (named) or array (positional), and an optional boolean "output".
// Anything else is a PayloadShape error and the whole batch is rejected.
func Decode(payload any) ([]Statement, error) {
	var entries []any
	switch p := payload.(type) {
	case []any:
		entries = p
	case []map[string]any:
		entries = make([]any, len(p))
		for i := range p {
			entries[i] = p[i]
		}
	case nil:
		return nil, apperrors.New(apperrors.PayloadShape, "payload is missing, expected an array of statements")
	default:
		return nil, apperrors.New(apperrors.PayloadShape, fmt.Sprintf("payload must be an array of statements, got %s", typeName(payload)))
	}

	stmts := make([]Statement, 0, len(entries))
	for i, e := range entries {
		st, err := decodeStatement(e)
		if err != nil {
			return nil, apperrors.New(apperrors.PayloadShape, fmt.Sprintf("payload[%d]: %s", i, err))
		}
		stmts = append(stmts, st)
	}
	return stmts, nil
}

func decodeStatement(v any) (Statement, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Statement{}, fmt.Errorf("expected an object, got %s", typeName(v))
	}

	q, ok := obj["query"].(string)
	if !ok || strings.TrimSpace(q) == "" {
		return Statement{}, fmt.Errorf("query must be a non-empty string")
	}
	st := Statement{Query: q}

	switch p := obj["params"].(type) {
	case nil:
	case map[string]any:
		named := make(map[string]any, len(p))
		for k, x := range p {
			named[k] = sqlexec.NormalizeParam(x)
		}
		st.Params = sqlexec.NamedParams(named)
	case []any:
		pos := make([]any, len(p))
		for k, x := range p {
			pos[k] = sqlexec.NormalizeParam(x)
		}
		st.Params = sqlexec.PositionalParams(pos...)
	default:
		return Statement{}, fmt.Errorf("params must be an object or an array, got %s", typeName(p))
	}

	switch o := obj["output"].(type) {
	case nil:
	case bool:
		st.Emit = o
	default:
		return Statement{}, fmt.Errorf("output must be a boolean, got %s", typeName(o))
	}

	return st, nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, int, int64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
