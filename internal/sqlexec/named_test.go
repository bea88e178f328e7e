// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"errors"
	"reflect"
	"testing"
)

func TestBind(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		params   Params
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "colon placeholders",
			query:    "SELECT * FROM t WHERE a = :a AND b = :b",
			params:   NamedParams(map[string]any{"a": 1, "b": "x"}),
			wantSQL:  "SELECT * FROM t WHERE a = $1 AND b = $2",
			wantArgs: []any{1, "x"},
		},
		{
			name:     "at placeholders",
			query:    "INSERT INTO t (id, name) VALUES (@id, @name)",
			params:   NamedParams(map[string]any{"id": 7, "name": "n"}),
			wantSQL:  "INSERT INTO t (id, name) VALUES ($1, $2)",
			wantArgs: []any{7, "n"},
		},
		{
			name:     "repeated name reuses its slot",
			query:    "SELECT :v, :w, :v",
			params:   NamedParams(map[string]any{"v": 1, "w": 2}),
			wantSQL:  "SELECT $1, $2, $1",
			wantArgs: []any{1, 2},
		},
		{
			name:     "casts are kept",
			query:    "SELECT :id::int, now()::date",
			params:   NamedParams(map[string]any{"id": "5"}),
			wantSQL:  "SELECT $1::int, now()::date",
			wantArgs: []any{"5"},
		},
		{
			name:     "string literals and identifiers untouched",
			query:    `SELECT ':skip', "col:x", 'it''s :also', :real`,
			params:   NamedParams(map[string]any{"real": true}),
			wantSQL:  `SELECT ':skip', "col:x", 'it''s :also', $1`,
			wantArgs: []any{true},
		},
		{
			name:     "escape string with backslash quote",
			query:    `SELECT E'a\' :no', :yes`,
			params:   NamedParams(map[string]any{"yes": 1}),
			wantSQL:  `SELECT E'a\' :no', $1`,
			wantArgs: []any{1},
		},
		{
			name:     "comments untouched",
			query:    "SELECT :a -- :b\n/* :c /* :d */ */ + :a",
			params:   NamedParams(map[string]any{"a": 1}),
			wantSQL:  "SELECT $1 -- :b\n/* :c /* :d */ */ + $1",
			wantArgs: []any{1},
		},
		{
			name:     "dollar quoted body untouched",
			query:    "DO $fn$ BEGIN PERFORM :x; END $fn$; SELECT $$ :y $$, :z",
			params:   NamedParams(map[string]any{"z": 3}),
			wantSQL:  "DO $fn$ BEGIN PERFORM :x; END $fn$; SELECT $$ :y $$, $1",
			wantArgs: []any{3},
		},
		{
			name:     "operators are not placeholders",
			query:    "SELECT tags @> :t, :t <@ tags, @@ 1, doc @@ :q",
			params:   NamedParams(map[string]any{"t": []any{"a"}, "q": "w"}),
			wantSQL:  "SELECT tags @> $1, $1 <@ tags, @@ 1, doc @@ $2",
			wantArgs: []any{[]any{"a"}, "w"},
		},
		{
			name:     "array slice is not a placeholder",
			query:    "SELECT arr[1:2], arr[lo:hi] FROM t WHERE id = :id",
			params:   NamedParams(map[string]any{"id": 1}),
			wantSQL:  "SELECT arr[1:2], arr[lo:hi] FROM t WHERE id = $1",
			wantArgs: []any{1},
		},
		{
			name:     "placeholders directly after comparison operators",
			query:    "SELECT * FROM t WHERE id=:id AND ref=@ref AND n<>:x AND n>=:lo AND n<=@hi",
			params:   NamedParams(map[string]any{"id": 7, "ref": "r", "x": 1, "lo": 2, "hi": 9}),
			wantSQL:  "SELECT * FROM t WHERE id=$1 AND ref=$2 AND n<>$3 AND n>=$4 AND n<=$5",
			wantArgs: []any{7, "r", 1, 2, 9},
		},
		{
			name:     "operators without spaces",
			query:    "SELECT :t<@tags, doc@@:q, tags@>:t",
			params:   NamedParams(map[string]any{"t": "a", "q": "w"}),
			wantSQL:  "SELECT $1<@tags, doc@@$2, tags@>$1",
			wantArgs: []any{"a", "w"},
		},
		{
			name:    "empty mapping passes query through",
			query:   "SELECT 1 AS x",
			params:  Params{},
			wantSQL: "SELECT 1 AS x",
		},
		{
			name:     "positional params pass through",
			query:    "SELECT $1::int + $2",
			params:   PositionalParams(1, 2),
			wantSQL:  "SELECT $1::int + $2",
			wantArgs: []any{1, 2},
		},
		{
			name:     "unused names are ignored",
			query:    "SELECT :a",
			params:   NamedParams(map[string]any{"a": 1, "unused": 2}),
			wantSQL:  "SELECT $1",
			wantArgs: []any{1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := Bind(tt.query, tt.params)
			if err != nil {
				t.Fatalf("Bind() unexpected error: %v", err)
			}
			if sql != tt.wantSQL {
				t.Errorf("Bind() sql = %q, want %q", sql, tt.wantSQL)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("Bind() args = %#v, want %#v", args, tt.wantArgs)
			}
		})
	}
}

func TestBind_MissingParam(t *testing.T) {
	_, _, err := Bind("SELECT :present, :absent", NamedParams(map[string]any{"present": 1}))
	if !errors.Is(err, ErrMissingParam) {
		t.Fatalf("Bind() error = %v, want ErrMissingParam", err)
	}
}

func TestBind_DoesNotMutateInput(t *testing.T) {
	m := map[string]any{"a": 1}
	if _, _, err := Bind("SELECT :a", NamedParams(m)); err != nil {
		t.Fatal(err)
	}
	if len(m) != 1 || m["a"] != 1 {
		t.Errorf("params map was modified: %#v", m)
	}
}

// Colon-only binders that scan raw text would rewrite every one of these.
func TestBind_KeepsQuotedTextAndCasts(t *testing.T) {
	query := "SELECT ':lit', $$ :body $$, \"a:b\", x::text /* :c */, @a, :b"
	sql, args, err := Bind(query, NamedParams(map[string]any{"a": 1, "b": 2, "lit": 0, "body": 0, "c": 0, "text": 0}))
	if err != nil {
		t.Fatalf("Bind() unexpected error: %v", err)
	}
	want := "SELECT ':lit', $$ :body $$, \"a:b\", x::text /* :c */, $1, $2"
	if sql != want {
		t.Errorf("Bind() sql = %q, want %q", sql, want)
	}
	if !reflect.DeepEqual(args, []any{1, 2}) {
		t.Errorf("Bind() args = %#v, want [1 2]", args)
	}
}
