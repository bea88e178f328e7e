// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMissingParam is returned by Bind when a placeholder has no value.
var ErrMissingParam = errors.New("missing value for named parameter")

// Params are the parameters of one statement: either a name→value mapping used
// to resolve :name / @name placeholders, or a positional list passed to the
// server unchanged for $1-style queries.
type Params struct {
	Named      map[string]any
	Positional []any
}

// NamedParams is a convenience constructor for a mapping.
func NamedParams(m map[string]any) Params { return Params{Named: m} }

// PositionalParams is a convenience constructor for a positional list.
func PositionalParams(args ...any) Params {
	if args == nil {
		args = []any{}
	}
	return Params{Positional: args}
}

// IsPositional reports whether the params are a positional list.
func (p Params) IsPositional() bool { return p.Positional != nil }

// Bind translates :name and @name placeholders into $n positional placeholders
// and returns the matching argument list. Every distinct name gets one slot, in
// order of first appearance. Quoted strings, quoted identifiers, dollar-quoted
// bodies and comments are copied verbatim, and "::" casts as well as @-operators
// (@@, @>, <@) are never treated as placeholders.
//
// With positional params, or with no named params at all, the query is returned
// unchanged.
func Bind(query string, params Params) (string, []any, error) {
	if params.IsPositional() {
		return query, params.Positional, nil
	}
	if len(params.Named) == 0 {
		return query, nil, nil
	}

	var (
		b     strings.Builder
		args  []any
		slots = make(map[string]int)
		n     = len(query)
	)
	b.Grow(n)

	for i := 0; i < n; {
		c := query[i]
		switch {
		case c == '\'':
			end := skipQuoted(query, i, '\'', isEscapeString(query, i))
			b.WriteString(query[i:end])
			i = end

		case c == '"':
			end := skipQuoted(query, i, '"', false)
			b.WriteString(query[i:end])
			i = end

		case c == '-' && i+1 < n && query[i+1] == '-':
			end := strings.IndexByte(query[i:], '\n')
			if end == -1 {
				end = n
			} else {
				end += i + 1
			}
			b.WriteString(query[i:end])
			i = end

		case c == '/' && i+1 < n && query[i+1] == '*':
			end := skipBlockComment(query, i)
			b.WriteString(query[i:end])
			i = end

		case c == '$':
			end := skipDollarQuoted(query, i)
			b.WriteString(query[i:end])
			i = end

		case c == ':' && i+1 < n && query[i+1] == ':':
			b.WriteString("::")
			i += 2

		case (c == ':' || c == '@') && isPlaceholderStart(query, i):
			j := i + 1
			for j < n && isIdentChar(query[j]) {
				j++
			}
			name := query[i+1 : j]
			slot, ok := slots[name]
			if !ok {
				v, found := params.Named[name]
				if !found {
					return "", nil, fmt.Errorf("%w: %s", ErrMissingParam, name)
				}
				args = append(args, v)
				slot = len(args)
				slots[name] = slot
			}
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(slot))
			i = j

		default:
			b.WriteByte(c)
			i++
		}
	}

	return b.String(), args, nil
}

// isPlaceholderStart reports whether the ':' or '@' at i opens a parameter name.
func isPlaceholderStart(q string, i int) bool {
	if i+1 >= len(q) || !isIdentStart(q[i+1]) {
		return false
	}
	if i == 0 {
		return true
	}
	prev := q[i-1]
	if isIdentChar(prev) || prev == '.' {
		return false
	}
	// <@ and @@ are operators; after any other operator (id=:id, n<>@n) it is a name.
	return q[i] != '@' || (prev != '<' && prev != '@')
}

// isEscapeString reports whether the quote at i opens an E'...' string.
func isEscapeString(q string, i int) bool {
	if i == 0 || (q[i-1] != 'E' && q[i-1] != 'e') {
		return false
	}
	return i == 1 || !isIdentChar(q[i-2])
}

// skipQuoted returns the index just past the literal opened at i. A doubled
// quote is an escaped quote; with backslash set, \x escapes are honoured too.
// An unterminated literal runs to the end of the query.
func skipQuoted(q string, i int, quote byte, backslash bool) int {
	for j := i + 1; j < len(q); j++ {
		switch q[j] {
		case '\\':
			if backslash {
				j++
			}
		case quote:
			if j+1 < len(q) && q[j+1] == quote {
				j++
				continue
			}
			return j + 1
		}
	}
	return len(q)
}

// skipBlockComment returns the index just past the (possibly nested) comment at i.
func skipBlockComment(q string, i int) int {
	depth := 0
	for j := i; j < len(q)-1; j++ {
		switch {
		case q[j] == '/' && q[j+1] == '*':
			depth++
			j++
		case q[j] == '*' && q[j+1] == '/':
			depth--
			j++
			if depth == 0 {
				return j + 1
			}
		}
	}
	return len(q)
}

// skipDollarQuoted returns the index just past a $tag$...$tag$ body starting at
// i, or i+1 when the '$' does not open one ($1 placeholders, identifiers).
func skipDollarQuoted(q string, i int) int {
	if i > 0 && isIdentChar(q[i-1]) {
		return i + 1
	}
	j := i + 1
	if j < len(q) && isIdentStart(q[j]) {
		for j < len(q) && isIdentChar(q[j]) {
			j++
		}
	}
	if j >= len(q) || q[j] != '$' {
		return i + 1
	}
	tag := q[i : j+1]
	end := strings.Index(q[j+1:], tag)
	if end == -1 {
		return len(q)
	}
	return j + 1 + end + len(tag)
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
