// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package admin

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Permissions carried in the "permissions" claim of an admin token.
const (
	PermRead  = "postgresdb.read"
	PermWrite = "postgresdb.write"
	PermAll   = "*"
)

// IssueToken signs an HS256 token granting perms for ttl.
func IssueToken(secret []byte, subject string, perms []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":         subject,
		"iat":         now.Unix(),
		"exp":         now.Add(ttl).Unix(),
		"permissions": strings.Join(perms, ","),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// requirePermission wraps next with a bearer token check. Without a configured
// secret every request is let through.
func (s *Server) requirePermission(perm string, next http.HandlerFunc) http.HandlerFunc {
	if len(s.opts.JWTSecret) == 0 {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeJSONError(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
			return s.opts.JWTSecret, nil
		}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
		if err != nil || !token.Valid {
			s.logger.Debug("rejected admin token", s.logger.Args("error", err))
			writeJSONError(w, "invalid token", http.StatusUnauthorized)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !hasPermission(claimStrings(claims, "permissions"), perm) {
			writeJSONError(w, "insufficient permissions", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func hasPermission(granted []string, perm string) bool {
	for _, g := range granted {
		if g == perm || g == PermAll {
			return true
		}
	}
	return false
}

// claimStrings reads a claim given either as a comma-separated string or as
// an array of strings.
func claimStrings(claims jwt.MapClaims, key string) []string {
	switch v := claims[key].(type) {
	case string:
		if v == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
