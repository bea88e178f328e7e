// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pterm/pterm"
)

// DBErrorType represents the category of a database error
type DBErrorType int

const (
	DBErrorUnknown DBErrorType = iota
	DBErrorNetwork
	DBErrorAuth
	DBErrorTimeout
	DBErrorMissingDatabase
	DBErrorSQL
)

func (t DBErrorType) String() string {
	switch t {
	case DBErrorNetwork:
		return "network"
	case DBErrorAuth:
		return "auth"
	case DBErrorTimeout:
		return "timeout"
	case DBErrorMissingDatabase:
		return "missing_database"
	case DBErrorSQL:
		return "sql"
	default:
		return "unknown"
	}
}

// ClassifyDBError categorizes an error returned by pgx or the pool.
func ClassifyDBError(err error) DBErrorType {
	if err == nil {
		return DBErrorUnknown
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "28"):
			return DBErrorAuth
		case pgErr.Code == "3D000":
			return DBErrorMissingDatabase
		case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "57P01":
			return DBErrorNetwork
		case pgErr.Code == "57014":
			return DBErrorTimeout
		default:
			return DBErrorSQL
		}
	}

	if pgconn.Timeout(err) {
		return DBErrorTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return DBErrorTimeout
		}
		return DBErrorNetwork
	}

	// Fall back to message patterns for errors that lost their type on the way up
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "password authentication failed"), strings.Contains(lower, "no pg_hba.conf entry"):
		return DBErrorAuth
	case strings.Contains(lower, "connection refused"), strings.Contains(lower, "no such host"), strings.Contains(lower, "connection reset"):
		return DBErrorNetwork
	case strings.Contains(lower, "deadline"), strings.Contains(lower, "timeout"):
		return DBErrorTimeout
	}
	return DBErrorUnknown
}

// FormatDBError formats a database error in a user-friendly way
func FormatDBError(err error) string {
	errType := ClassifyDBError(err)

	var builder strings.Builder

	builder.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint("Database Error"))
	builder.WriteString("\n\n")

	switch errType {
	case DBErrorNetwork:
		builder.WriteString("The database could not be reached.\n")
		builder.WriteString("This usually happens when:\n")
		builder.WriteString("  • The hostname or port in the target is wrong\n")
		builder.WriteString("  • The server is down or restarting\n")
		builder.WriteString("  • A firewall is blocking the connection\n")
	case DBErrorAuth:
		builder.WriteString("The database rejected the credentials.\n")
		builder.WriteString("To fix this:\n")
		builder.WriteString("  • Run 'pgmulti creds set <target>' to update user and password\n")
		builder.WriteString("  • Check pg_hba.conf allows this client\n")
	case DBErrorTimeout:
		builder.WriteString("The database did not answer in time.\n")
		builder.WriteString("This could be due to:\n")
		builder.WriteString("  • Network latency or packet loss\n")
		builder.WriteString("  • A saturated server or an exhausted pool\n")
	case DBErrorMissingDatabase:
		builder.WriteString("The configured database does not exist on the server.\n")
	case DBErrorSQL:
		builder.WriteString("The server rejected the statement.\n")
	default:
		builder.WriteString("The operation failed.\n")
	}

	if strings.TrimSpace(err.Error()) != "" {
		builder.WriteString("\n")
		builder.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Technical details: " + Mask(err.Error())))
	}

	return builder.String()
}

// PresentDBError displays a formatted database error
func PresentDBError(err error) {
	fmt.Println()
	fmt.Println(FormatDBError(err))
	fmt.Println()
}
