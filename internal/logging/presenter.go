// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"

	apperrors "pgmulti/cli/internal/errors"
)

// kindHints point users at the command that usually fixes an error kind.
var kindHints = map[apperrors.Kind]string{
	apperrors.ConfigInvalid:          "check the flow file (pgmulti --config <path>) and run 'pgmulti dbinfo'",
	apperrors.ConfigurationMissing:   "link the node to a target with 'postgresdb: <id>' in the flow file",
	apperrors.CredentialsUnavailable: "store credentials with 'pgmulti creds set <target>' or set PGMULTI_USER / PGMULTI_PASSWORD",
	apperrors.ConnectionFailed:       "verify the target with 'pgmulti ping <target>'",
}

// PresentError formats an error for the terminal: the masked message,
// optionally prefixed with context, and a hint line for known error kinds.
func PresentError(context string, err error) string {
	if err == nil {
		return ""
	}
	msg := Mask(err.Error())
	if context != "" {
		msg = fmt.Sprintf("%s: %s", context, msg)
	}
	if hint, ok := kindHints[apperrors.KindOf(err)]; ok {
		msg += "\nHint: " + hint
	}
	return msg
}
