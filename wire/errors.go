// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"fmt"
	"time"
)

// ServerError is a structured error returned by the server inside a
// Response envelope. Callers use errors.As to extract it:
//
//	var serverErr *wire.ServerError
//	if errors.As(err, &serverErr) {
//	    if serverErr.Code == wire.CodeFloodWait { ... }
//	}
type ServerError struct {
	// Code is the machine-readable error code (e.g. "FLOOD_WAIT").
	Code string `cbor:"code"`

	// Message is the human-readable description from the server.
	Message string `cbor:"message,omitempty"`

	// RetryAfter is the server-imposed wait in seconds before the
	// failed operation may be retried. Only set for CodeFloodWait.
	RetryAfter int64 `cbor:"retry_after,omitempty"`
}

func (e *ServerError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("server: %s (retry after %ds): %s", e.Code, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("server: %s: %s", e.Code, e.Message)
}

// Server error codes.
const (
	// CodeFloodWait rate-limits the caller. The error carries
	// RetryAfter; the client core never retries these itself, the
	// wait is surfaced to the caller to honor or abandon.
	CodeFloodWait = "FLOOD_WAIT"

	// CodeSessionPasswordNeeded means the account has two-factor
	// authentication enabled and sign-in must continue with the
	// account password.
	CodeSessionPasswordNeeded = "SESSION_PASSWORD_NEEDED"

	// CodeCodeInvalid means the submitted login code was wrong or
	// expired.
	CodeCodeInvalid = "CODE_INVALID"

	// CodePasswordInvalid means the two-factor password proof failed
	// verification.
	CodePasswordInvalid = "PASSWORD_INVALID"

	// CodeEmailUnconfirmed means a two-factor change was accepted but
	// is held pending confirmation of the recovery email.
	CodeEmailUnconfirmed = "EMAIL_UNCONFIRMED"

	// CodePhoneNumberInvalid rejects a malformed or unknown phone
	// number.
	CodePhoneNumberInvalid = "PHONE_NUMBER_INVALID"

	// CodeTokenInvalid rejects a malformed or revoked bot token.
	CodeTokenInvalid = "TOKEN_INVALID"

	// CodeAuthKeyUnregistered means the auth key the session presented
	// is not known to the server; the session must re-authenticate
	// from scratch.
	CodeAuthKeyUnregistered = "AUTH_KEY_UNREGISTERED"

	// CodeSaltInvalid means the request was stamped with an expired
	// server salt. Resolved by rotating to the current salt set.
	CodeSaltInvalid = "SALT_INVALID"

	// CodeMethodUnknown rejects a method name the server does not
	// implement.
	CodeMethodUnknown = "METHOD_UNKNOWN"

	// CodeBadRequest rejects malformed parameters.
	CodeBadRequest = "BAD_REQUEST"

	// CodeInternal reports a server-side failure not attributable to
	// the request.
	CodeInternal = "INTERNAL"
)

// IsServerError reports whether err is a *ServerError with the given
// code.
func IsServerError(err error, code string) bool {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.Code == code
	}
	return false
}

// FloodWait extracts the rate-limit wait from err. The second return
// is false when err is not a FLOOD_WAIT server error.
func FloodWait(err error) (time.Duration, bool) {
	var serverErr *ServerError
	if errors.As(err, &serverErr) && serverErr.Code == CodeFloodWait {
		return time.Duration(serverErr.RetryAfter) * time.Second, true
	}
	return 0, false
}
