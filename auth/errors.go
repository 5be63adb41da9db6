// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import "errors"

// Sentinel errors for the sign-in branch points callers must handle.
// Each wraps the corresponding server error code; other server
// failures (flood waits, invalid phone numbers, revoked bot tokens)
// surface as *[wire.ServerError] for errors.As inspection.
var (
	// ErrPasswordNeeded means the submitted code was accepted but the
	// account has two-factor authentication enabled. Continue with
	// [Flow.SignInPassword].
	ErrPasswordNeeded = errors.New("auth: account requires two-factor password")

	// ErrCodeInvalid means the login code was wrong or expired.
	ErrCodeInvalid = errors.New("auth: login code invalid or expired")

	// ErrPasswordInvalid means the two-factor password proof failed
	// verification.
	ErrPasswordInvalid = errors.New("auth: two-factor password invalid")

	// ErrEmailUnconfirmed means a two-factor settings change was
	// accepted but is held until the recovery email address is
	// confirmed. The other settings in the request are applied.
	ErrEmailUnconfirmed = errors.New("auth: recovery email awaiting confirmation")
)
