// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"fmt"

	"github.com/courier-foundation/courier/lib/secret"
	"github.com/courier-foundation/courier/session"
	"github.com/courier-foundation/courier/wire"
)

// Self fetches the user this session is signed in as. A session
// whose key the server no longer recognizes gets an
// AUTH_KEY_UNREGISTERED server error; callers checking authorization
// treat that as "not signed in" rather than a failure.
func Self(ctx context.Context, invoker Invoker) (*session.User, error) {
	var user session.User
	if err := invoker.Invoke(ctx, methodSelf, nil, &user); err != nil {
		return nil, fmt.Errorf("auth: fetching self: %w", err)
	}
	return &user, nil
}

// LogOut invalidates the session's authorization on the server. The
// caller is responsible for deleting the stored session record
// afterwards; the auth key is useless once the server forgets it.
func LogOut(ctx context.Context, invoker Invoker) error {
	if err := invoker.Invoke(ctx, methodLogOut, nil, nil); err != nil {
		return fmt.Errorf("auth: logging out: %w", err)
	}
	return nil
}

// EditTwoFactorOptions selects the two-factor changes to apply.
//
// The nil/non-nil distinction is the contract. New nil with a
// correct Current removes the password entirely. Hint and Email nil
// leave the server-side values as previously negotiated; they are
// replaced only when set. Passing the current hint or email again is
// therefore never required, and an empty non-nil value clears the
// field rather than preserving it.
type EditTwoFactorOptions struct {
	// Current is the account's current password. Required when the
	// account has one, must be nil when it does not. Read but not
	// closed.
	Current *secret.Buffer

	// New is the password to set. nil removes two-factor auth. Read
	// but not closed.
	New *secret.Buffer

	// Hint is the reminder stored alongside the new password.
	Hint *string

	// Email is the recovery address. Setting it triggers a
	// confirmation mail; until the address is confirmed the server
	// answers EMAIL_UNCONFIRMED and the change is held pending.
	Email *string
}

type updatePasswordSettings struct {
	Current     *SRPProof         `cbor:"current,omitempty"`
	NewVerifier *PasswordVerifier `cbor:"new_verifier,omitempty"`
	Hint        *string           `cbor:"hint,omitempty"`
	Email       *string           `cbor:"email,omitempty"`
}

// EditTwoFactor changes the account's two-factor settings: set,
// change, or remove the password, and update the hint and recovery
// email.
//
// [ErrEmailUnconfirmed] reports that the change was accepted but is
// held until the recovery address is confirmed out of band; it is a
// pending state, not a rejection. A wrong Current surfaces as
// [ErrPasswordInvalid].
func EditTwoFactor(ctx context.Context, invoker Invoker, opts EditTwoFactorOptions) error {
	var params PasswordParams
	if err := invoker.Invoke(ctx, methodGetPassword, nil, &params); err != nil {
		return fmt.Errorf("auth: fetching password parameters: %w", err)
	}

	if params.HasPassword && opts.Current == nil {
		return fmt.Errorf("auth: account has a password; Current is required")
	}
	if !params.HasPassword && opts.Current != nil {
		return fmt.Errorf("auth: account has no password; Current must be nil")
	}

	change := updatePasswordSettings{Hint: opts.Hint, Email: opts.Email}

	if params.HasPassword {
		proof, err := computeProof(opts.Current.Bytes(), &params)
		if err != nil {
			return err
		}
		change.Current = proof
	}

	if opts.New != nil {
		verifier, err := computeVerifier(opts.New.Bytes(), &params)
		if err != nil {
			return err
		}
		change.NewVerifier = verifier
	}

	err := invoker.Invoke(ctx, methodUpdate2FA, change, nil)
	switch {
	case err == nil:
		return nil
	case wire.IsServerError(err, wire.CodeEmailUnconfirmed):
		return ErrEmailUnconfirmed
	case wire.IsServerError(err, wire.CodePasswordInvalid):
		return ErrPasswordInvalid
	default:
		return fmt.Errorf("auth: updating two-factor settings: %w", err)
	}
}
