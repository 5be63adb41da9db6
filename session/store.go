// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no record has been saved yet.
// Callers treat it as "fresh session", not as a failure.
var ErrNotFound = errors.New("session: record not found")

// Store persists one session record. Save replaces the whole record
// atomically: a crash mid-save leaves either the previous record or
// the new one, never a torn mix.
//
// Implementations must be safe for concurrent use; the client calls
// Save from its persistence loop while Load may run from a CLI
// status check.
type Store interface {
	// Load returns the stored record, or ErrNotFound.
	Load(ctx context.Context) (*Record, error)

	// Save replaces the stored record.
	Save(ctx context.Context, record *Record) error

	// Delete removes the stored record. Deleting an absent record is
	// not an error.
	Delete(ctx context.Context) error
}
