// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package client

import "errors"

var (
	// ErrNotConnected means the operation needs an active connection
	// and the client has none. Returned by Submit/Invoke before
	// Connect, after Disconnect, and in the window while the
	// reconnect supervisor is re-establishing the session.
	ErrNotConnected = errors.New("client: not connected")

	// ErrConnectionLost resolves a request whose connection died
	// before its response arrived. The request may or may not have
	// reached the server; it is safe to retry only if the method is
	// idempotent.
	ErrConnectionLost = errors.New("client: connection lost")

	// ErrRequestTimeout resolves a request the server did not answer
	// within the configured RequestTimeout.
	ErrRequestTimeout = errors.New("client: request timed out")

	// ErrClosed means the client has been disconnected and will not
	// reconnect.
	ErrClosed = errors.New("client: closed")
)
