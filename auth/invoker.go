// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import "context"

// Invoker sends one request and decodes its reply. The client package
// provides the production implementation; tests provide scripted
// fakes.
//
// Invoke blocks until the server replies, the request times out, or
// ctx is done. params is CBOR-encoded into the request; a non-nil
// result receives the CBOR-decoded reply. Server-reported failures
// come back as *[wire.ServerError].
type Invoker interface {
	Invoke(ctx context.Context, method string, params any, result any) error
}

// Wire method names for the authentication surface.
const (
	methodSendCode      = "auth.sendCode"
	methodSignIn        = "auth.signIn"
	methodSignInBot     = "auth.signInBot"
	methodGetPassword   = "auth.getPassword"
	methodCheckPassword = "auth.checkPassword"
	methodLogOut        = "auth.logOut"
	methodSelf          = "auth.self"
	methodNegotiateKey  = "auth.negotiateKey"
	methodUpdate2FA     = "account.updatePasswordSettings"
)
