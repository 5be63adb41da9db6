// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth implements the Courier sign-in state machine: login
// code request and submission, the SRP two-factor password proof,
// bot-token sign-in, two-factor management, and auth-key
// establishment.
//
// The package is deliberately transport-free. Every operation runs
// over an [Invoker], the single-method surface the client package
// implements, so the whole flow is testable against a scripted fake
// with no network.
//
// A [Flow] tracks one sign-in attempt:
//
//	Unauthenticated → CodeRequested → CodeSubmitted →
//	    [PasswordRequested] → Authenticated
//
// with Failed as the terminal error state. The flow holds only
// transient state (phone number, code hash, step); durable session
// state lives in the session package and is the caller's to persist.
//
// [Flow.Start] composes the individual steps into the interactive
// flow most programs want: it requests a code, collects it through a
// prompt capability, and falls through to the password prompt exactly
// once when the account has two-factor auth enabled. Prompts are
// plain funcs so tests substitute them directly.
//
// Passwords, bot tokens, and other credentials cross this package as
// [secret.Buffer] values (mmap-backed, locked, zeroed on close) and
// are converted to transmissible form only at the serialization
// boundary.
package auth
