// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

// Package client is the Courier connection core: it owns the
// transport connection, correlates requests with responses, delivers
// pushed updates to handlers, and keeps the session alive across
// network failures.
//
// A [Client] runs four workers, all started by [Client.Connect] and
// joined by [Client.Disconnect]:
//
//   - the send loop writes queued request frames to the transport
//   - the receive loop reads frames and routes them: responses to the
//     pending-request table, update batches to the dispatcher queue,
//     control notices (salt rotation, session reset, pong) to the
//     session record
//   - the dispatch loop invokes subscribed handlers, isolating their
//     failures from each other and from the receive path
//   - the reconnect supervisor watches for connection loss and
//     re-establishes the session with bounded exponential backoff
//
// The send and receive loops are per-connection: a reconnect replaces
// them. The dispatcher and supervisor live for the client's lifetime,
// so subscriptions survive reconnects and update delivery resumes
// from the persisted sequence position.
//
// Request/response correlation is exact: every [Client.Invoke]
// resolves with the server's answer, a timeout, the caller's
// cancellation, or [ErrConnectionLost] when the connection dies with
// the request in flight. Nothing blocks forever, including across
// reconnects.
//
// The client implements [auth.Invoker]; the sign-in conveniences
// ([Client.Start], [Client.SignIn], [Client.EditTwoFactor], ...)
// delegate to the auth package and persist the resulting session
// state through the configured [session.Store].
package client
