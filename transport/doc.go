// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport establishes framed connections between a Courier
// client and a server endpoint.
//
// The package defines two interfaces: [Dialer] opens a connection to
// an endpoint (DialContext), and [Conn] is the resulting full-duplex
// framed stream (ReadFrame, WriteFrame, Close). A Conn carries
// wire.Frame values; everything above this package is transport
// agnostic.
//
// Two production dialers exist. [TCPDialer] speaks the framed
// protocol directly over TCP and is the default. [WSDialer] carries
// each frame as one binary WebSocket message, for networks where only
// HTTP(S) egress is allowed. Both honor an optional [ProxyConfig]
// for SOCKS5 or HTTP CONNECT proxies, including authenticated ones.
//
// A Conn is safe for one concurrent reader plus one concurrent
// writer, which matches how the client uses it (a receive loop and a
// send loop). Close is idempotent and unblocks any in-flight
// ReadFrame and WriteFrame; dial failures are reported as
// [ConnectError] so callers can tell a failed establishment from a
// mid-session disconnect.
//
// [Pipe] returns two ends of an in-process connection for tests.
package transport
