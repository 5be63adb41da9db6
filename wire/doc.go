// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the framed envelope protocol spoken between a
// Courier client and a Courier server.
//
// The package is organized around the protocol layers:
//
//   - frame.go: the outer frame format (kind, compression header,
//     length-prefixed payload) and its reader/writer
//   - compress.go: payload compression (lz4, zstd) with automatic
//     selection and incompressible fallback
//   - envelope.go: the CBOR envelope bodies carried inside frames
//     ([Request], [Response], [UpdateBatch], [Control]) and their
//     frame constructors and parsers
//   - errors.go: [ServerError], the structured RPC error, and its
//     code constants and classification helpers
//
// A frame's payload is the deterministic CBOR encoding (lib/codec) of
// exactly one envelope matching the frame's [Kind]. Compression is a
// frame-level concern: [WriteFrame] compresses large payloads
// transparently and [ReadFrame] returns them decompressed, so all
// code above this package works with plain envelopes.
package wire
