// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Courier's standard CBOR encoding configuration.
//
// Everything Courier serializes as CBOR goes through this package: the
// envelope payloads inside wire frames, the session record stored by
// the SQLite session store, and any cached binary state. Centralizing
// the modes means every package encodes identically without repeating
// configuration.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// Same logical data always produces identical bytes, which keeps
// request frames reproducible and stored records diffable.
//
// Buffer-oriented use:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Stream-oriented use (sockets):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Types that only ever travel as CBOR carry `cbor` struct tags. Types
// that are also rendered as JSON (CLI --json output, debug dumps)
// carry `json` tags alone; fxamacker/cbor reads `json` tags as a
// fallback, so one tag controls field naming for both formats. Never
// put both tags on a field.
package codec
