// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

// Package session persists the durable state of a Courier client: the
// negotiated auth key, the server salt set, the update sequence
// position, and the signed-in user.
//
// [Record] is the state itself, with mutators that preserve its
// invariants: the auth key never changes once set except through
// [Record.Reset], and the update position only moves forward through
// [Record.Advance] except on a full resync via [Record.ResetState].
//
// [Store] is the persistence contract: load, save, delete of one
// whole record, atomically. Four implementations exist:
//
//   - [FileStore]: a JSON file with 0600 permissions, written
//     atomically (temp file, fsync, rename).
//   - [EncryptedFileStore]: the same file layout encrypted with an
//     age scrypt passphrase.
//   - [SQLiteStore]: a SQLite database holding CBOR-encoded records,
//     for deployments that already carry one.
//   - [MemStore]: in-memory, for tests.
package session
