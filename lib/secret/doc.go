// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for sensitive data such
// as account passwords, bot tokens, and auth keys.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock (preventing swap), and marks it
// excluded from core dumps via madvise(MADV_DONTDUMP). On Close, the
// memory is zeroed, unlocked, and unmapped. Because the memory lives
// outside the Go heap, the garbage collector cannot copy or relocate
// it, so secret material does not linger after release.
//
// Constructors:
//
//   - [New] allocates a zero-filled buffer of a given size
//   - [NewFromBytes] copies into protected memory and zeros the source
//
// Access via [Buffer.Bytes] (slice into the mmap region) or
// [Buffer.String] (heap copy for API boundaries that demand a string).
// [Buffer.Equal] compares in constant time. After Close, any access
// panics. Close is idempotent.
//
// [ReadFromPath] loads a secret from a file or stdin; [Zero] wipes a
// byte slice in place.
//
// Depends on golang.org/x/sys/unix only. The auth package stores
// two-factor passwords in Buffers for the duration of the SRP
// exchange; the login CLI reads passwords straight into one.
package secret
