// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/courier-foundation/courier/wire"
)

// KeyExchange is the result of auth.negotiateKey: the session's
// fresh shared key and the server's initial salt set.
type KeyExchange struct {
	AuthKey []byte            `cbor:"auth_key"`
	Salts   []wire.ServerSalt `cbor:"salts"`
}

// NegotiateKey establishes an auth key for a session that has none.
// The client runs this once, on the first connect of a fresh
// session, and persists the result before doing anything else; every
// later connect reuses the stored key.
func NegotiateKey(ctx context.Context, invoker Invoker) (*KeyExchange, error) {
	var exchange KeyExchange
	if err := invoker.Invoke(ctx, methodNegotiateKey, nil, &exchange); err != nil {
		return nil, fmt.Errorf("auth: negotiating key: %w", err)
	}
	if len(exchange.AuthKey) == 0 {
		return nil, fmt.Errorf("auth: server returned an empty auth key")
	}
	if len(exchange.Salts) == 0 {
		return nil, fmt.Errorf("auth: server returned no salts")
	}
	return &exchange, nil
}

// KeyFingerprint derives the 64-bit identifier a session presents
// for its auth key: the first eight bytes of the key's blake3
// digest, big-endian.
func KeyFingerprint(key []byte) uint64 {
	sum := blake3.Sum256(key)
	return binary.BigEndian.Uint64(sum[:8])
}
