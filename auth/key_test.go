// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"bytes"
	"context"
	"testing"

	"github.com/courier-foundation/courier/wire"
)

func TestNegotiateKey(t *testing.T) {
	key := bytes.Repeat([]byte{0xC7}, 32)
	inv := newScriptedInvoker(t, scriptedCall{
		method: methodNegotiateKey,
		result: KeyExchange{
			AuthKey: key,
			Salts: []wire.ServerSalt{
				{Salt: 101, ValidSince: 1000, ValidUntil: 2000},
				{Salt: 102, ValidSince: 2000, ValidUntil: 3000},
			},
		},
	})

	exchange, err := NegotiateKey(context.Background(), inv)
	if err != nil {
		t.Fatalf("NegotiateKey: %v", err)
	}
	if !bytes.Equal(exchange.AuthKey, key) {
		t.Errorf("AuthKey = %x, want %x", exchange.AuthKey, key)
	}
	if len(exchange.Salts) != 2 || exchange.Salts[0].Salt != 101 {
		t.Errorf("Salts = %+v, want the scripted salt set", exchange.Salts)
	}
}

func TestNegotiateKey_EmptyKey(t *testing.T) {
	inv := newScriptedInvoker(t, scriptedCall{
		method: methodNegotiateKey,
		result: KeyExchange{Salts: []wire.ServerSalt{{Salt: 101, ValidUntil: 2000}}},
	})

	if _, err := NegotiateKey(context.Background(), inv); err == nil {
		t.Fatal("NegotiateKey accepted an empty auth key")
	}
}

func TestNegotiateKey_NoSalts(t *testing.T) {
	inv := newScriptedInvoker(t, scriptedCall{
		method: methodNegotiateKey,
		result: KeyExchange{AuthKey: bytes.Repeat([]byte{0xC7}, 32)},
	})

	if _, err := NegotiateKey(context.Background(), inv); err == nil {
		t.Fatal("NegotiateKey accepted a reply without salts")
	}
}

func TestKeyFingerprint(t *testing.T) {
	key1 := bytes.Repeat([]byte{0xAB}, 32)
	key2 := bytes.Repeat([]byte{0xCD}, 32)

	if KeyFingerprint(key1) != KeyFingerprint(key1) {
		t.Error("fingerprint is not deterministic")
	}
	if KeyFingerprint(key1) == KeyFingerprint(key2) {
		t.Error("distinct keys share a fingerprint")
	}
}
