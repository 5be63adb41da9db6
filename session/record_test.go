// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/courier-foundation/courier/wire"
)

func TestSetAuthKey(t *testing.T) {
	record := New("primary")
	if record.HasKey() {
		t.Error("fresh record reports a key")
	}

	key := []byte("negotiated key material")
	if err := record.SetAuthKey(key, 0xDEADBEEF); err != nil {
		t.Fatalf("SetAuthKey: %v", err)
	}
	if !record.HasKey() {
		t.Error("record does not report a key after SetAuthKey")
	}
	if record.KeyFingerprint != 0xDEADBEEF {
		t.Errorf("KeyFingerprint = %x, want %x", record.KeyFingerprint, 0xDEADBEEF)
	}

	// The record must own its copy of the key bytes.
	key[0] = 'X'
	if record.AuthKey[0] == 'X' {
		t.Error("record aliases the caller's key slice")
	}
}

func TestSetAuthKey_Immutable(t *testing.T) {
	record := New("primary")
	if err := record.SetAuthKey([]byte("first key"), 1); err != nil {
		t.Fatalf("SetAuthKey: %v", err)
	}

	// Same key again is a no-op.
	if err := record.SetAuthKey([]byte("first key"), 1); err != nil {
		t.Errorf("SetAuthKey with identical key: %v", err)
	}

	// A different key is rejected.
	err := record.SetAuthKey([]byte("second key"), 2)
	if !errors.Is(err, ErrKeyMismatch) {
		t.Errorf("SetAuthKey with different key = %v, want ErrKeyMismatch", err)
	}
	if string(record.AuthKey) != "first key" {
		t.Errorf("AuthKey = %q, want %q", record.AuthKey, "first key")
	}

	// After Reset a new key is accepted.
	record.Reset()
	if err := record.SetAuthKey([]byte("second key"), 2); err != nil {
		t.Errorf("SetAuthKey after Reset: %v", err)
	}
}

func TestAdvance_Monotonic(t *testing.T) {
	record := New("primary")
	record.Advance(wire.UpdateState{Pts: 100, Qts: 50, Seq: 10, Date: 1700000000})

	// A stale report must not move anything backward.
	record.Advance(wire.UpdateState{Pts: 90, Qts: 60, Seq: 5, Date: 1600000000})

	want := wire.UpdateState{Pts: 100, Qts: 60, Seq: 10, Date: 1700000000}
	if record.State != want {
		t.Errorf("State = %+v, want %+v", record.State, want)
	}

	// A fresher report moves everything forward.
	record.Advance(wire.UpdateState{Pts: 200, Qts: 70, Seq: 11, Date: 1800000000})
	want = wire.UpdateState{Pts: 200, Qts: 70, Seq: 11, Date: 1800000000}
	if record.State != want {
		t.Errorf("State = %+v, want %+v", record.State, want)
	}
}

func TestResetState(t *testing.T) {
	record := New("primary")
	record.Advance(wire.UpdateState{Pts: 100, Qts: 50, Seq: 10, Date: 1700000000})
	record.ResetState()
	if record.State != (wire.UpdateState{}) {
		t.Errorf("State after ResetState = %+v, want zero", record.State)
	}

	// After a reset, any position is an advance again.
	record.Advance(wire.UpdateState{Pts: 1})
	if record.State.Pts != 1 {
		t.Errorf("Pts = %d, want 1", record.State.Pts)
	}
}

func TestReset(t *testing.T) {
	record := New("primary")
	record.Endpoint = "courier.example.com:443"
	record.SetAuthKey([]byte("key"), 7)
	record.RotateSalts([]wire.ServerSalt{{Salt: 1, ValidSince: 0, ValidUntil: 100}})
	record.Advance(wire.UpdateState{Pts: 5})
	record.User = &User{ID: 42, Username: "ada"}

	record.Reset()

	if record.ID != "primary" {
		t.Errorf("ID = %q, want %q (Reset must keep the identifier)", record.ID, "primary")
	}
	if record.Endpoint != "courier.example.com:443" {
		t.Errorf("Endpoint = %q, want preserved", record.Endpoint)
	}
	if record.HasKey() || record.KeyFingerprint != 0 {
		t.Error("Reset left key material behind")
	}
	if len(record.Salts) != 0 {
		t.Errorf("Salts = %v, want empty", record.Salts)
	}
	if record.State != (wire.UpdateState{}) {
		t.Errorf("State = %+v, want zero", record.State)
	}
	if record.User != nil {
		t.Errorf("User = %+v, want nil", record.User)
	}
}

func TestRotateSalts_SortsByValidSince(t *testing.T) {
	record := New("primary")
	record.RotateSalts([]wire.ServerSalt{
		{Salt: 3, ValidSince: 300, ValidUntil: 400},
		{Salt: 1, ValidSince: 100, ValidUntil: 200},
		{Salt: 2, ValidSince: 200, ValidUntil: 300},
	})

	for i, want := range []int64{1, 2, 3} {
		if record.Salts[i].Salt != want {
			t.Errorf("Salts[%d].Salt = %d, want %d", i, record.Salts[i].Salt, want)
		}
	}
}

func TestCurrentSalt(t *testing.T) {
	record := New("primary")
	record.RotateSalts([]wire.ServerSalt{
		{Salt: 11, ValidSince: 100, ValidUntil: 200},
		{Salt: 22, ValidSince: 200, ValidUntil: 300},
		{Salt: 33, ValidSince: 300, ValidUntil: 400},
	})

	tests := []struct {
		name string
		now  int64
		want int64
	}{
		{name: "first window", now: 150, want: 11},
		{name: "window boundary belongs to the newer salt", now: 200, want: 22},
		{name: "last window", now: 350, want: 33},
		{name: "past all windows falls back to freshest", now: 999, want: 33},
		{name: "before all windows falls back to freshest", now: 50, want: 33},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := record.CurrentSalt(time.Unix(test.now, 0))
			if got != test.want {
				t.Errorf("CurrentSalt(%d) = %d, want %d", test.now, got, test.want)
			}
		})
	}
}

func TestCurrentSalt_Empty(t *testing.T) {
	record := New("primary")
	if got := record.CurrentSalt(time.Unix(100, 0)); got != 0 {
		t.Errorf("CurrentSalt on empty set = %d, want 0", got)
	}
}

func TestCurrentSalt_OverlappingWindowsPreferFreshest(t *testing.T) {
	record := New("primary")
	record.RotateSalts([]wire.ServerSalt{
		{Salt: 11, ValidSince: 100, ValidUntil: 500},
		{Salt: 22, ValidSince: 200, ValidUntil: 500},
	})
	if got := record.CurrentSalt(time.Unix(300, 0)); got != 22 {
		t.Errorf("CurrentSalt in overlap = %d, want 22", got)
	}
}

func TestClone_Independent(t *testing.T) {
	record := New("primary")
	record.SetAuthKey([]byte("key material"), 7)
	record.RotateSalts([]wire.ServerSalt{{Salt: 1, ValidSince: 0, ValidUntil: 100}})
	record.Advance(wire.UpdateState{Pts: 5, Date: 1700000000})
	record.User = &User{ID: 42, Username: "ada"}

	clone := record.Clone()
	if !reflect.DeepEqual(clone, record) {
		t.Fatalf("Clone() = %+v, want %+v", clone, record)
	}

	// Mutating the clone must not touch the original.
	clone.AuthKey[0] = 'X'
	clone.Salts[0].Salt = 99
	clone.User.Username = "bob"
	clone.Advance(wire.UpdateState{Pts: 500})

	if record.AuthKey[0] == 'X' {
		t.Error("clone shares AuthKey backing array")
	}
	if record.Salts[0].Salt == 99 {
		t.Error("clone shares Salts backing array")
	}
	if record.User.Username == "bob" {
		t.Error("clone shares User pointer")
	}
	if record.State.Pts != 5 {
		t.Errorf("original Pts = %d, want 5", record.State.Pts)
	}
}
