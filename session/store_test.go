// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/courier-foundation/courier/wire"
)

// sampleRecord returns a fully populated record for round-trip tests.
func sampleRecord() *Record {
	record := New("primary")
	record.Endpoint = "courier.example.com:443"
	record.SetAuthKey([]byte("thirty-two bytes of key material"), 0xFEEDFACE)
	record.RotateSalts([]wire.ServerSalt{
		{Salt: -12345, ValidSince: 100, ValidUntil: 200},
		{Salt: 67890, ValidSince: 200, ValidUntil: 300},
	})
	record.Advance(wire.UpdateState{Pts: 1024, Qts: 7, Seq: 3, Date: 1767225600})
	record.User = &User{ID: 42, Username: "ada", FirstName: "Ada", Phone: "+15550100"}
	return record
}

// runStoreTests exercises the Store contract against one
// implementation: missing record, round-trip, overwrite, delete.
func runStoreTests(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	// A fresh store has nothing.
	if _, err := store.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load on empty store = %v, want ErrNotFound", err)
	}

	// Deleting an absent record is not an error.
	if err := store.Delete(ctx); err != nil {
		t.Fatalf("Delete on empty store: %v", err)
	}

	// Save and load a full record.
	saved := sampleRecord()
	if err := store.Save(ctx, saved); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(loaded, saved) {
		t.Errorf("Load = %+v, want %+v", loaded, saved)
	}

	// Save replaces the whole record.
	saved.Advance(wire.UpdateState{Pts: 2048})
	saved.User = nil
	if err := store.Save(ctx, saved); err != nil {
		t.Fatalf("Save (overwrite): %v", err)
	}
	loaded, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("Load after overwrite: %v", err)
	}
	if loaded.State.Pts != 2048 {
		t.Errorf("Pts after overwrite = %d, want 2048", loaded.State.Pts)
	}
	if loaded.User != nil {
		t.Errorf("User after overwrite = %+v, want nil", loaded.User)
	}

	// Delete removes it.
	if err := store.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after Delete = %v, want ErrNotFound", err)
	}
}

func TestMemStore(t *testing.T) {
	runStoreTests(t, NewMemStore())
}

func TestMemStore_LoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	if err := store.Save(ctx, sampleRecord()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	first, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	first.AuthKey[0] = 'X'
	first.User.Username = "mallory"

	second, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if second.AuthKey[0] == 'X' {
		t.Error("store shares AuthKey bytes with callers")
	}
	if second.User.Username == "mallory" {
		t.Error("store shares User pointer with callers")
	}
}

func TestMemStore_SaveCount(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	record := sampleRecord()
	for i := 0; i < 3; i++ {
		if err := store.Save(ctx, record); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}
	if got := store.SaveCount(); got != 3 {
		t.Errorf("SaveCount() = %d, want 3", got)
	}
}
