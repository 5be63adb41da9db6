// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"testing"
	"time"

	"github.com/courier-foundation/courier/auth"
	"github.com/courier-foundation/courier/session"
	"github.com/courier-foundation/courier/wire"
)

var testAccount = session.User{ID: 4242, Username: "ada", FirstName: "Ada", Phone: "+15550100"}

// installLoginHandlers scripts a complete code login on the fake
// server.
func installLoginHandlers(rig *testRig) {
	rig.server.handle("auth.sendCode", func(wire.Request) (any, *wire.ServerError) {
		return map[string]any{"code_hash": "hash-1", "length": 5}, nil
	})
	rig.server.handle("auth.signIn", func(wire.Request) (any, *wire.ServerError) {
		return map[string]any{"user": testAccount}, nil
	})
}

func TestSignInPersistsUser(t *testing.T) {
	rig := newTestRig(t, nil)
	installLoginHandlers(rig)
	rig.connect(t)

	codeHash, err := rig.client.RequestCode(context.Background(), "+15550100")
	if err != nil {
		t.Fatalf("RequestCode: %v", err)
	}
	if codeHash != "hash-1" {
		t.Fatalf("code hash = %q", codeHash)
	}

	user, err := rig.client.SignIn(context.Background(), "", "", "12345")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if user.ID != testAccount.ID {
		t.Fatalf("signed-in user = %+v", user)
	}

	// The user lands in the store synchronously on sign-in.
	record := rig.store.saved()
	if record == nil || record.User == nil || record.User.ID != testAccount.ID {
		t.Fatalf("saved record user = %+v", record)
	}
	if got := rig.client.CurrentUser(); got == nil || got.Username != "ada" {
		t.Errorf("CurrentUser() = %+v", got)
	}
}

func TestIsAuthorizedRefreshesUser(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.server.handle("auth.self", func(wire.Request) (any, *wire.ServerError) {
		return testAccount, nil
	})
	rig.connect(t)

	authorized, err := rig.client.IsAuthorized(context.Background())
	if err != nil {
		t.Fatalf("IsAuthorized: %v", err)
	}
	if !authorized {
		t.Fatal("IsAuthorized = false for an authorized session")
	}

	rig.clock.Advance(time.Second)
	record := rig.store.saved()
	if record == nil || record.User == nil || record.User.ID != testAccount.ID {
		t.Fatalf("saved record user = %+v", record)
	}
}

func TestIsAuthorizedMapsUnregisteredKey(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.server.handle("auth.self", func(wire.Request) (any, *wire.ServerError) {
		return nil, &wire.ServerError{Code: wire.CodeAuthKeyUnregistered, Message: "who are you"}
	})
	rig.connect(t)

	authorized, err := rig.client.IsAuthorized(context.Background())
	if err != nil {
		t.Fatalf("IsAuthorized: %v", err)
	}
	if authorized {
		t.Fatal("IsAuthorized = true for an unregistered key")
	}
}

func TestStartSkipsLoginWhenAuthorized(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.server.handle("auth.self", func(wire.Request) (any, *wire.ServerError) {
		return testAccount, nil
	})

	seed := session.New("default")
	exchange := testKeyExchange()
	if err := seed.SetAuthKey(exchange.AuthKey, auth.KeyFingerprint(exchange.AuthKey)); err != nil {
		t.Fatalf("seeding key: %v", err)
	}
	seed.RotateSalts(exchange.Salts)
	seed.User = &testAccount
	rig.store.seed(seed)

	user, err := rig.client.Start(context.Background(), auth.StartOptions{
		Phone: "+15550100",
		CodePrompt: func(ctx context.Context) (string, error) {
			t.Fatal("code prompt ran for an authorized session")
			return "", nil
		},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if user.ID != testAccount.ID {
		t.Fatalf("Start returned %+v", user)
	}
}

func TestStartRunsLoginWhenUnauthorized(t *testing.T) {
	rig := newTestRig(t, nil)
	installLoginHandlers(rig)
	rig.server.handle("auth.self", func(wire.Request) (any, *wire.ServerError) {
		return nil, &wire.ServerError{Code: wire.CodeAuthKeyUnregistered}
	})

	prompts := 0
	user, err := rig.client.Start(context.Background(), auth.StartOptions{
		Phone: "+15550100",
		CodePrompt: func(ctx context.Context) (string, error) {
			prompts++
			return "12345", nil
		},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if prompts != 1 {
		t.Errorf("code prompt ran %d times, want 1", prompts)
	}
	if user.ID != testAccount.ID {
		t.Fatalf("Start returned %+v", user)
	}
	record := rig.store.saved()
	if record == nil || record.User == nil {
		t.Fatal("session record not persisted after Start")
	}
}

func TestLogOutWipesSession(t *testing.T) {
	rig := newTestRig(t, nil)
	installLoginHandlers(rig)
	rig.server.handle("auth.logOut", func(wire.Request) (any, *wire.ServerError) {
		return map[string]bool{"ok": true}, nil
	})
	rig.connect(t)

	if _, err := rig.client.SignIn(context.Background(), "+15550100", "hash-1", "12345"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if err := rig.client.LogOut(context.Background()); err != nil {
		t.Fatalf("LogOut: %v", err)
	}

	if got := rig.store.saved(); got != nil {
		t.Errorf("store still holds a record after LogOut: %+v", got)
	}
	if got := rig.client.CurrentUser(); got != nil {
		t.Errorf("CurrentUser() = %+v after LogOut", got)
	}
}
