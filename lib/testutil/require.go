// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// TB is the subset of testing.TB the helpers need.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// WaitTimeout is how long RequireReceive waits before declaring a
// hang. Courier tests drive protocol timing through lib/clock's fake,
// so nothing legitimate waits anywhere near this long; hitting the
// bound means a goroutine is stuck, not slow.
const WaitTimeout = 5 * time.Second

// RequireReceive reads one value from ch, failing the test after
// WaitTimeout.
//
//	state := testutil.RequireReceive(t, states, "waiting for connected state")
func RequireReceive[T any](t TB, ch <-chan T, msgAndArgs ...any) T {
	t.Helper()
	return RequireReceiveWithin(t, ch, WaitTimeout, msgAndArgs...)
}

// RequireReceiveWithin is RequireReceive with an explicit bound, for
// the rare wait that must outlast another timeout inside the test.
func RequireReceiveWithin[T any](t TB, ch <-chan T, timeout time.Duration, msgAndArgs ...any) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed: %s", message(msgAndArgs))
		}
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out after %v: %s", timeout, message(msgAndArgs))
	}
	panic("unreachable")
}

func message(msgAndArgs []any) string {
	switch {
	case len(msgAndArgs) == 0:
		return "(no message)"
	case len(msgAndArgs) == 1:
		return fmt.Sprint(msgAndArgs[0])
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return fmt.Sprint(msgAndArgs...)
}
