// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds the one wall-clock escape hatch the test
// suite allows itself.
//
// [RequireReceive] wraps the select-with-deadline pattern for reading
// from channels fed by goroutines under test. Everything else in the
// suite drives time through lib/clock's fake; these helpers exist so a
// broken goroutine fails the test with a message instead of hanging
// the run. [RequireReceiveWithin] takes an explicit bound for waits
// that must outlast a timeout belonging to the test itself.
//
// Helpers call t.Fatalf on failure rather than returning errors; a
// missed receive is never something a test recovers from.
//
// This package depends on no other courier packages.
package testutil
