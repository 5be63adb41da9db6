// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time so that timing-sensitive code can be
// tested deterministically.
//
// Production code takes a [Clock] instead of calling time.Now,
// time.After, time.NewTicker, time.AfterFunc, or time.Sleep directly.
// [Real] returns the standard library behavior; [Fake] returns a clock
// that only moves when the test calls [FakeClock.Advance].
//
// The client's request timeouts, reconnect backoff, keepalive ticker,
// and session persistence debounce all run on an injected Clock, which
// is how their tests fire hours of schedule in microseconds.
//
// # Synchronizing with goroutines under test
//
// A goroutine that calls Sleep, After, NewTicker, or AfterFunc on a
// [FakeClock] registers a pending waiter. [FakeClock.WaitForTimers]
// blocks until a given number of waiters exist, which removes the race
// between the goroutine arming its timer and the test advancing time:
//
//	go func() { c.Sleep(5 * time.Second) }()
//	c.WaitForTimers(1)
//	c.Advance(5 * time.Second)
package clock
