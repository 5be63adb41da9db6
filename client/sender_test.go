// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/courier-foundation/courier/lib/clock"
	"github.com/courier-foundation/courier/lib/codec"
	"github.com/courier-foundation/courier/lib/testutil"
	"github.com/courier-foundation/courier/wire"
)

func TestPendingTableCompleteDeliversResult(t *testing.T) {
	clk := clock.Fake(testBase)
	table := newPendingTable(clk, 30*time.Second)

	id := table.nextRequestID()
	p := table.register(id)

	want := codec.RawMessage{0xf6}
	if !table.complete(id, want, nil) {
		t.Fatal("complete reported the request as unknown")
	}
	if got := clk.PendingCount(); got != 0 {
		t.Errorf("pending timers after completion = %d, want 0", got)
	}

	raw, err := p.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if string(raw) != string(want) {
		t.Errorf("Wait result = %x, want %x", raw, want)
	}

	// The outcome is sticky: a second Wait sees the same result.
	raw, err = p.Wait(context.Background())
	if err != nil || string(raw) != string(want) {
		t.Errorf("second Wait = %x, %v", raw, err)
	}

	if table.complete(id, nil, nil) {
		t.Error("complete resolved the same request twice")
	}
}

func TestPendingTableTimeout(t *testing.T) {
	clk := clock.Fake(testBase)
	table := newPendingTable(clk, 30*time.Second)

	p := table.register(table.nextRequestID())
	clk.Advance(30 * time.Second)

	_, err := p.Wait(context.Background())
	if !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("Wait = %v, want ErrRequestTimeout", err)
	}
}

func TestPendingTableWaitCancellation(t *testing.T) {
	table := newPendingTable(clock.Fake(testBase), 0)
	p := table.register(table.nextRequestID())

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := p.Wait(ctx)
		result <- err
	}()

	cancel()
	err := testutil.RequireReceive(t, result, "waiting for cancellation")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait = %v, want context.Canceled", err)
	}

	// The entry is gone: a late response finds nothing to resolve.
	if table.complete(p.ID(), nil, nil) {
		t.Error("late complete claimed an abandoned request")
	}
}

func TestPendingTableFailAll(t *testing.T) {
	table := newPendingTable(clock.Fake(testBase), 0)

	var handles []*Pending
	for range 3 {
		handles = append(handles, table.register(table.nextRequestID()))
	}

	cause := errors.New("link went away")
	if got := table.failAll(cause); got != 3 {
		t.Fatalf("failAll resolved %d requests, want 3", got)
	}
	for _, p := range handles {
		if _, err := p.Wait(context.Background()); !errors.Is(err, cause) {
			t.Errorf("Wait = %v, want %v", err, cause)
		}
	}
	if got := table.failAll(cause); got != 0 {
		t.Errorf("second failAll resolved %d requests", got)
	}
}

func TestPendingTableIDsRestart(t *testing.T) {
	table := newPendingTable(clock.Fake(testBase), 0)

	for want := uint64(1); want <= 3; want++ {
		if got := table.nextRequestID(); got != want {
			t.Fatalf("nextRequestID = %d, want %d", got, want)
		}
	}
	table.restartIDs()
	if got := table.nextRequestID(); got != 1 {
		t.Fatalf("nextRequestID after restart = %d, want 1", got)
	}
}

func TestSubmitResolvesWithConnectionLoss(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.server.swallow("test.hang")
	rig.connect(t)
	rig.nextRequest(t) // key negotiation

	p, err := rig.client.Submit(context.Background(), "test.hang", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := rig.nextRequest(t); got.Method != "test.hang" {
		t.Fatalf("server saw %q, want test.hang", got.Method)
	}

	rig.server.dropConn()
	if _, err := p.Wait(context.Background()); !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("Wait = %v, want ErrConnectionLost", err)
	}
}

func TestRequestTimesOutButConnectionSurvives(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.server.swallow("test.hang")
	rig.server.handle("test.echo", func(request wire.Request) (any, *wire.ServerError) {
		return codec.RawMessage(request.Params), nil
	})
	rig.connect(t)
	rig.nextRequest(t) // key negotiation

	p, err := rig.client.Submit(context.Background(), "test.hang", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	rig.nextRequest(t) // hanging request delivered

	rig.clock.Advance(defaultRequestTimeout)
	if _, err := p.Wait(context.Background()); !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("Wait = %v, want ErrRequestTimeout", err)
	}

	// The timeout is local: the connection itself is still usable.
	if err := rig.client.Invoke(context.Background(), "test.echo", nil, nil); err != nil {
		t.Fatalf("Invoke after timeout: %v", err)
	}
	if got := rig.dialer.dials.Load(); got != 1 {
		t.Errorf("dial count = %d, want 1", got)
	}
}

func TestConcurrentInvokesResolveIndependently(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.server.handle("test.echo", func(request wire.Request) (any, *wire.ServerError) {
		return codec.RawMessage(request.Params), nil
	})
	rig.connect(t)

	type payload struct {
		N int `cbor:"n"`
	}
	const workers = 8
	var wg sync.WaitGroup
	failures := make(chan error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var got payload
			if err := rig.client.Invoke(context.Background(), "test.echo", payload{N: i}, &got); err != nil {
				failures <- fmt.Errorf("worker %d: %w", i, err)
				return
			}
			if got.N != i {
				failures <- fmt.Errorf("worker %d got %d", i, got.N)
			}
		}()
	}
	wg.Wait()
	close(failures)
	for err := range failures {
		t.Error(err)
	}
}
