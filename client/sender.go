// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/courier-foundation/courier/lib/clock"
	"github.com/courier-foundation/courier/lib/codec"
	"github.com/courier-foundation/courier/lib/netutil"
	"github.com/courier-foundation/courier/wire"
)

// pendingOutcome is the final result of one request: the raw response
// payload or the error that resolved it.
type pendingOutcome struct {
	result codec.RawMessage
	err    error
}

// Pending is the handle for one in-flight request. It resolves exactly
// once: with the server's response, with the server's error, or with a
// local error (timeout, connection loss, shutdown).
type Pending struct {
	id    uint64
	table *pendingTable
	done  chan struct{}

	// outcome is written by whoever removes the table entry, strictly
	// before done is closed.
	outcome pendingOutcome
}

// ID returns the request's correlation ID.
func (p *Pending) ID() uint64 {
	return p.id
}

// Done returns a channel that is closed once the request has resolved.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the request resolves or ctx is done. Cancelling
// ctx abandons the request: it resolves with ctx's error and a late
// server response for it is discarded.
func (p *Pending) Wait(ctx context.Context) (codec.RawMessage, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		// Resolve the entry ourselves unless a response raced us, then
		// collect whichever outcome won.
		p.table.complete(p.id, nil, ctx.Err())
		<-p.done
	}
	return p.outcome.result, p.outcome.err
}

// pendingEntry pairs a pending request with its timeout timer.
type pendingEntry struct {
	pending *Pending
	timer   *clock.Timer
}

// pendingTable correlates outstanding requests with their responses.
// Each request registers under a fresh ID before its frame is queued;
// whoever removes the entry (response, timeout, cancellation, epoch
// teardown) owns delivering the outcome.
type pendingTable struct {
	clock   clock.Clock
	timeout time.Duration

	nextID atomic.Uint64

	mu    sync.Mutex
	table map[uint64]*pendingEntry
}

func newPendingTable(clk clock.Clock, timeout time.Duration) *pendingTable {
	return &pendingTable{
		clock:   clk,
		timeout: timeout,
		table:   make(map[uint64]*pendingEntry),
	}
}

// nextRequestID returns the next correlation ID. IDs restart from 1 on
// every connection epoch, so a request is unambiguous only together
// with the connection it was sent on.
func (t *pendingTable) nextRequestID() uint64 {
	return t.nextID.Add(1)
}

// restartIDs resets the correlation sequence for a new connection.
// The table must already be empty.
func (t *pendingTable) restartIDs() {
	t.nextID.Store(0)
}

// register creates the pending entry for id and arms its timeout.
func (t *pendingTable) register(id uint64) *Pending {
	p := &Pending{
		id:    id,
		table: t,
		done:  make(chan struct{}),
	}
	entry := &pendingEntry{pending: p}

	t.mu.Lock()
	t.table[id] = entry
	if t.timeout > 0 {
		entry.timer = t.clock.AfterFunc(t.timeout, func() {
			t.complete(id, nil, ErrRequestTimeout)
		})
	}
	t.mu.Unlock()
	return p
}

// complete resolves id and reports whether it was still pending.
func (t *pendingTable) complete(id uint64, result codec.RawMessage, err error) bool {
	t.mu.Lock()
	entry, ok := t.table[id]
	if ok {
		delete(t.table, id)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	entry.pending.outcome = pendingOutcome{result: result, err: err}
	close(entry.pending.done)
	return true
}

// failAll resolves every outstanding request with err and reports how
// many there were.
func (t *pendingTable) failAll(err error) int {
	t.mu.Lock()
	entries := make([]*pendingEntry, 0, len(t.table))
	for id := range t.table {
		entries = append(entries, t.table[id])
	}
	t.table = make(map[uint64]*pendingEntry)
	t.mu.Unlock()

	for _, entry := range entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		entry.pending.outcome = pendingOutcome{err: err}
		close(entry.pending.done)
	}
	return len(entries)
}

// Submit encodes one request, queues its frame on the current
// connection, and returns the handle that will resolve with the
// response. It fails with ErrNotConnected when no connection is up and
// with ErrConnectionLost when the connection dies before the frame is
// queued.
func (c *Client) Submit(ctx context.Context, method string, params any) (*Pending, error) {
	epoch := c.currentEpoch()
	if epoch == nil {
		return nil, ErrNotConnected
	}

	var encoded codec.RawMessage
	if params != nil {
		var err error
		encoded, err = codec.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("client: encoding %s params: %w", method, err)
		}
	}

	id := c.pending.nextRequestID()
	frame, err := wire.NewRequestFrame(wire.Request{
		ID:     id,
		Method: method,
		Params: encoded,
		Salt:   c.currentSalt(),
	})
	if err != nil {
		return nil, fmt.Errorf("client: framing %s request: %w", method, err)
	}

	p := c.pending.register(id)
	select {
	case epoch.sendCh <- frame:
		return p, nil
	case <-epoch.done:
		c.pending.complete(id, nil, ErrConnectionLost)
		return nil, ErrConnectionLost
	case <-ctx.Done():
		c.pending.complete(id, nil, ctx.Err())
		return nil, ctx.Err()
	}
}

// Invoke submits a request and waits for its response, decoding the
// result into result when it is non-nil. Server-reported failures come
// back as *wire.ServerError.
func (c *Client) Invoke(ctx context.Context, method string, params any, result any) error {
	p, err := c.Submit(ctx, method, params)
	if err != nil {
		return err
	}
	raw, err := p.Wait(ctx)
	if err != nil {
		return err
	}
	if result != nil && len(raw) > 0 {
		if err := codec.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("client: decoding %s result: %w", method, err)
		}
	}
	return nil
}

// sendLoop drains the epoch's outbound queue onto its connection. It
// exits when the epoch is torn down or a write fails.
func (c *Client) sendLoop(epoch *connEpoch) {
	defer c.wg.Done()
	for {
		select {
		case <-epoch.done:
			return
		case frame := <-epoch.sendCh:
			if err := epoch.conn.WriteFrame(frame); err != nil {
				if !netutil.IsExpectedCloseError(err) {
					c.logger.Warn("write failed", "remote", epoch.conn.RemoteAddr(), "error", err)
				}
				c.connectionBroken(epoch, fmt.Errorf("client: write: %w", err))
				return
			}
		}
	}
}

// currentSalt returns the salt to stamp on the next request, zero when
// none is known yet.
func (c *Client) currentSalt() int64 {
	c.recordMu.Lock()
	defer c.recordMu.Unlock()
	if c.record == nil {
		return 0
	}
	return c.record.CurrentSalt(c.clock.Now())
}
