// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"fmt"
	"time"

	"github.com/courier-foundation/courier/lib/netutil"
	"github.com/courier-foundation/courier/wire"
)

// receiveLoop reads frames off the epoch's connection and routes them
// until the connection fails or is torn down. A frame that does not
// parse is logged and dropped; only read errors end the loop.
func (c *Client) receiveLoop(epoch *connEpoch) {
	defer c.wg.Done()
	for {
		frame, err := epoch.conn.ReadFrame()
		if err != nil {
			if !netutil.IsExpectedCloseError(err) {
				c.logger.Warn("read failed", "remote", epoch.conn.RemoteAddr(), "error", err)
			}
			c.connectionBroken(epoch, fmt.Errorf("client: read: %w", err))
			return
		}
		c.handleFrame(frame)
	}
}

func (c *Client) handleFrame(frame wire.Frame) {
	switch frame.Kind {
	case wire.KindResponse:
		response, err := wire.ParseResponse(frame)
		if err != nil {
			c.logger.Warn("dropping malformed response frame", "error", err)
			return
		}
		c.handleResponse(response)
	case wire.KindUpdates:
		batch, err := wire.ParseUpdates(frame)
		if err != nil {
			c.logger.Warn("dropping malformed updates frame", "error", err)
			return
		}
		c.handleUpdates(batch)
	case wire.KindControl:
		control, err := wire.ParseControl(frame)
		if err != nil {
			c.logger.Warn("dropping malformed control frame", "error", err)
			return
		}
		c.handleControl(control)
	default:
		c.logger.Warn("dropping frame of unexpected kind", "kind", frame.Kind.String())
	}
}

// handleResponse resolves the pending request the response answers. A
// response with no pending entry, typically one that raced a timeout
// or reconnect, is logged and dropped.
func (c *Client) handleResponse(response wire.Response) {
	var failure error
	if response.Error != nil {
		failure = response.Error
	}
	if !c.pending.complete(response.ID, response.Result, failure) {
		c.logger.Warn("response for unknown request", "id", response.ID)
	}
}

// handleUpdates queues the batch for dispatch and advances the
// session's update position.
func (c *Client) handleUpdates(batch wire.UpdateBatch) {
	for i := range batch.Updates {
		c.dispatcher.enqueue(batch.Updates[i])
	}

	c.recordMu.Lock()
	for i := range batch.Updates {
		update := &batch.Updates[i]
		if update.Pts != 0 || update.Date != 0 {
			c.record.Advance(wire.UpdateState{Pts: update.Pts, Date: update.Date})
		}
	}
	if batch.State != nil {
		c.record.Advance(*batch.State)
	}
	c.recordMu.Unlock()
	c.markDirty()
}

// handleControl reacts to session-level notices from the server.
func (c *Client) handleControl(control wire.Control) {
	switch control.Op {
	case wire.ControlSaltRotate:
		c.recordMu.Lock()
		c.record.RotateSalts(control.Salts)
		c.recordMu.Unlock()
		c.logger.Debug("server salts rotated", "count", len(control.Salts))
		c.flushRecordSync("salt rotation")
	case wire.ControlNewSession:
		// The server discarded its session state: whatever was in
		// flight will never be answered, and the update position
		// restarts from the state the notice carries.
		n := c.pending.failAll(ErrConnectionLost)
		c.recordMu.Lock()
		c.record.ResetState()
		if control.State != nil {
			c.record.Advance(*control.State)
		}
		c.recordMu.Unlock()
		c.logger.Info("server started a new session", "resolved_requests", n)
		c.flushRecordSync("new session")
	case wire.ControlPong:
		now := c.clock.Now()
		c.lastPongNano.Store(now.UnixNano())
		if control.PingID == c.lastPingID.Load() {
			rtt := now.Sub(time.Unix(0, c.pingSentNano.Load()))
			c.logger.Debug("pong", "ping_id", control.PingID, "rtt", rtt)
		}
	default:
		c.logger.Warn("dropping control frame with unknown op", "op", control.Op)
	}
}
