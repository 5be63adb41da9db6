// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"fmt"
	"time"

	"github.com/courier-foundation/courier/lib/codec"
	"github.com/courier-foundation/courier/wire"
)

type pingParams struct {
	PingID uint64 `cbor:"ping_id"`
}

// pingLoop probes the connection every pingInterval so a silently
// dead link is noticed even when no requests are flowing. Pings are
// fire-and-forget: the pong comes back as a control frame, not a
// response, so no pending entry is registered.
func (c *Client) pingLoop() {
	defer c.wg.Done()
	if c.pingInterval <= 0 {
		return
	}
	ticker := c.clock.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.ping()
		}
	}
}

func (c *Client) ping() {
	epoch := c.currentEpoch()
	if epoch == nil {
		return
	}

	// A connection that has not produced a pong for two full
	// intervals is dead even if the kernel has not noticed yet.
	now := c.clock.Now()
	silence := now.Sub(time.Unix(0, c.lastPongNano.Load()))
	if silence > 2*c.pingInterval {
		c.connectionBroken(epoch, fmt.Errorf("client: no pong for %v", silence))
		return
	}

	pingID := c.pingCounter.Add(1)
	params, err := codec.Marshal(pingParams{PingID: pingID})
	if err != nil {
		c.logger.Warn("encoding ping failed", "error", err)
		return
	}
	frame, err := wire.NewRequestFrame(wire.Request{
		ID:     c.pending.nextRequestID(),
		Method: methodPing,
		Params: params,
		Salt:   c.currentSalt(),
	})
	if err != nil {
		c.logger.Warn("framing ping failed", "error", err)
		return
	}

	c.lastPingID.Store(pingID)
	c.pingSentNano.Store(now.UnixNano())
	select {
	case epoch.sendCh <- frame:
	default:
		// A full queue means traffic is flowing, which is what the
		// ping was going to find out.
		c.logger.Debug("send queue full, skipping ping")
	}
}
