// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"fmt"
	"time"
)

// State is the client's connection state.
type State int

const (
	// StateDisconnected means no connection is up. The client starts
	// here and passes through on every connection loss.
	StateDisconnected State = iota

	// StateConnected means the connection is established and requests
	// flow.
	StateConnected

	// StateReconnecting means the supervisor is dialing after a
	// connection loss.
	StateReconnecting

	// StateFailed means the supervisor exhausted its retries and gave
	// up. Terminal.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// BackoffConfig tunes the reconnect supervisor's retry schedule. The
// delay starts at Initial and doubles per failed attempt up to Max.
type BackoffConfig struct {
	// Initial is the delay after the first failed attempt. Defaults
	// to one second.
	Initial time.Duration

	// Max caps the delay. Defaults to 30 seconds.
	Max time.Duration

	// MaxRetries is how many attempts the supervisor makes per outage
	// before the client fails. Zero means the default of 8; negative
	// means retry forever.
	MaxRetries int
}

func (b BackoffConfig) withDefaults() BackoffConfig {
	if b.Initial <= 0 {
		b.Initial = time.Second
	}
	if b.Max <= 0 {
		b.Max = 30 * time.Second
	}
	if b.MaxRetries == 0 {
		b.MaxRetries = 8
	}
	return b
}

// superviseReconnect restores the connection after a loss. Each outage
// gets a fresh backoff schedule; exhausting MaxRetries moves the
// client to StateFailed and stops it.
func (c *Client) superviseReconnect() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stop:
			return
		case <-c.reconnectCh:
		}
		if !c.reconnect() {
			return
		}
	}
}

// reconnect runs the retry loop for one outage. It reports whether
// the supervisor should keep running.
func (c *Client) reconnect() bool {
	delay := c.backoff.Initial
	for attempt := 1; ; attempt++ {
		c.setState(StateReconnecting)
		err := c.establish(c.runCtx)
		if err == nil {
			c.setState(StateConnected)
			c.logger.Info("reconnected", "endpoint", c.endpoint, "attempt", attempt)
			return true
		}
		if c.isStopped() {
			return false
		}
		if c.backoff.MaxRetries >= 0 && attempt >= c.backoff.MaxRetries {
			c.fail(fmt.Errorf("client: reconnect failed after %d attempts: %w", attempt, err))
			return false
		}
		c.logger.Warn("reconnect attempt failed",
			"attempt", attempt,
			"error", err,
			"retry_in", delay,
		)
		select {
		case <-c.stop:
			return false
		case <-c.clock.After(delay):
		}
		delay *= 2
		if delay > c.backoff.Max {
			delay = c.backoff.Max
		}
	}
}

// fail moves the client to its terminal state from inside the
// supervisor. It must not wait on the client's worker group: the
// supervisor is part of it.
func (c *Client) fail(cause error) {
	c.logger.Error("giving up on reconnecting", "error", cause)
	c.setFailed(cause)
	c.halt()
	c.dispatcher.stop()
	c.closeStateSubs()
	c.doneOnce.Do(func() { close(c.done) })
}
