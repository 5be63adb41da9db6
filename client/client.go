// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/courier-foundation/courier/auth"
	"github.com/courier-foundation/courier/lib/clock"
	"github.com/courier-foundation/courier/session"
	"github.com/courier-foundation/courier/transport"
	"github.com/courier-foundation/courier/wire"
)

const (
	defaultSessionID      = "default"
	defaultRequestTimeout = 30 * time.Second
	defaultPingInterval   = time.Minute
	defaultSendQueueSize  = 64
	defaultUpdateQueue    = 256

	// persistDebounce batches session writes triggered by update
	// arrival so a busy stream does not hammer the store.
	persistDebounce = time.Second

	// saveTimeout bounds a single store write.
	saveTimeout = 5 * time.Second
)

const (
	methodPing     = "ping"
	methodGetState = "updates.getState"
)

// Config configures a Client. Endpoint and Store are required;
// everything else has a working default.
type Config struct {
	// Endpoint is the server address handed to the dialer, host:port
	// for TCP or a ws:// / wss:// URL for WebSocket.
	Endpoint string

	// Store persists the session record across restarts.
	Store session.Store

	// SessionID names the session within the store. Defaults to
	// "default".
	SessionID string

	// Dialer establishes connections. If nil, a plain TCPDialer is
	// used.
	Dialer transport.Dialer

	// Logger receives client logs. If nil, slog.Default() is used.
	Logger *slog.Logger

	// Clock drives timeouts, pings, and backoff. If nil, the system
	// clock is used.
	Clock clock.Clock

	// RequestTimeout bounds how long a submitted request may stay
	// unanswered before it resolves with ErrRequestTimeout. Zero means
	// the 30 second default; negative disables the timeout.
	RequestTimeout time.Duration

	// PingInterval is how often the client probes an idle connection.
	// Zero means the one minute default; negative disables pings.
	PingInterval time.Duration

	// Backoff tunes the reconnect supervisor.
	Backoff BackoffConfig

	// SendQueueSize caps frames queued for writing. Defaults to 64.
	SendQueueSize int

	// UpdateQueueSize caps updates buffered for dispatch. When the
	// queue is full the oldest update is dropped. Defaults to 256.
	UpdateQueueSize int

	// ConcurrentHandlers runs the handlers matching one update in
	// parallel instead of sequentially. Updates themselves are always
	// dispatched in arrival order.
	ConcurrentHandlers bool
}

// connEpoch is one connection's lifetime: the conn, its outbound
// queue, and a channel closed when the connection is torn down.
// Workers hold the epoch they were started for, so a loop belonging to
// a dead connection can never tear down its successor.
type connEpoch struct {
	conn   transport.Conn
	sendCh chan wire.Frame
	done   chan struct{}
}

// Client is a connection to a courier server: it multiplexes requests
// over one framed connection, dispatches pushed updates, keeps the
// session record current, and reconnects with backoff when the
// connection drops.
//
// A Client is safe for concurrent use. It runs at most one connection
// at a time.
type Client struct {
	logger    *slog.Logger
	clock     clock.Clock
	dialer    transport.Dialer
	store     session.Store
	endpoint  string
	sessionID string

	pingInterval time.Duration
	backoff      BackoffConfig
	sendQueue    int

	dispatcher *Dispatcher
	pending    *pendingTable

	runCtx    context.Context
	runCancel context.CancelFunc

	mu         sync.Mutex
	epoch      *connEpoch
	state      State
	failure    error
	started    bool
	stopped    bool
	stateSubs  []chan State
	subsClosed bool

	stop        chan struct{}
	stopOnce    sync.Once
	done        chan struct{}
	doneOnce    sync.Once
	reconnectCh chan struct{}
	wg          sync.WaitGroup

	recordMu  sync.Mutex
	record    *session.Record
	dirty     bool
	saveTimer *clock.Timer

	lastPongNano atomic.Int64
	pingSentNano atomic.Int64
	lastPingID   atomic.Uint64
	pingCounter  atomic.Uint64

	authMu   sync.Mutex
	authFlow *auth.Flow
}

// Client satisfies auth.Invoker, so the auth package's flows can run
// over it directly.
var _ auth.Invoker = (*Client)(nil)

// NewClient validates config and returns an unconnected client.
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("client: Endpoint is required")
	}
	if config.Store == nil {
		return nil, fmt.Errorf("client: Store is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	dialer := config.Dialer
	if dialer == nil {
		dialer = &transport.TCPDialer{}
	}
	sessionID := config.SessionID
	if sessionID == "" {
		sessionID = defaultSessionID
	}
	requestTimeout := config.RequestTimeout
	switch {
	case requestTimeout == 0:
		requestTimeout = defaultRequestTimeout
	case requestTimeout < 0:
		requestTimeout = 0
	}
	pingInterval := config.PingInterval
	switch {
	case pingInterval == 0:
		pingInterval = defaultPingInterval
	case pingInterval < 0:
		pingInterval = 0
	}
	sendQueue := config.SendQueueSize
	if sendQueue <= 0 {
		sendQueue = defaultSendQueueSize
	}
	updateQueue := config.UpdateQueueSize
	if updateQueue <= 0 {
		updateQueue = defaultUpdateQueue
	}

	return &Client{
		logger:       logger,
		clock:        clk,
		dialer:       dialer,
		store:        config.Store,
		endpoint:     config.Endpoint,
		sessionID:    sessionID,
		pingInterval: pingInterval,
		backoff:      config.Backoff.withDefaults(),
		sendQueue:    sendQueue,
		dispatcher:   newDispatcher(logger, updateQueue, config.ConcurrentHandlers),
		pending:      newPendingTable(clk, requestTimeout),
		state:        StateDisconnected,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		reconnectCh:  make(chan struct{}, 1),
	}, nil
}

// Connect loads the session record, establishes the connection, and
// starts the client's workers. For a fresh session it also negotiates
// the auth key before returning. Connect is a no-op on a client that
// is already connected and fails with ErrClosed after Disconnect.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	record, err := c.store.Load(ctx)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrNotFound):
		record = session.New(c.sessionID)
	default:
		c.abortConnect()
		return fmt.Errorf("client: loading session: %w", err)
	}
	record.Endpoint = c.endpoint
	c.recordMu.Lock()
	c.record = record
	c.recordMu.Unlock()

	c.runCtx, c.runCancel = context.WithCancel(context.Background())
	c.dispatcher.start(c.runCtx)

	if err := c.establish(ctx); err != nil {
		c.runCancel()
		c.dispatcher.stop()
		c.abortConnect()
		return err
	}

	c.wg.Add(2)
	go c.superviseReconnect()
	go c.pingLoop()

	c.setState(StateConnected)
	c.logger.Info("connected", "endpoint", c.endpoint, "session_id", c.sessionID)
	return nil
}

// abortConnect rolls back the started flag after a failed Connect so
// the caller may try again.
func (c *Client) abortConnect() {
	c.mu.Lock()
	c.started = false
	c.mu.Unlock()
}

// establish dials the endpoint, wires up a new connection epoch, and
// brings the session to a usable state: negotiating the auth key for a
// fresh session, or reconciling the update position for a returning
// one.
func (c *Client) establish(ctx context.Context) error {
	conn, err := c.dialer.DialContext(ctx, c.endpoint)
	if err != nil {
		return err
	}

	epoch := &connEpoch{
		conn:   conn,
		sendCh: make(chan wire.Frame, c.sendQueue),
		done:   make(chan struct{}),
	}

	// Reset per-connection counters before the epoch becomes visible
	// to Submit.
	c.pending.restartIDs()
	c.lastPongNano.Store(c.clock.Now().UnixNano())

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.epoch = epoch
	c.mu.Unlock()

	c.wg.Add(2)
	go c.sendLoop(epoch)
	go c.receiveLoop(epoch)

	if !c.hasKey() {
		exchange, err := auth.NegotiateKey(ctx, c)
		if err != nil {
			c.closeEpoch(epoch)
			return fmt.Errorf("client: negotiating auth key: %w", err)
		}
		fingerprint := auth.KeyFingerprint(exchange.AuthKey)
		c.recordMu.Lock()
		err = c.record.SetAuthKey(exchange.AuthKey, fingerprint)
		if err == nil {
			c.record.RotateSalts(exchange.Salts)
		}
		c.recordMu.Unlock()
		if err != nil {
			c.closeEpoch(epoch)
			return fmt.Errorf("client: storing auth key: %w", err)
		}
		c.logger.Info("auth key negotiated", "fingerprint", fmt.Sprintf("%016x", fingerprint))
		c.flushRecordSync("key negotiated")
	} else if c.signedIn() {
		// Pull the server's update position so dispatch resumes
		// without gaps. Failure here is not fatal to the connection.
		var state wire.UpdateState
		if err := c.Invoke(ctx, methodGetState, nil, &state); err != nil {
			c.logger.Warn("fetching update state failed", "error", err)
		} else {
			c.recordMu.Lock()
			c.record.Advance(state)
			c.recordMu.Unlock()
			c.markDirty()
		}
	}
	return nil
}

// currentEpoch returns the live connection epoch, nil when
// disconnected.
func (c *Client) currentEpoch() *connEpoch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// closeEpoch tears down one connection epoch: closes the conn,
// unblocks its loops, resolves its in-flight requests, and flushes the
// session record. It reports whether epoch was still current; a false
// return means someone else already tore it down.
func (c *Client) closeEpoch(epoch *connEpoch) bool {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return false
	}
	c.epoch = nil
	c.mu.Unlock()

	close(epoch.done)
	epoch.conn.Close()
	if n := c.pending.failAll(ErrConnectionLost); n > 0 {
		c.logger.Debug("resolved in-flight requests", "count", n, "error", ErrConnectionLost)
	}
	c.flushRecordSync("connection closed")
	return true
}

// connectionBroken handles the current connection dying underneath
// us: it tears the epoch down and wakes the reconnect supervisor.
// Stale epochs and shutdown races reduce to no-ops.
func (c *Client) connectionBroken(epoch *connEpoch, cause error) {
	if !c.closeEpoch(epoch) {
		return
	}
	c.setState(StateDisconnected)
	if c.isStopped() {
		return
	}
	c.logger.Warn("connection lost", "error", cause)
	select {
	case c.reconnectCh <- struct{}{}:
	default:
	}
}

// halt signals every worker to stop. It is safe to call more than
// once and from any goroutine, including the workers themselves.
func (c *Client) halt() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		c.mu.Unlock()
		close(c.stop)
		if c.runCancel != nil {
			c.runCancel()
		}
	})
}

func (c *Client) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// Disconnect stops the client: it closes the connection, resolves
// in-flight requests with ErrConnectionLost, flushes the session
// record, and waits for every worker to exit. Disconnect is
// idempotent; the client cannot be reconnected afterwards.
func (c *Client) Disconnect() error {
	c.halt()
	if epoch := c.currentEpoch(); epoch != nil {
		c.closeEpoch(epoch)
	}
	c.wg.Wait()
	c.dispatcher.stop()
	c.setState(StateDisconnected)
	c.closeStateSubs()
	c.doneOnce.Do(func() { close(c.done) })
	c.logger.Info("disconnected", "session_id", c.sessionID)
	return nil
}

// Run blocks until the client stops on its own or ctx is cancelled.
// Cancellation disconnects the client and returns ctx.Err(); a failed
// reconnect returns the failure; Disconnect from elsewhere returns
// nil.
func (c *Client) Run(ctx context.Context) error {
	select {
	case <-c.done:
		return c.runOutcome()
	case <-ctx.Done():
		c.Disconnect()
		return ctx.Err()
	}
}

// RunUntilDisconnected blocks until the client stops: it returns the
// terminal failure after the reconnect supervisor gives up, or nil
// after a deliberate Disconnect.
func (c *Client) RunUntilDisconnected() error {
	<-c.done
	return c.runOutcome()
}

func (c *Client) runOutcome() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateFailed {
		return c.failure
	}
	return nil
}

// State returns the current connection state. StateFailed is
// terminal: once entered it is never left.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// States returns a channel delivering connection state transitions.
// The channel is buffered; transitions a slow receiver misses are
// dropped rather than blocking the client. It is closed when the
// client stops.
func (c *Client) States() <-chan State {
	ch := make(chan State, 16)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subsClosed {
		close(ch)
		return ch
	}
	c.stateSubs = append(c.stateSubs, ch)
	return ch
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == state || c.state == StateFailed {
		return
	}
	c.state = state
	for _, ch := range c.stateSubs {
		select {
		case ch <- state:
		default:
		}
	}
}

// setFailed records the terminal failure and broadcasts StateFailed.
func (c *Client) setFailed(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateFailed {
		return
	}
	c.state = StateFailed
	c.failure = cause
	for _, ch := range c.stateSubs {
		select {
		case ch <- StateFailed:
		default:
		}
	}
}

func (c *Client) closeStateSubs() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subsClosed {
		return
	}
	c.subsClosed = true
	for _, ch := range c.stateSubs {
		close(ch)
	}
	c.stateSubs = nil
}

// On registers handler for updates matching filter. See
// [Dispatcher.On].
func (c *Client) On(filter Filter, handler Handler) *Subscription {
	return c.dispatcher.On(filter, handler)
}

// WaitFor blocks until an update matching filter arrives. See
// [Dispatcher.WaitFor].
func (c *Client) WaitFor(ctx context.Context, filter Filter) (*wire.Update, error) {
	return c.dispatcher.WaitFor(ctx, filter)
}

// HandlerErrors exposes failures returned by update handlers. See
// [Dispatcher.Errors].
func (c *Client) HandlerErrors() <-chan HandlerError {
	return c.dispatcher.Errors()
}

func (c *Client) hasKey() bool {
	c.recordMu.Lock()
	defer c.recordMu.Unlock()
	return c.record != nil && c.record.HasKey()
}

func (c *Client) signedIn() bool {
	c.recordMu.Lock()
	defer c.recordMu.Unlock()
	return c.record != nil && c.record.User != nil
}

// markDirty schedules a debounced session save. Frequent callers,
// like the update path, coalesce into one write per debounce window.
func (c *Client) markDirty() {
	c.recordMu.Lock()
	defer c.recordMu.Unlock()
	if c.record == nil || c.dirty {
		return
	}
	c.dirty = true
	c.saveTimer = c.clock.AfterFunc(persistDebounce, func() {
		c.flushRecordSync("debounce")
	})
}

// flushRecordSync writes the session record to the store now,
// cancelling any pending debounced save. Store failures are logged,
// not returned: the in-memory record stays authoritative and the next
// flush retries.
func (c *Client) flushRecordSync(reason string) {
	c.recordMu.Lock()
	if c.record == nil {
		c.recordMu.Unlock()
		return
	}
	if c.saveTimer != nil {
		c.saveTimer.Stop()
		c.saveTimer = nil
	}
	c.dirty = false
	snapshot := c.record.Clone()
	c.recordMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := c.store.Save(ctx, snapshot); err != nil {
		c.logger.Warn("saving session failed", "reason", reason, "error", err)
		return
	}
	c.logger.Debug("session saved", "reason", reason)
}
