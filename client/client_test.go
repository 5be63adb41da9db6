// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/courier-foundation/courier/auth"
	"github.com/courier-foundation/courier/lib/clock"
	"github.com/courier-foundation/courier/lib/codec"
	"github.com/courier-foundation/courier/lib/testutil"
	"github.com/courier-foundation/courier/session"
	"github.com/courier-foundation/courier/transport"
	"github.com/courier-foundation/courier/wire"
)

// testBase is the fake clock's starting instant.
var testBase = time.Unix(1700000000, 0)

// testSalt is the salt issued by the harness's key negotiation
// handler.
const testSalt int64 = 424242

type serverHandler func(request wire.Request) (any, *wire.ServerError)

// fakeServer answers requests arriving on piped connections from a
// table of scripted handlers. One instance serves every connection the
// test's dialer hands out, so scripting survives reconnects.
type fakeServer struct {
	mu        sync.Mutex
	handlers  map[string]serverHandler
	swallowed map[string]bool
	autoPong  bool

	// requests records every request the server saw, across
	// connections, in arrival order.
	requests chan wire.Request

	// attached delivers each new server-side connection end.
	attached chan transport.Conn

	connMu sync.Mutex
	conns  []transport.Conn
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		handlers:  make(map[string]serverHandler),
		swallowed: make(map[string]bool),
		autoPong:  true,
		requests:  make(chan wire.Request, 128),
		attached:  make(chan transport.Conn, 8),
	}
}

func (s *fakeServer) handle(method string, fn serverHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = fn
}

// swallow makes the server record requests for method without ever
// answering them.
func (s *fakeServer) swallow(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swallowed[method] = true
}

func (s *fakeServer) setAutoPong(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoPong = enabled
}

func (s *fakeServer) attach(conn transport.Conn) {
	s.connMu.Lock()
	s.conns = append(s.conns, conn)
	s.connMu.Unlock()
	select {
	case s.attached <- conn:
	default:
	}
	go s.serveConn(conn)
}

func (s *fakeServer) current() transport.Conn {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if len(s.conns) == 0 {
		return nil
	}
	return s.conns[len(s.conns)-1]
}

// dropConn closes the current connection from the server side,
// simulating a network failure.
func (s *fakeServer) dropConn() {
	if conn := s.current(); conn != nil {
		conn.Close()
	}
}

func (s *fakeServer) closeAll() {
	s.connMu.Lock()
	conns := append([]transport.Conn(nil), s.conns...)
	s.connMu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
}

func (s *fakeServer) serveConn(conn transport.Conn) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			return
		}
		if frame.Kind != wire.KindRequest {
			continue
		}
		request, err := wire.ParseRequest(frame)
		if err != nil {
			continue
		}
		select {
		case s.requests <- request:
		default:
		}

		s.mu.Lock()
		swallowed := s.swallowed[request.Method]
		fn := s.handlers[request.Method]
		autoPong := s.autoPong
		s.mu.Unlock()

		// Pings have no response; the answer is a pong control frame.
		if request.Method == "ping" {
			if autoPong && !swallowed {
				var params pingParams
				if err := codec.Unmarshal(request.Params, &params); err != nil {
					continue
				}
				s.pushControlOn(conn, wire.Control{Op: wire.ControlPong, PingID: params.PingID})
			}
			continue
		}
		if swallowed {
			continue
		}
		if fn == nil {
			s.reply(conn, request.ID, nil, &wire.ServerError{
				Code:    wire.CodeMethodUnknown,
				Message: "no handler for " + request.Method,
			})
			continue
		}
		result, serverErr := fn(request)
		s.reply(conn, request.ID, result, serverErr)
	}
}

func (s *fakeServer) reply(conn transport.Conn, id uint64, result any, serverErr *wire.ServerError) {
	response := wire.Response{ID: id, Error: serverErr}
	if result != nil {
		raw, err := codec.Marshal(result)
		if err != nil {
			return
		}
		response.Result = raw
	}
	frame, err := wire.NewResponseFrame(response)
	if err != nil {
		return
	}
	conn.WriteFrame(frame)
}

// pushUpdates delivers an update batch on the current connection.
func (s *fakeServer) pushUpdates(t *testing.T, batch wire.UpdateBatch) {
	t.Helper()
	frame, err := wire.NewUpdatesFrame(batch)
	if err != nil {
		t.Fatalf("building updates frame: %v", err)
	}
	if err := s.current().WriteFrame(frame); err != nil {
		t.Fatalf("pushing updates: %v", err)
	}
}

// pushControl delivers a control frame on the current connection.
func (s *fakeServer) pushControl(t *testing.T, control wire.Control) {
	t.Helper()
	if err := s.pushControlOn(s.current(), control); err != nil {
		t.Fatalf("pushing control: %v", err)
	}
}

func (s *fakeServer) pushControlOn(conn transport.Conn, control wire.Control) error {
	frame, err := wire.NewControlFrame(control)
	if err != nil {
		return err
	}
	return conn.WriteFrame(frame)
}

// pipeDialer hands the client one pipe end per dial and attaches the
// other end to the fake server.
type pipeDialer struct {
	server *fakeServer
	dials  atomic.Int32

	mu      sync.Mutex
	failErr error
}

func (d *pipeDialer) DialContext(ctx context.Context, endpoint string) (transport.Conn, error) {
	d.dials.Add(1)
	d.mu.Lock()
	failErr := d.failErr
	d.mu.Unlock()
	if failErr != nil {
		return nil, &transport.ConnectError{Endpoint: endpoint, Err: failErr}
	}
	clientEnd, serverEnd := transport.Pipe()
	d.server.attach(serverEnd)
	return clientEnd, nil
}

// setFailure makes subsequent dials fail with err; nil restores
// normal dialing.
func (d *pipeDialer) setFailure(err error) {
	d.mu.Lock()
	d.failErr = err
	d.mu.Unlock()
}

// memStore is an in-memory session.Store.
type memStore struct {
	mu      sync.Mutex
	record  *session.Record
	saves   int
	deletes int
}

var _ session.Store = (*memStore)(nil)

func (s *memStore) Load(ctx context.Context) (*session.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return nil, session.ErrNotFound
	}
	return s.record.Clone(), nil
}

func (s *memStore) Save(ctx context.Context, record *session.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = record.Clone()
	s.saves++
	return nil
}

func (s *memStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = nil
	s.deletes++
	return nil
}

// seed installs record without counting as a save.
func (s *memStore) seed(record *session.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = record.Clone()
}

// saved returns a copy of the stored record, nil when absent.
func (s *memStore) saved() *session.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return nil
	}
	return s.record.Clone()
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func testKeyExchange() auth.KeyExchange {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return auth.KeyExchange{
		AuthKey: key,
		Salts: []wire.ServerSalt{{
			Salt:       testSalt,
			ValidSince: testBase.Add(-time.Minute).Unix(),
			ValidUntil: testBase.Add(24 * time.Hour).Unix(),
		}},
	}
}

// testRig wires a client to a scripted in-process server over pipes,
// on a fake clock.
type testRig struct {
	client *Client
	server *fakeServer
	dialer *pipeDialer
	store  *memStore
	clock  *clock.FakeClock
}

func newTestRig(t *testing.T, mutate func(*Config)) *testRig {
	t.Helper()

	server := newFakeServer()
	server.handle("auth.negotiateKey", func(wire.Request) (any, *wire.ServerError) {
		return testKeyExchange(), nil
	})
	server.handle("test.sync", func(wire.Request) (any, *wire.ServerError) {
		return map[string]bool{"ok": true}, nil
	})
	dialer := &pipeDialer{server: server}
	store := &memStore{}
	clk := clock.Fake(testBase)

	config := Config{
		Endpoint: "courier.test:4433",
		Store:    store,
		Dialer:   dialer,
		Logger:   slog.New(slog.DiscardHandler),
		Clock:    clk,
		// No ping ticker unless a test asks for one: it would sit in
		// the fake clock's pending set and confuse timer accounting.
		PingInterval: -1,
		Backoff:      BackoffConfig{Initial: time.Second, Max: 4 * time.Second, MaxRetries: 3},
	}
	if mutate != nil {
		mutate(&config)
	}

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() {
		client.Disconnect()
		server.closeAll()
	})
	return &testRig{client: client, server: server, dialer: dialer, store: store, clock: clk}
}

func (r *testRig) connect(t *testing.T) {
	t.Helper()
	if err := r.client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
}

// nextRequest returns the next request the server received.
func (r *testRig) nextRequest(t *testing.T) wire.Request {
	t.Helper()
	return testutil.RequireReceive(t, r.server.requests, "waiting for server request")
}

// barrier round-trips a no-op request. When it returns, every frame
// the server wrote before the reply has been processed by the client.
// It drains the recorded request log up to and including its own
// request.
func (r *testRig) barrier(t *testing.T) {
	t.Helper()
	if err := r.client.Invoke(context.Background(), "test.sync", nil, nil); err != nil {
		t.Fatalf("sync invoke: %v", err)
	}
	for {
		request := testutil.RequireReceive(t, r.server.requests, "draining to sync request")
		if request.Method == "test.sync" {
			return
		}
	}
}

func TestConnectNegotiatesKeyForFreshSession(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.connect(t)

	if got := rig.client.State(); got != StateConnected {
		t.Fatalf("State() = %v, want %v", got, StateConnected)
	}
	request := rig.nextRequest(t)
	if request.Method != "auth.negotiateKey" {
		t.Fatalf("first request = %q, want auth.negotiateKey", request.Method)
	}
	if request.Salt != 0 {
		t.Errorf("negotiation request salt = %d, want 0", request.Salt)
	}

	record := rig.store.saved()
	if record == nil {
		t.Fatal("no session record saved after connect")
	}
	if !record.HasKey() {
		t.Error("saved record has no auth key")
	}
	if record.KeyFingerprint == 0 {
		t.Error("saved record has no key fingerprint")
	}
	if record.Endpoint != "courier.test:4433" {
		t.Errorf("saved endpoint = %q", record.Endpoint)
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.connect(t)
	rig.connect(t)

	if got := rig.dialer.dials.Load(); got != 1 {
		t.Fatalf("dial count = %d, want 1", got)
	}
}

func TestConnectDialFailureIsRetryable(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.dialer.setFailure(errors.New("network down"))

	err := rig.client.Connect(context.Background())
	if err == nil {
		t.Fatal("Connect succeeded with a failing dialer")
	}
	if !transport.IsConnectError(err) {
		t.Errorf("Connect error = %v, want a connect error", err)
	}
	if got := rig.client.State(); got != StateDisconnected {
		t.Errorf("State() after failed connect = %v", got)
	}

	// The failure must not poison the client.
	rig.dialer.setFailure(nil)
	rig.connect(t)
	if got := rig.client.State(); got != StateConnected {
		t.Errorf("State() after retry = %v", got)
	}
}

func TestConnectReusesStoredKey(t *testing.T) {
	rig := newTestRig(t, nil)

	seed := session.New("default")
	seed.Endpoint = "courier.test:4433"
	exchange := testKeyExchange()
	if err := seed.SetAuthKey(exchange.AuthKey, auth.KeyFingerprint(exchange.AuthKey)); err != nil {
		t.Fatalf("seeding auth key: %v", err)
	}
	seed.RotateSalts(exchange.Salts)
	seed.User = &session.User{ID: 7, Username: "ada"}
	rig.store.seed(seed)

	rig.server.handle("updates.getState", func(wire.Request) (any, *wire.ServerError) {
		return wire.UpdateState{Pts: 42, Qts: 1, Seq: 9, Date: testBase.Unix()}, nil
	})
	rig.connect(t)

	request := rig.nextRequest(t)
	if request.Method != "updates.getState" {
		t.Fatalf("first request = %q, want updates.getState", request.Method)
	}
	if request.Salt != testSalt {
		t.Errorf("request salt = %d, want %d from the stored record", request.Salt, testSalt)
	}

	// The refreshed update position lands in the store after the
	// debounce window.
	rig.clock.Advance(time.Second)
	record := rig.store.saved()
	if record == nil || record.State.Pts != 42 {
		t.Fatalf("saved state = %+v, want Pts 42", record)
	}
}

func TestInvokeRoundTrip(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.server.handle("test.echo", func(request wire.Request) (any, *wire.ServerError) {
		return codec.RawMessage(request.Params), nil
	})
	rig.connect(t)
	rig.nextRequest(t) // key negotiation

	type payload struct {
		Name string `cbor:"name"`
		N    int    `cbor:"n"`
	}
	sent := payload{Name: "hello", N: 3}
	var got payload
	if err := rig.client.Invoke(context.Background(), "test.echo", sent, &got); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != sent {
		t.Errorf("echoed payload = %+v, want %+v", got, sent)
	}

	request := rig.nextRequest(t)
	if request.Method != "test.echo" {
		t.Fatalf("request method = %q", request.Method)
	}
	if request.Salt != testSalt {
		t.Errorf("request salt = %d, want %d from the negotiated salts", request.Salt, testSalt)
	}
}

func TestInvokeSurfacesServerError(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.server.handle("test.flood", func(wire.Request) (any, *wire.ServerError) {
		return nil, &wire.ServerError{Code: wire.CodeFloodWait, Message: "slow down", RetryAfter: 42}
	})
	rig.connect(t)

	err := rig.client.Invoke(context.Background(), "test.flood", nil, nil)
	if !wire.IsServerError(err, wire.CodeFloodWait) {
		t.Fatalf("Invoke error = %v, want FLOOD_WAIT", err)
	}
	wait, ok := wire.FloodWait(err)
	if !ok || wait != 42*time.Second {
		t.Errorf("FloodWait = %v, %v; want 42s, true", wait, ok)
	}
}

func TestInvokeBeforeConnect(t *testing.T) {
	rig := newTestRig(t, nil)

	err := rig.client.Invoke(context.Background(), "test.echo", nil, nil)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Invoke error = %v, want ErrNotConnected", err)
	}
}

func TestConnectAfterDisconnect(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.connect(t)
	if err := rig.client.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	if err := rig.client.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Connect after Disconnect = %v, want ErrClosed", err)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.connect(t)

	for range 3 {
		if err := rig.client.Disconnect(); err != nil {
			t.Fatalf("Disconnect: %v", err)
		}
	}
	if got := rig.client.State(); got != StateDisconnected {
		t.Errorf("State() = %v", got)
	}
}

func TestRunUntilDisconnectedReturnsNilAfterDisconnect(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.connect(t)

	result := make(chan error, 1)
	go func() { result <- rig.client.RunUntilDisconnected() }()

	rig.client.Disconnect()
	if err := testutil.RequireReceive(t, result, "waiting for run to end"); err != nil {
		t.Fatalf("RunUntilDisconnected = %v, want nil", err)
	}
}

func TestRunHonorsContext(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.connect(t)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- rig.client.Run(ctx) }()

	cancel()
	err := testutil.RequireReceive(t, result, "waiting for run to end")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if got := rig.client.State(); got != StateDisconnected {
		t.Errorf("State() after cancelled run = %v", got)
	}
}

func TestStatesChannelClosesOnDisconnect(t *testing.T) {
	rig := newTestRig(t, nil)
	states := rig.client.States()
	rig.connect(t)

	if got := testutil.RequireReceive(t, states, "waiting for connected state"); got != StateConnected {
		t.Fatalf("first state = %v, want %v", got, StateConnected)
	}

	rig.client.Disconnect()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case state, ok := <-states:
			if !ok {
				return
			}
			if state != StateDisconnected {
				t.Fatalf("unexpected state %v before close", state)
			}
		case <-deadline:
			t.Fatal("states channel never closed")
		}
	}
}
