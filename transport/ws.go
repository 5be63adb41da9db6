// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"

	"github.com/courier-foundation/courier/wire"
)

// Compile-time interface checks.
var (
	_ Dialer = (*WSDialer)(nil)
	_ Conn   = (*wsConn)(nil)
)

// WSDialer opens framed connections over WebSocket, carrying each
// frame as one binary message. Use it where only HTTP(S) egress is
// allowed; endpoints are ws:// or wss:// URLs.
type WSDialer struct {
	// HandshakeTimeout bounds the WebSocket handshake. Zero means
	// 30 seconds.
	HandshakeTimeout time.Duration

	// Proxy, when enabled, routes the connection through a SOCKS5
	// or HTTP CONNECT proxy.
	Proxy *ProxyConfig

	// Header is sent with the handshake request, for deployments
	// that authenticate at the HTTP layer.
	Header http.Header
}

// DialContext opens a framed connection to a ws:// or wss:// URL.
func (d *WSDialer) DialContext(ctx context.Context, endpoint string) (Conn, error) {
	if err := d.Proxy.Validate(); err != nil {
		return nil, &ConnectError{Endpoint: endpoint, Err: err}
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, &ConnectError{Endpoint: endpoint, Err: fmt.Errorf("transport: parse endpoint: %w", err)}
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return nil, &ConnectError{Endpoint: endpoint, Err: fmt.Errorf("transport: endpoint scheme %q is not ws or wss", parsed.Scheme)}
	}

	handshakeTimeout := d.HandshakeTimeout
	if handshakeTimeout == 0 {
		handshakeTimeout = 30 * time.Second
	}
	wsDialer := &websocket.Dialer{
		HandshakeTimeout:  handshakeTimeout,
		ReadBufferSize:    32 << 10,
		WriteBufferSize:   32 << 10,
		EnableCompression: false,
	}
	if d.Proxy.Enabled() {
		switch d.Proxy.Kind {
		case ProxyHTTP:
			proxyURL := &url.URL{Scheme: "http", Host: d.Proxy.Address()}
			if d.Proxy.Username != "" {
				proxyURL.User = url.UserPassword(d.Proxy.Username, d.Proxy.Password)
			}
			wsDialer.Proxy = http.ProxyURL(proxyURL)
		case ProxySOCKS5:
			var auth *proxy.Auth
			if d.Proxy.Username != "" {
				auth = &proxy.Auth{User: d.Proxy.Username, Password: d.Proxy.Password}
			}
			socksDialer, err := proxy.SOCKS5("tcp", d.Proxy.Address(), auth, proxy.Direct)
			if err != nil {
				return nil, &ConnectError{Endpoint: endpoint, Err: fmt.Errorf("transport: socks5 proxy %s: %w", d.Proxy.Address(), err)}
			}
			contextDialer, ok := socksDialer.(proxy.ContextDialer)
			if !ok {
				return nil, &ConnectError{Endpoint: endpoint, Err: fmt.Errorf("transport: socks5 proxy %s: dialer does not support contexts", d.Proxy.Address())}
			}
			wsDialer.NetDialContext = contextDialer.DialContext
		}
	}

	ws, response, err := wsDialer.DialContext(ctx, endpoint, d.Header)
	if err != nil {
		if response != nil {
			err = fmt.Errorf("%w (status %s)", err, response.Status)
		}
		return nil, &ConnectError{Endpoint: endpoint, Err: err}
	}
	ws.SetReadLimit(wire.MaxPayloadLength + 64)
	return &wsConn{ws: ws}, nil
}

// wsConn adapts a WebSocket connection to the Conn interface. Each
// frame is written as one binary message; non-binary messages from
// the peer are skipped.
type wsConn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
	readMu  sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) WriteFrame(frame wire.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	writer, err := c.ws.NextWriter(websocket.BinaryMessage)
	if err != nil {
		return fmt.Errorf("transport: websocket write: %w", err)
	}
	if err := wire.WriteFrame(writer, frame); err != nil {
		writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("transport: websocket write: %w", err)
	}
	return nil
}

func (c *wsConn) ReadFrame() (wire.Frame, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	for {
		messageType, reader, err := c.ws.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return wire.Frame{}, io.EOF
			}
			return wire.Frame{}, err
		}
		if messageType != websocket.BinaryMessage {
			io.Copy(io.Discard, reader)
			continue
		}
		return wire.ReadFrame(reader)
	}
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.ws.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *wsConn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}
