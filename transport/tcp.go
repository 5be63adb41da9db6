// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"github.com/courier-foundation/courier/wire"
)

// Compile-time interface checks.
var (
	_ Dialer = (*TCPDialer)(nil)
	_ Conn   = (*streamConn)(nil)
)

// TCPDialer opens framed connections directly over TCP. This is the
// default transport.
type TCPDialer struct {
	// Timeout is the maximum time to wait for the connection to be
	// established. Zero means no standalone timeout, in which case
	// only the context deadline applies.
	Timeout time.Duration

	// Proxy, when enabled, routes the connection through a SOCKS5
	// or HTTP CONNECT proxy.
	Proxy *ProxyConfig
}

// DialContext opens a framed connection to endpoint (host:port).
func (d *TCPDialer) DialContext(ctx context.Context, endpoint string) (Conn, error) {
	if err := d.Proxy.Validate(); err != nil {
		return nil, &ConnectError{Endpoint: endpoint, Err: err}
	}
	conn, err := d.dialNet(ctx, endpoint)
	if err != nil {
		return nil, &ConnectError{Endpoint: endpoint, Err: err}
	}
	return newStreamConn(conn), nil
}

// dialNet establishes the raw TCP stream, either directly or through
// the configured proxy.
func (d *TCPDialer) dialNet(ctx context.Context, endpoint string) (net.Conn, error) {
	netDialer := &net.Dialer{Timeout: d.Timeout}
	if !d.Proxy.Enabled() {
		return netDialer.DialContext(ctx, "tcp", endpoint)
	}
	switch d.Proxy.Kind {
	case ProxySOCKS5:
		return dialSOCKS5(ctx, netDialer, d.Proxy, endpoint)
	case ProxyHTTP:
		return dialHTTPConnect(ctx, netDialer, d.Proxy, endpoint)
	}
	return nil, fmt.Errorf("transport: unknown proxy kind %q", d.Proxy.Kind)
}

// dialSOCKS5 connects through a SOCKS5 proxy, authenticating when the
// config carries credentials.
func dialSOCKS5(ctx context.Context, netDialer *net.Dialer, cfg *ProxyConfig, endpoint string) (net.Conn, error) {
	var auth *proxy.Auth
	if cfg.Username != "" {
		auth = &proxy.Auth{User: cfg.Username, Password: cfg.Password}
	}
	socksDialer, err := proxy.SOCKS5("tcp", cfg.Address(), auth, netDialer)
	if err != nil {
		return nil, fmt.Errorf("transport: socks5 proxy %s: %w", cfg.Address(), err)
	}
	contextDialer, ok := socksDialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("transport: socks5 proxy %s: dialer does not support contexts", cfg.Address())
	}
	return contextDialer.DialContext(ctx, "tcp", endpoint)
}

// dialHTTPConnect connects through an HTTP proxy by issuing a CONNECT
// request for the target endpoint.
func dialHTTPConnect(ctx context.Context, netDialer *net.Dialer, cfg *ProxyConfig, endpoint string) (net.Conn, error) {
	conn, err := netDialer.DialContext(ctx, "tcp", cfg.Address())
	if err != nil {
		return nil, fmt.Errorf("transport: http proxy %s: %w", cfg.Address(), err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	var authorization string
	if cfg.Username != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		authorization = "Proxy-Authorization: Basic " + credentials + "\r\n"
	}
	request := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n%s\r\n", endpoint, endpoint, authorization)
	if _, err := conn.Write([]byte(request)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: http proxy %s: write CONNECT: %w", cfg.Address(), err)
	}

	// The response may be followed immediately by server bytes, so the
	// bufio.Reader must stay attached to the connection afterward.
	reader := bufio.NewReader(conn)
	response, err := http.ReadResponse(reader, &http.Request{Method: http.MethodConnect})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: http proxy %s: read CONNECT response: %w", cfg.Address(), err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("transport: http proxy %s: CONNECT refused: %s", cfg.Address(), response.Status)
	}
	conn.SetDeadline(time.Time{})
	return &bufferedConn{Conn: conn, reader: reader}, nil
}

// bufferedConn keeps the bufio.Reader used for the CONNECT response
// attached to the connection, so bytes it buffered are not lost.
type bufferedConn struct {
	net.Conn
	reader *bufio.Reader
}

func (c *bufferedConn) Read(data []byte) (int, error) {
	return c.reader.Read(data)
}

// streamConn frames an ordinary byte stream. It serializes frame
// reads and frame writes independently, so a reader goroutine and a
// writer goroutine never interleave partial frames.
type streamConn struct {
	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex
	writer  *bufio.Writer

	readMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func newStreamConn(conn net.Conn) *streamConn {
	return &streamConn{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, 64<<10),
		writer: bufio.NewWriterSize(conn, 64<<10),
	}
}

func (c *streamConn) WriteFrame(frame wire.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wire.WriteFrame(c.writer, frame); err != nil {
		return err
	}
	if err := c.writer.Flush(); err != nil {
		return fmt.Errorf("transport: flush frame: %w", err)
	}
	return nil
}

func (c *streamConn) ReadFrame() (wire.Frame, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	return wire.ReadFrame(c.reader)
}

func (c *streamConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *streamConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
