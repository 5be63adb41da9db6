// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/courier-foundation/courier/wire"
)

// Conn is a full-duplex framed connection to a server. WriteFrame and
// ReadFrame may each be called from one goroutine at a time; a reader
// goroutine and a writer goroutine may run concurrently. Close is
// idempotent and unblocks both.
type Conn interface {
	// WriteFrame sends one frame. It blocks until the frame is
	// handed to the underlying stream or the connection fails.
	WriteFrame(frame wire.Frame) error

	// ReadFrame blocks until the next frame arrives, the peer
	// closes the stream, or Close is called.
	ReadFrame() (wire.Frame, error)

	// Close tears the connection down. Subsequent reads and writes
	// fail with net.ErrClosed.
	Close() error

	// RemoteAddr reports the peer address, for logging.
	RemoteAddr() string
}

// Dialer establishes connections. Implementations must honor context
// cancellation during establishment; after DialContext returns, the
// context no longer governs the connection.
type Dialer interface {
	DialContext(ctx context.Context, endpoint string) (Conn, error)
}

// ConnectError reports a failure to establish a connection, as
// opposed to the failure of an established one. The reconnector
// treats both as retryable but logs them differently.
type ConnectError struct {
	// Endpoint is the address the dial targeted.
	Endpoint string

	// Err is the underlying failure.
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("transport: connect %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// IsConnectError reports whether err (or an error it wraps) is a
// connection establishment failure.
func IsConnectError(err error) bool {
	var connectErr *ConnectError
	return errors.As(err, &connectErr)
}

// Proxy kinds accepted by ProxyConfig.
const (
	ProxySOCKS5 = "socks5"
	ProxyHTTP   = "http"
)

// ProxyConfig routes a dialer's traffic through an intermediary.
// The zero value means a direct connection.
type ProxyConfig struct {
	// Kind selects the proxy protocol: ProxySOCKS5 or ProxyHTTP.
	// Empty disables proxying.
	Kind string `yaml:"kind"`

	// Host and Port locate the proxy server.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Username and Password authenticate to the proxy when set.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Enabled reports whether the config names a proxy.
func (p *ProxyConfig) Enabled() bool {
	return p != nil && p.Kind != ""
}

// Validate checks the config for internal consistency.
func (p *ProxyConfig) Validate() error {
	if !p.Enabled() {
		return nil
	}
	switch p.Kind {
	case ProxySOCKS5, ProxyHTTP:
	default:
		return fmt.Errorf("transport: unknown proxy kind %q", p.Kind)
	}
	if p.Host == "" {
		return errors.New("transport: proxy host is required")
	}
	if p.Port <= 0 || p.Port > 65535 {
		return fmt.Errorf("transport: proxy port %d out of range", p.Port)
	}
	return nil
}

// Address returns the proxy's host:port.
func (p *ProxyConfig) Address() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}
