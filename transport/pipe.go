// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"io"
	"net"
	"sync"
	"syscall"

	"github.com/courier-foundation/courier/wire"
)

var _ Conn = (*pipeConn)(nil)

// Pipe returns both ends of an in-process connection. Frames written
// to one end arrive at the other in order. Each direction buffers up
// to 64 frames, so a test can write without a concurrent reader.
//
// Closing either end gives the peer io.EOF on read and EPIPE on
// write, mirroring a real disconnect.
func Pipe() (client, server Conn) {
	clientToServer := make(chan wire.Frame, 64)
	serverToClient := make(chan wire.Frame, 64)
	clientDone := make(chan struct{})
	serverDone := make(chan struct{})
	client = &pipeConn{
		peerName:  "pipe-server",
		send:      clientToServer,
		recv:      serverToClient,
		localDone: clientDone,
		peerDone:  serverDone,
	}
	server = &pipeConn{
		peerName:  "pipe-client",
		send:      serverToClient,
		recv:      clientToServer,
		localDone: serverDone,
		peerDone:  clientDone,
	}
	return client, server
}

type pipeConn struct {
	peerName string

	send chan<- wire.Frame
	recv <-chan wire.Frame

	localDone chan struct{}
	peerDone  chan struct{}
	closeOnce sync.Once
}

func (c *pipeConn) WriteFrame(frame wire.Frame) error {
	// Copy the payload so the caller may reuse its buffer.
	payload := make([]byte, len(frame.Payload))
	copy(payload, frame.Payload)
	frame.Payload = payload

	select {
	case <-c.localDone:
		return net.ErrClosed
	case <-c.peerDone:
		return syscall.EPIPE
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.localDone:
		return net.ErrClosed
	case <-c.peerDone:
		return syscall.EPIPE
	}
}

func (c *pipeConn) ReadFrame() (wire.Frame, error) {
	select {
	case <-c.localDone:
		return wire.Frame{}, net.ErrClosed
	default:
	}
	select {
	case frame := <-c.recv:
		return frame, nil
	case <-c.localDone:
		return wire.Frame{}, net.ErrClosed
	case <-c.peerDone:
		// Frames sent before the peer closed still get delivered.
		select {
		case frame := <-c.recv:
			return frame, nil
		default:
			return wire.Frame{}, io.EOF
		}
	}
}

func (c *pipeConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.localDone)
	})
	return nil
}

func (c *pipeConn) RemoteAddr() string {
	return c.peerName
}
