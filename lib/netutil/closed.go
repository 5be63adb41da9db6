// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil classifies network errors that occur during normal
// connection teardown.
//
// The transport's read and write paths and the client's receive loop
// use [IsExpectedCloseError] to tell a deliberate local close or a
// clean peer disconnect apart from a mid-session failure worth
// logging and retrying.
package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// IsExpectedCloseError reports whether err is a normal connection
// termination: EOF, closed connection, broken pipe, or connection
// reset. A full-close (closing the whole socket rather than
// half-close via CloseWrite) surfaces as ECONNRESET or EPIPE on the
// surviving side instead of EOF; all four forms are expected during
// teardown and should not be logged as errors.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case syscall.EPIPE, syscall.ECONNRESET:
		return true
	}
	return false
}
