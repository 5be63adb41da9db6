// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"testing"
)

func TestProxyConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *ProxyConfig
		wantErr bool
	}{
		{name: "nil means direct", config: nil, wantErr: false},
		{name: "zero value means direct", config: &ProxyConfig{}, wantErr: false},
		{name: "socks5", config: &ProxyConfig{Kind: ProxySOCKS5, Host: "proxy.example.com", Port: 1080}, wantErr: false},
		{name: "http", config: &ProxyConfig{Kind: ProxyHTTP, Host: "proxy.example.com", Port: 3128}, wantErr: false},
		{name: "unknown kind", config: &ProxyConfig{Kind: "socks4", Host: "proxy.example.com", Port: 1080}, wantErr: true},
		{name: "missing host", config: &ProxyConfig{Kind: ProxySOCKS5, Port: 1080}, wantErr: true},
		{name: "port zero", config: &ProxyConfig{Kind: ProxySOCKS5, Host: "proxy.example.com"}, wantErr: true},
		{name: "port too large", config: &ProxyConfig{Kind: ProxySOCKS5, Host: "proxy.example.com", Port: 70000}, wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.config.Validate()
			if (err != nil) != test.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, test.wantErr)
			}
		})
	}
}

func TestProxyConfig_Enabled(t *testing.T) {
	var nilConfig *ProxyConfig
	if nilConfig.Enabled() {
		t.Error("nil config reports enabled")
	}
	if (&ProxyConfig{}).Enabled() {
		t.Error("zero config reports enabled")
	}
	if !(&ProxyConfig{Kind: ProxySOCKS5}).Enabled() {
		t.Error("socks5 config reports disabled")
	}
}

func TestProxyConfig_Address(t *testing.T) {
	config := &ProxyConfig{Kind: ProxyHTTP, Host: "proxy.example.com", Port: 3128}
	if got := config.Address(); got != "proxy.example.com:3128" {
		t.Errorf("Address() = %q, want %q", got, "proxy.example.com:3128")
	}

	// IPv6 hosts get bracketed.
	config = &ProxyConfig{Kind: ProxyHTTP, Host: "::1", Port: 3128}
	if got := config.Address(); got != "[::1]:3128" {
		t.Errorf("Address() = %q, want %q", got, "[::1]:3128")
	}
}

func TestConnectError_Unwrap(t *testing.T) {
	underlying := errors.New("connection refused")
	err := error(&ConnectError{Endpoint: "example.com:443", Err: underlying})

	if !errors.Is(err, underlying) {
		t.Error("errors.Is does not reach the underlying error")
	}
	if !IsConnectError(err) {
		t.Error("IsConnectError() = false for a ConnectError")
	}
	if !IsConnectError(fmt.Errorf("dial failed: %w", err)) {
		t.Error("IsConnectError() = false for a wrapped ConnectError")
	}
	if IsConnectError(underlying) {
		t.Error("IsConnectError() = true for a plain error")
	}
}

func TestConnectError_Message(t *testing.T) {
	err := &ConnectError{Endpoint: "example.com:443", Err: errors.New("timeout")}
	want := "transport: connect example.com:443: timeout"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
