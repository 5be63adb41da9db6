// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli holds the pieces shared by the courier command-line
// binaries: configuration resolution, client assembly, and terminal
// prompting.
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/courier-foundation/courier/client"
	"github.com/courier-foundation/courier/lib/config"
	"github.com/courier-foundation/courier/lib/secret"
	"github.com/courier-foundation/courier/session"
	"github.com/courier-foundation/courier/transport"
)

// LoadConfig resolves the effective configuration from the flag, the
// environment, or defaults, in that order. The endpoint flag wins over
// whatever the file says.
func LoadConfig(path, account, endpoint string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case path != "":
		cfg, err = config.LoadAccount(path, account)
	case os.Getenv("COURIER_CONFIG") != "":
		cfg, err = config.LoadAccount(os.Getenv("COURIER_CONFIG"), account)
	default:
		if account != "" {
			return nil, errors.New("--account requires a config file")
		}
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}

	if endpoint != "" {
		cfg.Endpoint = endpoint
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// NewLogger builds a stderr logger from the config's log section.
// verbose forces debug level regardless of the configured one.
func NewLogger(cfg *config.Config, verbose bool) *slog.Logger {
	level := cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// OpenStore opens the configured session store. The returned closer
// releases store resources; for the encrypted store it also zeroes
// the passphrase.
func OpenStore(cfg *config.Config, logger *slog.Logger) (session.Store, func() error, error) {
	if err := cfg.EnsureSessionDir(); err != nil {
		return nil, nil, err
	}

	switch cfg.Session.Store {
	case "file":
		return session.NewFileStore(cfg.Session.Path), func() error { return nil }, nil

	case "encrypted":
		passphrase, err := sessionPassphrase(cfg)
		if err != nil {
			return nil, nil, err
		}
		return session.NewEncryptedFileStore(cfg.Session.Path, passphrase), passphrase.Close, nil

	case "sqlite":
		store, err := session.OpenSQLiteStore(cfg.Session.Path, cfg.Session.Name, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown session store %q", cfg.Session.Store)
	}
}

// sessionPassphrase resolves the encrypted store's passphrase from the
// configured environment variable, falling back to a terminal prompt.
func sessionPassphrase(cfg *config.Config) (*secret.Buffer, error) {
	if value := os.Getenv(cfg.Session.PassphraseEnv); value != "" {
		return secret.NewFromBytes([]byte(value))
	}
	return PromptSecret(fmt.Sprintf("Passphrase for %s: ", cfg.Session.Path))
}

// BuildClient assembles a client from the configuration. The caller
// owns the returned closer and must run it after the client is done.
func BuildClient(cfg *config.Config, logger *slog.Logger) (*client.Client, func() error, error) {
	store, closeStore, err := OpenStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	clientConfig, err := clientConfigFrom(cfg)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	clientConfig.Store = store
	clientConfig.Logger = logger

	cl, err := client.NewClient(clientConfig)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return cl, closeStore, nil
}

// clientConfigFrom translates the file configuration into the client
// package's form, leaving Store and Logger for the caller.
func clientConfigFrom(cfg *config.Config) (client.Config, error) {
	proxy, err := proxyFromConfig(cfg)
	if err != nil {
		return client.Config{}, err
	}

	var dialer transport.Dialer
	switch cfg.Transport {
	case "websocket":
		dialer = &transport.WSDialer{Proxy: proxy}
	default:
		dialer = &transport.TCPDialer{Proxy: proxy}
	}

	requestTimeout, err := cfg.RequestTimeout()
	if err != nil {
		return client.Config{}, err
	}
	pingInterval, err := cfg.PingInterval()
	if err != nil {
		return client.Config{}, err
	}
	backoffInitial, err := cfg.BackoffInitial()
	if err != nil {
		return client.Config{}, err
	}
	backoffMax, err := cfg.BackoffMax()
	if err != nil {
		return client.Config{}, err
	}

	return client.Config{
		Endpoint:       cfg.Endpoint,
		SessionID:      cfg.Session.Name,
		Dialer:         dialer,
		RequestTimeout: requestTimeout,
		PingInterval:   pingInterval,
		Backoff: client.BackoffConfig{
			Initial:    backoffInitial,
			Max:        backoffMax,
			MaxRetries: cfg.Backoff.MaxRetries,
		},
	}, nil
}

// proxyFromConfig translates the config file's proxy section into the
// transport's form, pulling the password from the environment.
func proxyFromConfig(cfg *config.Config) (*transport.ProxyConfig, error) {
	if cfg.Proxy.Kind == "" {
		return nil, nil
	}

	host, portText, err := net.SplitHostPort(cfg.Proxy.Address)
	if err != nil {
		return nil, fmt.Errorf("proxy address %q: %w", cfg.Proxy.Address, err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		return nil, fmt.Errorf("proxy port %q: %w", portText, err)
	}

	proxy := &transport.ProxyConfig{
		Kind:     cfg.Proxy.Kind,
		Host:     host,
		Port:     port,
		Username: cfg.Proxy.Username,
	}
	if cfg.Proxy.PasswordEnv != "" {
		proxy.Password = os.Getenv(cfg.Proxy.PasswordEnv)
	}
	return proxy, nil
}

// PromptSecret reads a secret from the terminal with echo disabled.
// An empty answer is an error.
func PromptSecret(prompt string) (*secret.Buffer, error) {
	raw, err := promptSecretBytes(prompt)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.New("empty input")
	}

	buffer, err := secret.NewFromBytes(raw)
	if err != nil {
		secret.Zero(raw)
		return nil, err
	}
	return buffer, nil
}

// PromptOptionalSecret is PromptSecret, but an empty answer returns
// nil rather than an error.
func PromptOptionalSecret(prompt string) (*secret.Buffer, error) {
	raw, err := promptSecretBytes(prompt)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	buffer, err := secret.NewFromBytes(raw)
	if err != nil {
		secret.Zero(raw)
		return nil, err
	}
	return buffer, nil
}

func promptSecretBytes(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("no terminal available for interactive prompt")
	}

	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading secret: %w", err)
	}
	return raw, nil
}

// PromptLine reads one line of visible input from the terminal.
func PromptLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// DisplayName renders a user for terminal output.
func DisplayName(user *session.User) string {
	if user == nil {
		return "(unknown)"
	}
	if user.Username != "" {
		return "@" + user.Username
	}
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name != "" {
		return name
	}
	return fmt.Sprintf("user %d", user.ID)
}
