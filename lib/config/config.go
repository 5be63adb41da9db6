// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for courier commands.
type Config struct {
	// Endpoint is the server address: host:port for the tcp transport,
	// a ws:// or wss:// URL for the websocket transport.
	Endpoint string `yaml:"endpoint"`

	// Transport selects how the connection is carried: "tcp" or
	// "websocket".
	Transport string `yaml:"transport"`

	// Account selects which entry of Accounts overrides the base
	// values. Empty means the base configuration is used as-is.
	Account string `yaml:"account"`

	// Session configures where the session record is persisted.
	Session SessionConfig `yaml:"session"`

	// Proxy routes the connection through an intermediary. An empty
	// Kind means a direct connection.
	Proxy ProxyConfig `yaml:"proxy"`

	// Timeouts tunes request and keepalive timing.
	Timeouts TimeoutsConfig `yaml:"timeouts"`

	// Backoff tunes reconnect behavior.
	Backoff BackoffConfig `yaml:"backoff"`

	// Log configures command logging.
	Log LogConfig `yaml:"log"`

	// Accounts contains named override sections. Selecting an account
	// (via the Account field or a --account flag) layers its non-empty
	// fields over the base configuration.
	Accounts map[string]*AccountOverrides `yaml:"accounts,omitempty"`
}

// SessionConfig describes the persistence backend for the session record.
type SessionConfig struct {
	// Store selects the backend: "file", "encrypted", or "sqlite".
	Store string `yaml:"store"`

	// Path is the session file (file, encrypted) or database (sqlite)
	// location. Supports ${VAR} and ${VAR:-default} expansion.
	Path string `yaml:"path"`

	// Name distinguishes sessions sharing one store.
	Name string `yaml:"name"`

	// PassphraseEnv names the environment variable holding the
	// passphrase for the encrypted store. The passphrase itself never
	// appears in the configuration file.
	PassphraseEnv string `yaml:"passphrase_env"`
}

// ProxyConfig describes an optional proxy for the server connection.
type ProxyConfig struct {
	// Kind is "socks5" or "http". Empty disables the proxy.
	Kind string `yaml:"kind"`

	// Address is the proxy's host:port.
	Address string `yaml:"address"`

	// Username authenticates to the proxy, if it requires credentials.
	Username string `yaml:"username"`

	// PasswordEnv names the environment variable holding the proxy
	// password. The password itself never appears in the file.
	PasswordEnv string `yaml:"password_env"`
}

// TimeoutsConfig holds duration strings in time.ParseDuration format.
type TimeoutsConfig struct {
	// Request bounds how long a single request may stay unanswered.
	Request string `yaml:"request"`

	// PingInterval is the keepalive probe interval.
	PingInterval string `yaml:"ping_interval"`
}

// BackoffConfig tunes reconnection retries.
type BackoffConfig struct {
	// Initial is the first retry delay. Doubles per attempt up to Max.
	Initial string `yaml:"initial"`

	// Max caps the retry delay.
	Max string `yaml:"max"`

	// MaxRetries is the number of attempts per outage before the
	// client gives up. Negative means retry forever.
	MaxRetries int `yaml:"max_retries"`
}

// LogConfig configures command logging.
type LogConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// AccountOverrides contains the fields a named account may override.
// Only non-empty fields are applied.
type AccountOverrides struct {
	Endpoint  string          `yaml:"endpoint,omitempty"`
	Transport string          `yaml:"transport,omitempty"`
	Session   *SessionConfig  `yaml:"session,omitempty"`
	Proxy     *ProxyConfig    `yaml:"proxy,omitempty"`
	Timeouts  *TimeoutsConfig `yaml:"timeouts,omitempty"`
}

// Default returns a Config with usable defaults for everything except
// the endpoint, which has no sensible default and must come from the
// file or a flag.
func Default() *Config {
	return &Config{
		Transport: "tcp",
		Session: SessionConfig{
			Store:         "file",
			Path:          defaultSessionPath(),
			Name:          "default",
			PassphraseEnv: "COURIER_PASSPHRASE",
		},
		Timeouts: TimeoutsConfig{
			Request:      "30s",
			PingInterval: "1m",
		},
		Backoff: BackoffConfig{
			Initial:    "1s",
			Max:        "30s",
			MaxRetries: 8,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// defaultSessionPath is ~/.config/courier/session.json, falling back
// to a relative path when the home directory cannot be resolved.
func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "courier-session.json"
	}
	return filepath.Join(home, ".config", "courier", "session.json")
}

// Load loads configuration from the file named by the COURIER_CONFIG
// environment variable. There is no fallback search: if the variable
// is unset, Load fails.
func Load() (*Config, error) {
	path := os.Getenv("COURIER_CONFIG")
	if path == "" {
		return nil, errors.New("COURIER_CONFIG environment variable not set")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from the given path, applying the
// account selected by the file's own account field.
func LoadFile(path string) (*Config, error) {
	return LoadAccount(path, "")
}

// LoadAccount loads configuration from the given path and applies the
// named account's overrides. An empty account falls back to the file's
// account field; if that is also empty, the base configuration is used.
func LoadAccount(path, account string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("config: loading %s: %w", path, err)
	}

	if account != "" {
		cfg.Account = account
	}
	if err := cfg.applyAccountOverrides(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// applyAccountOverrides layers the selected account's non-empty fields
// over the base configuration.
func (c *Config) applyAccountOverrides() error {
	if c.Account == "" {
		return nil
	}

	overrides, ok := c.Accounts[c.Account]
	if !ok {
		return fmt.Errorf("unknown account %q", c.Account)
	}
	if overrides == nil {
		return nil
	}

	if overrides.Endpoint != "" {
		c.Endpoint = overrides.Endpoint
	}
	if overrides.Transport != "" {
		c.Transport = overrides.Transport
	}

	if overrides.Session != nil {
		if overrides.Session.Store != "" {
			c.Session.Store = overrides.Session.Store
		}
		if overrides.Session.Path != "" {
			c.Session.Path = overrides.Session.Path
		}
		if overrides.Session.Name != "" {
			c.Session.Name = overrides.Session.Name
		}
		if overrides.Session.PassphraseEnv != "" {
			c.Session.PassphraseEnv = overrides.Session.PassphraseEnv
		}
	}

	if overrides.Proxy != nil {
		if overrides.Proxy.Kind != "" {
			c.Proxy.Kind = overrides.Proxy.Kind
		}
		if overrides.Proxy.Address != "" {
			c.Proxy.Address = overrides.Proxy.Address
		}
		if overrides.Proxy.Username != "" {
			c.Proxy.Username = overrides.Proxy.Username
		}
		if overrides.Proxy.PasswordEnv != "" {
			c.Proxy.PasswordEnv = overrides.Proxy.PasswordEnv
		}
	}

	if overrides.Timeouts != nil {
		if overrides.Timeouts.Request != "" {
			c.Timeouts.Request = overrides.Timeouts.Request
		}
		if overrides.Timeouts.PingInterval != "" {
			c.Timeouts.PingInterval = overrides.Timeouts.PingInterval
		}
	}

	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields. Only path fields are expanded: no environment variable
// silently overrides any other configuration value.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Session.Path = expandVars(c.Session.Path, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name := parts[1]
		def := parts[2]

		if val, ok := vars[name]; ok && val != "" {
			return val
		}
		if val := os.Getenv(name); val != "" {
			return val
		}
		return def
	})
}

// Validate checks the configuration for errors. All problems are
// reported at once rather than one per run.
func (c *Config) Validate() error {
	var errs []error

	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	}

	switch c.Transport {
	case "tcp":
		if c.Endpoint != "" {
			if _, _, err := net.SplitHostPort(c.Endpoint); err != nil {
				errs = append(errs, fmt.Errorf("endpoint %q is not host:port: %w", c.Endpoint, err))
			}
		}
	case "websocket":
		if c.Endpoint != "" && !strings.HasPrefix(c.Endpoint, "ws://") && !strings.HasPrefix(c.Endpoint, "wss://") {
			errs = append(errs, fmt.Errorf("endpoint %q must be a ws:// or wss:// URL for the websocket transport", c.Endpoint))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid transport %q (must be tcp or websocket)", c.Transport))
	}

	if !contains([]string{"file", "encrypted", "sqlite"}, c.Session.Store) {
		errs = append(errs, fmt.Errorf("invalid session store %q (must be file, encrypted, or sqlite)", c.Session.Store))
	}
	if c.Session.Path == "" {
		errs = append(errs, errors.New("session path is required"))
	}
	if c.Session.Name == "" {
		errs = append(errs, errors.New("session name is required"))
	}
	if c.Session.Store == "encrypted" && c.Session.PassphraseEnv == "" {
		errs = append(errs, errors.New("session passphrase_env is required for the encrypted store"))
	}

	switch c.Proxy.Kind {
	case "", "socks5", "http":
	default:
		errs = append(errs, fmt.Errorf("invalid proxy kind %q (must be socks5 or http)", c.Proxy.Kind))
	}
	if c.Proxy.Kind != "" {
		if c.Proxy.Address == "" {
			errs = append(errs, errors.New("proxy address is required when a proxy kind is set"))
		} else if _, _, err := net.SplitHostPort(c.Proxy.Address); err != nil {
			errs = append(errs, fmt.Errorf("proxy address %q is not host:port: %w", c.Proxy.Address, err))
		}
	}

	for _, d := range []struct {
		field string
		value string
	}{
		{"timeouts.request", c.Timeouts.Request},
		{"timeouts.ping_interval", c.Timeouts.PingInterval},
		{"backoff.initial", c.Backoff.Initial},
		{"backoff.max", c.Backoff.Max},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", d.field, d.value, err))
		}
	}

	if !contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		errs = append(errs, fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", c.Log.Level))
	}
	if !contains([]string{"text", "json"}, c.Log.Format) {
		errs = append(errs, fmt.Errorf("invalid log format %q (must be text or json)", c.Log.Format))
	}

	return errors.Join(errs...)
}

// RequestTimeout returns the parsed request timeout.
func (c *Config) RequestTimeout() (time.Duration, error) {
	return parseDuration("timeouts.request", c.Timeouts.Request)
}

// PingInterval returns the parsed keepalive interval.
func (c *Config) PingInterval() (time.Duration, error) {
	return parseDuration("timeouts.ping_interval", c.Timeouts.PingInterval)
}

// BackoffInitial returns the parsed initial retry delay.
func (c *Config) BackoffInitial() (time.Duration, error) {
	return parseDuration("backoff.initial", c.Backoff.Initial)
}

// BackoffMax returns the parsed retry delay cap.
func (c *Config) BackoffMax() (time.Duration, error) {
	return parseDuration("backoff.max", c.Backoff.Max)
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", field, value, err)
	}
	return d, nil
}

// SlogLevel maps the configured log level to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// EnsureSessionDir creates the directory holding the session file.
// Session records contain key material, so the directory is private.
func (c *Config) EnsureSessionDir() error {
	dir := filepath.Dir(c.Session.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("config: creating session directory %s: %w", dir, err)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
