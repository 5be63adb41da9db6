// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for courier
// commands.
//
// Configuration is loaded from a single file specified by either the
// COURIER_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks and no automatic file
// search. This keeps configuration deterministic and auditable: what
// the file says is what runs.
//
// The file supports named account sections that override base values
// when selected, either by the file's own account field or by
// [LoadAccount]. This lets one file describe several accounts that
// differ only in endpoint or session name.
//
// Variable expansion is performed on path fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded. No other
// environment variables override config values. Secrets (the session
// passphrase, the proxy password) are never stored in the file; the
// file names the environment variables that hold them.
//
// Key exports:
//
//   - [Config] -- master struct with Session, Proxy, Timeouts, Backoff
//   - [Default] -- returns a Config with usable defaults
//   - [Load], [LoadFile], [LoadAccount] -- the entry points for loading
//
// This package depends on no other courier packages.
package config
