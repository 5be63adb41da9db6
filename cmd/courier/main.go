// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

// Courier is the command-line client for a courier server. It manages
// the local session (login, logout, two-factor settings) and provides
// basic connectivity checks.
//
// Configuration comes from a YAML file named by --config or the
// COURIER_CONFIG environment variable. Without one, built-in defaults
// apply and --endpoint must be given. Secrets are read from the
// environment or prompted on the terminal; they never appear in flags
// or files.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/courier-foundation/courier/cmd/internal/cli"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

const usageText = `Usage: courier [global flags] <command> [args]

Commands:
  login       authenticate and persist the session
  status      show session and authorization state
  logout      invalidate the session and delete it locally
  twofactor   set or clear the account password (subcommands: set, clear)
  ping        measure round-trip time to the server

Global flags:
      --config path     config file (default: $COURIER_CONFIG)
      --account name    account section to apply from the config file
      --endpoint addr   server address (overrides the config file)
      --verbose         enable debug logging
`

func run(args []string) error {
	flags := pflag.NewFlagSet("courier", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	configPath := flags.String("config", "", "config file path")
	account := flags.String("account", "", "account section to apply")
	endpoint := flags.String("endpoint", "", "server address override")
	verbose := flags.Bool("verbose", false, "enable debug logging")
	flags.Usage = func() { fmt.Fprint(os.Stderr, usageText) }

	if err := flags.Parse(args); err != nil {
		return err
	}

	rest := flags.Args()
	if len(rest) == 0 {
		flags.Usage()
		return errors.New("a command is required")
	}

	cfg, err := cli.LoadConfig(*configPath, *account, *endpoint)
	if err != nil {
		return err
	}

	logger := cli.NewLogger(cfg, *verbose)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	command, commandArgs := rest[0], rest[1:]
	switch command {
	case "login":
		return runLogin(ctx, cfg, logger, commandArgs)
	case "status":
		return runStatus(ctx, cfg, logger, commandArgs)
	case "logout":
		return runLogout(ctx, cfg, logger, commandArgs)
	case "twofactor":
		return runTwoFactor(ctx, cfg, logger, commandArgs)
	case "ping":
		return runPing(ctx, cfg, logger, commandArgs)
	default:
		flags.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}
