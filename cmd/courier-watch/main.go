// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

// Courier-watch renders the server's update stream as a live terminal
// feed: every pushed update scrolls by with its type, sequence
// position, and decoded payload, under a header that tracks the
// connection state through reconnects.
//
// The session must already be signed in; run "courier login" first.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/courier-foundation/courier/client"
	"github.com/courier-foundation/courier/cmd/internal/cli"
	"github.com/courier-foundation/courier/wire"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

const usageText = `Usage: courier-watch [flags]

Renders the live update feed for the configured account. Requires a
signed-in session (run "courier login" first).

Flags:
      --config path      config file (default: $COURIER_CONFIG)
      --account name     account section to apply from the config file
      --endpoint addr    server address (overrides the config file)
      --type name        only show updates of this type (repeatable)
      --log-output path  append client log records to this file as JSON
`

func run(args []string) error {
	flags := pflag.NewFlagSet("courier-watch", pflag.ContinueOnError)
	configPath := flags.String("config", "", "config file path")
	account := flags.String("account", "", "account section to apply")
	endpoint := flags.String("endpoint", "", "server address override")
	types := flags.StringSlice("type", nil, "update types to show")
	logOutput := flags.String("log-output", "", "append log records to this file")
	flags.Usage = func() { fmt.Fprint(os.Stderr, usageText) }

	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flags.Arg(0))
	}

	cfg, err := cli.LoadConfig(*configPath, *account, *endpoint)
	if err != nil {
		return err
	}

	// Client logs route through the TUI: stderr writes would corrupt
	// the alt-screen display. Records arriving before the program
	// starts are dropped unless --log-output captures them.
	tuiHandler := newTeaLogHandler(slog.LevelWarn)
	var handler slog.Handler = tuiHandler
	if *logOutput != "" {
		fileHandler, closeFile, err := openFileLogHandler(*logOutput)
		if err != nil {
			return fmt.Errorf("cannot open log file %s: %w", *logOutput, err)
		}
		defer closeFile()
		handler = fanoutHandler{tuiHandler, fileHandler}
	}
	logger := slog.New(handler)

	cl, closeStore, err := cli.BuildClient(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var filter client.Filter
	if len(*types) > 0 {
		filter = client.TypeFilter(*types...)
	}

	program := tea.NewProgram(newModel(cfg.Endpoint), tea.WithAltScreen())
	tuiHandler.SetProgram(program)

	cl.On(filter, func(_ context.Context, update *wire.Update) error {
		program.Send(updateMsg{update: *update})
		return nil
	})

	// Subscribe before connecting so the first transition to
	// connected reaches the header.
	states := cl.States()
	go func() {
		for state := range states {
			program.Send(connStateMsg{state: state})
		}
		program.Send(connDoneMsg{})
	}()

	if err := cl.Connect(context.Background()); err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.Endpoint, err)
	}

	_, runErr := program.Run()

	disconnectErr := cl.Disconnect()

	if runErr != nil {
		return runErr
	}
	// If the client gave up on its own (retries exhausted), surface
	// the cause now that the terminal is back to normal.
	if err := cl.RunUntilDisconnected(); err != nil {
		return fmt.Errorf("connection lost: %w", err)
	}
	return disconnectErr
}
