// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/courier-foundation/courier/auth"
	"github.com/courier-foundation/courier/cmd/internal/cli"
	"github.com/courier-foundation/courier/lib/config"
	"github.com/courier-foundation/courier/lib/secret"
)

// runLogin authenticates against the server and persists the session.
// Subsequent commands pick the session up from the store, so logging
// in is a one-time step per account.
func runLogin(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	flags := pflag.NewFlagSet("login", pflag.ContinueOnError)
	phone := flags.String("phone", "", "phone number in international format")
	botTokenFile := flags.String("bot-token-file", "", "path to a file containing a bot token, or - to prompt")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flags.Arg(0))
	}

	opts := auth.StartOptions{
		CodePrompt: func(ctx context.Context) (string, error) {
			return cli.PromptLine("Login code: ")
		},
		PasswordPrompt: func(ctx context.Context) (*secret.Buffer, error) {
			return cli.PromptSecret("Two-factor password: ")
		},
	}

	switch {
	case *botTokenFile != "":
		token, err := readBotToken(*botTokenFile)
		if err != nil {
			return err
		}
		defer token.Close()
		opts.BotToken = token

	case *phone != "":
		opts.Phone = *phone

	default:
		number, err := cli.PromptLine("Phone number: ")
		if err != nil {
			return err
		}
		opts.Phone = number
	}

	cl, closeStore, err := cli.BuildClient(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	user, err := cl.Start(ctx, opts)
	if err != nil {
		cl.Disconnect()
		return fmt.Errorf("login failed: %w", err)
	}
	if err := cl.Disconnect(); err != nil {
		return fmt.Errorf("closing connection: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Signed in as %s\n", cli.DisplayName(user))
	fmt.Fprintf(os.Stderr, "Session %q saved (%s store, %s)\n",
		cfg.Session.Name, cfg.Session.Store, cfg.Session.Path)
	return nil
}

// readBotToken reads the bot token from a file, or prompts when the
// path is "-" and a terminal is attached so the token stays out of the
// scrollback.
func readBotToken(path string) (*secret.Buffer, error) {
	if path == "-" && term.IsTerminal(int(os.Stdin.Fd())) {
		return cli.PromptSecret("Bot token: ")
	}
	token, err := secret.ReadFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("bot token: %w", err)
	}
	return token, nil
}
