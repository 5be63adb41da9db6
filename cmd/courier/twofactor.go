// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/courier-foundation/courier/auth"
	"github.com/courier-foundation/courier/cmd/internal/cli"
	"github.com/courier-foundation/courier/lib/config"
)

// runTwoFactor manages the account's two-factor password. "set"
// creates or changes it, "clear" removes it. Passwords are always
// prompted, never passed as flags.
func runTwoFactor(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	if len(args) == 0 {
		return errors.New("twofactor requires a subcommand: set or clear")
	}
	subcommand, rest := args[0], args[1:]

	flags := pflag.NewFlagSet("twofactor", pflag.ContinueOnError)
	hint := flags.String("hint", "", "reminder stored alongside the new password")
	email := flags.String("email", "", "recovery email address")
	if err := flags.Parse(rest); err != nil {
		return err
	}
	if flags.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flags.Arg(0))
	}

	var opts auth.EditTwoFactorOptions

	switch subcommand {
	case "set":
		current, err := cli.PromptOptionalSecret("Current password (empty if none): ")
		if err != nil {
			return err
		}
		if current != nil {
			defer current.Close()
		}

		newPassword, err := cli.PromptSecret("New password: ")
		if err != nil {
			return err
		}
		defer newPassword.Close()

		repeat, err := cli.PromptSecret("Repeat new password: ")
		if err != nil {
			return err
		}
		match := newPassword.Equal(repeat.Bytes())
		repeat.Close()
		if !match {
			return errors.New("passwords do not match")
		}

		opts.Current = current
		opts.New = newPassword
		if flags.Changed("hint") {
			opts.Hint = hint
		}
		if flags.Changed("email") {
			opts.Email = email
		}

	case "clear":
		current, err := cli.PromptSecret("Current password: ")
		if err != nil {
			return err
		}
		defer current.Close()

		opts.Current = current

	default:
		return fmt.Errorf("unknown twofactor subcommand %q (expected set or clear)", subcommand)
	}

	cl, closeStore, err := cli.BuildClient(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := cl.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.Endpoint, err)
	}
	defer cl.Disconnect()

	err = cl.EditTwoFactor(ctx, opts)
	switch {
	case errors.Is(err, auth.ErrEmailUnconfirmed):
		fmt.Fprintf(os.Stderr, "Change accepted; confirm the mail sent to %s to activate it\n", *email)
		return nil
	case err != nil:
		return fmt.Errorf("updating two-factor settings: %w", err)
	}

	if subcommand == "clear" {
		fmt.Fprintln(os.Stderr, "Two-factor password removed")
	} else {
		fmt.Fprintln(os.Stderr, "Two-factor password updated")
	}
	return nil
}
