// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/courier-foundation/courier/cmd/internal/cli"
	"github.com/courier-foundation/courier/lib/config"
)

// runStatus connects, checks authorization, and prints a summary of
// the session.
func runStatus(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	flags := pflag.NewFlagSet("status", pflag.ContinueOnError)
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flags.Arg(0))
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

	authorized, err := cl.IsAuthorized(ctx)
	if err != nil {
		return fmt.Errorf("checking authorization: %w", err)
	}

	fmt.Printf("Endpoint:    %s (%s)\n", cfg.Endpoint, cfg.Transport)
	fmt.Printf("Session:     %s (%s store)\n", cfg.Session.Name, cfg.Session.Store)
	fmt.Printf("Connection:  %s\n", cl.State())
	if authorized {
		user := cl.CurrentUser()
		fmt.Printf("Authorized:  yes\n")
		fmt.Printf("Account:     %s\n", cli.DisplayName(user))
		if user != nil && user.Phone != "" {
			fmt.Printf("Phone:       %s\n", user.Phone)
		}
		if user != nil && user.Bot {
			fmt.Printf("Kind:        bot\n")
		}
	} else {
		fmt.Printf("Authorized:  no (run \"courier login\")\n")
	}
	return nil
}
