// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/courier-foundation/courier/cmd/internal/cli"
	"github.com/courier-foundation/courier/lib/config"
)

// runLogout invalidates the session on the server and deletes the
// local record. With --local it only deletes the local record, for
// sessions the server has already forgotten.
func runLogout(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	flags := pflag.NewFlagSet("logout", pflag.ContinueOnError)
	local := flags.Bool("local", false, "delete the local session without telling the server")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flags.Arg(0))
	}

	if *local {
		store, closeStore, err := cli.OpenStore(cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := store.Delete(ctx); err != nil {
			return fmt.Errorf("deleting session: %w", err)
		}
		fmt.Fprintln(os.Stderr, "Local session deleted")
		return nil
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

	if err := cl.LogOut(ctx); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}

	fmt.Fprintln(os.Stderr, "Logged out")
	return nil
}
