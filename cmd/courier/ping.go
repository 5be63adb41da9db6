// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/pflag"

	"github.com/courier-foundation/courier/cmd/internal/cli"
	"github.com/courier-foundation/courier/lib/config"
	"github.com/courier-foundation/courier/wire"
)

// runPing measures request round-trip time. Each probe is a state
// request, so the timing covers the full request path rather than a
// transport-level keepalive.
func runPing(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	flags := pflag.NewFlagSet("ping", pflag.ContinueOnError)
	count := flags.Int("count", 4, "number of probes")
	interval := flags.Duration("interval", time.Second, "delay between probes")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flags.Arg(0))
	}
	if *count < 1 {
		return fmt.Errorf("count must be positive, got %d", *count)
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

	var (
		total time.Duration
		min   time.Duration
		max   time.Duration
		sent  int
		state wire.UpdateState
	)

	for i := 0; i < *count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(*interval):
			}
		}

		start := time.Now()
		if err := cl.Invoke(ctx, "updates.getState", nil, &state); err != nil {
			return fmt.Errorf("probe %d: %w", i+1, err)
		}
		rtt := time.Since(start)

		sent++
		total += rtt
		if min == 0 || rtt < min {
			min = rtt
		}
		if rtt > max {
			max = rtt
		}
		fmt.Printf("probe %d: %s -> %v\n", i+1, cfg.Endpoint, rtt.Round(time.Microsecond))
	}

	fmt.Printf("\n%d probes: min %v, avg %v, max %v\n",
		sent,
		min.Round(time.Microsecond),
		(total / time.Duration(sent)).Round(time.Microsecond),
		max.Round(time.Microsecond))
	fmt.Printf("server state: pts=%d qts=%d seq=%d\n", state.Pts, state.Qts, state.Seq)
	return nil
}
