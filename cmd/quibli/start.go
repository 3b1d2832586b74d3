// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quibli Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quibli-dev/quibli/internal/config"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the quibli server",
		Long:  "Load configuration, initialize storage and providers, and start the HTTP server.",
		RunE:  runStart,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	explicit, _ := cmd.Flags().GetString("config")
	cfgPath := resolveConfigPath(explicit)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	config.WarnInsecurePermissions(cfgPath)

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Networking.Listen = listen
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	app, err := WireApp(cfg)
	if err != nil {
		return fmt.Errorf("wiring subsystems: %w", err)
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			slog.Error("closing subsystems", "error", cerr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting quibli", "listen", cfg.Networking.Listen, "db", cfg.Storage.Path)
	err = app.Server.Start(ctx)

	// Let in-flight embedding jobs land before the store closes.
	app.Backfill.Wait()

	return err
}
