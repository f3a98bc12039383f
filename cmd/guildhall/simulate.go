// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/guildhall/guildhall/internal/config"
	"github.com/guildhall/guildhall/internal/logging"
)

// NewSimulateCmd creates the simulate subcommand.
func NewSimulateCmd() *cobra.Command {
	var (
		ticks uint64
		seed  int64
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a headless simulation for a fixed number of ticks",
		Long: `Run the simulation without wall-clock pacing or servers: step a
fixed number of logic ticks as fast as possible and print the final state
version and checksum. The same seed and tick count reproduce the same
event and decision schedule.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return simulate(cmd, cfg, ticks, seed)
		},
	}

	addConfigFlags(cmd)
	cmd.Flags().Uint64Var(&ticks, "ticks", 3600, "number of logic ticks to run")
	cmd.Flags().Int64Var(&seed, "seed", 42, "behavior randomness seed")
	return cmd
}

func simulate(cmd *cobra.Command, cfg config.Config, ticks uint64, seed int64) error {
	logging.SetDefault(logging.Options{
		Version: version,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
	})

	w, err := buildWorld(cfg, seed, slog.Default(), nil)
	if err != nil {
		return err
	}

	w.dispatcher.Start()
	defer w.dispatcher.Stop()

	tickLen := w.loop.TickLen()
	for w.loop.Tick() < ticks {
		w.loop.Step(tickLen)
	}

	final := w.manager.View()
	cmd.Printf("ticks:    %d\n", w.loop.Tick())
	cmd.Printf("version:  %d\n", final.Version)
	cmd.Printf("checksum: %s\n", final.Checksum)
	cmd.Printf("treasury: %d\n", final.Guild.Treasury)
	cmd.Printf("members:  %d\n", len(final.Guild.Members))
	return nil
}
