// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/guildhall/guildhall/internal/config"
	"github.com/guildhall/guildhall/internal/logging"
	"github.com/guildhall/guildhall/internal/observability"
	"github.com/guildhall/guildhall/internal/persistence"
	"github.com/guildhall/guildhall/pkg/errutil"
)

// snapshotEvery is the periodic snapshot cadence in ticks: one sim minute
// at the default 60 Hz.
const snapshotEvery = 3600

// NewRunCmd creates the run subcommand.
func NewRunCmd() *cobra.Command {
	var seed int64

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the live simulation loop",
		Long: `Run the simulation against wall-clock time, with the metrics and
health endpoints enabled, until interrupted. State snapshots are written
periodically and on shutdown.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runSimulation(cmd.Context(), cfg, seed)
		},
	}

	addConfigFlags(cmd)
	cmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "behavior randomness seed")
	return cmd
}

func runSimulation(parent context.Context, cfg config.Config, seed int64) error {
	logging.SetDefault(logging.Options{
		Version: version,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
	})
	logger := slog.Default()

	store, err := persistence.Open(persistence.StoreConfig{
		Dir:    cfg.Persistence.Dir,
		Keep:   cfg.Persistence.Keep,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	// The snapshot hook closes over w, which is assigned before the loop
	// ever runs a tick.
	var w *world
	w, err = buildWorld(cfg, seed, logger, func(tick uint64) {
		if tick%snapshotEvery == 0 {
			saveSnapshot(w, store, logger)
		}
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var ready atomic.Bool
	var obs *observability.Server
	if cfg.Metrics.Enabled {
		obs = observability.NewServer(cfg.Metrics.Addr, ready.Load)
		if _, err := obs.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := obs.Stop(shutdownCtx); err != nil {
				errutil.LogError(logger, "observability shutdown failed", err)
			}
		}()
	}

	w.dispatcher.Start()
	defer w.dispatcher.Stop()

	ready.Store(true)
	logger.Info("simulation started",
		slog.String("guild", cfg.Guild.Name),
		slog.Int("tick_rate", cfg.Sim.TickRate),
		slog.Int("workers", w.dispatcher.Workers()),
	)

	err = w.loop.Run(ctx)
	ready.Store(false)

	saveSnapshot(w, store, logger)
	logger.Info("simulation stopped", slog.Uint64("tick", w.loop.Tick()))

	if err != nil && ctx.Err() != nil {
		// Interrupted: a clean shutdown, not a failure.
		return nil
	}
	return err
}

func saveSnapshot(w *world, store *persistence.Store, logger *slog.Logger) {
	snap := w.manager.Snapshot()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := store.Save(ctx, snap, w.loop.Tick()); err != nil {
		errutil.LogError(logger, "snapshot save failed", err)
		return
	}
	logger.Info("snapshot saved",
		slog.String("snapshot_id", snap.ID.String()),
		slog.Uint64("version", snap.Version),
	)
}
