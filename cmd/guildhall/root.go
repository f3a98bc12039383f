package main

import (
	"github.com/spf13/cobra"

	"github.com/guildhall/guildhall/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Guildhall CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guildhall",
		Short: "Guildhall - a guild management simulation runtime",
		Long: `Guildhall runs a fixed-tick guild management simulation: a typed
event bus, behavior-tree agents evaluated on a worker pool, and a
transactional game state with snapshot persistence.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewSimulateCmd())
	cmd.AddCommand(NewSnapshotsCmd())

	return cmd
}

// addConfigFlags registers the flags the config loader overlays on top of
// the file. Defaults mirror config.Default so unset flags are inert.
func addConfigFlags(cmd *cobra.Command) {
	def := config.Default()
	f := cmd.Flags()

	f.String("guild-name", def.Guild.Name, "guild name for a fresh world")
	f.Int("max-members", def.Guild.MaxMembers, "guild roster capacity")
	f.Int("tick-rate", def.Sim.TickRate, "logic updates per second")
	f.Int64("drain-budget-ms", def.Sim.DrainBudgetMS, "per-tick event delivery budget in ms")
	f.Int("workers", def.Decision.Workers, "decision worker pool size")
	f.Uint64("cache-ttl", def.Decision.CacheTTL, "decision cache TTL in ticks")
	f.Int64("deadline-ms", def.Decision.DeadlineMS, "per-decision deadline in ms")
	f.Int("history-size", def.Event.HistorySize, "delivered-event history ring size")
	f.Bool("metrics", def.Metrics.Enabled, "serve metrics and health probes")
	f.String("metrics-addr", def.Metrics.Addr, "metrics/health HTTP address")
	f.String("log-level", def.Log.Level, "log level (debug, info, warn, error)")
	f.String("log-format", def.Log.Format, "log format (json or text)")
	f.String("snapshot-dir", def.Persistence.Dir, "snapshot storage directory")
	f.Int("snapshot-keep", def.Persistence.Keep, "snapshots retained after pruning")
}
