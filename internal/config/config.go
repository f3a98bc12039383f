// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

// Package config loads runtime configuration: built-in defaults, overlaid
// by an optional YAML file, overlaid by command-line flags.
package config

import (
	"runtime"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/guildhall/guildhall/internal/xdg"
)

// Config is the full runtime configuration.
type Config struct {
	Guild       GuildConfig       `koanf:"guild"`
	Sim         SimConfig         `koanf:"sim"`
	Decision    DecisionConfig    `koanf:"decision"`
	Event       EventConfig       `koanf:"event"`
	Metrics     MetricsConfig     `koanf:"metrics"`
	Log         LogConfig         `koanf:"log"`
	Persistence PersistenceConfig `koanf:"persistence"`
}

// GuildConfig seeds the initial world.
type GuildConfig struct {
	Name       string `koanf:"name"`
	MaxMembers int    `koanf:"max_members"`
}

// SimConfig tunes the tick scheduler.
type SimConfig struct {
	TickRate      int   `koanf:"tick_rate"`
	DrainBudgetMS int64 `koanf:"drain_budget_ms"`
	WarnStreak    int   `koanf:"warn_streak"`
}

// DrainBudget returns the per-tick event delivery budget.
func (s SimConfig) DrainBudget() time.Duration {
	return time.Duration(s.DrainBudgetMS) * time.Millisecond
}

// DecisionConfig tunes the decision dispatcher.
type DecisionConfig struct {
	Workers    int    `koanf:"workers"`
	CacheTTL   uint64 `koanf:"cache_ttl"`
	DeadlineMS int64  `koanf:"deadline_ms"`
}

// Deadline returns the per-decision evaluation deadline.
func (d DecisionConfig) Deadline() time.Duration {
	return time.Duration(d.DeadlineMS) * time.Millisecond
}

// EventConfig tunes the event bus.
type EventConfig struct {
	HistorySize  int `koanf:"history_size"`
	FailureLimit int `koanf:"failure_limit"`
}

// MetricsConfig tunes the metrics/health HTTP server.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// LogConfig tunes structured logging.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// PersistenceConfig tunes the snapshot store.
type PersistenceConfig struct {
	Dir  string `koanf:"dir"`
	Keep int    `koanf:"keep"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Guild: GuildConfig{
			Name:       "guildhall",
			MaxMembers: 20,
		},
		Sim: SimConfig{
			TickRate:      60,
			DrainBudgetMS: 2,
			WarnStreak:    5,
		},
		Decision: DecisionConfig{
			Workers:    runtime.NumCPU(),
			CacheTTL:   300,
			DeadlineMS: 5000,
		},
		Event: EventConfig{
			HistorySize:  256,
			FailureLimit: 3,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "localhost:9187",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Persistence: PersistenceConfig{
			Dir:  xdg.SnapshotDir(),
			Keep: 10,
		},
	}
}

// flagKeys maps command-line flag names to config keys. Flags not listed
// here (like --config itself) never reach the config tree.
var flagKeys = map[string]string{
	"guild-name":      "guild.name",
	"max-members":     "guild.max_members",
	"tick-rate":       "sim.tick_rate",
	"drain-budget-ms": "sim.drain_budget_ms",
	"workers":         "decision.workers",
	"cache-ttl":       "decision.cache_ttl",
	"deadline-ms":     "decision.deadline_ms",
	"history-size":    "event.history_size",
	"metrics":         "metrics.enabled",
	"metrics-addr":    "metrics.addr",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"snapshot-dir":    "persistence.dir",
	"snapshot-keep":   "persistence.keep",
}

// Load builds the effective configuration. path may be empty (defaults
// only); flags may be nil. Flags explicitly set on the command line win
// over the file, which wins over defaults.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.With("path", path).Wrapf(err, "loading config file")
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithValue(flags, ".", k,
			func(key string, value string) (string, any) {
				mapped, ok := flagKeys[key]
				if !ok {
					return "", nil
				}
				return mapped, value
			})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Wrapf(err, "loading flags")
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Wrapf(err, "unmarshaling config")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the runtime cannot honor.
func (c Config) Validate() error {
	errf := func(field, format string, args ...any) error {
		return oops.With("field", field).Errorf("invalid config: "+format, args...)
	}
	if c.Guild.Name == "" {
		return errf("guild.name", "must not be empty")
	}
	if c.Guild.MaxMembers < 1 {
		return errf("guild.max_members", "must be at least 1, got %d", c.Guild.MaxMembers)
	}
	if c.Sim.TickRate < 1 || c.Sim.TickRate > 1000 {
		return errf("sim.tick_rate", "must be within [1,1000], got %d", c.Sim.TickRate)
	}
	if c.Sim.DrainBudgetMS < 0 {
		return errf("sim.drain_budget_ms", "must not be negative, got %d", c.Sim.DrainBudgetMS)
	}
	if c.Sim.WarnStreak < 1 {
		return errf("sim.warn_streak", "must be at least 1, got %d", c.Sim.WarnStreak)
	}
	if c.Decision.Workers < 1 {
		return errf("decision.workers", "must be at least 1, got %d", c.Decision.Workers)
	}
	if c.Decision.CacheTTL == 0 {
		return errf("decision.cache_ttl", "must be positive")
	}
	if c.Decision.DeadlineMS < 1 {
		return errf("decision.deadline_ms", "must be at least 1, got %d", c.Decision.DeadlineMS)
	}
	if c.Event.HistorySize < 0 {
		return errf("event.history_size", "must not be negative, got %d", c.Event.HistorySize)
	}
	if c.Event.FailureLimit < 1 {
		return errf("event.failure_limit", "must be at least 1, got %d", c.Event.FailureLimit)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errf("metrics.addr", "must not be empty when metrics are enabled")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errf("log.level", "must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errf("log.format", "must be text or json, got %q", c.Log.Format)
	}
	if c.Persistence.Keep < 1 {
		return errf("persistence.keep", "must be at least 1, got %d", c.Persistence.Keep)
	}
	return nil
}
