// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package main

import (
	"log/slog"
	"time"

	"github.com/guildhall/guildhall/internal/agent"
	"github.com/guildhall/guildhall/internal/behavior"
	"github.com/guildhall/guildhall/internal/config"
	"github.com/guildhall/guildhall/internal/decision"
	"github.com/guildhall/guildhall/internal/event"
	"github.com/guildhall/guildhall/internal/sim"
	"github.com/guildhall/guildhall/internal/state"
	"github.com/samber/oops"
)

// world bundles a fully wired simulation: bus, dispatcher, state, agents,
// and the tick loop driving them.
type world struct {
	bus        *event.Bus
	dispatcher *decision.Dispatcher
	manager    *state.Manager
	roster     *agent.Roster
	loop       *sim.Loop
}

// tickHook runs the roster step, then an optional per-tick callback, all
// on the loop goroutine.
type tickHook struct {
	roster *agent.Roster
	after  func(tick uint64)
}

func (h tickHook) Advance(tick uint64, resolved []decision.Resolved) error {
	err := h.roster.Advance(tick, resolved)
	if h.after != nil {
		h.after(tick)
	}
	return err
}

// buildWorld assembles the simulation from configuration. afterTick may be
// nil. The caller owns the lifecycle: start the dispatcher before stepping
// the loop, stop it when done.
func buildWorld(cfg config.Config, seed int64, logger *slog.Logger, afterTick func(uint64)) (*world, error) {
	bus := event.NewBus(event.Config{
		FailureLimit: cfg.Event.FailureLimit,
		HistorySize:  cfg.Event.HistorySize,
		Logger:       logger,
	})

	engine := behavior.NewEngine()
	steward, err := agent.NewStewardTree()
	if err != nil {
		return nil, oops.Wrapf(err, "building steward tree")
	}
	if err := engine.Register(steward); err != nil {
		return nil, oops.Wrapf(err, "registering steward tree")
	}

	dispatcher := decision.NewDispatcher(decision.Config{
		Engine:   engine,
		Bus:      bus,
		Workers:  cfg.Decision.Workers,
		CacheTTL: cfg.Decision.CacheTTL,
		Logger:   logger,
	})

	initial := state.NewGameState(cfg.Guild.Name, cfg.Guild.MaxMembers)
	initial.Guild.Members["founder"] = state.Member{
		ID:   "founder",
		Name: "Founder",
		Role: state.RoleLeader,
	}
	initial.Guild.Treasury = 500
	initial.Economy.Resources["iron"] = 100
	initial.Economy.Prices["iron"] = 12
	initial.Checksum = initial.ComputeChecksum()

	manager, err := state.NewManager(initial, state.ManagerConfig{Logger: logger})
	if err != nil {
		return nil, oops.Wrapf(err, "initializing state")
	}

	roster := agent.NewRoster(agent.RosterConfig{
		Manager:    manager,
		Dispatcher: dispatcher,
		Deadline:   cfg.Decision.Deadline(),
		Seed:       seed,
		Logger:     logger,
	})
	if err := roster.Add(agent.Agent{
		ID:       "steward",
		Name:     "Guild Steward",
		TreeID:   agent.StewardTree,
		Interval: uint64(cfg.Sim.TickRate), // one decision per second
		Priority: event.PriorityHigh,
	}); err != nil {
		return nil, oops.Wrapf(err, "registering steward agent")
	}

	loop := sim.NewLoop(sim.Config{
		TickRate:    cfg.Sim.TickRate,
		DrainBudget: time.Duration(cfg.Sim.DrainBudgetMS) * time.Millisecond,
		WarnStreak:  cfg.Sim.WarnStreak,
		Bus:         bus,
		Dispatcher:  dispatcher,
		Stepper:     tickHook{roster: roster, after: afterTick},
		Logger:      logger,
	})

	return &world{
		bus:        bus,
		dispatcher: dispatcher,
		manager:    manager,
		roster:     roster,
		loop:       loop,
	}, nil
}
