// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

// Package agent runs the NPC layer: a roster of agents that observe the
// game state, request decisions from the dispatcher on a per-agent cadence,
// and turn resolved decisions into state transactions.
package agent

import (
	"hash/fnv"
	"log/slog"
	"sort"
	"time"

	"github.com/samber/oops"

	"github.com/guildhall/guildhall/internal/behavior"
	"github.com/guildhall/guildhall/internal/decision"
	"github.com/guildhall/guildhall/internal/event"
	"github.com/guildhall/guildhall/internal/state"
)

// DefaultInterval is how many ticks pass between an agent's decision
// requests: one decision per second at the 60 Hz default.
const DefaultInterval = 60

// Agent is one NPC in the roster.
type Agent struct {
	ID       string
	Name     string
	TreeID   string
	Interval uint64         // decision cadence in ticks
	Priority event.Priority // decision task priority
}

// RosterConfig wires a Roster to its collaborators.
type RosterConfig struct {
	Manager    *state.Manager
	Dispatcher *decision.Dispatcher
	Deadline   time.Duration // per-decision deadline; zero means dispatcher default
	Seed       int64
	Logger     *slog.Logger
}

// Roster owns the agents and implements the per-tick world step. It runs
// entirely on the simulation goroutine.
type Roster struct {
	manager    *state.Manager
	dispatcher *decision.Dispatcher
	deadline   time.Duration
	seed       int64
	logger     *slog.Logger

	agents   map[string]*Agent
	ordered  []string // agent ids, sorted for deterministic iteration
	inflight map[string]bool
}

// NewRoster builds an empty roster.
func NewRoster(cfg RosterConfig) *Roster {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Roster{
		manager:    cfg.Manager,
		dispatcher: cfg.Dispatcher,
		deadline:   cfg.Deadline,
		seed:       cfg.Seed,
		logger:     logger,
		agents:     make(map[string]*Agent),
		inflight:   make(map[string]bool),
	}
}

// Add registers an agent. Duplicate ids are rejected.
func (r *Roster) Add(a Agent) error {
	if a.ID == "" || a.TreeID == "" {
		return oops.Errorf("agent needs an id and a tree")
	}
	if _, dup := r.agents[a.ID]; dup {
		return oops.With("agent_id", a.ID).Errorf("agent already registered")
	}
	if a.Interval == 0 {
		a.Interval = DefaultInterval
	}
	r.agents[a.ID] = &a
	r.ordered = append(r.ordered, a.ID)
	sort.Strings(r.ordered)
	return nil
}

// Len returns the number of registered agents.
func (r *Roster) Len() int { return len(r.agents) }

// Advance is the per-tick world step: first apply this tick's resolved
// decisions, then issue requests for agents whose cadence is due.
func (r *Roster) Advance(tick uint64, resolved []decision.Resolved) error {
	for _, res := range resolved {
		delete(r.inflight, res.AgentID)
		r.applyResolved(res, tick)
	}

	var view *state.GameState
	for _, id := range r.ordered {
		a := r.agents[id]
		if r.inflight[id] || !a.due(tick) {
			continue
		}
		if view == nil {
			view = r.manager.View()
		}
		r.request(a, view, tick)
	}
	return nil
}

// due staggers agents across ticks by hashing their id, so a large roster
// does not issue every request on the same tick.
func (a *Agent) due(tick uint64) bool {
	h := fnv.New32a()
	h.Write([]byte(a.ID))
	return tick%a.Interval == uint64(h.Sum32())%a.Interval
}

func (r *Roster) request(a *Agent, view *state.GameState, tick uint64) {
	ctx := observe(a, view, tick, r.seed)
	p, err := r.dispatcher.Request(ctx, a.Priority, r.deadline)
	if err != nil {
		r.logger.Error("decision request failed",
			slog.String("agent_id", a.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if p.Done() {
		// Cache hit: the decision resolved inline.
		r.applyResolved(decision.Resolved{
			AgentID:  p.AgentID(),
			Decision: p.Decision(),
			Outcome:  p.Outcome(),
			Err:      p.Err(),
		}, tick)
		return
	}
	r.inflight[a.ID] = true
}

func (r *Roster) applyResolved(res decision.Resolved, tick uint64) {
	if res.Err != nil {
		r.logger.Warn("decision resolved with fallback",
			slog.String("agent_id", res.AgentID),
			slog.String("outcome", res.Outcome.String()),
			slog.String("action", res.Decision.Action),
			slog.String("error", res.Err.Error()),
		)
	}
	tx, err := actionTransaction(res.AgentID, res.Decision.Action, tick)
	if err != nil {
		r.logger.Error("unusable decision",
			slog.String("agent_id", res.AgentID),
			slog.String("error", err.Error()),
		)
		return
	}
	if tx == nil {
		return
	}
	if err := r.manager.ExecuteTransaction(tx); err != nil {
		// The world moved between observation and application; the
		// transaction rolled back and the agent will re-decide on its
		// next cadence.
		r.logger.Warn("decision transaction rejected",
			slog.String("agent_id", res.AgentID),
			slog.String("action", res.Decision.Action),
			slog.String("error", err.Error()),
		)
	}
}

// observe projects the game state into a behavior context: numeric facts
// plus capability facts the dispatcher uses for cache reconciliation.
func observe(a *Agent, view *state.GameState, tick uint64, seed int64) *behavior.Context {
	capacityLeft := float64(view.Guild.MaxMembers - len(view.Guild.Members))

	facts := map[string]float64{
		"treasury":      float64(view.Guild.Treasury),
		"readiness":     float64(view.Combat.Readiness),
		"morale":        float64(view.Social.Morale),
		"members":       float64(len(view.Guild.Members)),
		"capacity_left": capacityLeft,
		"battles":       float64(len(view.Combat.Battles)),
		"iron":          float64(view.Economy.Resources["iron"]),
	}
	facts[behavior.CapabilityPrefix+ActionTrain] = capability(view.Guild.Treasury >= TrainCost)
	facts[behavior.CapabilityPrefix+ActionRecruit] = capability(view.Guild.Treasury >= RecruitCost && capacityLeft > 0)
	facts[behavior.CapabilityPrefix+ActionTrade] = capability(view.Economy.Resources["iron"] >= TradeLot)
	facts[behavior.CapabilityPrefix+ActionDefend] = capability(len(view.Combat.Battles) > 0)

	return &behavior.Context{
		AgentID: a.ID,
		Tree:    a.TreeID,
		Tick:    tick,
		Facts:   facts,
		Tags:    map[string]string{"guild": view.Guild.Name},
		Seed:    seed ^ int64(tick/a.Interval),
	}
}

func capability(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}
