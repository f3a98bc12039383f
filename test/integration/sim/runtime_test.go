// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

//go:build integration

package sim_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/guildhall/guildhall/internal/agent"
	"github.com/guildhall/guildhall/internal/behavior"
	"github.com/guildhall/guildhall/internal/decision"
	"github.com/guildhall/guildhall/internal/event"
	"github.com/guildhall/guildhall/internal/ids"
	"github.com/guildhall/guildhall/internal/sim"
	"github.com/guildhall/guildhall/internal/state"
)

// testWorld wires the full runtime the way cmd/guildhall does: bus,
// behavior engine, dispatcher pool, state manager, agent roster, and the
// fixed-tick loop driving them.
type testWorld struct {
	bus        *event.Bus
	dispatcher *decision.Dispatcher
	manager    *state.Manager
	roster     *agent.Roster
	loop       *sim.Loop
}

func buildTestWorld() *testWorld {
	bus := event.NewBus(event.Config{HistorySize: 128})

	engine := behavior.NewEngine()
	tree, err := agent.NewStewardTree()
	Expect(err).NotTo(HaveOccurred())
	Expect(engine.Register(tree)).To(Succeed())

	dispatcher := decision.NewDispatcher(decision.Config{
		Engine:   engine,
		Bus:      bus,
		Workers:  2,
		CacheTTL: 300,
	})

	initial := state.NewGameState("emberwatch", 20)
	initial.Guild.Members["founder"] = state.Member{
		ID:   "founder",
		Name: "Founder",
		Role: state.RoleLeader,
	}
	initial.Guild.Treasury = 500
	initial.Economy.Resources["iron"] = 100
	initial.Economy.Prices["iron"] = 12
	initial.Checksum = initial.ComputeChecksum()

	manager, err := state.NewManager(initial, state.ManagerConfig{})
	Expect(err).NotTo(HaveOccurred())

	roster := agent.NewRoster(agent.RosterConfig{
		Manager:    manager,
		Dispatcher: dispatcher,
		Deadline:   5 * time.Second,
		Seed:       42,
	})
	Expect(roster.Add(agent.Agent{
		ID:       "steward",
		Name:     "Guild Steward",
		TreeID:   agent.StewardTree,
		Interval: 30,
		Priority: event.PriorityHigh,
	})).To(Succeed())

	loop := sim.NewLoop(sim.Config{
		TickRate:   60,
		Bus:        bus,
		Dispatcher: dispatcher,
		Stepper: sim.StepperFunc(func(tick uint64, resolved []decision.Resolved) error {
			return roster.Advance(tick, resolved)
		}),
	})

	return &testWorld{
		bus:        bus,
		dispatcher: dispatcher,
		manager:    manager,
		roster:     roster,
		loop:       loop,
	}
}

// step advances the loop by exactly one simulation tick.
func (w *testWorld) step() {
	w.loop.Step(w.loop.TickLen())
}

var _ = Describe("Simulation runtime", func() {
	var w *testWorld

	BeforeEach(func() {
		w = buildTestWorld()
		w.dispatcher.Start()
		DeferCleanup(w.dispatcher.Stop)
	})

	It("drives steward decisions through the full tick cycle", func() {
		initialVersion := w.manager.Version()

		// Decisions resolve on a worker goroutine; keep stepping until
		// the roster has applied at least one committed transaction.
		Eventually(func() uint64 {
			w.step()
			return w.manager.Version()
		}).WithTimeout(5 * time.Second).WithPolling(time.Millisecond).
			Should(BeNumerically(">", initialVersion))

		view := w.manager.View()
		Expect(view.VerifyChecksum()).To(BeTrue())
		Expect(view.Guild.Treasury).NotTo(Equal(int64(0)))
	})

	It("publishes completion events observable through the bus", func() {
		var (
			mu        sync.Mutex
			completed []event.Event
		)
		_, err := w.bus.Subscribe("ai.decision.*", func(ev event.Event) error {
			mu.Lock()
			completed = append(completed, ev)
			mu.Unlock()
			return nil
		}, event.PriorityMedium)
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() int {
			w.step()
			mu.Lock()
			defer mu.Unlock()
			return len(completed)
		}).WithTimeout(5 * time.Second).WithPolling(time.Millisecond).
			Should(BeNumerically(">=", 1))

		mu.Lock()
		defer mu.Unlock()
		Expect(completed[0].Type).To(Equal(event.TypeDecisionCompleted))
		Expect(completed[0].Source).To(Equal("decision.dispatcher"))
		Expect(completed[0].CorrelationID).NotTo(BeEmpty())
	})

	It("drains queued events in priority order within a tick", func() {
		var (
			mu    sync.Mutex
			order []event.Priority
		)
		_, err := w.bus.Subscribe("economy.*", func(ev event.Event) error {
			mu.Lock()
			order = append(order, ev.Priority)
			mu.Unlock()
			return nil
		}, event.PriorityMedium)
		Expect(err).NotTo(HaveOccurred())

		now := time.Now()
		for _, p := range []event.Priority{
			event.PriorityLow,
			event.PriorityCritical,
			event.PriorityMedium,
			event.PriorityHigh,
		} {
			Expect(w.bus.Publish(event.Event{
				ID:       ids.New(),
				Source:   "integration",
				Type:     "economy.trade.completed",
				Time:     now,
				Priority: p,
			})).To(Succeed())
		}

		w.step()

		mu.Lock()
		defer mu.Unlock()
		Expect(order).To(Equal([]event.Priority{
			event.PriorityCritical,
			event.PriorityHigh,
			event.PriorityMedium,
			event.PriorityLow,
		}))
	})
})
