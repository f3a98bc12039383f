// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

// Package sim drives the fixed-timestep simulation loop. One goroutine owns
// the loop: it drains the event bus, polls the decision dispatcher, and
// advances the world exactly once per logic tick, regardless of how
// irregular wall-clock frames are.
package sim

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/guildhall/guildhall/internal/decision"
	"github.com/guildhall/guildhall/internal/event"
	"github.com/guildhall/guildhall/internal/ids"
	"github.com/guildhall/guildhall/internal/observability"
)

const (
	// DefaultTickRate is the logic update frequency.
	DefaultTickRate = 60

	// DefaultDrainBudget bounds event delivery inside one tick; undelivered
	// events carry over to the next tick.
	DefaultDrainBudget = 2 * time.Millisecond

	// MaxFrameTime clamps a single wall-clock frame so a stall (debugger,
	// suspend, GC pause) does not trigger a catch-up spiral.
	MaxFrameTime = 250 * time.Millisecond

	// Ticks running hotter than this fraction of the tick interval count
	// toward a performance warning.
	warnFraction = 0.8

	// DefaultWarnStreak is how many consecutive hot ticks trigger a
	// system.performance.warning event.
	DefaultWarnStreak = 5
)

// Stepper advances the world by one logic tick. Implementations run on the
// loop goroutine and receive the decisions resolved at this tick boundary.
type Stepper interface {
	Advance(tick uint64, resolved []decision.Resolved) error
}

// StepperFunc adapts a function to the Stepper interface.
type StepperFunc func(tick uint64, resolved []decision.Resolved) error

func (f StepperFunc) Advance(tick uint64, resolved []decision.Resolved) error {
	return f(tick, resolved)
}

// Config tunes a Loop. Zero values get defaults.
type Config struct {
	TickRate    int
	DrainBudget time.Duration
	WarnStreak  int
	Bus         *event.Bus
	Dispatcher  *decision.Dispatcher
	Stepper     Stepper
	Clock       func() time.Time
	Logger      *slog.Logger
}

// Health is a point-in-time view of loop performance.
type Health struct {
	Tick        uint64
	ObservedTPS float64
	AvgTickTime time.Duration
}

// Loop is the fixed-timestep scheduler. All fields belong to the goroutine
// driving Run or Step; Health is the only cross-goroutine read and goes
// through a channel serviced by Run.
type Loop struct {
	tickLen     time.Duration
	drainBudget time.Duration
	warnStreak  int

	bus        *event.Bus
	dispatcher *decision.Dispatcher
	stepper    Stepper
	clock      func() time.Time
	logger     *slog.Logger

	tick        uint64
	accumulator time.Duration

	// rolling health window
	window    [64]time.Duration
	windowLen int
	windowAt  int
	hotStreak int

	healthReq chan chan Health
}

// NewLoop builds a Loop around the given collaborators.
func NewLoop(cfg Config) *Loop {
	rate := cfg.TickRate
	if rate <= 0 {
		rate = DefaultTickRate
	}
	budget := cfg.DrainBudget
	if budget <= 0 {
		budget = DefaultDrainBudget
	}
	streak := cfg.WarnStreak
	if streak <= 0 {
		streak = DefaultWarnStreak
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		tickLen:     time.Second / time.Duration(rate),
		drainBudget: budget,
		warnStreak:  streak,
		bus:         cfg.Bus,
		dispatcher:  cfg.Dispatcher,
		stepper:     cfg.Stepper,
		clock:       clock,
		logger:      logger,
		healthReq:   make(chan chan Health),
	}
}

// TickLen returns the logic tick interval.
func (l *Loop) TickLen() time.Duration { return l.tickLen }

// Tick returns the number of completed logic ticks. Loop-goroutine only;
// concurrent readers should use Health via Run.
func (l *Loop) Tick() uint64 { return l.tick }

// Alpha is the interpolation fraction between the last completed tick and
// the next, for render-style consumers sampling mid-frame.
func (l *Loop) Alpha() float64 {
	return float64(l.accumulator) / float64(l.tickLen)
}

// Run drives the loop from wall-clock time until ctx is cancelled. It
// blocks; callers run it on a dedicated goroutine.
func (l *Loop) Run(ctx context.Context) error {
	frame := time.NewTicker(l.tickLen)
	defer frame.Stop()

	last := l.clock()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case reply := <-l.healthReq:
			reply <- l.healthSnapshot()
		case <-frame.C:
			now := l.clock()
			dt := now.Sub(last)
			last = now
			l.Step(dt)
		}
	}
}

// Health reports loop performance. Safe for concurrent use while Run is
// active.
func (l *Loop) Health(ctx context.Context) (Health, error) {
	reply := make(chan Health, 1)
	select {
	case l.healthReq <- reply:
		return <-reply, nil
	case <-ctx.Done():
		return Health{}, ctx.Err()
	}
}

// windowAvg is the rolling average tick time over the recorded window.
func (l *Loop) windowAvg() time.Duration {
	if l.windowLen == 0 {
		return 0
	}
	var total time.Duration
	for i := 0; i < l.windowLen; i++ {
		total += l.window[i]
	}
	return total / time.Duration(l.windowLen)
}

func (l *Loop) healthSnapshot() Health {
	h := Health{Tick: l.tick}
	if l.windowLen == 0 {
		return h
	}
	h.AvgTickTime = l.windowAvg()

	// Throughput holds at the target rate until ticks overrun their slot.
	h.ObservedTPS = float64(time.Second) / float64(l.tickLen)
	if h.AvgTickTime > l.tickLen {
		h.ObservedTPS = float64(time.Second) / float64(h.AvgTickTime)
	}
	return h
}

// Step advances the simulation by an elapsed wall-clock duration, running
// however many fixed ticks fit. Deterministic replays call Step directly
// with synthetic durations instead of using Run.
func (l *Loop) Step(dt time.Duration) int {
	if dt > MaxFrameTime {
		l.logger.Warn("frame time clamped",
			slog.Duration("frame", dt),
			slog.Duration("clamp", MaxFrameTime),
		)
		dt = MaxFrameTime
	}
	l.accumulator += dt

	ran := 0
	for l.accumulator >= l.tickLen {
		l.accumulator -= l.tickLen
		l.runTick()
		ran++
	}
	return ran
}

// runTick is one logic update: deliver events, settle decisions, advance
// the world.
func (l *Loop) runTick() {
	start := l.clock()
	l.tick++

	if l.bus != nil {
		l.bus.Drain(l.drainBudget)
	}

	var resolved []decision.Resolved
	if l.dispatcher != nil {
		resolved = l.dispatcher.Poll(l.tick)
	}

	if l.stepper != nil {
		if err := l.stepper.Advance(l.tick, resolved); err != nil {
			l.logger.Error("world step failed",
				slog.Uint64("tick", l.tick),
				slog.String("error", err.Error()),
			)
		}
	}

	elapsed := l.clock().Sub(start)
	observability.ObserveTick(elapsed)
	l.recordHealth(elapsed)
}

func (l *Loop) recordHealth(elapsed time.Duration) {
	l.window[l.windowAt] = elapsed
	l.windowAt = (l.windowAt + 1) % len(l.window)
	if l.windowLen < len(l.window) {
		l.windowLen++
	}

	// Overload is judged on the rolling average, not the single tick, so
	// one slow tick in an otherwise healthy window stays quiet.
	avg := l.windowAvg()
	hot := float64(avg) > warnFraction*float64(l.tickLen)
	if !hot {
		l.hotStreak = 0
		return
	}
	l.hotStreak++
	if l.hotStreak < l.warnStreak {
		return
	}
	l.hotStreak = 0
	l.warnOverload(avg)
}

// warnOverload publishes a critical performance warning and logs it. The
// streak resets afterwards so sustained overload warns once per streak
// rather than every tick.
func (l *Loop) warnOverload(avg time.Duration) {
	l.logger.Warn("tick budget exceeded",
		slog.Uint64("tick", l.tick),
		slog.Duration("avg_tick_time", avg),
		slog.Duration("budget", l.tickLen),
	)
	if l.bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"tick":        l.tick,
		"avg_tick_ms": float64(avg) / float64(time.Millisecond),
		"budget_ms":   float64(l.tickLen) / float64(time.Millisecond),
	})
	ev := event.Event{
		ID:       ids.New(),
		Source:   "sim.loop",
		Type:     event.TypePerformanceWarning,
		Time:     l.clock(),
		Priority: event.PriorityCritical,
		Payload:  payload,
	}
	if err := l.bus.Publish(ev); err != nil {
		l.logger.Error("performance warning publish failed",
			slog.String("error", err.Error()),
		)
	}
}
