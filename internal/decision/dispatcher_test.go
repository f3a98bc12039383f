// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package decision

import (
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/guildhall/guildhall/internal/behavior"
	"github.com/guildhall/guildhall/internal/event"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testEngine registers a tree whose single action candidate scores 1.
func testEngine(t *testing.T, treeID string) *behavior.Engine {
	t.Helper()
	engine := behavior.NewEngine()
	b := behavior.NewBuilder(treeID)
	root := b.Action("decide", behavior.Candidate{
		ID:    "advance",
		Score: func(*behavior.Context) float64 { return 1 },
	})
	tree, err := b.Build(root)
	require.NoError(t, err)
	require.NoError(t, engine.Register(tree))
	return engine
}

func newTestDispatcher(t *testing.T, engine *behavior.Engine, workers int) *Dispatcher {
	t.Helper()
	d := NewDispatcher(Config{Engine: engine, Workers: workers})
	d.Start()
	t.Cleanup(d.Stop)
	return d
}

func testContext(agentID, tree string) *behavior.Context {
	return &behavior.Context{
		AgentID: agentID,
		Tree:    tree,
		Facts:   map[string]float64{"gold": 5},
	}
}

// pollUntil polls the dispatcher until the handle resolves or the timeout
// elapses, mimicking the per-tick poll of the simulation loop.
func pollUntil(t *testing.T, d *Dispatcher, p *Pending, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	tick := uint64(0)
	for !p.Done() {
		if time.Now().After(deadline) {
			t.Fatalf("handle did not resolve within %v", timeout)
		}
		tick++
		d.Poll(tick)
		time.Sleep(time.Millisecond)
	}
}

func TestDispatcher_RequestCompletes(t *testing.T) {
	engine := testEngine(t, "scout")
	d := newTestDispatcher(t, engine, 2)

	p, err := d.Request(testContext("a1", "scout"), event.PriorityMedium, time.Second)
	require.NoError(t, err)
	assert.False(t, p.Done(), "request must not resolve synchronously")

	pollUntil(t, d, p, 2*time.Second)
	assert.Equal(t, OutcomeCompleted, p.Outcome())
	assert.Equal(t, "advance", p.Decision().Action)
	assert.NoError(t, p.Err())
}

func TestDispatcher_CacheHitSkipsDispatch(t *testing.T) {
	engine := testEngine(t, "scout")
	d := newTestDispatcher(t, engine, 1)

	first, err := d.Request(testContext("a1", "scout"), event.PriorityMedium, time.Second)
	require.NoError(t, err)
	pollUntil(t, d, first, 2*time.Second)
	require.Equal(t, OutcomeCompleted, first.Outcome())

	// Identical situation within the TTL window: resolved inline from the
	// cache, same decision, no second worker dispatch.
	second, err := d.Request(testContext("a1", "scout"), event.PriorityMedium, time.Second)
	require.NoError(t, err)
	assert.True(t, second.Done())
	assert.Equal(t, OutcomeCached, second.Outcome())
	assert.Equal(t, first.Decision(), second.Decision())
}

func TestDispatcher_CacheReconciliationRejectsUnavailableAction(t *testing.T) {
	engine := testEngine(t, "scout")
	d := newTestDispatcher(t, engine, 1)

	p, err := d.Request(testContext("a1", "scout"), event.PriorityMedium, time.Second)
	require.NoError(t, err)
	pollUntil(t, d, p, 2*time.Second)

	ctx := testContext("a1", "scout")
	ctx.Facts["can_advance"] = 0 // cached action no longer available
	q, err := d.Request(ctx, event.PriorityMedium, time.Second)
	require.NoError(t, err)
	assert.False(t, q.Done(), "reconciliation failure must fall through to dispatch")
	pollUntil(t, d, q, 2*time.Second)
}

func TestDispatcher_TimeoutFallback(t *testing.T) {
	release := make(chan struct{})
	engine := behavior.NewEngine()
	b := behavior.NewBuilder("slow")
	root := b.ActionFunc("stall", func(*behavior.Context) behavior.Status {
		<-release
		return behavior.StatusSuccess
	})
	tree, err := b.Build(root)
	require.NoError(t, err)
	require.NoError(t, engine.Register(tree))

	d := newTestDispatcher(t, engine, 1)
	defer close(release)

	start := time.Now()
	p, err := d.Request(testContext("a1", "slow"), event.PriorityHigh, 10*time.Millisecond)
	require.NoError(t, err)

	pollUntil(t, d, p, time.Second)
	elapsed := time.Since(start)

	assert.Equal(t, OutcomeTimeout, p.Outcome())
	assert.Equal(t, FallbackAction, p.Decision().Action)
	assert.ErrorIs(t, p.Err(), ErrDecisionTimeout)
	assert.Less(t, elapsed, 500*time.Millisecond, "fallback must arrive near the deadline, not the worker duration")
}

// Same-tick timeout fallbacks resolve in task-id order, so identical runs
// replay the same resolution sequence regardless of map iteration order.
func TestDispatcher_TimeoutOrderIsDeterministic(t *testing.T) {
	release := make(chan struct{})
	engine := behavior.NewEngine()
	b := behavior.NewBuilder("slow")
	root := b.ActionFunc("stall", func(*behavior.Context) behavior.Status {
		<-release
		return behavior.StatusSuccess
	})
	tree, err := b.Build(root)
	require.NoError(t, err)
	require.NoError(t, engine.Register(tree))

	d := newTestDispatcher(t, engine, 1)
	defer close(release)

	var want []ulid.ULID
	for _, agent := range []string{"a1", "a2", "a3", "a4"} {
		p, err := d.Request(testContext(agent, "slow"), event.PriorityHigh, 10*time.Millisecond)
		require.NoError(t, err)
		want = append(want, p.TaskID())
	}

	time.Sleep(50 * time.Millisecond)
	resolved := d.Poll(1)
	require.Len(t, resolved, 4)

	var got []ulid.ULID
	for _, r := range resolved {
		assert.Equal(t, OutcomeTimeout, r.Outcome)
		got = append(got, r.TaskID)
	}
	assert.Equal(t, want, got)
}

// A late worker result is discarded and never retroactively changes the
// resolved fallback.
func TestDispatcher_LateResultDiscarded(t *testing.T) {
	release := make(chan struct{})
	engine := behavior.NewEngine()
	b := behavior.NewBuilder("slow")
	root := b.ActionFunc("stall", func(*behavior.Context) behavior.Status {
		<-release
		return behavior.StatusSuccess
	})
	tree, err := b.Build(root)
	require.NoError(t, err)
	require.NoError(t, engine.Register(tree))

	d := newTestDispatcher(t, engine, 1)

	p, err := d.Request(testContext("a1", "slow"), event.PriorityHigh, 10*time.Millisecond)
	require.NoError(t, err)
	pollUntil(t, d, p, time.Second)
	require.Equal(t, OutcomeTimeout, p.Outcome())

	// Let the worker finish late, then poll again: nothing new resolves
	// and the handle still carries the fallback.
	close(release)
	time.Sleep(20 * time.Millisecond)
	late := d.Poll(100)
	assert.Empty(t, late)
	assert.Equal(t, FallbackAction, p.Decision().Action)
}

func TestDispatcher_WorkerPanicFallsBack(t *testing.T) {
	engine := behavior.NewEngine()
	b := behavior.NewBuilder("explosive")
	root := b.ActionFunc("boom", func(*behavior.Context) behavior.Status {
		panic("tree exploded")
	})
	tree, err := b.Build(root)
	require.NoError(t, err)
	require.NoError(t, engine.Register(tree))

	d := newTestDispatcher(t, engine, 1)

	p, err := d.Request(testContext("a1", "explosive"), event.PriorityMedium, time.Second)
	require.NoError(t, err)
	pollUntil(t, d, p, 2*time.Second)

	assert.Equal(t, OutcomeFailed, p.Outcome())
	assert.Equal(t, FallbackAction, p.Decision().Action)
	assert.ErrorIs(t, p.Err(), ErrDecisionFailed)

	// The pool survives the panic and keeps serving.
	q, err := d.Request(testContext("a2", "explosive"), event.PriorityMedium, time.Second)
	require.NoError(t, err)
	pollUntil(t, d, q, 2*time.Second)
	assert.Equal(t, OutcomeFailed, q.Outcome())
}

func TestDispatcher_PriorityThenDeadlineOrdering(t *testing.T) {
	var mu sync.Mutex
	var order []string
	gate := make(chan struct{})

	engine := behavior.NewEngine()
	b := behavior.NewBuilder("record")
	root := b.ActionFunc("note", func(ctx *behavior.Context) behavior.Status {
		if ctx.AgentID == "blocker" {
			<-gate
		}
		mu.Lock()
		order = append(order, ctx.AgentID)
		mu.Unlock()
		return behavior.StatusSuccess
	})
	tree, err := b.Build(root)
	require.NoError(t, err)
	require.NoError(t, engine.Register(tree))

	d := newTestDispatcher(t, engine, 1)

	// Occupy the single worker, then enqueue tasks whose scheduling order
	// must follow (priority, earliest deadline).
	blocker, err := d.Request(testContext("blocker", "record"), event.PriorityCritical, 5*time.Second)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond) // let the worker pick up the blocker

	low, err := d.Request(testContext("low", "record"), event.PriorityLow, 5*time.Second)
	require.NoError(t, err)
	critLate, err := d.Request(testContext("crit-late", "record"), event.PriorityCritical, 4*time.Second)
	require.NoError(t, err)
	critEarly, err := d.Request(testContext("crit-early", "record"), event.PriorityCritical, 2*time.Second)
	require.NoError(t, err)

	close(gate)
	for _, p := range []*Pending{blocker, low, critLate, critEarly} {
		pollUntil(t, d, p, 2*time.Second)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"blocker", "crit-early", "crit-late", "low"}, order)
}

func TestDispatcher_RequestValidation(t *testing.T) {
	d := newTestDispatcher(t, testEngine(t, "scout"), 1)

	_, err := d.Request(nil, event.PriorityMedium, time.Second)
	assert.Error(t, err)

	_, err = d.Request(&behavior.Context{Tree: "scout"}, event.PriorityMedium, time.Second)
	assert.Error(t, err)

	_, err = d.Request(&behavior.Context{AgentID: "a"}, event.PriorityMedium, time.Second)
	assert.Error(t, err)
}

func TestDispatcher_PublishesCompletionEvent(t *testing.T) {
	bus := event.NewBus(event.Config{})
	var completions int
	_, err := bus.Subscribe(event.TypeDecisionCompleted, func(event.Event) error {
		completions++
		return nil
	}, event.PriorityMedium)
	require.NoError(t, err)

	engine := testEngine(t, "scout")
	d := NewDispatcher(Config{Engine: engine, Bus: bus, Workers: 1})
	d.Start()
	t.Cleanup(d.Stop)

	p, err := d.Request(testContext("a1", "scout"), event.PriorityMedium, time.Second)
	require.NoError(t, err)
	pollUntil(t, d, p, 2*time.Second)

	bus.Drain(0)
	assert.Equal(t, 1, completions)
}
