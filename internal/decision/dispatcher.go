// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

// Package decision offloads expensive behavior-tree evaluation to a fixed
// pool of workers with per-task deadlines. The simulation goroutine submits
// tasks without blocking and observes results only through Poll, so
// asynchronous completions never mutate state mid-tick.
package decision

import (
	"container/heap"
	"encoding/json"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/guildhall/guildhall/internal/behavior"
	"github.com/guildhall/guildhall/internal/event"
	"github.com/guildhall/guildhall/internal/ids"
	"github.com/guildhall/guildhall/internal/observability"
)

// DefaultDeadline bounds a task when the caller passes no deadline.
const DefaultDeadline = 5 * time.Second

// FallbackAction is the deterministic no-op decision returned when a task
// times out or fails.
const FallbackAction = "hold"

// Outcome classifies how a request resolved.
type Outcome uint8

const (
	OutcomePending Outcome = iota
	OutcomeCompleted
	OutcomeCached
	OutcomeTimeout
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeCompleted:
		return "completed"
	case OutcomeCached:
		return "cached"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Pending is the handle returned by Request. It is owned by the simulation
// goroutine: Request creates it, Poll resolves it, and callers read it
// between ticks. It must not be shared with other goroutines.
type Pending struct {
	taskID   ulid.ULID
	agentID  string
	deadline time.Time
	key      string

	outcome  Outcome
	decision behavior.Decision
	err      error
}

// TaskID returns the task identifier (zero for cache hits resolved inline).
func (p *Pending) TaskID() ulid.ULID { return p.taskID }

// AgentID returns the requesting agent.
func (p *Pending) AgentID() string { return p.agentID }

// Done reports whether the request has resolved.
func (p *Pending) Done() bool { return p.outcome != OutcomePending }

// Outcome returns how the request resolved.
func (p *Pending) Outcome() Outcome { return p.outcome }

// Decision returns the resolved decision. Valid once Done reports true;
// timeouts and failures resolve to the fallback decision.
func (p *Pending) Decision() behavior.Decision { return p.decision }

// Err returns ErrDecisionTimeout or ErrDecisionFailed for degraded
// resolutions, nil otherwise.
func (p *Pending) Err() error { return p.err }

// Resolved reports one request resolution observed during Poll.
type Resolved struct {
	TaskID   ulid.ULID
	AgentID  string
	Decision behavior.Decision
	Outcome  Outcome
	Err      error
}

// Config tunes a Dispatcher.
type Config struct {
	Engine *behavior.Engine
	// Bus receives ai.decision.completed events; nil disables publication.
	Bus *event.Bus
	// Workers fixes the pool size. Defaults to runtime.NumCPU. The pool
	// never grows.
	Workers int
	// CacheTTL is the decision cache lifetime in ticks.
	CacheTTL uint64
	// CompletionBuffer bounds the worker->simulation completion channel.
	CompletionBuffer int
	Clock            func() time.Time
	Logger           *slog.Logger
}

// Dispatcher owns the worker pool, the task queue, and the decision cache.
// Request and Poll must be called from the simulation goroutine only.
type Dispatcher struct {
	engine *behavior.Engine
	bus    *event.Bus
	cache  *Cache
	clock  func() time.Time
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  taskQueue
	seq    uint64
	closed bool

	completions chan completion
	quit        chan struct{}
	pending     map[ulid.ULID]*Pending
	workers     int
	wg          sync.WaitGroup
}

type task struct {
	id       ulid.ULID
	agentID  string
	ctx      *behavior.Context
	priority event.Priority
	deadline time.Time
	key      string
	seq      uint64
}

type completion struct {
	taskID   ulid.ULID
	decision *behavior.Decision
	err      error
	finished time.Time
}

// NewDispatcher creates a dispatcher. Call Start before submitting requests
// and Stop to release the pool.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.CompletionBuffer <= 0 {
		cfg.CompletionBuffer = 1024
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	d := &Dispatcher{
		engine:      cfg.Engine,
		bus:         cfg.Bus,
		cache:       NewCache(cfg.CacheTTL),
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		completions: make(chan completion, cfg.CompletionBuffer),
		quit:        make(chan struct{}),
		pending:     make(map[ulid.ULID]*Pending),
		workers:     cfg.Workers,
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Cache exposes the decision cache for inspection.
func (d *Dispatcher) Cache() *Cache { return d.cache }

// Workers returns the fixed pool size.
func (d *Dispatcher) Workers() int { return d.workers }

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := range d.workers {
		d.wg.Add(1)
		go d.worker(i)
	}
}

// Stop drains the pool. Queued tasks are abandoned; in-flight evaluations
// finish and their completions are discarded.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.closed = true
	d.queue = nil
	d.mu.Unlock()
	close(d.quit)
	d.cond.Broadcast()
	d.wg.Wait()
}

// Request resolves an agent decision. The cache is consulted first; on a
// hit the returned handle is already resolved and no worker is dispatched.
// On a miss a task is enqueued; the handle resolves during a later Poll.
// Never blocks.
func (d *Dispatcher) Request(ctx *behavior.Context, priority event.Priority, deadline time.Duration) (*Pending, error) {
	if ctx == nil || ctx.AgentID == "" || ctx.Tree == "" {
		return nil, oops.Errorf("decision request needs a context with agent and tree")
	}
	if deadline <= 0 {
		deadline = DefaultDeadline
	}

	key := ctx.Fingerprint()
	if cached, ok := d.cache.Get(key, ctx.Tick); ok {
		if reconciled, usable := reconcile(cached, ctx); usable {
			observability.RecordCacheHit()
			observability.RecordDecision(OutcomeCached.String())
			return &Pending{
				agentID:  ctx.AgentID,
				key:      key,
				outcome:  OutcomeCached,
				decision: reconciled,
			}, nil
		}
	}
	observability.RecordCacheMiss()

	t := &task{
		id:       ids.New(),
		agentID:  ctx.AgentID,
		ctx:      ctx.Clone(),
		priority: priority,
		deadline: d.clock().Add(deadline),
		key:      key,
	}
	p := &Pending{
		taskID:   t.id,
		agentID:  ctx.AgentID,
		deadline: t.deadline,
		key:      key,
		outcome:  OutcomePending,
	}

	d.mu.Lock()
	d.seq++
	t.seq = d.seq
	heap.Push(&d.queue, t)
	depth := d.queue.Len()
	d.mu.Unlock()
	d.cond.Signal()
	observability.SetQueueDepth(depth)

	d.pending[t.id] = p
	return p, nil
}

// reconcile adapts a cached decision to the current context instead of
// blindly reusing it: capability facts are excluded from the situation
// fingerprint, so a "can_<action>" fact of zero or below here means the
// cached action is no longer available and the hit is rejected.
func reconcile(d behavior.Decision, ctx *behavior.Context) (behavior.Decision, bool) {
	if v, ok := ctx.Facts[behavior.CapabilityPrefix+d.Action]; ok && v <= 0 {
		return behavior.Decision{}, false
	}
	return d, true
}

// Poll observes completions and deadline expiries. It must be called once
// per tick from the simulation goroutine; decision results are therefore
// applied only at tick boundaries. Returns every request resolved by this
// call.
func (d *Dispatcher) Poll(now uint64) []Resolved {
	var resolved []Resolved

	// Expire overdue tasks first, so a completion that raced past its
	// deadline is discarded below rather than applied. Expiries resolve
	// in task-id order (ULIDs, so request order); map iteration order
	// must not leak into the replayable resolution sequence.
	wallNow := d.clock()
	var expired []ulid.ULID
	for id, p := range d.pending {
		if wallNow.After(p.deadline) {
			expired = append(expired, id)
		}
	}
	slices.SortFunc(expired, func(a, b ulid.ULID) int { return a.Compare(b) })
	for _, id := range expired {
		p := d.pending[id]
		p.outcome = OutcomeTimeout
		p.decision = behavior.Decision{Action: FallbackAction}
		p.err = oops.Code(CodeDecisionTimeout).
			With("task_id", id.String()).
			With("agent_id", p.agentID).
			Wrap(ErrDecisionTimeout)
		delete(d.pending, id)
		observability.RecordDecision(OutcomeTimeout.String())
		d.logger.Warn("decision timed out, using fallback",
			"task_id", id.String(), "agent_id", p.agentID)
		resolved = append(resolved, Resolved{
			TaskID: id, AgentID: p.agentID, Decision: p.decision,
			Outcome: OutcomeTimeout, Err: p.err,
		})
	}

	for {
		select {
		case c := <-d.completions:
			if r, ok := d.settle(c, now); ok {
				resolved = append(resolved, r)
			}
		default:
			return resolved
		}
	}
}

// settle applies one worker completion. Late and orphaned completions are
// discarded and logged; they never retroactively change a resolution.
func (d *Dispatcher) settle(c completion, now uint64) (Resolved, bool) {
	p, ok := d.pending[c.taskID]
	if !ok {
		observability.RecordDecision("late_discarded")
		d.logger.Debug("discarding late decision result", "task_id", c.taskID.String())
		return Resolved{}, false
	}
	delete(d.pending, c.taskID)

	switch {
	case c.finished.After(p.deadline):
		p.outcome = OutcomeTimeout
		p.decision = behavior.Decision{Action: FallbackAction}
		p.err = oops.Code(CodeDecisionTimeout).
			With("task_id", c.taskID.String()).
			Wrap(ErrDecisionTimeout)
		observability.RecordDecision(OutcomeTimeout.String())
	case c.err != nil:
		p.outcome = OutcomeFailed
		p.decision = behavior.Decision{Action: FallbackAction}
		p.err = oops.Code(CodeDecisionFailed).
			With("task_id", c.taskID.String()).
			With("agent_id", p.agentID).
			With("cause", c.err.Error()).
			Wrap(ErrDecisionFailed)
		observability.RecordDecision(OutcomeFailed.String())
		d.logger.Error("decision computation failed, using fallback",
			"task_id", c.taskID.String(), "agent_id", p.agentID, "error", c.err)
	default:
		p.outcome = OutcomeCompleted
		if c.decision != nil {
			p.decision = *c.decision
		} else {
			// Tree produced no decision; hold is still a valid answer.
			p.decision = behavior.Decision{Action: FallbackAction}
		}
		d.cache.Put(p.key, p.decision, now, c.taskID)
		observability.RecordDecision(OutcomeCompleted.String())
		d.publishCompleted(p)
	}

	return Resolved{
		TaskID:   c.taskID,
		AgentID:  p.agentID,
		Decision: p.decision,
		Outcome:  p.outcome,
		Err:      p.err,
	}, true
}

func (d *Dispatcher) publishCompleted(p *Pending) {
	if d.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"task_id":  p.taskID.String(),
		"agent_id": p.agentID,
		"action":   p.decision.Action,
		"score":    p.decision.Score,
	})
	if err != nil {
		payload = nil
	}
	ev := event.Event{
		ID:            ids.New(),
		Source:        "decision.dispatcher",
		Type:          event.TypeDecisionCompleted,
		Time:          d.clock(),
		Priority:      event.PriorityLow,
		Payload:       payload,
		CorrelationID: p.taskID.String(),
	}
	if pubErr := d.bus.Publish(ev); pubErr != nil {
		d.logger.Error("failed to publish decision event", "error", pubErr)
	}
}

// worker pulls tasks in (priority, earliest-deadline) order and evaluates
// them against an immutable context copy. A panicking evaluation is
// isolated to its task; the worker keeps serving, which keeps the pool at
// its fixed size.
func (d *Dispatcher) worker(_ int) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		for d.queue.Len() == 0 && !d.closed {
			d.cond.Wait()
		}
		if d.closed {
			d.mu.Unlock()
			return
		}
		t := heap.Pop(&d.queue).(*task)
		depth := d.queue.Len()
		d.mu.Unlock()
		observability.SetQueueDepth(depth)

		if d.clock().After(t.deadline) {
			// Already overdue; skip the evaluation and report it late.
			if !d.complete(completion{taskID: t.id, finished: d.clock()}) {
				return
			}
			continue
		}

		dec, err := d.evaluate(t)
		ok := d.complete(completion{
			taskID:   t.id,
			decision: dec,
			err:      err,
			finished: d.clock(),
		})
		if !ok {
			return
		}
	}
}

// complete hands a result to the simulation goroutine. Returns false when
// the dispatcher is stopping.
func (d *Dispatcher) complete(c completion) bool {
	select {
	case d.completions <- c:
		return true
	case <-d.quit:
		return false
	}
}

func (d *Dispatcher) evaluate(t *task) (dec *behavior.Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			dec = nil
			err = oops.With("panic", r).Errorf("worker panicked evaluating tree %q", t.ctx.Tree)
		}
	}()
	res, err := d.engine.Evaluate(t.ctx.Tree, t.ctx)
	if err != nil {
		return nil, err
	}
	return res.Decision, nil
}

// taskQueue orders tasks by priority, then earliest deadline, then
// submission order.
type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	if !q[i].deadline.Equal(q[j].deadline) {
		return q[i].deadline.Before(q[j].deadline)
	}
	return q[i].seq < q[j].seq
}

func (q taskQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *taskQueue) Push(x any) { *q = append(*q, x.(*task)) }

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
