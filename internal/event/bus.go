// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package event

import (
	"container/heap"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/guildhall/guildhall/internal/ids"
	"github.com/guildhall/guildhall/internal/observability"
)

// Handler processes one delivered event. Handlers run synchronously on the
// simulation goroutine during Drain; they must not block.
type Handler func(ev Event) error

// Subscription is an opaque handle returned by Subscribe and accepted by
// Unsubscribe.
type Subscription struct {
	id       ulid.ULID
	pattern  string
	matcher  glob.Glob // nil for exact-match patterns
	priority Priority
	handler  Handler
	order    uint64
	failures int // consecutive handler failures
}

// ID returns the subscription handle identifier.
func (s *Subscription) ID() ulid.ULID { return s.id }

// Pattern returns the type pattern the subscription was registered with.
func (s *Subscription) Pattern() string { return s.pattern }

func (s *Subscription) matches(eventType string) bool {
	if s.matcher != nil {
		return s.matcher.Match(eventType)
	}
	return s.pattern == eventType
}

// DefaultFailureLimit is the number of consecutive handler failures after
// which a subscription is automatically removed.
const DefaultFailureLimit = 3

// DefaultHistorySize bounds the delivered-event ring retained for replay
// and debugging.
const DefaultHistorySize = 256

// Config tunes a Bus. Zero values select the defaults.
type Config struct {
	// FailureLimit is the consecutive handler-failure threshold that
	// triggers automatic unsubscription. Negative disables the guard.
	FailureLimit int
	// HistorySize bounds the delivered-event ring. Negative disables
	// history retention.
	HistorySize int
	// Clock overrides the time source, used by deterministic tests.
	Clock func() time.Time
	Logger *slog.Logger
}

// Bus is a typed publish/subscribe event bus with priority-ordered, batched
// delivery. Publish is safe from any goroutine; Drain must only be called
// from the simulation goroutine.
type Bus struct {
	mu        sync.Mutex
	queue     eventQueue
	seq       uint64
	subs      []*Subscription
	nextOrder uint64

	failureLimit int
	history      *History
	clock        func() time.Time
	logger       *slog.Logger
}

// NewBus creates an event bus.
func NewBus(cfg Config) *Bus {
	if cfg.FailureLimit == 0 {
		cfg.FailureLimit = DefaultFailureLimit
	}
	if cfg.HistorySize == 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	b := &Bus{
		failureLimit: cfg.FailureLimit,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
	}
	if cfg.HistorySize > 0 {
		b.history = NewHistory(cfg.HistorySize)
	}
	return b
}

// History returns the delivered-event ring, or nil when retention is disabled.
func (b *Bus) History() *History { return b.history }

// Publish validates the envelope and enqueues it. The event is not delivered
// until the next Drain.
func (b *Bus) Publish(ev Event) error {
	if err := ev.Validate(b.clock()); err != nil {
		return err
	}
	b.mu.Lock()
	b.enqueueLocked(ev)
	b.mu.Unlock()
	observability.RecordEventPublished(ev.Priority.String())
	return nil
}

// PublishBatch atomically enqueues all events in the given order. If any
// event fails validation the whole batch is rejected and the error names
// the offending event.
func (b *Bus) PublishBatch(evs []Event) error {
	now := b.clock()
	for i, ev := range evs {
		if err := ev.Validate(now); err != nil {
			return oops.Code(CodeInvalidEventFormat).
				With("batch_index", i).
				With("batch_size", len(evs)).
				Wrap(err)
		}
	}
	b.mu.Lock()
	for _, ev := range evs {
		b.enqueueLocked(ev)
	}
	b.mu.Unlock()
	for _, ev := range evs {
		observability.RecordEventPublished(ev.Priority.String())
	}
	return nil
}

func (b *Bus) enqueueLocked(ev Event) {
	b.seq++
	heap.Push(&b.queue, queuedEvent{ev: ev, seq: b.seq})
}

// Subscribe registers a handler for an event type. The pattern is either an
// exact dotted type ("guild.member.joined") or a glob ("guild.*",
// "*.battle.*"); a wildcard spans segment boundaries, so a bounded-context
// prefix like "guild.*" matches every guild event. Handlers for the same
// event run in descending priority, then registration order.
func (b *Bus) Subscribe(pattern string, handler Handler, priority Priority) (*Subscription, error) {
	if handler == nil {
		return nil, oops.Code(CodeInvalidEventFormat).Errorf("subscribe %q: nil handler", pattern)
	}
	if pattern == "" {
		return nil, oops.Code(CodeInvalidEventFormat).Errorf("subscribe: empty pattern")
	}

	sub := &Subscription{
		id:       ids.New(),
		pattern:  pattern,
		priority: priority,
		handler:  handler,
	}
	if strings.ContainsAny(pattern, "*?[{") {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, oops.Code(CodeInvalidEventFormat).With("pattern", pattern).Wrap(err)
		}
		sub.matcher = g
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextOrder++
	sub.order = b.nextOrder
	b.subs = append(b.subs, sub)
	return sub, nil
}

// Unsubscribe removes a subscription. Removing an already-removed
// subscription is a no-op.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub.id)
}

func (b *Bus) removeLocked(id ulid.ULID) {
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Pending returns the number of queued, undelivered events.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Len()
}

// Drain delivers queued events in priority-major, insertion-order-minor
// order until the queue is empty or the time budget is exhausted. Remaining
// events carry over to the next call. A non-positive budget drains without
// a time limit. Returns the number of events delivered.
func (b *Bus) Drain(budget time.Duration) int {
	var deadline time.Time
	if budget > 0 {
		deadline = b.clock().Add(budget)
	}

	delivered := 0
	for {
		if !deadline.IsZero() && !b.clock().Before(deadline) {
			break
		}

		b.mu.Lock()
		if b.queue.Len() == 0 {
			b.mu.Unlock()
			break
		}
		item := heap.Pop(&b.queue).(queuedEvent)
		targets := b.matchingLocked(item.ev.Type)
		b.mu.Unlock()

		for _, sub := range targets {
			b.deliver(item.ev, sub)
		}
		if b.history != nil {
			b.history.Record(item.ev)
		}
		delivered++
	}
	observability.RecordEventsDelivered(delivered)
	return delivered
}

// matchingLocked snapshots the subscriptions interested in eventType,
// ordered by descending subscriber priority then registration order.
func (b *Bus) matchingLocked(eventType string) []*Subscription {
	var targets []*Subscription
	for _, sub := range b.subs {
		if sub.matches(eventType) {
			targets = append(targets, sub)
		}
	}
	sort.SliceStable(targets, func(i, j int) bool {
		if targets[i].priority != targets[j].priority {
			return targets[i].priority < targets[j].priority
		}
		return targets[i].order < targets[j].order
	})
	return targets
}

// deliver invokes one handler with panic isolation. A failing handler never
// stops delivery to other subscribers; a repeatedly failing handler is
// removed and a system.error.handler_disabled event is published.
func (b *Bus) deliver(ev Event, sub *Subscription) {
	err := b.invoke(ev, sub)
	if err == nil {
		sub.failures = 0
		return
	}

	sub.failures++
	observability.RecordHandlerFailure()
	b.logger.Error("event handler failed",
		"event_id", ev.ID.String(),
		"event_type", ev.Type,
		"subscription", sub.id.String(),
		"pattern", sub.pattern,
		"consecutive_failures", sub.failures,
		"error", err,
	)

	if b.failureLimit > 0 && sub.failures >= b.failureLimit {
		b.disable(sub, ev)
	}
}

func (b *Bus) invoke(ev Event, sub *Subscription) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = oops.With("panic", r).Errorf("handler panicked")
		}
	}()
	return sub.handler(ev)
}

func (b *Bus) disable(sub *Subscription, cause Event) {
	b.mu.Lock()
	b.removeLocked(sub.id)
	b.mu.Unlock()

	b.logger.Warn("subscription disabled after repeated failures",
		"subscription", sub.id.String(),
		"pattern", sub.pattern,
		"failure_limit", b.failureLimit,
	)

	payload, err := json.Marshal(map[string]string{
		"subscription": sub.id.String(),
		"pattern":      sub.pattern,
		"cause_event":  cause.ID.String(),
	})
	if err != nil {
		payload = nil
	}
	notice := Event{
		ID:            ids.New(),
		Source:        "event.bus",
		Type:          TypeHandlerDisabled,
		Time:          b.clock(),
		Priority:      PriorityCritical,
		Payload:       payload,
		CorrelationID: cause.ID.String(),
	}
	if pubErr := b.Publish(notice); pubErr != nil {
		b.logger.Error("failed to publish handler_disabled event", "error", pubErr)
	}
}

// queuedEvent pairs an event with its global insertion sequence so ordering
// within a priority tier is stable.
type queuedEvent struct {
	ev  Event
	seq uint64
}

// eventQueue is a min-heap ordered by (priority, insertion sequence).
type eventQueue []queuedEvent

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].ev.Priority != q[j].ev.Priority {
		return q[i].ev.Priority < q[j].ev.Priority
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) { *q = append(*q, x.(queuedEvent)) }

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
