// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Package-level metrics let subsystem packages record without holding a
// Server instance. They are attached to a registry by NewMetrics.
var (
	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildhall_events_published_total",
			Help: "Total events accepted by the bus, by priority",
		},
		[]string{"priority"},
	)
	eventsDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "guildhall_events_delivered_total",
			Help: "Total events delivered to subscribers during drain",
		},
	)
	handlerFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "guildhall_event_handler_failures_total",
			Help: "Total event handler errors and panics",
		},
	)
	decisionOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildhall_decisions_total",
			Help: "Decision dispatcher resolutions by outcome",
		},
		[]string{"outcome"},
	)
	decisionCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "guildhall_decision_cache_hits_total",
			Help: "Decision cache hits",
		},
	)
	decisionCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "guildhall_decision_cache_misses_total",
			Help: "Decision cache misses",
		},
	)
	workerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "guildhall_decision_queue_depth",
			Help: "Decision tasks waiting for a worker",
		},
	)
	tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "guildhall_tick_duration_seconds",
			Help:    "Logic update duration per tick",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
	)
	transactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildhall_state_transactions_total",
			Help: "State transactions by result (committed, rolled_back)",
		},
		[]string{"result"},
	)
	snapshotOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildhall_snapshot_operations_total",
			Help: "Snapshot operations by kind and result",
		},
		[]string{"kind", "result"},
	)
)

// RecordEventPublished counts one accepted event.
func RecordEventPublished(priority string) {
	eventsPublished.WithLabelValues(priority).Inc()
}

// RecordEventsDelivered counts events delivered in one drain.
func RecordEventsDelivered(n int) {
	if n > 0 {
		eventsDelivered.Add(float64(n))
	}
}

// RecordHandlerFailure counts one handler error or panic.
func RecordHandlerFailure() { handlerFailures.Inc() }

// RecordDecision counts a dispatcher resolution by outcome name.
func RecordDecision(outcome string) {
	decisionOutcomes.WithLabelValues(outcome).Inc()
}

// RecordCacheHit counts a decision cache hit.
func RecordCacheHit() { decisionCacheHits.Inc() }

// RecordCacheMiss counts a decision cache miss.
func RecordCacheMiss() { decisionCacheMisses.Inc() }

// SetQueueDepth reports the number of tasks waiting for a worker.
func SetQueueDepth(n int) { workerQueueDepth.Set(float64(n)) }

// ObserveTick records one logic update duration.
func ObserveTick(d time.Duration) { tickDuration.Observe(d.Seconds()) }

// RecordTransaction counts a transaction result ("committed" or "rolled_back").
func RecordTransaction(result string) {
	transactions.WithLabelValues(result).Inc()
}

// RecordSnapshot counts a snapshot operation.
func RecordSnapshot(kind, result string) {
	snapshotOps.WithLabelValues(kind, result).Inc()
}

// Metrics bundles the simulation metrics registered on a Server's registry.
type Metrics struct {
	registry *prometheus.Registry
}

// NewMetrics registers the simulation metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	reg.MustRegister(
		eventsPublished,
		eventsDelivered,
		handlerFailures,
		decisionOutcomes,
		decisionCacheHits,
		decisionCacheMisses,
		workerQueueDepth,
		tickDuration,
		transactions,
		snapshotOps,
	)
	return &Metrics{}
}
