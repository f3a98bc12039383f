// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

// Package event provides the typed, prioritized event bus that connects
// the simulation subsystems. Events use reverse-domain dotted type strings
// grouped by bounded context (guild.*, combat.*, economy.*, social.*,
// system.*, ai.*).
package event

import (
	"encoding/json"
	"strings"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Priority orders event delivery. Lower values drain first.
type Priority uint8

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Valid reports whether p is one of the defined priority tiers.
func (p Priority) Valid() bool {
	return p <= PriorityLow
}

// Well-known event types published by the simulation core itself.
const (
	TypeHandlerDisabled    = "system.error.handler_disabled"
	TypePerformanceWarning = "system.performance.warning"
	TypeDecisionCompleted  = "ai.decision.completed"
)

// Event is an immutable envelope. It is created once at publish time and
// never mutated afterwards; subscribers receive it by value.
type Event struct {
	ID            ulid.ULID       `json:"id"`
	Source        string          `json:"source"`
	Type          string          `json:"type"`
	Time          time.Time       `json:"time"`
	Priority      Priority        `json:"priority"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// ClockSkewTolerance is how far into the future an event timestamp may lie
// before publish rejects it.
const ClockSkewTolerance = 2 * time.Second

// Validate checks the envelope against the publish contract. The returned
// error carries the INVALID_EVENT_FORMAT code and wraps
// ErrInvalidEventFormat.
func (e Event) Validate(now time.Time) error {
	reject := func(reason string) error {
		return oops.Code(CodeInvalidEventFormat).
			With("event_id", e.ID.String()).
			With("event_type", e.Type).
			With("reason", reason).
			Wrap(ErrInvalidEventFormat)
	}

	if e.ID == (ulid.ULID{}) {
		return reject("empty id")
	}
	if e.Source == "" {
		return reject("empty source")
	}
	if e.Type == "" {
		return reject("empty type")
	}
	if !validType(e.Type) {
		return reject("type is not a dotted lowercase identifier")
	}
	if e.Time.IsZero() {
		return reject("zero time")
	}
	if e.Time.After(now.Add(ClockSkewTolerance)) {
		return reject("time exceeds clock-skew tolerance")
	}
	if !e.Priority.Valid() {
		return reject("unknown priority")
	}
	return nil
}

// validType accepts reverse-domain dotted names such as "guild.member.joined":
// two or more non-empty segments of lowercase letters, digits, and underscores.
func validType(t string) bool {
	segments := strings.Split(t, ".")
	if len(segments) < 2 {
		return false
	}
	for _, seg := range segments {
		if seg == "" {
			return false
		}
		for _, r := range seg {
			if !unicode.IsLower(r) && !unicode.IsDigit(r) && r != '_' {
				return false
			}
		}
	}
	return true
}

// Context returns the bounded-context prefix of the event type
// ("guild" for "guild.member.joined").
func (e Event) Context() string {
	if i := strings.IndexByte(e.Type, '.'); i >= 0 {
		return e.Type[:i]
	}
	return e.Type
}
