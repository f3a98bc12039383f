// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

// Package behavior implements behavior-tree evaluation for agent decisions.
// Trees are composed at initialization time and immutable during simulation;
// only the Context passed to evaluation varies per tick. Evaluation performs
// no I/O and is deterministic for identical contexts.
package behavior

// Status is the result of evaluating a node.
type Status uint8

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusRunning
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusRunning:
		return "running"
	default:
		return "unknown"
	}
}

// NodeID addresses a node within a tree's arena.
type NodeID int

type kind uint8

const (
	kindSequence kind = iota
	kindSelector
	kindCondition
	kindAction
	kindDecorator
)

func (k kind) String() string {
	switch k {
	case kindSequence:
		return "sequence"
	case kindSelector:
		return "selector"
	case kindCondition:
		return "condition"
	case kindAction:
		return "action"
	case kindDecorator:
		return "decorator"
	default:
		return "unknown"
	}
}

// DecoratorKind selects a decorator's transform.
type DecoratorKind uint8

const (
	// DecoratorInverter swaps Success and Failure; Running passes through.
	DecoratorInverter DecoratorKind = iota
	// DecoratorSucceeder maps Failure to Success; Running passes through.
	DecoratorSucceeder
	// DecoratorRepeat re-evaluates the child up to N times, stopping early
	// on Failure or Running.
	DecoratorRepeat
)

// Predicate tests a condition against the evaluation context.
type Predicate func(*Context) bool

// ActionFunc is a custom action body; it may report Running for actions
// that span multiple evaluations.
type ActionFunc func(*Context) Status

// Candidate is one scored alternative inside an Action node. Scores below
// zero mark the candidate unavailable in the current context.
type Candidate struct {
	ID    string
	Score func(*Context) float64
}

// node is the closed tagged variant stored in a tree's arena. Children are
// always created before their parent, so child indices are strictly smaller
// than the parent's and the graph is acyclic by construction.
type node struct {
	kind     kind
	name     string
	children []NodeID

	pred       Predicate   // condition
	candidates []Candidate // action (scored form)
	do         ActionFunc  // action (custom form)

	deco   DecoratorKind // decorator
	repeat int           // decorator, DecoratorRepeat only
}
