// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package behavior

import "sort"

// Decision is the product of a successful Action evaluation.
type Decision struct {
	// Action is the chosen action identifier.
	Action string `json:"action"`
	// Score is the winning candidate's score, 0 for custom actions.
	Score float64 `json:"score,omitempty"`
}

// Result is the outcome of evaluating a tree against a context.
type Result struct {
	Status Status
	// Decision is the first decision produced on the successful path,
	// nil when no Action node contributed one.
	Decision *Decision
}

// Tree is an immutable behavior tree backed by a node arena.
type Tree struct {
	id    string
	nodes []node
	root  NodeID
}

// ID returns the tree identifier used for registration and lookup.
func (t *Tree) ID() string { return t.id }

// Len returns the number of nodes in the arena.
func (t *Tree) Len() int { return len(t.nodes) }

// Evaluate traverses the tree's root against ctx.
func (t *Tree) Evaluate(ctx *Context) Result {
	return t.eval(t.root, ctx)
}

func (t *Tree) eval(id NodeID, ctx *Context) Result {
	n := &t.nodes[id]
	switch n.kind {
	case kindSequence:
		return t.evalSequence(n, ctx)
	case kindSelector:
		return t.evalSelector(n, ctx)
	case kindCondition:
		if n.pred(ctx) {
			return Result{Status: StatusSuccess}
		}
		return Result{Status: StatusFailure}
	case kindAction:
		return evalAction(n, ctx)
	case kindDecorator:
		return t.evalDecorator(n, ctx)
	default:
		return Result{Status: StatusFailure}
	}
}

// evalSequence returns the first non-Success child result; an empty
// sequence succeeds.
func (t *Tree) evalSequence(n *node, ctx *Context) Result {
	var decision *Decision
	for _, child := range n.children {
		res := t.eval(child, ctx)
		if res.Decision != nil && decision == nil {
			decision = res.Decision
		}
		if res.Status != StatusSuccess {
			return res
		}
	}
	return Result{Status: StatusSuccess, Decision: decision}
}

// evalSelector returns the first non-Failure child result; an empty
// selector fails.
func (t *Tree) evalSelector(n *node, ctx *Context) Result {
	for _, child := range n.children {
		res := t.eval(child, ctx)
		if res.Status != StatusFailure {
			return res
		}
	}
	return Result{Status: StatusFailure}
}

// evalAction runs a custom action body, or scores candidates and picks the
// best. Equal scores break lexicographically by candidate id so identical
// inputs always yield identical decisions.
func evalAction(n *node, ctx *Context) Result {
	if n.do != nil {
		return Result{Status: n.do(ctx)}
	}

	type scored struct {
		id    string
		score float64
	}
	viable := make([]scored, 0, len(n.candidates))
	for _, cand := range n.candidates {
		s := cand.Score(ctx)
		if s < 0 {
			continue
		}
		viable = append(viable, scored{id: cand.ID, score: s})
	}
	if len(viable) == 0 {
		return Result{Status: StatusFailure}
	}

	sort.Slice(viable, func(i, j int) bool {
		if viable[i].score != viable[j].score {
			return viable[i].score > viable[j].score
		}
		return viable[i].id < viable[j].id
	})

	best := viable[0]
	return Result{
		Status:   StatusSuccess,
		Decision: &Decision{Action: best.id, Score: best.score},
	}
}

func (t *Tree) evalDecorator(n *node, ctx *Context) Result {
	child := n.children[0]
	switch n.deco {
	case DecoratorInverter:
		res := t.eval(child, ctx)
		switch res.Status {
		case StatusSuccess:
			res.Status = StatusFailure
		case StatusFailure:
			res.Status = StatusSuccess
		}
		return res
	case DecoratorSucceeder:
		res := t.eval(child, ctx)
		if res.Status == StatusFailure {
			res.Status = StatusSuccess
		}
		return res
	case DecoratorRepeat:
		var last Result
		for range n.repeat {
			last = t.eval(child, ctx)
			if last.Status != StatusSuccess {
				return last
			}
		}
		return last
	default:
		return Result{Status: StatusFailure}
	}
}
