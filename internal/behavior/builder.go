// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package behavior

import "github.com/samber/oops"

// Builder assembles an immutable Tree. Child nodes are created before their
// parents, so the arena is acyclic by construction; Build validates the rest.
type Builder struct {
	id    string
	nodes []node
}

// NewBuilder starts a tree with the given registration id.
func NewBuilder(id string) *Builder {
	return &Builder{id: id}
}

func (b *Builder) add(n node) NodeID {
	b.nodes = append(b.nodes, n)
	return NodeID(len(b.nodes) - 1)
}

// Sequence adds a node that evaluates children in order and returns the
// first non-Success result.
func (b *Builder) Sequence(name string, children ...NodeID) NodeID {
	return b.add(node{kind: kindSequence, name: name, children: children})
}

// Selector adds a node that evaluates children in order and returns the
// first non-Failure result.
func (b *Builder) Selector(name string, children ...NodeID) NodeID {
	return b.add(node{kind: kindSelector, name: name, children: children})
}

// Condition adds a leaf that succeeds when pred holds.
func (b *Builder) Condition(name string, pred Predicate) NodeID {
	return b.add(node{kind: kindCondition, name: name, pred: pred})
}

// Action adds a leaf that scores candidates and decides on the best one.
func (b *Builder) Action(name string, candidates ...Candidate) NodeID {
	return b.add(node{kind: kindAction, name: name, candidates: candidates})
}

// ActionFunc adds a leaf with a custom body, for actions that need Running.
func (b *Builder) ActionFunc(name string, do ActionFunc) NodeID {
	return b.add(node{kind: kindAction, name: name, do: do})
}

// Inverter wraps child, swapping Success and Failure.
func (b *Builder) Inverter(name string, child NodeID) NodeID {
	return b.add(node{kind: kindDecorator, name: name, deco: DecoratorInverter, children: []NodeID{child}})
}

// Succeeder wraps child, mapping Failure to Success.
func (b *Builder) Succeeder(name string, child NodeID) NodeID {
	return b.add(node{kind: kindDecorator, name: name, deco: DecoratorSucceeder, children: []NodeID{child}})
}

// Repeat wraps child, re-evaluating it up to n times.
func (b *Builder) Repeat(name string, child NodeID, n int) NodeID {
	return b.add(node{kind: kindDecorator, name: name, deco: DecoratorRepeat, repeat: n, children: []NodeID{child}})
}

// Build finalizes the tree rooted at root.
func (b *Builder) Build(root NodeID) (*Tree, error) {
	fail := func(format string, args ...any) (*Tree, error) {
		return nil, oops.With("tree", b.id).Errorf(format, args...)
	}

	if b.id == "" {
		return fail("tree id must not be empty")
	}
	if len(b.nodes) == 0 {
		return fail("tree has no nodes")
	}
	if root < 0 || int(root) >= len(b.nodes) {
		return fail("root %d out of range", root)
	}

	for i, n := range b.nodes {
		for _, child := range n.children {
			if child < 0 || child >= NodeID(i) {
				return fail("node %q: child %d must precede its parent %d", n.name, child, i)
			}
		}
		switch n.kind {
		case kindSequence, kindSelector:
			if len(n.children) == 0 {
				return fail("%s node %q has no children", n.kind, n.name)
			}
		case kindCondition:
			if n.pred == nil {
				return fail("condition node %q has no predicate", n.name)
			}
		case kindAction:
			if n.do == nil && len(n.candidates) == 0 {
				return fail("action node %q has neither body nor candidates", n.name)
			}
			seen := make(map[string]bool, len(n.candidates))
			for _, cand := range n.candidates {
				if cand.ID == "" {
					return fail("action node %q has a candidate with empty id", n.name)
				}
				if cand.Score == nil {
					return fail("action node %q candidate %q has no score function", n.name, cand.ID)
				}
				if seen[cand.ID] {
					return fail("action node %q has duplicate candidate %q", n.name, cand.ID)
				}
				seen[cand.ID] = true
			}
		case kindDecorator:
			if len(n.children) != 1 {
				return fail("decorator node %q must wrap exactly one child", n.name)
			}
			if n.deco == DecoratorRepeat && n.repeat < 1 {
				return fail("repeat node %q needs a positive count", n.name)
			}
		}
	}

	nodes := make([]node, len(b.nodes))
	copy(nodes, b.nodes)
	return &Tree{id: b.id, nodes: nodes, root: root}, nil
}
