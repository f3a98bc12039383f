// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package behavior

import (
	"sync"

	"github.com/samber/oops"
)

// Engine holds registered behavior trees and evaluates them on demand.
// Registration happens at initialization; Evaluate is safe from any
// goroutine because trees are immutable.
type Engine struct {
	mu    sync.RWMutex
	trees map[string]*Tree
}

// NewEngine creates an empty engine.
func NewEngine() *Engine {
	return &Engine{trees: make(map[string]*Tree)}
}

// Register adds a tree. Registering a duplicate id is an error.
func (e *Engine) Register(t *Tree) error {
	if t == nil {
		return oops.Errorf("register: nil tree")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.trees[t.ID()]; exists {
		return oops.With("tree", t.ID()).Errorf("tree %q already registered", t.ID())
	}
	e.trees[t.ID()] = t
	return nil
}

// Trees returns the registered tree ids.
func (e *Engine) Trees() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.trees))
	for id := range e.trees {
		out = append(out, id)
	}
	return out
}

// Evaluate traverses the named tree against ctx. Deterministic for
// identical contexts; returns ErrUnknownTree for unregistered ids.
func (e *Engine) Evaluate(treeID string, ctx *Context) (Result, error) {
	e.mu.RLock()
	tree, ok := e.trees[treeID]
	e.mu.RUnlock()
	if !ok {
		return Result{}, oops.Code(CodeUnknownTree).With("tree", treeID).Wrap(ErrUnknownTree)
	}
	return tree.Evaluate(ctx), nil
}
