// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package behavior

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysTrue(*Context) bool  { return true }
func alwaysFalse(*Context) bool { return false }

func constScore(s float64) func(*Context) float64 {
	return func(*Context) float64 { return s }
}

func buildTree(t *testing.T, b *Builder, root NodeID) *Tree {
	t.Helper()
	tree, err := b.Build(root)
	require.NoError(t, err)
	return tree
}

func TestSequence_ShortCircuitsOnFailure(t *testing.T) {
	b := NewBuilder("seq")
	var evaluated []string
	mark := func(name string, ok bool) NodeID {
		return b.Condition(name, func(*Context) bool {
			evaluated = append(evaluated, name)
			return ok
		})
	}
	root := b.Sequence("root", mark("a", true), mark("b", false), mark("c", true))
	tree := buildTree(t, b, root)

	res := tree.Evaluate(&Context{})
	assert.Equal(t, StatusFailure, res.Status)
	assert.Equal(t, []string{"a", "b"}, evaluated, "sequence stops at first non-success")
}

func TestSelector_ShortCircuitsOnSuccess(t *testing.T) {
	b := NewBuilder("sel")
	var evaluated []string
	mark := func(name string, ok bool) NodeID {
		return b.Condition(name, func(*Context) bool {
			evaluated = append(evaluated, name)
			return ok
		})
	}
	root := b.Selector("root", mark("a", false), mark("b", true), mark("c", true))
	tree := buildTree(t, b, root)

	res := tree.Evaluate(&Context{})
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, []string{"a", "b"}, evaluated, "selector stops at first non-failure")
}

func TestSelector_AllFail(t *testing.T) {
	b := NewBuilder("sel")
	root := b.Selector("root",
		b.Condition("a", alwaysFalse),
		b.Condition("b", alwaysFalse),
	)
	tree := buildTree(t, b, root)
	assert.Equal(t, StatusFailure, tree.Evaluate(&Context{}).Status)
}

func TestAction_PicksHighestScore(t *testing.T) {
	b := NewBuilder("act")
	root := b.Action("choose",
		Candidate{ID: "raid", Score: constScore(0.3)},
		Candidate{ID: "trade", Score: constScore(0.8)},
		Candidate{ID: "rest", Score: constScore(0.1)},
	)
	tree := buildTree(t, b, root)

	res := tree.Evaluate(&Context{})
	require.Equal(t, StatusSuccess, res.Status)
	require.NotNil(t, res.Decision)
	assert.Equal(t, "trade", res.Decision.Action)
	assert.InDelta(t, 0.8, res.Decision.Score, 1e-9)
}

// Equal scores resolve lexicographically by action identifier so regression
// runs with identical inputs always reproduce the same decision.
func TestAction_TieBreaksLexicographically(t *testing.T) {
	b := NewBuilder("act")
	root := b.Action("choose",
		Candidate{ID: "scout", Score: constScore(0.5)},
		Candidate{ID: "defend", Score: constScore(0.5)},
		Candidate{ID: "patrol", Score: constScore(0.5)},
	)
	tree := buildTree(t, b, root)

	for range 20 {
		res := tree.Evaluate(&Context{})
		require.NotNil(t, res.Decision)
		assert.Equal(t, "defend", res.Decision.Action)
	}
}

func TestAction_NegativeScoresUnavailable(t *testing.T) {
	b := NewBuilder("act")
	root := b.Action("choose",
		Candidate{ID: "raid", Score: constScore(-1)},
		Candidate{ID: "flee", Score: constScore(-0.5)},
	)
	tree := buildTree(t, b, root)
	assert.Equal(t, StatusFailure, tree.Evaluate(&Context{}).Status)
}

func TestActionFunc_Running(t *testing.T) {
	b := NewBuilder("act")
	root := b.ActionFunc("march", func(*Context) Status { return StatusRunning })
	tree := buildTree(t, b, root)
	assert.Equal(t, StatusRunning, tree.Evaluate(&Context{}).Status)
}

func TestDecorators(t *testing.T) {
	t.Run("inverter", func(t *testing.T) {
		b := NewBuilder("deco")
		root := b.Inverter("not", b.Condition("c", alwaysTrue))
		tree := buildTree(t, b, root)
		assert.Equal(t, StatusFailure, tree.Evaluate(&Context{}).Status)
	})

	t.Run("inverter passes running", func(t *testing.T) {
		b := NewBuilder("deco")
		root := b.Inverter("not", b.ActionFunc("run", func(*Context) Status { return StatusRunning }))
		tree := buildTree(t, b, root)
		assert.Equal(t, StatusRunning, tree.Evaluate(&Context{}).Status)
	})

	t.Run("succeeder", func(t *testing.T) {
		b := NewBuilder("deco")
		root := b.Succeeder("always", b.Condition("c", alwaysFalse))
		tree := buildTree(t, b, root)
		assert.Equal(t, StatusSuccess, tree.Evaluate(&Context{}).Status)
	})

	t.Run("repeat stops on failure", func(t *testing.T) {
		b := NewBuilder("deco")
		calls := 0
		root := b.Repeat("retry", b.Condition("flaky", func(*Context) bool {
			calls++
			return calls < 2
		}), 5)
		tree := buildTree(t, b, root)
		assert.Equal(t, StatusFailure, tree.Evaluate(&Context{}).Status)
		assert.Equal(t, 2, calls)
	})
}

func TestTree_DecisionPropagatesThroughComposites(t *testing.T) {
	b := NewBuilder("guard")
	engage := b.Sequence("engage",
		b.Condition("enemy-near", func(c *Context) bool { return c.Fact("enemy_distance") < 10 }),
		b.Action("fight",
			Candidate{ID: "melee", Score: func(c *Context) float64 { return 10 - c.Fact("enemy_distance") }},
			Candidate{ID: "ranged", Score: func(c *Context) float64 { return c.Fact("enemy_distance") }},
		),
	)
	idle := b.Action("idle", Candidate{ID: "hold", Score: constScore(0)})
	root := b.Selector("root", engage, idle)
	tree := buildTree(t, b, root)

	res := tree.Evaluate(&Context{Facts: map[string]float64{"enemy_distance": 2}})
	require.NotNil(t, res.Decision)
	assert.Equal(t, "melee", res.Decision.Action)

	res = tree.Evaluate(&Context{Facts: map[string]float64{"enemy_distance": 50}})
	require.NotNil(t, res.Decision)
	assert.Equal(t, "hold", res.Decision.Action)
}

func TestTree_DeterministicWithSeededRand(t *testing.T) {
	build := func() *Tree {
		b := NewBuilder("dice")
		root := b.Action("gamble",
			Candidate{ID: "bold", Score: func(c *Context) float64 { return c.Rand().Float64() }},
			Candidate{ID: "safe", Score: func(c *Context) float64 { return c.Rand().Float64() }},
		)
		return buildTree(t, b, root)
	}
	tree := build()

	first := tree.Evaluate(&Context{Seed: 42})
	second := tree.Evaluate(&Context{Seed: 42})
	require.NotNil(t, first.Decision)
	require.NotNil(t, second.Decision)
	assert.Equal(t, first.Decision.Action, second.Decision.Action)
	assert.Equal(t, first.Decision.Score, second.Decision.Score)
}

func TestBuilder_Validation(t *testing.T) {
	t.Run("empty tree", func(t *testing.T) {
		_, err := NewBuilder("x").Build(0)
		assert.Error(t, err)
	})

	t.Run("empty id", func(t *testing.T) {
		b := NewBuilder("")
		root := b.Condition("c", alwaysTrue)
		_, err := b.Build(root)
		assert.Error(t, err)
	})

	t.Run("root out of range", func(t *testing.T) {
		b := NewBuilder("x")
		b.Condition("c", alwaysTrue)
		_, err := b.Build(7)
		assert.Error(t, err)
	})

	t.Run("composite without children", func(t *testing.T) {
		b := NewBuilder("x")
		root := b.Sequence("empty")
		_, err := b.Build(root)
		assert.Error(t, err)
	})

	t.Run("duplicate candidate ids", func(t *testing.T) {
		b := NewBuilder("x")
		root := b.Action("a",
			Candidate{ID: "dup", Score: constScore(1)},
			Candidate{ID: "dup", Score: constScore(2)},
		)
		_, err := b.Build(root)
		assert.Error(t, err)
	})

	t.Run("repeat without count", func(t *testing.T) {
		b := NewBuilder("x")
		root := b.Repeat("r", b.Condition("c", alwaysTrue), 0)
		_, err := b.Build(root)
		assert.Error(t, err)
	})
}
