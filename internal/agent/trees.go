// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package agent

import (
	"github.com/guildhall/guildhall/internal/behavior"
)

// Guild steward tree id, registered with the behavior engine at startup.
const StewardTree = "guild.steward"

// Action names a steward decision can carry.
const (
	ActionDefend  = "defend"
	ActionTrade   = "trade"
	ActionRecruit = "recruit"
	ActionTrain   = "train"
	ActionPatrol  = "patrol"
	ActionHold    = "hold"
)

// NewStewardTree builds the default guild steward behavior: deal with
// active battles first, dig out of poverty second, otherwise grow the
// guild. Candidate scores read capability facts, so an action the current
// state cannot afford scores itself out of contention.
func NewStewardTree() (*behavior.Tree, error) {
	b := behavior.NewBuilder(StewardTree)

	atWar := b.Condition("at war", func(c *behavior.Context) bool {
		return c.Fact("battles") > 0
	})
	warAction := b.Action("war footing",
		behavior.Candidate{ID: ActionDefend, Score: func(c *behavior.Context) float64 {
			if c.Fact(behavior.CapabilityPrefix+ActionDefend) <= 0 {
				return -1
			}
			return 1 + c.Fact("readiness")/100
		}},
		behavior.Candidate{ID: ActionTrain, Score: func(c *behavior.Context) float64 {
			if c.Fact(behavior.CapabilityPrefix+ActionTrain) <= 0 {
				return -1
			}
			return (100 - c.Fact("readiness")) / 100
		}},
	)
	crisis := b.Sequence("crisis", atWar, warAction)

	poor := b.Condition("treasury low", func(c *behavior.Context) bool {
		return c.Fact("treasury") < 100
	})
	earnAction := b.Action("raise funds",
		behavior.Candidate{ID: ActionTrade, Score: func(c *behavior.Context) float64 {
			if c.Fact(behavior.CapabilityPrefix+ActionTrade) <= 0 {
				return -1
			}
			return 1 + c.Fact("iron")/100
		}},
		behavior.Candidate{ID: ActionHold, Score: func(*behavior.Context) float64 {
			return 0.1
		}},
	)
	poverty := b.Sequence("poverty", poor, earnAction)

	steady := b.Action("steady growth",
		behavior.Candidate{ID: ActionRecruit, Score: func(c *behavior.Context) float64 {
			if c.Fact(behavior.CapabilityPrefix+ActionRecruit) <= 0 {
				return -1
			}
			return c.Fact("capacity_left") / 10
		}},
		behavior.Candidate{ID: ActionTrain, Score: func(c *behavior.Context) float64 {
			if c.Fact(behavior.CapabilityPrefix+ActionTrain) <= 0 {
				return -1
			}
			return (100 - c.Fact("readiness")) / 100
		}},
		behavior.Candidate{ID: ActionTrade, Score: func(c *behavior.Context) float64 {
			if c.Fact(behavior.CapabilityPrefix+ActionTrade) <= 0 {
				return -1
			}
			return c.Fact("iron") / 200
		}},
		behavior.Candidate{ID: ActionPatrol, Score: func(c *behavior.Context) float64 {
			return (100 - c.Fact("morale")) / 500
		}},
		behavior.Candidate{ID: ActionHold, Score: func(*behavior.Context) float64 {
			return 0.01
		}},
	)

	root := b.Selector("steward", crisis, poverty, steady)
	return b.Build(root)
}
