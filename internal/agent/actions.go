// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package agent

import (
	"fmt"

	"github.com/samber/oops"

	"github.com/guildhall/guildhall/internal/state"
)

// Action costs and yields, in treasury units and resource counts.
const (
	TrainCost    = 20
	RecruitCost  = 50
	TradeLot     = 5  // iron sold per trade
	TradePayout  = 60 // treasury gained per trade
	ReadinessMax = 100
	MoraleMax    = 100
)

// actionTransaction maps a resolved decision to a state transaction. Hold
// maps to nil: the steward deliberately does nothing this round.
func actionTransaction(agentID, action string, tick uint64) (*state.Transaction, error) {
	switch action {
	case ActionHold:
		return nil, nil
	case ActionTrain:
		return trainTransaction(), nil
	case ActionRecruit:
		return recruitTransaction(agentID, tick), nil
	case ActionTrade:
		return tradeTransaction(), nil
	case ActionDefend:
		return defendTransaction(), nil
	case ActionPatrol:
		return patrolTransaction(), nil
	default:
		return nil, oops.With("agent_id", agentID).
			Errorf("unknown action %q", action)
	}
}

func trainTransaction() *state.Transaction {
	var gained int64
	return &state.Transaction{
		Name: "steward.train",
		Operations: []state.Operation{
			{
				Name: "pay trainer",
				Apply: func(s *state.GameState) error {
					s.Guild.Treasury -= TrainCost
					return nil
				},
				Rollback: func(s *state.GameState) error {
					s.Guild.Treasury += TrainCost
					return nil
				},
			},
			{
				Name: "raise readiness",
				Apply: func(s *state.GameState) error {
					gained = min(2, ReadinessMax-s.Combat.Readiness)
					s.Combat.Readiness += gained
					return nil
				},
				Rollback: func(s *state.GameState) error {
					s.Combat.Readiness -= gained
					return nil
				},
			},
		},
	}
}

func recruitTransaction(agentID string, tick uint64) *state.Transaction {
	id := fmt.Sprintf("recruit-%s-%d", agentID, tick)
	return &state.Transaction{
		Name: "steward.recruit",
		Operations: []state.Operation{
			{
				Name: "pay signing bonus",
				Apply: func(s *state.GameState) error {
					s.Guild.Treasury -= RecruitCost
					return nil
				},
				Rollback: func(s *state.GameState) error {
					s.Guild.Treasury += RecruitCost
					return nil
				},
			},
			{
				Name: "admit member",
				Apply: func(s *state.GameState) error {
					if _, exists := s.Guild.Members[id]; exists {
						return oops.Errorf("member %q already admitted", id)
					}
					s.Guild.Members[id] = state.Member{
						ID:     id,
						Name:   id,
						Role:   state.RoleMember,
						Joined: tick,
					}
					return nil
				},
				Rollback: func(s *state.GameState) error {
					delete(s.Guild.Members, id)
					return nil
				},
			},
		},
	}
}

func tradeTransaction() *state.Transaction {
	return &state.Transaction{
		Name: "steward.trade",
		Operations: []state.Operation{
			{
				Name: "ship iron",
				Apply: func(s *state.GameState) error {
					s.Economy.Resources["iron"] -= TradeLot
					return nil
				},
				Rollback: func(s *state.GameState) error {
					s.Economy.Resources["iron"] += TradeLot
					return nil
				},
			},
			{
				Name: "collect payment",
				Apply: func(s *state.GameState) error {
					s.Guild.Treasury += TradePayout
					s.Economy.TradeVolume += TradeLot
					return nil
				},
				Rollback: func(s *state.GameState) error {
					s.Guild.Treasury -= TradePayout
					s.Economy.TradeVolume -= TradeLot
					return nil
				},
			},
		},
	}
}

func defendTransaction() *state.Transaction {
	var moraleGain int64
	return &state.Transaction{
		Name: "steward.defend",
		Operations: []state.Operation{
			{
				Name: "man the walls",
				Apply: func(s *state.GameState) error {
					moraleGain = min(2, MoraleMax-s.Social.Morale)
					s.Social.Morale += moraleGain
					return nil
				},
				Rollback: func(s *state.GameState) error {
					s.Social.Morale -= moraleGain
					return nil
				},
			},
		},
	}
}

func patrolTransaction() *state.Transaction {
	var moraleGain int64
	return &state.Transaction{
		Name: "steward.patrol",
		Operations: []state.Operation{
			{
				Name: "walk the grounds",
				Apply: func(s *state.GameState) error {
					moraleGain = min(1, MoraleMax-s.Social.Morale)
					s.Social.Morale += moraleGain
					return nil
				},
				Rollback: func(s *state.GameState) error {
					s.Social.Morale -= moraleGain
					return nil
				},
			},
		},
	}
}
