// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

// Package state owns the canonical simulation state: a versioned aggregate
// of the guild, combat, economy, and social subsystems. All mutation goes
// through the Manager as validated partial updates or transactions; other
// components only ever see read-only copies.
package state

// Role is a guild member's rank.
type Role string

const (
	RoleLeader  Role = "leader"
	RoleOfficer Role = "officer"
	RoleMember  Role = "member"
)

// Member is one guild roster entry.
type Member struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
	Joined uint64 `json:"joined"` // tick of admission
}

// GuildState holds roster and treasury.
type GuildState struct {
	Name       string            `json:"name"`
	Members    map[string]Member `json:"members"`
	MaxMembers int               `json:"max_members"`
	Treasury   int64             `json:"treasury"`
	Reputation int64             `json:"reputation"`
}

// Battle is one ongoing engagement.
type Battle struct {
	ID          string `json:"id"`
	Opponent    string `json:"opponent"`
	StartedTick uint64 `json:"started_tick"`
	Strength    int64  `json:"strength"`
}

// CombatState holds active battles and overall readiness (0-100).
type CombatState struct {
	Battles   map[string]Battle `json:"battles"`
	Readiness int64             `json:"readiness"`
}

// EconomyState holds stockpiles, market prices, and trade throughput.
type EconomyState struct {
	Resources   map[string]int64 `json:"resources"`
	Prices      map[string]int64 `json:"prices"`
	TradeVolume int64            `json:"trade_volume"`
}

// Relation is a directed affinity between two members.
type Relation struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Affinity int64  `json:"affinity"`
}

// SocialState holds member relations and overall morale (0-100).
type SocialState struct {
	Relations map[string]Relation `json:"relations"`
	Morale    int64               `json:"morale"`
}

// GameState is the aggregate root. Version increases by exactly one per
// committed change; Checksum is a deterministic hash of the content and
// must match at every observation point.
type GameState struct {
	Guild   GuildState   `json:"guild"`
	Combat  CombatState  `json:"combat"`
	Economy EconomyState `json:"economy"`
	Social  SocialState  `json:"social"`

	Version  uint64 `json:"version"`
	Checksum string `json:"checksum"`
}

// NewGameState returns an empty but structurally valid state.
func NewGameState(guildName string, maxMembers int) *GameState {
	s := &GameState{
		Guild: GuildState{
			Name:       guildName,
			Members:    make(map[string]Member),
			MaxMembers: maxMembers,
		},
		Combat: CombatState{
			Battles:   make(map[string]Battle),
			Readiness: 50,
		},
		Economy: EconomyState{
			Resources: make(map[string]int64),
			Prices:    make(map[string]int64),
		},
		Social: SocialState{
			Relations: make(map[string]Relation),
			Morale:    50,
		},
	}
	s.Checksum = s.ComputeChecksum()
	return s
}

// DeepCopy returns an independent copy sharing no maps with the receiver.
func (s *GameState) DeepCopy() *GameState {
	out := &GameState{
		Guild: GuildState{
			Name:       s.Guild.Name,
			MaxMembers: s.Guild.MaxMembers,
			Treasury:   s.Guild.Treasury,
			Reputation: s.Guild.Reputation,
			Members:    make(map[string]Member, len(s.Guild.Members)),
		},
		Combat: CombatState{
			Readiness: s.Combat.Readiness,
			Battles:   make(map[string]Battle, len(s.Combat.Battles)),
		},
		Economy: EconomyState{
			TradeVolume: s.Economy.TradeVolume,
			Resources:   make(map[string]int64, len(s.Economy.Resources)),
			Prices:      make(map[string]int64, len(s.Economy.Prices)),
		},
		Social: SocialState{
			Morale:    s.Social.Morale,
			Relations: make(map[string]Relation, len(s.Social.Relations)),
		},
		Version:  s.Version,
		Checksum: s.Checksum,
	}
	for k, v := range s.Guild.Members {
		out.Guild.Members[k] = v
	}
	for k, v := range s.Combat.Battles {
		out.Combat.Battles[k] = v
	}
	for k, v := range s.Economy.Resources {
		out.Economy.Resources[k] = v
	}
	for k, v := range s.Economy.Prices {
		out.Economy.Prices[k] = v
	}
	for k, v := range s.Social.Relations {
		out.Social.Relations[k] = v
	}
	return out
}
