// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package state

import (
	"fmt"
	"strings"
	"sync"

	"github.com/samber/oops"
)

// Violation is one validator finding.
type Violation struct {
	Validator string
	Field     string
	Message   string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s: %s", v.Validator, v.Field, v.Message)
}

// ValidationResult aggregates every violation from a validation pass, so
// callers see the complete picture instead of the first failure.
type ValidationResult struct {
	Violations []Violation
}

// OK reports whether the pass found no violations.
func (r ValidationResult) OK() bool { return len(r.Violations) == 0 }

// Err converts the result into an error wrapping ErrInvalidState, or nil.
func (r ValidationResult) Err() error {
	if r.OK() {
		return nil
	}
	msgs := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		msgs[i] = v.String()
	}
	return oops.Code(CodeInvalidState).
		With("violations", msgs).
		Wrap(ErrInvalidState)
}

// Validator checks one aspect of a candidate state. Requires names
// validators whose outcome is a precondition: a validator only runs after
// everything it requires, and validators with no mutual ordering run in
// parallel.
type Validator struct {
	Name     string
	Requires []string
	Check    func(*GameState) []Violation
}

// validatorSet resolves validator ordering into parallel stages once, at
// registration time.
type validatorSet struct {
	validators []Validator
	stages     [][]int // indices into validators, topologically staged
}

func newValidatorSet(validators []Validator) (*validatorSet, error) {
	byName := make(map[string]int, len(validators))
	for i, v := range validators {
		if v.Name == "" {
			return nil, oops.Errorf("validator %d has no name", i)
		}
		if v.Check == nil {
			return nil, oops.Errorf("validator %q has no check", v.Name)
		}
		if _, dup := byName[v.Name]; dup {
			return nil, oops.Errorf("duplicate validator %q", v.Name)
		}
		byName[v.Name] = i
	}

	indegree := make([]int, len(validators))
	dependents := make([][]int, len(validators))
	for i, v := range validators {
		for _, req := range v.Requires {
			j, ok := byName[req]
			if !ok {
				return nil, oops.Errorf("validator %q requires unknown validator %q", v.Name, req)
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	// Kahn's algorithm, grouping each wave into one parallel stage.
	var stages [][]int
	ready := make([]int, 0, len(validators))
	for i, deg := range indegree {
		if deg == 0 {
			ready = append(ready, i)
		}
	}
	staged := 0
	for len(ready) > 0 {
		stage := ready
		stages = append(stages, stage)
		staged += len(stage)
		ready = nil
		for _, i := range stage {
			for _, dep := range dependents[i] {
				indegree[dep]--
				if indegree[dep] == 0 {
					ready = append(ready, dep)
				}
			}
		}
	}
	if staged != len(validators) {
		var cyclic []string
		for i, deg := range indegree {
			if deg > 0 {
				cyclic = append(cyclic, validators[i].Name)
			}
		}
		return nil, oops.Errorf("validator dependency cycle involving %s", strings.Join(cyclic, ", "))
	}

	return &validatorSet{validators: validators, stages: stages}, nil
}

// run validates candidate, executing each stage's validators in parallel
// and aggregating all violations.
func (vs *validatorSet) run(candidate *GameState) ValidationResult {
	var mu sync.Mutex
	var all []Violation

	for _, stage := range vs.stages {
		if len(stage) == 1 {
			all = append(all, vs.validators[stage[0]].Check(candidate)...)
			continue
		}
		var wg sync.WaitGroup
		for _, idx := range stage {
			wg.Add(1)
			go func() {
				defer wg.Done()
				found := vs.validators[idx].Check(candidate)
				if len(found) > 0 {
					mu.Lock()
					all = append(all, found...)
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
	}

	return ValidationResult{Violations: all}
}

// BuiltinValidators returns the standard consistency rules for the guild
// aggregate.
func BuiltinValidators() []Validator {
	return []Validator{
		{
			Name:  "guild.member_bounds",
			Check: checkMemberBounds,
		},
		{
			Name:  "guild.single_leader",
			Check: checkSingleLeader,
		},
		{
			Name:  "economy.non_negative",
			Check: checkNonNegative,
		},
		{
			// Cross-subsystem consistency only makes sense on a roster
			// that already passed its own checks.
			Name:     "cross.references",
			Requires: []string{"guild.member_bounds", "guild.single_leader"},
			Check:    checkCrossReferences,
		},
	}
}

func checkMemberBounds(s *GameState) []Violation {
	var out []Violation
	if s.Guild.MaxMembers < 1 {
		out = append(out, Violation{
			Validator: "guild.member_bounds",
			Field:     "guild.max_members",
			Message:   "must be positive",
		})
	}
	if s.Guild.MaxMembers >= 1 && len(s.Guild.Members) > s.Guild.MaxMembers {
		out = append(out, Violation{
			Validator: "guild.member_bounds",
			Field:     "guild.members",
			Message:   fmt.Sprintf("%d members exceed capacity %d", len(s.Guild.Members), s.Guild.MaxMembers),
		})
	}
	return out
}

func checkSingleLeader(s *GameState) []Violation {
	if len(s.Guild.Members) == 0 {
		return nil
	}
	leaders := 0
	for _, m := range s.Guild.Members {
		if m.Role == RoleLeader {
			leaders++
		}
	}
	if leaders == 1 {
		return nil
	}
	return []Violation{{
		Validator: "guild.single_leader",
		Field:     "guild.members",
		Message:   fmt.Sprintf("guild must have exactly one leader, found %d", leaders),
	}}
}

func checkNonNegative(s *GameState) []Violation {
	var out []Violation
	if s.Guild.Treasury < 0 {
		out = append(out, Violation{
			Validator: "economy.non_negative",
			Field:     "guild.treasury",
			Message:   fmt.Sprintf("must not be negative, got %d", s.Guild.Treasury),
		})
	}
	for name, qty := range s.Economy.Resources {
		if qty < 0 {
			out = append(out, Violation{
				Validator: "economy.non_negative",
				Field:     "economy.resources." + name,
				Message:   fmt.Sprintf("must not be negative, got %d", qty),
			})
		}
	}
	for name, price := range s.Economy.Prices {
		if price < 0 {
			out = append(out, Violation{
				Validator: "economy.non_negative",
				Field:     "economy.prices." + name,
				Message:   fmt.Sprintf("must not be negative, got %d", price),
			})
		}
	}
	return out
}

func checkCrossReferences(s *GameState) []Violation {
	var out []Violation
	for key, r := range s.Social.Relations {
		if _, ok := s.Guild.Members[r.From]; !ok {
			out = append(out, Violation{
				Validator: "cross.references",
				Field:     "social.relations." + key,
				Message:   fmt.Sprintf("references unknown member %q", r.From),
			})
		}
		if _, ok := s.Guild.Members[r.To]; !ok {
			out = append(out, Violation{
				Validator: "cross.references",
				Field:     "social.relations." + key,
				Message:   fmt.Sprintf("references unknown member %q", r.To),
			})
		}
	}
	if s.Combat.Readiness < 0 || s.Combat.Readiness > 100 {
		out = append(out, Violation{
			Validator: "cross.references",
			Field:     "combat.readiness",
			Message:   fmt.Sprintf("must be within [0,100], got %d", s.Combat.Readiness),
		})
	}
	if s.Social.Morale < 0 || s.Social.Morale > 100 {
		out = append(out, Violation{
			Validator: "cross.references",
			Field:     "social.morale",
			Message:   fmt.Sprintf("must be within [0,100], got %d", s.Social.Morale),
		})
	}
	return out
}
