// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package behavior

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sort"
	"strings"
)

// Context carries all world knowledge a tree may consult. Evaluation reads
// it but never reaches outside it, which keeps trees pure and lets workers
// evaluate an immutable copy off the simulation goroutine.
type Context struct {
	AgentID string
	Tree    string
	Tick    uint64

	// Facts are numeric observations (treasury, morale, enemy strength).
	Facts map[string]float64
	// Tags are symbolic observations (current battle id, guild role).
	Tags map[string]string

	// Seed feeds the context's random source. Trees that roll dice stay
	// reproducible because the source is derived from the seed on demand,
	// never shared across contexts.
	Seed int64

	rng *rand.Rand
}

// Fact returns a numeric observation, or 0 when absent.
func (c *Context) Fact(key string) float64 {
	return c.Facts[key]
}

// Tag returns a symbolic observation, or "" when absent.
func (c *Context) Tag(key string) string {
	return c.Tags[key]
}

// Rand returns the context's seeded random source, created lazily.
func (c *Context) Rand() *rand.Rand {
	if c.rng == nil {
		c.rng = rand.New(rand.NewSource(c.Seed)) //nolint:gosec // deterministic sim randomness, not crypto
	}
	return c.rng
}

// Clone returns a deep copy safe to hand to a worker goroutine. The random
// source is not carried over; the clone re-derives it from the seed.
func (c *Context) Clone() *Context {
	out := &Context{
		AgentID: c.AgentID,
		Tree:    c.Tree,
		Tick:    c.Tick,
		Seed:    c.Seed,
	}
	if c.Facts != nil {
		out.Facts = make(map[string]float64, len(c.Facts))
		for k, v := range c.Facts {
			out.Facts[k] = v
		}
	}
	if c.Tags != nil {
		out.Tags = make(map[string]string, len(c.Tags))
		for k, v := range c.Tags {
			out.Tags[k] = v
		}
	}
	return out
}

// CapabilityPrefix marks facts that flag an action as currently available
// ("can_raid"). They are excluded from the fingerprint: a cached decision
// for the same situation is instead reconciled against them at lookup time.
const CapabilityPrefix = "can_"

// Fingerprint hashes the situation the context describes. Identical
// situations produce identical fingerprints regardless of map iteration
// order; tick, seed, and capability facts are excluded so a fingerprint
// stays stable across ticks when the observed world has not changed.
func (c *Context) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "agent=%s\ntree=%s\n", c.AgentID, c.Tree)

	factKeys := make([]string, 0, len(c.Facts))
	for k := range c.Facts {
		if strings.HasPrefix(k, CapabilityPrefix) {
			continue
		}
		factKeys = append(factKeys, k)
	}
	sort.Strings(factKeys)
	for _, k := range factKeys {
		fmt.Fprintf(h, "f:%s=%g\n", k, c.Facts[k])
	}

	tagKeys := make([]string, 0, len(c.Tags))
	for k := range c.Tags {
		tagKeys = append(tagKeys, k)
	}
	sort.Strings(tagKeys)
	for _, k := range tagKeys {
		fmt.Fprintf(h, "t:%s=%s\n", k, c.Tags[k])
	}

	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}
