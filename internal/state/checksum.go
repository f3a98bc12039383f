// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package state

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"
)

// ComputeChecksum hashes the state content in a canonical field order, maps
// sorted by key, so the result is independent of map iteration order and
// struct serialization quirks. The Checksum field itself is excluded.
func (s *GameState) ComputeChecksum() string {
	h := sha256.New()
	var tmp [8]byte

	writeU64(h, &tmp, s.Version)

	// Guild section.
	writeString(h, s.Guild.Name)
	writeU64(h, &tmp, uint64(s.Guild.MaxMembers)) //nolint:gosec // bounded config value
	writeI64(h, &tmp, s.Guild.Treasury)
	writeI64(h, &tmp, s.Guild.Reputation)
	for _, k := range sortedKeys(s.Guild.Members) {
		m := s.Guild.Members[k]
		writeString(h, m.ID)
		writeString(h, m.Name)
		writeString(h, string(m.Role))
		writeU64(h, &tmp, m.Joined)
	}

	// Combat section.
	writeI64(h, &tmp, s.Combat.Readiness)
	for _, k := range sortedKeys(s.Combat.Battles) {
		b := s.Combat.Battles[k]
		writeString(h, b.ID)
		writeString(h, b.Opponent)
		writeU64(h, &tmp, b.StartedTick)
		writeI64(h, &tmp, b.Strength)
	}

	// Economy section.
	writeI64(h, &tmp, s.Economy.TradeVolume)
	for _, k := range sortedKeys(s.Economy.Resources) {
		writeString(h, k)
		writeI64(h, &tmp, s.Economy.Resources[k])
	}
	for _, k := range sortedKeys(s.Economy.Prices) {
		writeString(h, k)
		writeI64(h, &tmp, s.Economy.Prices[k])
	}

	// Social section.
	writeI64(h, &tmp, s.Social.Morale)
	for _, k := range sortedKeys(s.Social.Relations) {
		r := s.Social.Relations[k]
		writeString(h, k)
		writeString(h, r.From)
		writeString(h, r.To)
		writeI64(h, &tmp, r.Affinity)
	}

	return hex.EncodeToString(h.Sum(nil))
}

// VerifyChecksum reports whether the stored checksum matches the content.
func (s *GameState) VerifyChecksum() bool {
	return s.Checksum == s.ComputeChecksum()
}

func writeU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func writeI64(h hash.Hash, tmp *[8]byte, v int64) {
	writeU64(h, tmp, uint64(v)) //nolint:gosec // canonical two's-complement encoding
}

func writeString(h hash.Hash, s string) {
	var tmp [8]byte
	writeU64(h, &tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
