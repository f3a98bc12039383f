// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package state

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Snapshot is a point-in-time copy of the committed state, suitable for
// persistence or rollback. State is a deep copy: mutating the live state
// after capture never changes a snapshot.
type Snapshot struct {
	ID        ulid.ULID  `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Version   uint64     `json:"version"`
	Checksum  string     `json:"checksum"`
	State     *GameState `json:"state"`
}

// validate checks a snapshot before restore. Structural problems yield
// ErrInvalidSnapshot; a content hash that does not match the recorded
// checksum yields ErrCorruptedSnapshot. Restores are fail-closed: any
// doubt rejects the snapshot.
func (s *Snapshot) validate() error {
	if s == nil || s.State == nil {
		return oops.Code(CodeInvalidSnapshot).
			Wrapf(ErrInvalidSnapshot, "snapshot has no state")
	}
	if s.Checksum == "" {
		return oops.Code(CodeInvalidSnapshot).
			With("snapshot_id", s.ID.String()).
			Wrapf(ErrInvalidSnapshot, "snapshot has no checksum")
	}
	if s.Version != s.State.Version {
		return oops.Code(CodeInvalidSnapshot).
			With("snapshot_id", s.ID.String()).
			With("snapshot_version", s.Version).
			With("state_version", s.State.Version).
			Wrapf(ErrInvalidSnapshot, "snapshot metadata disagrees with state")
	}
	if s.Checksum != s.State.Checksum || !s.State.VerifyChecksum() {
		return oops.Code(CodeCorruptedSnapshot).
			With("snapshot_id", s.ID.String()).
			With("expected", s.Checksum).
			With("actual", s.State.ComputeChecksum()).
			Wrap(ErrCorruptedSnapshot)
	}
	return nil
}
