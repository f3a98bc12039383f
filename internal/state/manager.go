// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package state

import (
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/guildhall/guildhall/internal/ids"
	"github.com/guildhall/guildhall/internal/observability"
)

// PartialUpdate mutates a working copy of the state. The update never sees
// the committed state directly; its changes only take effect if the result
// passes every validator.
type PartialUpdate func(*GameState) error

// Manager serializes all access to the committed state. Reads return deep
// copies; writes go through validation and commit atomically with a
// version bump and a fresh checksum.
type Manager struct {
	mu         sync.RWMutex
	current    *GameState
	validators *validatorSet
	clock      func() time.Time
	logger     *slog.Logger
}

// ManagerConfig configures a Manager. Zero values get defaults.
type ManagerConfig struct {
	Validators []Validator // defaults to BuiltinValidators
	Clock      func() time.Time
	Logger     *slog.Logger
}

// NewManager wraps initial, which must already be internally consistent.
func NewManager(initial *GameState, cfg ManagerConfig) (*Manager, error) {
	validators := cfg.Validators
	if validators == nil {
		validators = BuiltinValidators()
	}
	vs, err := newValidatorSet(validators)
	if err != nil {
		return nil, err
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if result := vs.run(initial); !result.OK() {
		return nil, result.Err()
	}

	m := &Manager{
		current:    initial.DeepCopy(),
		validators: vs,
		clock:      clock,
		logger:     logger,
	}
	m.current.Checksum = m.current.ComputeChecksum()
	return m, nil
}

// View returns a deep copy of the committed state.
func (m *Manager) View() *GameState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.DeepCopy()
}

// Version returns the committed version without copying the state.
func (m *Manager) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Version
}

// UpdateState applies a partial update as a single-operation commit: the
// update runs against a working copy, the result is validated, and only a
// fully valid candidate replaces the committed state. Version moves by
// exactly one per successful commit.
func (m *Manager) UpdateState(update PartialUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	working := m.current.DeepCopy()
	if err := update(working); err != nil {
		observability.RecordTransaction("rejected")
		return oops.Wrapf(err, "update failed")
	}
	return m.commit(working)
}

// ExecuteTransaction applies a multi-operation transaction atomically. If
// any operation fails, the already-applied operations roll back in reverse
// order and the committed state is untouched; validation failures after a
// fully-applied transaction are likewise rejected wholesale. A rollback
// error is contained by discarding the working copy entirely.
func (m *Manager) ExecuteTransaction(tx *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	working := m.current.DeepCopy()
	if err := tx.apply(working); err != nil {
		observability.RecordTransaction("rolled_back")
		m.logger.Warn("transaction rolled back",
			slog.String("transaction", tx.Name),
			slog.String("error", err.Error()),
		)
		return err
	}
	if err := m.commit(working); err != nil {
		return oops.With("transaction", tx.Name).Wrap(err)
	}
	return nil
}

// commit validates working and swaps it in. Callers hold mu.
func (m *Manager) commit(working *GameState) error {
	if result := m.validators.run(working); !result.OK() {
		observability.RecordTransaction("invalid")
		return result.Err()
	}
	working.Version = m.current.Version + 1
	working.Checksum = working.ComputeChecksum()
	m.current = working
	observability.RecordTransaction("committed")
	return nil
}

// Snapshot captures the committed state as an independent deep copy.
func (m *Manager) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := &Snapshot{
		ID:        ids.New(),
		Timestamp: m.clock(),
		Version:   m.current.Version,
		Checksum:  m.current.Checksum,
		State:     m.current.DeepCopy(),
	}
	observability.RecordSnapshot("create", "ok")
	return snap
}

// RestoreSnapshot replaces the committed state with a snapshot's contents.
// The snapshot is verified first; a structurally broken or
// checksum-mismatched snapshot is rejected and the committed state is
// untouched. The restored state keeps the snapshot's version.
func (m *Manager) RestoreSnapshot(snap *Snapshot) error {
	if err := snap.validate(); err != nil {
		observability.RecordSnapshot("restore", "rejected")
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	restored := snap.State.DeepCopy()
	if result := m.validators.run(restored); !result.OK() {
		observability.RecordSnapshot("restore", "rejected")
		return result.Err()
	}
	m.current = restored
	observability.RecordSnapshot("restore", "ok")
	m.logger.Info("state restored from snapshot",
		slog.String("snapshot_id", snap.ID.String()),
		slog.Uint64("version", restored.Version),
	)
	return nil
}
