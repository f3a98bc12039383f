// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package state

import (
	"github.com/samber/oops"
)

// Operation is one step of a transaction. Apply mutates the working state;
// Rollback must undo exactly what Apply did. Both operate on the working
// copy handed to them, never on the committed state.
type Operation struct {
	Name     string
	Apply    func(*GameState) error
	Rollback func(*GameState) error
}

// Transaction is an ordered list of operations committed atomically:
// either every operation applies and the result validates, or the
// committed state is untouched.
type Transaction struct {
	Name       string
	Operations []Operation
}

// apply runs the transaction against working. On operation failure it
// rolls back the already-applied operations in reverse order; if any
// rollback itself errors, it reports that too so the caller can fall back
// to the pristine pre-transaction copy.
func (t *Transaction) apply(working *GameState) error {
	for i, op := range t.Operations {
		if op.Apply == nil {
			return oops.With("transaction", t.Name).
				With("operation", op.Name).
				Errorf("operation %d has no apply", i)
		}
		err := op.Apply(working)
		if err == nil {
			continue
		}
		if rbErr := t.rollback(working, i); rbErr != nil {
			return oops.With("transaction", t.Name).
				With("operation", op.Name).
				With("rollback_error", rbErr.Error()).
				Wrapf(err, "operation %d failed and rollback failed", i)
		}
		return oops.With("transaction", t.Name).
			With("operation", op.Name).
			Wrapf(err, "operation %d failed, rolled back", i)
	}
	return nil
}

// rollback undoes operations [0, failed) in reverse order.
func (t *Transaction) rollback(working *GameState, failed int) error {
	for i := failed - 1; i >= 0; i-- {
		op := t.Operations[i]
		if op.Rollback == nil {
			continue
		}
		if err := op.Rollback(working); err != nil {
			return oops.With("operation", op.Name).
				Wrapf(err, "rollback of operation %d failed", i)
		}
	}
	return nil
}
