// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package decision

import "errors"

// Sentinel errors for the dispatcher taxonomy. Both are absorbed into the
// deterministic fallback decision; they surface only through Resolved.Err
// and telemetry, never as a stalled simulation.
var (
	// ErrDecisionTimeout means a task exceeded its deadline.
	ErrDecisionTimeout = errors.New("decision deadline exceeded")

	// ErrDecisionFailed means a worker errored or panicked while
	// evaluating a task.
	ErrDecisionFailed = errors.New("decision computation failed")
)

// Error codes attached via oops.
const (
	CodeDecisionTimeout = "DECISION_TIMEOUT"
	CodeDecisionFailed  = "DECISION_FAILED"
)
