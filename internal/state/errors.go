// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package state

import "errors"

// Sentinel errors for the state error taxonomy.
var (
	// ErrInvalidState means a validator rejected a candidate state; the
	// prior state is untouched.
	ErrInvalidState = errors.New("invalid state")

	// ErrCorruptedSnapshot means a snapshot failed checksum verification
	// during restore; the restore was abandoned entirely.
	ErrCorruptedSnapshot = errors.New("corrupted snapshot")

	// ErrInvalidSnapshot means a snapshot was structurally unusable
	// (missing state, inconsistent metadata).
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

// Error codes attached via oops.
const (
	CodeInvalidState      = "INVALID_STATE"
	CodeCorruptedSnapshot = "CORRUPTED_SNAPSHOT"
	CodeInvalidSnapshot   = "INVALID_SNAPSHOT"
)
