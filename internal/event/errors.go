// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package event

import "errors"

// Sentinel errors for the bus error taxonomy. Callers match with errors.Is;
// the oops wrappers carry codes and structured context.
var (
	// ErrInvalidEventFormat means an envelope failed publish validation.
	// The event was not enqueued.
	ErrInvalidEventFormat = errors.New("invalid event format")

	// ErrHandlerDisabled means a subscription was removed after exceeding
	// its consecutive-failure threshold.
	ErrHandlerDisabled = errors.New("handler disabled")
)

// Error codes attached via oops for log and telemetry correlation.
const (
	CodeInvalidEventFormat = "INVALID_EVENT_FORMAT"
	CodeHandlerDisabled    = "HANDLER_DISABLED"
)
