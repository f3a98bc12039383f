// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package main

import (
	"log/slog"
	"testing"

	"github.com/guildhall/guildhall/internal/config"
)

func buildWorldForTest(t *testing.T) (*world, error) {
	t.Helper()
	cfg := config.Default()
	cfg.Decision.Workers = 1
	return buildWorld(cfg, 42, slog.Default(), nil)
}
