// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runSimulate(t *testing.T, args ...string) string {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"simulate", "--log-level=error"}, args...))

	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestSimulate_RunsRequestedTicks(t *testing.T) {
	out := runSimulate(t, "--ticks=120", "--seed=7", "--workers=1")

	assert.Contains(t, out, "ticks:    120")
	assert.Contains(t, out, "version:")
	assert.Contains(t, out, "checksum:")
}

func TestSimulate_RejectsBadConfig(t *testing.T) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"simulate", "--ticks=1", "--tick-rate=0"})

	assert.Error(t, cmd.Execute())
}

func TestWorld_Builds(t *testing.T) {
	w, err := buildWorldForTest(t)
	require.NoError(t, err)

	view := w.manager.View()
	assert.Equal(t, uint64(0), view.Version)
	assert.True(t, view.VerifyChecksum())
	assert.Equal(t, 1, w.roster.Len())
}
