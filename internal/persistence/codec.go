// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package persistence

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/klauspost/compress/zstd"
	"github.com/samber/oops"

	"github.com/guildhall/guildhall/internal/state"
)

// FormatVersion is the on-disk snapshot format, bumped on layout changes.
const FormatVersion = "1.0.0"

// formatConstraint is what this build can read: any 1.x format.
const formatConstraint = "^1"

// header is the uncompressed-readable first line of a snapshot file.
type header struct {
	FormatVersion string    `json:"format_version"`
	SnapshotID    string    `json:"snapshot_id"`
	StateVersion  uint64    `json:"state_version"`
	Tick          uint64    `json:"tick"`
	Checksum      string    `json:"checksum"`
	CreatedAt     time.Time `json:"created_at"`
}

// writeFile stores a snapshot as a zstd stream: one JSON header line, then
// the JSON snapshot body.
func writeFile(path string, snap *state.Snapshot, tick uint64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return oops.With("path", path).Wrapf(err, "creating snapshot dir")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return oops.With("path", path).Wrapf(err, "creating snapshot file")
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return oops.Wrapf(err, "zstd writer")
	}

	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, err := json.Marshal(header{
		FormatVersion: FormatVersion,
		SnapshotID:    snap.ID.String(),
		StateVersion:  snap.Version,
		Tick:          tick,
		Checksum:      snap.Checksum,
		CreatedAt:     snap.Timestamp,
	})
	if err != nil {
		return oops.Wrapf(err, "encoding header")
	}
	if _, err := bw.Write(hb); err != nil {
		return oops.Wrapf(err, "writing header")
	}
	if err := bw.WriteByte('\n'); err != nil {
		return oops.Wrapf(err, "writing header")
	}

	if err := json.NewEncoder(bw).Encode(snap); err != nil {
		return oops.Wrapf(err, "encoding snapshot")
	}
	if err := bw.Flush(); err != nil {
		return oops.Wrapf(err, "flushing snapshot")
	}
	if err := enc.Close(); err != nil {
		return oops.Wrapf(err, "closing zstd stream")
	}
	return f.Close()
}

// readFile loads a snapshot file, enforcing the format compatibility
// constraint and verifying the stored checksum against the decoded state.
func readFile(path string) (*state.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, oops.With("path", path).Wrapf(err, "opening snapshot file")
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, oops.Wrapf(err, "zstd reader")
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, oops.Code(CodeIncompatibleFormat).
			With("path", path).
			Wrapf(ErrIncompatibleFormat, "snapshot file has no header")
	}
	var h header
	if err := json.Unmarshal(line, &h); err != nil {
		return nil, oops.Code(CodeIncompatibleFormat).
			With("path", path).
			Wrapf(ErrIncompatibleFormat, "unreadable snapshot header")
	}
	if err := checkFormat(h.FormatVersion); err != nil {
		return nil, err
	}

	var snap state.Snapshot
	if err := json.NewDecoder(br).Decode(&snap); err != nil {
		return nil, oops.Code(state.CodeCorruptedSnapshot).
			With("path", path).
			Wrapf(state.ErrCorruptedSnapshot, "decoding snapshot body")
	}
	if snap.State == nil || !snap.State.VerifyChecksum() || snap.Checksum != h.Checksum {
		return nil, oops.Code(state.CodeCorruptedSnapshot).
			With("path", path).
			With("header_checksum", h.Checksum).
			Wrap(state.ErrCorruptedSnapshot)
	}
	return &snap, nil
}

func checkFormat(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return oops.Code(CodeIncompatibleFormat).
			With("format_version", version).
			Wrapf(ErrIncompatibleFormat, "unparseable format version")
	}
	c, err := semver.NewConstraint(formatConstraint)
	if err != nil {
		return oops.Wrapf(err, "bad format constraint %q", formatConstraint)
	}
	if !c.Check(v) {
		return oops.Code(CodeIncompatibleFormat).
			With("format_version", version).
			With("supported", formatConstraint).
			Wrap(ErrIncompatibleFormat)
	}
	return nil
}
