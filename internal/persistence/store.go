// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

// Package persistence stores simulation snapshots on disk: one
// zstd-compressed file per snapshot plus a sqlite catalog for listing,
// lookup, and pruning.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	_ "modernc.org/sqlite"

	"github.com/guildhall/guildhall/internal/state"
)

// Sentinel errors for the persistence layer.
var (
	ErrSnapshotNotFound   = errors.New("snapshot not found")
	ErrIncompatibleFormat = errors.New("incompatible snapshot format")
)

// Error codes attached via oops.
const (
	CodeSnapshotNotFound   = "SNAPSHOT_NOT_FOUND"
	CodeIncompatibleFormat = "INCOMPATIBLE_FORMAT"
)

// Entry is one catalog row.
type Entry struct {
	ID        string
	Version   uint64
	Tick      uint64
	Checksum  string
	Path      string
	CreatedAt time.Time
}

// StoreConfig tunes a Store. Zero values get defaults.
type StoreConfig struct {
	Dir    string
	Keep   int // snapshots retained per prune; 0 disables pruning
	Logger *slog.Logger
}

// Store is the snapshot store. Safe for use from a single goroutine; the
// simulation loop owns it.
type Store struct {
	dir    string
	keep   int
	db     *sql.DB
	logger *slog.Logger
}

// Open creates the store directory and catalog as needed.
func Open(cfg StoreConfig) (*Store, error) {
	if cfg.Dir == "" {
		return nil, oops.Errorf("snapshot store needs a directory")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, oops.With("dir", cfg.Dir).Wrapf(err, "creating snapshot dir")
	}

	db, err := sql.Open("sqlite", filepath.Join(cfg.Dir, "catalog.db"))
	if err != nil {
		return nil, oops.Wrapf(err, "opening snapshot catalog")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initCatalog(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		dir:    cfg.Dir,
		keep:   cfg.Keep,
		db:     db,
		logger: logger,
	}, nil
}

// Close releases the catalog.
func (s *Store) Close() error {
	return s.db.Close() //nolint:wrapcheck
}

func initCatalog(db *sql.DB) error {
	// WAL keeps catalog writes off the simulation loop's critical path.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return oops.Wrapf(err, "applying pragma")
		}
	}
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		checksum TEXT NOT NULL,
		path TEXT NOT NULL,
		created_at TEXT NOT NULL
	);`)
	if err != nil {
		return oops.Wrapf(err, "creating snapshot catalog schema")
	}
	return nil
}

// Save writes the snapshot file and records it in the catalog. Transient
// I/O failures are retried with capped exponential backoff. When a keep
// limit is configured, older snapshots beyond it are pruned afterwards.
func (s *Store) Save(ctx context.Context, snap *state.Snapshot, tick uint64) (string, error) {
	if snap == nil || snap.State == nil {
		return "", oops.Code(state.CodeInvalidSnapshot).
			Wrapf(state.ErrInvalidSnapshot, "nothing to save")
	}

	path := filepath.Join(s.dir, fmt.Sprintf("snap-%s.json.zst", snap.ID))

	backoff := retry.WithMaxRetries(3, retry.NewExponential(50*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := writeFile(path, snap, tick); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return "", oops.With("path", path).Wrapf(err, "writing snapshot")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, version, tick, checksum, path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID.String(), snap.Version, tick, snap.Checksum, path,
		snap.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", oops.With("snapshot_id", snap.ID.String()).
			Wrapf(err, "cataloging snapshot")
	}

	if s.keep > 0 {
		if err := s.Prune(ctx, s.keep); err != nil {
			s.logger.Warn("snapshot prune failed",
				slog.String("error", err.Error()),
			)
		}
	}
	return path, nil
}

// Load reads one snapshot by id.
func (s *Store) Load(ctx context.Context, id string) (*state.Snapshot, error) {
	var path string
	err := s.db.QueryRowContext(ctx,
		`SELECT path FROM snapshots WHERE id = ?`, id).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code(CodeSnapshotNotFound).
			With("snapshot_id", id).
			Wrap(ErrSnapshotNotFound)
	}
	if err != nil {
		return nil, oops.Wrapf(err, "querying snapshot catalog")
	}
	return readFile(path)
}

// Latest reads the most recent snapshot, by tick then insertion order.
func (s *Store) Latest(ctx context.Context) (*state.Snapshot, error) {
	var path string
	err := s.db.QueryRowContext(ctx,
		`SELECT path FROM snapshots ORDER BY tick DESC, id DESC LIMIT 1`).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code(CodeSnapshotNotFound).
			Wrapf(ErrSnapshotNotFound, "store is empty")
	}
	if err != nil {
		return nil, oops.Wrapf(err, "querying snapshot catalog")
	}
	return readFile(path)
}

// List returns all catalog entries, newest first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, version, tick, checksum, path, created_at
		 FROM snapshots ORDER BY tick DESC, id DESC`)
	if err != nil {
		return nil, oops.Wrapf(err, "querying snapshot catalog")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.ID, &e.Version, &e.Tick, &e.Checksum, &e.Path, &created); err != nil {
			return nil, oops.Wrapf(err, "scanning catalog row")
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err() //nolint:wrapcheck
}

// Prune deletes all but the newest keep snapshots, files included.
func (s *Store) Prune(ctx context.Context, keep int) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path FROM snapshots ORDER BY tick DESC, id DESC LIMIT -1 OFFSET ?`,
		keep)
	if err != nil {
		return oops.Wrapf(err, "querying prune candidates")
	}
	defer rows.Close()

	type victim struct{ id, path string }
	var victims []victim
	for rows.Next() {
		var v victim
		if err := rows.Scan(&v.id, &v.path); err != nil {
			return oops.Wrapf(err, "scanning prune candidate")
		}
		victims = append(victims, v)
	}
	if err := rows.Err(); err != nil {
		return oops.Wrapf(err, "reading prune candidates")
	}

	for _, v := range victims {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM snapshots WHERE id = ?`, v.id); err != nil {
			return oops.With("snapshot_id", v.id).Wrapf(err, "deleting catalog row")
		}
		if err := os.Remove(v.path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("snapshot file removal failed",
				slog.String("path", v.path),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
