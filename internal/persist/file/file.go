// Package file persists the ledger snapshot as a local JSON document.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"conti/internal/core"
)

// DefaultPath is used when no data file is configured.
const DefaultPath = "data/expenses_data.json"

type Store struct {
	path string
}

// New returns a store writing to path, or DefaultPath when path is empty.
func New(path string) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{path: path}
}

func (s *Store) Name() string { return "file" }

// Path returns the data file location.
func (s *Store) Path() string { return s.path }

// Load reads the snapshot. A missing file is reported as not found. Fields
// that cannot be decoded are logged and replaced by their defaults.
func (s *Store) Load(ctx context.Context) (core.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return core.Snapshot{}, false, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return core.Snapshot{}, false, nil
	}
	if err != nil {
		return core.Snapshot{}, false, fmt.Errorf("read %s: %w", s.path, err)
	}
	snap, issues, err := core.DecodeSnapshot(data)
	if err != nil {
		return core.Snapshot{}, false, fmt.Errorf("parse %s: %w", s.path, err)
	}
	for _, is := range issues {
		slog.WarnContext(ctx, "Ignoring malformed field in data file",
			"path", s.path,
			"issue", is.Error())
	}
	return snap, true, nil
}

// Save writes the snapshot atomically: the document goes to a temporary file
// in the target directory which is synced and then renamed over the target.
func (s *Store) Save(ctx context.Context, snap core.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "tmp_expenses_*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", s.path, err)
	}

	slog.DebugContext(ctx, "Saved data file",
		"path", s.path,
		"entries", len(snap.Entries))
	return nil
}
