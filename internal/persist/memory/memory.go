// Package memory is a non-durable persistence port, used for tests and for
// sessions that run without storage.
package memory

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"conti/internal/core"
)

type Store struct {
	mu    sync.Mutex
	snap  core.Snapshot
	found bool
	saves int
}

// New returns an empty store. A store created with extra categories reports
// them on the first Load so that a ledger picks them up.
func New(categories ...string) *Store {
	s := &Store{}
	if cats := dedupe(categories); len(cats) > 0 {
		s.snap = core.Snapshot{NextID: 1, Categories: cats}
		s.found = true
	}
	return s
}

// NewFromFiles seeds categories from base/seed_categories.txt when present.
func NewFromFiles(base string) *Store {
	return New(readLines(filepath.Join(base, "seed_categories.txt"))...)
}

func (s *Store) Name() string { return "memory" }

// Load returns a copy of the last saved snapshot.
func (s *Store) Load(ctx context.Context) (core.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return core.Snapshot{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.found {
		return core.Snapshot{}, false, nil
	}
	return s.snap.Clone(), true, nil
}

// Save keeps a deep copy of snap.
func (s *Store) Save(ctx context.Context, snap core.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap.Clone()
	s.found = true
	s.saves++
	return nil
}

// Saves reports how many times Save succeeded.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
