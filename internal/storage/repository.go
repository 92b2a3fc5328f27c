// Package storage is the SQLite persistence port. The whole snapshot is
// replaced in one transaction on every save.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"

	"conti/internal/core"
	applog "conti/internal/log"
	"conti/internal/persist"
)

type SQLiteRepository struct {
	db   *sql.DB
	path string
}

var _ persist.Port = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// one writer at a time; sqlite serialises writes anyway
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, path: dbPath}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Name() string { return "sqlite" }

// Load reads the snapshot. An empty database is reported as not found.
func (r *SQLiteRepository) Load(ctx context.Context) (core.Snapshot, bool, error) {
	meta, err := r.readMeta(ctx)
	if err != nil {
		return core.Snapshot{}, false, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, amount, payer, participants, category, description, unit, shares_json, date
		FROM entries ORDER BY position`)
	if err != nil {
		return core.Snapshot{}, false, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var snap core.Snapshot
	for rows.Next() {
		var (
			id                                                              int64
			amount, payer, participants, category, desc, unit, shares, date string
		)
		if err := rows.Scan(&id, &amount, &payer, &participants, &category, &desc, &unit, &shares, &date); err != nil {
			return core.Snapshot{}, false, fmt.Errorf("scan entry: %w", err)
		}
		e, issues := core.DecodeRecord(core.RawRecord(map[string]any{
			"id":           id,
			"amount":       amount,
			"payer":        payer,
			"participants": participants,
			"category":     category,
			"description":  desc,
			"unit":         unit,
			"shares_json":  shares,
			"date":         date,
		}))
		for _, is := range issues {
			slog.WarnContext(ctx, "Ignoring malformed column",
				applog.FieldComponent, applog.ComponentStorage,
				applog.FieldEntryID, id,
				"issue", is.Error())
		}
		snap.Entries = append(snap.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return core.Snapshot{}, false, fmt.Errorf("iterate entries: %w", err)
	}

	snap.Categories, err = r.readCategories(ctx)
	if err != nil {
		return core.Snapshot{}, false, err
	}

	nextID, hasNext := meta["next_id"]
	if !hasNext && len(snap.Entries) == 0 && len(snap.Categories) == 0 {
		return core.Snapshot{}, false, nil
	}
	if n, err := strconv.Atoi(nextID); err == nil {
		snap.NextID = n
	} else {
		snap.NextID = len(snap.Entries) + 1
	}
	return snap, true, nil
}

func (r *SQLiteRepository) readMeta(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("query meta: %w", err)
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) readCategories(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM categories ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Save replaces the stored snapshot.
func (r *SQLiteRepository) Save(ctx context.Context, snap core.Snapshot) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.ErrorContext(ctx, "Failed to rollback transaction", "error", rbErr)
			}
		}
	}()

	for _, stmt := range []string{`DELETE FROM entries`, `DELETE FROM categories`, `DELETE FROM meta`} {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("reset tables: %w", err)
		}
	}

	insEntry, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (id, position, amount, payer, participants, category, description, unit, shares_json, date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare entry insert: %w", err)
	}
	defer insEntry.Close()
	for i, e := range snap.Entries {
		participants := e.Participants
		if participants == nil {
			participants = []string{}
		}
		pj, mErr := json.Marshal(participants)
		if mErr != nil {
			return fmt.Errorf("encode participants of entry %d: %w", e.ID, mErr)
		}
		sj, mErr := json.Marshal(e.Shares)
		if mErr != nil {
			return fmt.Errorf("encode shares of entry %d: %w", e.ID, mErr)
		}
		if _, err = insEntry.ExecContext(ctx, e.ID, i, core.FormatAmount(e.Amount), e.Payer, string(pj),
			e.Category, e.Description, e.Unit, string(sj), e.Date); err != nil {
			return fmt.Errorf("insert entry %d: %w", e.ID, err)
		}
	}

	for i, c := range snap.Categories {
		if _, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO categories (position, name) VALUES (?, ?)`, i, c); err != nil {
			return fmt.Errorf("insert category %q: %w", c, err)
		}
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES ('next_id', ?)`, strconv.Itoa(snap.NextID)); err != nil {
		return fmt.Errorf("write next id: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	slog.DebugContext(ctx, "Ledger saved to SQLite",
		applog.FieldComponent, applog.ComponentStorage,
		"path", r.path,
		applog.FieldEntries, len(snap.Entries),
		"categories", len(snap.Categories))
	return nil
}
