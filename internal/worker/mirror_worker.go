// Package worker copies the authoritative ledger snapshot to a mirror
// backend, e.g. from SQLite to a spreadsheet people look at.
package worker

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"conti/internal/amqp"
	applog "conti/internal/log"
	"conti/internal/persist"
)

// MirrorWorker saves the source snapshot to the mirror whenever it changed.
type MirrorWorker struct {
	source persist.Port
	mirror persist.Port
	now    func() time.Time

	mu         sync.Mutex
	lastSum    [sha256.Size]byte
	mirrored   bool
	mirroredAt time.Time
}

func NewMirrorWorker(source, mirror persist.Port) *MirrorWorker {
	return &MirrorWorker{source: source, mirror: mirror, now: time.Now}
}

// HandleLedgerChanged mirrors the current source snapshot. Messages older
// than the last mirror run are already covered by it and are skipped.
func (w *MirrorWorker) HandleLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	w.mu.Lock()
	stale := w.mirrored && !msg.Timestamp.IsZero() && msg.Timestamp.Before(w.mirroredAt)
	w.mu.Unlock()
	if stale {
		slog.DebugContext(ctx, "Skipping stale ledger change",
			"message_id", msg.ID,
			applog.FieldOperation, msg.Operation,
			applog.FieldRevision, msg.Revision,
			"timestamp", msg.Timestamp)
		return nil
	}

	if _, err := w.MirrorNow(ctx); err != nil {
		return fmt.Errorf("mirror after %s: %w", msg.Operation, err)
	}
	return nil
}

// MirrorNow loads the source snapshot and saves it to the mirror unless it
// is identical to the last one mirrored. It reports whether it saved.
func (w *MirrorWorker) MirrorNow(ctx context.Context) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	started := w.now()
	snap, found, err := w.source.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", w.source.Name(), err)
	}
	if !found {
		slog.DebugContext(ctx, "Source holds no ledger yet", "source", w.source.Name())
		return false, nil
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return false, fmt.Errorf("fingerprint snapshot: %w", err)
	}
	sum := sha256.Sum256(data)
	if w.mirrored && sum == w.lastSum {
		w.mirroredAt = started
		return false, nil
	}

	if err := w.mirror.Save(ctx, snap); err != nil {
		return false, fmt.Errorf("save %s: %w", w.mirror.Name(), err)
	}
	w.lastSum = sum
	w.mirrored = true
	w.mirroredAt = started

	slog.InfoContext(ctx, "Mirrored ledger",
		applog.FieldOperation, applog.OpMirror,
		"source", w.source.Name(),
		"mirror", w.mirror.Name(),
		applog.FieldEntries, len(snap.Entries))
	return true, nil
}

// Run mirrors once, then on every tick until ctx is done. Failures are
// logged and retried on the next tick.
func (w *MirrorWorker) Run(ctx context.Context, interval time.Duration) error {
	if _, err := w.MirrorNow(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup mirror failed", applog.FieldError, err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.MirrorNow(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic mirror failed", applog.FieldError, err)
			}
		}
	}
}
