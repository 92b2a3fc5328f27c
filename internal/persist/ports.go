// Package persist declares the durability port consumed by the ledger store.
package persist

import (
	"context"

	"conti/internal/core"
)

// Ports for outbound adapters.
type (
	// Loader reads the last persisted snapshot. found is false when the backend
	// holds nothing yet; that is not an error.
	Loader interface {
		Load(ctx context.Context) (snap core.Snapshot, found bool, err error)
	}

	// Saver replaces the persisted snapshot with snap.
	Saver interface {
		Save(ctx context.Context, snap core.Snapshot) error
	}

	// Port is a whole-snapshot persistence backend.
	Port interface {
		Loader
		Saver
		// Name identifies the backend in logs and status reports.
		Name() string
	}
)
