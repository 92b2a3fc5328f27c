// Package fallback chains two persistence ports so that a failing primary
// backend (typically the remote spreadsheet) degrades to a local one instead
// of losing writes.
//
// Once a save has landed only on the secondary, the secondary holds the newest
// state: loads are served from it, and the degraded reason stays set, until a
// save reaches the primary again.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"conti/internal/core"
	applog "conti/internal/log"
	"conti/internal/persist"
)

type Chain struct {
	primary   persist.Port
	secondary persist.Port

	mu      sync.Mutex
	served  string
	reason  string
	pending bool
}

func New(primary, secondary persist.Port) *Chain {
	return &Chain{primary: primary, secondary: secondary, served: primary.Name()}
}

// Name reports the backend that served the last call.
func (c *Chain) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.served
}

// Degraded returns the last primary failure, or "" while the primary is healthy.
func (c *Chain) Degraded() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Pending reports whether the secondary holds writes the primary has not seen.
func (c *Chain) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

func (c *Chain) Load(ctx context.Context) (core.Snapshot, bool, error) {
	if c.Pending() {
		snap, found, err := c.secondary.Load(ctx)
		if err != nil {
			return core.Snapshot{}, false, fmt.Errorf("fallback %s holds unsynced writes: %w", c.secondary.Name(), err)
		}
		c.mu.Lock()
		c.served = c.secondary.Name()
		c.mu.Unlock()
		return snap, found, nil
	}

	snap, found, err := c.primary.Load(ctx)
	if err == nil && found {
		c.record(c.primary.Name(), "")
		return snap, true, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return core.Snapshot{}, false, err
		}
		slog.WarnContext(ctx, "Primary load failed, trying fallback",
			"primary", c.primary.Name(),
			"fallback", c.secondary.Name(),
			applog.FieldError, err)
	}

	snap2, found2, err2 := c.secondary.Load(ctx)
	if err2 != nil {
		if err != nil {
			return core.Snapshot{}, false, errors.Join(err, err2)
		}
		// primary answered "nothing stored"; trust it
		c.record(c.primary.Name(), "")
		return core.Snapshot{}, false, nil
	}
	if err != nil {
		c.record(c.secondary.Name(), err.Error())
	} else if found2 {
		c.record(c.secondary.Name(), "")
	}
	return snap2, found2, nil
}

func (c *Chain) Save(ctx context.Context, snap core.Snapshot) error {
	err := c.primary.Save(ctx, snap)
	if err == nil {
		if c.Pending() {
			slog.InfoContext(ctx, "Primary caught up with fallback",
				"primary", c.primary.Name(),
				"fallback", c.secondary.Name())
		}
		c.mu.Lock()
		c.pending = false
		c.mu.Unlock()
		c.record(c.primary.Name(), "")
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	slog.WarnContext(ctx, "Primary save failed, falling back",
		"primary", c.primary.Name(),
		"fallback", c.secondary.Name(),
		applog.FieldEntries, len(snap.Entries),
		applog.FieldError, err)

	if err2 := c.secondary.Save(ctx, snap); err2 != nil {
		return fmt.Errorf("primary %s: %w; fallback %s: %w", c.primary.Name(), err, c.secondary.Name(), err2)
	}
	c.mu.Lock()
	c.pending = true
	c.mu.Unlock()
	c.record(c.secondary.Name(), err.Error())
	return nil
}

func (c *Chain) record(name, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.served = name
	c.reason = reason
}
