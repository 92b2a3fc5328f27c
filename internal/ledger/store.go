// Package ledger holds the in-memory expense store. The Store is the only
// writer of ledger state; every mutation is persisted as a whole snapshot
// through a persist.Port.
//
// A Store is owned by one logical session and does no locking of its own.
// Callers that share a Store between goroutines serialise access themselves
// (see services.LedgerService).
package ledger

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"conti/internal/core"
	applog "conti/internal/log"
	"conti/internal/persist"
)

// Options tunes a Store.
type Options struct {
	// ReloadBeforeMutate re-hydrates from the port before every mutating call.
	// Enable it for backends shared between sessions; it shrinks the
	// lost-update window but does not close it (last write wins).
	ReloadBeforeMutate bool

	Logger *slog.Logger
}

type (
	// NewEntry carries the caller supplied fields of an entry to add.
	NewEntry struct {
		Amount       decimal.Decimal
		Payer        string
		Participants []string
		Category     string
		Description  string
		Unit         string
		Shares       core.Shares
		Date         string
	}

	// Patch lists the fields to replace on an existing entry; nil fields are
	// left unchanged.
	Patch struct {
		Amount       *decimal.Decimal
		Payer        *string
		Participants *[]string
		Category     *string
		Description  *string
		Unit         *string
		Shares       *core.Shares
		Date         *string
	}

	// Periods lists the years and, per year, the months that have dated entries.
	Periods struct {
		Years  []int         `json:"years"`
		Months map[int][]int `json:"months"`
	}

	// Status describes the durability of the store.
	Status struct {
		Backend string `json:"backend"`
		Durable bool   `json:"durable"`
		Reason  string `json:"reason,omitempty"`
	}
)

type Store struct {
	port persist.Port
	opts Options
	log  *slog.Logger

	entries    []core.Entry
	nextID     int
	categories []string
	revision   uint64

	loadErr error
	saveErr error
}

// degrader is implemented by ports that can serve from a fallback backend.
type degrader interface {
	Degraded() string
}

// New builds a store and hydrates it from port. A load failure is logged and
// leaves the store empty with the default categories; Status reports it.
func New(ctx context.Context, port persist.Port, opts Options) *Store {
	s := &Store{port: port, opts: opts, log: opts.Logger}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.hydrate(core.EmptySnapshot())
	if err := s.reload(ctx); err != nil {
		s.log.WarnContext(ctx, "Starting with an empty ledger",
			applog.FieldBackend, port.Name(),
			applog.FieldError, err)
	}
	return s
}

// reload replaces the in-memory state with the port's snapshot. When the port
// has nothing stored the current state is kept.
func (s *Store) reload(ctx context.Context) error {
	snap, found, err := s.port.Load(ctx)
	if err != nil {
		s.loadErr = &core.PersistenceError{Op: applog.OpLoad, Backend: s.port.Name(), Err: err}
		return s.loadErr
	}
	s.loadErr = nil
	if !found {
		return nil
	}
	s.hydrate(snap)
	s.revision++
	s.log.DebugContext(ctx, "Loaded ledger",
		applog.FieldBackend, s.port.Name(),
		applog.FieldEntries, len(s.entries),
		applog.FieldNextID, s.nextID)
	return nil
}

// Reload re-hydrates the store from its port. Readers of a backend shared
// with other sessions call it to pick up their writes.
func (s *Store) Reload(ctx context.Context) error {
	return s.reload(ctx)
}

// hydrate installs snap, repairing ids: entries with a non-positive or
// duplicate id get fresh ids above the largest valid one, and the next id
// always exceeds every id in use.
func (s *Store) hydrate(snap core.Snapshot) {
	entries := make([]core.Entry, 0, len(snap.Entries))
	maxID := 0
	seen := make(map[int]bool, len(snap.Entries))
	for _, e := range snap.Entries {
		if e.ID > 0 && !seen[e.ID] {
			seen[e.ID] = true
			maxID = max(maxID, e.ID)
		}
	}
	used := make(map[int]bool, len(snap.Entries))
	repaired := 0
	for _, e := range snap.Entries {
		e = e.Normalize()
		if e.ID <= 0 || used[e.ID] {
			maxID++
			e.ID = maxID
			repaired++
		}
		used[e.ID] = true
		entries = append(entries, e)
	}
	if repaired > 0 {
		s.log.Warn("Repaired entry ids", "count", repaired)
	}

	s.entries = entries
	s.nextID = max(snap.NextID, maxID+1, 1)
	s.categories = core.MergeCategories(snap.Categories)
}

// state is a restorable copy of everything a mutation can touch.
type state struct {
	entries    []core.Entry
	nextID     int
	categories []string
	revision   uint64
}

func (s *Store) capture() state {
	return state{
		entries:    slices.Clone(s.entries),
		nextID:     s.nextID,
		categories: slices.Clone(s.categories),
		revision:   s.revision,
	}
}

func (s *Store) restore(st state) {
	s.entries = st.entries
	s.nextID = st.nextID
	s.categories = st.categories
	s.revision = st.revision
}

// prepare runs before each mutation.
func (s *Store) prepare(ctx context.Context) {
	if !s.opts.ReloadBeforeMutate {
		return
	}
	if err := s.reload(ctx); err != nil {
		s.log.WarnContext(ctx, "Reload before mutate failed, using cached state",
			applog.FieldBackend, s.port.Name(),
			applog.FieldError, err)
	}
}

// persist saves the current state. On failure the state captured in prev is
// restored and a *core.PersistenceError is returned.
func (s *Store) persist(ctx context.Context, op string, prev state) error {
	s.revision++
	snap := s.Snapshot()
	if err := s.port.Save(ctx, snap); err != nil {
		s.restore(prev)
		s.saveErr = &core.PersistenceError{Op: applog.OpSave, Backend: s.port.Name(), Err: err}
		s.log.ErrorContext(ctx, "Failed to persist ledger, change reverted",
			applog.FieldOperation, op,
			applog.FieldBackend, s.port.Name(),
			applog.FieldError, err)
		return s.saveErr
	}
	s.saveErr = nil
	s.log.InfoContext(ctx, "Saved ledger",
		applog.FieldOperation, op,
		applog.FieldBackend, s.port.Name(),
		applog.FieldEntries, len(snap.Entries))
	return nil
}

// AddEntry validates e, assigns it the next id and persists the ledger.
func (s *Store) AddEntry(ctx context.Context, ne NewEntry) (core.Entry, error) {
	e := core.Entry{
		Amount:       ne.Amount,
		Payer:        ne.Payer,
		Participants: slices.Clone(ne.Participants),
		Category:     ne.Category,
		Description:  ne.Description,
		Unit:         ne.Unit,
		Shares:       slices.Clone(ne.Shares),
		Date:         ne.Date,
	}.Normalize()
	if err := e.Validate(); err != nil {
		return core.Entry{}, err
	}

	s.prepare(ctx)
	prev := s.capture()
	e.ID = s.nextID
	s.nextID++
	s.entries = append(s.entries, e)
	s.registerCategory(e.Category)
	if err := s.persist(ctx, applog.OpAdd, prev); err != nil {
		return core.Entry{}, err
	}
	return e.Clone(), nil
}

// EditEntry applies p to the entry with the given id. The result is
// normalised, and the rules touching the supplied fields are checked as for a
// new entry; fields the patch leaves alone are not re-validated.
func (s *Store) EditEntry(ctx context.Context, id int, p Patch) (core.Entry, error) {
	s.prepare(ctx)
	i := s.indexOf(id)
	if i < 0 {
		return core.Entry{}, &core.NotFoundError{ID: id}
	}
	e := s.entries[i].Clone()
	var changed []string
	if p.Amount != nil {
		e.Amount = *p.Amount
		changed = append(changed, "amount")
	}
	if p.Payer != nil {
		e.Payer = *p.Payer
		changed = append(changed, "payer")
	}
	if p.Participants != nil {
		e.Participants = slices.Clone(*p.Participants)
		changed = append(changed, "participants")
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Unit != nil {
		e.Unit = *p.Unit
	}
	if p.Shares != nil {
		e.Shares = slices.Clone(*p.Shares)
		changed = append(changed, "shares")
	}
	if p.Date != nil {
		e.Date = *p.Date
		changed = append(changed, "date")
	}
	e = e.Normalize()
	if err := e.ValidateChanged(changed...); err != nil {
		return core.Entry{}, err
	}

	prev := s.capture()
	s.entries[i] = e
	s.registerCategory(e.Category)
	if err := s.persist(ctx, applog.OpEdit, prev); err != nil {
		return core.Entry{}, err
	}
	return e.Clone(), nil
}

// DeleteEntry removes the entry with the given id. It reports false, and
// changes nothing, when no such entry exists. Remaining ids are untouched and
// the next id never decreases.
func (s *Store) DeleteEntry(ctx context.Context, id int) (bool, error) {
	s.prepare(ctx)
	s.log.InfoContext(ctx, "Attempting to delete entry", applog.FieldEntryID, id)
	i := s.indexOf(id)
	if i < 0 {
		return false, nil
	}

	prev := s.capture()
	removed := s.entries[i]
	s.entries = slices.Delete(s.entries, i, i+1)
	maxID := 0
	for _, e := range s.entries {
		maxID = max(maxID, e.ID)
	}
	s.nextID = max(s.nextID, maxID+1)
	if err := s.persist(ctx, applog.OpDelete, prev); err != nil {
		return false, err
	}
	s.log.InfoContext(ctx, "Deleted entry",
		applog.FieldEntryID, id,
		applog.FieldCategory, removed.Category,
		applog.FieldAmount, core.FormatAmount(removed.Amount),
		"remaining", len(s.entries))
	return true, nil
}

// Clear drops every entry, resets the categories to the defaults and
// restarts ids at 1.
func (s *Store) Clear(ctx context.Context) error {
	prev := s.capture()
	s.entries = nil
	s.categories = core.DefaultCategories()
	s.nextID = 1
	return s.persist(ctx, applog.OpClear, prev)
}

// ListEntries returns copies of the entries in p, in insertion order. The zero
// Period returns every entry; otherwise entries without a parsable date are
// left out.
func (s *Store) ListEntries(p core.Period) []core.Entry {
	out := make([]core.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if p.Matches(e.Date) {
			out = append(out, e.Clone())
		}
	}
	return out
}

// Entry returns a copy of the entry with the given id.
func (s *Store) Entry(id int) (core.Entry, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.entries[i].Clone(), true
	}
	return core.Entry{}, false
}

// Categories returns a copy of the category registry.
func (s *Store) Categories() []string {
	return slices.Clone(s.categories)
}

// AddCategory registers name. It reports false without error when the
// category already exists.
func (s *Store) AddCategory(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, &core.ValidationError{Field: "category", Err: core.ErrBlankCategory}
	}
	s.prepare(ctx)
	if slices.Contains(s.categories, name) {
		return false, nil
	}
	prev := s.capture()
	s.categories = append(s.categories, name)
	if err := s.persist(ctx, applog.OpCategory, prev); err != nil {
		return false, err
	}
	return true, nil
}

// AvailablePeriods lists, in ascending order, the years with dated entries
// and the months of each year.
func (s *Store) AvailablePeriods() Periods {
	months := map[int][]int{}
	for _, e := range s.entries {
		d, ok := core.ParseDate(e.Date)
		if !ok {
			continue
		}
		y, m := d.Year(), int(d.Month())
		if !slices.Contains(months[y], m) {
			months[y] = append(months[y], m)
		}
	}
	out := Periods{Years: make([]int, 0, len(months)), Months: months}
	for y, ms := range months {
		slices.Sort(ms)
		out.Years = append(out.Years, y)
	}
	slices.Sort(out.Years)
	return out
}

// Snapshot returns a deep copy of the persisted form of the store.
func (s *Store) Snapshot() core.Snapshot {
	return core.Snapshot{
		NextID:     s.nextID,
		Entries:    s.ListEntries(core.Period{}),
		Categories: slices.Clone(s.categories),
	}
}

// NextID returns the id the next added entry will receive.
func (s *Store) NextID() int { return s.nextID }

// Revision changes whenever the ledger state changes.
func (s *Store) Revision() uint64 { return s.revision }

// Status reports which backend is in use and whether writes are durable.
func (s *Store) Status() Status {
	st := Status{Backend: s.port.Name(), Durable: s.port.Name() != "memory"}
	if d, ok := s.port.(degrader); ok {
		if reason := d.Degraded(); reason != "" {
			st.Reason = reason
		}
	}
	switch {
	case s.saveErr != nil:
		st.Durable = false
		st.Reason = s.saveErr.Error()
	case s.loadErr != nil:
		st.Durable = false
		st.Reason = s.loadErr.Error()
	case !st.Durable && st.Reason == "":
		st.Reason = "running without durable storage"
	}
	return st
}

func (s *Store) indexOf(id int) int {
	return slices.IndexFunc(s.entries, func(e core.Entry) bool { return e.ID == id })
}

func (s *Store) registerCategory(name string) {
	if name != "" && !slices.Contains(s.categories, name) {
		s.categories = append(s.categories, name)
	}
}
