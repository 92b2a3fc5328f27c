package services

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"conti/internal/amqp"
	"conti/internal/balance"
	"conti/internal/core"
	"conti/internal/fx"
	"conti/internal/ledger"
	applog "conti/internal/log"
	"conti/internal/report"
	"conti/internal/settle"
)

// Publisher announces saved ledger changes to other processes.
type Publisher interface {
	PublishLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error
}

// ConvertedView is the ledger expressed in the base unit of the rate table.
type ConvertedView struct {
	Base        string
	Source      string
	AsOf        string
	Balances    balance.Unit
	Settlements []settle.Transfer
	Totals      report.UnitTotals
	GrandTotal  decimal.Decimal
	Skipped     []string
}

// LedgerService serialises access to one ledger store so that it can be
// shared by concurrent HTTP handlers, and announces every saved change
// through the publisher.
type LedgerService struct {
	mu        sync.Mutex
	store     *ledger.Store
	publisher Publisher
	rates     fx.Table
	refresh   bool
	log       *applog.StructuredLogger
}

// Option configures a LedgerService.
type Option func(*LedgerService)

// WithPublisher sends a LedgerChanged message after each saved mutation.
func WithPublisher(p Publisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

// WithLogger sets the logger that records changes and publish failures.
func WithLogger(l *applog.Logger) Option {
	return func(s *LedgerService) { s.log = applog.NewStructuredLogger(l) }
}

// WithRates sets the table used by Converted.
func WithRates(t fx.Table) Option {
	return func(s *LedgerService) { s.rates = t }
}

// WithRefreshOnRead reloads the store before serving the entry list, for
// backends other sessions write to.
func WithRefreshOnRead(on bool) Option {
	return func(s *LedgerService) { s.refresh = on }
}

func NewLedgerService(store *ledger.Store, opts ...Option) *LedgerService {
	s := &LedgerService{store: store, log: applog.NewStructuredLogger(applog.Default())}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LedgerService) AddEntry(ctx context.Context, ne ledger.NewEntry) (core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.store.AddEntry(ctx, ne)
	if err != nil {
		return core.Entry{}, err
	}
	s.log.LogEntryChange(ctx, applog.OpAdd, e, s.store.Revision())
	s.notify(ctx, applog.OpAdd, e.ID)
	return e, nil
}

func (s *LedgerService) EditEntry(ctx context.Context, id int, p ledger.Patch) (core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.store.EditEntry(ctx, id, p)
	if err != nil {
		return core.Entry{}, err
	}
	s.log.LogEntryChange(ctx, applog.OpEdit, e, s.store.Revision())
	s.notify(ctx, applog.OpEdit, e.ID)
	return e, nil
}

// DeleteEntry reports false without error when id is unknown.
func (s *LedgerService) DeleteEntry(ctx context.Context, id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted, err := s.store.DeleteEntry(ctx, id)
	if err != nil || !deleted {
		return deleted, err
	}
	s.notify(ctx, applog.OpDelete, id)
	return true, nil
}

func (s *LedgerService) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	s.notify(ctx, applog.OpClear, 0)
	return nil
}

// AddCategory reports false without error when the category exists.
func (s *LedgerService) AddCategory(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added, err := s.store.AddCategory(ctx, name)
	if err != nil || !added {
		return added, err
	}
	s.notify(ctx, applog.OpCategory, 0)
	return true, nil
}

// Entries lists the entries of p, refreshing first when configured to.
func (s *LedgerService) Entries(ctx context.Context, p core.Period) []core.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refresh {
		if err := s.store.Reload(ctx); err != nil {
			slog.WarnContext(ctx, "Refresh failed, serving cached entries", applog.FieldError, err)
		}
	}
	return s.store.ListEntries(p)
}

// Entry returns the entry with id or a *core.NotFoundError.
func (s *LedgerService) Entry(id int) (core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.store.Entry(id)
	if !ok {
		return core.Entry{}, &core.NotFoundError{ID: id}
	}
	return e, nil
}

func (s *LedgerService) Categories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Categories()
}

func (s *LedgerService) Periods() ledger.Periods {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.AvailablePeriods()
}

// Balances computes net positions of the entries in p.
func (s *LedgerService) Balances(p core.Period) balance.Sheet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return balance.Compute(s.store.ListEntries(p))
}

// Settlements suggests transfers clearing the balances of p, per unit.
func (s *LedgerService) Settlements(p core.Period) []settle.Plan {
	return settle.Suggest(s.Balances(p))
}

// Totals sums amounts per unit and category for a month, or for the whole
// year when month is 0.
func (s *LedgerService) Totals(year, month int) report.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	if month == 0 {
		return report.TotalsByYear(s.store, year)
	}
	return report.TotalsByMonth(s.store, year, month)
}

// Converted folds balances, settlements and totals of p into the base unit.
func (s *LedgerService) Converted(p core.Period) ConvertedView {
	s.mu.Lock()
	entries := s.store.ListEntries(p)
	s.mu.Unlock()

	bal, skippedBal := s.rates.ConvertSheet(balance.Compute(entries))
	totals := report.Sum(entries)
	unitTotals, skippedTotals := s.rates.ConvertTotals(totals)
	grand, _ := s.rates.GrandTotal(totals)

	skipped := fx.Skipped{}
	for u, v := range skippedBal {
		skipped[u] = v
	}
	for u, v := range skippedTotals {
		skipped[u] = v
	}

	return ConvertedView{
		Base:        s.rates.Base,
		Source:      s.rates.Source,
		AsOf:        s.rates.AsOf,
		Balances:    bal,
		Settlements: settle.SuggestUnit(bal),
		Totals:      unitTotals,
		GrandTotal:  grand,
		Skipped:     skipped.Units(),
	}
}

// ExportCSV writes the entries of p and their totals as CSV.
func (s *LedgerService) ExportCSV(w io.Writer, p core.Period) error {
	s.mu.Lock()
	entries := s.store.ListEntries(p)
	s.mu.Unlock()
	return report.WriteCSV(w, entries)
}

func (s *LedgerService) Status() ledger.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Status()
}

// Revision identifies the current ledger state; it changes on every mutation.
func (s *LedgerService) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Revision()
}

func (s *LedgerService) Snapshot() core.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Snapshot()
}

// notify publishes a change; failures are logged and never undo the saved
// mutation. Called with mu held.
func (s *LedgerService) notify(ctx context.Context, op string, entryID int) {
	if s.publisher == nil {
		return
	}
	snap := s.store.Snapshot()
	msg := amqp.NewLedgerChangedMessage(op, entryID, s.store.Revision(), snap.NextID, len(snap.Entries))
	if err := s.publisher.PublishLedgerChanged(ctx, msg); err != nil {
		fields := applog.NewFields()
		fields[applog.FieldEntryID] = entryID
		fields[applog.FieldRevision] = msg.Revision
		s.log.LogError(ctx, "Failed to publish ledger change", err, applog.ComponentLedger, op, fields)
	}
}
