package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/amqp"
	"conti/internal/core"
	"conti/internal/fx"
	"conti/internal/ledger"
	applog "conti/internal/log"
	"conti/internal/persist/memory"
)

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*amqp.LedgerChangedMessage
	fail bool
}

func (p *recordingPublisher) PublishLedgerChanged(_ context.Context, msg *amqp.LedgerChangedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.msgs))
	for i, m := range p.msgs {
		out[i] = m.Operation
	}
	return out
}

func newService(t *testing.T, opts ...Option) *LedgerService {
	t.Helper()
	store := ledger.New(context.Background(), memory.New(), ledger.Options{})
	return NewLedgerService(store, opts...)
}

func dinner(amount string, payer string, participants ...string) ledger.NewEntry {
	return ledger.NewEntry{
		Amount:       amt(amount),
		Payer:        payer,
		Participants: participants,
		Category:     "Eating out",
		Date:         "2025-01-10",
	}
}

func TestLedgerService_PublishesSavedChanges(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newService(t, WithPublisher(pub))
	ctx := context.Background()

	e, err := svc.AddEntry(ctx, dinner("50", "Alice", "Alice", "Bob"))
	require.NoError(t, err)

	desc := "pizza"
	_, err = svc.EditEntry(ctx, e.ID, ledger.Patch{Description: &desc})
	require.NoError(t, err)

	added, err := svc.AddCategory(ctx, "Pets")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = svc.AddCategory(ctx, "Pets")
	require.NoError(t, err)
	assert.False(t, added)

	deleted, err := svc.DeleteEntry(ctx, 99)
	require.NoError(t, err)
	assert.False(t, deleted)
	deleted, err = svc.DeleteEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	require.NoError(t, svc.Clear(ctx))

	assert.Equal(t, []string{"add", "edit", "add_category", "delete", "clear"}, pub.ops())
	first := pub.msgs[0]
	assert.Equal(t, e.ID, first.EntryID)
	assert.Equal(t, 1, first.EntryCount)
	assert.Equal(t, 2, first.NextID)
}

func TestLedgerService_RejectedChangesAreNotPublished(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newService(t, WithPublisher(pub))
	ctx := context.Background()

	_, err := svc.AddEntry(ctx, dinner("0", "Alice", "Bob"))
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = svc.EditEntry(ctx, 7, ledger.Patch{})
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.Empty(t, pub.ops())
}

func TestLedgerService_PublishFailureKeepsChange(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Handler: slog.NewJSONHandler(&buf, nil)})
	pub := &recordingPublisher{fail: true}
	svc := newService(t, WithPublisher(pub), WithLogger(logger))

	_, err := svc.AddEntry(context.Background(), dinner("20", "Bob", "Alice"))
	require.NoError(t, err)
	assert.Len(t, svc.Entries(context.Background(), core.Period{}), 1)

	logs := buf.String()
	assert.Contains(t, logs, `"msg":"Ledger entry changed"`)
	assert.Contains(t, logs, `"msg":"Failed to publish ledger change"`)
	assert.Contains(t, logs, `"operation":"add"`)
	assert.Contains(t, logs, `"component":"ledger"`)
}

func TestLedgerService_Queries(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.AddEntry(ctx, dinner("50", "Alice", "Alice", "Bob"))
	require.NoError(t, err)
	_, err = svc.AddEntry(ctx, ledger.NewEntry{
		Amount: amt("30"), Payer: "Bob", Participants: []string{"Alice", "Bob"},
		Category: "Groceries", Date: "2025-02-03",
	})
	require.NoError(t, err)

	t.Run("entry lookup", func(t *testing.T) {
		e, err := svc.Entry(1)
		require.NoError(t, err)
		assert.Equal(t, "Alice", e.Payer)

		_, err = svc.Entry(42)
		var nf *core.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, 42, nf.ID)
	})

	t.Run("balances and settlements", func(t *testing.T) {
		sheet := svc.Balances(core.Period{})
		eur, ok := sheet.Unit("EUR")
		require.True(t, ok)
		assert.True(t, eur.Get("Alice").Equal(amt("10")))
		assert.True(t, eur.Get("Bob").Equal(amt("-10")))

		plans := svc.Settlements(core.Period{})
		require.Len(t, plans, 1)
		require.Len(t, plans[0].Transfers, 1)
		assert.Equal(t, "Bob pays Alice 10.00 EUR", plans[0].Transfers[0].String())

		jan := svc.Balances(core.Month(2025, 1))
		eur, _ = jan.Unit("EUR")
		assert.True(t, eur.Get("Alice").Equal(amt("25")))
	})

	t.Run("totals", func(t *testing.T) {
		year := svc.Totals(2025, 0)
		require.Len(t, year, 1)
		assert.True(t, year[0].Sum().Equal(amt("80")))

		feb := svc.Totals(2025, 2)
		require.Len(t, feb, 1)
		assert.Equal(t, "Groceries", feb[0].Categories[0].Category)

		assert.Empty(t, svc.Totals(2024, 0))
	})

	t.Run("periods", func(t *testing.T) {
		p := svc.Periods()
		assert.Equal(t, []int{2025}, p.Years)
		assert.Equal(t, []int{1, 2}, p.Months[2025])
	})

	t.Run("export", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, svc.ExportCSV(&buf, core.Month(2025, 1)))
		assert.Contains(t, buf.String(), "Eating out")
		assert.NotContains(t, buf.String(), "2025-02-03")
	})

	assert.EqualValues(t, 2, svc.Revision())
	assert.Len(t, svc.Snapshot().Entries, 2)
	assert.Equal(t, "memory", svc.Status().Backend)
}

func TestLedgerService_Converted(t *testing.T) {
	rates, err := fx.ParseRates("EUR=0.95")
	require.NoError(t, err)
	svc := newService(t, WithRates(fx.Table{Base: "CHF", Rates: rates, Source: "test"}))
	ctx := context.Background()

	_, err = svc.AddEntry(ctx, dinner("100", "Alice", "Alice", "Bob"))
	require.NoError(t, err)
	_, err = svc.AddEntry(ctx, ledger.NewEntry{
		Amount: amt("40"), Payer: "Bob", Participants: []string{"Alice", "Bob"}, Unit: "JPY",
	})
	require.NoError(t, err)

	view := svc.Converted(core.Period{})
	assert.Equal(t, "CHF", view.Base)
	assert.Equal(t, "test", view.Source)
	assert.Equal(t, []string{"JPY"}, view.Skipped)
	assert.True(t, view.Balances.Get("Alice").Equal(amt("47.5")))
	require.Len(t, view.Settlements, 1)
	assert.Equal(t, "Bob pays Alice 47.50 CHF", view.Settlements[0].String())
	assert.True(t, view.GrandTotal.Equal(amt("95")))
}

func TestLedgerService_ConcurrentAdds(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddEntry(ctx, dinner("10", "Alice", "Bob"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entries := svc.Entries(ctx, core.Period{})
	require.Len(t, entries, 20)
	seen := map[int]bool{}
	for _, e := range entries {
		seen[e.ID] = true
	}
	assert.Len(t, seen, 20)
}
