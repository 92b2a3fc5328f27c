package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
)

type fixedLister []core.Entry

func (f fixedLister) ListEntries(p core.Period) []core.Entry {
	var out []core.Entry
	for _, e := range f {
		if p.Matches(e.Date) {
			out = append(out, e)
		}
	}
	return out
}

func entry(id int, amount, unit, category, date string) core.Entry {
	return core.Entry{
		ID:           id,
		Amount:       decimal.RequireFromString(amount),
		Payer:        "Alice",
		Participants: []string{"Alice", "Bob"},
		Unit:         unit,
		Category:     category,
		Date:         date,
	}
}

var sample = fixedLister{
	entry(1, "10.10", "EUR", "Food", "2025-03-01"),
	entry(2, "5.05", "EUR", "Food", "2025-03-15"),
	entry(3, "20", "CHF", "Transport", "2025-03-20"),
	entry(4, "7", "EUR", "Home", "2025-04-02"),
	entry(5, "99", "EUR", "Food", "2024-03-01"),
	entry(6, "1", "EUR", "Food", "not-a-date"),
}

func TestTotalsByMonth(t *testing.T) {
	got := TotalsByMonth(sample, 2025, 3)
	require.Len(t, got, 2)
	assert.Equal(t, "EUR", got[0].Unit)
	assert.Equal(t, "15.15", core.FormatAmount(got.Map()["EUR"]["Food"]))
	assert.Equal(t, "20.00", core.FormatAmount(got.Map()["CHF"]["Transport"]))
}

func TestTotalsByYear(t *testing.T) {
	got := TotalsByYear(sample, 2025)
	eur, ok := got.Unit("EUR")
	require.True(t, ok)
	assert.Equal(t, []string{"Food", "Home"}, []string{eur.Categories[0].Category, eur.Categories[1].Category})
	assert.Equal(t, "22.15", core.FormatAmount(eur.Sum()))
}

func TestEmptyMonthIsEmptyNotError(t *testing.T) {
	got := TotalsByMonth(sample, 2030, 1)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Empty(t, got.Map())
}

func TestWriteCSV(t *testing.T) {
	e := entry(7, "90", "EUR", "Home", "2025-01-01")
	e.Description = "rent, january"
	e.Shares = core.Shares{{Participant: "Alice", Amount: decimal.NewFromInt(60)}, {Participant: "Bob", Amount: decimal.NewFromInt(30)}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []core.Entry{e}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "id,date,amount,unit,payer,participants,category,description,shares", lines[0])
	assert.Equal(t, `7,2025-01-01,90.00,EUR,Alice,Alice;Bob,Home,"rent, january",Alice=60.00;Bob=30.00`, lines[1])
	assert.Equal(t, "unit,category,total", lines[3])
	assert.Equal(t, "EUR,Home,90.00", lines[4])
}
