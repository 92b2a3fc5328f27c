package balance

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func entry(amount, payer string, participants ...string) core.Entry {
	return core.Entry{Amount: d(amount), Payer: payer, Participants: participants, Unit: "EUR"}
}

func TestEqualSplitScenario(t *testing.T) {
	sheet := Compute([]core.Entry{
		entry("100", "Alice", "Alice", "Bob"),
		entry("50", "Bob", "Alice", "Bob"),
	})
	eur, ok := sheet.Unit("EUR")
	require.True(t, ok)
	assert.Equal(t, "25.00", core.FormatAmount(eur.Get("Alice")))
	assert.Equal(t, "-25.00", core.FormatAmount(eur.Get("Bob")))
}

func TestCustomSharesScenario(t *testing.T) {
	e := core.Entry{
		Amount:       d("90"),
		Payer:        "Alice",
		Participants: []string{"Alice", "Bob", "Carol"},
		Unit:         "EUR",
		Shares:       core.Shares{{Participant: "Alice", Amount: d("30")}, {Participant: "Bob", Amount: d("30")}, {Participant: "Carol", Amount: d("30")}},
	}
	eur, _ := Compute([]core.Entry{e}).Unit("EUR")
	assert.True(t, eur.Get("Alice").Equal(d("60")))
	assert.True(t, eur.Get("Bob").Equal(d("-30")))
	assert.True(t, eur.Get("Carol").Equal(d("-30")))
}

func TestUnitsAreKeptApart(t *testing.T) {
	a := entry("10", "Alice", "Alice", "Bob")
	b := entry("30", "Bob", "Alice", "Bob")
	b.Unit = "CHF"
	sheet := Compute([]core.Entry{a, b})
	require.Len(t, sheet, 2)
	assert.Equal(t, "EUR", sheet[0].Code)
	assert.Equal(t, "CHF", sheet[1].Code)
	assert.True(t, sheet.Map()["CHF"]["Alice"].Equal(d("-15")))
	assert.True(t, sheet.Map()["EUR"]["Alice"].Equal(d("5")))
}

func TestEntriesWithoutParticipantsAreSkipped(t *testing.T) {
	sheet := Compute([]core.Entry{entry("10", "Alice")})
	assert.Empty(t, sheet)
}

func TestPositionsKeepFirstSeenOrder(t *testing.T) {
	sheet := Compute([]core.Entry{entry("30", "Carol", "Bob", "Alice", "Carol")})
	var names []string
	for _, p := range sheet[0].Positions {
		names = append(names, p.Participant)
	}
	assert.Equal(t, []string{"Bob", "Alice", "Carol"}, names)
}

func TestEqualSplitDriftStaysWithinTolerance(t *testing.T) {
	entries := []core.Entry{
		entry("100", "Alice", "Alice", "Bob", "Carol"),
		entry("10.01", "Bob", "Alice", "Bob", "Carol"),
		entry("0.05", "Carol", "Alice", "Bob", "Carol"),
	}
	for _, e := range entries {
		share := e.Amount.DivRound(decimal.NewFromInt(int64(len(e.Participants))), 2)
		deducted := share.Mul(decimal.NewFromInt(int64(len(e.Participants))))
		limit := decimal.New(1, -2).Mul(decimal.NewFromInt(int64(len(e.Participants))))
		assert.True(t, deducted.Sub(e.Amount).Abs().LessThanOrEqual(limit))
	}

	for _, u := range Compute(entries) {
		limit := decimal.New(1, -2).Mul(decimal.NewFromInt(int64(len(u.Positions))))
		assert.True(t, u.Sum().Abs().LessThanOrEqual(limit), "unit %s sums to %s", u.Code, u.Sum())
	}
}

func TestNoiseIsClampedToZero(t *testing.T) {
	// 0.01 split three ways deducts nothing from anyone.
	sheet := Compute([]core.Entry{entry("0.01", "Alice", "Alice", "Bob", "Carol")})
	eur, _ := sheet.Unit("EUR")
	assert.True(t, eur.Get("Bob").IsZero())
	assert.True(t, eur.Get("Alice").Equal(d("0.01")))
}
