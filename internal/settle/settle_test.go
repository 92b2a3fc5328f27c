package settle

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/balance"
	"conti/internal/core"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func unit(code string, kv ...any) balance.Unit {
	u := balance.Unit{Code: code}
	for i := 0; i < len(kv); i += 2 {
		u.Positions = append(u.Positions, balance.Position{Participant: kv[i].(string), Amount: d(kv[i+1].(string))})
	}
	return u
}

func rendered(ts []Transfer) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.String()
	}
	return out
}

func TestTwoPersonScenario(t *testing.T) {
	entries := []core.Entry{
		{Amount: d("100"), Payer: "Alice", Participants: []string{"Alice", "Bob"}, Unit: "EUR", Category: "Food"},
		{Amount: d("50"), Payer: "Bob", Participants: []string{"Alice", "Bob"}, Unit: "EUR", Category: "Transport"},
	}
	plans := Suggest(balance.Compute(entries))
	require.Len(t, plans, 1)
	assert.Equal(t, "EUR", plans[0].Unit)
	assert.Equal(t, []string{"Bob pays Alice 25.00 EUR"}, rendered(plans[0].Transfers))
}

func TestGreedyLargestToLargest(t *testing.T) {
	u := unit("EUR", "Alice", "60", "Bob", "-30", "Carol", "-20", "Dan", "-10")
	got := rendered(SuggestUnit(u))
	assert.Equal(t, []string{
		"Bob pays Alice 30.00 EUR",
		"Carol pays Alice 20.00 EUR",
		"Dan pays Alice 10.00 EUR",
	}, got)
}

func TestTiesKeepBalanceOrder(t *testing.T) {
	u := unit("EUR", "Zoe", "-10", "Alice", "-10", "Mark", "10", "Bob", "10")
	got := rendered(SuggestUnit(u))
	assert.Equal(t, []string{
		"Zoe pays Mark 10.00 EUR",
		"Alice pays Bob 10.00 EUR",
	}, got)
}

func TestSplitCreditorAcrossDebtors(t *testing.T) {
	u := unit("CHF", "Alice", "-45.50", "Bob", "30.25", "Carol", "15.25")
	got := rendered(SuggestUnit(u))
	assert.Equal(t, []string{
		"Alice pays Bob 30.25 CHF",
		"Alice pays Carol 15.25 CHF",
	}, got)
}

func TestSquareUnitHasNoTransfers(t *testing.T) {
	plans := Suggest(balance.Sheet{unit("EUR", "Alice", "0", "Bob", "0")})
	require.Len(t, plans, 1)
	assert.NotNil(t, plans[0].Transfers)
	assert.Empty(t, plans[0].Transfers)
}

func TestApplyingTransfersSettlesEveryUnit(t *testing.T) {
	entries := []core.Entry{
		{Amount: d("100"), Payer: "Alice", Participants: []string{"Alice", "Bob", "Carol"}, Unit: "EUR"},
		{Amount: d("37.40"), Payer: "Bob", Participants: []string{"Alice", "Bob", "Carol", "Dan"}, Unit: "EUR"},
		{Amount: d("90"), Payer: "Carol", Shares: core.Shares{{Participant: "Alice", Amount: d("10")}, {Participant: "Dan", Amount: d("80")}}, Unit: "EUR"},
		{Amount: d("12.5"), Payer: "Dan", Participants: []string{"Alice", "Dan"}, Unit: "USD"},
	}
	sheet := balance.Compute(entries)
	for _, plan := range Suggest(sheet) {
		u, ok := sheet.Unit(plan.Unit)
		require.True(t, ok)
		residual := Apply(u, plan.Transfers)
		limit := decimal.New(1, -2).Mul(decimal.NewFromInt(int64(len(u.Positions))))
		for _, p := range residual.Positions {
			assert.True(t, p.Amount.Abs().LessThanOrEqual(limit),
				"%s still at %s in %s", p.Participant, p.Amount, plan.Unit)
		}
	}
}
