package fx

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/balance"
	"conti/internal/core"
	"conti/internal/report"
	"conti/internal/settle"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func table(t *testing.T) Table {
	t.Helper()
	rates, err := ParseRates("eur=0.95, USD=0.9")
	require.NoError(t, err)
	return Table{Base: "CHF", Rates: rates, Source: "fixed"}
}

func TestParseRates(t *testing.T) {
	rates, err := ParseRates("EUR=0.94,USD=0.88,")
	require.NoError(t, err)
	assert.True(t, rates["EUR"].Equal(d("0.94")))
	assert.True(t, rates["USD"].Equal(d("0.88")))

	for _, bad := range []string{"EUR", "=1", "EUR=x", "EUR=0", "EUR=-1"} {
		_, err := ParseRates(bad)
		assert.Error(t, err, bad)
	}
}

func TestConvert(t *testing.T) {
	tb := table(t)
	got, ok := tb.Convert(d("10"), "EUR")
	require.True(t, ok)
	assert.Equal(t, "9.50", core.FormatAmount(got))

	got, ok = tb.Convert(d("3.33"), "CHF")
	require.True(t, ok)
	assert.Equal(t, "3.33", core.FormatAmount(got))

	_, ok = tb.Convert(d("1"), "GBP")
	assert.False(t, ok)
}

func TestConvertSheetAndSettle(t *testing.T) {
	entries := []core.Entry{
		{Amount: d("100"), Payer: "Alice", Participants: []string{"Alice", "Bob"}, Unit: "EUR"},
		{Amount: d("20"), Payer: "Bob", Participants: []string{"Alice", "Bob"}, Unit: "CHF"},
		{Amount: d("40"), Payer: "Bob", Participants: []string{"Alice", "Bob"}, Unit: "GBP"},
	}
	conv, skipped := table(t).ConvertSheet(balance.Compute(entries))
	assert.Equal(t, "CHF", conv.Code)
	// EUR: Alice +50 -> 47.50; CHF: Alice -10
	assert.Equal(t, "37.50", core.FormatAmount(conv.Get("Alice")))
	assert.Equal(t, "-37.50", core.FormatAmount(conv.Get("Bob")))
	assert.Equal(t, []string{"GBP"}, skipped.Units())
	assert.Equal(t, "20.00", core.FormatAmount(skipped["GBP"]))

	transfers := settle.SuggestUnit(conv)
	require.Len(t, transfers, 1)
	assert.Equal(t, "Bob pays Alice 37.50 CHF", transfers[0].String())
}

func TestGrandTotal(t *testing.T) {
	totals := report.Sum([]core.Entry{
		{Amount: d("10"), Unit: "EUR", Category: "Food"},
		{Amount: d("10"), Unit: "USD", Category: "Food"},
		{Amount: d("5"), Unit: "CHF", Category: "Home"},
		{Amount: d("8"), Unit: "JPY", Category: "Food"},
	})
	total, skipped := table(t).GrandTotal(totals)
	assert.Equal(t, "23.50", core.FormatAmount(total))
	assert.Equal(t, []string{"JPY"}, skipped.Units())

	conv, _ := table(t).ConvertTotals(totals)
	assert.Equal(t, "18.50", core.FormatAmount(conv.Categories[0].Amount))
	assert.Equal(t, "Home", conv.Categories[1].Category)
}
