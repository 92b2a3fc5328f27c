// Package report aggregates entry amounts per unit and category.
package report

import (
	"github.com/shopspring/decimal"

	"conti/internal/core"
)

// Lister is the read side of the ledger store used by the reports.
type Lister interface {
	ListEntries(p core.Period) []core.Entry
}

type (
	// CategoryTotal is the amount spent in one category.
	CategoryTotal struct {
		Category string          `json:"category"`
		Amount   decimal.Decimal `json:"amount"`
	}

	// UnitTotals holds the category totals of one unit in first-seen order.
	UnitTotals struct {
		Unit       string          `json:"unit"`
		Categories []CategoryTotal `json:"categories"`
	}

	// Totals holds the totals of every unit in first-seen order.
	Totals []UnitTotals
)

// TotalsByMonth sums entry amounts dated in the given month. A month with no
// entries yields empty Totals.
func TotalsByMonth(l Lister, year, month int) Totals {
	return Sum(l.ListEntries(core.Month(year, month)))
}

// TotalsByYear sums entry amounts dated in the given year.
func TotalsByYear(l Lister, year int) Totals {
	return Sum(l.ListEntries(core.Year(year)))
}

// Sum groups the amounts of entries by unit then category. It adds gross
// amounts, not net balances.
func Sum(entries []core.Entry) Totals {
	t := Totals{}
	for _, e := range entries {
		unit := e.Unit
		if unit == "" {
			unit = core.DefaultUnit
		}
		t.add(unit, e.Category, e.Amount)
	}
	return t
}

func (t *Totals) add(unit, category string, amount decimal.Decimal) {
	for i := range *t {
		u := &(*t)[i]
		if u.Unit != unit {
			continue
		}
		for j := range u.Categories {
			if u.Categories[j].Category == category {
				u.Categories[j].Amount = core.Round2(u.Categories[j].Amount.Add(amount))
				return
			}
		}
		u.Categories = append(u.Categories, CategoryTotal{Category: category, Amount: core.Round2(amount)})
		return
	}
	*t = append(*t, UnitTotals{
		Unit:       unit,
		Categories: []CategoryTotal{{Category: category, Amount: core.Round2(amount)}},
	})
}

// Unit returns the totals of one unit.
func (t Totals) Unit(code string) (UnitTotals, bool) {
	for _, u := range t {
		if u.Unit == code {
			return u, true
		}
	}
	return UnitTotals{}, false
}

// Map flattens t into unit -> category -> amount.
func (t Totals) Map() map[string]map[string]decimal.Decimal {
	out := make(map[string]map[string]decimal.Decimal, len(t))
	for _, u := range t {
		m := make(map[string]decimal.Decimal, len(u.Categories))
		for _, c := range u.Categories {
			m[c.Category] = c.Amount
		}
		out[u.Unit] = m
	}
	return out
}

// Sum returns the total across all categories of the unit.
func (u UnitTotals) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, c := range u.Categories {
		total = total.Add(c.Amount)
	}
	return total
}
