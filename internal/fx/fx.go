// Package fx converts ledger figures into a single base unit using an
// injected rate table. Rates are never fetched; a unit without a rate is
// left out of converted views and reported as skipped.
package fx

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"conti/internal/balance"
	"conti/internal/core"
	"conti/internal/report"
)

// Table maps units to their value in Base: one unit is worth Rates[unit]
// Base. Base itself always converts at 1.
type Table struct {
	Base   string                     `json:"base"`
	Rates  map[string]decimal.Decimal `json:"rates"`
	Source string                     `json:"source,omitempty"`
	AsOf   string                     `json:"as_of,omitempty"`
}

// Skipped lists, per unit, the gross magnitude that could not be converted.
type Skipped map[string]decimal.Decimal

// Units returns the skipped unit codes in alphabetical order.
func (s Skipped) Units() []string {
	out := make([]string, 0, len(s))
	for u := range s {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// ParseRates reads a comma separated list of UNIT=rate pairs, such as
// "EUR=0.94,USD=0.88". Rates must be positive.
func ParseRates(s string) (map[string]decimal.Decimal, error) {
	rates := map[string]decimal.Decimal{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		unit, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("rate %q: expected UNIT=value", pair)
		}
		unit = strings.ToUpper(strings.TrimSpace(unit))
		if unit == "" {
			return nil, fmt.Errorf("rate %q: missing unit", pair)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("rate %q: %w", pair, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("rate %q: must be positive", pair)
		}
		rates[unit] = rate
	}
	return rates, nil
}

// Rate returns the rate of unit.
func (t Table) Rate(unit string) (decimal.Decimal, bool) {
	if strings.EqualFold(unit, t.Base) {
		return decimal.NewFromInt(1), true
	}
	r, ok := t.Rates[strings.ToUpper(unit)]
	return r, ok
}

// Convert expresses amount of unit in the base unit, rounded to two places.
func (t Table) Convert(amount decimal.Decimal, unit string) (decimal.Decimal, bool) {
	r, ok := t.Rate(unit)
	if !ok {
		return decimal.Zero, false
	}
	return core.Round2(amount.Mul(r)), true
}

// ConvertSheet folds every unit of sheet into one set of base-unit balances.
// Results are clamped and rounded like balance.Compute output, so they can be
// passed to settle.SuggestUnit.
func (t Table) ConvertSheet(sheet balance.Sheet) (balance.Unit, Skipped) {
	out := balance.Unit{Code: t.Base}
	skipped := Skipped{}
	for _, u := range sheet {
		r, ok := t.Rate(u.Code)
		if !ok {
			magnitude := decimal.Zero
			for _, p := range u.Positions {
				if p.Amount.IsPositive() {
					magnitude = magnitude.Add(p.Amount)
				}
			}
			skipped[u.Code] = magnitude
			continue
		}
		for _, p := range u.Positions {
			out = addPosition(out, p.Participant, p.Amount.Mul(r))
		}
	}
	for i, p := range out.Positions {
		if core.IsNoise(p.Amount) {
			out.Positions[i].Amount = decimal.Zero
		} else {
			out.Positions[i].Amount = core.Round2(p.Amount)
		}
	}
	return out, skipped
}

// ConvertTotals folds category totals of every unit into base-unit totals.
func (t Table) ConvertTotals(totals report.Totals) (report.UnitTotals, Skipped) {
	out := report.UnitTotals{Unit: t.Base}
	skipped := Skipped{}
	for _, u := range totals {
		r, ok := t.Rate(u.Unit)
		if !ok {
			skipped[u.Unit] = u.Sum()
			continue
		}
		for _, c := range u.Categories {
			out = addCategory(out, c.Category, c.Amount.Mul(r))
		}
	}
	for i, c := range out.Categories {
		out.Categories[i].Amount = core.Round2(c.Amount)
	}
	return out, skipped
}

// GrandTotal is the sum of all convertible totals in the base unit.
func (t Table) GrandTotal(totals report.Totals) (decimal.Decimal, Skipped) {
	u, skipped := t.ConvertTotals(totals)
	return core.Round2(u.Sum()), skipped
}

func addPosition(u balance.Unit, name string, amount decimal.Decimal) balance.Unit {
	for i := range u.Positions {
		if u.Positions[i].Participant == name {
			u.Positions[i].Amount = u.Positions[i].Amount.Add(amount)
			return u
		}
	}
	u.Positions = append(u.Positions, balance.Position{Participant: name, Amount: amount})
	return u
}

func addCategory(u report.UnitTotals, category string, amount decimal.Decimal) report.UnitTotals {
	for i := range u.Categories {
		if u.Categories[i].Category == category {
			u.Categories[i].Amount = u.Categories[i].Amount.Add(amount)
			return u
		}
	}
	u.Categories = append(u.Categories, report.CategoryTotal{Category: category, Amount: amount})
	return u
}
