// Package settle turns balances into suggested transfers.
//
// The matching is greedy: within a unit the largest debtor pays the largest
// creditor until one of them is square, then the next largest takes its
// place. This keeps the number of transfers low for small groups but is a
// heuristic; it does not guarantee the global minimum.
package settle

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"conti/internal/balance"
	"conti/internal/core"
)

type (
	// Transfer is a suggested payment from a debtor to a creditor.
	Transfer struct {
		From   string          `json:"from"`
		To     string          `json:"to"`
		Amount decimal.Decimal `json:"amount"`
		Unit   string          `json:"unit"`
	}

	// Plan lists the transfers that settle one unit.
	Plan struct {
		Unit      string     `json:"unit"`
		Transfers []Transfer `json:"transfers"`
	}
)

// String renders t as "Bob pays Alice 25.00 EUR".
func (t Transfer) String() string {
	return fmt.Sprintf("%s pays %s %s %s", t.From, t.To, core.FormatAmount(t.Amount), t.Unit)
}

// Suggest returns one plan per unit of sheet, in sheet order. Units that are
// already square get an empty transfer list.
func Suggest(sheet balance.Sheet) []Plan {
	plans := make([]Plan, 0, len(sheet))
	for _, u := range sheet {
		plans = append(plans, Plan{Unit: u.Code, Transfers: SuggestUnit(u)})
	}
	return plans
}

type party struct {
	name string
	amt  decimal.Decimal
}

// SuggestUnit settles the balances of a single unit. Ties between equal
// amounts keep the order of the balances.
func SuggestUnit(u balance.Unit) []Transfer {
	var creditors, debtors []party
	for _, p := range u.Positions {
		switch {
		case p.Amount.IsPositive():
			creditors = append(creditors, party{p.Participant, p.Amount})
		case p.Amount.IsNegative():
			debtors = append(debtors, party{p.Participant, p.Amount.Neg()})
		}
	}
	byAmountDesc := func(a, b party) int { return b.amt.Cmp(a.amt) }
	slices.SortStableFunc(creditors, byAmountDesc)
	slices.SortStableFunc(debtors, byAmountDesc)

	out := []Transfer{}
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		pay := core.Round2(decimal.Min(debtors[i].amt, creditors[j].amt))
		out = append(out, Transfer{
			From:   debtors[i].name,
			To:     creditors[j].name,
			Amount: pay,
			Unit:   u.Code,
		})
		debtors[i].amt = debtors[i].amt.Sub(pay)
		creditors[j].amt = creditors[j].amt.Sub(pay)
		if debtors[i].amt.LessThanOrEqual(core.NoiseThreshold) {
			i++
		}
		if creditors[j].amt.LessThanOrEqual(core.NoiseThreshold) {
			j++
		}
	}
	return out
}

// Apply returns the balances of u after every transfer has been paid.
func Apply(u balance.Unit, transfers []Transfer) balance.Unit {
	out := balance.Unit{Code: u.Code, Positions: slices.Clone(u.Positions)}
	adjust := func(name string, delta decimal.Decimal) {
		for i := range out.Positions {
			if out.Positions[i].Participant == name {
				out.Positions[i].Amount = out.Positions[i].Amount.Add(delta)
				return
			}
		}
		out.Positions = append(out.Positions, balance.Position{Participant: name, Amount: delta})
	}
	for _, t := range transfers {
		if t.Unit != u.Code {
			continue
		}
		adjust(t.From, t.Amount)
		adjust(t.To, t.Amount.Neg())
	}
	return out
}
