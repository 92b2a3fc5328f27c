// Package balance computes the net position of every participant per unit.
package balance

import (
	"github.com/shopspring/decimal"

	"conti/internal/core"
)

type (
	// Position is the signed net balance of one participant. Positive means the
	// participant is owed money, negative means they owe.
	Position struct {
		Participant string          `json:"participant"`
		Amount      decimal.Decimal `json:"amount"`
	}

	// Unit holds the positions within one currency, in first-seen order.
	Unit struct {
		Code      string     `json:"unit"`
		Positions []Position `json:"balances"`
	}

	// Sheet holds the balances of every unit, in first-seen order.
	Sheet []Unit
)

// Compute derives balances from entries.
//
// For each entry the payer is credited the rounded amount. With custom shares
// every participant is debited their rounded share; otherwise each listed
// participant is debited amount/n rounded to two places, and any drift from
// that rounding is left in place. Entries with neither shares nor
// participants contribute nothing. Final balances smaller than half a cent
// are reported as zero.
func Compute(entries []core.Entry) Sheet {
	var sheet Sheet
	index := map[string]int{}
	unitFor := func(code string) *Unit {
		if code == "" {
			code = core.DefaultUnit
		}
		i, ok := index[code]
		if !ok {
			i = len(sheet)
			index[code] = i
			sheet = append(sheet, Unit{Code: code})
		}
		return &sheet[i]
	}

	for _, e := range entries {
		if len(e.Shares) == 0 && len(e.Participants) == 0 {
			continue
		}
		u := unitFor(e.Unit)
		if len(e.Shares) > 0 {
			for _, sh := range e.Shares {
				u.add(sh.Participant, core.Round2(sh.Amount).Neg())
			}
		} else {
			share := e.Amount.DivRound(decimal.NewFromInt(int64(len(e.Participants))), 2)
			for _, p := range e.Participants {
				u.add(p, share.Neg())
			}
		}
		u.add(e.Payer, core.Round2(e.Amount))
	}

	for i := range sheet {
		for j, pos := range sheet[i].Positions {
			if core.IsNoise(pos.Amount) {
				sheet[i].Positions[j].Amount = decimal.Zero
			} else {
				sheet[i].Positions[j].Amount = core.Round2(pos.Amount)
			}
		}
	}
	return sheet
}

func (u *Unit) add(participant string, delta decimal.Decimal) {
	for i := range u.Positions {
		if u.Positions[i].Participant == participant {
			u.Positions[i].Amount = u.Positions[i].Amount.Add(delta)
			return
		}
	}
	u.Positions = append(u.Positions, Position{Participant: participant, Amount: delta})
}

// Unit returns the balances of code.
func (s Sheet) Unit(code string) (Unit, bool) {
	for _, u := range s {
		if u.Code == code {
			return u, true
		}
	}
	return Unit{}, false
}

// Map flattens the sheet into unit -> participant -> balance.
func (s Sheet) Map() map[string]map[string]decimal.Decimal {
	out := make(map[string]map[string]decimal.Decimal, len(s))
	for _, u := range s {
		m := make(map[string]decimal.Decimal, len(u.Positions))
		for _, p := range u.Positions {
			m[p.Participant] = p.Amount
		}
		out[u.Code] = m
	}
	return out
}

// Get returns the balance of participant, zero when unknown.
func (u Unit) Get(participant string) decimal.Decimal {
	for _, p := range u.Positions {
		if p.Participant == participant {
			return p.Amount
		}
	}
	return decimal.Zero
}

// Sum returns the total of all positions; it is zero up to rounding drift.
func (u Unit) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, p := range u.Positions {
		total = total.Add(p.Amount)
	}
	return total
}
