package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"conti/internal/core"
)

var csvHeader = []string{"id", "date", "amount", "unit", "payer", "participants", "category", "description", "shares"}

// WriteCSV writes entries as CSV followed by a blank line and a per-unit
// totals block (unit, category, total).
func WriteCSV(w io.Writer, entries []core.Entry) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, e := range entries {
		if err := cw.Write(entryRow(e)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	if err := cw.Write(nil); err != nil {
		return fmt.Errorf("writing separator: %w", err)
	}
	if err := cw.Write([]string{"unit", "category", "total"}); err != nil {
		return fmt.Errorf("writing totals header: %w", err)
	}
	for _, u := range Sum(entries) {
		for _, c := range u.Categories {
			if err := cw.Write([]string{u.Unit, c.Category, core.FormatAmount(c.Amount)}); err != nil {
				return fmt.Errorf("writing totals: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func entryRow(e core.Entry) []string {
	shares := make([]string, 0, len(e.Shares))
	for _, sh := range e.Shares {
		shares = append(shares, sh.Participant+"="+core.FormatAmount(sh.Amount))
	}
	return []string{
		strconv.Itoa(e.ID),
		e.Date,
		core.FormatAmount(e.Amount),
		e.Unit,
		e.Payer,
		strings.Join(e.Participants, ";"),
		e.Category,
		e.Description,
		strings.Join(shares, ";"),
	}
}
