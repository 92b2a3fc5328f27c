package google

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"conti/internal/core"
)

var (
	ExpenseHeaders = []string{"id", "amount", "payer", "participants", "category", "description", "unit", "shares_json", "date"}
	MetaHeaders    = []string{"key", "value"}
)

// EncodeEntries renders entries as worksheet rows, header first.
func EncodeEntries(entries []core.Entry) [][]any {
	rows := make([][]any, 0, len(entries)+1)
	rows = append(rows, headerRow(ExpenseHeaders))
	for _, e := range entries {
		participants, _ := json.Marshal(nonNil(e.Participants))
		shares, _ := json.Marshal(e.Shares)
		unit := e.Unit
		if unit == "" {
			unit = core.DefaultUnit
		}
		rows = append(rows, []any{
			strconv.Itoa(e.ID),
			core.FormatAmount(e.Amount),
			e.Payer,
			string(participants),
			e.Category,
			e.Description,
			unit,
			string(shares),
			e.Date,
		})
	}
	return rows
}

// EncodeMeta renders the next id and the category registry as key/value rows.
func EncodeMeta(snap core.Snapshot) ([][]any, error) {
	cats, err := json.Marshal(nonNil(snap.Categories))
	if err != nil {
		return nil, fmt.Errorf("encode categories: %w", err)
	}
	return [][]any{
		headerRow(MetaHeaders),
		{"next_id", strconv.Itoa(max(1, snap.NextID))},
		{"categories", string(cats)},
	}, nil
}

// DecodeRows rebuilds a snapshot from the worksheet values. The first
// expenses row holds the headers; rows with only blank cells are skipped.
// Cells that cannot be decoded take their default and are reported.
func DecodeRows(expRows, metaRows [][]any) (core.Snapshot, []core.FieldIssue, error) {
	var records []map[string]any
	if len(expRows) > 0 {
		headers := make([]string, len(expRows[0]))
		for i, h := range expRows[0] {
			headers[i] = strings.ToLower(strings.TrimSpace(cellText(h)))
		}
		for _, row := range expRows[1:] {
			rec := map[string]any{}
			blank := true
			for i, h := range headers {
				if h == "" {
					continue
				}
				var v any = ""
				if i < len(row) {
					v = row[i]
				}
				if strings.TrimSpace(cellText(v)) != "" {
					blank = false
				}
				rec[h] = v
			}
			if !blank {
				records = append(records, rec)
			}
		}
	}

	meta := map[string]string{}
	for i, row := range metaRows {
		if i == 0 || len(row) == 0 {
			continue
		}
		key := strings.TrimSpace(cellText(row[0]))
		val := ""
		if len(row) > 1 {
			val = strings.TrimSpace(cellText(row[1]))
		}
		if key != "" {
			meta[key] = val
		}
	}

	doc := map[string]any{"entries": records}
	if v := meta["next_id"]; v != "" {
		doc["next_id"] = v
	} else {
		doc["next_id"] = len(records) + 1
	}
	if v := meta["categories"]; v != "" {
		doc["categories"] = v
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return core.Snapshot{}, nil, fmt.Errorf("encode rows: %w", err)
	}
	return core.DecodeSnapshot(data)
}

func headerRow(h []string) []any {
	out := make([]any, len(h))
	for i, v := range h {
		out[i] = v
	}
	return out
}

func cellText(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
