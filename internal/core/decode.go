package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// FieldIssue describes one persisted field that could not be decoded and was
// replaced by its default.
type FieldIssue struct {
	Entry int // index in the entry list, -1 for snapshot-level fields
	Field string
	Err   error
}

func (i FieldIssue) Error() string {
	if i.Entry < 0 {
		return fmt.Sprintf("%s: %v", i.Field, i.Err)
	}
	return fmt.Sprintf("entries[%d].%s: %v", i.Entry, i.Field, i.Err)
}

// errAbsent marks a field that is missing or empty. It selects the default
// without being reported.
var errAbsent = errors.New("absent")

// DecodeSnapshot decodes a persisted snapshot. Only a document that is not a
// JSON object is an error; malformed fields fall back to their defaults and
// are listed in the returned issues.
//
// The legacy keys "expenses" and "nextId" are accepted for "entries" and
// "next_id".
func DecodeSnapshot(data []byte) (Snapshot, []FieldIssue, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return Snapshot{}, nil, fmt.Errorf("decode snapshot: %w", err)
	}
	var (
		snap   Snapshot
		issues []FieldIssue
	)

	if n, err := decodeInt(firstOf(top, "next_id", "nextId")); err == nil {
		snap.NextID = n
	} else if !errors.Is(err, errAbsent) {
		issues = append(issues, FieldIssue{Entry: -1, Field: "next_id", Err: err})
	}

	if raw := firstOf(top, "entries", "expenses"); !isAbsent(raw) {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			issues = append(issues, FieldIssue{Entry: -1, Field: "entries", Err: err})
		}
		for i, item := range items {
			var rec map[string]json.RawMessage
			if err := json.Unmarshal(item, &rec); err != nil {
				issues = append(issues, FieldIssue{Entry: i, Field: "*", Err: err})
				continue
			}
			e, recIssues := DecodeRecord(rec)
			for _, is := range recIssues {
				is.Entry = i
				issues = append(issues, is)
			}
			snap.Entries = append(snap.Entries, e)
		}
	}

	if cats, err := decodeNames(top["categories"]); err == nil {
		snap.Categories = cats
	} else if !errors.Is(err, errAbsent) {
		issues = append(issues, FieldIssue{Entry: -1, Field: "categories", Err: err})
	}

	return snap, issues, nil
}

// DecodeRecord builds an Entry from a persisted record keyed by the field
// names id, amount, payer, participants, category, description, unit, shares
// (or shares_json) and date. Each field is decoded on its own; a field that is
// absent or malformed takes its default (0, "", [], {}, unit EUR, category
// general) and malformed ones are reported.
func DecodeRecord(rec map[string]json.RawMessage) (Entry, []FieldIssue) {
	var (
		e      Entry
		issues []FieldIssue
	)
	report := func(field string, err error) {
		if err != nil && !errors.Is(err, errAbsent) {
			issues = append(issues, FieldIssue{Field: field, Err: err})
		}
	}

	var err error
	e.ID, err = decodeInt(lookup(rec, "id"))
	report("id", err)
	if e.Amount, err = decodeAmount(lookup(rec, "amount")); err != nil {
		e.Amount = decimal.Zero
	}
	report("amount", err)
	e.Payer, err = decodeString(lookup(rec, "payer"))
	report("payer", err)
	e.Participants, err = decodeNames(lookup(rec, "participants"))
	report("participants", err)
	e.Category, err = decodeString(lookup(rec, "category"))
	report("category", err)
	if e.Category == "" {
		e.Category = DefaultCategory
	}
	e.Description, err = decodeString(lookup(rec, "description"))
	report("description", err)
	e.Unit, err = decodeString(lookup(rec, "unit"))
	report("unit", err)
	if e.Unit == "" {
		e.Unit = DefaultUnit
	}
	sharesRaw := lookup(rec, "shares")
	if isAbsent(sharesRaw) {
		sharesRaw = lookup(rec, "shares_json")
	}
	e.Shares, err = decodeShares(sharesRaw)
	report("shares", err)
	e.Date, err = decodeString(lookup(rec, "date"))
	report("date", err)
	return e, issues
}

// RawRecord converts loosely typed cells (as read from a spreadsheet or a
// database row) into the form accepted by DecodeRecord. Header names are
// trimmed and lower-cased.
func RawRecord(cells map[string]any) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(cells))
	for k, v := range cells {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			continue
		}
		out[k] = b
	}
	return out
}

func lookup(rec map[string]json.RawMessage, key string) json.RawMessage {
	if v, ok := rec[key]; ok {
		return v
	}
	for k, v := range rec {
		if strings.EqualFold(strings.TrimSpace(k), key) {
			return v
		}
	}
	return nil
}

func firstOf(rec map[string]json.RawMessage, keys ...string) json.RawMessage {
	for _, k := range keys {
		if v, ok := rec[k]; ok && !isAbsent(v) {
			return v
		}
	}
	return nil
}

func isAbsent(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func rawValue(raw json.RawMessage) (any, error) {
	if isAbsent(raw) {
		return nil, errAbsent
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// scalarText returns the textual form of a JSON scalar.
func scalarText(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", errAbsent
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return "", errAbsent
		}
		return s, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("expected a scalar, got %T", v)
	}
}

func decodeInt(raw json.RawMessage) (int, error) {
	v, err := rawValue(raw)
	if err != nil {
		return 0, err
	}
	s, err := scalarText(v)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return int(f), nil
}

func decodeAmount(raw json.RawMessage) (decimal.Decimal, error) {
	v, err := rawValue(raw)
	if err != nil {
		return decimal.Zero, err
	}
	s, err := scalarText(v)
	if err != nil {
		return decimal.Zero, err
	}
	return amountFromText(s)
}

func amountFromText(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", "."))
	if err != nil {
		return decimal.Zero, fmt.Errorf("not an amount: %q", s)
	}
	return Round2(d), nil
}

func decodeString(raw json.RawMessage) (string, error) {
	v, err := rawValue(raw)
	if err != nil {
		return "", err
	}
	s, err := scalarText(v)
	if errors.Is(err, errAbsent) {
		return "", nil
	}
	return s, err
}

// decodeNames accepts a JSON list, a JSON list encoded in a string (single
// quotes tolerated) or a comma separated string.
func decodeNames(raw json.RawMessage) ([]string, error) {
	v, err := rawValue(raw)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case []any:
		return namesFromList(t), nil
	case string:
		text := strings.TrimSpace(t)
		if text == "" {
			return nil, errAbsent
		}
		if strings.HasPrefix(text, "[") {
			var list []any
			if err := json.Unmarshal([]byte(text), &list); err != nil {
				if err := json.Unmarshal([]byte(strings.ReplaceAll(text, "'", `"`)), &list); err != nil {
					return nil, fmt.Errorf("malformed list: %q", text)
				}
			}
			return namesFromList(list), nil
		}
		return normalizeNames(strings.Split(text, ",")), nil
	default:
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
}

func namesFromList(list []any) []string {
	names := make([]string, 0, len(list))
	for _, item := range list {
		s, err := scalarText(item)
		if err != nil {
			continue
		}
		names = append(names, s)
	}
	return normalizeNames(names)
}

// decodeShares reads a participant->amount object, either inline or encoded
// in a string, preserving key order. Entries with blank names or unparsable
// amounts are dropped and reported through the returned error while the rest
// of the object is kept.
func decodeShares(raw json.RawMessage) (Shares, error) {
	data := bytes.TrimSpace(raw)
	if isAbsent(data) {
		return nil, errAbsent
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, errAbsent
		}
		if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
			s = strings.ReplaceAll(s, "'", `"`)
		}
		data = []byte(s)
	}
	if data[0] != '{' {
		return nil, fmt.Errorf("expected an object, got %q", string(data))
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var (
		out      Shares
		firstErr error
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return out, err
		}
		key, _ := tok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return out, err
		}
		name := strings.TrimSpace(key)
		if name == "" {
			continue
		}
		text, err := scalarText(v)
		if errors.Is(err, errAbsent) {
			err = errors.New("blank")
		}
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("share of %q: %w: %w", name, ErrInvalidShare, err)
			}
			continue
		}
		amt, err := amountFromText(text)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("share of %q: %w: %w", name, ErrInvalidShare, err)
			}
			continue
		}
		out = out.Set(name, amt)
	}
	return out, firstErr
}
