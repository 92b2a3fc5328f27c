package core

import (
	"encoding/json"
	"strings"
)

// Snapshot is the whole persisted state of a ledger.
type Snapshot struct {
	NextID     int
	Entries    []Entry
	Categories []string
}

// EmptySnapshot is the state of a fresh ledger.
func EmptySnapshot() Snapshot {
	return Snapshot{NextID: 1, Categories: DefaultCategories()}
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{NextID: s.NextID}
	if s.Entries != nil {
		out.Entries = make([]Entry, len(s.Entries))
		for i, e := range s.Entries {
			out.Entries[i] = e.Clone()
		}
	}
	if s.Categories != nil {
		out.Categories = append([]string(nil), s.Categories...)
	}
	return out
}

type snapshotRecord struct {
	NextID     int      `json:"next_id"`
	Entries    []Entry  `json:"entries"`
	Categories []string `json:"categories"`
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	rec := snapshotRecord{NextID: s.NextID, Entries: s.Entries, Categories: s.Categories}
	if rec.Entries == nil {
		rec.Entries = []Entry{}
	}
	if rec.Categories == nil {
		rec.Categories = []string{}
	}
	return json.Marshal(rec)
}

// UnmarshalJSON decodes leniently and drops field issues; use DecodeSnapshot
// to see them.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	snap, _, err := DecodeSnapshot(data)
	if err != nil {
		return err
	}
	*s = snap
	return nil
}

var defaultCategories = []string{
	"Groceries",
	"MiniM",
	"Electricity & Water",
	"Eating out",
	"Fuel",
	"Home",
	"Electronics",
	"Telephony",
	"Taxes",
	"PPE",
	"Culture & Entertainment",
	"Transport",
	"Gifts",
	"Clothes",
	"Airfares",
	"Hotels - Holidays",
	"Fuel - Holidays",
	"Culture & Entertainment - Hol.",
	"Transport - Holidays",
}

// DefaultCategories returns a fresh copy of the built-in category set.
func DefaultCategories() []string {
	return append([]string(nil), defaultCategories...)
}

// MergeCategories returns the defaults followed by every other non-blank
// loaded category, in loaded order and without duplicates.
func MergeCategories(loaded []string) []string {
	out := DefaultCategories()
	seen := make(map[string]struct{}, len(out)+len(loaded))
	for _, c := range out {
		seen[c] = struct{}{}
	}
	for _, c := range loaded {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
