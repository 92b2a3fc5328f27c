package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	DefaultUnit     = "EUR"
	DefaultCategory = "general"
)

type (
	// Entry is one recorded shared expense.
	Entry struct {
		ID           int
		Amount       decimal.Decimal
		Payer        string
		Participants []string
		Category     string
		Description  string
		Unit         string
		Shares       Shares // overrides the equal split when non-empty
		Date         string // ISO "YYYY-MM-DD", optional
	}

	// Share is the amount one participant carries of an entry.
	Share struct {
		Participant string
		Amount      decimal.Decimal
	}

	// Shares keeps custom split amounts in insertion order so that balance
	// iteration stays deterministic.
	Shares []Share
)

// Sum returns the total of all shares.
func (s Shares) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, sh := range s {
		total = total.Add(sh.Amount)
	}
	return total
}

// Get returns the share of participant p.
func (s Shares) Get(p string) (decimal.Decimal, bool) {
	for _, sh := range s {
		if sh.Participant == p {
			return sh.Amount, true
		}
	}
	return decimal.Zero, false
}

// Set replaces the share of p, or appends it when p has none yet.
func (s Shares) Set(p string, amount decimal.Decimal) Shares {
	for i := range s {
		if s[i].Participant == p {
			s[i].Amount = amount
			return s
		}
	}
	return append(s, Share{Participant: p, Amount: amount})
}

// SharesFromMap builds Shares from a map, ordering participants as listed in
// order first and any remaining keys after them in the order they are found.
func SharesFromMap(m map[string]decimal.Decimal, order []string) Shares {
	out := make(Shares, 0, len(m))
	seen := map[string]bool{}
	for _, p := range order {
		if amt, ok := m[p]; ok && !seen[p] {
			out = append(out, Share{Participant: p, Amount: amt})
			seen[p] = true
		}
	}
	for p, amt := range m {
		if !seen[p] {
			out = append(out, Share{Participant: p, Amount: amt})
		}
	}
	return out
}

func (s Shares) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, sh := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(sh.Participant)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(FormatAmount(sh.Amount))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON is strict: a share that is blank or not a number fails the
// whole value with a *ValidationError on "shares". An absent value decodes to
// no shares. Stored records go through DecodeRecord instead.
func (s *Shares) UnmarshalJSON(data []byte) error {
	out, err := decodeShares(data)
	if errors.Is(err, errAbsent) {
		*s = nil
		return nil
	}
	if err != nil {
		return invalid("shares", err)
	}
	*s = out
	return nil
}

// Normalize trims free-text fields, deduplicates participants, applies the
// unit and category defaults and rounds amount and shares to two decimals.
func (e Entry) Normalize() Entry {
	e.Amount = Round2(e.Amount)
	e.Payer = strings.TrimSpace(e.Payer)
	e.Participants = normalizeNames(e.Participants)
	e.Category = strings.TrimSpace(e.Category)
	if e.Category == "" {
		e.Category = DefaultCategory
	}
	e.Description = strings.TrimSpace(e.Description)
	e.Unit = strings.ToUpper(strings.TrimSpace(e.Unit))
	if e.Unit == "" {
		e.Unit = DefaultUnit
	}
	if len(e.Shares) > 0 {
		shares := make(Shares, 0, len(e.Shares))
		for _, sh := range e.Shares {
			name := strings.TrimSpace(sh.Participant)
			if name == "" {
				continue
			}
			shares = shares.Set(name, Round2(sh.Amount))
		}
		e.Shares = shares
	} else {
		e.Shares = nil
	}
	e.Date = strings.TrimSpace(e.Date)
	return e
}

// Validate checks the write-time invariants of an entry. Call it on a
// normalized entry.
func (e Entry) Validate() error {
	return e.validate(func(...string) bool { return true })
}

// ValidateChanged runs only the rules that depend on the named fields. An
// edit uses it so that a stored entry with a malformed field the edit leaves
// alone (a legacy date, a zero amount) can still be changed.
func (e Entry) ValidateChanged(fields ...string) error {
	return e.validate(func(names ...string) bool {
		for _, n := range names {
			if slices.Contains(fields, n) {
				return true
			}
		}
		return false
	})
}

func (e Entry) validate(changed func(fields ...string) bool) error {
	if changed("amount") && !e.Amount.IsPositive() {
		return invalid("amount", ErrInvalidAmount)
	}
	if changed("payer") && e.Payer == "" {
		return invalid("payer", ErrBlankPayer)
	}
	if changed("participants", "shares") && len(e.Participants) == 0 && len(e.Shares) == 0 {
		return invalid("participants", ErrNoParticipants)
	}
	if changed("amount", "shares") && len(e.Shares) > 0 {
		for _, sh := range e.Shares {
			if sh.Amount.IsNegative() {
				return invalid("shares", ErrNegativeShare)
			}
		}
		if e.Shares.Sum().Sub(e.Amount).Abs().GreaterThan(ShareTolerance) {
			return invalid("shares", ErrSharesMismatch)
		}
	}
	if changed("date") && e.Date != "" {
		if _, ok := ParseDate(e.Date); !ok {
			return invalid("date", ErrInvalidDate)
		}
	}
	return nil
}

// Clone returns a deep copy of e.
func (e Entry) Clone() Entry {
	if e.Participants != nil {
		e.Participants = append([]string(nil), e.Participants...)
	}
	if e.Shares != nil {
		e.Shares = append(Shares(nil), e.Shares...)
	}
	return e
}

type entryRecord struct {
	ID           int         `json:"id"`
	Amount       json.Number `json:"amount"`
	Payer        string      `json:"payer"`
	Participants []string    `json:"participants"`
	Category     string      `json:"category"`
	Description  string      `json:"description"`
	Unit         string      `json:"unit"`
	Shares       Shares      `json:"shares"`
	Date         string      `json:"date"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	rec := entryRecord{
		ID:           e.ID,
		Amount:       json.Number(FormatAmount(e.Amount)),
		Payer:        e.Payer,
		Participants: e.Participants,
		Category:     e.Category,
		Description:  e.Description,
		Unit:         e.Unit,
		Shares:       e.Shares,
		Date:         e.Date,
	}
	if rec.Participants == nil {
		rec.Participants = []string{}
	}
	if rec.Shares == nil {
		rec.Shares = Shares{}
	}
	return json.Marshal(rec)
}

// DecodeEntry decodes one entry object the way stored records are decoded
// and returns the issues of the fields that fell back to their defaults.
func DecodeEntry(data []byte) (Entry, []FieldIssue, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Entry{}, nil, err
	}
	e, issues := DecodeRecord(raw)
	return e, issues, nil
}

// UnmarshalJSON is lenient like the storage decoders: malformed fields take
// their defaults and the issues are dropped. Callers that must see them use
// DecodeEntry.
func (e *Entry) UnmarshalJSON(data []byte) error {
	out, _, err := DecodeEntry(data)
	if err != nil {
		return err
	}
	*e = out
	return nil
}

func normalizeNames(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
