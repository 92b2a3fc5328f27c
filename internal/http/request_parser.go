package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"conti/internal/core"
	"conti/internal/ledger"
)

// parsePeriod reads the optional year and month query parameters. Without
// either the whole ledger is selected.
func parsePeriod(q url.Values) (core.Period, error) {
	year, err := queryInt(q, "year", 1, 9999)
	if err != nil {
		return core.Period{}, err
	}
	month, err := queryInt(q, "month", 1, 12)
	if err != nil {
		return core.Period{}, err
	}
	return core.Period{Year: year, Month: month}, nil
}

// queryInt returns 0 for an absent parameter and an error for one outside
// [lo, hi].
func queryInt(q url.Values, key string, lo, hi int) (int, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return 0, badRequest(key, fmt.Sprintf("%s must be a number between %d and %d", key, lo, hi))
	}
	return n, nil
}

// parseID reads the {id} path segment.
func parseID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id < 1 {
		return 0, badRequest("id", "id must be a positive integer")
	}
	return id, nil
}

// amountField accepts an amount as a JSON number or string. Strings follow
// the ledger's lenient parsing ("12,50" is 12.50).
type amountField string

func (a *amountField) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = amountField(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("amount must be a number or a string")
	}
	*a = amountField(n)
	return nil
}

func (a amountField) decimal() (decimal.Decimal, error) {
	d, err := core.ParseAmount(string(a))
	if err != nil {
		return decimal.Zero, &core.ValidationError{Field: "amount", Err: err}
	}
	return d, nil
}

type entryRequest struct {
	Amount       amountField `json:"amount"`
	Payer        string      `json:"payer"`
	Participants []string    `json:"participants"`
	Category     string      `json:"category"`
	Description  string      `json:"description"`
	Unit         string      `json:"unit"`
	Shares       core.Shares `json:"shares"`
	Date         string      `json:"date"`
}

func (req entryRequest) toNewEntry() (ledger.NewEntry, error) {
	amt, err := req.Amount.decimal()
	if err != nil {
		return ledger.NewEntry{}, err
	}
	return ledger.NewEntry{
		Amount:       amt,
		Payer:        sanitizeInput(req.Payer),
		Participants: sanitizeAll(req.Participants),
		Category:     sanitizeInput(req.Category),
		Description:  sanitizeInput(req.Description),
		Unit:         strings.ToUpper(sanitizeInput(req.Unit)),
		Shares:       req.Shares,
		Date:         sanitizeInput(req.Date),
	}, nil
}

type patchRequest struct {
	Amount       *amountField `json:"amount"`
	Payer        *string      `json:"payer"`
	Participants *[]string    `json:"participants"`
	Category     *string      `json:"category"`
	Description  *string      `json:"description"`
	Unit         *string      `json:"unit"`
	Shares       *core.Shares `json:"shares"`
	Date         *string      `json:"date"`
}

func (req patchRequest) toPatch() (ledger.Patch, error) {
	var p ledger.Patch
	if req.Amount != nil {
		amt, err := req.Amount.decimal()
		if err != nil {
			return ledger.Patch{}, err
		}
		p.Amount = &amt
	}
	if req.Participants != nil {
		names := sanitizeAll(*req.Participants)
		p.Participants = &names
	}
	p.Payer = sanitizePtr(req.Payer)
	p.Category = sanitizePtr(req.Category)
	p.Description = sanitizePtr(req.Description)
	p.Date = sanitizePtr(req.Date)
	if u := sanitizePtr(req.Unit); u != nil {
		upper := strings.ToUpper(*u)
		p.Unit = &upper
	}
	p.Shares = req.Shares
	return p, nil
}

type categoryRequest struct {
	Name string `json:"name"`
}

// decodeJSON reads a single JSON object from the request body, rejecting
// unknown fields and bodies over maxBodyBytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var (
			maxErr *http.MaxBytesError
			ve     *core.ValidationError
		)
		switch {
		case errors.As(err, &ve):
			return ve
		case errors.As(err, &maxErr):
			return &requestError{status: http.StatusRequestEntityTooLarge, msg: "request body too large"}
		case errors.Is(err, io.EOF):
			return badRequest("", "request body is empty")
		default:
			return badRequest("", "malformed JSON: "+err.Error())
		}
	}
	if dec.More() {
		return badRequest("", "request body must hold a single JSON object")
	}
	return nil
}
