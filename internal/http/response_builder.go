package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"conti/internal/balance"
	"conti/internal/core"
	"conti/internal/ledger"
	applog "conti/internal/log"
	"conti/internal/middleware/trace"
	"conti/internal/report"
	"conti/internal/services"
	"conti/internal/settle"
)

// requestError is a malformed request, rejected before it reaches the ledger.
type requestError struct {
	status int
	field  string
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(field, msg string) error {
	return &requestError{status: http.StatusBadRequest, field: field, msg: msg}
}

type errorView struct {
	Error     string `json:"error"`
	Type      string `json:"type"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// classify maps err to a status code and error type. Validation failures
// are 422, unknown ids 404 and storage failures 503.
func classify(err error) (int, string, string) {
	var reqErr *requestError
	var valErr *core.ValidationError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.status, applog.ErrorTypeValidation, reqErr.field
	case errors.As(err, &valErr):
		return http.StatusUnprocessableEntity, applog.ErrorTypeValidation, valErr.Field
	case errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity, applog.ErrorTypeValidation, ""
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, applog.ErrorTypeNotFound, ""
	case errors.Is(err, core.ErrPersistence):
		return http.StatusServiceUnavailable, applog.ErrorTypePersistence, ""
	default:
		return http.StatusInternalServerError, applog.ErrorTypeInternal, ""
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind, field := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldError, err, applog.FieldErrorType, kind)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorView{
		Error:     msg,
		Type:      kind,
		Field:     field,
		RequestID: trace.GetRequestID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeBody(w, status, body)
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
	_, _ = w.Write([]byte("\n"))
}

// amount renders d as a bare JSON number with two decimals.
func amount(d decimal.Decimal) json.Number {
	return json.Number(core.FormatAmount(d))
}

type (
	entriesView struct {
		Period  string       `json:"period"`
		Count   int          `json:"count"`
		Entries []core.Entry `json:"entries"`
	}

	categoriesView struct {
		Categories []string `json:"categories"`
		Added      *bool    `json:"added,omitempty"`
	}

	statusView struct {
		ledger.Status
		Revision uint64 `json:"revision"`
		Ready    bool   `json:"ready,omitempty"`
	}

	positionView struct {
		Participant string      `json:"participant"`
		Amount      json.Number `json:"amount"`
	}

	unitBalancesView struct {
		Unit      string         `json:"unit"`
		Positions []positionView `json:"balances"`
	}

	balancesView struct {
		Period string             `json:"period"`
		Units  []unitBalancesView `json:"units"`
	}

	transferView struct {
		From   string      `json:"from"`
		To     string      `json:"to"`
		Amount json.Number `json:"amount"`
		Unit   string      `json:"unit"`
		Text   string      `json:"text"`
	}

	planView struct {
		Unit      string         `json:"unit"`
		Transfers []transferView `json:"transfers"`
	}

	settlementsView struct {
		Period string     `json:"period"`
		Plans  []planView `json:"plans"`
	}

	categoryTotalView struct {
		Category string      `json:"category"`
		Amount   json.Number `json:"amount"`
	}

	unitTotalsView struct {
		Unit       string              `json:"unit"`
		Categories []categoryTotalView `json:"categories"`
		Total      json.Number         `json:"total"`
	}

	totalsView struct {
		Year  int              `json:"year"`
		Month int              `json:"month,omitempty"`
		Units []unitTotalsView `json:"units"`
	}

	convertedView struct {
		Period      string              `json:"period"`
		Base        string              `json:"base"`
		Source      string              `json:"source,omitempty"`
		AsOf        string              `json:"as_of,omitempty"`
		Balances    []positionView      `json:"balances"`
		Settlements []transferView      `json:"settlements"`
		Totals      []categoryTotalView `json:"totals"`
		GrandTotal  json.Number         `json:"grand_total"`
		Skipped     []string            `json:"skipped"`
	}
)

func newPositionsView(u balance.Unit) []positionView {
	out := make([]positionView, 0, len(u.Positions))
	for _, p := range u.Positions {
		out = append(out, positionView{Participant: p.Participant, Amount: amount(p.Amount)})
	}
	return out
}

func newBalancesView(p core.Period, sheet balance.Sheet) balancesView {
	v := balancesView{Period: p.String(), Units: make([]unitBalancesView, 0, len(sheet))}
	for _, u := range sheet {
		v.Units = append(v.Units, unitBalancesView{Unit: u.Code, Positions: newPositionsView(u)})
	}
	return v
}

func newTransfersView(ts []settle.Transfer) []transferView {
	out := make([]transferView, 0, len(ts))
	for _, t := range ts {
		out = append(out, transferView{From: t.From, To: t.To, Amount: amount(t.Amount), Unit: t.Unit, Text: t.String()})
	}
	return out
}

func newSettlementsView(p core.Period, plans []settle.Plan) settlementsView {
	v := settlementsView{Period: p.String(), Plans: make([]planView, 0, len(plans))}
	for _, pl := range plans {
		v.Plans = append(v.Plans, planView{Unit: pl.Unit, Transfers: newTransfersView(pl.Transfers)})
	}
	return v
}

func newCategoryTotalsView(u report.UnitTotals) []categoryTotalView {
	out := make([]categoryTotalView, 0, len(u.Categories))
	for _, c := range u.Categories {
		out = append(out, categoryTotalView{Category: c.Category, Amount: amount(c.Amount)})
	}
	return out
}

func newTotalsView(year, month int, totals report.Totals) totalsView {
	v := totalsView{Year: year, Month: month, Units: make([]unitTotalsView, 0, len(totals))}
	for _, u := range totals {
		v.Units = append(v.Units, unitTotalsView{
			Unit:       u.Unit,
			Categories: newCategoryTotalsView(u),
			Total:      amount(u.Sum()),
		})
	}
	return v
}

func newConvertedView(p core.Period, c services.ConvertedView) convertedView {
	skipped := c.Skipped
	if skipped == nil {
		skipped = []string{}
	}
	return convertedView{
		Period:      p.String(),
		Base:        c.Base,
		Source:      c.Source,
		AsOf:        c.AsOf,
		Balances:    newPositionsView(c.Balances),
		Settlements: newTransfersView(c.Settlements),
		Totals:      newCategoryTotalsView(c.Totals),
		GrandTotal:  amount(c.GrandTotal),
		Skipped:     skipped,
	}
}
