package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"conti/internal/cache"
	"conti/internal/core"
)

// serveReport writes the report called name for period, computing it with
// build only when no response for the current revision is cached.
func (s *Server) serveReport(w http.ResponseWriter, r *http.Request, name string, params []any, build func() any) {
	key := cache.Key(name, s.svc.Revision(), params...)
	if body, ok := s.reports.Get(key); ok {
		w.Header().Set("X-Cache", "HIT")
		writeBody(w, http.StatusOK, body)
		return
	}

	body, err := json.Marshal(build())
	if err != nil {
		writeError(w, r, fmt.Errorf("encode %s: %w", name, err))
		return
	}
	s.reports.Set(key, body)
	w.Header().Set("X-Cache", "MISS")
	writeBody(w, http.StatusOK, body)
}

func (s *Server) handlePeriods(w http.ResponseWriter, r *http.Request) {
	s.serveReport(w, r, "periods", nil, func() any { return s.svc.Periods() })
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.serveReport(w, r, "balances", []any{period}, func() any {
		return newBalancesView(period, s.svc.Balances(period))
	})
}

func (s *Server) handleSettlements(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.serveReport(w, r, "settlements", []any{period}, func() any {
		return newSettlementsView(period, s.svc.Settlements(period))
	})
}

// handleTotals reports one month, or the whole year when month is omitted.
// The year defaults to the current one.
func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if period.Year == 0 {
		period.Year = s.now().Year()
	}
	s.serveReport(w, r, "totals", []any{period.Year, period.Month}, func() any {
		return newTotalsView(period.Year, period.Month, s.svc.Totals(period.Year, period.Month))
	})
}

func (s *Server) handleConverted(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.serveReport(w, r, "converted", []any{period}, func() any {
		return newConvertedView(period, s.svc.Converted(period))
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusView{Status: s.svc.Status(), Revision: s.svc.Revision()})
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := s.svc.ExportCSV(&buf, period); err != nil {
		writeError(w, r, fmt.Errorf("export csv: %w", err))
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, exportFilename(period)))
	_, _ = w.Write(buf.Bytes())
}

func exportFilename(p core.Period) string {
	return "conti-" + p.String() + ".csv"
}
