package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/fxdesk/trade-coordinator/internal/report"
	"github.com/fxdesk/trade-coordinator/pkg/types"
)

// redactedTrade is the public, unauthenticated view of a TradeRecord: the
// setup shape and outcome without anything broker-side (tickets, lots,
// actual fill prices).
type redactedTrade struct {
	ID             string            `json:"id"`
	Symbol         string            `json:"symbol"`
	Bias           types.Bias        `json:"bias"`
	ChecklistScore int               `json:"checklist_score"`
	Confidence     types.Confidence  `json:"confidence"`
	Status         string            `json:"status"`
	Outcome        string            `json:"outcome"`
	PnLPips        string            `json:"pnl_pips,omitempty"`
}

func redact(t types.TradeRecord) redactedTrade {
	return redactedTrade{
		ID:             t.ID,
		Symbol:         t.Symbol,
		Bias:           t.Bias,
		ChecklistScore: t.ChecklistScore,
		Confidence:     t.Confidence,
		Status:         string(t.Status),
		Outcome:        string(t.Outcome),
		PnLPips:        t.PnLPips.String(),
	}
}

// handlePublicTrades serves a redacted, unauthenticated trade feed.
func (s *Server) handlePublicTrades(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	limit := intQuery(r, "limit", 50)

	trades, err := s.store.RecentTrades(symbol, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load trades")
		return
	}

	redacted := make([]redactedTrade, 0, len(trades))
	for _, t := range trades {
		redacted = append(redacted, redact(t))
	}
	writeJSON(w, http.StatusOK, redacted)
}

// handlePublicStats serves unauthenticated aggregate performance stats
// across every configured symbol.
func (s *Server) handlePublicStats(w http.ResponseWriter, r *http.Request) {
	days := intQuery(r, "days", 30)
	stats, err := s.store.Stats("", days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handlePublicReport serves the monthly performance report for a
// given calendar year/month as JSON — there is no PDF renderer anywhere
// in this stack's dependency surface, so unlike the terminal-facing
// messenger digest (plain text), the public surface gets the same
// JSON-safe Report struct the stats endpoints use.
func (s *Server) handlePublicReport(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	year, err := strconv.Atoi(vars["year"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid year")
		return
	}
	month, err := strconv.Atoi(vars["month"])
	if err != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "invalid month")
		return
	}

	asOf := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1)
	rep, err := report.Build(s.store, s.config.Symbols, report.PeriodMonthly, asOf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build report")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
