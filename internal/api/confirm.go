package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fxdesk/trade-coordinator/internal/events"
	"github.com/fxdesk/trade-coordinator/pkg/types"
)

// handleConfirmEntry runs the M1 confirmation tier against a watching
// WatchTrade. The entry levels must be snapshotted via registry.Active
// before calling registry.Confirm, since Confirm deletes the watch on any
// terminal transition and its ConfirmOutcome carries no levels of its own.
func (s *Server) handleConfirmEntry(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	symbol := r.FormValue("symbol")
	watchID := r.FormValue("trade_id")
	if symbol == "" || watchID == "" {
		writeError(w, http.StatusBadRequest, "symbol and trade_id are required")
		return
	}

	currentPrice, err := decimal.NewFromString(r.FormValue("current_price"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid current_price")
		return
	}

	snapshot, ok := s.registry.Active(symbol)
	if !ok || snapshot.ID != watchID {
		writeError(w, http.StatusNotFound, "no matching watch for symbol")
		return
	}

	var image []byte
	if file, _, err := r.FormFile("screenshot_m1"); err == nil {
		image, _ = io.ReadAll(file)
		file.Close()
	}

	outcome, err := s.registry.Confirm(r.Context(), watchID, symbol, currentPrice, image)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	logger := s.logger.With(zap.String("symbol", symbol), zap.String("watch_id", watchID))

	if !outcome.Confirmed {
		// Transient (no confirmation consumed) or a real rejection — either
		// way there is nothing further to publish besides the notice.
		status := types.WatchStatusWatching
		if outcome.Remaining == 0 {
			status = types.WatchStatusRejected
			// Stash the pre-mutation snapshot so a messenger Force Execute
			// press can still republish it under its original id even
			// though the registry has already deleted the watch.
			s.mu.Lock()
			s.lastRejected[symbol] = snapshot
			s.mu.Unlock()
		}
		if s.notify != nil {
			s.notify.NotifyWatchOutcome(r.Context(), symbol, status, outcome.Reasoning)
		}
		writeJSON(w, http.StatusOK, outcome)
		return
	}

	trade := types.PendingTrade{
		ID:       watchID,
		Symbol:   symbol,
		Bias:     snapshot.Bias,
		EntryMin: snapshot.EntryMin,
		EntryMax: snapshot.EntryMax,
		StopLoss: snapshot.StopLoss,
		TP1:      snapshot.TP1,
		TP2:      snapshot.TP2,
		SLPips:   snapshot.SLPips,
	}
	s.queue.Publish(trade)
	if s.metrics != nil {
		s.metrics.TradesQueued.Inc()
		s.metrics.WatchTransitions.WithLabelValues(string(types.WatchStatusWatching), string(types.WatchStatusConfirmed)).Inc()
	}
	if s.bus != nil {
		s.bus.Publish(events.NewWatchEvent(symbol, watchID, types.WatchStatusConfirmed, outcome.Reasoning))
		s.bus.Publish(events.NewTradeQueuedEvent(trade))
	}
	s.hub.BroadcastWatchEvent(symbol, watchID, string(types.WatchStatusConfirmed), outcome.Reasoning)
	if s.notify != nil {
		s.notify.NotifyWatchOutcome(r.Context(), symbol, types.WatchStatusConfirmed, outcome.Reasoning)
	}
	logger.Info("m1 confirmation passed, trade queued")
	writeJSON(w, http.StatusOK, outcome)
}

// handleTradeExecuted ingests an executed/pending/failed fill report,
// clears the symbol's TradeQueue entry now that it has been claimed, and
// sends a best-effort confirmation notice.
func (s *Server) handleTradeExecuted(w http.ResponseWriter, r *http.Request) {
	var report types.TradeExecutionReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		writeError(w, http.StatusBadRequest, "invalid execution report")
		return
	}
	if report.TradeID == "" {
		writeError(w, http.StatusBadRequest, "trade_id is required")
		return
	}

	if err := s.store.LogTradeExecuted(report.TradeID, report); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist execution")
		if s.metrics != nil {
			s.metrics.StoreWriteErrors.Inc()
		}
		return
	}
	s.queue.Evict(report.Symbol)

	if s.bus != nil {
		s.bus.Publish(events.NewTradeLifecycleEvent(report.TradeID, report.Symbol, types.TradeStatusExecuted, types.OutcomeOpen))
	}
	s.hub.BroadcastTradeEvent(report.Symbol, report.TradeID, string(types.TradeStatusExecuted))
	if s.notify != nil {
		s.notify.SendText(r.Context(), "✅ "+report.Symbol+" executed — ticket TP1 "+
			strconv.FormatInt(report.TicketTP1, 10)+", TP2 "+strconv.FormatInt(report.TicketTP2, 10))
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTradeClosed ingests a close report for a previously executed
// trade, publishing the terminal lifecycle event and closing notice.
func (s *Server) handleTradeClosed(w http.ResponseWriter, r *http.Request) {
	var report types.TradeCloseReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		writeError(w, http.StatusBadRequest, "invalid close report")
		return
	}
	if report.TradeID == "" {
		writeError(w, http.StatusBadRequest, "trade_id is required")
		return
	}

	if err := s.store.LogTradeClosed(report); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist close")
		if s.metrics != nil {
			s.metrics.StoreWriteErrors.Inc()
		}
		return
	}

	outcome := outcomeFromCloseReason(report.Reason)
	if s.metrics != nil {
		s.metrics.TradesClosed.WithLabelValues(string(outcome)).Inc()
	}
	// TradeCloseReport carries no symbol — the store resolves the row by
	// trade_id alone, so downstream events key on trade_id only.
	if s.bus != nil {
		s.bus.Publish(events.NewTradeLifecycleEvent(report.TradeID, "", types.TradeStatusClosed, outcome))
	}
	s.hub.BroadcastTradeEvent("", report.TradeID, string(types.TradeStatusClosed))
	if s.notify != nil {
		s.notify.SendText(r.Context(), "\U0001f4ca trade "+report.TradeID+" closed — "+string(report.Reason)+" @ "+report.Price.String())
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func outcomeFromCloseReason(reason types.CloseReason) types.TradeOutcome {
	switch reason {
	case types.CloseReasonTP2:
		return types.OutcomeFullWin
	case types.CloseReasonTP1:
		return types.OutcomePartialWin
	case types.CloseReasonSL:
		return types.OutcomeLoss
	case types.CloseReasonCancelled:
		return types.OutcomeCancelled
	default:
		// An unrecognized reason is not a partial win; OutcomeFailed keeps
		// it out of the win/loss metrics rather than misreporting it.
		return types.OutcomeFailed
	}
}
