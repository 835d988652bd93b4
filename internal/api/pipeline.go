package api

import (
	stdctx "context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fxdesk/trade-coordinator/internal/events"
	"github.com/fxdesk/trade-coordinator/internal/profile"
	"github.com/fxdesk/trade-coordinator/pkg/types"
)

const maxUploadBytes = 32 << 20 // 32MiB: four chart screenshots plus form fields

// handleAnalyze accepts a terminal submission (four chart screenshots plus
// a market_data JSON blob), archives the screenshots, caches the bundle in
// memory keyed by symbol, and dispatches the Screen -> FullAnalysis ->
// RiskGate -> CreateFromSetup pipeline in the background. It returns
// "accepted" immediately — the pipeline's eventual outcome surfaces later
// via the messenger, the /ws stream, or a subsequent /scan poll.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	symbol := r.FormValue("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	var market types.MarketData
	if err := json.Unmarshal([]byte(r.FormValue("market_data")), &market); err != nil {
		writeError(w, http.StatusBadRequest, "invalid market_data")
		return
	}
	market.Symbol = symbol

	shots, err := s.readScreenshots(r, symbol)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	s.bundles[symbol] = symbolBundle{shots: shots, market: market}
	s.mu.Unlock()

	if err := s.pool.SubmitFunc(func(ctx stdctx.Context) error {
		s.runPipeline(ctx, symbol, shots, market)
		return nil
	}); err != nil {
		writeError(w, http.StatusServiceUnavailable, "worker pool saturated")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "symbol": symbol})
}

// readScreenshots pulls the four expected timeframe uploads and archives
// each under screenshots/<date>_<symbol>/<HHMMSS>_<tf>.png.
func (s *Server) readScreenshots(r *http.Request, symbol string) (types.Screenshots, error) {
	fields := map[string]types.Timeframe{
		"screenshot_h1":  types.TimeframeH1,
		"screenshot_m15": types.TimeframeM15,
		"screenshot_m5":  types.TimeframeM5,
		"screenshot_m1":  types.TimeframeM1,
	}

	now := time.Now().UTC()
	dir := filepath.Join(s.config.DataDir, "screenshots", fmt.Sprintf("%s_%s", now.Format("2006-01-02"), symbol))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating screenshot archive dir: %w", err)
	}

	shots := make(types.Screenshots, len(fields))
	for field, tf := range fields {
		file, _, err := r.FormFile(field)
		if err != nil {
			continue
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", field, err)
		}
		shots[tf] = data

		archivePath := filepath.Join(dir, fmt.Sprintf("%s_%s.png", now.Format("150405"), tf))
		if err := os.WriteFile(archivePath, data, 0o644); err != nil {
			s.logger.Warn("failed to archive screenshot", zap.String("path", archivePath), zap.Error(err))
		}
	}
	if len(shots) == 0 {
		return nil, fmt.Errorf("no screenshots provided")
	}
	return shots, nil
}

// runPipeline executes the three-tier analysis pipeline for one submission
// on a worker-pool goroutine. Every stage is best-effort beyond the point
// where a terminal outcome (no setup, denied, or watch created) is
// reached — failures are logged, never retried automatically.
func (s *Server) runPipeline(ctx stdctx.Context, symbol string, shots types.Screenshots, market types.MarketData) {
	logger := s.logger.With(zap.String("symbol", symbol))

	prof := profile.Get(symbol)
	profileCtx, _ := s.engine.Context(ctx, symbol, prof.BaseCurrency, prof.QuoteCurrency)

	screen := s.engine.Screen(ctx, symbol, shots, market, profileCtx)
	s.recordAnalysisOutcome("screen", screen.HasSetup)
	if !screen.HasSetup {
		logger.Info("screener found no setup")
		return
	}

	result, err := s.engine.FullAnalysis(ctx, symbol, shots, market, profileCtx)
	if err != nil {
		logger.Error("full analysis failed", zap.Error(err))
		s.recordAnalysisOutcome("full", false)
		return
	}
	s.recordAnalysisOutcome("full", len(result.Setups) > 0)

	s.mu.Lock()
	s.results[symbol] = result
	s.mu.Unlock()

	for _, setup := range result.Setups {
		s.handleSetup(ctx, symbol, market.AccountBalance, setup)
	}
}

func (s *Server) recordAnalysisOutcome(tier string, hasSetup bool) {
	if s.metrics == nil {
		return
	}
	outcome := "no_setup"
	if hasSetup {
		outcome = "setup"
	}
	s.metrics.AnalysisCalls.WithLabelValues(tier, outcome).Inc()
}

// handleSetup runs one TradeSetup through the Risk Gate, notifies the
// setup card either way, and — if allowed and the checklist score clears
// the auto-queue threshold — creates a WatchTrade.
func (s *Server) handleSetup(ctx stdctx.Context, symbol string, accountBalance decimal.Decimal, setup types.TradeSetup) {
	logger := s.logger.With(zap.String("symbol", symbol))

	decision := s.gate.Check(symbol, setup, accountBalance)
	if s.notify != nil {
		s.notify.NotifySetup(ctx, symbol, setup)
	}
	if !decision.Allow {
		logger.Info("risk gate denied setup", zap.String("reason", decision.Reason))
		if s.metrics != nil {
			s.metrics.RiskGateDenials.WithLabelValues(decision.Reason).Inc()
		}
		if s.bus != nil {
			s.bus.Publish(events.NewRiskDeniedEvent(symbol, decision.Reason))
		}
		s.hub.BroadcastRiskDenial(symbol, decision.Reason)
		return
	}

	threshold := s.config.AutoQueueMinChecklist
	if threshold <= 0 {
		threshold = 7
	}
	if setup.ChecklistScore < threshold {
		logger.Info("setup below auto-queue threshold, leaving for manual review",
			zap.Int("score", setup.ChecklistScore), zap.Int("threshold", threshold))
		return
	}

	watchTrade, err := s.registry.CreateFromSetup(symbol, setup)
	if err != nil {
		logger.Warn("could not create watch", zap.Error(err))
		return
	}

	if err := s.store.LogTradeQueued(tradeRecordFromSetup(watchTrade, setup)); err != nil {
		logger.Error("failed to log queued trade", zap.Error(err))
		if s.metrics != nil {
			s.metrics.StoreWriteErrors.Inc()
		}
	}
	if s.bus != nil {
		s.bus.Publish(events.NewWatchEvent(symbol, watchTrade.ID, watchTrade.Status, "auto-queued from full analysis"))
	}
	if s.metrics != nil {
		s.metrics.WatchTransitions.WithLabelValues("none", string(watchTrade.Status)).Inc()
		s.metrics.PendingWatches.Set(float64(len(s.registry.All())))
	}
	s.hub.BroadcastWatchEvent(watchTrade.Symbol, watchTrade.ID, string(watchTrade.Status), "")
}

func tradeRecordFromSetup(w types.WatchTrade, setup types.TradeSetup) types.TradeRecord {
	return types.TradeRecord{
		ID:              w.ID,
		Symbol:          w.Symbol,
		Bias:            setup.Bias,
		EntryMin:        setup.EntryMin,
		EntryMax:        setup.EntryMax,
		StopLoss:        setup.StopLoss,
		TP1:             setup.TP1,
		TP2:             setup.TP2,
		SLPips:          setup.SLPips,
		TP1Pips:         setup.TP1Pips,
		TP2Pips:         setup.TP2Pips,
		ChecklistScore:  setup.ChecklistScore,
		Confidence:      setup.Confidence,
		EntryStatus:     setup.EntryStatus,
		PriceZone:       setup.PriceZone,
		TrendAlignment:  setup.TrendAlignment,
		CounterTrend:    setup.CounterTrend,
		CreatedAt:       time.Now().UTC(),
	}
}

// handleStats serves the authenticated per-symbol performance digest.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	days := intQuery(r, "days", 30)

	stats, err := s.store.Stats(symbol, days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleScan re-runs the cached bundle's screener/full-analysis result
// for symbol without requiring a fresh submission.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	s.mu.Lock()
	bundle, ok := s.bundles[symbol]
	result, hasResult := s.results[symbol]
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "no cached submission for symbol")
		return
	}
	if hasResult {
		writeJSON(w, http.StatusOK, result)
		return
	}

	prof := profile.Get(symbol)
	profileCtx, _ := s.engine.Context(r.Context(), symbol, prof.BaseCurrency, prof.QuoteCurrency)
	screen := s.engine.Screen(r.Context(), symbol, bundle.shots, bundle.market, profileCtx)
	writeJSON(w, http.StatusOK, screen)
}

// handlePendingTrade is a read-only, idempotent poll of the TradeQueue.
func (s *Server) handlePendingTrade(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	trade, ok := s.queue.Get(symbol)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"pending": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": true, "trade": trade})
}

// handleWatchTrade is a read-only, idempotent poll of the WatchRegistry's
// active watch for symbol.
func (s *Server) handleWatchTrade(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	watch, ok := s.registry.Active(symbol)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"watching": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"watching": true, "watch": watch})
}

func intQuery(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	var v int
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil || v <= 0 {
		return fallback
	}
	return v
}
