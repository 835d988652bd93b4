package api

import (
	stdctx "context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fxdesk/trade-coordinator/internal/events"
	"github.com/fxdesk/trade-coordinator/internal/profile"
	"github.com/fxdesk/trade-coordinator/internal/report"
	"github.com/fxdesk/trade-coordinator/pkg/types"
)

// messengerUpdate mirrors the slice of a Telegram-shaped webhook Update
// this coordinator actually reads: an incoming text command or an inline
// keyboard callback, each tied to the chat it arrived on.
type messengerUpdate struct {
	Message       *messengerMessage `json:"message"`
	CallbackQuery *messengerCallback `json:"callback_query"`
}

type messengerMessage struct {
	Text string `json:"text"`
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

type messengerCallback struct {
	Data    string `json:"data"`
	Message struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// dispatchMessengerUpdate routes a decoded webhook update to the command
// or inline-callback handler. Every reply goes out through the Notifier's
// single configured chat — this bot targets one operator chat, not an
// arbitrary multi-tenant audience, so replying via SendText rather than
// addressing the inbound chat id is correct for this deployment shape.
func (s *Server) dispatchMessengerUpdate(ctx stdctx.Context, update messengerUpdate) {
	if s.notify == nil {
		return
	}

	switch {
	case update.Message != nil && strings.HasPrefix(update.Message.Text, "/"):
		chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
		if !s.notify.IsAuthorizedChat(chatID) {
			s.logger.Warn("messenger command from unauthorized chat", zap.String("chat_id", chatID))
			return
		}
		s.handleMessengerCommand(ctx, update.Message.Text)
	case update.CallbackQuery != nil && update.CallbackQuery.Data != "":
		chatID := strconv.FormatInt(update.CallbackQuery.Message.Chat.ID, 10)
		if !s.notify.IsAuthorizedChat(chatID) {
			s.logger.Warn("messenger callback from unauthorized chat", zap.String("chat_id", chatID))
			return
		}
		s.handleMessengerCallback(ctx, update.CallbackQuery.Data)
	}
}

// handleMessengerCommand parses a "/command arg1 arg2" line and dispatches
// to the matching handler. An unrecognized command is answered with the
// same usage hint /help gives.
func (s *Server) handleMessengerCommand(ctx stdctx.Context, text string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "/scan":
		s.cmdScan(ctx, args)
	case "/stats":
		s.cmdStats(ctx, args)
	case "/news":
		s.cmdNews(ctx)
	case "/drawdown":
		s.cmdDrawdown(ctx)
	case "/reset":
		s.cmdReset(ctx)
	case "/status":
		s.cmdStatus(ctx)
	case "/report":
		s.cmdReport(ctx, args)
	case "/context":
		s.cmdContext(ctx, args)
	case "/backtest":
		s.notify.SendText(ctx, "no historical backtester configured — replay/backtest runs outside this coordinator")
	case "/help":
		s.cmdHelp(ctx)
	default:
		s.notify.SendText(ctx, "unrecognized command: "+cmd+"\nSend /help for the command list")
	}
}

// handleMessengerCallback routes an inline-keyboard press. Every callback
// is of the form "<action>_<SYMBOL>_<rest>".
func (s *Server) handleMessengerCallback(ctx stdctx.Context, data string) {
	switch {
	case strings.HasPrefix(data, "execute_"):
		s.callbackExecute(ctx, strings.TrimPrefix(data, "execute_"))
	case strings.HasPrefix(data, "skip_"):
		s.callbackSkip(ctx, strings.TrimPrefix(data, "skip_"))
	case strings.HasPrefix(data, "force_"):
		s.callbackForceExecute(ctx, strings.TrimPrefix(data, "force_"))
	case strings.HasPrefix(data, "dismiss_"):
		s.callbackDismiss(ctx, strings.TrimPrefix(data, "dismiss_"))
	default:
		s.logger.Debug("unrecognized messenger callback", zap.String("data", data))
	}
}

// splitSymbolRest splits "<SYMBOL>_<rest...>" on the first underscore —
// every callback's rest segment (a setup index or a trade id) never
// itself contains an underscore.
func splitSymbolRest(payload string) (symbol, rest string) {
	parts := strings.SplitN(payload, "_", 2)
	if len(parts) != 2 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

// cmdScan re-runs the screener against the most recently cached bundle
// for symbol (or the first cached symbol, if none was named) without
// requiring a fresh terminal submission.
func (s *Server) cmdScan(ctx stdctx.Context, args []string) {
	symbol := ""
	if len(args) > 0 {
		symbol = strings.ToUpper(args[0])
	}

	s.mu.Lock()
	if symbol == "" {
		for sym := range s.bundles {
			symbol = sym
			break
		}
	}
	bundle, ok := s.bundles[symbol]
	s.mu.Unlock()

	if symbol == "" || !ok {
		s.notify.SendText(ctx, "no cached submission available — trigger a scan from the terminal first\nUsage: /scan [SYMBOL]")
		return
	}

	s.notify.SendText(ctx, "rescanning "+symbol+"...")
	prof := profile.Get(symbol)
	profileCtx, _ := s.engine.Context(ctx, symbol, prof.BaseCurrency, prof.QuoteCurrency)
	screen := s.engine.Screen(ctx, symbol, bundle.shots, bundle.market, profileCtx)
	if !screen.HasSetup {
		s.notify.SendText(ctx, symbol+": screener found no setup\n"+screen.Reasoning)
		return
	}
	s.notify.SendText(ctx, symbol+": screener sees a possible setup ("+screen.H1Trend+")\n"+screen.MarketSummary)
}

// cmdStats formats the same aggregate Stats the authenticated /stats
// endpoint serves, as text for the messenger. Args are taken in either
// order: a numeric token sets days, a non-numeric token sets symbol.
func (s *Server) cmdStats(ctx stdctx.Context, args []string) {
	symbol := ""
	days := 30
	for _, a := range args {
		if n, err := strconv.Atoi(a); err == nil && n > 0 {
			days = n
			continue
		}
		symbol = strings.ToUpper(a)
	}

	stats, err := s.store.Stats(symbol, days)
	if err != nil {
		s.notify.SendText(ctx, "failed to load stats: "+err.Error())
		return
	}
	if stats.TotalTrades == 0 {
		label := ""
		if symbol != "" {
			label = " for " + symbol
		}
		s.notify.SendText(ctx, fmt.Sprintf("no trades in the last %d days%s", days, label))
		return
	}

	title := fmt.Sprintf("Performance — %s (%dd)", orAll(symbol), days)
	s.notify.SendText(ctx, fmt.Sprintf(
		"%s\n%s\n\nTrades: %d | Wins: %d | Losses: %d\nWin rate: %s%%\nP&L: %s pips / $%s",
		title, strings.Repeat("-", len(title)),
		stats.TotalTrades, stats.Wins, stats.Losses,
		stats.WinRate.Mul(decimal.NewFromInt(100)).StringFixed(0),
		stats.TotalPnLPips.StringFixed(1), stats.TotalPnLMoney.StringFixed(2),
	))
}

// cmdNews reports which tracked symbols currently sit inside the Risk
// Gate's news-window block.
func (s *Server) cmdNews(ctx stdctx.Context) {
	if s.gate == nil {
		s.notify.SendText(ctx, "risk gate not configured")
		return
	}
	var blocked []string
	for _, sym := range s.config.Symbols {
		if s.gate.UpcomingNews(sym) {
			blocked = append(blocked, sym)
		}
	}
	if len(blocked) == 0 {
		s.notify.SendText(ctx, "no high-impact news within the gate's window for tracked pairs: "+strings.Join(s.config.Symbols, ", "))
		return
	}
	s.notify.SendText(ctx, "news window active for: "+strings.Join(blocked, ", "))
}

// cmdDrawdown reports today's realized P&L, the open-trade count, and the
// configured thresholds the Risk Gate checks candidates against.
func (s *Server) cmdDrawdown(ctx stdctx.Context) {
	pnl, err := s.store.DailyPnL()
	if err != nil {
		s.notify.SendText(ctx, "failed to load daily P&L: "+err.Error())
		return
	}
	openCount, err := s.store.OpenTradeCount()
	if err != nil {
		s.notify.SendText(ctx, "failed to load open trade count: "+err.Error())
		return
	}
	cfg := s.gate.Config()
	s.notify.SendText(ctx, fmt.Sprintf(
		"Today's P&L: $%s\nOpen trades: %d / %d\nMax daily drawdown: %s%%",
		pnl.StringFixed(2), openCount, cfg.MaxOpenTrades, cfg.MaxDailyDrawdownPct.StringFixed(1),
	))
}

// cmdReset re-arms the scheduler's missed-scan alerts immediately,
// letting an operator clear a false alarm without waiting for local
// midnight.
func (s *Server) cmdReset(ctx stdctx.Context) {
	if s.resetter == nil {
		s.notify.SendText(ctx, "scheduler not configured, nothing to reset")
		return
	}
	s.resetter.ResetDailyAlerts()
	s.notify.SendText(ctx, "daily alert flags reset")
}

// cmdStatus summarizes bot liveness, active watches, and any pending
// queue entries across every tracked symbol.
func (s *Server) cmdStatus(ctx stdctx.Context) {
	var lines []string
	lines = append(lines, "Bot: online")
	for _, w := range s.registry.All() {
		lines = append(lines, fmt.Sprintf("%s: watching (%d/%d confirmations used)", w.Symbol, w.ConfirmationsUsed, w.MaxConfirmations))
	}
	for _, sym := range s.config.Symbols {
		if _, ok := s.queue.Get(sym); ok {
			lines = append(lines, sym+": trade pending in queue")
		}
	}
	if len(lines) == 1 {
		lines = append(lines, "no active watches or pending trades")
	}
	s.notify.SendText(ctx, strings.Join(lines, "\n"))
}

// cmdReport builds and sends the weekly (default) or monthly report
// on demand, the same aggregation the scheduler's cron jobs trigger.
func (s *Server) cmdReport(ctx stdctx.Context, args []string) {
	period := report.PeriodWeekly
	if len(args) > 0 && strings.EqualFold(args[0], "monthly") {
		period = report.PeriodMonthly
	}
	r, err := report.Build(s.store, s.config.Symbols, period, time.Now().UTC())
	if err != nil {
		s.notify.SendText(ctx, "failed to build report: "+err.Error())
		return
	}
	s.notify.SendText(ctx, report.Render(r))
}

// cmdContext reports the cached Tier-0 macro-context text for symbol, if
// one has been built today.
func (s *Server) cmdContext(ctx stdctx.Context, args []string) {
	if len(args) == 0 {
		s.notify.SendText(ctx, "usage: /context SYMBOL")
		return
	}
	symbol := strings.ToUpper(args[0])
	prof := profile.Get(symbol)
	text, ok := s.engine.Context(ctx, symbol, prof.BaseCurrency, prof.QuoteCurrency)
	if !ok {
		s.notify.SendText(ctx, symbol+": no context cached yet today")
		return
	}
	s.notify.SendText(ctx, symbol+" context:\n"+text)
}

func (s *Server) cmdHelp(ctx stdctx.Context) {
	s.notify.SendText(ctx, strings.Join([]string{
		"Commands:",
		"/scan [SYMBOL] - re-run the screener on the last cached submission",
		"/stats [SYMBOL] [DAYS] - performance summary",
		"/news - upcoming high-impact news for tracked pairs",
		"/drawdown - today's P&L against the risk gate's thresholds",
		"/reset - re-arm today's missed-scan alerts",
		"/status - active watches and pending trades",
		"/report [monthly] - on-demand weekly/monthly report",
		"/context SYMBOL - today's cached macro context",
		"/backtest - historical replay status",
		"/help - this message",
	}, "\n"))
}

// callbackExecute manually queues a setup the last full-analysis run
// produced, bypassing the auto-queue checklist threshold (an explicit
// operator press is itself the threshold) but never the Risk Gate, which
// spec applies identically to the auto-queue and manual-execute paths.
func (s *Server) callbackExecute(ctx stdctx.Context, payload string) {
	symbol, idxStr := splitSymbolRest(payload)
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		s.notify.SendText(ctx, "malformed execute callback")
		return
	}

	s.mu.Lock()
	result, ok := s.results[symbol]
	bundle, hasBundle := s.bundles[symbol]
	s.mu.Unlock()
	if !ok || idx < 0 || idx >= len(result.Setups) {
		s.notify.SendText(ctx, symbol+": setup data no longer available")
		return
	}
	setup := result.Setups[idx]

	var accountBalance decimal.Decimal
	if hasBundle {
		accountBalance = bundle.market.AccountBalance
	}
	decision := s.gate.Check(symbol, setup, accountBalance)
	if !decision.Allow {
		s.notify.SendText(ctx, fmt.Sprintf("%s: blocked by risk gate (%s)", symbol, decision.Reason))
		return
	}

	watchTrade, err := s.registry.CreateFromSetup(symbol, setup)
	if err != nil {
		s.notify.SendText(ctx, symbol+": could not start watch: "+err.Error())
		return
	}
	if err := s.store.LogTradeQueued(tradeRecordFromSetup(watchTrade, setup)); err != nil {
		s.logger.Error("messenger execute: failed to log queued trade", zap.Error(err))
	}
	if s.bus != nil {
		s.bus.Publish(events.NewWatchEvent(symbol, watchTrade.ID, watchTrade.Status, "manually executed from messenger"))
	}
	s.hub.BroadcastWatchEvent(symbol, watchTrade.ID, string(watchTrade.Status), "")
	s.notify.SendText(ctx, symbol+" setup manually queued — watching for zone entry")
}

func (s *Server) callbackSkip(ctx stdctx.Context, payload string) {
	symbol, _ := splitSymbolRest(payload)
	s.notify.SendText(ctx, symbol+" setup skipped")
}

// callbackForceExecute reads the snapshot handleConfirmEntry stashed on
// the last rejection for symbol and republishes it to the TradeQueue
// under its original id, satisfying the "Force Execute button publishes
// a PendingTrade with the same id" contract.
func (s *Server) callbackForceExecute(ctx stdctx.Context, payload string) {
	symbol, tradeID := splitSymbolRest(payload)

	s.mu.Lock()
	snapshot, ok := s.lastRejected[symbol]
	if ok {
		delete(s.lastRejected, symbol)
	}
	s.mu.Unlock()

	if !ok || snapshot.ID != tradeID {
		s.notify.SendText(ctx, symbol+": no rejected watch available to force-execute")
		return
	}

	trade := types.PendingTrade{
		ID:       snapshot.ID,
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
	}
	if s.bus != nil {
		s.bus.Publish(events.NewTradeQueuedEvent(trade))
	}
	s.notify.NotifyForceExecute(ctx, symbol, snapshot.ID)
}

func (s *Server) callbackDismiss(ctx stdctx.Context, payload string) {
	symbol, _ := splitSymbolRest(payload)
	s.mu.Lock()
	delete(s.lastRejected, symbol)
	s.mu.Unlock()
	s.notify.SendText(ctx, symbol+": force-execute offer dismissed")
}

func orAll(symbol string) string {
	if symbol == "" {
		return "all pairs"
	}
	return symbol
}
