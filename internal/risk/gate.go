// Package risk implements the Risk Gate: a pure decision function over
// current state, applied identically by the auto-queue path and the
// manual execute path. The gate has no side effects.
package risk

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fxdesk/trade-coordinator/internal/profile"
	"github.com/fxdesk/trade-coordinator/pkg/types"
)

// NewsCalendar reports whether a high-impact event is scheduled for a
// currency within a window. It is an external collaborator (spec §1);
// the gate only depends on this narrow interface.
type NewsCalendar interface {
	HasHighImpactEvent(currency string, window time.Duration) bool
}

// NoCalendar is a NewsCalendar that never blocks — used when no news
// provider is configured.
type NoCalendar struct{}

// HasHighImpactEvent always returns false.
func (NoCalendar) HasHighImpactEvent(string, time.Duration) bool { return false }

// OpenTradesSource supplies the open trades, their count, and today's
// monetary P&L the gate needs. The Store satisfies this.
type OpenTradesSource interface {
	OpenTrades() ([]types.TradeRecord, error)
	OpenTradeCount() (int, error)
	DailyPnL() (decimal.Decimal, error)
}

// Config holds the gate's thresholds.
type Config struct {
	NewsWindow          time.Duration
	MaxDailyDrawdownPct decimal.Decimal
	MaxOpenTrades       int
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		NewsWindow:          2 * time.Minute,
		MaxDailyDrawdownPct: decimal.NewFromFloat(3.0),
		MaxOpenTrades:       2,
	}
}

// Gate is the Risk Gate. It carries read-only references to its
// collaborators; Check is a pure function of their current state.
type Gate struct {
	logger   *zap.Logger
	config   Config
	calendar NewsCalendar
	source   OpenTradesSource
}

// New constructs a Gate.
func New(logger *zap.Logger, config Config, calendar NewsCalendar, source OpenTradesSource) *Gate {
	if calendar == nil {
		calendar = NoCalendar{}
	}
	return &Gate{logger: logger.Named("risk-gate"), config: config, calendar: calendar, source: source}
}

// Config returns a copy of the gate's thresholds, for callers (the
// messenger /drawdown command) that need to report them without
// duplicating the gate's own state.
func (g *Gate) Config() Config {
	return g.config
}

// UpcomingNews reports whether either side of symbol's pair has a
// high-impact event scheduled within the gate's configured news window —
// the same check Check applies, exposed read-only for the /news command.
func (g *Gate) UpcomingNews(symbol string) bool {
	p := profile.Get(symbol)
	return g.calendar.HasHighImpactEvent(p.BaseCurrency, g.config.NewsWindow) ||
		g.calendar.HasHighImpactEvent(p.QuoteCurrency, g.config.NewsWindow)
}

// Decision is the Check result: Allow, or Allow=false with a stable Reason.
type Decision struct {
	Allow  bool
	Reason string
}

// Check applies, in order: news window, daily drawdown, max open trades,
// currency correlation. First deny wins.
func (g *Gate) Check(symbol string, setup types.TradeSetup, accountBalance decimal.Decimal) Decision {
	p := profile.Get(symbol)

	// 1. News window.
	if g.calendar.HasHighImpactEvent(p.BaseCurrency, g.config.NewsWindow) ||
		g.calendar.HasHighImpactEvent(p.QuoteCurrency, g.config.NewsWindow) {
		return deny("news_window", g.logger, symbol)
	}

	// 2. Daily drawdown.
	dailyPnL, err := g.source.DailyPnL()
	if err != nil {
		g.logger.Warn("risk gate: daily pnl lookup failed", zap.Error(err))
	} else if !accountBalance.IsZero() {
		loss := decimal.Min(decimal.Zero, dailyPnL).Abs()
		pct := loss.Div(accountBalance).Mul(decimal.NewFromInt(100))
		if pct.GreaterThanOrEqual(g.config.MaxDailyDrawdownPct) {
			return deny("daily_drawdown", g.logger, symbol)
		}
	}

	// 3. Max open trades.
	openCount, err := g.source.OpenTradeCount()
	if err != nil {
		g.logger.Warn("risk gate: open trade count lookup failed", zap.Error(err))
	} else if openCount >= g.config.MaxOpenTrades {
		return deny("max_open_trades", g.logger, symbol)
	}

	// 4. Currency correlation.
	openTrades, err := g.source.OpenTrades()
	if err != nil {
		g.logger.Warn("risk gate: open trades lookup failed", zap.Error(err))
	} else if conflict := correlationConflict(symbol, setup.Bias, openTrades); conflict {
		return deny("correlation_conflict", g.logger, symbol)
	}

	return Decision{Allow: true}
}

func deny(reason string, logger *zap.Logger, symbol string) Decision {
	logger.Info("risk gate denied", zap.String("symbol", symbol), zap.String("reason", reason))
	return Decision{Allow: false, Reason: reason}
}

// exposure is a directional currency position: +1 long, -1 short.
type exposure struct {
	currency  string
	direction int
	symbol    string
}

// currencyExposures expands a symbol+bias into its two directional
// currency exposures. Long GBPJPY = long GBP + short JPY.
func currencyExposures(symbol string, bias types.Bias) []exposure {
	p := profile.Get(symbol)
	dir := 1
	if bias == types.BiasShort {
		dir = -1
	}
	return []exposure{
		{currency: p.BaseCurrency, direction: dir, symbol: symbol},
		{currency: p.QuoteCurrency, direction: -dir, symbol: symbol},
	}
}

// correlationConflict reports whether adding (symbol, bias) would create
// same-direction exposure to a currency already held via a *different*
// symbol. Same-symbol overlap is not a conflict.
func correlationConflict(symbol string, bias types.Bias, openTrades []types.TradeRecord) bool {
	candidate := currencyExposures(symbol, bias)

	for _, t := range openTrades {
		if t.Symbol == symbol {
			continue // same-symbol overlap is never a correlation conflict
		}
		for _, openExp := range currencyExposures(t.Symbol, t.Bias) {
			for _, candExp := range candidate {
				if openExp.currency == candExp.currency && openExp.direction == candExp.direction {
					return true
				}
			}
		}
	}
	return false
}
