// Package report aggregates closed-trade history into the weekly and
// monthly performance summaries the scheduler's cron jobs trigger and the
// public stats endpoints serve. There is no PDF renderer in this stack —
// reports render as plain text for messenger delivery and as a JSON-safe
// struct for the public API, the way internal/feedback renders its
// prompt block.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fxdesk/trade-coordinator/internal/store"
	"github.com/fxdesk/trade-coordinator/pkg/types"
)

// Store is the subset of internal/store.Store a report needs.
type Store interface {
	Stats(symbol string, days int) (store.Stats, error)
	ClosedTradesSince(cutoff time.Time) ([]types.TradeRecord, error)
}

// Period identifies which cron job requested a report.
type Period string

const (
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Days returns the trailing window a period covers.
func (p Period) Days() int {
	if p == PeriodMonthly {
		return 30
	}
	return 7
}

// PairStat summarizes one symbol's performance within the report window.
type PairStat struct {
	Symbol      string          `json:"symbol"`
	Trades      int             `json:"trades"`
	WinRate     decimal.Decimal `json:"win_rate"`
	TotalPnL    decimal.Decimal `json:"pnl_pips"`
}

// ConfidenceStat summarizes performance for one confidence tier.
type ConfidenceStat struct {
	Confidence types.Confidence `json:"confidence"`
	Trades     int              `json:"trades"`
	WinRate    decimal.Decimal  `json:"win_rate"`
}

// Report is the full aggregation for one period, ready to render as text
// or serialize as JSON.
type Report struct {
	Period        Period          `json:"period"`
	GeneratedAt   time.Time       `json:"generated_at"`
	Days          int             `json:"days"`
	TotalTrades   int             `json:"total_trades"`
	Wins          int             `json:"wins"`
	Losses        int             `json:"losses"`
	WinRate       decimal.Decimal `json:"win_rate"`
	TotalPnLPips  decimal.Decimal `json:"total_pnl_pips"`
	TotalPnLMoney decimal.Decimal `json:"total_pnl_money"`
	AvgWinPips    decimal.Decimal `json:"avg_win_pips"`
	AvgLossPips   decimal.Decimal `json:"avg_loss_pips"`
	ProfitFactor  decimal.Decimal `json:"profit_factor"`
	ByPair        []PairStat      `json:"by_pair,omitempty"`
	ByConfidence  []ConfidenceStat `json:"by_confidence,omitempty"`
}

// Build aggregates overall stats across symbols plus a per-pair and
// per-confidence breakdown, mirroring the overview/pair/confidence tables
// the source system's PDF builder assembled.
func Build(s Store, symbols []string, period Period, now time.Time) (Report, error) {
	days := period.Days()
	overall, err := s.Stats("", days)
	if err != nil {
		return Report{}, fmt.Errorf("report: overall stats: %w", err)
	}

	r := Report{
		Period:        period,
		GeneratedAt:   now,
		Days:          days,
		TotalTrades:   overall.TotalTrades,
		Wins:          overall.Wins,
		Losses:        overall.Losses,
		WinRate:       overall.WinRate,
		TotalPnLPips:  overall.TotalPnLPips,
		TotalPnLMoney: overall.TotalPnLMoney,
	}

	cutoff := now.AddDate(0, 0, -days)
	closed, err := s.ClosedTradesSince(cutoff)
	if err != nil {
		return Report{}, fmt.Errorf("report: closed trades: %w", err)
	}
	r.AvgWinPips, r.AvgLossPips, r.ProfitFactor = pipAverages(closed)
	r.ByPair = byPair(closed, symbols)
	r.ByConfidence = byConfidence(closed)

	return r, nil
}

func pipAverages(trades []types.TradeRecord) (avgWin, avgLoss, profitFactor decimal.Decimal) {
	var winSum, lossSum decimal.Decimal
	var wins, losses int
	for _, t := range trades {
		switch t.Outcome {
		case types.OutcomeFullWin, types.OutcomePartialWin:
			winSum = winSum.Add(t.PnLPips)
			wins++
		case types.OutcomeLoss:
			lossSum = lossSum.Add(t.PnLPips)
			losses++
		}
	}
	if wins > 0 {
		avgWin = winSum.Div(decimal.NewFromInt(int64(wins)))
	}
	if losses > 0 {
		avgLoss = lossSum.Div(decimal.NewFromInt(int64(losses)))
	}
	grossLoss := lossSum.Abs()
	if grossLoss.IsPositive() {
		profitFactor = winSum.Div(grossLoss)
	}
	return avgWin, avgLoss, profitFactor
}

// byPair only reports a breakdown when more than one symbol traded in the
// window — a single-pair deployment gets nothing extra from it, matching
// the source report's "only show if len(pair_stats) > 1" guard.
func byPair(trades []types.TradeRecord, symbols []string) []PairStat {
	bySymbol := make(map[string]*PairStat)
	for _, sym := range symbols {
		bySymbol[sym] = &PairStat{Symbol: sym}
	}
	for _, t := range trades {
		p, ok := bySymbol[t.Symbol]
		if !ok {
			p = &PairStat{Symbol: t.Symbol}
			bySymbol[t.Symbol] = p
		}
		p.Trades++
		p.TotalPnL = p.TotalPnL.Add(t.PnLPips)
	}

	var wins = make(map[string]int)
	for _, t := range trades {
		if t.Outcome == types.OutcomeFullWin || t.Outcome == types.OutcomePartialWin {
			wins[t.Symbol]++
		}
	}

	out := make([]PairStat, 0, len(bySymbol))
	for sym, p := range bySymbol {
		if p.Trades == 0 {
			continue
		}
		p.WinRate = decimal.NewFromInt(int64(wins[sym])).Div(decimal.NewFromInt(int64(p.Trades)))
		out = append(out, *p)
	}
	if len(out) <= 1 {
		return nil
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func byConfidence(trades []types.TradeRecord) []ConfidenceStat {
	order := []types.Confidence{types.ConfidenceHigh, types.ConfidenceMediumHigh, types.ConfidenceMedium, types.ConfidenceLow}
	counts := make(map[types.Confidence]int)
	wins := make(map[types.Confidence]int)
	for _, t := range trades {
		counts[t.Confidence]++
		if t.Outcome == types.OutcomeFullWin || t.Outcome == types.OutcomePartialWin {
			wins[t.Confidence]++
		}
	}

	var out []ConfidenceStat
	for _, c := range order {
		n := counts[c]
		if n == 0 {
			continue
		}
		out = append(out, ConfidenceStat{
			Confidence: c,
			Trades:     n,
			WinRate:    decimal.NewFromInt(int64(wins[c])).Div(decimal.NewFromInt(int64(n))),
		})
	}
	return out
}

// Render formats r as a plain-text digest suitable for messenger delivery.
func Render(r Report) string {
	var b strings.Builder

	title := "Weekly Performance Report"
	if r.Period == PeriodMonthly {
		title = "Monthly Performance Report"
	}
	fmt.Fprintf(&b, "%s\n", title)
	fmt.Fprintf(&b, "%s\n\n", strings.Repeat("=", len(title)))

	fmt.Fprintf(&b, "Total trades: %d\n", r.TotalTrades)
	fmt.Fprintf(&b, "Win rate: %.1f%%\n", pct(r.WinRate))
	fmt.Fprintf(&b, "Wins / Losses: %d / %d\n", r.Wins, r.Losses)
	fmt.Fprintf(&b, "Total P&L: %+.1f pips\n", toFloat(r.TotalPnLPips))
	fmt.Fprintf(&b, "Avg win: +%.1f pips\n", toFloat(r.AvgWinPips))
	fmt.Fprintf(&b, "Avg loss: %.1f pips\n", toFloat(r.AvgLossPips))
	fmt.Fprintf(&b, "Profit factor: %.2f\n", toFloat(r.ProfitFactor))

	if len(r.ByPair) > 0 {
		b.WriteString("\nBy pair:\n")
		for _, p := range r.ByPair {
			fmt.Fprintf(&b, "  %s: %d trades, %.1f%% win rate, %+.1f pips\n", p.Symbol, p.Trades, pct(p.WinRate), toFloat(p.TotalPnL))
		}
	}

	if len(r.ByConfidence) > 0 {
		b.WriteString("\nBy confidence:\n")
		for _, c := range r.ByConfidence {
			fmt.Fprintf(&b, "  %s: %d trades, %.1f%% win rate\n", strings.ToUpper(string(c.Confidence)), c.Trades, pct(c.WinRate))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func pct(d decimal.Decimal) float64 {
	f, _ := d.Mul(decimal.NewFromInt(100)).Float64()
	return f
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
