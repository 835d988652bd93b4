// Package types provides shared domain types for the trade coordinator.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OHLCBar is a single candlestick on one timeframe.
type OHLCBar struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// MarketData is an immutable snapshot for one symbol at one time.
type MarketData struct {
	Symbol         string          `json:"symbol"`
	Session        string          `json:"session"`
	Timestamp      time.Time       `json:"timestamp"`
	Bid            decimal.Decimal `json:"bid"`
	Ask            decimal.Decimal `json:"ask"`
	SpreadPips     decimal.Decimal `json:"spread_pips"`
	RSIH1          decimal.Decimal `json:"rsi_h1"`
	RSIM15         decimal.Decimal `json:"rsi_m15"`
	RSIM5          decimal.Decimal `json:"rsi_m5"`
	ATRH1          decimal.Decimal `json:"atr_h1"`
	ATRM15         decimal.Decimal `json:"atr_m15"`
	ATRM5          decimal.Decimal `json:"atr_m5"`
	PrevDayHigh    decimal.Decimal `json:"prev_day_high"`
	PrevDayLow     decimal.Decimal `json:"prev_day_low"`
	PrevDayClose   decimal.Decimal `json:"prev_day_close"`
	PrevWeekHigh   decimal.Decimal `json:"prev_week_high"`
	PrevWeekLow    decimal.Decimal `json:"prev_week_low"`
	AsianHigh      decimal.Decimal `json:"asian_high"`
	AsianLow       decimal.Decimal `json:"asian_low"`
	AccountBalance decimal.Decimal `json:"account_balance"`
	OHLCH1         []OHLCBar       `json:"ohlc_h1,omitempty"`
	OHLCM15        []OHLCBar       `json:"ohlc_m15,omitempty"`
	OHLCM5         []OHLCBar       `json:"ohlc_m5,omitempty"`
	OHLCM1         []OHLCBar       `json:"ohlc_m1,omitempty"`
}

// Timeframe tags a chart image.
type Timeframe string

const (
	TimeframeH1  Timeframe = "H1"
	TimeframeM15 Timeframe = "M15"
	TimeframeM5  Timeframe = "M5"
	TimeframeM1  Timeframe = "M1"
)

// Screenshots maps timeframe tag to opaque image bytes, captured together
// with a MarketData snapshot.
type Screenshots map[Timeframe][]byte

// Bias is the direction of a setup or watch.
type Bias string

const (
	BiasLong  Bias = "long"
	BiasShort Bias = "short"
)

// Confidence is the analysis engine's confidence tier for a setup.
type Confidence string

const (
	ConfidenceHigh       Confidence = "high"
	ConfidenceMediumHigh Confidence = "medium_high"
	ConfidenceMedium     Confidence = "medium"
	ConfidenceLow        Confidence = "low"
)

// EntryStatus describes how close price is to a setup's entry zone.
type EntryStatus string

const (
	EntryStatusAtZone          EntryStatus = "at_zone"
	EntryStatusApproaching     EntryStatus = "approaching"
	EntryStatusRequiresPullback EntryStatus = "requires_pullback"
)

// TradeSetup is an immutable opinion produced by the full-analysis tier.
type TradeSetup struct {
	Symbol          string          `json:"symbol"`
	Bias            Bias            `json:"bias"`
	EntryMin        decimal.Decimal `json:"entry_min"`
	EntryMax        decimal.Decimal `json:"entry_max"`
	StopLoss        decimal.Decimal `json:"stop_loss"`
	SLPips          decimal.Decimal `json:"sl_pips"`
	TP1             decimal.Decimal `json:"tp1"`
	TP1Pips         decimal.Decimal `json:"tp1_pips"`
	TP2             decimal.Decimal `json:"tp2"`
	TP2Pips         decimal.Decimal `json:"tp2_pips"`
	RRTP1           decimal.Decimal `json:"rr_tp1"`
	RRTP2           decimal.Decimal `json:"rr_tp2"`
	Confluence      []string        `json:"confluence"`
	NegativeFactors []string        `json:"negative_factors"`
	ChecklistScore  int             `json:"checklist_score"`
	ChecklistTotal  int             `json:"checklist_total"`
	Confidence      Confidence      `json:"confidence"`
	CounterTrend    bool            `json:"counter_trend"`
	TrendAlignment  string          `json:"trend_alignment"`
	PriceZone       string          `json:"price_zone"`
	EntryStatus     EntryStatus     `json:"entry_status"`
	Invalidation    string          `json:"invalidation"`
	NewsWarning     string          `json:"news_warning,omitempty"`
}

// Checklist renders the "k/n" score used in notifications.
func (s TradeSetup) Checklist() (k, n int) {
	n = s.ChecklistTotal
	if n == 0 {
		n = 12
	}
	return s.ChecklistScore, n
}

// AnalysisResult is the full-analysis (Tier 2) output.
type AnalysisResult struct {
	Symbol               string       `json:"symbol"`
	Digits               int32        `json:"digits"`
	Setups               []TradeSetup `json:"setups"`
	H1TrendAnalysis      string       `json:"h1_trend_analysis"`
	MarketSummary        string       `json:"market_summary"`
	PrimaryScenario      string       `json:"primary_scenario"`
	AlternativeScenario  string       `json:"alternative_scenario"`
	FundamentalBias      string       `json:"fundamental_bias"`
	UpcomingEvents       []string     `json:"upcoming_events"`
	RawResponse          string       `json:"raw_response,omitempty"`
}

// ScreenerResult is the Tier 1 (cheap screener) output.
type ScreenerResult struct {
	HasSetup      bool   `json:"has_setup"`
	Reasoning     string `json:"reasoning"`
	H1Trend       string `json:"h1_trend"`
	MarketSummary string `json:"market_summary"`
	FailedOpen    bool   `json:"-"` // true when this result was synthesized by a fail-open default
}

// ConfirmationResult is the Tier 3 (per-tick entry confirmation) output.
type ConfirmationResult struct {
	Confirmed bool   `json:"confirmed"`
	Reasoning string `json:"reasoning"`
	Transient bool   `json:"-"` // true when the call failed/parsed badly and must not consume an attempt
}
