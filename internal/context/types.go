// Package context fetches and caches the Tier-0 daily macro/sentiment
// feeds that chart screenshots alone can't show: institutional
// positioning, retail sentiment, central-bank rate differential, and
// intermarket indicators. Every adapter is tolerant of its own failure —
// a partial or empty result never blocks analysis.
package context

import "time"

// CacheStore is the subset of the Store the adapters need: a generic
// (adapter, key) → payload cache with an age.
type CacheStore interface {
	SaveAdapterCache(adapter, key, payload string) error
	LoadAdapterCache(adapter, key string) (payload string, age time.Duration, ok bool)
}

// PositioningEntry is one currency leg's institutional futures positioning.
type PositioningEntry struct {
	Currency         string `json:"currency"`
	NetSpeculator    int    `json:"net_speculator"`
	SpecLong         int    `json:"spec_long"`
	SpecShort        int    `json:"spec_short"`
	NetChange        int    `json:"net_change"`
	PositioningShift string `json:"positioning_shift"` // increasing_long|increasing_short|unchanged
	ReportDate       string `json:"report_date"`
}

// PositioningResult holds the base/quote legs; a leg that could not be
// resolved is nil.
type PositioningResult struct {
	Base  *PositioningEntry `json:"base,omitempty"`
	Quote *PositioningEntry `json:"quote,omitempty"`
}

// SentimentResult is retail community positioning for the traded symbol.
type SentimentResult struct {
	Symbol           string  `json:"symbol"`
	PctLong          float64 `json:"pct_long"`
	PctShort         float64 `json:"pct_short"`
	VolLong          int64   `json:"vol_long"`
	VolShort         int64   `json:"vol_short"`
	CrowdBias        string  `json:"crowd_bias"`        // long|short|neutral
	ContrarianSignal string  `json:"contrarian_signal"` // bullish|bearish|neutral
}

// RateResult is the central-bank rate differential between the pair's legs.
type RateResult struct {
	BaseCurrency     string  `json:"base_currency"`
	QuoteCurrency    string  `json:"quote_currency"`
	BaseBank         string  `json:"base_bank"`
	QuoteBank        string  `json:"quote_bank"`
	BaseRate         float64 `json:"base_rate"`
	QuoteRate        float64 `json:"quote_rate"`
	HasRates         bool    `json:"has_rates"`
	SpreadBps        int     `json:"spread_bps"`
	CarryTradeStatus string  `json:"carry_trade_status"` // strong|moderate|weakening|minimal
}

// Indicator is one intermarket instrument's daily snapshot.
type Indicator struct {
	Price            float64 `json:"price"`
	DailyChangePct   float64 `json:"daily_change_pct"`
	FiveDayChangePct float64 `json:"five_day_change_pct"`
	Trend            string  `json:"trend"` // up|down|flat|unknown
}

// IntermarketResult is the pair-aware basket of correlated instruments.
type IntermarketResult struct {
	Indicators    map[string]Indicator `json:"indicators"`
	RiskSentiment string               `json:"risk_sentiment"` // risk_on|risk_off|mixed
	GoldBias      string               `json:"gold_bias,omitempty"`
}

// Snapshot is the combined Tier-0 fetch: whatever adapters succeeded.
type Snapshot struct {
	Positioning *PositioningResult `json:"positioning,omitempty"`
	Sentiment   *SentimentResult   `json:"sentiment,omitempty"`
	Rates       *RateResult        `json:"rates,omitempty"`
	Intermarket *IntermarketResult `json:"intermarket,omitempty"`
}
