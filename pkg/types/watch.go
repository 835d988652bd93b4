package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// WatchStatus is the state of a WatchTrade in its state machine.
type WatchStatus string

const (
	WatchStatusWatching  WatchStatus = "watching"
	WatchStatusConfirmed WatchStatus = "confirmed"
	WatchStatusRejected  WatchStatus = "rejected"
	WatchStatusExpired   WatchStatus = "expired"
)

// DefaultMaxConfirmations is the default attempt budget for a WatchTrade.
const DefaultMaxConfirmations = 3

// WatchTrade is the active candidacy derived from a qualifying TradeSetup.
// It is mutated only by the WatchRegistry.
type WatchTrade struct {
	ID                string          `json:"id"`
	Symbol            string          `json:"symbol"`
	Bias              Bias            `json:"bias"`
	EntryMin          decimal.Decimal `json:"entry_min"`
	EntryMax          decimal.Decimal `json:"entry_max"`
	StopLoss          decimal.Decimal `json:"stop_loss"`
	TP1               decimal.Decimal `json:"tp1"`
	TP2               decimal.Decimal `json:"tp2"`
	SLPips            decimal.Decimal `json:"sl_pips"`
	TP1Pips           decimal.Decimal `json:"tp1_pips"`
	TP2Pips           decimal.Decimal `json:"tp2_pips"`
	Confidence        Confidence      `json:"confidence"`
	Confluence        []string        `json:"confluence"` // at most 3, kept for the confirmation prompt
	ChecklistScore    int             `json:"checklist_score"`
	ChecklistTotal    int             `json:"checklist_total"`
	TP1ClosePct       int             `json:"tp1_close_pct"`
	CreatedAt         time.Time       `json:"created_at"`
	MaxConfirmations  int             `json:"max_confirmations"`
	ConfirmationsUsed int             `json:"confirmations_used"`
	Status            WatchStatus     `json:"status"`
}

// Copy returns an independent copy safe to hand to readers.
func (w WatchTrade) Copy() WatchTrade {
	cp := w
	cp.Confluence = append([]string(nil), w.Confluence...)
	return cp
}

// TP1ClosePctForChecklist derives the TP1 close-fraction from a checklist
// score, per the contract in spec §4.4.
func TP1ClosePctForChecklist(score int) int {
	switch {
	case score >= 10:
		return 40
	case score >= 8:
		return 45
	case score >= 6:
		return 55
	default:
		return 60
	}
}

// PendingTrade is an approved instruction broadcast for a bounded TTL to
// polling terminals. Not a claim — a TTL broadcast.
type PendingTrade struct {
	ID       string          `json:"id"` // same id as the originating WatchTrade
	Symbol   string          `json:"symbol"`
	Bias     Bias            `json:"bias"`
	EntryMin decimal.Decimal `json:"entry_min"`
	EntryMax decimal.Decimal `json:"entry_max"`
	StopLoss decimal.Decimal `json:"stop_loss"`
	TP1      decimal.Decimal `json:"tp1"`
	TP2      decimal.Decimal `json:"tp2"`
	SLPips   decimal.Decimal `json:"sl_pips"`
	QueuedAt time.Time       `json:"queued_at"`
}

// TradeRecordStatus is the lifecycle status of a durable TradeRecord.
type TradeRecordStatus string

const (
	TradeStatusQueued   TradeRecordStatus = "queued"
	TradeStatusPending  TradeRecordStatus = "pending"
	TradeStatusExecuted TradeRecordStatus = "executed"
	TradeStatusClosed   TradeRecordStatus = "closed"
	TradeStatusFailed   TradeRecordStatus = "failed"
)

// TradeOutcome is the terminal result category of a closed TradeRecord.
type TradeOutcome string

const (
	OutcomeOpen       TradeOutcome = "open"
	OutcomeFullWin    TradeOutcome = "full_win"
	OutcomePartialWin TradeOutcome = "partial_win"
	OutcomeLoss       TradeOutcome = "loss"
	OutcomeBreakeven  TradeOutcome = "breakeven"
	OutcomeCancelled  TradeOutcome = "cancelled"
	OutcomeFailed     TradeOutcome = "failed"
)

// TradeRecord is the durable, append-first log row for a trade's entire
// lifecycle: planned levels through close.
type TradeRecord struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Bias   Bias   `json:"bias"`

	// Planned levels, copied from the originating TradeSetup/WatchTrade.
	EntryMin decimal.Decimal `json:"entry_min"`
	EntryMax decimal.Decimal `json:"entry_max"`
	StopLoss decimal.Decimal `json:"stop_loss"`
	TP1      decimal.Decimal `json:"tp1"`
	TP2      decimal.Decimal `json:"tp2"`
	SLPips   decimal.Decimal `json:"sl_pips"`
	TP1Pips  decimal.Decimal `json:"tp1_pips"`
	TP2Pips  decimal.Decimal `json:"tp2_pips"`

	// Executed levels and broker references, filled on trade_executed.
	TicketTP1    int64           `json:"ticket_tp1,omitempty"`
	TicketTP2    int64           `json:"ticket_tp2,omitempty"`
	LotsTP1      decimal.Decimal `json:"lots_tp1,omitempty"`
	LotsTP2      decimal.Decimal `json:"lots_tp2,omitempty"`
	ActualEntry  decimal.Decimal `json:"actual_entry,omitempty"`
	ActualSL     decimal.Decimal `json:"actual_sl,omitempty"`
	ActualTP1    decimal.Decimal `json:"actual_tp1,omitempty"`
	ActualTP2    decimal.Decimal `json:"actual_tp2,omitempty"`

	// Contextual attributes from the originating TradeSetup, kept so later
	// analysis can regress outcomes against features.
	ChecklistScore int        `json:"checklist_score"`
	Confidence     Confidence `json:"confidence"`
	EntryStatus    EntryStatus `json:"entry_status"`
	PriceZone      string     `json:"price_zone"`
	TrendAlignment string     `json:"trend_alignment"`
	CounterTrend   bool       `json:"counter_trend"`

	// Resolution state.
	TP1Hit    bool `json:"tp1_hit"`
	TP2Hit    bool `json:"tp2_hit"`
	SLHit     bool `json:"sl_hit"`
	Cancelled bool `json:"cancelled"`

	Status    TradeRecordStatus `json:"status"`
	Outcome   TradeOutcome      `json:"outcome"`
	PnLPips   decimal.Decimal   `json:"pnl_pips"`
	PnLMoney  decimal.Decimal   `json:"pnl_money"`

	CreatedAt  time.Time  `json:"created_at"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`

	PostTradeReview string `json:"post_trade_review,omitempty"`
}

// ScanMetadata records per-symbol the timestamp of the most recent
// completed full analysis.
type ScanMetadata struct {
	Symbol       string    `json:"symbol"`
	LastScanAt   time.Time `json:"last_scan_at"`
	LastScanDate string    `json:"last_scan_date"` // YYYY-MM-DD in the symbol's local zone
}

// ContextEntry is one (symbol, date) row of the daily macro-context cache.
type ContextEntry struct {
	Symbol         string    `json:"symbol"`
	Date           string    `json:"date"` // YYYY-MM-DD
	MacroContext   string    `json:"macro_context"`
	Fundamentals   string    `json:"fundamentals"`
	FetchedAt      time.Time `json:"fetched_at"`
}
