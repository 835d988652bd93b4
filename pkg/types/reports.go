package types

import "github.com/shopspring/decimal"

// TradeExecutionReport is the confirmation the terminal sends after a
// trade has actually been placed at the broker.
type TradeExecutionReport struct {
	TradeID      string          `json:"trade_id"`
	Symbol       string          `json:"symbol"`
	TicketTP1    int64           `json:"ticket_tp1,omitempty"`
	TicketTP2    int64           `json:"ticket_tp2,omitempty"`
	LotsTP1      decimal.Decimal `json:"lots_tp1,omitempty"`
	LotsTP2      decimal.Decimal `json:"lots_tp2,omitempty"`
	ActualEntry  decimal.Decimal `json:"actual_entry,omitempty"`
	ActualSL     decimal.Decimal `json:"actual_sl,omitempty"`
	ActualTP1    decimal.Decimal `json:"actual_tp1,omitempty"`
	ActualTP2    decimal.Decimal `json:"actual_tp2,omitempty"`
	Status       string          `json:"status"` // "executed" or "failed"
	ErrorMessage string          `json:"error_message,omitempty"`
}

// CloseReason names why a TradeCloseReport was sent.
type CloseReason string

const (
	CloseReasonTP1       CloseReason = "tp1"
	CloseReasonTP2       CloseReason = "tp2"
	CloseReasonSL        CloseReason = "sl"
	CloseReasonCancelled CloseReason = "cancelled"
	CloseReasonManual    CloseReason = "manual"
)

// TradeCloseReport is a partial or final close notification from the
// terminal. Monetary P&L in Profit always accumulates; pip P&L/outcome
// resolve only once, per the close algorithm in spec §4.1.
type TradeCloseReport struct {
	TradeID string          `json:"trade_id"`
	Reason  CloseReason     `json:"reason"`
	Profit  decimal.Decimal `json:"profit"`
	Price   decimal.Decimal `json:"price,omitempty"`
}
