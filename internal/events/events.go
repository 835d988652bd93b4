// Package events is the coordinator's internal pub/sub bus: the Scheduler,
// WatchRegistry, and Ingress publish domain events and the coordinator
// subscribes to them on the Notifier's behalf, so state transitions are
// dispatched out-of-band instead of inline with the mutation that caused
// them.
package events

import (
	"time"

	"github.com/fxdesk/trade-coordinator/pkg/types"
	"github.com/google/uuid"
)

// EventType categorizes a domain event.
type EventType string

const (
	EventTypeWatchCreated   EventType = "watch_created"
	EventTypeWatchConfirmed EventType = "watch_confirmed"
	EventTypeWatchRejected  EventType = "watch_rejected"
	EventTypeWatchExpired   EventType = "watch_expired"

	EventTypeTradeQueued   EventType = "trade_queued"
	EventTypeTradeExecuted EventType = "trade_executed"
	EventTypeTradeClosed   EventType = "trade_closed"

	EventTypeRiskDenied    EventType = "risk_denied"
	EventTypeMissedScan    EventType = "missed_scan"
	EventTypeWeeklyReport  EventType = "weekly_report_due"
	EventTypeMonthlyReport EventType = "monthly_report_due"
)

// Event is the common interface every published event satisfies.
type Event interface {
	GetType() EventType
	GetTimestamp() time.Time
	GetID() string
}

// BaseEvent carries the fields every event shares.
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) GetType() EventType      { return e.Type }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetID() string           { return e.ID }

func newBaseEvent(t EventType) BaseEvent {
	return BaseEvent{ID: uuid.New().String(), Type: t, Timestamp: time.Now().UTC()}
}

// WatchEvent reports a WatchRegistry state transition.
type WatchEvent struct {
	BaseEvent
	Symbol    string           `json:"symbol"`
	WatchID   string           `json:"watch_id"`
	Status    types.WatchStatus `json:"status"`
	Reasoning string           `json:"reasoning,omitempty"`
}

// NewWatchEvent builds a WatchEvent, deriving its EventType from status.
func NewWatchEvent(symbol, watchID string, status types.WatchStatus, reasoning string) WatchEvent {
	var t EventType
	switch status {
	case types.WatchStatusConfirmed:
		t = EventTypeWatchConfirmed
	case types.WatchStatusRejected:
		t = EventTypeWatchRejected
	case types.WatchStatusExpired:
		t = EventTypeWatchExpired
	default:
		t = EventTypeWatchCreated
	}
	return WatchEvent{
		BaseEvent: newBaseEvent(t),
		Symbol:    symbol,
		WatchID:   watchID,
		Status:    status,
		Reasoning: reasoning,
	}
}

// TradeQueuedEvent reports a PendingTrade publication to the TradeQueue.
type TradeQueuedEvent struct {
	BaseEvent
	Trade types.PendingTrade `json:"trade"`
}

// NewTradeQueuedEvent builds a TradeQueuedEvent.
func NewTradeQueuedEvent(trade types.PendingTrade) TradeQueuedEvent {
	return TradeQueuedEvent{BaseEvent: newBaseEvent(EventTypeTradeQueued), Trade: trade}
}

// TradeLifecycleEvent reports a TradeRecord advancing to "executed" or
// "closed".
type TradeLifecycleEvent struct {
	BaseEvent
	TradeID string                  `json:"trade_id"`
	Symbol  string                  `json:"symbol"`
	Status  types.TradeRecordStatus `json:"status"`
	Outcome types.TradeOutcome      `json:"outcome,omitempty"`
}

// NewTradeLifecycleEvent builds a TradeLifecycleEvent.
func NewTradeLifecycleEvent(tradeID, symbol string, status types.TradeRecordStatus, outcome types.TradeOutcome) TradeLifecycleEvent {
	t := EventTypeTradeExecuted
	if status == types.TradeStatusClosed {
		t = EventTypeTradeClosed
	}
	return TradeLifecycleEvent{
		BaseEvent: newBaseEvent(t),
		TradeID:   tradeID,
		Symbol:    symbol,
		Status:    status,
		Outcome:   outcome,
	}
}

// RiskDeniedEvent reports a Risk Gate denial, for the audit trail and
// operator-facing notifications.
type RiskDeniedEvent struct {
	BaseEvent
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// NewRiskDeniedEvent builds a RiskDeniedEvent.
func NewRiskDeniedEvent(symbol, reason string) RiskDeniedEvent {
	return RiskDeniedEvent{BaseEvent: newBaseEvent(EventTypeRiskDenied), Symbol: symbol, Reason: reason}
}

// MissedScanEvent reports that a symbol had no completed full analysis
// within its kill-zone's first 30 minutes.
type MissedScanEvent struct {
	BaseEvent
	Symbol string `json:"symbol"`
	Date   string `json:"date"` // YYYY-MM-DD, local to the symbol's zone
}

// NewMissedScanEvent builds a MissedScanEvent.
func NewMissedScanEvent(symbol, date string) MissedScanEvent {
	return MissedScanEvent{BaseEvent: newBaseEvent(EventTypeMissedScan), Symbol: symbol, Date: date}
}

// ReportDueEvent signals that the Scheduler has reached a weekly or
// monthly report dispatch point.
type ReportDueEvent struct {
	BaseEvent
	Period string `json:"period"` // "weekly" or "monthly"
}

// NewReportDueEvent builds a ReportDueEvent. weekly selects EventTypeWeeklyReport.
func NewReportDueEvent(weekly bool) ReportDueEvent {
	if weekly {
		return ReportDueEvent{BaseEvent: newBaseEvent(EventTypeWeeklyReport), Period: "weekly"}
	}
	return ReportDueEvent{BaseEvent: newBaseEvent(EventTypeMonthlyReport), Period: "monthly"}
}
