// Package coordinator wires the event bus to the Notifier and the report
// builder: every other component publishes domain events, and this is
// where those events fan out to the messenger UI and to the weekly/
// monthly digest, out-of-band from whatever mutation raised them.
package coordinator

import (
	stdctx "context"

	"go.uber.org/zap"

	"github.com/fxdesk/trade-coordinator/internal/events"
	"github.com/fxdesk/trade-coordinator/internal/report"
	"github.com/fxdesk/trade-coordinator/pkg/types"
)

// Notifier is the subset of internal/notifier.Notifier the coordinator
// drives from event-bus subscriptions.
type Notifier interface {
	NotifyWatchOutcome(ctx stdctx.Context, symbol string, status types.WatchStatus, reasoning string)
	NotifyMissedScan(ctx stdctx.Context, symbol, date string)
	NotifyReport(ctx stdctx.Context, digest string)
}

// Coordinator subscribes to the event bus and drives best-effort
// downstream side effects — messenger notifications and report
// generation — for every terminal domain event.
type Coordinator struct {
	logger   *zap.Logger
	bus      *events.Bus
	notifier Notifier
	store    report.Store
	symbols  []string

	subs []*events.Subscription
}

// New constructs a Coordinator. Call Start to register its subscriptions.
func New(logger *zap.Logger, bus *events.Bus, notifier Notifier, store report.Store, symbols []string) *Coordinator {
	return &Coordinator{
		logger:   logger.Named("coordinator"),
		bus:      bus,
		notifier: notifier,
		store:    store,
		symbols:  symbols,
	}
}

// Start subscribes every handler to the bus. It is not safe to call twice.
func (c *Coordinator) Start() {
	c.subs = append(c.subs,
		c.bus.Subscribe(events.EventTypeWatchConfirmed, c.handleWatchTransition),
		c.bus.Subscribe(events.EventTypeWatchRejected, c.handleWatchTransition),
		c.bus.Subscribe(events.EventTypeWatchExpired, c.handleWatchTransition),
		c.bus.Subscribe(events.EventTypeMissedScan, c.handleMissedScan),
		c.bus.Subscribe(events.EventTypeWeeklyReport, c.handleReportDue),
		c.bus.Subscribe(events.EventTypeMonthlyReport, c.handleReportDue),
	)
}

// Stop unsubscribes every handler registered by Start.
func (c *Coordinator) Stop() {
	for _, sub := range c.subs {
		c.bus.Unsubscribe(sub)
	}
	c.subs = nil
}

func (c *Coordinator) handleWatchTransition(event events.Event) error {
	we, ok := event.(events.WatchEvent)
	if !ok {
		return nil
	}
	c.notifier.NotifyWatchOutcome(stdctx.Background(), we.Symbol, we.Status, we.Reasoning)
	return nil
}

func (c *Coordinator) handleMissedScan(event events.Event) error {
	me, ok := event.(events.MissedScanEvent)
	if !ok {
		return nil
	}
	c.notifier.NotifyMissedScan(stdctx.Background(), me.Symbol, me.Date)
	return nil
}

func (c *Coordinator) handleReportDue(event events.Event) error {
	re, ok := event.(events.ReportDueEvent)
	if !ok {
		return nil
	}

	period := report.PeriodWeekly
	if re.Period == "monthly" {
		period = report.PeriodMonthly
	}

	rep, err := report.Build(c.store, c.symbols, period, event.GetTimestamp())
	if err != nil {
		c.logger.Error("failed to build report", zap.Error(err))
		return err
	}
	c.notifier.NotifyReport(stdctx.Background(), report.Render(rep))
	return nil
}
