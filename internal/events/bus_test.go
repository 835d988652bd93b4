package events_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fxdesk/trade-coordinator/internal/events"
	"github.com/fxdesk/trade-coordinator/pkg/types"
)

func TestSubscribePublishDeliversToMatchingType(t *testing.T) {
	bus := events.NewBus(zap.NewNop(), events.DefaultBusConfig())
	defer bus.Stop()

	var mu sync.Mutex
	var got events.Event
	done := make(chan struct{})
	bus.Subscribe(events.EventTypeWatchConfirmed, func(e events.Event) error {
		mu.Lock()
		got = e
		mu.Unlock()
		close(done)
		return nil
	})

	bus.Publish(events.NewWatchEvent("GBPJPY", "w1", types.WatchStatusConfirmed, "zone tapped"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if got == nil || got.GetType() != events.EventTypeWatchConfirmed {
		t.Fatalf("expected a watch_confirmed event, got %+v", got)
	}
}

func TestSubscribeDoesNotReceiveOtherTypes(t *testing.T) {
	bus := events.NewBus(zap.NewNop(), events.DefaultBusConfig())
	defer bus.Stop()

	received := make(chan struct{}, 1)
	bus.Subscribe(events.EventTypeWatchRejected, func(e events.Event) error {
		received <- struct{}{}
		return nil
	})

	bus.PublishSync(events.NewWatchEvent("GBPJPY", "w1", types.WatchStatusExpired, ""))

	select {
	case <-received:
		t.Fatal("did not expect delivery for a different event type")
	default:
	}
}

func TestSubscribeAllReceivesEveryType(t *testing.T) {
	bus := events.NewBus(zap.NewNop(), events.DefaultBusConfig())
	defer bus.Stop()

	count := 0
	var mu sync.Mutex
	bus.SubscribeAll(func(e events.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}, events.SubscribeOptions{Async: false})

	bus.PublishSync(events.NewMissedScanEvent("GBPJPY", "2026-07-31"))
	bus.PublishSync(events.NewReportDueEvent(true))

	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Fatalf("expected 2 deliveries, got %d", count)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := events.NewBus(zap.NewNop(), events.DefaultBusConfig())
	defer bus.Stop()

	count := 0
	sub := bus.Subscribe(events.EventTypeRiskDenied, func(e events.Event) error {
		count++
		return nil
	}, events.SubscribeOptions{Async: false})

	bus.PublishSync(events.NewRiskDeniedEvent("GBPJPY", "news window"))
	bus.Unsubscribe(sub)
	bus.PublishSync(events.NewRiskDeniedEvent("GBPJPY", "daily drawdown"))

	if count != 1 {
		t.Fatalf("expected exactly 1 delivery before unsubscribe, got %d", count)
	}
}

func TestHandlerPanicDoesNotCrashBus(t *testing.T) {
	bus := events.NewBus(zap.NewNop(), events.DefaultBusConfig())
	defer bus.Stop()

	bus.Subscribe(events.EventTypeTradeQueued, func(e events.Event) error {
		panic("boom")
	}, events.SubscribeOptions{Async: false})

	bus.PublishSync(events.NewTradeQueuedEvent(types.PendingTrade{ID: "t1", Symbol: "GBPJPY"}))

	stats := bus.Stats()
	if stats.Errors == 0 {
		t.Error("expected the panic to be counted as an error")
	}
}

func TestHandlerErrorIsCounted(t *testing.T) {
	bus := events.NewBus(zap.NewNop(), events.DefaultBusConfig())
	defer bus.Stop()

	bus.Subscribe(events.EventTypeTradeClosed, func(e events.Event) error {
		return errors.New("delivery failed")
	}, events.SubscribeOptions{Async: false})

	bus.PublishSync(events.NewTradeLifecycleEvent("tr1", "GBPJPY", types.TradeStatusClosed, types.OutcomeFullWin))

	if bus.Stats().Errors == 0 {
		t.Error("expected handler error to be counted")
	}
}

func TestPublishUnderBufferPressureNeverBlocks(t *testing.T) {
	bus := events.NewBus(zap.NewNop(), events.BusConfig{Workers: 0, BufferSize: 1})
	defer bus.Stop()

	// With zero configured workers, DefaultBusConfig's worker count is used,
	// so pump enough events that at least one is likely to be dropped under
	// a buffer of 1; this test only asserts the counters never panic and
	// that Stats() is readable concurrently with Publish.
	for i := 0; i < 50; i++ {
		bus.Publish(events.NewMissedScanEvent("GBPJPY", "2026-07-31"))
	}
	_ = bus.Stats()
}

func TestNewWatchEventDerivesTypeFromStatus(t *testing.T) {
	cases := map[types.WatchStatus]events.EventType{
		types.WatchStatusWatching:  events.EventTypeWatchCreated,
		types.WatchStatusConfirmed: events.EventTypeWatchConfirmed,
		types.WatchStatusRejected:  events.EventTypeWatchRejected,
		types.WatchStatusExpired:   events.EventTypeWatchExpired,
	}
	for status, want := range cases {
		got := events.NewWatchEvent("GBPJPY", "w1", status, "")
		if got.GetType() != want {
			t.Errorf("status %s: got type %s, want %s", status, got.GetType(), want)
		}
	}
}
