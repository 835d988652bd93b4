package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fxdesk/trade-coordinator/internal/events"
	"github.com/fxdesk/trade-coordinator/internal/scheduler"
	"github.com/fxdesk/trade-coordinator/pkg/types"
)

type fakeExpirer struct {
	mu      sync.Mutex
	calls   []string
	expires map[string]types.WatchTrade
}

func (f *fakeExpirer) ExpireIfPast(symbol string, now time.Time) (types.WatchTrade, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, symbol)
	w, ok := f.expires[symbol]
	return w, ok
}

type fakeBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (f *fakeBus) Publish(event events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, event)
}

func (f *fakeBus) types() []events.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.EventType, len(f.published))
	for i, e := range f.published {
		out[i] = e.GetType()
	}
	return out
}

func TestExpireIfPastPublishesWatchExpiredEvent(t *testing.T) {
	expirer := &fakeExpirer{expires: map[string]types.WatchTrade{
		"GBPJPY": {ID: "w1", Symbol: "GBPJPY"},
	}}
	bus := &fakeBus{}
	scans := func(symbol string) (string, bool, error) { return "", false, nil }

	s := scheduler.New(zap.NewNop(), []string{"GBPJPY"}, expirer, scans, bus)
	// Exercise the unexported tick path indirectly via Start/Stop, since
	// tick() only runs on a live ticker/cron loop.
	if err := s.Start(newCancelledLaterContext(t)); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	waitFor(t, func() bool { return len(bus.types()) > 0 })

	found := false
	for _, ty := range bus.types() {
		if ty == events.EventTypeWatchExpired {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a watch_expired event, got %v", bus.types())
	}
}

func TestNoExpiryNoEvent(t *testing.T) {
	expirer := &fakeExpirer{expires: map[string]types.WatchTrade{}}
	bus := &fakeBus{}
	scans := func(symbol string) (string, bool, error) { return "2099-01-01", true, nil }

	s := scheduler.New(zap.NewNop(), []string{"GBPJPY"}, expirer, scans, bus)
	if err := s.Start(newCancelledLaterContext(t)); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	time.Sleep(50 * time.Millisecond)
	for _, ty := range bus.types() {
		if ty == events.EventTypeWatchExpired {
			t.Fatal("did not expect a watch_expired event")
		}
	}
}

func newCancelledLaterContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
