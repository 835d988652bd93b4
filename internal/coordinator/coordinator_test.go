package coordinator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fxdesk/trade-coordinator/internal/coordinator"
	"github.com/fxdesk/trade-coordinator/internal/events"
	"github.com/fxdesk/trade-coordinator/internal/store"
	"github.com/fxdesk/trade-coordinator/pkg/types"
)

type fakeNotifier struct {
	mu           sync.Mutex
	watchCalls   []string
	missedCalls  []string
	reportCalls  []string
}

func (f *fakeNotifier) NotifyWatchOutcome(ctx context.Context, symbol string, status types.WatchStatus, reasoning string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchCalls = append(f.watchCalls, symbol+":"+string(status))
}

func (f *fakeNotifier) NotifyMissedScan(ctx context.Context, symbol, date string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.missedCalls = append(f.missedCalls, symbol+":"+date)
}

func (f *fakeNotifier) NotifyReport(ctx context.Context, digest string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reportCalls = append(f.reportCalls, digest)
}

func (f *fakeNotifier) watchCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watchCalls)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(zap.NewNop(), store.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestWatchEventReachesNotifyWatchOutcome(t *testing.T) {
	bus := events.NewBus(zap.NewNop(), events.DefaultBusConfig())
	defer bus.Stop()
	notifier := &fakeNotifier{}
	st := newTestStore(t)

	c := coordinator.New(zap.NewNop(), bus, notifier, st, []string{"GBPJPY"})
	c.Start()
	defer c.Stop()

	bus.Publish(events.NewWatchEvent("GBPJPY", "w1", types.WatchStatusConfirmed, "zone tapped"))

	require.Eventually(t, func() bool { return notifier.watchCallCount() > 0 }, time.Second, 5*time.Millisecond)
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, []string{"GBPJPY:confirmed"}, notifier.watchCalls)
}

func TestMissedScanEventReachesNotifyMissedScan(t *testing.T) {
	bus := events.NewBus(zap.NewNop(), events.DefaultBusConfig())
	defer bus.Stop()
	notifier := &fakeNotifier{}
	st := newTestStore(t)

	c := coordinator.New(zap.NewNop(), bus, notifier, st, []string{"GBPJPY"})
	c.Start()
	defer c.Stop()

	bus.Publish(events.NewMissedScanEvent("GBPJPY", "2026-07-31"))

	require.Eventually(t, func() bool {
		notifier.mu.Lock()
		defer notifier.mu.Unlock()
		return len(notifier.missedCalls) > 0
	}, time.Second, 5*time.Millisecond)
}

func TestReportDueEventSelectsPeriodFromFlag(t *testing.T) {
	bus := events.NewBus(zap.NewNop(), events.DefaultBusConfig())
	defer bus.Stop()
	notifier := &fakeNotifier{}
	st := newTestStore(t)

	c := coordinator.New(zap.NewNop(), bus, notifier, st, []string{"GBPJPY"})
	c.Start()
	defer c.Stop()

	bus.Publish(events.NewReportDueEvent(false))

	require.Eventually(t, func() bool {
		notifier.mu.Lock()
		defer notifier.mu.Unlock()
		return len(notifier.reportCalls) > 0
	}, time.Second, 5*time.Millisecond)
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Contains(t, notifier.reportCalls[0], "Monthly Performance Report")
}

func TestStopUnsubscribesEveryHandler(t *testing.T) {
	bus := events.NewBus(zap.NewNop(), events.DefaultBusConfig())
	defer bus.Stop()
	notifier := &fakeNotifier{}
	st := newTestStore(t)

	c := coordinator.New(zap.NewNop(), bus, notifier, st, []string{"GBPJPY"})
	c.Start()
	c.Stop()

	bus.Publish(events.NewWatchEvent("GBPJPY", "w1", types.WatchStatusConfirmed, "zone tapped"))

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, notifier.watchCallCount())
}
