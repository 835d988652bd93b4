// Package scheduler runs the coordinator's single cooperative background
// task: a 60s ticker that expires overdue watches, raises missed-scan
// alerts, and resets its daily dedup set, alongside a robfig/cron job pair
// that dispatches the weekly and monthly report events at their fixed
// wall-clock times.
package scheduler

import (
	stdctx "context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fxdesk/trade-coordinator/internal/events"
	"github.com/fxdesk/trade-coordinator/internal/profile"
	"github.com/fxdesk/trade-coordinator/pkg/types"
)

// TickInterval is the Scheduler's wake period — minute granularity is
// sufficient; nothing at this layer is tick-latency-sensitive.
const TickInterval = 60 * time.Second

// zoneName is the wall-clock zone the per-symbol kill-zone hours in
// internal/profile are expressed in.
const zoneName = "Europe/Berlin"

// WatchExpirer is satisfied by *internal/watch.Registry.
type WatchExpirer interface {
	ExpireIfPast(symbol string, nowInLocalZone time.Time) (types.WatchTrade, bool)
}

// LastScanDateFunc resolves the most recent completed-scan date for
// symbol, or ok=false if none is on record. Callers adapt
// *internal/store.Store.LastScan to this shape so the scheduler does not
// couple to internal/store's ScanRecord struct for a single field.
type LastScanDateFunc func(symbol string) (date string, ok bool, err error)

// Publisher is satisfied by *internal/events.Bus.
type Publisher interface {
	Publish(event events.Event)
}

// Scheduler owns the 60s tick loop plus the cron-driven weekly/monthly
// report dispatch.
type Scheduler struct {
	symbols  []string
	expirer  WatchExpirer
	scans    LastScanDateFunc
	bus      Publisher
	logger   *zap.Logger
	location *time.Location

	cron *cron.Cron

	mu           sync.Mutex
	alertedToday map[string]bool // "(symbol, date)" keys, reset at local midnight
	lastResetDay string

	wg     sync.WaitGroup
	cancel stdctx.CancelFunc
}

// New constructs a Scheduler for symbols. If Europe/Berlin cannot be
// loaded (e.g. no tzdata on a minimal container), UTC is used instead and
// a warning is logged — kill-zone comparisons degrade rather than panic.
func New(logger *zap.Logger, symbols []string, expirer WatchExpirer, scans LastScanDateFunc, bus Publisher) *Scheduler {
	logger = logger.Named("scheduler")
	loc, err := time.LoadLocation(zoneName)
	if err != nil {
		logger.Warn("could not load timezone, falling back to UTC", zap.String("zone", zoneName), zap.Error(err))
		loc = time.UTC
	}

	return &Scheduler{
		symbols:      symbols,
		expirer:      expirer,
		scans:        scans,
		bus:          bus,
		logger:       logger,
		location:     loc,
		cron:         cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		alertedToday: make(map[string]bool),
	}
}

// Start registers the cron jobs and begins the 60s tick loop. Start
// returns immediately; the tick loop runs in its own goroutine until ctx
// is cancelled or Stop is called.
func (s *Scheduler) Start(ctx stdctx.Context) error {
	if _, err := s.cron.AddFunc("0 0 19 * * SUN", func() {
		s.logger.Info("dispatching weekly report")
		s.bus.Publish(events.NewReportDueEvent(true))
	}); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 0 8 1 * *", func() {
		s.logger.Info("dispatching monthly report")
		s.bus.Publish(events.NewReportDueEvent(false))
	}); err != nil {
		return err
	}
	s.cron.Start()

	ctx, s.cancel = stdctx.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

// Stop cancels the tick loop and drains the cron scheduler, waiting for
// any in-flight job to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	cronCtx := s.cron.Stop()
	<-cronCtx.Done()
	s.wg.Wait()
}

func (s *Scheduler) run(ctx stdctx.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	s.tick() // run once immediately so a just-started process doesn't wait a full interval
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler tick loop stopped")
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick runs one cooperative pass over every tracked symbol.
func (s *Scheduler) tick() {
	now := time.Now().In(s.location)
	s.resetDedupIfNewDay(now)

	for _, symbol := range s.symbols {
		s.expireIfPast(symbol, now)
		s.checkMissedScan(symbol, now)
	}
}

func (s *Scheduler) expireIfPast(symbol string, now time.Time) {
	watch, expired := s.expirer.ExpireIfPast(symbol, now)
	if !expired {
		return
	}
	s.logger.Info("watch expired by scheduler", zap.String("symbol", symbol), zap.String("id", watch.ID))
	s.bus.Publish(events.NewWatchEvent(symbol, watch.ID, types.WatchStatusExpired, "kill-zone end reached"))
}

// checkMissedScan emits a missed-scan alert at most once per (symbol,
// date), only within the first 30 minutes of the symbol's kill zone.
func (s *Scheduler) checkMissedScan(symbol string, now time.Time) {
	prof := profile.Get(symbol)
	minutesIntoWindow := (now.Hour()-prof.KillZoneStartMEZ)*60 + now.Minute()
	if minutesIntoWindow < 0 || minutesIntoWindow > 30 {
		return
	}

	today := now.Format("2006-01-02")
	key := symbol + "|" + today

	s.mu.Lock()
	if s.alertedToday[key] {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	lastDate, ok, err := s.scans(symbol)
	if err != nil {
		s.logger.Warn("missed-scan check: lookup failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	if ok && lastDate == today {
		return
	}

	s.mu.Lock()
	s.alertedToday[key] = true
	s.mu.Unlock()

	s.logger.Warn("missed scan", zap.String("symbol", symbol), zap.String("date", today))
	s.bus.Publish(events.NewMissedScanEvent(symbol, today))
}

// ResetDailyAlerts clears the missed-scan dedup set immediately instead
// of waiting for the next local-midnight rollover, so a re-armed
// messenger /reset command takes effect before the next tick.
func (s *Scheduler) ResetDailyAlerts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alertedToday = make(map[string]bool)
	s.lastResetDay = ""
}

func (s *Scheduler) resetDedupIfNewDay(now time.Time) {
	today := now.Format("2006-01-02")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastResetDay == today {
		return
	}
	s.alertedToday = make(map[string]bool)
	s.lastResetDay = today
}
