package events

import (
	stdctx "context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Handler processes a published event.
type Handler func(event Event) error

// Filter selectively accepts events for a subscription.
type Filter func(event Event) bool

// SubscribeOptions configures a subscription.
type SubscribeOptions struct {
	Filter Filter // optional
	Async  bool   // dispatch on a worker goroutine instead of the caller's
}

// Subscription is a handle returned by Subscribe/SubscribeAll, usable with
// Unsubscribe.
type Subscription struct {
	id        string
	eventType EventType
	handler   Handler
	options   SubscribeOptions
	active    atomic.Bool
}

// BusConfig configures a Bus's worker pool.
type BusConfig struct {
	Workers    int
	BufferSize int
}

// DefaultBusConfig fits a single-desk coordinator watching a handful of
// symbols — nowhere near the teacher's 100K-events/sec dimensioning.
func DefaultBusConfig() BusConfig {
	return BusConfig{Workers: 4, BufferSize: 512}
}

// Bus is the central event router. Publish never blocks the caller: a full
// buffer drops the event and counts it, rather than stalling whatever
// mutated state just published it (the Scheduler, the WatchRegistry, or an
// HTTP handler).
type Bus struct {
	mu             sync.RWMutex
	subscribers    map[EventType][]*Subscription
	allSubscribers []*Subscription

	eventChan chan Event

	published atomic.Int64
	processed atomic.Int64
	dropped   atomic.Int64
	errors    atomic.Int64

	ctx    stdctx.Context
	cancel stdctx.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewBus constructs a Bus and starts its worker pool.
func NewBus(logger *zap.Logger, config BusConfig) *Bus {
	if config.Workers <= 0 {
		config.Workers = DefaultBusConfig().Workers
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBusConfig().BufferSize
	}

	ctx, cancel := stdctx.WithCancel(stdctx.Background())
	b := &Bus{
		subscribers: make(map[EventType][]*Subscription),
		eventChan:   make(chan Event, config.BufferSize),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.Named("events"),
	}

	for i := 0; i < config.Workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case event := <-b.eventChan:
			b.dispatch(event)
		}
	}
}

func (b *Bus) dispatch(event Event) {
	b.mu.RLock()
	subs := b.subscribers[event.GetType()]
	all := b.allSubscribers
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(sub, event)
	}
	for _, sub := range all {
		b.deliver(sub, event)
	}
	b.processed.Add(1)
}

func (b *Bus) deliver(sub *Subscription, event Event) {
	if !sub.active.Load() {
		return
	}
	if sub.options.Filter != nil && !sub.options.Filter(event) {
		return
	}
	if sub.options.Async {
		go b.invoke(sub, event)
	} else {
		b.invoke(sub, event)
	}
}

// invoke runs a handler with panic recovery so one misbehaving subscriber
// (the Notifier being unreachable, a public-feed mirror panicking on a
// malformed payload) can never take the bus down.
func (b *Bus) invoke(sub *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.errors.Add(1)
			b.logger.Error("event handler panic",
				zap.String("subscription_id", sub.id),
				zap.String("event_type", string(event.GetType())),
				zap.Any("panic", r))
		}
	}()
	if err := sub.handler(event); err != nil {
		b.errors.Add(1)
		b.logger.Warn("event handler error",
			zap.String("subscription_id", sub.id),
			zap.String("event_type", string(event.GetType())),
			zap.Error(err))
	}
}

// Subscribe registers handler for eventType.
func (b *Bus) Subscribe(eventType EventType, handler Handler, opts ...SubscribeOptions) *Subscription {
	options := SubscribeOptions{Async: true}
	if len(opts) > 0 {
		options = opts[0]
	}
	sub := &Subscription{id: newSubscriptionID(), eventType: eventType, handler: handler, options: options}
	sub.active.Store(true)

	b.mu.Lock()
	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
	b.mu.Unlock()
	return sub
}

// SubscribeAll registers handler for every event type, delivering every
// domain event unfiltered.
func (b *Bus) SubscribeAll(handler Handler, opts ...SubscribeOptions) *Subscription {
	options := SubscribeOptions{Async: true}
	if len(opts) > 0 {
		options = opts[0]
	}
	sub := &Subscription{id: newSubscriptionID(), eventType: "*", handler: handler, options: options}
	sub.active.Store(true)

	b.mu.Lock()
	b.allSubscribers = append(b.allSubscribers, sub)
	b.mu.Unlock()
	return sub
}

// Unsubscribe deactivates sub; in-flight deliveries still complete.
func (b *Bus) Unsubscribe(sub *Subscription) {
	sub.active.Store(false)
}

// Publish enqueues event for async delivery. If the buffer is full the
// event is dropped and counted rather than blocking the publisher.
func (b *Bus) Publish(event Event) {
	select {
	case b.eventChan <- event:
		b.published.Add(1)
	default:
		b.dropped.Add(1)
		b.logger.Warn("event dropped: buffer full", zap.String("event_type", string(event.GetType())))
	}
}

// PublishSync dispatches event to subscribers on the calling goroutine,
// for callers (such as tests) that need to know
// delivery has started before moving on.
func (b *Bus) PublishSync(event Event) {
	b.published.Add(1)
	b.dispatch(event)
}

// Stats is a lightweight snapshot of bus activity; per-minute Prometheus
// counters, if wanted, are registered separately through internal/metrics.
type Stats struct {
	Published int64 `json:"published"`
	Processed int64 `json:"processed"`
	Dropped   int64 `json:"dropped"`
	Errors    int64 `json:"errors"`
}

// Stats returns a snapshot of bus counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Processed: b.processed.Load(),
		Dropped:   b.dropped.Load(),
		Errors:    b.errors.Load(),
	}
}

// Stop cancels the worker pool and waits up to 5s for in-flight events to
// drain before giving up.
func (b *Bus) Stop() {
	b.cancel()
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.logger.Info("event bus stopped", zap.Int64("processed", b.processed.Load()))
	case <-time.After(5 * time.Second):
		b.logger.Warn("event bus stop timed out")
	}
}

var subscriptionCounter atomic.Int64

func newSubscriptionID() string {
	n := subscriptionCounter.Add(1)
	return "sub_" + time.Now().UTC().Format("20060102150405") + "_" + strconv.FormatInt(n, 10)
}
