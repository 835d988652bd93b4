// Package queue implements the TradeQueue: a bounded-lifetime broadcast of
// an approved PendingTrade, not a claim. A single entry per symbol is kept
// for TTL seconds so every subscribed terminal can observe the approval
// during one poll cycle; consumers de-duplicate on the entry's id.
package queue

import (
	"sync"
	"time"

	"github.com/fxdesk/trade-coordinator/pkg/types"
)

// DefaultTTL is 60s by design: long enough that all subscribed terminals
// observe the approval within one poll cycle, short enough that a stale
// approval is never acted on.
const DefaultTTL = 60 * time.Second

// Queue holds at most one PendingTrade per symbol, expiring entries older
// than TTL on read.
type Queue struct {
	mu      sync.Mutex
	entries map[string]types.PendingTrade // keyed by symbol
	ttl     time.Duration
}

// New constructs a Queue. A zero ttl uses DefaultTTL.
func New(ttl time.Duration) *Queue {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Queue{
		entries: make(map[string]types.PendingTrade),
		ttl:     ttl,
	}
}

// Publish sets trade.QueuedAt to now and replaces any existing entry for
// trade.Symbol.
func (q *Queue) Publish(trade types.PendingTrade) {
	trade.QueuedAt = time.Now().UTC()
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[trade.Symbol] = trade
}

// Get returns the current entry for symbol if it has not aged past the
// queue's TTL. An expired entry is evicted transparently and Get reports
// it absent, same as if nothing had ever been published.
func (q *Queue) Get(symbol string) (types.PendingTrade, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.entries[symbol]
	if !ok {
		return types.PendingTrade{}, false
	}
	if time.Since(entry.QueuedAt) > q.ttl {
		delete(q.entries, symbol)
		return types.PendingTrade{}, false
	}
	return entry, true
}

// Evict removes symbol's entry unconditionally, used once a queued trade
// has been claimed and executed so a late poller does not see a stale
// approval that has already been acted on.
func (q *Queue) Evict(symbol string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, symbol)
}
