// Package watch implements the WatchRegistry: the per-symbol state machine
// that tracks a qualifying TradeSetup from "watching" through confirmation,
// rejection, or expiry at the symbol's kill-zone end.
package watch

import (
	stdctx "context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fxdesk/trade-coordinator/internal/profile"
	"github.com/fxdesk/trade-coordinator/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// minChecklistForWatch is the floor below which a TradeSetup may never
// become a WatchTrade, regardless of AUTO_QUEUE_MIN_CHECKLIST — the
// registry enforces it independently of whatever threshold the caller
// used, since it is the last line of defense against a misconfigured
// auto-queue cutoff.
const minChecklistForWatch = 4

// ErrChecklistTooLow is returned by CreateFromSetup when setup.ChecklistScore
// is below the floor this registry will ever accept.
var ErrChecklistTooLow = errors.New("watch: checklist score below minimum")

// ErrAlreadyWatching is returned by CreateFromSetup when symbol already has
// an active watch — at most one watching WatchTrade per symbol.
var ErrAlreadyWatching = errors.New("watch: symbol already has an active watch")

// Store is the persistence substrate, satisfied by *internal/store.Store.
type Store interface {
	PersistWatch(w types.WatchTrade) error
	DeleteWatch(id string) error
	LoadActiveWatches() ([]types.WatchTrade, error)
}

// Confirmer runs the Tier-3 entry-confirmation LLM call. Satisfied by
// *internal/analysis.Engine.
type Confirmer interface {
	Confirm(ctx stdctx.Context, symbol string, bias types.Bias, currentPrice, entryMin, entryMax decimal.Decimal, confluence []string, m1Image []byte) types.ConfirmationResult
}

// ConfirmOutcome is the result of a Confirm call on the registry.
type ConfirmOutcome struct {
	Confirmed bool
	Reasoning string
	Remaining int
}

// Registry is the sole mutator of WatchTrade state. Readers obtain
// immutable copies via Active/All.
type Registry struct {
	mu      sync.Mutex
	watches map[string]*types.WatchTrade // keyed by symbol

	store     Store
	confirmer Confirmer
	logger    *zap.Logger
}

// New constructs a Registry and recovers any persisted "watching" rows from
// store. confirmer may be nil only in tests that never call Confirm.
func New(logger *zap.Logger, store Store, confirmer Confirmer) (*Registry, error) {
	r := &Registry{
		watches:   make(map[string]*types.WatchTrade),
		store:     store,
		confirmer: confirmer,
		logger:    logger.Named("watch"),
	}

	active, err := store.LoadActiveWatches()
	if err != nil {
		return nil, fmt.Errorf("watch: load active watches: %w", err)
	}
	for i := range active {
		w := active[i]
		r.watches[w.Symbol] = &w
	}
	r.logger.Info("recovered active watches", zap.Int("count", len(active)))
	return r, nil
}

// CreateFromSetup builds a fresh WatchTrade from setup and starts watching
// symbol. The caller is responsible for having already applied the Risk
// Gate and the AUTO_QUEUE_MIN_CHECKLIST cutoff; CreateFromSetup enforces
// only the hard floor and the at-most-one-watching-per-symbol invariant.
func (r *Registry) CreateFromSetup(symbol string, setup types.TradeSetup) (types.WatchTrade, error) {
	if setup.ChecklistScore < minChecklistForWatch {
		return types.WatchTrade{}, ErrChecklistTooLow
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.watches[symbol]; ok && existing.Status == types.WatchStatusWatching {
		return types.WatchTrade{}, ErrAlreadyWatching
	}

	confluence := append([]string(nil), setup.Confluence...)
	if len(confluence) > 3 {
		confluence = confluence[:3]
	}

	w := types.WatchTrade{
		ID:                uuid.New().String(),
		Symbol:            symbol,
		Bias:              setup.Bias,
		EntryMin:          setup.EntryMin,
		EntryMax:          setup.EntryMax,
		StopLoss:          setup.StopLoss,
		TP1:               setup.TP1,
		TP2:               setup.TP2,
		SLPips:            setup.SLPips,
		TP1Pips:           setup.TP1Pips,
		TP2Pips:           setup.TP2Pips,
		Confidence:        setup.Confidence,
		Confluence:        confluence,
		ChecklistScore:    setup.ChecklistScore,
		ChecklistTotal:    setup.ChecklistTotal,
		TP1ClosePct:       types.TP1ClosePctForChecklist(setup.ChecklistScore),
		CreatedAt:         time.Now().UTC(),
		MaxConfirmations:  types.DefaultMaxConfirmations,
		ConfirmationsUsed: 0,
		Status:            types.WatchStatusWatching,
	}

	if err := r.store.PersistWatch(w); err != nil {
		return types.WatchTrade{}, fmt.Errorf("watch: persist: %w", err)
	}
	r.watches[symbol] = &w
	r.logger.Info("watch created", zap.String("symbol", symbol), zap.String("id", w.ID),
		zap.Int("checklist_score", setup.ChecklistScore))
	return w.Copy(), nil
}

// Active returns an immutable copy of the current watch for symbol, if any.
func (r *Registry) Active(symbol string) (types.WatchTrade, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watches[symbol]
	if !ok {
		return types.WatchTrade{}, false
	}
	return w.Copy(), true
}

// All returns immutable copies of every watch resident in memory. A watch
// is removed from memory at its terminal transition, so only watches in
// watching status are returned.
func (r *Registry) All() []types.WatchTrade {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.WatchTrade, 0, len(r.watches))
	for _, w := range r.watches {
		out = append(out, w.Copy())
	}
	return out
}

// Confirm resolves an M1 confirmation submission for symbol. It is
// idempotent against an id mismatch or a watch that is no longer in
// "watching" status: both return a benign, non-confirming outcome rather
// than an error, so a retried or stale terminal request cannot re-trigger
// a state transition.
func (r *Registry) Confirm(ctx stdctx.Context, id, symbol string, currentPrice decimal.Decimal, image []byte) (ConfirmOutcome, error) {
	r.mu.Lock()
	w, ok := r.watches[symbol]
	if !ok || w.ID != id || w.Status != types.WatchStatusWatching {
		r.mu.Unlock()
		return ConfirmOutcome{Confirmed: false, Reasoning: "no matching active watch"}, nil
	}
	remaining := w.MaxConfirmations - w.ConfirmationsUsed
	if remaining <= 0 {
		r.mu.Unlock()
		return ConfirmOutcome{Confirmed: false, Reasoning: "confirmation attempts exhausted"}, nil
	}
	// Snapshot the fields the confirmer needs, then release the lock for
	// the (slow, external) LLM call — only the final transition needs it.
	bias, entryMin, entryMax := w.Bias, w.EntryMin, w.EntryMax
	confluence := append([]string(nil), w.Confluence...)
	r.mu.Unlock()

	if r.confirmer == nil {
		return ConfirmOutcome{Confirmed: false, Reasoning: "no confirmer configured", Remaining: remaining}, nil
	}
	result := r.confirmer.Confirm(ctx, symbol, bias, currentPrice, entryMin, entryMax, confluence, image)

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-fetch: the watch may have expired or been mutated while unlocked.
	w, ok = r.watches[symbol]
	if !ok || w.ID != id || w.Status != types.WatchStatusWatching {
		return ConfirmOutcome{Confirmed: false, Reasoning: "watch no longer active"}, nil
	}

	if result.Transient {
		return ConfirmOutcome{
			Confirmed: false,
			Reasoning: result.Reasoning,
			Remaining: w.MaxConfirmations - w.ConfirmationsUsed,
		}, nil
	}

	w.ConfirmationsUsed++
	remaining = w.MaxConfirmations - w.ConfirmationsUsed

	switch {
	case result.Confirmed:
		w.Status = types.WatchStatusConfirmed
		r.finishTerminal(w)
	case remaining <= 0:
		w.Status = types.WatchStatusRejected
		r.finishTerminal(w)
	default:
		if err := r.store.PersistWatch(*w); err != nil {
			r.logger.Warn("watch: persist after confirmation attempt failed",
				zap.String("symbol", symbol), zap.Error(err))
		}
	}

	return ConfirmOutcome{Confirmed: result.Confirmed, Reasoning: result.Reasoning, Remaining: max(remaining, 0)}, nil
}

// ExpireIfPast expires symbol's active watch if nowInLocalZone is at or
// past the symbol's configured kill-zone end. Returns the expired watch
// and true if a transition occurred.
func (r *Registry) ExpireIfPast(symbol string, nowInLocalZone time.Time) (types.WatchTrade, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.watches[symbol]
	if !ok || w.Status != types.WatchStatusWatching {
		return types.WatchTrade{}, false
	}

	prof := profile.Get(symbol)
	if nowInLocalZone.Hour() < prof.KillZoneEndMEZ {
		return types.WatchTrade{}, false
	}

	w.Status = types.WatchStatusExpired
	r.finishTerminal(w)
	r.logger.Info("watch expired", zap.String("symbol", symbol), zap.String("id", w.ID))
	return w.Copy(), true
}

// finishTerminal persists the terminal status, deletes the persisted row
// (per the state diagram's "persistence deleted" terminal action), and
// removes symbol from the in-memory map. Called with mu held.
func (r *Registry) finishTerminal(w *types.WatchTrade) {
	if err := r.store.PersistWatch(*w); err != nil {
		r.logger.Warn("watch: persist terminal status failed",
			zap.String("symbol", w.Symbol), zap.Error(err))
	}
	if err := r.store.DeleteWatch(w.ID); err != nil {
		r.logger.Warn("watch: delete persisted row failed",
			zap.String("symbol", w.Symbol), zap.Error(err))
	}
	delete(r.watches, w.Symbol)
}
