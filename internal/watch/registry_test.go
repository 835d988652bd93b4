package watch_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fxdesk/trade-coordinator/internal/watch"
	"github.com/fxdesk/trade-coordinator/pkg/types"
	"github.com/shopspring/decimal"
)

type fakeStore struct {
	persisted map[string]types.WatchTrade
	deleted   map[string]bool
	preloaded []types.WatchTrade
}

func newFakeStore() *fakeStore {
	return &fakeStore{persisted: make(map[string]types.WatchTrade), deleted: make(map[string]bool)}
}

func (f *fakeStore) PersistWatch(w types.WatchTrade) error {
	f.persisted[w.ID] = w
	return nil
}

func (f *fakeStore) DeleteWatch(id string) error {
	f.deleted[id] = true
	return nil
}

func (f *fakeStore) LoadActiveWatches() ([]types.WatchTrade, error) {
	return f.preloaded, nil
}

type fakeConfirmer struct {
	result types.ConfirmationResult
}

func (f fakeConfirmer) Confirm(ctx context.Context, symbol string, bias types.Bias, currentPrice, entryMin, entryMax decimal.Decimal, confluence []string, m1Image []byte) types.ConfirmationResult {
	return f.result
}

func setup(symbol string, checklist int) types.TradeSetup {
	return types.TradeSetup{
		Symbol:         symbol,
		Bias:           types.Bias("long"),
		EntryMin:       decimal.NewFromFloat(150.0),
		EntryMax:       decimal.NewFromFloat(150.3),
		ChecklistScore: checklist,
		ChecklistTotal: 12,
		Confluence:     []string{"order block", "liquidity sweep", "fvg", "extra"},
	}
}

func TestCreateFromSetupRejectsLowChecklist(t *testing.T) {
	r, err := watch.New(zap.NewNop(), newFakeStore(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateFromSetup("GBPJPY", setup("GBPJPY", 3)); err != watch.ErrChecklistTooLow {
		t.Fatalf("expected ErrChecklistTooLow, got %v", err)
	}
}

func TestCreateFromSetupDerivesTP1ClosePctAndCapsConfluence(t *testing.T) {
	store := newFakeStore()
	r, err := watch.New(zap.NewNop(), store, nil)
	if err != nil {
		t.Fatal(err)
	}

	w, err := r.CreateFromSetup("GBPJPY", setup("GBPJPY", 9))
	if err != nil {
		t.Fatal(err)
	}
	if w.TP1ClosePct != 45 {
		t.Errorf("got tp1_close_pct=%d, want 45", w.TP1ClosePct)
	}
	if len(w.Confluence) != 3 {
		t.Errorf("expected confluence capped at 3, got %d", len(w.Confluence))
	}
	if w.Status != types.WatchStatusWatching {
		t.Errorf("expected watching status, got %s", w.Status)
	}
	if _, ok := store.persisted[w.ID]; !ok {
		t.Error("expected watch to be persisted")
	}
}

func TestCreateFromSetupRefusesSecondWatchForSameSymbol(t *testing.T) {
	r, err := watch.New(zap.NewNop(), newFakeStore(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateFromSetup("GBPJPY", setup("GBPJPY", 8)); err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateFromSetup("GBPJPY", setup("GBPJPY", 8)); err != watch.ErrAlreadyWatching {
		t.Fatalf("expected ErrAlreadyWatching, got %v", err)
	}
}

func TestConfirmIdempotentAgainstIDMismatch(t *testing.T) {
	r, err := watch.New(zap.NewNop(), newFakeStore(), fakeConfirmer{result: types.ConfirmationResult{Confirmed: true}})
	if err != nil {
		t.Fatal(err)
	}
	w, err := r.CreateFromSetup("GBPJPY", setup("GBPJPY", 8))
	if err != nil {
		t.Fatal(err)
	}

	outcome, err := r.Confirm(context.Background(), "wrong-id", "GBPJPY", decimal.NewFromFloat(150.1), nil)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Confirmed {
		t.Fatal("expected no-op confirmation on id mismatch")
	}

	active, ok := r.Active("GBPJPY")
	if !ok || active.ID != w.ID || active.Status != types.WatchStatusWatching {
		t.Fatalf("expected watch untouched by mismatched confirm, got %+v ok=%v", active, ok)
	}
}

func TestConfirmSuccessFinishesTerminalAndDeletesPersistence(t *testing.T) {
	store := newFakeStore()
	r, err := watch.New(zap.NewNop(), store, fakeConfirmer{result: types.ConfirmationResult{Confirmed: true, Reasoning: "zone tapped with rejection"}})
	if err != nil {
		t.Fatal(err)
	}
	w, err := r.CreateFromSetup("GBPJPY", setup("GBPJPY", 8))
	if err != nil {
		t.Fatal(err)
	}

	outcome, err := r.Confirm(context.Background(), w.ID, "GBPJPY", decimal.NewFromFloat(150.1), []byte("m1"))
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Confirmed {
		t.Fatalf("expected confirmed outcome, got %+v", outcome)
	}
	if !store.deleted[w.ID] {
		t.Error("expected terminal watch's persisted row to be deleted")
	}
	if _, ok := r.Active("GBPJPY"); ok {
		t.Error("expected no active watch remaining after confirmation")
	}
}

func TestConfirmExhaustsAttemptsThenRejects(t *testing.T) {
	store := newFakeStore()
	r, err := watch.New(zap.NewNop(), store, fakeConfirmer{result: types.ConfirmationResult{Confirmed: false, Reasoning: "no rejection wick"}})
	if err != nil {
		t.Fatal(err)
	}
	w, err := r.CreateFromSetup("GBPJPY", setup("GBPJPY", 8))
	if err != nil {
		t.Fatal(err)
	}

	var last watch.ConfirmOutcome
	for i := 0; i < types.DefaultMaxConfirmations; i++ {
		last, err = r.Confirm(context.Background(), w.ID, "GBPJPY", decimal.NewFromFloat(150.1), nil)
		if err != nil {
			t.Fatal(err)
		}
	}
	if last.Confirmed || last.Remaining != 0 {
		t.Fatalf("expected exhausted outcome with remaining=0, got %+v", last)
	}
	if !store.deleted[w.ID] {
		t.Error("expected rejected watch's persisted row to be deleted")
	}

	// A further call after exhaustion is a no-op, not an error.
	outcome, err := r.Confirm(context.Background(), w.ID, "GBPJPY", decimal.NewFromFloat(150.1), nil)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Confirmed {
		t.Fatal("expected no-op after exhaustion")
	}
}

func TestConfirmTransientDoesNotConsumeAttempt(t *testing.T) {
	store := newFakeStore()
	r, err := watch.New(zap.NewNop(), store, fakeConfirmer{result: types.ConfirmationResult{Transient: true, Reasoning: "timeout"}})
	if err != nil {
		t.Fatal(err)
	}
	w, err := r.CreateFromSetup("GBPJPY", setup("GBPJPY", 8))
	if err != nil {
		t.Fatal(err)
	}

	outcome, err := r.Confirm(context.Background(), w.ID, "GBPJPY", decimal.NewFromFloat(150.1), nil)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Remaining != types.DefaultMaxConfirmations {
		t.Fatalf("expected remaining unchanged at %d, got %d", types.DefaultMaxConfirmations, outcome.Remaining)
	}

	active, ok := r.Active("GBPJPY")
	if !ok || active.ConfirmationsUsed != 0 {
		t.Fatalf("expected confirmations_used still 0 after transient error, got %+v", active)
	}
}

func TestExpireIfPastExpiresAfterKillZoneEnd(t *testing.T) {
	store := newFakeStore()
	r, err := watch.New(zap.NewNop(), store, nil)
	if err != nil {
		t.Fatal(err)
	}
	w, err := r.CreateFromSetup("GBPJPY", setup("GBPJPY", 8))
	if err != nil {
		t.Fatal(err)
	}

	// GBPJPY's kill-zone end is configured at 20:00 local.
	notYet := time.Date(2026, 1, 5, 19, 0, 0, 0, time.UTC)
	if _, expired := r.ExpireIfPast("GBPJPY", notYet); expired {
		t.Fatal("expected no expiry before kill-zone end")
	}

	past := time.Date(2026, 1, 5, 20, 30, 0, 0, time.UTC)
	expiredWatch, expired := r.ExpireIfPast("GBPJPY", past)
	if !expired || expiredWatch.ID != w.ID || expiredWatch.Status != types.WatchStatusExpired {
		t.Fatalf("expected expiry past kill-zone end, got %+v expired=%v", expiredWatch, expired)
	}
	if !store.deleted[w.ID] {
		t.Error("expected expired watch's persisted row to be deleted")
	}
}

func TestRecoversActiveWatchesOnConstruction(t *testing.T) {
	store := newFakeStore()
	store.preloaded = []types.WatchTrade{
		{ID: "abc", Symbol: "EURUSD", Status: types.WatchStatusWatching, MaxConfirmations: types.DefaultMaxConfirmations},
	}
	r, err := watch.New(zap.NewNop(), store, nil)
	if err != nil {
		t.Fatal(err)
	}
	active, ok := r.Active("EURUSD")
	if !ok || active.ID != "abc" {
		t.Fatalf("expected recovered watch for EURUSD, got %+v ok=%v", active, ok)
	}
}
