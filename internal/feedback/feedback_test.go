package feedback_test

import (
	"strings"
	"testing"

	"github.com/fxdesk/trade-coordinator/internal/feedback"
	"github.com/fxdesk/trade-coordinator/pkg/types"
	"github.com/shopspring/decimal"
)

type fakeStore struct {
	trades []types.TradeRecord
}

func (f *fakeStore) RecentClosedForPair(symbol string, n int) ([]types.TradeRecord, error) {
	return f.trades, nil
}

func trade(outcome types.TradeOutcome, checklist int, confidence types.Confidence, review string) types.TradeRecord {
	return types.TradeRecord{
		Symbol:         "GBPJPY",
		Bias:           types.Bias("long"),
		Outcome:        outcome,
		ChecklistScore: checklist,
		Confidence:     confidence,
		EntryStatus:    types.EntryStatusAtZone,
		PriceZone:      "discount",
		TrendAlignment: "aligned",
		PostTradeReview: review,
	}
}

func TestBuildEmptyHistory(t *testing.T) {
	report, err := feedback.Build(&fakeStore{}, "GBPJPY")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.SampleSize != 0 {
		t.Errorf("expected zero sample size, got %d", report.SampleSize)
	}
	if _, ok := feedback.Render(report); ok {
		t.Error("expected Render to report no history")
	}
}

func TestBuildBucketsByChecklistAndConfidence(t *testing.T) {
	store := &fakeStore{trades: []types.TradeRecord{
		trade(types.OutcomeFullWin, 10, types.ConfidenceHigh, "clean TP1 and TP2"),
		trade(types.OutcomeLoss, 10, types.ConfidenceHigh, ""),
		trade(types.OutcomeLoss, 5, types.ConfidenceLow, "entered too early"),
	}}

	report, err := feedback.Build(store, "GBPJPY")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.SampleSize != 3 {
		t.Fatalf("expected sample size 3, got %d", report.SampleSize)
	}

	var tenPlus feedback.Bucket
	found := false
	for _, b := range report.ByChecklist {
		if b.Label == "10+" {
			tenPlus = b
			found = true
		}
	}
	if !found {
		t.Fatal("expected a 10+ checklist bucket")
	}
	if tenPlus.Trades != 2 || tenPlus.Wins != 1 {
		t.Errorf("expected 2 trades / 1 win in 10+ bucket, got %d/%d", tenPlus.Trades, tenPlus.Wins)
	}
	if !tenPlus.WinRate.Equal(decimal.NewFromFloat(0.5)) {
		t.Fatal("win rate should be computed")
	}

	if len(report.ByConfidence) != 2 {
		t.Errorf("expected 2 confidence buckets, got %d", len(report.ByConfidence))
	}

	if len(report.RecentReviews) != 2 {
		t.Errorf("expected 2 recent reviews, got %d", len(report.RecentReviews))
	}
}

func TestBuildSkipsEmptyDimensionLabels(t *testing.T) {
	store := &fakeStore{trades: []types.TradeRecord{
		{Symbol: "GBPJPY", Outcome: types.OutcomeFullWin, ChecklistScore: 9},
	}}
	report, err := feedback.Build(store, "GBPJPY")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.ByPriceZone) != 0 {
		t.Errorf("expected no price-zone buckets for unset field, got %d", len(report.ByPriceZone))
	}
	if len(report.ByBias) != 0 {
		t.Errorf("expected no bias buckets for unset field, got %d", len(report.ByBias))
	}
}

func TestRenderIncludesDimensionsAndReviews(t *testing.T) {
	store := &fakeStore{trades: []types.TradeRecord{
		trade(types.OutcomeFullWin, 10, types.ConfidenceHigh, "textbook setup"),
	}}
	report, _ := feedback.Build(store, "GBPJPY")
	text, ok := feedback.Render(report)
	if !ok {
		t.Fatal("expected Render to produce a block")
	}
	if !strings.Contains(text, "By checklist score") || !strings.Contains(text, "100% win rate") {
		t.Errorf("unexpected render: %s", text)
	}
	if !strings.Contains(text, "textbook setup") {
		t.Errorf("expected review text in render: %s", text)
	}
}
