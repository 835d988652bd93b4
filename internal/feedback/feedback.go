// Package feedback aggregates this coordinator's own trade history into
// the performance-feedback block injected into Tier 2 (full analysis)
// prompts: win-rate buckets sliced by the features recorded on each
// TradeRecord, plus a handful of recent post-trade reviews in prose.
package feedback

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fxdesk/trade-coordinator/pkg/types"
	"github.com/shopspring/decimal"
)

// Store is the subset of internal/store.Store the aggregator reads from.
type Store interface {
	RecentClosedForPair(symbol string, n int) ([]types.TradeRecord, error)
}

// Bucket is one slice of win-rate performance for a single dimension value
// (e.g. checklist bucket "8-9", confidence "high", bias "long").
type Bucket struct {
	Label   string
	Trades  int
	Wins    int
	WinRate decimal.Decimal
}

// Report is the full feedback aggregation for one symbol.
type Report struct {
	Symbol          string
	SampleSize      int
	ByChecklist     []Bucket
	ByConfidence    []Bucket
	ByEntryStatus   []Bucket
	ByPriceZone     []Bucket
	ByTrendAlign    []Bucket
	ByBias          []Bucket
	RecentReviews   []string
}

// DefaultSampleSize is how many of a symbol's most recent closed trades
// the aggregator pulls before bucketing.
const DefaultSampleSize = 100

// DefaultReviewCount is how many recent post-trade reviews are surfaced
// in prose alongside the buckets.
const DefaultReviewCount = 5

// Build aggregates symbol's recent closed-trade history into a Report.
// Returns a zero-sample Report (not an error) if the symbol has no
// closed trades yet — Render returns false for it and Tier 2 then omits
// the feedback block.
func Build(store Store, symbol string) (Report, error) {
	trades, err := store.RecentClosedForPair(symbol, DefaultSampleSize)
	if err != nil {
		return Report{}, fmt.Errorf("feedback: load closed trades: %w", err)
	}

	report := Report{Symbol: symbol, SampleSize: len(trades)}
	if len(trades) == 0 {
		return report, nil
	}

	report.ByChecklist = bucketBy(trades, checklistBucket)
	report.ByConfidence = bucketBy(trades, func(t types.TradeRecord) string { return string(t.Confidence) })
	report.ByEntryStatus = bucketBy(trades, func(t types.TradeRecord) string { return string(t.EntryStatus) })
	report.ByPriceZone = bucketBy(trades, func(t types.TradeRecord) string { return t.PriceZone })
	report.ByTrendAlign = bucketBy(trades, func(t types.TradeRecord) string { return t.TrendAlignment })
	report.ByBias = bucketBy(trades, func(t types.TradeRecord) string { return string(t.Bias) })
	report.RecentReviews = recentReviews(trades, DefaultReviewCount)

	return report, nil
}

// checklistBucket groups a checklist score into the same bands
// TP1ClosePctForChecklist uses, so the feedback block and the close-plan
// derivation speak about the same tiers.
func checklistBucket(t types.TradeRecord) string {
	switch {
	case t.ChecklistScore >= 10:
		return "10+"
	case t.ChecklistScore >= 8:
		return "8-9"
	case t.ChecklistScore >= 6:
		return "6-7"
	default:
		return "<6"
	}
}

func isWin(t types.TradeRecord) bool {
	return t.Outcome == types.OutcomeFullWin || t.Outcome == types.OutcomePartialWin
}

// bucketBy groups trades by key(trade), computing a win rate per bucket.
// Buckets with an empty label are dropped (feature wasn't recorded) and
// the rest are sorted by label for stable rendering.
func bucketBy(trades []types.TradeRecord, key func(types.TradeRecord) string) []Bucket {
	byLabel := make(map[string]*Bucket)
	for _, t := range trades {
		label := key(t)
		if label == "" {
			continue
		}
		b, ok := byLabel[label]
		if !ok {
			b = &Bucket{Label: label}
			byLabel[label] = b
		}
		b.Trades++
		if isWin(t) {
			b.Wins++
		}
	}

	out := make([]Bucket, 0, len(byLabel))
	for _, b := range byLabel {
		if b.Trades > 0 {
			b.WinRate = decimal.NewFromInt(int64(b.Wins)).Div(decimal.NewFromInt(int64(b.Trades)))
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// recentReviews returns up to n post-trade review strings, most recent
// first, for trades that have one.
func recentReviews(trades []types.TradeRecord, n int) []string {
	var reviews []string
	for _, t := range trades {
		if t.PostTradeReview == "" {
			continue
		}
		reviews = append(reviews, fmt.Sprintf("%s (%s): %s", t.Symbol, t.Outcome, t.PostTradeReview))
		if len(reviews) >= n {
			break
		}
	}
	return reviews
}

// Render formats r into the prose block injected into the Tier-2 prompt.
// Returns ("", false) if there is no history to report.
func Render(r Report) (string, bool) {
	if r.SampleSize == 0 {
		return "", false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## PERFORMANCE FEEDBACK (%s, last %d closed trades)\n", r.Symbol, r.SampleSize)

	renderDimension(&b, "By checklist score", r.ByChecklist)
	renderDimension(&b, "By confidence tier", r.ByConfidence)
	renderDimension(&b, "By entry status", r.ByEntryStatus)
	renderDimension(&b, "By price zone", r.ByPriceZone)
	renderDimension(&b, "By trend alignment", r.ByTrendAlign)
	renderDimension(&b, "By bias", r.ByBias)

	if len(r.RecentReviews) > 0 {
		b.WriteString("\nRecent post-trade reviews:\n")
		for _, review := range r.RecentReviews {
			fmt.Fprintf(&b, "  - %s\n", review)
		}
	}

	return strings.TrimRight(b.String(), "\n"), true
}

func renderDimension(b *strings.Builder, title string, buckets []Bucket) {
	if len(buckets) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, bucket := range buckets {
		pct, _ := bucket.WinRate.Mul(decimal.NewFromInt(100)).Float64()
		fmt.Fprintf(b, "  %s: %d trades, %.0f%% win rate\n", bucket.Label, bucket.Trades, pct)
	}
}
