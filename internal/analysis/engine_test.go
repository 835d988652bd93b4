package analysis_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/fxdesk/trade-coordinator/internal/analysis"
	"github.com/fxdesk/trade-coordinator/internal/llm"
	"github.com/fxdesk/trade-coordinator/pkg/types"
	"github.com/shopspring/decimal"
)

type fakeContext struct {
	text      string
	available bool
}

func (f fakeContext) Build(ctx context.Context, symbol, base, quote string) (string, bool) {
	return f.text, f.available
}

type fakeFeedbackStore struct {
	trades []types.TradeRecord
}

func (f fakeFeedbackStore) RecentClosedForPair(symbol string, n int) ([]types.TradeRecord, error) {
	return f.trades, nil
}

func textServer(t *testing.T, text string, capture *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			body, _ := io.ReadAll(r.Body)
			*capture = string(body)
		}
		resp := map[string]interface{}{
			"content": []map[string]string{{"type": "text", "text": text}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestScreenNotConfiguredFailsOpen(t *testing.T) {
	client := llm.New(zap.NewNop(), llm.Config{})
	eng := analysis.New(zap.NewNop(), client, nil, fakeContext{}, nil)

	result := eng.Screen(context.Background(), "GBPJPY", types.Screenshots{}, types.MarketData{}, "")
	if !result.HasSetup || !result.FailedOpen {
		t.Fatalf("expected fail-open has_setup result, got %+v", result)
	}
}

func TestScreenParsesResponse(t *testing.T) {
	srv := textServer(t, `{"has_setup":false,"reasoning":"no structure","h1_trend":"ranging","market_summary":"quiet"}`, nil)
	defer srv.Close()

	client := llm.New(zap.NewNop(), llm.Config{APIKey: "key", BaseURL: srv.URL})
	eng := analysis.New(zap.NewNop(), client, nil, fakeContext{}, nil)

	result := eng.Screen(context.Background(), "GBPJPY",
		types.Screenshots{types.TimeframeH1: []byte("h1"), types.TimeframeM15: []byte("m15")},
		types.MarketData{Symbol: "GBPJPY"}, "macro context")
	if result.HasSetup {
		t.Fatal("expected has_setup=false")
	}
	if result.FailedOpen {
		t.Fatal("expected a real parsed result, not a fail-open default")
	}
	if result.H1Trend != "ranging" {
		t.Errorf("got h1_trend=%q", result.H1Trend)
	}
}

func TestFullAnalysisAssignsSymbolAndIncludesFeedback(t *testing.T) {
	var captured string
	srv := textServer(t, `{"setups":[{"bias":"long","entry_min":150.1,"entry_max":150.3}],"market_summary":"bullish structure","fundamental_bias":"bullish_gbp"}`, &captured)
	defer srv.Close()

	client := llm.New(zap.NewNop(), llm.Config{APIKey: "key", BaseURL: srv.URL})
	store := fakeFeedbackStore{trades: []types.TradeRecord{
		{Symbol: "GBPJPY", Outcome: types.OutcomeFullWin, ChecklistScore: 10, PostTradeReview: "clean entry"},
	}}
	eng := analysis.New(zap.NewNop(), client, nil, fakeContext{text: "macro context", available: true}, store)

	result, err := eng.FullAnalysis(context.Background(), "GBPJPY",
		types.Screenshots{
			types.TimeframeH1: []byte("h1"), types.TimeframeM15: []byte("m15"),
			types.TimeframeM5: []byte("m5"), types.TimeframeM1: []byte("m1"),
		},
		types.MarketData{Symbol: "GBPJPY"}, "macro context")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Setups) != 1 || result.Setups[0].Symbol != "GBPJPY" {
		t.Fatalf("expected one setup tagged with symbol, got %+v", result.Setups)
	}
	if result.FundamentalBias != "bullish_gbp" {
		t.Errorf("got fundamental_bias=%q", result.FundamentalBias)
	}
	if !containsAll(captured, "PERFORMANCE FEEDBACK", "macro context") {
		t.Errorf("expected request to include feedback and context blocks, body: %s", captured)
	}
}

func TestConfirmNotConfiguredDeniesByDefault(t *testing.T) {
	client := llm.New(zap.NewNop(), llm.Config{})
	eng := analysis.New(zap.NewNop(), client, nil, fakeContext{}, nil)

	result := eng.Confirm(context.Background(), "GBPJPY", types.Bias("long"),
		decimal.NewFromFloat(150.2), decimal.NewFromFloat(150.0), decimal.NewFromFloat(150.3),
		[]string{"order block"}, []byte("m1"))
	if result.Confirmed {
		t.Fatal("expected deny-by-default when unconfigured")
	}
}

func TestConfirmTransientErrorDoesNotConfirm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	client := llm.New(zap.NewNop(), llm.Config{APIKey: "key", BaseURL: srv.URL})
	eng := analysis.New(zap.NewNop(), client, nil, fakeContext{}, nil)

	result := eng.Confirm(context.Background(), "GBPJPY", types.Bias("long"),
		decimal.NewFromFloat(150.2), decimal.NewFromFloat(150.0), decimal.NewFromFloat(150.3),
		[]string{"order block"}, []byte("m1"))
	if result.Confirmed {
		t.Fatal("expected no confirmation on transient error")
	}
	if !result.Transient {
		t.Fatal("expected Transient=true so the attempt is not consumed")
	}
}

func containsAll(haystack string, needles ...string) bool {
	for _, n := range needles {
		if !strings.Contains(haystack, n) {
			return false
		}
	}
	return true
}
