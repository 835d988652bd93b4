package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/fxdesk/trade-coordinator/internal/llm"
)

func TestExtractJSONFromCodeFence(t *testing.T) {
	raw := "Sure, here is the analysis:\n```json\n{\"market_summary\":\"ranging\"}\n```"
	var out struct {
		MarketSummary string `json:"market_summary"`
	}
	if err := llm.ExtractJSON(raw, &out); err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if out.MarketSummary != "ranging" {
		t.Errorf("got %q", out.MarketSummary)
	}
}

func TestExtractJSONDirect(t *testing.T) {
	var out struct {
		Bias string `json:"bias"`
	}
	if err := llm.ExtractJSON(`{"bias":"long"}`, &out); err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if out.Bias != "long" {
		t.Errorf("got %q", out.Bias)
	}
}

func TestExtractJSONEmbedded(t *testing.T) {
	var out struct {
		Bias string `json:"bias"`
	}
	if err := llm.ExtractJSON("note: {\"bias\":\"short\"} end of message", &out); err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if out.Bias != "short" {
		t.Errorf("got %q", out.Bias)
	}
}

func TestCompleteNotConfigured(t *testing.T) {
	c := llm.New(zap.NewNop(), llm.Config{})
	if c.IsConfigured() {
		t.Fatal("expected unconfigured client")
	}
	if _, err := c.Complete(context.Background(), "sys", "prompt", false); err != llm.ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestCompleteAndCache(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		resp := map[string]interface{}{
			"content": []map[string]string{{"type": "text", "text": `{"ok":true}`}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := llm.New(zap.NewNop(), llm.Config{APIKey: "test-key", BaseURL: srv.URL, CacheTTL: 0})
	// a zero CacheTTL falls back to the default, so a second call with an
	// identical prompt must be served from cache.
	res1, err := c.Complete(context.Background(), "sys", "same prompt", false)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if res1.Cached {
		t.Fatal("first call should not be cached")
	}
	res2, err := c.Complete(context.Background(), "sys", "same prompt", false)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if !res2.Cached {
		t.Fatal("second identical call should be served from cache")
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 upstream call, got %d", calls)
	}
}

func TestRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"content": []map[string]string{{"type": "text", "text": `{"ok":true}`}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := llm.New(zap.NewNop(), llm.Config{APIKey: "test-key", BaseURL: srv.URL, RateLimitPerMin: 1})
	if _, err := c.Complete(context.Background(), "sys", "prompt one", false); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if _, err := c.Complete(context.Background(), "sys", "prompt two", false); err != llm.ErrRateLimited {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}
