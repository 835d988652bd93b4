package notifier_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/fxdesk/trade-coordinator/internal/notifier"
	"github.com/fxdesk/trade-coordinator/pkg/types"
	"github.com/shopspring/decimal"
)

type capturedRequest struct {
	Path string
	Body map[string]any
}

func newCapturingServer(t *testing.T) (*httptest.Server, *[]capturedRequest, *sync.Mutex) {
	t.Helper()
	var mu sync.Mutex
	var captured []capturedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		captured = append(captured, capturedRequest{Path: r.URL.Path, Body: body})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &captured, &mu
}

func TestSendTextPostsToConfiguredChat(t *testing.T) {
	srv, captured, mu := newCapturingServer(t)

	n := notifier.New(zap.NewNop(), notifier.Config{BotToken: "tok", ChatID: "123", BaseURL: srv.URL})
	n.SendText(context.Background(), "hello")

	mu.Lock()
	defer mu.Unlock()
	if len(*captured) != 1 {
		t.Fatalf("expected 1 request, got %d", len(*captured))
	}
	req := (*captured)[0]
	if !strings.HasSuffix(req.Path, "/sendMessage") {
		t.Errorf("expected sendMessage path, got %s", req.Path)
	}
	if req.Body["text"] != "hello" || req.Body["chat_id"] != "123" {
		t.Errorf("unexpected body: %+v", req.Body)
	}
}

func TestSendSkippedWhenNotConfigured(t *testing.T) {
	srv, captured, mu := newCapturingServer(t)

	n := notifier.New(zap.NewNop(), notifier.Config{BaseURL: srv.URL})
	n.SendText(context.Background(), "hello")

	mu.Lock()
	defer mu.Unlock()
	if len(*captured) != 0 {
		t.Fatalf("expected no request when unconfigured, got %d", len(*captured))
	}
}

func TestNotifySetupFormatsDirectionAndLevels(t *testing.T) {
	srv, captured, mu := newCapturingServer(t)
	n := notifier.New(zap.NewNop(), notifier.Config{BotToken: "tok", ChatID: "123", BaseURL: srv.URL})

	setup := types.TradeSetup{
		Bias:           types.BiasLong,
		EntryMin:       decimal.NewFromFloat(150.0),
		EntryMax:       decimal.NewFromFloat(150.2),
		StopLoss:       decimal.NewFromFloat(149.5),
		TP1:            decimal.NewFromFloat(151.0),
		TP2:            decimal.NewFromFloat(152.0),
		ChecklistScore: 9,
		ChecklistTotal: 12,
		Confidence:     types.ConfidenceHigh,
		Confluence:     []string{"H1 bullish", "discount zone"},
	}
	n.NotifySetup(context.Background(), "GBPJPY", setup)

	mu.Lock()
	defer mu.Unlock()
	text, _ := (*captured)[0].Body["text"].(string)
	if !strings.Contains(text, "GBPJPY LONG Setup") {
		t.Errorf("expected direction label in text: %s", text)
	}
	if !strings.Contains(text, "H1 bullish") {
		t.Errorf("expected confluence reason in text: %s", text)
	}
}

func TestNotifyWatchOutcomeFormatsStatus(t *testing.T) {
	srv, captured, mu := newCapturingServer(t)
	n := notifier.New(zap.NewNop(), notifier.Config{BotToken: "tok", ChatID: "123", BaseURL: srv.URL})

	n.NotifyWatchOutcome(context.Background(), "GBPJPY", types.WatchStatusExpired, "kill-zone end reached")

	mu.Lock()
	defer mu.Unlock()
	text, _ := (*captured)[0].Body["text"].(string)
	if !strings.Contains(text, "EXPIRED") || !strings.Contains(text, "kill-zone end reached") {
		t.Errorf("unexpected render: %s", text)
	}
}

func TestSendSwallowsNonOKResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := notifier.New(zap.NewNop(), notifier.Config{BotToken: "tok", ChatID: "123", BaseURL: srv.URL})
	n.SendText(context.Background(), "hello") // must not panic or block
}
