// Package api_test exercises the Ingress HTTP surface end to end against
// a real Store (temp-dir SQLite) and the other collaborators wired the
// way cmd/server wires them, minus a configured LLM/notifier backend.
package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fxdesk/trade-coordinator/internal/analysis"
	"github.com/fxdesk/trade-coordinator/internal/api"
	"github.com/fxdesk/trade-coordinator/internal/events"
	"github.com/fxdesk/trade-coordinator/internal/llm"
	"github.com/fxdesk/trade-coordinator/internal/notifier"
	"github.com/fxdesk/trade-coordinator/internal/queue"
	"github.com/fxdesk/trade-coordinator/internal/risk"
	"github.com/fxdesk/trade-coordinator/internal/store"
	"github.com/fxdesk/trade-coordinator/internal/watch"
	"github.com/fxdesk/trade-coordinator/internal/workers"
)

const testAPIKey = "test-key"

func setupTestServer(t *testing.T) (*api.Server, *httptest.Server) {
	t.Helper()
	logger := zap.NewNop()

	st, err := store.Open(logger, store.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	llmClient := llm.New(logger, llm.Config{})
	engine := analysis.New(logger, llmClient, llmClient, nil, st)

	gate := risk.New(logger, risk.DefaultConfig(), risk.NoCalendar{}, st)

	registry, err := watch.New(logger, st, engine)
	require.NoError(t, err)

	tradeQueue := queue.New(0)
	bus := events.NewBus(logger, events.DefaultBusConfig())
	t.Cleanup(bus.Stop)

	notify := notifier.New(logger, notifier.Config{})

	pool := workers.New(logger, workers.DefaultConfig("test"))
	pool.Start()
	t.Cleanup(pool.Stop)

	server := api.NewServer(logger, api.Config{
		APIKey:                testAPIKey,
		DataDir:               t.TempDir(),
		Symbols:               []string{"GBPJPY"},
		AutoQueueMinChecklist: 7,
	}, api.Dependencies{
		Store:    st,
		Gate:     gate,
		Engine:   engine,
		Registry: registry,
		Queue:    tradeQueue,
		Bus:      bus,
		Notifier: notify,
		Pool:     pool,
	})

	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return server, ts
}

func TestHealthEndpointIsUnauthenticated(t *testing.T) {
	_, ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
}

func TestAuthedRouteRejectsMissingAPIKey(t *testing.T) {
	_, ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthedRouteRejectsWrongAPIKey(t *testing.T) {
	_, ts := setupTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/stats", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "wrong")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthedRouteAcceptsCorrectAPIKey(t *testing.T) {
	_, ts := setupTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/stats", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testAPIKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPublicTradesIsUnauthenticated(t *testing.T) {
	_, ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/public/trades")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPublicReportRejectsInvalidMonth(t *testing.T) {
	_, ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/public/report/2026/13")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPendingTradeReportsAbsentBySymbol(t *testing.T) {
	_, ts := setupTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/pending_trade?symbol=GBPJPY", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testAPIKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, false, body["pending"])
}
