package api

import (
	stdctx "context"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fxdesk/trade-coordinator/internal/analysis"
	"github.com/fxdesk/trade-coordinator/internal/events"
	"github.com/fxdesk/trade-coordinator/internal/llm"
	"github.com/fxdesk/trade-coordinator/internal/queue"
	"github.com/fxdesk/trade-coordinator/internal/risk"
	"github.com/fxdesk/trade-coordinator/internal/store"
	"github.com/fxdesk/trade-coordinator/internal/watch"
	"github.com/fxdesk/trade-coordinator/pkg/types"
)

func newGetRequest(target string) (*http.Request, error) {
	return http.NewRequest(http.MethodGet, "http://example.invalid"+target, nil)
}

func newTestServer(t *testing.T, autoQueueMinChecklist int) *Server {
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

	bus := events.NewBus(logger, events.DefaultBusConfig())
	t.Cleanup(bus.Stop)

	s := &Server{
		logger:       logger,
		config:       Config{Symbols: []string{"GBPJPY"}, AutoQueueMinChecklist: autoQueueMinChecklist},
		hub:          NewHub(logger),
		store:        st,
		gate:         gate,
		engine:       engine,
		registry:     registry,
		queue:        queue.New(0),
		bus:          bus,
		bundles:      make(map[string]symbolBundle),
		results:      make(map[string]types.AnalysisResult),
		lastRejected: make(map[string]types.WatchTrade),
	}
	go s.hub.Run()
	return s
}

func testSetup(checklist int) types.TradeSetup {
	return types.TradeSetup{
		Symbol:         "GBPJPY",
		Bias:           types.BiasLong,
		EntryMin:       decimal.NewFromInt(190),
		EntryMax:       decimal.NewFromInt(191),
		StopLoss:       decimal.NewFromInt(189),
		TP1:            decimal.NewFromInt(193),
		TP2:            decimal.NewFromInt(195),
		ChecklistScore: checklist,
		ChecklistTotal: 12,
		Confidence:     types.ConfidenceHigh,
	}
}

func TestHandleSetupBelowThresholdDoesNotCreateWatch(t *testing.T) {
	s := newTestServer(t, 7)
	s.handleSetup(stdctx.Background(), "GBPJPY", decimal.NewFromInt(10000), testSetup(5))

	_, watching := s.registry.Active("GBPJPY")
	require.False(t, watching)
}

func TestHandleSetupAtOrAboveThresholdCreatesWatch(t *testing.T) {
	s := newTestServer(t, 7)
	s.handleSetup(stdctx.Background(), "GBPJPY", decimal.NewFromInt(10000), testSetup(8))

	_, watching := s.registry.Active("GBPJPY")
	require.True(t, watching)
}

func TestHandleSetupDeniedByRiskGateNeverCreatesWatch(t *testing.T) {
	s := newTestServer(t, 7)

	// DefaultConfig's MaxOpenTrades is 2; two already-queued trades trip
	// the max-open-trades guard regardless of this setup's own merits.
	for _, id := range []string{"existing-1", "existing-2"} {
		require.NoError(t, s.store.LogTradeQueued(types.TradeRecord{
			ID: id, Symbol: "EURUSD", Bias: types.BiasLong, CreatedAt: time.Now(),
		}))
	}

	s.handleSetup(stdctx.Background(), "GBPJPY", decimal.NewFromInt(10000), testSetup(9))
	_, watching := s.registry.Active("GBPJPY")
	require.False(t, watching)
}

func TestOutcomeFromCloseReasonMapsTerminalReasons(t *testing.T) {
	cases := map[types.CloseReason]types.TradeOutcome{
		types.CloseReasonTP2:       types.OutcomeFullWin,
		types.CloseReasonTP1:       types.OutcomePartialWin,
		types.CloseReasonSL:        types.OutcomeLoss,
		types.CloseReasonCancelled: types.OutcomeCancelled,
	}
	for reason, want := range cases {
		require.Equal(t, want, outcomeFromCloseReason(reason), "reason=%s", reason)
	}
}

func TestIntQueryFallsBackOnInvalidOrZero(t *testing.T) {
	req, err := newGetRequest("/stats?days=abc")
	require.NoError(t, err)
	require.Equal(t, 30, intQuery(req, "days", 30))

	req, err = newGetRequest("/stats?days=0")
	require.NoError(t, err)
	require.Equal(t, 30, intQuery(req, "days", 30))

	req, err = newGetRequest("/stats?days=7")
	require.NoError(t, err)
	require.Equal(t, 7, intQuery(req, "days", 30))
}
