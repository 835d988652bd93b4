package api

import (
	"bytes"
	stdctx "context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fxdesk/trade-coordinator/internal/events"
	"github.com/fxdesk/trade-coordinator/internal/queue"
	"github.com/fxdesk/trade-coordinator/internal/store"
	"github.com/fxdesk/trade-coordinator/internal/watch"
	"github.com/fxdesk/trade-coordinator/pkg/types"
)

// fakeConfirmer always returns a fixed ConfirmationResult, letting tests
// drive the registry's Confirm transition without a real LLM call.
type fakeConfirmer struct {
	result types.ConfirmationResult
}

func (f fakeConfirmer) Confirm(ctx stdctx.Context, symbol string, bias types.Bias, currentPrice, entryMin, entryMax decimal.Decimal, confluence []string, m1Image []byte) types.ConfirmationResult {
	return f.result
}

func newConfirmTestServer(t *testing.T, confirmer watch.Confirmer) *Server {
	t.Helper()
	logger := zap.NewNop()

	st, err := store.Open(logger, store.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	registry, err := watch.New(logger, st, confirmer)
	require.NoError(t, err)

	bus := events.NewBus(logger, events.DefaultBusConfig())
	t.Cleanup(bus.Stop)

	s := &Server{
		logger:       logger,
		config:       Config{Symbols: []string{"GBPJPY"}},
		hub:          NewHub(logger),
		store:        st,
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

func multipartConfirmBody(t *testing.T, symbol, watchID, price string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("symbol", symbol))
	require.NoError(t, mw.WriteField("trade_id", watchID))
	require.NoError(t, mw.WriteField("current_price", price))
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestConfirmEntryPublishesSnapshottedLevelsOnConfirm(t *testing.T) {
	s := newConfirmTestServer(t, fakeConfirmer{result: types.ConfirmationResult{Confirmed: true, Reasoning: "zone held"}})

	watchTrade, err := s.registry.CreateFromSetup("GBPJPY", types.TradeSetup{
		Bias: types.BiasLong, ChecklistScore: 9, ChecklistTotal: 12,
		EntryMin: decimal.NewFromInt(190), EntryMax: decimal.NewFromInt(191),
		StopLoss: decimal.NewFromInt(189), TP1: decimal.NewFromInt(193), TP2: decimal.NewFromInt(195),
		SLPips: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	body, contentType := multipartConfirmBody(t, "GBPJPY", watchTrade.ID, "190.5")
	req := httptest.NewRequest(http.MethodPost, "/confirm_entry", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	s.handleConfirmEntry(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	trade, ok := s.queue.Get("GBPJPY")
	require.True(t, ok, "expected a PendingTrade to be queued on confirmation")
	require.Equal(t, watchTrade.ID, trade.ID)
	require.True(t, trade.EntryMin.Equal(decimal.NewFromInt(190)))
	require.True(t, trade.StopLoss.Equal(decimal.NewFromInt(189)))

	_, stillWatching := s.registry.Active("GBPJPY")
	require.False(t, stillWatching, "registry deletes the watch on a terminal transition")
}

func TestConfirmEntryRejectsUnknownWatchID(t *testing.T) {
	s := newConfirmTestServer(t, fakeConfirmer{result: types.ConfirmationResult{Confirmed: true}})

	body, contentType := multipartConfirmBody(t, "GBPJPY", "does-not-exist", "190.5")
	req := httptest.NewRequest(http.MethodPost, "/confirm_entry", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	s.handleConfirmEntry(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfirmEntryRequiresSymbolAndTradeID(t *testing.T) {
	s := newConfirmTestServer(t, fakeConfirmer{})

	body, contentType := multipartConfirmBody(t, "", "", "190.5")
	req := httptest.NewRequest(http.MethodPost, "/confirm_entry", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	s.handleConfirmEntry(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
