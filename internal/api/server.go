// Package api implements the Coordinator's Ingress: the HTTP surface that
// receives terminal submissions, serves polling endpoints, ingests
// execution/close reports, and exposes public read-only endpoints. It owns
// the in-memory per-symbol caches of the most recently submitted
// screenshots/market data and wires every other component together on the
// request path.
package api

import (
	stdctx "context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fxdesk/trade-coordinator/internal/analysis"
	"github.com/fxdesk/trade-coordinator/internal/events"
	"github.com/fxdesk/trade-coordinator/internal/metrics"
	"github.com/fxdesk/trade-coordinator/internal/notifier"
	"github.com/fxdesk/trade-coordinator/internal/queue"
	"github.com/fxdesk/trade-coordinator/internal/risk"
	"github.com/fxdesk/trade-coordinator/internal/store"
	"github.com/fxdesk/trade-coordinator/internal/watch"
	"github.com/fxdesk/trade-coordinator/internal/workers"
	"github.com/fxdesk/trade-coordinator/pkg/types"
)

// Store is the subset of *internal/store.Store the Ingress needs directly
// (beyond what it reaches through the Risk Gate/WatchRegistry/report
// collaborators).
type Store interface {
	LogTradeQueued(record types.TradeRecord) error
	LogTradeExecuted(id string, report types.TradeExecutionReport) error
	LogTradeClosed(report types.TradeCloseReport) error
	RecentTrades(symbol string, limit int) ([]types.TradeRecord, error)
	Stats(symbol string, days int) (store.Stats, error)
	ClosedTradesSince(cutoff time.Time) ([]types.TradeRecord, error)
	DailyPnL() (decimal.Decimal, error)
	OpenTradeCount() (int, error)
}

// DailyResetter is satisfied by *internal/scheduler.Scheduler. It backs
// the messenger /reset command.
type DailyResetter interface {
	ResetDailyAlerts()
}

// Config configures a Server.
type Config struct {
	Host string
	Port int

	APIKey string

	DataDir               string
	Symbols               []string
	AutoQueueMinChecklist int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// symbolBundle is the in-memory cache of the most recently submitted
// screenshots/market data for one symbol, kept so `/scan` can re-run the
// last analysis without requiring a fresh submission.
type symbolBundle struct {
	shots  types.Screenshots
	market types.MarketData
}

// Server is the Ingress: the HTTP/WebSocket front door wiring the Risk
// Gate, AnalysisEngine, WatchRegistry, TradeQueue, Notifier, and Store
// together on the request path.
type Server struct {
	logger *zap.Logger
	config Config

	router     *mux.Router
	httpServer *http.Server
	hub        *Hub
	metrics    *metrics.Registry

	store    Store
	gate     *risk.Gate
	engine   *analysis.Engine
	registry *watch.Registry
	queue    *queue.Queue
	bus      *events.Bus
	notify   *notifier.Notifier
	pool     *workers.Pool
	resetter DailyResetter

	mu           sync.Mutex
	bundles      map[string]symbolBundle
	results      map[string]types.AnalysisResult
	lastRejected map[string]types.WatchTrade // symbol -> snapshot, for the force_ messenger callback
}

// Dependencies bundles every collaborator NewServer wires into the router.
type Dependencies struct {
	Store    Store
	Gate     *risk.Gate
	Engine   *analysis.Engine
	Registry *watch.Registry
	Queue    *queue.Queue
	Bus      *events.Bus
	Notifier *notifier.Notifier
	Pool     *workers.Pool
	Metrics  *metrics.Registry
	PromReg  *prometheus.Registry
	Resetter DailyResetter
}

// NewServer constructs a Server and registers every route.
func NewServer(logger *zap.Logger, config Config, deps Dependencies) *Server {
	s := &Server{
		logger:       logger.Named("ingress"),
		config:       config,
		router:       mux.NewRouter(),
		hub:          NewHub(logger),
		metrics:      deps.Metrics,
		store:        deps.Store,
		gate:         deps.Gate,
		engine:       deps.Engine,
		registry:     deps.Registry,
		queue:        deps.Queue,
		bus:          deps.Bus,
		notify:       deps.Notifier,
		pool:         deps.Pool,
		resetter:     deps.Resetter,
		bundles:      make(map[string]symbolBundle),
		results:      make(map[string]types.AnalysisResult),
		lastRejected: make(map[string]types.WatchTrade),
	}
	go s.hub.Run()
	s.setupRoutes(deps.PromReg)
	return s
}

func (s *Server) setupRoutes(promReg *prometheus.Registry) {
	r := s.router

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/webhook/messenger", s.handleMessengerWebhook).Methods(http.MethodPost)
	r.HandleFunc("/public/trades", s.handlePublicTrades).Methods(http.MethodGet)
	r.HandleFunc("/public/stats", s.handlePublicStats).Methods(http.MethodGet)
	r.HandleFunc("/public/report/{year}/{month}", s.handlePublicReport).Methods(http.MethodGet)
	if promReg != nil {
		r.Handle("/metrics", metrics.Handler(promReg)).Methods(http.MethodGet)
	}

	authed := r.NewRoute().Subrouter()
	authed.Use(s.authMiddleware)
	authed.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	authed.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)
	authed.HandleFunc("/scan", s.handleScan).Methods(http.MethodGet)
	authed.HandleFunc("/pending_trade", s.handlePendingTrade).Methods(http.MethodGet)
	authed.HandleFunc("/watch_trade", s.handleWatchTrade).Methods(http.MethodGet)
	authed.HandleFunc("/confirm_entry", s.handleConfirmEntry).Methods(http.MethodPost)
	authed.HandleFunc("/trade_executed", s.handleTradeExecuted).Methods(http.MethodPost)
	authed.HandleFunc("/trade_closed", s.handleTradeClosed).Methods(http.MethodPost)
	authed.HandleFunc("/ws", s.handleWebSocket)
}

// authMiddleware enforces the pre-shared X-API-Key header on every route
// it wraps. A missing/blank configured key disables auth entirely, which
// is only sane for local development — operators are expected to set one.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.APIKey == "" || r.Header.Get("X-API-Key") == s.config.APIKey {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusUnauthorized, "unauthorized")
	})
}

// Start begins serving HTTP. It blocks until the server stops or errors.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  orDefault(s.config.ReadTimeout, 30*time.Second),
		WriteTimeout: orDefault(s.config.WriteTimeout, 30*time.Second),
	}
	s.logger.Info("starting ingress", zap.String("addr", addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx stdctx.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the underlying mux.Router for tests that want to drive
// requests through httptest.NewServer without binding a real port.
func (s *Server) Router() http.Handler {
	return s.router
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// handleHealth reports liveness plus a cheap snapshot of in-flight state —
// pending trades, active watches, and per-symbol setup counts — matching
// the source system's /health payload.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	pending := make([]string, 0)
	for _, sym := range s.config.Symbols {
		if _, ok := s.queue.Get(sym); ok {
			pending = append(pending, sym)
		}
	}

	watches := s.registry.All()
	watchedSymbols := make([]string, 0, len(watches))
	for _, w := range watches {
		watchedSymbols = append(watchedSymbols, w.Symbol)
	}

	s.mu.Lock()
	setups := make(map[string]int, len(s.results))
	for sym, res := range s.results {
		setups[sym] = len(res.Setups)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"pending_trades": pending,
		"watching":       watchedSymbols,
		"setups":         setups,
	})
}

// handleMessengerWebhook accepts inbound messenger updates (the webhook
// alternative to long-polling) and routes them to the command/callback
// dispatcher in messenger.go. Malformed payloads are rejected; everything
// else always returns 200 so the messenger platform does not retry —
// dispatch failures are logged and swallowed, matching the Notifier's
// own best-effort send semantics.
func (s *Server) handleMessengerWebhook(w http.ResponseWriter, r *http.Request) {
	var update messengerUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}
	s.dispatchMessengerUpdate(r.Context(), update)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
