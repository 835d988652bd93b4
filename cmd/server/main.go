// Package main is the trade coordinator's entry point: it loads
// configuration, constructs every component, wires them together, and
// runs until an interrupt or termination signal arrives.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fxdesk/trade-coordinator/internal/analysis"
	"github.com/fxdesk/trade-coordinator/internal/api"
	"github.com/fxdesk/trade-coordinator/internal/config"
	fetcher "github.com/fxdesk/trade-coordinator/internal/context"
	"github.com/fxdesk/trade-coordinator/internal/coordinator"
	"github.com/fxdesk/trade-coordinator/internal/events"
	"github.com/fxdesk/trade-coordinator/internal/llm"
	"github.com/fxdesk/trade-coordinator/internal/metrics"
	"github.com/fxdesk/trade-coordinator/internal/notifier"
	"github.com/fxdesk/trade-coordinator/internal/queue"
	"github.com/fxdesk/trade-coordinator/internal/risk"
	"github.com/fxdesk/trade-coordinator/internal/scheduler"
	"github.com/fxdesk/trade-coordinator/internal/store"
	"github.com/fxdesk/trade-coordinator/internal/watch"
	"github.com/fxdesk/trade-coordinator/internal/workers"
)

func main() {
	cfg := config.Load()
	logger := setupLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting trade coordinator",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.Strings("pairs", cfg.ActivePairs),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(logger, store.DefaultConfig(cfg.DataDir))
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	if n, err := st.CleanupStaleOpenTrades(cfg.StaleTradeMaxAge, logger); err != nil {
		logger.Warn("startup stale-trade sweep failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("swept stale open trades on startup", zap.Int("count", n))
	}

	bus := events.NewBus(logger, events.DefaultBusConfig())
	defer bus.Stop()

	metricsReg, promReg := metrics.New()

	llmClient := llm.New(logger, llm.Config{APIKey: cfg.AnthropicAPIKey, Model: cfg.AnalysisModel})
	fullAnalysisClient := llm.New(logger, llm.Config{APIKey: cfg.AnthropicAPIKey, Model: cfg.AnalysisModel})

	contextFetcher := fetcher.New(logger, fetcher.Config{
		Rates: fetcher.RatesConfig{APINinjasKey: cfg.APINinjasKey, FREDAPIKey: cfg.FREDAPIKey},
	}, st)

	engine := analysis.New(logger, llmClient, fullAnalysisClient, contextFetcher, st)

	riskConfig := risk.Config{
		NewsWindow:          time.Duration(cfg.NewsWindowMinutes) * time.Minute,
		MaxDailyDrawdownPct: decimal.NewFromFloat(cfg.MaxDailyDrawdownPct),
		MaxOpenTrades:       cfg.MaxOpenTrades,
	}
	gate := risk.New(logger, riskConfig, risk.NoCalendar{}, st)

	registry, err := watch.New(logger, st, engine)
	if err != nil {
		logger.Fatal("failed to initialize watch registry", zap.Error(err))
	}

	tradeQueue := queue.New(cfg.TradeQueueTTL)

	notify := notifier.New(logger, notifier.Config{
		BotToken: cfg.MessengerBotToken,
		ChatID:   cfg.MessengerChatID,
	})

	pool := workers.New(logger, workers.DefaultConfig("analysis"))
	pool.Start()
	defer pool.Stop()

	coord := coordinator.New(logger, bus, notify, st, cfg.ActivePairs)
	coord.Start()
	defer coord.Stop()

	lastScanDate := func(symbol string) (string, bool, error) {
		rec, ok, err := st.LastScan(symbol)
		if err != nil || !ok {
			return "", ok, err
		}
		return rec.LastScanDate, true, nil
	}

	sched := scheduler.New(logger, cfg.ActivePairs, registry, lastScanDate, bus)
	if err := sched.Start(ctx); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	server := api.NewServer(logger, api.Config{
		Host:                  cfg.Host,
		Port:                  cfg.Port,
		APIKey:                cfg.APIKey,
		DataDir:               cfg.DataDir,
		Symbols:               cfg.ActivePairs,
		AutoQueueMinChecklist: cfg.AutoQueueMinChecklist,
	}, api.Dependencies{
		Store:    st,
		Gate:     gate,
		Engine:   engine,
		Registry: registry,
		Queue:    tradeQueue,
		Bus:      bus,
		Notifier: notify,
		Pool:     pool,
		Metrics:  metricsReg,
		PromReg:  promReg,
		Resetter: sched,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("ingress server error", zap.Error(err))
		}
	}()

	notify.SendText(ctx, "trade coordinator started")
	logger.Info("trade coordinator started")

	<-sigChan
	logger.Info("shutdown signal received")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", zap.Error(err))
	}

	logger.Info("trade coordinator stopped")
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
