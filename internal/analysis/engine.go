// Package analysis implements the three-tier AnalysisEngine: a cheap
// screener, an expensive full-analysis call, and a fast per-tick entry
// confirmation, all layered over the internal/llm client.
package analysis

import (
	stdctx "context"
	"sync"

	"github.com/fxdesk/trade-coordinator/internal/feedback"
	"github.com/fxdesk/trade-coordinator/internal/llm"
	"go.uber.org/zap"
)

// ContextProvider supplies the Tier-0 macro/sentiment text for a symbol.
// Satisfied by *internal/context.Fetcher.
type ContextProvider interface {
	Build(ctx stdctx.Context, symbol, baseCurrency, quoteCurrency string) (string, bool)
}

// Engine runs the three analysis tiers over the common LLM client
// interface. Only one full-analysis pipeline runs at a time globally —
// the pipeline lock enforces the "exactly one full-analysis pipeline
// runs at a time" model the concurrency contract names, since this
// coordinator drives a single broker account and concurrent pipelines
// would duplicate risk-gate and execution work against the same balance.
//
// Tier 2 uses a separate client instance (fullLLM) so an extended-
// thinking budget set on it does not leak into the cheap screener/
// confirmation calls, which share one client. cmd/server builds both
// clients with no ThinkingBudget, so no tier sends extended thinking.
type Engine struct {
	llm      *llm.Client
	fullLLM  *llm.Client
	context  ContextProvider
	feedback feedback.Store
	logger   *zap.Logger

	pipelineMu sync.Mutex
}

// New constructs an Engine. feedbackStore may be nil, in which case Tier 2
// runs without a performance-feedback block. If fullAnalysisClient is nil,
// Tier 2 reuses client.
func New(logger *zap.Logger, client, fullAnalysisClient *llm.Client, contextProvider ContextProvider, feedbackStore feedback.Store) *Engine {
	if fullAnalysisClient == nil {
		fullAnalysisClient = client
	}
	return &Engine{
		llm:      client,
		fullLLM:  fullAnalysisClient,
		context:  contextProvider,
		feedback: feedbackStore,
		logger:   logger.Named("analysis"),
	}
}

// Context returns the Tier-0 macro/sentiment text for symbol, the daily
// prerequisite for both the screener and full-analysis tiers. Returns
// ("", false) if no ContextProvider is configured or nothing was fetched.
func (e *Engine) Context(ctx stdctx.Context, symbol, baseCurrency, quoteCurrency string) (string, bool) {
	if e.context == nil {
		return "", false
	}
	return e.context.Build(ctx, symbol, baseCurrency, quoteCurrency)
}
