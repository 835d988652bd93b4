package analysis

import (
	stdctx "context"

	"github.com/fxdesk/trade-coordinator/internal/llm"
	"github.com/fxdesk/trade-coordinator/internal/profile"
	"github.com/fxdesk/trade-coordinator/pkg/types"
	"go.uber.org/zap"
)

// Screen runs the cheap Tier-1 decision over the H1/M15 charts and the
// non-OHLC subset of market. A parse failure or transient LLM error
// defaults to has_setup=true — fail-open to the more careful Tier-2 call —
// with FailedOpen set so callers can record the degradation. If no
// provider is configured it reports a setup present, keeping the
// downstream path observable.
func (e *Engine) Screen(ctx stdctx.Context, symbol string, shots types.Screenshots, market types.MarketData, contextText string) types.ScreenerResult {
	prof := profile.Get(symbol)
	system := screenerSystemPrompt(prof)
	blocks := buildScreenerContent(shots, market, contextText)

	result, err := e.llm.CompleteBlocks(ctx, system, blocks, false)
	if err != nil {
		return e.failOpenScreen(symbol, err)
	}

	var parsed types.ScreenerResult
	if parseErr := llm.ExtractJSON(result.Text, &parsed); parseErr != nil {
		e.logger.Warn("screener: could not parse response, failing open",
			zap.String("symbol", symbol), zap.Error(parseErr))
		return types.ScreenerResult{HasSetup: true, Reasoning: "fail-open: unparseable response", FailedOpen: true}
	}
	return parsed
}

func (e *Engine) failOpenScreen(symbol string, err error) types.ScreenerResult {
	if err == llm.ErrNotConfigured {
		e.logger.Info("screener: no LLM configured, reporting setup present",
			zap.String("symbol", symbol))
	} else {
		e.logger.Warn("screener: call failed, failing open",
			zap.String("symbol", symbol), zap.Error(err))
	}
	return types.ScreenerResult{
		HasSetup:   true,
		Reasoning:  "fail-open: " + err.Error(),
		FailedOpen: true,
	}
}
