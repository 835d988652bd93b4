package analysis

import (
	stdctx "context"

	"github.com/fxdesk/trade-coordinator/internal/llm"
	"github.com/fxdesk/trade-coordinator/internal/profile"
	"github.com/fxdesk/trade-coordinator/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Confirm runs the fast Tier-3 per-tick entry confirmation for an active
// WatchTrade whose zone price has been reached. Inputs: one M1 image, the
// symbol, direction, current price, the zone, and up to three confluence
// phrases. A transient error or parse failure sets Transient so the
// caller does not consume a confirmation attempt; only a real
// true/false response counts. If no provider is configured this denies
// by default — safety over progress on the path that commits real money.
func (e *Engine) Confirm(ctx stdctx.Context, symbol string, bias types.Bias, currentPrice, entryMin, entryMax decimal.Decimal, confluence []string, m1Image []byte) types.ConfirmationResult {
	prof := profile.Get(symbol)
	system := confirmationSystemPrompt(prof)
	blocks := buildConfirmationContent(m1Image, symbol, bias, currentPrice.String(), entryMin.String(), entryMax.String(), confluence)

	result, err := e.llm.CompleteBlocks(ctx, system, blocks, false)
	if err != nil {
		if err == llm.ErrNotConfigured {
			e.logger.Info("confirmation: no LLM configured, denying by default",
				zap.String("symbol", symbol))
			return types.ConfirmationResult{Confirmed: false, Reasoning: "no analysis provider configured"}
		}
		e.logger.Warn("confirmation: call failed, not consuming attempt",
			zap.String("symbol", symbol), zap.Error(err))
		return types.ConfirmationResult{Confirmed: false, Reasoning: "transient error: " + err.Error(), Transient: true}
	}

	var parsed types.ConfirmationResult
	if parseErr := llm.ExtractJSON(result.Text, &parsed); parseErr != nil {
		e.logger.Warn("confirmation: could not parse response, not consuming attempt",
			zap.String("symbol", symbol), zap.Error(parseErr))
		return types.ConfirmationResult{Confirmed: false, Reasoning: "unparseable response", Transient: true}
	}
	return parsed
}
