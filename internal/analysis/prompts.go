package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxdesk/trade-coordinator/internal/llm"
	"github.com/fxdesk/trade-coordinator/internal/profile"
	"github.com/fxdesk/trade-coordinator/pkg/types"
)

// screenerSystemPrompt builds the cheap Tier-1 system prompt: decide
// whether a full analysis is worth running, nothing more.
func screenerSystemPrompt(p profile.Profile) string {
	return fmt.Sprintf(`You are a senior institutional FX analyst specializing in %s. You are screening live %s charts for whether a full setup analysis is worth running.

## CONTEXT
- Pair: %s (%s)
- Active sessions: %s

## YOUR TASK
Look at the H1 and M15 charts. Decide only whether there is a plausible ICT-style setup forming (BOS, ChoCH, order block, FVG, liquidity sweep near a key level) — do not fully analyze it.

Respond with EXACTLY this JSON structure, nothing else:
{
  "has_setup": true or false,
  "reasoning": "one or two sentences",
  "h1_trend": "bullish" or "bearish" or "ranging",
  "market_summary": "one sentence"
}

No setup is better than a bad setup — default to false when structure is unclear.`,
		p.Specialization, p.Symbol, p.Symbol, p.KeySessions, p.KeySessions)
}

// fullAnalysisSystemPrompt builds the expensive Tier-2 system prompt,
// generalised from the single-pair predecessor's ICT framework to any
// symbol via its profile.
func fullAnalysisSystemPrompt(p profile.Profile) string {
	searchHints := strings.Join(p.SearchQueries, `", "`)
	biasOptions := strings.Join(p.FundamentalBiasOptions, `" or "`)

	return fmt.Sprintf(`You are a senior institutional FX analyst specializing in %s. You are analyzing live %s charts sent from a MetaTrader terminal.

## CONTEXT
- Pair: %s
- Active sessions: %s
- Typical spread: %s
- Risk per trade: 1%%, targeting minimum 1:2 R:R
- The trader uses ICT methodology: BOS, ChoCH, order blocks, FVGs, liquidity sweeps
- TP strategy: partial close at TP1, runner to TP2

## YOUR TASK
1. First, use web search to check current fundamental drivers, any breaking news, and the economic calendar for the next 24 hours. Search for "%s".

2. Then analyze the four provided charts (H1, M15, M5, M1) using this framework:

### Market Structure (Priority: High)
- Current trend direction per timeframe (H1 -> M15 -> M5)
- Key swing highs/lows with exact price levels
- Break of structure (BOS) or change of character (ChoCH) locations

### Key Levels (Be precise with prices)
- Institutional liquidity zones (equal highs/lows, stop hunts)
- Order blocks / supply & demand zones
- Fair Value Gaps (FVGs)
- Untested POIs (points of interest)

### Fundamental Snapshot
- Current sentiment drivers for each leg currency (max 3 bullets each)
- Upcoming high-impact news within 24h
- Overall fundamental bias

### Trade Setups
For EACH valid setup, provide EXACTLY this JSON structure:
{
  "setups": [
    {
      "bias": "long" or "short",
      "entry_min": price,
      "entry_max": price,
      "stop_loss": price,
      "sl_pips": number,
      "tp1": price,
      "tp1_pips": number,
      "tp2": price,
      "tp2_pips": number,
      "rr_tp1": number,
      "rr_tp2": number,
      "confluence": ["reason1", "reason2", "reason3"],
      "negative_factors": ["factor1"],
      "checklist_score": number,
      "checklist_total": number,
      "confidence": "high" or "medium_high" or "medium" or "low",
      "counter_trend": true or false,
      "trend_alignment": "description",
      "price_zone": "premium" or "discount" or "equilibrium",
      "entry_status": "at_zone" or "approaching" or "requires_pullback",
      "invalidation": "description",
      "news_warning": "description or empty"
    }
  ],
  "market_summary": "2-3 sentence summary",
  "h1_trend_analysis": "description",
  "primary_scenario": "description",
  "alternative_scenario": "description",
  "fundamental_bias": "%s",
  "upcoming_events": ["event1", "event2"]
}

## RULES
- No setup is better than a bad setup — return an empty setups array if no clear edge
- Prioritize setups with 3+ confluence factors
- Consider the pair's typical spread in SL/TP calculations
- Flag any setups near high-impact news events
- Use the performance-feedback block below (if present) to calibrate: if a checklist/confidence bucket has a poor historical win rate, require more confluence before proposing it again
- Always respond with valid JSON matching the structure above, nothing else`,
		p.Specialization, p.Symbol, p.Symbol, p.KeySessions, p.TypicalSpread,
		searchHints, biasOptions)
}

// confirmationSystemPrompt builds the fast Tier-3 entry-confirmation
// system prompt.
func confirmationSystemPrompt(p profile.Profile) string {
	return fmt.Sprintf(`You are a senior institutional FX analyst confirming a %s entry at the M1 level. Price has reached the proposed zone for an active watch trade.

## YOUR TASK
Look at the M1 chart. Confirm whether price action supports entering now: look for a clean rejection/sweep into the zone, not a decisive break through it.

Respond with EXACTLY this JSON structure, nothing else:
{
  "confirmed": true or false,
  "reasoning": "one or two sentences"
}

Default to false when price action is ambiguous — safety over progress.`,
		p.Symbol)
}

// nonOHLCMarketData returns a copy of market with the OHLC arrays removed
// in favor of bar counts, the way the single-tier predecessor trimmed its
// screener payload to keep the prompt concise.
func nonOHLCMarketData(market types.MarketData) map[string]interface{} {
	display := map[string]interface{}{
		"symbol":          market.Symbol,
		"session":         market.Session,
		"timestamp":       market.Timestamp,
		"bid":             market.Bid,
		"ask":             market.Ask,
		"spread_pips":     market.SpreadPips,
		"rsi_h1":          market.RSIH1,
		"rsi_m15":         market.RSIM15,
		"rsi_m5":          market.RSIM5,
		"atr_h1":          market.ATRH1,
		"atr_m15":         market.ATRM15,
		"atr_m5":          market.ATRM5,
		"prev_day_high":   market.PrevDayHigh,
		"prev_day_low":    market.PrevDayLow,
		"prev_day_close":  market.PrevDayClose,
		"prev_week_high":  market.PrevWeekHigh,
		"prev_week_low":   market.PrevWeekLow,
		"asian_high":      market.AsianHigh,
		"asian_low":       market.AsianLow,
		"account_balance": market.AccountBalance,
		"ohlc_bar_counts": map[string]int{
			"h1_bars":  len(market.OHLCH1),
			"m15_bars": len(market.OHLCM15),
			"m5_bars":  len(market.OHLCM5),
			"m1_bars":  len(market.OHLCM1),
		},
	}
	return display
}

// buildScreenerContent assembles the Tier-1 multi-modal content: a
// cache-marked context block, the H1/M15 chart images, and the non-OHLC
// market data.
func buildScreenerContent(shots types.Screenshots, market types.MarketData, contextText string) []llm.ContentBlock {
	var blocks []llm.ContentBlock
	if contextText != "" {
		blocks = append(blocks, llm.CachedTextBlock(contextText))
	}
	blocks = append(blocks, timeframeBlocks(shots, types.TimeframeH1, types.TimeframeM15)...)

	display, _ := json.MarshalIndent(nonOHLCMarketData(market), "", "  ")
	blocks = append(blocks, llm.TextBlock("--- Market Data ---\n"+string(display)))
	blocks = append(blocks, llm.TextBlock("Screen the charts and market data above. Respond with JSON only."))
	return blocks
}

// buildFullAnalysisContent assembles the Tier-2 multi-modal content: the
// context block, all four timeframe images, full market data including
// OHLC, and the rolling performance-feedback block.
func buildFullAnalysisContent(shots types.Screenshots, market types.MarketData, contextText, feedbackText string) []llm.ContentBlock {
	var blocks []llm.ContentBlock
	if contextText != "" {
		blocks = append(blocks, llm.CachedTextBlock(contextText))
	}
	if feedbackText != "" {
		blocks = append(blocks, llm.TextBlock(feedbackText))
	}
	blocks = append(blocks, timeframeBlocks(shots, types.TimeframeH1, types.TimeframeM15, types.TimeframeM5, types.TimeframeM1)...)

	full, _ := json.Marshal(market)
	blocks = append(blocks, llm.TextBlock("--- Market Data (full OHLC) ---\n"+string(full)))
	blocks = append(blocks, llm.TextBlock(
		"Analyze the charts and market data above. First use web_search to check fundamentals and news, then provide your analysis as JSON."))
	return blocks
}

// buildConfirmationContent assembles the Tier-3 multi-modal content: the
// M1 chart plus the active watch's direction, zone, and confluence.
func buildConfirmationContent(m1Image []byte, symbol string, bias types.Bias, currentPrice string, entryMin, entryMax string, confluence []string) []llm.ContentBlock {
	blocks := []llm.ContentBlock{
		llm.TextBlock("--- M1 Chart ---"),
		llm.ImageBlock(m1Image),
	}
	confluenceText := strings.Join(confluence, "; ")
	blocks = append(blocks, llm.TextBlock(fmt.Sprintf(
		"Symbol: %s\nDirection: %s\nCurrent price: %s\nZone: %s - %s\nConfluence: %s\n\nConfirm or reject this entry now. Respond with JSON only.",
		symbol, bias, currentPrice, entryMin, entryMax, confluenceText)))
	return blocks
}

func timeframeBlocks(shots types.Screenshots, tfs ...types.Timeframe) []llm.ContentBlock {
	var blocks []llm.ContentBlock
	for _, tf := range tfs {
		img, ok := shots[tf]
		if !ok {
			continue
		}
		blocks = append(blocks, llm.TextBlock(fmt.Sprintf("--- %s Chart ---", tf)))
		blocks = append(blocks, llm.ImageBlock(img))
	}
	return blocks
}
