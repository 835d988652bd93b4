package analysis

import (
	stdctx "context"
	"fmt"

	"github.com/fxdesk/trade-coordinator/internal/feedback"
	"github.com/fxdesk/trade-coordinator/internal/llm"
	"github.com/fxdesk/trade-coordinator/internal/profile"
	"github.com/fxdesk/trade-coordinator/pkg/types"
	"go.uber.org/zap"
)

// fullAnalysisResponse is the wire shape of the Tier-2 JSON response. Its
// Setups field unmarshals directly into types.TradeSetup since the prompt
// asks for exactly those JSON keys; Symbol is filled in afterward since
// the model is not asked to repeat it per setup.
type fullAnalysisResponse struct {
	Setups              []types.TradeSetup `json:"setups"`
	MarketSummary       string              `json:"market_summary"`
	H1TrendAnalysis     string              `json:"h1_trend_analysis"`
	PrimaryScenario     string              `json:"primary_scenario"`
	AlternativeScenario string              `json:"alternative_scenario"`
	FundamentalBias     string              `json:"fundamental_bias"`
	UpcomingEvents      []string            `json:"upcoming_events"`
}

// FullAnalysis runs the expensive Tier-2 call: all four timeframe images,
// full market data including OHLC, today's macro context, and the rolling
// performance-feedback block for symbol. Only one full-analysis pipeline
// runs globally at a time.
func (e *Engine) FullAnalysis(ctx stdctx.Context, symbol string, shots types.Screenshots, market types.MarketData, contextText string) (types.AnalysisResult, error) {
	e.pipelineMu.Lock()
	defer e.pipelineMu.Unlock()

	prof := profile.Get(symbol)
	system := fullAnalysisSystemPrompt(prof)
	feedbackText := e.feedbackBlock(symbol)

	blocks := buildFullAnalysisContent(shots, market, contextText, feedbackText)

	result, err := e.fullLLM.CompleteBlocks(ctx, system, blocks, true)
	if err != nil {
		return types.AnalysisResult{
			Symbol:        symbol,
			Digits:        prof.Digits,
			MarketSummary: fmt.Sprintf("analysis error: %v", err),
		}, err
	}

	var parsed fullAnalysisResponse
	if parseErr := llm.ExtractJSON(result.Text, &parsed); parseErr != nil {
		e.logger.Warn("full analysis: could not parse response",
			zap.String("symbol", symbol), zap.Error(parseErr))
		return types.AnalysisResult{
			Symbol:        symbol,
			Digits:        prof.Digits,
			MarketSummary: "analysis received but JSON parsing failed",
			RawResponse:   result.Text,
		}, nil
	}

	for i := range parsed.Setups {
		parsed.Setups[i].Symbol = symbol
	}

	return types.AnalysisResult{
		Symbol:              symbol,
		Digits:              prof.Digits,
		Setups:              parsed.Setups,
		H1TrendAnalysis:     parsed.H1TrendAnalysis,
		MarketSummary:       parsed.MarketSummary,
		PrimaryScenario:     parsed.PrimaryScenario,
		AlternativeScenario: parsed.AlternativeScenario,
		FundamentalBias:     parsed.FundamentalBias,
		UpcomingEvents:      parsed.UpcomingEvents,
		RawResponse:         result.Text,
	}, nil
}

// feedbackBlock renders the Tier-2 performance-feedback prose for symbol,
// tolerating a missing store or an aggregation failure.
func (e *Engine) feedbackBlock(symbol string) string {
	if e.feedback == nil {
		return ""
	}
	report, err := feedback.Build(e.feedback, symbol)
	if err != nil {
		e.logger.Warn("full analysis: feedback aggregation failed",
			zap.String("symbol", symbol), zap.Error(err))
		return ""
	}
	text, ok := feedback.Render(report)
	if !ok {
		return ""
	}
	return text
}
