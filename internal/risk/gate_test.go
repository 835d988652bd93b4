package risk_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fxdesk/trade-coordinator/internal/risk"
	"github.com/fxdesk/trade-coordinator/pkg/types"
)

type fakeSource struct {
	openTrades []types.TradeRecord
	openCount  int
	dailyPnL   decimal.Decimal
}

func (f fakeSource) OpenTrades() ([]types.TradeRecord, error) { return f.openTrades, nil }
func (f fakeSource) OpenTradeCount() (int, error)             { return f.openCount, nil }
func (f fakeSource) DailyPnL() (decimal.Decimal, error)       { return f.dailyPnL, nil }

type fakeCalendar struct{ blocked map[string]bool }

func (f fakeCalendar) HasHighImpactEvent(currency string, _ time.Duration) bool {
	return f.blocked[currency]
}

func setup() types.TradeSetup {
	return types.TradeSetup{Symbol: "GBPJPY", Bias: types.BiasLong}
}

func TestGateAllowsWhenClear(t *testing.T) {
	g := risk.New(zap.NewNop(), risk.DefaultConfig(), fakeCalendar{}, fakeSource{})
	d := g.Check("GBPJPY", setup(), decimal.NewFromInt(10000))
	if !d.Allow {
		t.Fatalf("expected allow, got deny: %s", d.Reason)
	}
}

func TestGateDeniesOnNewsWindow(t *testing.T) {
	g := risk.New(zap.NewNop(), risk.DefaultConfig(), fakeCalendar{blocked: map[string]bool{"GBP": true}}, fakeSource{})
	d := g.Check("GBPJPY", setup(), decimal.NewFromInt(10000))
	if d.Allow || d.Reason != "news_window" {
		t.Fatalf("expected news_window deny, got %+v", d)
	}
}

func TestGateDeniesOnDailyDrawdown(t *testing.T) {
	source := fakeSource{dailyPnL: decimal.NewFromInt(-400)}
	g := risk.New(zap.NewNop(), risk.DefaultConfig(), fakeCalendar{}, source)
	d := g.Check("GBPJPY", setup(), decimal.NewFromInt(10000))
	if d.Allow || d.Reason != "daily_drawdown" {
		t.Fatalf("expected daily_drawdown deny, got %+v", d)
	}
}

func TestGateDeniesOnMaxOpenTrades(t *testing.T) {
	source := fakeSource{openCount: 2}
	g := risk.New(zap.NewNop(), risk.DefaultConfig(), fakeCalendar{}, source)
	d := g.Check("GBPJPY", setup(), decimal.NewFromInt(10000))
	if d.Allow || d.Reason != "max_open_trades" {
		t.Fatalf("expected max_open_trades deny, got %+v", d)
	}
}

func TestGateDeniesOnCorrelationConflict(t *testing.T) {
	source := fakeSource{openTrades: []types.TradeRecord{
		{Symbol: "GBPUSD", Bias: types.BiasLong},
	}}
	g := risk.New(zap.NewNop(), risk.DefaultConfig(), fakeCalendar{}, source)
	// Long GBPJPY while already long GBPUSD: both long GBP -> conflict.
	d := g.Check("GBPJPY", setup(), decimal.NewFromInt(10000))
	if d.Allow || d.Reason != "correlation_conflict" {
		t.Fatalf("expected correlation_conflict deny, got %+v", d)
	}
}

func TestGateAllowsSameSymbolOverlap(t *testing.T) {
	source := fakeSource{openTrades: []types.TradeRecord{
		{Symbol: "GBPJPY", Bias: types.BiasLong},
	}}
	g := risk.New(zap.NewNop(), risk.DefaultConfig(), fakeCalendar{}, source)
	d := g.Check("GBPJPY", setup(), decimal.NewFromInt(10000))
	if !d.Allow {
		t.Fatalf("same-symbol overlap should not conflict, got deny: %s", d.Reason)
	}
}

func TestGateAllowsOppositeDirectionDifferentCurrency(t *testing.T) {
	source := fakeSource{openTrades: []types.TradeRecord{
		{Symbol: "EURUSD", Bias: types.BiasShort}, // short EUR, long USD
	}}
	g := risk.New(zap.NewNop(), risk.DefaultConfig(), fakeCalendar{}, source)
	// Long GBPJPY: long GBP, short JPY. No overlap with short EUR / long USD.
	d := g.Check("GBPJPY", setup(), decimal.NewFromInt(10000))
	if !d.Allow {
		t.Fatalf("expected allow, got deny: %s", d.Reason)
	}
}
