package context

import "testing"

func TestDeriveRiskSentiment(t *testing.T) {
	cases := []struct {
		name string
		ind  map[string]Indicator
		want string
	}{
		{"risk on", map[string]Indicator{"nikkei_225": {DailyChangePct: 1}, "ftse_100": {DailyChangePct: 0.5}}, "risk_on"},
		{"risk off", map[string]Indicator{"nikkei_225": {DailyChangePct: -1}, "dax": {DailyChangePct: -0.5}}, "risk_off"},
		{"mixed", map[string]Indicator{"nikkei_225": {DailyChangePct: 1}, "dax": {DailyChangePct: -1}}, "mixed"},
	}
	for _, c := range cases {
		if got := deriveRiskSentiment(c.ind); got != c.want {
			t.Errorf("%s: got %s want %s", c.name, got, c.want)
		}
	}
}

func TestDeriveGoldBias(t *testing.T) {
	bullish := deriveGoldBias(map[string]Indicator{"dxy": {DailyChangePct: -0.5}})
	if bullish[:7] != "bullish" {
		t.Errorf("expected bullish bias, got %s", bullish)
	}
	bearish := deriveGoldBias(map[string]Indicator{"dxy": {DailyChangePct: 0.5}, "vix": {DailyChangePct: -4}})
	if bearish[:7] != "bearish" {
		t.Errorf("expected bearish bias, got %s", bearish)
	}
}

func TestDeriveSpreadCarryTradeStatus(t *testing.T) {
	r := &RateResult{BaseRate: 5.0, QuoteRate: 0.5}
	deriveSpread(r)
	if r.CarryTradeStatus != "strong" {
		t.Errorf("expected strong carry trade, got %s (spread %d)", r.CarryTradeStatus, r.SpreadBps)
	}
}

func TestTitleCase(t *testing.T) {
	if got := titleCase("us 10y yield"); got != "Us 10y Yield" {
		t.Errorf("got %q", got)
	}
}
