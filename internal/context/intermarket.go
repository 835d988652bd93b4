package context

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const yahooChartURLTemplate = "https://query1.finance.yahoo.com/v8/finance/chart/%s"
const intermarketCacheTTL = 2 * time.Hour

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				ChartPreviousClose float64 `json:"chartPreviousClose"`
				PreviousClose      float64 `json:"previousClose"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
	} `json:"chart"`
}

// fetchIntermarket fetches the pair-aware basket of correlated indices —
// Nikkei/FTSE/DAX, DXY, US 10Y yield, and (for gold) VIX — cached for 2h.
func fetchIntermarket(ctx context.Context, client *http.Client, cache CacheStore, base, quote string) (*IntermarketResult, error) {
	key := fmt.Sprintf("%s_%s_%s_%d", base, quote, dayKey(), time.Now().UTC().Hour()/2)
	if payload, age, ok := cache.LoadAdapterCache("intermarket", key); ok && age < intermarketCacheTTL {
		var result IntermarketResult
		if err := json.Unmarshal([]byte(payload), &result); err == nil {
			return &result, nil
		}
	}

	tickers := map[string]string{"dxy": "DX-Y.NYB", "us_10y_yield": "^TNX"}
	legs := map[string]bool{base: true, quote: true}
	if legs["JPY"] {
		tickers["nikkei_225"] = "^N225"
	}
	if legs["GBP"] {
		tickers["ftse_100"] = "^FTSE"
	}
	if legs["EUR"] {
		tickers["dax"] = "^GDAXI"
	}
	if legs["XAU"] {
		tickers["gold_etf"] = "GLD"
		tickers["vix"] = "^VIX"
	}
	if legs["AUD"] {
		tickers["asx_200"] = "^AXJO"
	}
	if legs["CAD"] {
		tickers["oil_wti"] = "CL=F"
	}

	indicators := make(map[string]Indicator)
	for name, ticker := range tickers {
		ind, err := fetchTicker(ctx, client, ticker)
		if err != nil {
			continue
		}
		indicators[name] = ind
	}
	if len(indicators) == 0 {
		return nil, fmt.Errorf("context: no intermarket data fetched")
	}

	result := &IntermarketResult{Indicators: indicators, RiskSentiment: deriveRiskSentiment(indicators)}
	if legs["XAU"] {
		result.GoldBias = deriveGoldBias(indicators)
	}

	if payload, err := json.Marshal(result); err == nil {
		_ = cache.SaveAdapterCache("intermarket", key, string(payload))
	}
	return result, nil
}

func fetchTicker(ctx context.Context, client *http.Client, ticker string) (Indicator, error) {
	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("range", "5d")

	reqURL := fmt.Sprintf(yahooChartURLTemplate, url.PathEscape(ticker)) + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Indicator{}, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; fxdesk-coordinator/1.0)")

	resp, err := client.Do(req)
	if err != nil {
		return Indicator{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Indicator{}, fmt.Errorf("context: yahoo chart status %d for %s", resp.StatusCode, ticker)
	}

	var parsed yahooChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Indicator{}, err
	}
	if len(parsed.Chart.Result) == 0 {
		return Indicator{}, fmt.Errorf("context: empty chart result for %s", ticker)
	}
	r := parsed.Chart.Result[0]

	price := r.Meta.RegularMarketPrice
	prevClose := r.Meta.ChartPreviousClose
	if prevClose == 0 {
		prevClose = r.Meta.PreviousClose
	}

	var changePct float64
	if price != 0 && prevClose != 0 {
		changePct = (price - prevClose) / prevClose * 100
	}

	var closes []float64
	if len(r.Indicators.Quote) > 0 {
		for _, c := range r.Indicators.Quote[0].Close {
			if c != nil {
				closes = append(closes, *c)
			}
		}
	}

	var fiveDayChangePct float64
	trend := "unknown"
	if len(closes) >= 5 && closes[0] != 0 {
		fiveDayChangePct = (closes[len(closes)-1] - closes[0]) / closes[0] * 100
		switch {
		case fiveDayChangePct > 0.5:
			trend = "up"
		case fiveDayChangePct < -0.5:
			trend = "down"
		default:
			trend = "flat"
		}
	}

	return Indicator{
		Price: round2(price), DailyChangePct: round2(changePct),
		FiveDayChangePct: round2(fiveDayChangePct), Trend: trend,
	}, nil
}

func deriveRiskSentiment(indicators map[string]Indicator) string {
	equityIndices := []string{"nikkei_225", "ftse_100", "dax", "asx_200"}
	bullish, bearish := 0, 0
	for _, name := range equityIndices {
		ind, ok := indicators[name]
		if !ok {
			continue
		}
		switch {
		case ind.DailyChangePct > 0.3:
			bullish++
		case ind.DailyChangePct < -0.3:
			bearish++
		}
	}
	switch {
	case bullish >= 2:
		return "risk_on"
	case bearish >= 2:
		return "risk_off"
	default:
		return "mixed"
	}
}

func deriveGoldBias(indicators map[string]Indicator) string {
	dxy := indicators["dxy"].DailyChangePct
	vix := indicators["vix"].DailyChangePct
	switch {
	case dxy < -0.3 || vix > 3:
		return "bullish (DXY weak / fear rising)"
	case dxy > 0.3 && vix < -3:
		return "bearish (DXY strong / calm markets)"
	default:
		return "neutral"
	}
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
