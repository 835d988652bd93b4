package context

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const interestRateURL = "https://api.api-ninjas.com/v1/interestrate"
const fredObservationsURL = "https://api.stlouisfed.org/fred/series/observations"
const ratesCacheTTL = 24 * time.Hour

var centralBankNames = map[string]string{
	"GBP": "Bank of England",
	"JPY": "Bank of Japan",
	"EUR": "European Central Bank",
	"USD": "Federal Reserve",
	"AUD": "Reserve Bank of Australia",
	"CAD": "Bank of Canada",
	"CHF": "Swiss National Bank",
	"NZD": "Reserve Bank of New Zealand",
}

var fredSeriesIDs = map[string]string{
	"GBP": "BOERUKM",
	"EUR": "ECBMLFR",
	"USD": "FEDFUNDS",
	"JPY": "IRSTCB01JPM156N",
}

// RatesConfig holds the optional API keys the rate-differential adapter
// uses. An empty APINinjasKey skips API Ninjas; FRED is tried whenever
// API Ninjas yields no rates, with no api_key parameter if FREDAPIKey is
// empty.
type RatesConfig struct {
	APINinjasKey string
	FREDAPIKey   string
}

// fetchRateDifferential fetches central-bank policy rates for both legs
// and derives the carry-trade spread, cached for 24h. Gold pairs have no
// central bank and are skipped. API Ninjas is tried first, FRED second.
func fetchRateDifferential(ctx context.Context, client *http.Client, cache CacheStore, cfg RatesConfig, base, quote string) (*RateResult, error) {
	if base == "XAU" || quote == "XAU" {
		return nil, fmt.Errorf("context: no rate differential for gold pair")
	}

	key := fmt.Sprintf("%s_%s_%s", base, quote, dayKey())
	if payload, age, ok := cache.LoadAdapterCache("rates", key); ok && age < ratesCacheTTL {
		var result RateResult
		if err := json.Unmarshal([]byte(payload), &result); err == nil {
			return &result, nil
		}
	}

	result := &RateResult{
		BaseCurrency: base, QuoteCurrency: quote,
		BaseBank: centralBankNames[base], QuoteBank: centralBankNames[quote],
	}

	if cfg.APINinjasKey != "" {
		fetchRatesAPINinjas(ctx, client, cfg.APINinjasKey, result)
	}
	if !result.HasRates {
		fetchRatesFRED(ctx, client, cfg.FREDAPIKey, base, quote, result)
	}
	if !result.HasRates {
		return nil, fmt.Errorf("context: no rate data available for %s/%s", base, quote)
	}

	deriveSpread(result)
	if payload, err := json.Marshal(result); err == nil {
		_ = cache.SaveAdapterCache("rates", key, string(payload))
	}
	return result, nil
}

func fetchRatesAPINinjas(ctx context.Context, client *http.Client, apiKey string, result *RateResult) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, interestRateURL, nil)
	if err != nil {
		return
	}
	req.Header.Set("X-Api-Key", apiKey)
	resp, err := client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return
	}

	var banks []struct {
		CentralBank string  `json:"central_bank"`
		RatePct     float64 `json:"rate_pct"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&banks); err != nil {
		return
	}

	for _, b := range banks {
		name := strings.ToLower(b.CentralBank)
		if result.BaseBank != "" && strings.Contains(name, strings.ToLower(result.BaseBank)) {
			result.BaseRate = b.RatePct
		} else if result.QuoteBank != "" && strings.Contains(name, strings.ToLower(result.QuoteBank)) {
			result.QuoteRate = b.RatePct
		}
	}
	result.HasRates = result.BaseRate != 0 && result.QuoteRate != 0
}

func fetchRatesFRED(ctx context.Context, client *http.Client, apiKey, base, quote string, result *RateResult) {
	for label, currency := range map[string]string{"base": base, "quote": quote} {
		seriesID, ok := fredSeriesIDs[currency]
		if !ok {
			continue
		}
		q := url.Values{}
		q.Set("series_id", seriesID)
		q.Set("sort_order", "desc")
		q.Set("limit", "1")
		q.Set("file_type", "json")
		if apiKey != "" {
			q.Set("api_key", apiKey)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fredObservationsURL+"?"+q.Encode(), nil)
		if err != nil {
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			continue
		}
		var body struct {
			Observations []struct {
				Value string `json:"value"`
			} `json:"observations"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if decodeErr != nil || len(body.Observations) == 0 {
			continue
		}
		if v, err := strconv.ParseFloat(body.Observations[0].Value, 64); err == nil {
			if label == "base" {
				result.BaseRate = v
			} else {
				result.QuoteRate = v
			}
		}
	}
	result.HasRates = result.BaseRate != 0 && result.QuoteRate != 0
}

func deriveSpread(result *RateResult) {
	spreadBps := int((result.BaseRate - result.QuoteRate) * 100)
	result.SpreadBps = spreadBps
	switch {
	case spreadBps >= 400:
		result.CarryTradeStatus = "strong"
	case spreadBps >= 250:
		result.CarryTradeStatus = "moderate"
	case spreadBps >= 100:
		result.CarryTradeStatus = "weakening"
	default:
		result.CarryTradeStatus = "minimal"
	}
}
