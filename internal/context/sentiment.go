package context

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const myfxbookOutlookURL = "https://www.myfxbook.com/api/get-community-outlook.json"
const sentimentCacheTTL = 4 * time.Hour

type myfxbookOutlook struct {
	Symbols []struct {
		Name           string  `json:"name"`
		LongPercentage float64 `json:"longPercentage"`
		ShortPercentage float64 `json:"shortPercentage"`
		LongVolume     int64   `json:"longVolume"`
		ShortVolume    int64   `json:"shortVolume"`
	} `json:"symbols"`
}

// fetchSentiment fetches Myfxbook's retail community outlook for symbol,
// cached for 4h — the crowd shifts often but rarely drastically.
func fetchSentiment(ctx context.Context, client *http.Client, cache CacheStore, symbol string) (*SentimentResult, error) {
	key := fmt.Sprintf("%s_%s", symbol, dayKey())
	if payload, age, ok := cache.LoadAdapterCache("sentiment", key); ok && age < sentimentCacheTTL {
		var result SentimentResult
		if err := json.Unmarshal([]byte(payload), &result); err == nil {
			return &result, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, myfxbookOutlookURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("context: myfxbook api status %d", resp.StatusCode)
	}

	var outlook myfxbookOutlook
	if err := json.NewDecoder(resp.Body).Decode(&outlook); err != nil {
		return nil, err
	}

	normalized := strings.ReplaceAll(symbol, "/", "")
	for _, item := range outlook.Symbols {
		name := strings.ToUpper(strings.ReplaceAll(item.Name, "/", ""))
		if name != normalized {
			continue
		}

		result := &SentimentResult{
			Symbol:   symbol,
			PctLong:  round1(item.LongPercentage),
			PctShort: round1(item.ShortPercentage),
			VolLong:  item.LongVolume,
			VolShort: item.ShortVolume,
		}
		switch {
		case result.PctLong > 55:
			result.CrowdBias = "long"
		case result.PctShort > 55:
			result.CrowdBias = "short"
		default:
			result.CrowdBias = "neutral"
		}
		switch {
		case result.PctShort >= 65:
			result.ContrarianSignal = "bullish"
		case result.PctLong >= 65:
			result.ContrarianSignal = "bearish"
		default:
			result.ContrarianSignal = "neutral"
		}

		if payload, err := json.Marshal(result); err == nil {
			_ = cache.SaveAdapterCache("sentiment", key, string(payload))
		}
		return result, nil
	}

	return nil, fmt.Errorf("context: symbol %s not found in myfxbook outlook", symbol)
}

func round1(f float64) float64 {
	return float64(int(f*10+0.5)) / 10
}
