package context

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const cotReportURL = "https://publicreporting.cftc.gov/resource/jun7-fc8e.json"
const positioningCacheTTL = 24 * time.Hour

var cftcContractNames = map[string]string{
	"GBP": "BRITISH POUND STERLING",
	"JPY": "JAPANESE YEN",
	"EUR": "EURO FX",
	"USD": "U.S. DOLLAR INDEX",
	"AUD": "AUSTRALIAN DOLLAR",
	"CAD": "CANADIAN DOLLAR",
	"CHF": "SWISS FRANC",
	"NZD": "NEW ZEALAND DOLLAR",
	"XAU": "GOLD",
}

type cotReportRow struct {
	NonCommLongAll  string `json:"noncomm_positions_long_all"`
	NonCommShortAll string `json:"noncomm_positions_short_all"`
	ReportDate      string `json:"report_date_as_yyyy_mm_dd"`
}

// fetchPositioning fetches CFTC Commitment-of-Traders speculator
// positioning for both legs of the pair, cached for 24h (the report
// itself only updates weekly).
func fetchPositioning(ctx context.Context, client *http.Client, cache CacheStore, base, quote string) (*PositioningResult, error) {
	key := fmt.Sprintf("%s_%s_%s", base, quote, dayKey())
	if payload, age, ok := cache.LoadAdapterCache("positioning", key); ok && age < positioningCacheTTL {
		var result PositioningResult
		if err := json.Unmarshal([]byte(payload), &result); err == nil {
			return &result, nil
		}
	}

	result := PositioningResult{}
	if entry, err := fetchPositioningLeg(ctx, client, base); err == nil {
		result.Base = entry
	}
	if entry, err := fetchPositioningLeg(ctx, client, quote); err == nil {
		result.Quote = entry
	}
	if result.Base == nil && result.Quote == nil {
		return nil, fmt.Errorf("context: no positioning data for %s/%s", base, quote)
	}

	if payload, err := json.Marshal(result); err == nil {
		_ = cache.SaveAdapterCache("positioning", key, string(payload))
	}
	return &result, nil
}

func fetchPositioningLeg(ctx context.Context, client *http.Client, currency string) (*PositioningEntry, error) {
	contractName, ok := cftcContractNames[currency]
	if !ok {
		return nil, fmt.Errorf("context: no CFTC contract mapping for %s", currency)
	}

	q := url.Values{}
	q.Set("$where", fmt.Sprintf("contract_market_name like '%%%s%%'", contractName))
	q.Set("$order", "report_date_as_yyyy_mm_dd DESC")
	q.Set("$limit", "2")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cotReportURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("context: cftc api status %d", resp.StatusCode)
	}

	var rows []cotReportRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("context: no cftc rows for %s", currency)
	}

	long, short := parseIntField(rows[0].NonCommLongAll), parseIntField(rows[0].NonCommShortAll)
	entry := &PositioningEntry{
		Currency:   currency,
		SpecLong:   long,
		SpecShort:  short,
		NetSpeculator: long - short,
		ReportDate: rows[0].ReportDate,
	}

	if len(rows) >= 2 {
		prevLong, prevShort := parseIntField(rows[1].NonCommLongAll), parseIntField(rows[1].NonCommShortAll)
		prevNet := prevLong - prevShort
		entry.NetChange = entry.NetSpeculator - prevNet
		switch {
		case entry.NetChange > 0:
			entry.PositioningShift = "increasing_long"
		case entry.NetChange < 0:
			entry.PositioningShift = "increasing_short"
		default:
			entry.PositioningShift = "unchanged"
		}
	}
	return entry, nil
}

func parseIntField(s string) int {
	var n int
	_, _ = fmt.Sscanf(s, "%d", &n)
	return n
}

func dayKey() string {
	return time.Now().UTC().Format("2006-01-02")
}
