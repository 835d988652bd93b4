package context

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config configures the Fetcher's optional, keyed data sources.
type Config struct {
	Rates RatesConfig
}

// Fetcher builds the combined Tier-0 macro/sentiment snapshot for a
// symbol, fanning its four adapters out in parallel and tolerating any
// subset of them failing. Concurrent Build calls for the same
// (symbol, date) are deduplicated onto a single in-flight fetch.
type Fetcher struct {
	config     Config
	httpClient *http.Client
	cache      CacheStore
	logger     *zap.Logger

	mu       sync.Mutex
	inFlight map[string]*sharedFetch
}

type sharedFetch struct {
	done      chan struct{}
	snapshot  Snapshot
	text      string
	available bool
}

// New constructs a Fetcher.
func New(logger *zap.Logger, config Config, cache CacheStore) *Fetcher {
	return &Fetcher{
		config:     config,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cache:      cache,
		logger:     logger.Named("context"),
		inFlight:   make(map[string]*sharedFetch),
	}
}

// Build fetches (or joins an in-flight fetch of) the combined context
// text for symbol. Returns ("", false) if no adapter produced data.
func (f *Fetcher) Build(ctx context.Context, symbol, baseCurrency, quoteCurrency string) (string, bool) {
	key := symbol + "_" + dayKey()

	f.mu.Lock()
	if shared, ok := f.inFlight[key]; ok {
		f.mu.Unlock()
		<-shared.done
		return shared.text, shared.available
	}
	shared := &sharedFetch{done: make(chan struct{})}
	f.inFlight[key] = shared
	f.mu.Unlock()

	snapshot := f.fetchAll(ctx, symbol, baseCurrency, quoteCurrency)
	text, available := Render(symbol, baseCurrency, quoteCurrency, snapshot)

	shared.snapshot, shared.text, shared.available = snapshot, text, available
	close(shared.done)

	f.mu.Lock()
	delete(f.inFlight, key)
	f.mu.Unlock()

	return text, available
}

func (f *Fetcher) fetchAll(ctx context.Context, symbol, base, quote string) Snapshot {
	var snapshot Snapshot
	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		result, err := fetchPositioning(ctx, f.httpClient, f.cache, base, quote)
		if err != nil {
			f.logger.Debug("positioning fetch failed", zap.String("symbol", symbol), zap.Error(err))
			return
		}
		snapshot.Positioning = result
	}()
	go func() {
		defer wg.Done()
		result, err := fetchSentiment(ctx, f.httpClient, f.cache, symbol)
		if err != nil {
			f.logger.Debug("sentiment fetch failed", zap.String("symbol", symbol), zap.Error(err))
			return
		}
		snapshot.Sentiment = result
	}()
	go func() {
		defer wg.Done()
		result, err := fetchRateDifferential(ctx, f.httpClient, f.cache, f.config.Rates, base, quote)
		if err != nil {
			f.logger.Debug("rate differential fetch failed", zap.String("symbol", symbol), zap.Error(err))
			return
		}
		snapshot.Rates = result
	}()
	go func() {
		defer wg.Done()
		result, err := fetchIntermarket(ctx, f.httpClient, f.cache, base, quote)
		if err != nil {
			f.logger.Debug("intermarket fetch failed", zap.String("symbol", symbol), zap.Error(err))
			return
		}
		snapshot.Intermarket = result
	}()

	wg.Wait()
	return snapshot
}

// Render formats a Snapshot into the prompt-injected context string, the
// way the single-tier predecessor's build_market_context did. Returns
// ("", false) if nothing was fetched.
func Render(symbol, base, quote string, s Snapshot) (string, bool) {
	var sections []string

	if s.Positioning != nil {
		var lines []string
		for _, entry := range []*PositioningEntry{s.Positioning.Base, s.Positioning.Quote} {
			if entry == nil {
				continue
			}
			bias := "bearish"
			if entry.NetSpeculator > 0 {
				bias = "bullish"
			}
			lines = append(lines, fmt.Sprintf("  %s: speculators net %+d (%s, WoW change: %+d — %s)",
				entry.Currency, entry.NetSpeculator, bias, entry.NetChange, entry.PositioningShift))
		}
		if len(lines) > 0 {
			sections = append(sections, "COT Positioning (CFTC weekly):\n"+strings.Join(lines, "\n"))
		}
	}

	if s.Sentiment != nil {
		sections = append(sections, fmt.Sprintf(
			"Retail Sentiment (Myfxbook):\n  %s: %.0f%% long / %.0f%% short (crowd %s, contrarian signal: %s)",
			symbol, s.Sentiment.PctLong, s.Sentiment.PctShort, s.Sentiment.CrowdBias, s.Sentiment.ContrarianSignal))
	}

	if s.Rates != nil && s.Rates.HasRates {
		sections = append(sections, fmt.Sprintf(
			"Interest Rate Differential:\n  %s: %.2f%% | %s: %.2f%%\n  Spread: %+d bps — carry trade: %s",
			s.Rates.BaseBank, s.Rates.BaseRate, s.Rates.QuoteBank, s.Rates.QuoteRate,
			s.Rates.SpreadBps, s.Rates.CarryTradeStatus))
	}

	if s.Intermarket != nil {
		var lines []string
		for name, ind := range s.Intermarket.Indicators {
			display := titleCase(strings.ReplaceAll(name, "_", " "))
			lines = append(lines, fmt.Sprintf("  %s: %.2f (%+.2f%% today, 5d trend: %s)",
				display, ind.Price, ind.DailyChangePct, ind.Trend))
		}
		lines = append(lines, fmt.Sprintf("  Overall risk sentiment: %s", s.Intermarket.RiskSentiment))
		if s.Intermarket.GoldBias != "" {
			lines = append(lines, fmt.Sprintf("  Gold macro bias: %s", s.Intermarket.GoldBias))
		}
		sections = append(sections, "Intermarket Indicators:\n"+strings.Join(lines, "\n"))
	}

	if len(sections) == 0 {
		return "", false
	}

	text := "## MACRO & SENTIMENT CONTEXT (live data)\n" + strings.Join(sections, "\n\n")
	text += "\n\nUse the above as additional confluence:"
	text += "\n- If positioning opposes your chart bias → lower confidence by 1 tier"
	text += "\n- If retail is 65%+ one-sided → contrarian signal supports opposite direction"

	switch {
	case base == "XAU":
		text += "\n- Gold: DXY inverse correlation — strong USD = bearish gold. Rising VIX = bullish gold"
		text += "\n- Gold: US 10Y yield inverse — rising real yields = bearish gold"
	default:
		if quote == "JPY" {
			text += fmt.Sprintf("\n- If Nikkei is risk-off → JPY strengthens → bearish for %s", symbol)
		}
		if s.Rates != nil && s.Rates.HasRates {
			text += "\n- If carry trade weakening → favor shorter-term setups over swings"
		}
		if base == "GBP" {
			text += "\n- FTSE 100 rallying supports GBP strength"
		}
		if base == "EUR" {
			text += "\n- DAX rallying supports EUR via risk-on sentiment"
		}
	}
	text += "\nDo NOT override chart-based ICT analysis — use this as a tiebreaker or confidence adjuster."

	return text, true
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
