// Package profile holds the static per-symbol profile table: decimal
// digits, kill-zone window, currency pair, and search-query hints used by
// the context fetcher. Unknown symbols fall back to inferred defaults.
package profile

import "strings"

// Profile is the static configuration for one traded symbol.
type Profile struct {
	Symbol                 string
	Digits                 int32
	TypicalSpread          string
	KeySessions            string
	BaseCurrency           string
	QuoteCurrency          string
	Specialization         string
	KillZoneStartMEZ       int // local hour, 24h clock, Europe/Berlin
	KillZoneEndMEZ         int
	SearchQueries          []string
	FundamentalBiasOptions []string
}

var table = map[string]Profile{
	"GBPJPY": {
		Symbol: "GBPJPY", Digits: 3, TypicalSpread: "2-3 pips",
		KeySessions: "London Kill Zone (08:00-11:00 MEZ)",
		BaseCurrency: "GBP", QuoteCurrency: "JPY",
		Specialization:   "GBPJPY London Kill Zone — Asian range sweep patterns",
		KillZoneStartMEZ: 8, KillZoneEndMEZ: 20,
		SearchQueries: []string{
			"GBPJPY forecast today", "GBP news today", "JPY news today",
			"forex economic calendar today GBP JPY",
		},
		FundamentalBiasOptions: []string{"bullish_gbp", "bearish_gbp", "neutral"},
	},
	"EURUSD": {
		Symbol: "EURUSD", Digits: 5, TypicalSpread: "0.5-1.5 pips",
		KeySessions: "London & NY overlap",
		BaseCurrency: "EUR", QuoteCurrency: "USD",
		Specialization:   "major EUR pairs",
		KillZoneStartMEZ: 7, KillZoneEndMEZ: 21,
		SearchQueries: []string{
			"EURUSD forecast today", "EUR news today", "USD news today",
			"forex economic calendar today EUR USD",
		},
		FundamentalBiasOptions: []string{"bullish_eur", "bearish_eur", "neutral"},
	},
	"GBPUSD": {
		Symbol: "GBPUSD", Digits: 5, TypicalSpread: "1-2 pips",
		KeySessions: "London & NY overlap",
		BaseCurrency: "GBP", QuoteCurrency: "USD",
		Specialization:   "major GBP pairs",
		KillZoneStartMEZ: 7, KillZoneEndMEZ: 21,
		SearchQueries: []string{
			"GBPUSD forecast today", "GBP news today", "USD news today",
			"forex economic calendar today GBP USD",
		},
		FundamentalBiasOptions: []string{"bullish_gbp", "bearish_gbp", "neutral"},
	},
	"XAUUSD": {
		Symbol: "XAUUSD", Digits: 2, TypicalSpread: "2-4 pips",
		KeySessions: "London & NY overlap",
		BaseCurrency: "XAU", QuoteCurrency: "USD",
		Specialization:   "gold / precious metals",
		KillZoneStartMEZ: 7, KillZoneEndMEZ: 21,
		SearchQueries: []string{
			"XAUUSD gold forecast today", "gold price news today", "USD news today",
			"forex economic calendar today USD gold",
		},
		FundamentalBiasOptions: []string{"bullish_gold", "bearish_gold", "neutral"},
	},
	"USDJPY": {
		Symbol: "USDJPY", Digits: 3, TypicalSpread: "1-2 pips",
		KeySessions: "Tokyo & NY overlap",
		BaseCurrency: "USD", QuoteCurrency: "JPY",
		Specialization:   "JPY crosses",
		KillZoneStartMEZ: 8, KillZoneEndMEZ: 20,
		SearchQueries: []string{
			"USDJPY forecast today", "USD news today", "JPY news today",
			"forex economic calendar today USD JPY",
		},
		FundamentalBiasOptions: []string{"bullish_usd", "bearish_usd", "neutral"},
	},
	"EURJPY": {
		Symbol: "EURJPY", Digits: 3, TypicalSpread: "2-3 pips",
		KeySessions: "London & Tokyo overlap",
		BaseCurrency: "EUR", QuoteCurrency: "JPY",
		Specialization:   "JPY crosses",
		KillZoneStartMEZ: 8, KillZoneEndMEZ: 20,
		SearchQueries: []string{
			"EURJPY forecast today", "EUR news today", "JPY news today",
			"forex economic calendar today EUR JPY",
		},
		FundamentalBiasOptions: []string{"bullish_eur", "bearish_eur", "neutral"},
	},
}

// Get returns the profile for symbol, falling back to inferred defaults
// for symbols not in the static table.
func Get(symbol string) Profile {
	if p, ok := table[symbol]; ok {
		return p
	}
	return inferDefaults(symbol)
}

func inferDefaults(symbol string) Profile {
	isJPY := strings.HasSuffix(symbol, "JPY")
	isGold := strings.HasPrefix(symbol, "XAU")

	digits := int32(5)
	spread := "1-2 pips"
	switch {
	case isGold:
		digits, spread = 2, "2-4 pips"
	case isJPY:
		digits, spread = 3, "2-3 pips"
	}

	base, quote := symbol, ""
	if len(symbol) >= 6 {
		base, quote = symbol[:3], symbol[3:6]
	}

	return Profile{
		Symbol: symbol, Digits: digits, TypicalSpread: spread,
		KeySessions:  "London & NY overlap",
		BaseCurrency: base, QuoteCurrency: quote,
		Specialization:   "forex pairs",
		KillZoneStartMEZ: 7, KillZoneEndMEZ: 21,
		SearchQueries: []string{
			symbol + " forecast today",
			base + " news today",
			quote + " news today",
			"forex economic calendar today " + base + " " + quote,
		},
		FundamentalBiasOptions: []string{
			"bullish_" + strings.ToLower(base), "bearish_" + strings.ToLower(base), "neutral",
		},
	}
}

// All returns every statically configured symbol's profile.
func All() []Profile {
	out := make([]Profile, 0, len(table))
	for _, p := range table {
		out = append(out, p)
	}
	return out
}
