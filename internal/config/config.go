// Package config loads the coordinator's environment configuration via
// viper, mirroring the sensible-defaults convention of the original
// system's config module.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every environment-sourced setting the coordinator needs.
type Config struct {
	Host     string
	Port     int
	LogLevel string
	DataDir  string

	APIKey string

	AnthropicAPIKey string
	AnalysisModel   string

	MessengerBotToken string
	MessengerChatID   string

	APINinjasKey string
	FREDAPIKey   string

	MaxDailyDrawdownPct float64
	MaxOpenTrades       int
	ActivePairs         []string

	AutoQueueMinChecklist int
	MaxConfirmations      int
	TradeQueueTTL         time.Duration
	NewsWindowMinutes     int
	StaleTradeMaxAge       time.Duration
	ScreenshotRetention    time.Duration

	SchedulerInterval time.Duration

	PublicFeedSyncEnabled bool

	MetricsEnabled bool
	MetricsPort    int
}

// Load reads configuration from the environment, applying the defaults
// documented in spec §6 Configuration.
func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8000)
	v.SetDefault("log_level", "info")
	v.SetDefault("data", "./data")

	v.SetDefault("api_key", "")
	v.SetDefault("anthropic_api_key", "")
	v.SetDefault("analysis_model", "claude-opus-4-20250514")

	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("telegram_chat_id", "")

	v.SetDefault("api_ninjas_key", "")
	v.SetDefault("fred_api_key", "")

	v.SetDefault("max_daily_drawdown_pct", 3.0)
	v.SetDefault("max_open_trades", 2)
	v.SetDefault("active_pairs", "GBPJPY")

	v.SetDefault("auto_queue_min_checklist", 7)
	v.SetDefault("max_confirmations", 3)
	v.SetDefault("trade_queue_ttl_seconds", 60)
	v.SetDefault("news_window_minutes", 2)
	v.SetDefault("stale_trade_max_age_hours", 24)
	v.SetDefault("screenshot_retention_days", 30)

	v.SetDefault("scheduler_interval_seconds", 60)

	v.SetDefault("public_feed_sync_enabled", false)

	v.SetDefault("metrics_enabled", true)
	v.SetDefault("metrics_port", 9090)

	pairs := []string{}
	for _, p := range strings.Split(v.GetString("active_pairs"), ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			pairs = append(pairs, p)
		}
	}

	return Config{
		Host:     v.GetString("host"),
		Port:     v.GetInt("port"),
		LogLevel: v.GetString("log_level"),
		DataDir:  v.GetString("data"),

		APIKey: v.GetString("api_key"),

		AnthropicAPIKey: v.GetString("anthropic_api_key"),
		AnalysisModel:   v.GetString("analysis_model"),

		MessengerBotToken: v.GetString("telegram_bot_token"),
		MessengerChatID:   v.GetString("telegram_chat_id"),

		APINinjasKey: v.GetString("api_ninjas_key"),
		FREDAPIKey:   v.GetString("fred_api_key"),

		MaxDailyDrawdownPct: v.GetFloat64("max_daily_drawdown_pct"),
		MaxOpenTrades:       v.GetInt("max_open_trades"),
		ActivePairs:         pairs,

		AutoQueueMinChecklist: v.GetInt("auto_queue_min_checklist"),
		MaxConfirmations:      v.GetInt("max_confirmations"),
		TradeQueueTTL:         time.Duration(v.GetInt("trade_queue_ttl_seconds")) * time.Second,
		NewsWindowMinutes:     v.GetInt("news_window_minutes"),
		StaleTradeMaxAge:      time.Duration(v.GetInt("stale_trade_max_age_hours")) * time.Hour,
		ScreenshotRetention:   time.Duration(v.GetInt("screenshot_retention_days")) * 24 * time.Hour,

		SchedulerInterval: time.Duration(v.GetInt("scheduler_interval_seconds")) * time.Second,

		PublicFeedSyncEnabled: v.GetBool("public_feed_sync_enabled"),

		MetricsEnabled: v.GetBool("metrics_enabled"),
		MetricsPort:    v.GetInt("metrics_port"),
	}
}
