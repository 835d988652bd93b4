// Package notifier pushes best-effort updates to the messenger UI: setup
// cards, confirmation results, force-execute overrides, status pings and
// weekly/monthly summaries. No Go SDK for the bot API this system targets
// appears anywhere in the retrieved corpus — like internal/llm, the
// client talks to the HTTP API directly with the standard library.
// Failures here are logged and swallowed; the Notifier must never block
// or fail the pipeline it's reporting on.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fxdesk/trade-coordinator/pkg/types"
)

const defaultTimeout = 10 * time.Second

// Config configures a Notifier.
type Config struct {
	BotToken string
	ChatID   string
	BaseURL  string // overridable for tests; defaults to the bot API root
	Timeout  time.Duration
}

func (c Config) resolveBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return "https://api.telegram.org/bot" + c.BotToken
}

// Notifier sends best-effort outbound messages. A zero-value ChatID
// disables sending entirely — Send becomes a logged no-op, matching the
// source bot's "not configured" guard on every send path.
type Notifier struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// New constructs a Notifier.
func New(logger *zap.Logger, config Config) *Notifier {
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	return &Notifier{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger.Named("notifier"),
	}
}

// SendText posts a plain-text message to the configured chat. Errors are
// logged, never returned to the caller — this channel is always
// best-effort, per spec.
func (n *Notifier) SendText(ctx context.Context, text string) {
	n.send(ctx, n.config.ChatID, text)
}

// NotifySetup announces a qualifying TradeSetup as a setup card.
func (n *Notifier) NotifySetup(ctx context.Context, symbol string, setup types.TradeSetup) {
	n.SendText(ctx, formatSetupCard(symbol, setup))
}

// NotifyWatchOutcome announces a watch's confirmation outcome: a terminal
// transition (confirmed / rejected / expired), or a failed attempt that
// leaves the watch in watching status.
func (n *Notifier) NotifyWatchOutcome(ctx context.Context, symbol string, status types.WatchStatus, reasoning string) {
	n.SendText(ctx, formatWatchOutcome(symbol, status, reasoning))
}

// NotifyForceExecute announces an operator-issued force-execute override
// bypassing the normal confirmation path.
func (n *Notifier) NotifyForceExecute(ctx context.Context, symbol, watchID string) {
	n.SendText(ctx, fmt.Sprintf("⚡ FORCE EXECUTE — %s (watch %s) executed without M1 confirmation", symbol, watchID))
}

// NotifyMissedScan announces a missed scheduled scan window.
func (n *Notifier) NotifyMissedScan(ctx context.Context, symbol, date string) {
	n.SendText(ctx, fmt.Sprintf("⚠️ Missed scan — %s had no completed analysis on %s", symbol, date))
}

// NotifyReport announces a rendered weekly/monthly report digest.
func (n *Notifier) NotifyReport(ctx context.Context, digest string) {
	n.SendText(ctx, digest)
}

// IsAuthorizedChat reports whether chatID may issue commands. An
// unconfigured ChatID disables the check (local development only), same
// as the source bot's per-command chat-id guard.
func (n *Notifier) IsAuthorizedChat(chatID string) bool {
	return n.config.ChatID == "" || chatID == n.config.ChatID
}

func formatSetupCard(symbol string, setup types.TradeSetup) string {
	directionEmoji, directionLabel := "\U0001f534", "SHORT"
	if setup.Bias == types.BiasLong {
		directionEmoji, directionLabel = "\U0001f7e2", "LONG"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s Setup\n", directionEmoji, symbol, directionLabel)
	b.WriteString(strings.Repeat("━", 20) + "\n")
	fmt.Fprintf(&b, "\U0001f4cd Entry: %s - %s\n", setup.EntryMin.String(), setup.EntryMax.String())
	fmt.Fprintf(&b, "\U0001f534 SL: %s (%s pips)\n", setup.StopLoss.String(), setup.SLPips.String())
	fmt.Fprintf(&b, "\U0001f3af TP1: %s (%s pips)\n", setup.TP1.String(), setup.TP1Pips.String())
	fmt.Fprintf(&b, "\U0001f3af TP2: %s (%s pips)\n", setup.TP2.String(), setup.TP2Pips.String())
	fmt.Fprintf(&b, "\U0001f4cb Checklist: %d/%d\n", setup.ChecklistScore, setup.ChecklistTotal)
	fmt.Fprintf(&b, "\U0001f525 Confidence: %s\n", strings.ToUpper(string(setup.Confidence)))
	if len(setup.Confluence) > 0 {
		b.WriteString("\nConfluence:\n")
		for _, reason := range setup.Confluence {
			fmt.Fprintf(&b, "• %s\n", reason)
		}
	}
	if setup.CounterTrend {
		b.WriteString("\n⚠️ COUNTER-TREND TRADE\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatWatchOutcome(symbol string, status types.WatchStatus, reasoning string) string {
	var emoji, label string
	switch status {
	case types.WatchStatusConfirmed:
		emoji, label = "✅", "CONFIRMED"
	case types.WatchStatusRejected:
		emoji, label = "❌", "REJECTED"
	case types.WatchStatusExpired:
		emoji, label = "⏰", "EXPIRED"
	default:
		emoji, label = "ℹ️", strings.ToUpper(string(status))
	}
	msg := fmt.Sprintf("%s %s — %s", emoji, symbol, label)
	if reasoning != "" {
		msg += "\n" + reasoning
	}
	return msg
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// send posts text to chatID via the bot API's sendMessage method. Every
// failure path — missing config, transport error, non-2xx response — is
// logged and swallowed.
func (n *Notifier) send(ctx context.Context, chatID, text string) {
	if n.config.BotToken == "" || chatID == "" {
		n.logger.Debug("notifier not configured, skipping send")
		return
	}

	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		n.logger.Warn("failed to encode message", zap.Error(err))
		return
	}

	endpoint, err := url.JoinPath(n.config.resolveBaseURL(), "sendMessage")
	if err != nil {
		n.logger.Warn("failed to build endpoint", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("failed to build request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Warn("notifier send failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.logger.Warn("notifier send rejected", zap.Int("status", resp.StatusCode))
	}
}
