// Package llm wraps the Anthropic Messages API: request construction for
// text and multi-modal (chart-image) prompts, response-text extraction,
// cache, and a per-minute rate limiter. No official Go SDK for the
// provider appears anywhere in the retrieved corpus, so the client talks
// to the HTTP API directly — the same shape of client the rest of the
// corpus hand-rolls for providers without a Go SDK.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.anthropic.com/v1/messages"
const defaultAPIVersion = "2023-06-01"

// Config configures the Client.
type Config struct {
	APIKey          string
	Model           string
	BaseURL         string
	MaxTokens       int
	Timeout         time.Duration
	RateLimitPerMin int
	CacheTTL        time.Duration
	WebSearchMaxUse int
	ThinkingBudget  int // extended-thinking token budget; 0 disables
}

// DefaultConfig mirrors the single-tier predecessor's model choice and
// token budget, generalised with cache/rate-limit defaults.
func DefaultConfig() Config {
	return Config{
		Model:           "claude-opus-4-20250514",
		MaxTokens:       4096,
		Timeout:         120 * time.Second,
		RateLimitPerMin: 10,
		CacheTTL:        5 * time.Minute,
		WebSearchMaxUse: 10,
	}
}

// Client is a thin, cached, rate-limited wrapper around the Messages API.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger

	mu           sync.Mutex
	cache        map[string]cacheEntry
	requestCount int
	windowStart  time.Time
}

type cacheEntry struct {
	text      string
	expiresAt time.Time
}

// New constructs a Client. An empty APIKey yields a Client whose requests
// always fail fast with ErrNotConfigured — callers should check
// IsConfigured before relying on live analysis.
func New(logger *zap.Logger, config Config) *Client {
	if config.Model == "" {
		d := DefaultConfig()
		config.Model = d.Model
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultConfig().MaxTokens
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.RateLimitPerMin == 0 {
		config.RateLimitPerMin = DefaultConfig().RateLimitPerMin
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = DefaultConfig().CacheTTL
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	return &Client{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		logger:      logger.Named("llm"),
		cache:       make(map[string]cacheEntry),
		windowStart: time.Now(),
	}
}

// IsConfigured reports whether an API key is present.
func (c *Client) IsConfigured() bool { return c.config.APIKey != "" }

// ErrNotConfigured is returned by Complete/CompleteBlocks when no API key
// is set.
var ErrNotConfigured = fmt.Errorf("llm: client not configured (missing API key)")

// ErrRateLimited is returned when the per-minute request budget is spent.
var ErrRateLimited = fmt.Errorf("llm: rate limit exceeded")

// ContentBlock is one block of a multi-modal user message.
type ContentBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text,omitempty"`
	Source       *ImageSource  `json:"source,omitempty"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// CacheControl marks a content block as a prompt-cache breakpoint. The
// screener tier applies this to its context block so the provider can
// reuse the cached prefix across repeated screenings of the same symbol.
type CacheControl struct {
	Type string `json:"type"`
}

// ImageSource is a base64-encoded inline image block.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// TextBlock returns a text content block.
func TextBlock(text string) ContentBlock { return ContentBlock{Type: "text", Text: text} }

// ImageBlock returns a base64 PNG image content block.
func ImageBlock(pngBytes []byte) ContentBlock {
	return ContentBlock{
		Type: "image",
		Source: &ImageSource{
			Type:      "base64",
			MediaType: "image/png",
			Data:      base64.StdEncoding.EncodeToString(pngBytes),
		},
	}
}

// CachedTextBlock returns a text content block marked as an ephemeral
// prompt-cache breakpoint.
func CachedTextBlock(text string) ContentBlock {
	b := TextBlock(text)
	b.CacheControl = &CacheControl{Type: "ephemeral"}
	return b
}

// Result is a completed request: the concatenated text across response
// content blocks, and whether it was served from cache.
type Result struct {
	Text   string
	Cached bool
}

// Complete sends a single text user turn under the given system prompt,
// with no image content; the web-search tool is attached only when
// useWebSearch is true.
func (c *Client) Complete(ctx context.Context, system, prompt string, useWebSearch bool) (Result, error) {
	return c.CompleteBlocks(ctx, system, []ContentBlock{TextBlock(prompt)}, useWebSearch)
}

// streamThinkingThreshold is the extended-thinking budget above which the
// provider requires the request to be streamed rather than buffered.
const streamThinkingThreshold = 4096

// CompleteBlocks sends a multi-modal user turn (text and/or chart images).
func (c *Client) CompleteBlocks(ctx context.Context, system string, blocks []ContentBlock, useWebSearch bool) (Result, error) {
	if !c.IsConfigured() {
		return Result{}, ErrNotConfigured
	}

	key := cacheKey(system, blocks, useWebSearch)
	if text, ok := c.fromCache(key); ok {
		return Result{Text: text, Cached: true}, nil
	}
	if !c.allowRequest() {
		return Result{}, ErrRateLimited
	}

	reqBody := c.buildRequestBody(system, blocks, useWebSearch)

	var text string
	var err error
	if c.config.ThinkingBudget >= streamThinkingThreshold {
		text, err = c.doStream(ctx, reqBody)
	} else {
		text, err = c.doBuffered(ctx, reqBody)
	}
	if err != nil {
		return Result{}, err
	}

	c.toCache(key, text)
	return Result{Text: text}, nil
}

func (c *Client) buildRequestBody(system string, blocks []ContentBlock, useWebSearch bool) map[string]interface{} {
	reqBody := map[string]interface{}{
		"model":      c.config.Model,
		"max_tokens": c.config.MaxTokens,
		"system":     system,
		"messages": []map[string]interface{}{
			{"role": "user", "content": blocks},
		},
	}
	if useWebSearch {
		reqBody["tools"] = []map[string]interface{}{
			{"type": "web_search_20250305", "name": "web_search", "max_uses": c.config.WebSearchMaxUse},
		}
	}
	if c.config.ThinkingBudget > 0 {
		reqBody["thinking"] = map[string]interface{}{
			"type": "enabled", "budget_tokens": c.config.ThinkingBudget,
		}
	}
	return reqBody
}

func (c *Client) newRequest(ctx context.Context, reqBody map[string]interface{}) (*http.Request, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-api-key", c.config.APIKey)
	httpReq.Header.Set("anthropic-version", defaultAPIVersion)
	return httpReq, nil
}

// doBuffered sends a non-streaming request and waits for the full response.
func (c *Client) doBuffered(ctx context.Context, reqBody map[string]interface{}) (string, error) {
	httpReq, err := c.newRequest(ctx, reqBody)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("llm: api error %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("llm: unmarshal response: %w", err)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

// doStream sends a server-sent-events streaming request, required by the
// provider once the thinking budget crosses streamThinkingThreshold, and
// accumulates the text deltas of the response.
func (c *Client) doStream(ctx context.Context, reqBody map[string]interface{}) (string, error) {
	reqBody["stream"] = true
	httpReq, err := c.newRequest(ctx, reqBody)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llm: stream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("llm: api error %d: %s", resp.StatusCode, string(body))
	}

	var text strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		data := strings.TrimPrefix(line, "data: ")
		if data == line || data == "" || data == "[DONE]" {
			continue
		}

		var event struct {
			Type  string `json:"type"`
			Delta struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"delta"`
		}
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}
		if event.Type == "content_block_delta" && event.Delta.Type == "text_delta" {
			text.WriteString(event.Delta.Text)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("llm: stream read: %w", err)
	}
	return text.String(), nil
}

func cacheKey(system string, blocks []ContentBlock, useWebSearch bool) string {
	var b strings.Builder
	b.WriteString(system)
	for _, blk := range blocks {
		b.WriteString(blk.Type)
		b.WriteString(blk.Text)
		if blk.Source != nil {
			b.WriteString(blk.Source.Data[:min(len(blk.Source.Data), 64)])
		}
	}
	if useWebSearch {
		b.WriteString("|web")
	}
	return b.String()
}

func (c *Client) fromCache(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.text, true
}

func (c *Client) toCache(key, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{text: text, expiresAt: time.Now().Add(c.config.CacheTTL)}
}

func (c *Client) allowRequest() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Since(c.windowStart) > time.Minute {
		c.requestCount = 0
		c.windowStart = time.Now()
	}
	if c.requestCount >= c.config.RateLimitPerMin {
		return false
	}
	c.requestCount++
	return true
}

// ClearCache empties the response cache, forcing the next identical
// request through to the API.
func (c *Client) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]cacheEntry)
}
