// Package llm asks an OpenAI-compatible chat model for book quotes, a
// visual "core thought" and a mind-map outline. Every call degrades to a
// local fallback instead of returning an error.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/chenjf2025/BookQuoteApp/internal/metrics"
	"github.com/chenjf2025/BookQuoteApp/internal/outcome"
)

// QuoteCount is the number of quotes requested and the upper bound kept.
const QuoteCount = 10

// Fallback reasons.
const (
	ReasonNotConfigured = "not_configured"
	ReasonRateLimited   = "rate_limited"
	ReasonRequest       = "request"
	ReasonEmpty         = "empty_response"
	ReasonParse         = "parse"
)

// CoreThoughtFallback is used when the core thought cannot be generated.
const CoreThoughtFallback = "一本书静静地躺在阳光明媚的书桌上，散发着知识的光芒。"

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("language model API key not configured")

// ChatCompleter is the subset of the OpenAI client used here.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config configures a Client.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Metrics           metrics.Recorder
	Logger            *slog.Logger
}

// Client wraps a chat completion API.
type Client struct {
	api        ChatCompleter
	configured bool
	model      string
	limiter    *rate.Limiter
	prompts    *Prompts
	metrics    metrics.Recorder
	logger     *slog.Logger
}

// New builds a Client talking to cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	} else {
		oc.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	}
	return NewWithAPI(openai.NewClientWithConfig(oc), cfg)
}

// NewWithAPI builds a Client around an existing completer.
func NewWithAPI(api ChatCompleter, cfg Config) (*Client, error) {
	prompts, err := LoadPrompts()
	if err != nil {
		return nil, err
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		api:        api,
		configured: cfg.APIKey != "",
		model:      cfg.Model,
		limiter:    rate.NewLimiter(limit, 1),
		prompts:    prompts,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.With("component", "llm"),
	}, nil
}

// FallbackQuotes returns the placeholder quotes for title.
func FallbackQuotes(title string) []string {
	quotes := make([]string, QuoteCount)
	for i := range quotes {
		quotes[i] = fmt.Sprintf("关于《%s》的精彩分享（默认金句 %d）", title, i+1)
	}
	return quotes
}

// FallbackOutline returns the outline used when generation fails.
func FallbackOutline(title string, err error) string {
	return fmt.Sprintf("# 《%s》\n- 生成思维导图失败\n  - 错误信息: %v", title, err)
}

// ExtractQuotes asks for up to QuoteCount quotes as JSON.
func (c *Client) ExtractQuotes(ctx context.Context, title, bookContext string) outcome.Outcome[[]string] {
	content, reason, err := c.complete(ctx, &c.prompts.Quotes, title, bookContext)
	if err != nil {
		return degrade(c, FallbackQuotes(title), "quotes", reason, err)
	}

	quotes, err := parseQuotes(content)
	if err != nil {
		return degrade(c, FallbackQuotes(title), "quotes", ReasonParse, err)
	}
	return outcome.OK(quotes)
}

// ComposeCoreThought asks for a short visual description of the book.
func (c *Client) ComposeCoreThought(ctx context.Context, title, bookContext string) outcome.Outcome[string] {
	content, reason, err := c.complete(ctx, &c.prompts.CoreThought, title, bookContext)
	if err != nil {
		return degrade(c, CoreThoughtFallback, "core_thought", reason, err)
	}
	return outcome.OK(content)
}

// ComposeOutline asks for a markdown mind-map outline.
func (c *Client) ComposeOutline(ctx context.Context, title, bookContext string) outcome.Outcome[string] {
	content, reason, err := c.complete(ctx, &c.prompts.Outline, title, bookContext)
	if err != nil {
		return degrade(c, FallbackOutline(title, err), "outline", reason, err)
	}
	return outcome.OK(stripFence(content, "markdown"))
}

func (c *Client) complete(ctx context.Context, p *Prompt, title, bookContext string) (string, string, error) {
	if !c.configured {
		return "", ReasonNotConfigured, ErrNotConfigured
	}

	user, err := p.Render(title, bookContext)
	if err != nil {
		return "", ReasonRequest, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", ReasonRateLimited, fmt.Errorf("wait for rate limiter: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	})
	if err != nil {
		return "", ReasonRequest, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ReasonEmpty, errors.New("chat completion returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ReasonEmpty, errors.New("chat completion returned empty content")
	}
	return content, "", nil
}

func degrade[T any](c *Client, v T, call, reason string, err error) outcome.Outcome[T] {
	c.metrics.IncCollaboratorFallback(metrics.CollaboratorLLM)
	c.logger.Warn("llm call degraded", "call", call, "reason", reason, "error", err)
	return outcome.Fallback(v, reason, err)
}

func parseQuotes(content string) ([]string, error) {
	var payload struct {
		Quotes []string `json:"quotes"`
	}
	if err := json.Unmarshal([]byte(stripFence(content, "json")), &payload); err != nil {
		return nil, fmt.Errorf("decode quotes JSON: %w", err)
	}

	quotes := make([]string, 0, len(payload.Quotes))
	for _, q := range payload.Quotes {
		if q = strings.TrimSpace(q); q != "" {
			quotes = append(quotes, q)
		}
		if len(quotes) == QuoteCount {
			break
		}
	}
	if len(quotes) == 0 {
		return nil, errors.New("no quotes in response")
	}
	return quotes, nil
}

// stripFence removes a surrounding ``` or ```lang code fence.
func stripFence(s, lang string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```"+lang) {
		s = s[len("```"+lang):]
	} else if strings.HasPrefix(s, "```") {
		s = s[3:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
