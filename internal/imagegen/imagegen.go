// Package imagegen turns a short visual description into an illustration
// URL using an OpenAI-compatible images endpoint (Zhipu CogView by default).
package imagegen

import (
	"context"
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

// PlaceholderURL is returned when no image could be generated.
const PlaceholderURL = "https://via.placeholder.com/1024x1024.png?text=Image+Generation+Failed"

// ImageSize is the requested square size.
const ImageSize = "1024x1024"

// Fallback reasons.
const (
	ReasonNotConfigured = "not_configured"
	ReasonRequest       = "request"
	ReasonEmpty         = "empty_response"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("image API key not configured")

// ImageCreator is the subset of the OpenAI client used here.
type ImageCreator interface {
	CreateImage(ctx context.Context, req openai.ImageRequest) (openai.ImageResponse, error)
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

// Client generates images.
type Client struct {
	api        ImageCreator
	configured bool
	model      string
	limiter    *rate.Limiter
	metrics    metrics.Recorder
	logger     *slog.Logger
}

// New builds a Client against cfg.BaseURL.
func New(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	oc.HTTPClient = cfg.HTTPClient
	if oc.HTTPClient == nil {
		oc.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return NewWithAPI(openai.NewClientWithConfig(oc), cfg)
}

// NewWithAPI builds a Client around an existing creator.
func NewWithAPI(api ImageCreator, cfg Config) *Client {
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
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.With("component", "imagegen"),
	}
}

// Generate returns the URL of an image for prompt, or PlaceholderURL.
func (c *Client) Generate(ctx context.Context, prompt string) outcome.Outcome[string] {
	url, reason, err := c.generate(ctx, prompt)
	if err != nil {
		c.metrics.IncCollaboratorFallback(metrics.CollaboratorImage)
		c.logger.Warn("image generation degraded", "reason", reason, "error", err)
		return outcome.Fallback(PlaceholderURL, reason, err)
	}
	return outcome.OK(url)
}

func (c *Client) generate(ctx context.Context, prompt string) (string, string, error) {
	if !c.configured {
		return "", ReasonNotConfigured, ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", ReasonRequest, fmt.Errorf("wait for rate limiter: %w", err)
	}

	resp, err := c.api.CreateImage(ctx, openai.ImageRequest{
		Model:  c.model,
		Prompt: prompt,
		Size:   ImageSize,
	})
	if err != nil {
		return "", ReasonRequest, fmt.Errorf("create image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", ReasonEmpty, errors.New("image response carried no URL")
	}
	return resp.Data[0].URL, "", nil
}
