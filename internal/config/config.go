// Package config provides application configuration management.
// Configuration is read from environment variables; a local .env file is
// honoured in development so that API keys do not have to be exported by hand.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Application settings
	AppEnv        string `env:"APP_ENV" envDefault:"development"`
	HTTPPort      int    `env:"HTTP_PORT" envDefault:"8080"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache, rate limiting and ledger event stream (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts. Mind-map rendering can take close to a minute, so the
	// write timeout is far longer than a typical JSON API would use.
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"5m"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Generated artifacts
	StaticDir string `env:"STATIC_DIR" envDefault:"static"`
	FontPath  string `env:"FONT_PATH" envDefault:"fonts/SourceHanSansCN-Regular.otf"`

	// Language model (OpenAI-compatible, DeepSeek by default)
	DeepSeekAPIKey       string  `env:"DEEPSEEK_API_KEY"`
	DeepSeekBaseURL      string  `env:"DEEPSEEK_BASE_URL" envDefault:"https://api.deepseek.com"`
	DeepSeekModel        string  `env:"DEEPSEEK_MODEL" envDefault:"deepseek-chat"`
	LLMRequestsPerSecond float64 `env:"LLM_REQUESTS_PER_SECOND" envDefault:"2"`

	// Image generation (OpenAI-compatible, Zhipu CogView by default)
	ZhipuAPIKey  string `env:"ZHIPU_API_KEY"`
	ZhipuBaseURL string `env:"ZHIPU_BASE_URL" envDefault:"https://open.bigmodel.cn/api/paas/v4"`
	ImageModel   string `env:"IMAGE_MODEL" envDefault:"cogview-3"`

	// Web search
	SearchEndpoint   string        `env:"SEARCH_ENDPOINT" envDefault:"https://html.duckduckgo.com/html/"`
	SearchMaxResults int           `env:"SEARCH_MAX_RESULTS" envDefault:"5"`
	SearchCacheTTL   time.Duration `env:"SEARCH_CACHE_TTL" envDefault:"6h"`

	// Document rendering tool chain
	MarkmapCommand string `env:"MARKMAP_COMMAND" envDefault:"npx markmap-cli"`
	BrowserBin     string `env:"BROWSER_BIN"`

	// Quota
	DailyFreeCap        int           `env:"DAILY_FREE_CAP" envDefault:"5"`
	QuotaTimezone       string        `env:"QUOTA_TIMEZONE" envDefault:"Asia/Shanghai"`
	PaymentPackageRMB   int           `env:"PAYMENT_PACKAGE_RMB" envDefault:"5"`
	PaymentPackageQuota int           `env:"PAYMENT_PACKAGE_QUOTA" envDefault:"10"`
	GenerationTimeout   time.Duration `env:"GENERATION_TIMEOUT" envDefault:"3m"`
	StrictGeneration    bool          `env:"STRICT_GENERATION" envDefault:"false"`

	// Sessions
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"168h"`

	// Ledger audit stream
	LedgerEventsEnabled bool `env:"LEDGER_EVENTS_ENABLED" envDefault:"true"`

	// Rate limiting (per client IP, /api routes)
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRPS     int  `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst   int  `env:"RATE_LIMIT_BURST" envDefault:"20"`

	// Comma-separated list of allowed origins; "*" allows any origin.
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Location resolves QuotaTimezone. The daily free allowance rolls over at
// midnight in this location.
func (c *Config) Location() (*time.Location, error) {
	if c.QuotaTimezone == "" || strings.EqualFold(c.QuotaTimezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.QuotaTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid QUOTA_TIMEZONE %q: %w", c.QuotaTimezone, err)
	}
	return loc, nil
}

// Validate rejects values that would make the quota ledger or server misbehave.
func (c *Config) Validate() error {
	var errs []error
	if c.DailyFreeCap < 0 {
		errs = append(errs, errors.New("DAILY_FREE_CAP must not be negative"))
	}
	if c.PaymentPackageRMB <= 0 {
		errs = append(errs, errors.New("PAYMENT_PACKAGE_RMB must be positive"))
	}
	if c.PaymentPackageQuota <= 0 {
		errs = append(errs, errors.New("PAYMENT_PACKAGE_QUOTA must be positive"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.SearchMaxResults <= 0 {
		errs = append(errs, errors.New("SEARCH_MAX_RESULTS must be positive"))
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("HTTP_PORT %d out of range", c.HTTPPort))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Load parses environment variables and returns a validated Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadDotEnv loads path if it exists. Variables already present in the
// environment win over the file.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}
