// Package main is the entrypoint for the Book Quote Generator API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	_ "time/tzdata"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/chenjf2025/BookQuoteApp/internal/cache"
	"github.com/chenjf2025/BookQuoteApp/internal/config"
	"github.com/chenjf2025/BookQuoteApp/internal/events"
	"github.com/chenjf2025/BookQuoteApp/internal/handler"
	"github.com/chenjf2025/BookQuoteApp/internal/imagegen"
	"github.com/chenjf2025/BookQuoteApp/internal/llm"
	"github.com/chenjf2025/BookQuoteApp/internal/metrics"
	"github.com/chenjf2025/BookQuoteApp/internal/middleware"
	"github.com/chenjf2025/BookQuoteApp/internal/model"
	"github.com/chenjf2025/BookQuoteApp/internal/poster"
	"github.com/chenjf2025/BookQuoteApp/internal/quota"
	"github.com/chenjf2025/BookQuoteApp/internal/render"
	"github.com/chenjf2025/BookQuoteApp/internal/repository"
	"github.com/chenjf2025/BookQuoteApp/internal/search"
	"github.com/chenjf2025/BookQuoteApp/internal/server"
	"github.com/chenjf2025/BookQuoteApp/internal/service"
	"github.com/chenjf2025/BookQuoteApp/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// app holds the wired components.
type app struct {
	repo      *repository.Repository
	cache     *cache.Cache
	exporter  *render.BrowserExporter
	publisher *events.Publisher
	worker    *events.Worker

	handler *handler.Handler
	health  *handler.HealthHandler
	metrics *handler.MetricsHandler
	static  *handler.StaticHandler
	books   *handler.BookHandler
	h5      *handler.H5Handler

	accounts *service.AccountService
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := wire(ctx, cfg, logger)
	if err != nil {
		return err
	}

	r := setupRouter(a, cfg, logger)

	srv := server.New(r, server.Options{
		Port:            cfg.HTTPPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		IdleTimeout:     cfg.IdleTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// Registered first so they run last.
	srv.OnShutdown("postgres", func(context.Context) error {
		a.repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(context.Context) error {
		return a.cache.Close()
	})
	srv.OnShutdown("browser", func(context.Context) error {
		return a.exporter.Close()
	})
	if a.publisher != nil {
		srv.OnShutdown("ledger_publisher", a.publisher.Flush)
	}
	if a.worker != nil {
		srv.OnShutdown("ledger_worker", a.worker.Shutdown)
	}

	logger.Info("starting server",
		"port", cfg.HTTPPort,
		"base_url", cfg.PublicBaseURL,
		"env", cfg.AppEnv,
		"ledger_events", cfg.LedgerEventsEnabled,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if a.worker != nil {
		g.Go(func() error {
			return a.worker.Run(gctx)
		})
	}
	return g.Wait()
}

// undoStack closes resources opened by a wiring step that later failed.
type undoStack []func()

func (u *undoStack) push(fn func()) { *u = append(*u, fn) }

// run closes in reverse order of opening.
func (u undoStack) run() {
	for i := len(u) - 1; i >= 0; i-- {
		u[i]()
	}
}

// wire builds every component from cfg. On error nothing it opened stays open.
func wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	var undo undoStack
	defer func() {
		if err != nil {
			undo.run()
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		return nil, errors.New("database unavailable")
	}
	undo.push(repo.Close)
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		return nil, errors.New("redis unavailable")
	}
	undo.push(func() { _ = cacheClient.Close() })
	logger.Info("connected to Redis")

	store, err := storage.NewFileStore(cfg.StaticDir)
	if err != nil {
		return nil, fmt.Errorf("static dir: %w", err)
	}

	recorder := metrics.NewInMemory()

	// Kept as an interface so a disabled stream stays a nil interface.
	var publisher quota.EventPublisher
	var streamPublisher *events.Publisher
	var worker *events.Worker
	if cfg.LedgerEventsEnabled {
		streamPublisher = events.NewPublisher(cacheClient.Client(), logger, recorder)
		publisher = streamPublisher
		worker = events.NewWorker(cacheClient.Client(), repository.NewLedgerEventRepository(repo), events.WorkerConfig{
			Logger:  logger,
			Metrics: recorder,
		})
	}

	ledger := quota.NewLedger(repository.NewQuotaStore(repo), cfg.DailyFreeCap,
		quota.WithLocation(loc),
		quota.WithMetrics(recorder),
		quota.WithEvents(publisher),
		quota.WithLogger(logger),
	)

	searcher := search.New(search.Config{
		Endpoint:   cfg.SearchEndpoint,
		MaxResults: cfg.SearchMaxResults,
		CacheTTL:   cfg.SearchCacheTTL,
		Shared:     cacheClient,
		Metrics:    recorder,
		Logger:     logger,
	})

	writer, err := llm.New(llm.Config{
		APIKey:            cfg.DeepSeekAPIKey,
		BaseURL:           cfg.DeepSeekBaseURL,
		Model:             cfg.DeepSeekModel,
		RequestsPerSecond: cfg.LLMRequestsPerSecond,
		Metrics:           recorder,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}

	illustrator := imagegen.New(imagegen.Config{
		APIKey:            cfg.ZhipuAPIKey,
		BaseURL:           cfg.ZhipuBaseURL,
		Model:             cfg.ImageModel,
		RequestsPerSecond: cfg.LLMRequestsPerSecond,
		Metrics:           recorder,
		Logger:            logger,
	})

	fonts, err := poster.LoadFonts(cfg.FontPath)
	if err != nil {
		logger.Warn("poster font unavailable, using bitmap face", "path", cfg.FontPath, "error", err)
	}
	compositor := poster.New(poster.Config{
		Store:   store,
		Fonts:   fonts,
		Metrics: recorder,
		Logger:  logger,
	})

	converter, err := render.NewMarkmapCLI(cfg.MarkmapCommand, "")
	if err != nil {
		return nil, fmt.Errorf("markmap: %w", err)
	}
	exporter := render.NewBrowserExporter(cfg.BrowserBin)
	renderer := render.New(render.Config{
		Store:     store,
		Converter: converter,
		Exporter:  exporter,
		Metrics:   recorder,
		Logger:    logger,
	})

	books := service.NewBookService(service.BookConfig{
		Search:      searcher,
		Writer:      writer,
		Illustrator: illustrator,
		Composer:    compositor,
		Renderer:    renderer,
		History:     repo,
		Logger:      logger,
	})

	workflow := service.NewWorkflow(service.WorkflowConfig{
		Ledger:    ledger,
		Generator: service.MindmapGenerator{Books: books, Strict: cfg.StrictGeneration},
		Timeout:   cfg.GenerationTimeout,
		Metrics:   recorder,
		Logger:    logger,
	})

	accounts, err := service.NewAccountService(service.AccountConfig{
		Store:  repo,
		Cache:  cacheClient,
		Usage:  ledger,
		Events: publisher,
		Package: model.PaymentPackage{
			AmountRMB: cfg.PaymentPackageRMB,
			Quota:     cfg.PaymentPackageQuota,
		},
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("account service: %w", err)
	}

	return &app{
		repo:      repo,
		cache:     cacheClient,
		exporter:  exporter,
		publisher: streamPublisher,
		worker:    worker,

		handler: handler.New(),
		health:  handler.NewHealthHandler(repo, cacheClient),
		metrics: handler.NewMetricsHandler(recorder),
		static:  handler.NewStaticHandler(store, logger),
		books:   handler.NewBookHandler(books, logger),
		h5:      handler.NewH5Handler(accounts, workflow, logger),

		accounts: accounts,
	}, nil
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(a *app, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	securityCfg := middleware.DefaultSecurityConfig()
	securityCfg.IsDevelopment = cfg.IsDevelopment()
	securityCfg.MaxRequestBodySize = cfg.MaxRequestBodySize

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(securityCfg))
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.MaxBodySize(securityCfg.MaxRequestBodySize))
	r.Use(middleware.Identity)

	r.Get("/", a.handler.Root)
	r.Get("/healthz", a.health.Healthz)
	r.Get("/readyz", a.health.Readyz)
	r.Get("/metrics", a.metrics.Metrics)
	r.Get("/static/{filename}", a.static.Serve)

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:  logger,
		Limiter: a.cache,
		Enabled: cfg.RateLimitEnabled,
		RPS:     cfg.RateLimitRPS,
		Burst:   cfg.RateLimitBurst,
	}
	authCfg := middleware.AuthConfig{
		Logger:        logger,
		Authenticator: a.accounts,
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimitIP(rateLimitCfg))

		r.Post("/get_quotes", a.books.GetQuotes)
		r.Post("/generate_poster", a.books.GeneratePoster)
		r.Post("/generate_mindmap", a.books.GenerateMindmap)

		r.Route("/h5", func(r chi.Router) {
			r.Post("/register", a.h5.Register)
			r.Post("/login", a.h5.Login)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(authCfg))
				r.Post("/logout", a.h5.Logout)
				r.Get("/me", a.h5.Me)
				r.Post("/pay", a.h5.Pay)
				r.Post("/generate_mindmap", a.h5.GenerateMindmap)
			})
		})
	})

	// 404 and 405 handlers
	r.NotFound(a.handler.NotFound)
	r.MethodNotAllowed(a.handler.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
