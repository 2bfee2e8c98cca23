// Command bookctl is the operator CLI for accounts, quota and the ledger.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/chenjf2025/BookQuoteApp/internal/cache"
	"github.com/chenjf2025/BookQuoteApp/internal/config"
	"github.com/chenjf2025/BookQuoteApp/internal/events"
	"github.com/chenjf2025/BookQuoteApp/internal/model"
	"github.com/chenjf2025/BookQuoteApp/internal/quota"
	"github.com/chenjf2025/BookQuoteApp/internal/repository"
	"github.com/chenjf2025/BookQuoteApp/internal/service"
)

var (
	outputFormat string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "bookctl",
	Short: "Operate the Book Quote Generator backend",
	Long: `bookctl manages accounts, quota balances and the quota ledger directly
against the configured Postgres and Redis. It reads the same environment
(and .env file) as the API server.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text or yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")

	rootCmd.AddCommand(accountCmd, usageCmd, attemptsCmd, sessionsCmd, postersCmd, migrateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// env is everything a command may need. Open it with openEnv and always
// Close it.
type env struct {
	cfg       *config.Config
	logger    *slog.Logger
	repo      *repository.Repository
	cache     *cache.Cache
	publisher *events.Publisher
	ledger    *quota.Ledger
	accounts  *service.AccountService
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	e := &env{cfg: cfg, logger: logger, repo: repo, cache: cacheClient}

	var publisher quota.EventPublisher
	if cfg.LedgerEventsEnabled {
		e.publisher = events.NewPublisher(cacheClient.Client(), logger, nil)
		publisher = e.publisher
	}

	e.ledger = quota.NewLedger(repository.NewQuotaStore(repo), cfg.DailyFreeCap,
		quota.WithLocation(loc),
		quota.WithEvents(publisher),
		quota.WithLogger(logger),
	)

	e.accounts, err = service.NewAccountService(service.AccountConfig{
		Store:  repo,
		Cache:  cacheClient,
		Usage:  e.ledger,
		Events: publisher,
		Package: model.PaymentPackage{
			AmountRMB: cfg.PaymentPackageRMB,
			Quota:     cfg.PaymentPackageQuota,
		},
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	})
	if err != nil {
		e.Close(ctx)
		return nil, err
	}
	return e, nil
}

// Close flushes pending ledger events and releases connections.
func (e *env) Close(ctx context.Context) {
	if e.publisher != nil {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*events.PublishTimeout)
		if err := e.publisher.Flush(flushCtx); err != nil {
			e.logger.Warn("ledger events not flushed", "error", err)
		}
		cancel()
	}
	_ = e.cache.Close()
	e.repo.Close()
}

// withEnv wraps a command body with openEnv and Close.
func withEnv(fn func(cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close(cmd.Context())
		return fn(cmd, e, args)
	}
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
