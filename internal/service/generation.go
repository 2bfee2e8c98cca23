package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chenjf2025/BookQuoteApp/internal/metrics"
	"github.com/chenjf2025/BookQuoteApp/internal/model"
	"github.com/chenjf2025/BookQuoteApp/internal/quota"
)

// Generation errors.
var (
	// ErrGenerationFailed wraps any failure of the generation itself. The
	// charge has been refunded when it is returned.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrDegradedArtifact is a generator failure in strict mode: the
	// pipeline produced only a fallback artifact.
	ErrDegradedArtifact = errors.New("only a fallback artifact was produced")
)

// DefaultGenerationTimeout bounds one gated generation.
const DefaultGenerationTimeout = 3 * time.Minute

const refundTimeout = 10 * time.Second

// Generator produces an artifact for a subject. It knows nothing of quota.
type Generator interface {
	Generate(ctx context.Context, subject string) (string, error)
}

// Charger is the quota ledger as seen by the workflow.
type Charger interface {
	Charge(ctx context.Context, identity, accountID, subject string) (*model.GenerationAttempt, error)
	Refund(ctx context.Context, charge *model.GenerationAttempt, reason string) (bool, error)
	Settle(ctx context.Context, charge *model.GenerationAttempt, artifactURL string) error
}

// Status is the outcome of a gated generation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusDenied  Status = "denied"
	StatusFailed  Status = "failed"
)

// Result is returned by Submit.
type Result struct {
	Status      Status
	ArtifactURL string
	ChargedFrom model.ChargeSource
	Reason      string
}

// WorkflowConfig configures a Workflow.
type WorkflowConfig struct {
	Ledger    Charger
	Generator Generator
	Timeout   time.Duration
	Metrics   metrics.Recorder
	Logger    *slog.Logger
}

// Workflow charges one unit of quota, runs the generator, and refunds the
// unit if generation fails.
type Workflow struct {
	ledger    Charger
	generator Generator
	timeout   time.Duration
	metrics   metrics.Recorder
	logger    *slog.Logger
}

// NewWorkflow creates a Workflow.
func NewWorkflow(cfg WorkflowConfig) *Workflow {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGenerationTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Workflow{
		ledger:    cfg.Ledger,
		generator: cfg.Generator,
		timeout:   cfg.Timeout,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger.With("component", "workflow"),
	}
}

// Submit runs one gated generation.
//
// A denied request returns StatusDenied with quota.ErrQuotaExhausted and
// never reaches the generator. A failed generation is refunded before
// Submit returns StatusFailed with an error wrapping ErrGenerationFailed.
// Other errors come from the ledger itself.
func (w *Workflow) Submit(ctx context.Context, identity, accountID, subject string) (Result, error) {
	start := time.Now()

	charge, err := w.ledger.Charge(ctx, identity, accountID, subject)
	if err != nil {
		if errors.Is(err, quota.ErrQuotaExhausted) {
			w.metrics.ObserveGeneration(metrics.GenerationDenied, time.Since(start))
			return Result{Status: StatusDenied}, err
		}
		return Result{}, fmt.Errorf("charge quota: %w", err)
	}

	genCtx, cancel := context.WithTimeout(ctx, w.timeout)
	artifact, genErr := w.generator.Generate(genCtx, subject)
	if genErr == nil && genCtx.Err() != nil {
		// Collaborators fall back instead of failing when the deadline
		// passes, so a late artifact is only a placeholder.
		genErr = fmt.Errorf("generation interrupted: %w", context.Cause(genCtx))
	}
	cancel()

	if genErr != nil {
		w.refund(ctx, charge, genErr)
		w.metrics.ObserveGeneration(metrics.GenerationFailed, time.Since(start))
		return Result{Status: StatusFailed, ChargedFrom: charge.Source, Reason: genErr.Error()},
			fmt.Errorf("%w: %w", ErrGenerationFailed, genErr)
	}

	// Settling is bookkeeping; the artifact is delivered even if it fails.
	settleCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), refundTimeout)
	if err := w.ledger.Settle(settleCtx, charge, artifact); err != nil {
		w.logger.Error("settle failed", "charge_id", charge.ID, "error", err)
	}
	stop()

	w.metrics.ObserveGeneration(metrics.GenerationSuccess, time.Since(start))
	w.logger.Info("generation succeeded",
		"charge_id", charge.ID,
		"source", charge.Source,
		"artifact", artifact,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return Result{Status: StatusSuccess, ArtifactURL: artifact, ChargedFrom: charge.Source}, nil
}

// refund runs detached from the request so a disconnected client cannot
// keep the unit charged.
func (w *Workflow) refund(ctx context.Context, charge *model.GenerationAttempt, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refundTimeout)
	defer cancel()

	reason := truncateReason(cause.Error())
	if _, err := w.ledger.Refund(ctx, charge, reason); err != nil {
		// The charge stays "charged"; reconciliation refunds it later.
		w.logger.Error("refund failed", "charge_id", charge.ID, "error", err)
		return
	}
	w.logger.Warn("generation failed, quota refunded",
		"charge_id", charge.ID,
		"source", charge.Source,
		"error", cause,
	)
}

func truncateReason(s string) string {
	const limit = 200
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
