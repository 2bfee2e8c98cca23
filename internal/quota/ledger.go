// Package quota implements the generation quota ledger: a per-identity daily
// free allowance consumed first, then a per-account paid balance.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/chenjf2025/BookQuoteApp/internal/metrics"
	"github.com/chenjf2025/BookQuoteApp/internal/model"
)

// DefaultDailyFreeCap is the number of free generations per identity per day.
const DefaultDailyFreeCap = 5

// EventPublisher receives ledger events. Implementations must not block.
type EventPublisher interface {
	PublishAsync(ctx context.Context, event *model.LedgerEvent)
}

// Usage is a read-only view of both quota pools.
type Usage struct {
	Day       time.Time
	FreeUsed  int
	FreeTotal int
	PaidQuota int
}

// FreeRemaining returns how many free generations are left today.
func (u Usage) FreeRemaining() int {
	if u.FreeUsed >= u.FreeTotal {
		return 0
	}
	return u.FreeTotal - u.FreeUsed
}

// Ledger decides and applies quota charges.
type Ledger struct {
	store    Store
	cap      int
	location *time.Location
	now      func() time.Time
	newID    func() string
	metrics  metrics.Recorder
	events   EventPublisher
	logger   *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLocation sets the time zone in which the daily allowance rolls over.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.location = loc
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithIDGenerator overrides charge ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(l *Ledger) {
		if fn != nil {
			l.newID = fn
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(l *Ledger) {
		if m != nil {
			l.metrics = m
		}
	}
}

// WithEvents sets the audit event publisher.
func WithEvents(p EventPublisher) Option {
	return func(l *Ledger) {
		l.events = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLedger creates a Ledger. A negative cap is treated as zero (no free tier).
func NewLedger(store Store, dailyCap int, opts ...Option) *Ledger {
	if dailyCap < 0 {
		dailyCap = 0
	}
	l := &Ledger{
		store:    store,
		cap:      dailyCap,
		location: time.UTC,
		now:      time.Now,
		newID:    func() string { return ulid.Make().String() },
		metrics:  metrics.NewNoop(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "quota_ledger")
	return l
}

// Cap returns the daily free allowance.
func (l *Ledger) Cap() int {
	return l.cap
}

// Today returns the current usage date.
func (l *Ledger) Today() time.Time {
	return model.UsageDay(l.now(), l.location)
}

// Charge consumes one generation unit for identity on behalf of accountID.
// The free allowance is tried first, then the paid balance. When both are
// exhausted it returns ErrQuotaExhausted and nothing is mutated.
//
// The returned attempt is persisted before Charge returns; the caller owns
// settling or refunding it.
func (l *Ledger) Charge(ctx context.Context, identity, accountID, subject string) (*model.GenerationAttempt, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" || accountID == "" {
		return nil, ErrInvalidCharge
	}

	now := l.now()
	attempt := &model.GenerationAttempt{
		ID:        l.newID(),
		AccountID: accountID,
		Identity:  identity,
		UsageDate: model.UsageDay(now, l.location),
		Status:    model.AttemptCharged,
		Subject:   subject,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if l.cap > 0 {
		attempt.Source = model.SourceFreeDaily
		ok, err := l.store.ChargeFree(ctx, attempt, l.cap)
		if err != nil {
			return nil, fmt.Errorf("charge free allowance: %w", err)
		}
		if ok {
			l.charged(ctx, attempt)
			return attempt, nil
		}
	}

	attempt.Source = model.SourcePaid
	ok, err := l.store.ChargePaid(ctx, attempt)
	if err != nil {
		return nil, fmt.Errorf("charge paid quota: %w", err)
	}
	if ok {
		l.charged(ctx, attempt)
		return attempt, nil
	}

	l.metrics.IncQuotaDenied()
	l.publish(ctx, &model.LedgerEvent{
		Kind:       model.LedgerDenied,
		AccountID:  accountID,
		Identity:   identity,
		OccurredAt: now,
	})
	l.logger.Info("quota exhausted", "identity", identity, "account_id", accountID)
	return nil, ErrQuotaExhausted
}

func (l *Ledger) charged(ctx context.Context, a *model.GenerationAttempt) {
	l.metrics.IncQuotaCharged(string(a.Source))
	l.publish(ctx, &model.LedgerEvent{
		Kind:       model.LedgerCharged,
		ChargeID:   a.ID,
		AccountID:  a.AccountID,
		Identity:   a.Identity,
		Source:     a.Source,
		Delta:      -1,
		OccurredAt: a.CreatedAt,
	})
	l.logger.Debug("quota charged",
		"charge_id", a.ID,
		"source", a.Source,
		"identity", a.Identity,
		"account_id", a.AccountID,
	)
}

// Refund reverses the counter mutation of charge. It is keyed by the charge
// ID, so repeating it is harmless: only the first call reverses anything and
// later calls report false.
func (l *Ledger) Refund(ctx context.Context, charge *model.GenerationAttempt, reason string) (bool, error) {
	if charge == nil || charge.ID == "" {
		return false, ErrChargeNotFound
	}

	refunded, ok, err := l.store.Refund(ctx, charge.ID, reason)
	if err != nil {
		return false, fmt.Errorf("refund charge %s: %w", charge.ID, err)
	}
	if !ok {
		l.logger.Warn("refund skipped, charge already closed", "charge_id", charge.ID)
		return false, nil
	}

	charge.Status = model.AttemptRefunded
	charge.FailureReason = reason

	source := charge.Source
	if refunded != nil && refunded.Source != "" {
		source = refunded.Source
	}
	l.metrics.IncQuotaRefunded(string(source))
	l.publish(ctx, &model.LedgerEvent{
		Kind:       model.LedgerRefunded,
		ChargeID:   charge.ID,
		AccountID:  charge.AccountID,
		Identity:   charge.Identity,
		Source:     source,
		Delta:      1,
		Detail:     reason,
		OccurredAt: l.now(),
	})
	l.logger.Info("quota refunded", "charge_id", charge.ID, "source", source, "reason", reason)
	return true, nil
}

// Settle makes charge permanent after a successful generation.
func (l *Ledger) Settle(ctx context.Context, charge *model.GenerationAttempt, artifactURL string) error {
	if charge == nil || charge.ID == "" {
		return ErrChargeNotFound
	}

	ok, err := l.store.Settle(ctx, charge.ID, artifactURL)
	if err != nil {
		return fmt.Errorf("settle charge %s: %w", charge.ID, err)
	}
	if !ok {
		return fmt.Errorf("settle charge %s: %w", charge.ID, ErrChargeNotFound)
	}

	charge.Status = model.AttemptSettled
	charge.ArtifactURL = artifactURL
	l.metrics.IncQuotaSettled()
	l.publish(ctx, &model.LedgerEvent{
		Kind:       model.LedgerSettled,
		ChargeID:   charge.ID,
		AccountID:  charge.AccountID,
		Identity:   charge.Identity,
		Source:     charge.Source,
		Detail:     artifactURL,
		OccurredAt: l.now(),
	})
	return nil
}

// Usage reports both pools for identity and account. An empty accountID
// reports the free pool only.
func (l *Ledger) Usage(ctx context.Context, identity, accountID string) (Usage, error) {
	day := l.Today()
	used, err := l.store.FreeUsed(ctx, strings.TrimSpace(identity), day)
	if err != nil {
		return Usage{}, fmt.Errorf("read free usage: %w", err)
	}
	usage := Usage{Day: day, FreeUsed: used, FreeTotal: l.cap}
	if accountID == "" {
		return usage, nil
	}
	usage.PaidQuota, err = l.store.PaidQuota(ctx, accountID)
	if err != nil {
		return Usage{}, fmt.Errorf("read paid quota: %w", err)
	}
	return usage, nil
}

// ReconcileStale refunds charges left in "charged" for longer than olderThan,
// which happens when the process dies between charge and refund.
func (l *Ledger) ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	stale, err := l.store.StaleCharges(ctx, l.now().Add(-olderThan), limit)
	if err != nil {
		return 0, fmt.Errorf("list stale charges: %w", err)
	}

	var (
		refunded int
		errs     []error
	)
	for _, attempt := range stale {
		ok, err := l.Refund(ctx, attempt, "stale_charge")
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			refunded++
		}
	}
	return refunded, errors.Join(errs...)
}

func (l *Ledger) publish(ctx context.Context, event *model.LedgerEvent) {
	if l.events == nil {
		return
	}
	l.events.PublishAsync(ctx, event)
}
