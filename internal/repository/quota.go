package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chenjf2025/BookQuoteApp/internal/model"
	"github.com/chenjf2025/BookQuoteApp/internal/quota"
)

// QuotaStore is the PostgreSQL quota.Store. Each charge is a single bounded
// UPDATE/UPSERT plus the insert of its generation_attempts row, inside one
// transaction, so concurrent requests cannot push a counter past its bound.
type QuotaStore struct {
	repo *Repository
}

var _ quota.Store = (*QuotaStore)(nil)

// NewQuotaStore creates a new QuotaStore.
func NewQuotaStore(repo *Repository) *QuotaStore {
	return &QuotaStore{repo: repo}
}

// ChargeFree implements quota.Store.
func (s *QuotaStore) ChargeFree(ctx context.Context, a *model.GenerationAttempt, dailyCap int) (bool, error) {
	if dailyCap <= 0 {
		return false, nil
	}

	charged := false
	err := s.repo.withTx(ctx, func(tx pgx.Tx) error {
		var freeUsed int
		err := tx.QueryRow(ctx, `
			INSERT INTO daily_usage (identity, usage_date, free_used, updated_at)
			VALUES ($1, $2, 1, $4)
			ON CONFLICT (identity, usage_date) DO UPDATE
			SET free_used = daily_usage.free_used + 1, updated_at = $4
			WHERE daily_usage.free_used < $3
			RETURNING free_used
		`, a.Identity, a.UsageDate, dailyCap, a.CreatedAt).Scan(&freeUsed)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("increment daily usage: %w", err)
		}

		if err := insertAttempt(ctx, tx, a, model.SourceFreeDaily); err != nil {
			return err
		}
		charged = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return charged, nil
}

// ChargePaid implements quota.Store.
func (s *QuotaStore) ChargePaid(ctx context.Context, a *model.GenerationAttempt) (bool, error) {
	charged := false
	err := s.repo.withTx(ctx, func(tx pgx.Tx) error {
		var remaining int
		err := tx.QueryRow(ctx, `
			UPDATE accounts
			SET paid_quota = paid_quota - 1, updated_at = $2
			WHERE id = $1 AND paid_quota > 0
			RETURNING paid_quota
		`, a.AccountID, a.CreatedAt).Scan(&remaining)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decrement paid quota: %w", err)
		}

		if err := insertAttempt(ctx, tx, a, model.SourcePaid); err != nil {
			return err
		}
		charged = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return charged, nil
}

func insertAttempt(ctx context.Context, tx pgx.Tx, a *model.GenerationAttempt, source model.ChargeSource) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO generation_attempts (id, account_id, identity, usage_date, source, status, subject, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, a.ID, a.AccountID, a.Identity, a.UsageDate, string(source), string(model.AttemptCharged), a.Subject, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("record generation attempt: %w", err)
	}
	return nil
}

// Refund implements quota.Store. The status flip is conditional on
// status = 'charged', which is what makes repeated refunds no-ops.
func (s *QuotaStore) Refund(ctx context.Context, chargeID, reason string) (*model.GenerationAttempt, bool, error) {
	var (
		attempt  *model.GenerationAttempt
		refunded bool
	)

	err := s.repo.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE generation_attempts
			SET status = 'refunded', failure_reason = $2, updated_at = $3
			WHERE id = $1 AND status = 'charged'
			RETURNING `+attemptColumns, chargeID, nullableString(reason), touchTime())
		a, err := scanAttempt(row)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM generation_attempts WHERE id = $1)`, chargeID).Scan(&exists); err != nil {
				return fmt.Errorf("check generation attempt: %w", err)
			}
			if !exists {
				return quota.ErrChargeNotFound
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("mark attempt refunded: %w", err)
		}

		switch a.Source {
		case model.SourceFreeDaily:
			_, err = tx.Exec(ctx, `
				UPDATE daily_usage
				SET free_used = free_used - 1, updated_at = $3
				WHERE identity = $1 AND usage_date = $2 AND free_used > 0
			`, a.Identity, a.UsageDate, touchTime())
		case model.SourcePaid:
			_, err = tx.Exec(ctx, `
				UPDATE accounts
				SET paid_quota = paid_quota + 1, updated_at = $2
				WHERE id = $1
			`, a.AccountID, touchTime())
		default:
			err = fmt.Errorf("unknown charge source %q", a.Source)
		}
		if err != nil {
			return fmt.Errorf("reverse %s charge: %w", a.Source, err)
		}

		attempt = a
		refunded = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return attempt, refunded, nil
}

// Settle implements quota.Store.
func (s *QuotaStore) Settle(ctx context.Context, chargeID, artifactURL string) (bool, error) {
	result, err := s.repo.pool.Exec(ctx, `
		UPDATE generation_attempts
		SET status = 'settled', artifact_url = $2, updated_at = $3
		WHERE id = $1 AND status = 'charged'
	`, chargeID, nullableString(artifactURL), touchTime())
	if err != nil {
		return false, fmt.Errorf("failed to settle attempt: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// FreeUsed implements quota.Store.
func (s *QuotaStore) FreeUsed(ctx context.Context, identity string, day time.Time) (int, error) {
	var used int
	err := s.repo.pool.QueryRow(ctx, `
		SELECT free_used FROM daily_usage WHERE identity = $1 AND usage_date = $2
	`, identity, day).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read daily usage: %w", err)
	}
	return used, nil
}

// PaidQuota implements quota.Store.
func (s *QuotaStore) PaidQuota(ctx context.Context, accountID string) (int, error) {
	var paid int
	err := s.repo.pool.QueryRow(ctx, `SELECT paid_quota FROM accounts WHERE id = $1`, accountID).Scan(&paid)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read paid quota: %w", err)
	}
	return paid, nil
}

// StaleCharges implements quota.Store.
func (s *QuotaStore) StaleCharges(ctx context.Context, before time.Time, limit int) ([]*model.GenerationAttempt, error) {
	rows, err := s.repo.pool.Query(ctx, `
		SELECT `+attemptColumns+`
		FROM generation_attempts
		WHERE status = 'charged' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale charges: %w", err)
	}
	defer rows.Close()

	var out []*model.GenerationAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempts: %w", err)
	}
	return out, nil
}

// GetAttempt retrieves a generation attempt by ID.
func (s *QuotaStore) GetAttempt(ctx context.Context, id string) (*model.GenerationAttempt, error) {
	a, err := scanAttempt(s.repo.pool.QueryRow(ctx, `
		SELECT `+attemptColumns+` FROM generation_attempts WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, quota.ErrChargeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return a, nil
}

const attemptColumns = `id, account_id, identity, usage_date, source, status, subject,
	artifact_url, failure_reason, created_at, updated_at`

func scanAttempt(row pgx.Row) (*model.GenerationAttempt, error) {
	var (
		a        model.GenerationAttempt
		source   string
		status   string
		artifact *string
		reason   *string
	)
	err := row.Scan(
		&a.ID,
		&a.AccountID,
		&a.Identity,
		&a.UsageDate,
		&source,
		&status,
		&a.Subject,
		&artifact,
		&reason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Source = model.ChargeSource(source)
	a.Status = model.AttemptStatus(status)
	a.ArtifactURL = stringOrEmpty(artifact)
	a.FailureReason = stringOrEmpty(reason)
	return &a, nil
}
