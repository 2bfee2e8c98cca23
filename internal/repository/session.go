package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chenjf2025/BookQuoteApp/internal/model"
)

// ErrSessionNotFound is returned when no live session matches.
var ErrSessionNotFound = errors.New("session not found")

// CreateSession inserts a new session.
func (r *Repository) CreateSession(ctx context.Context, s *model.Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, account_id, token_prefix, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.AccountID, s.TokenPrefix, s.TokenHash, s.ExpiresAt, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSessionsByPrefix returns unrevoked, unexpired sessions whose token
// prefix matches. Callers verify the full token hash.
func (r *Repository) GetSessionsByPrefix(ctx context.Context, prefix string) ([]*model.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, token_prefix, token_hash, expires_at, revoked_at, last_used_at, created_at
		FROM sessions
		WHERE token_prefix = $1 AND revoked_at IS NULL AND expires_at > NOW()
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to get sessions by prefix: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// TouchSession updates last_used_at.
// Should be called asynchronously after successful authentication.
func (r *Repository) TouchSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE sessions SET last_used_at = $2 WHERE id = $1`, id, touchTime())
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// RevokeSession marks a session revoked.
func (r *Repository) RevokeSession(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL
	`, id, touchTime())
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteExpiredSessions removes sessions expired before cutoff.
func (r *Repository) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*model.Session, error) {
	var s model.Session
	err := row.Scan(
		&s.ID,
		&s.AccountID,
		&s.TokenPrefix,
		&s.TokenHash,
		&s.ExpiresAt,
		&s.RevokedAt,
		&s.LastUsedAt,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
