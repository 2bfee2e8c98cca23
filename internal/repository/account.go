package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chenjf2025/BookQuoteApp/internal/model"
)

// Common errors for account repository operations.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrUsernameExists  = errors.New("username already exists")
)

// CreateAccount inserts a new account.
func (r *Repository) CreateAccount(ctx context.Context, account *model.Account) error {
	query := `
		INSERT INTO accounts (id, username, password_hash, paid_quota, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		account.ID,
		account.Username,
		account.PasswordHash,
		account.PaidQuota,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetAccountByID retrieves an account by ID.
func (r *Repository) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	query := `
		SELECT id, username, password_hash, paid_quota, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

// GetAccountByUsername retrieves an account by username.
func (r *Repository) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	query := `
		SELECT id, username, password_hash, paid_quota, created_at, updated_at
		FROM accounts
		WHERE username = $1
	`
	return scanAccount(r.pool.QueryRow(ctx, query, username))
}

// CreditPayment records a payment and adds its quota to the account balance
// in one transaction. Returns the new balance.
func (r *Repository) CreditPayment(ctx context.Context, payment *model.PaymentTransaction) (int, error) {
	var newQuota int

	err := r.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE accounts
			SET paid_quota = paid_quota + $2, updated_at = $3
			WHERE id = $1
			RETURNING paid_quota
		`, payment.AccountID, payment.QuotaAdded, payment.CreatedAt).Scan(&newQuota)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("failed to credit account: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO payment_transactions (id, account_id, amount_rmb, quota_added, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, payment.ID, payment.AccountID, payment.AmountRMB, payment.QuotaAdded, payment.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return newQuota, nil
}

// ListPayments returns the most recent payments of an account.
func (r *Repository) ListPayments(ctx context.Context, accountID string, limit int) ([]*model.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, amount_rmb, quota_added, created_at
		FROM payment_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*model.PaymentTransaction
	for rows.Next() {
		var p model.PaymentTransaction
		if err := rows.Scan(&p.ID, &p.AccountID, &p.AmountRMB, &p.QuotaAdded, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return payments, nil
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.PasswordHash,
		&a.PaidQuota,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return &a, nil
}

// touchTime is shared by update statements that need "now" in tests.
var touchTime = func() time.Time { return time.Now().UTC() }
