package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/chenjf2025/BookQuoteApp/internal/model"
)

// LedgerEventRepository persists the quota audit trail.
type LedgerEventRepository struct {
	repo *Repository
}

// NewLedgerEventRepository creates a new LedgerEventRepository.
func NewLedgerEventRepository(repo *Repository) *LedgerEventRepository {
	return &LedgerEventRepository{repo: repo}
}

// BulkInsert inserts events with idempotency via ON CONFLICT DO NOTHING on
// the stream message ID.
func (r *LedgerEventRepository) BulkInsert(ctx context.Context, events []*model.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO ledger_events (
			id, event_id, kind, charge_id, account_id, identity, source, delta, detail, occurred_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`

	for _, e := range events {
		batch.Queue(query,
			e.ID,
			e.EventID,
			string(e.Kind),
			nullableString(e.ChargeID),
			nullableString(e.AccountID),
			nullableString(e.Identity),
			nullableString(string(e.Source)),
			e.Delta,
			nullableString(e.Detail),
			e.OccurredAt,
		)
	}

	results := r.repo.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(events); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert ledger event %d: %w", i, err)
		}
	}

	return nil
}

// ListByCharge returns the audit trail of one charge in order.
func (r *LedgerEventRepository) ListByCharge(ctx context.Context, chargeID string) ([]*model.LedgerEvent, error) {
	rows, err := r.repo.pool.Query(ctx, `
		SELECT id, event_id, kind, charge_id, account_id, identity, source, delta, detail, occurred_at, created_at
		FROM ledger_events
		WHERE charge_id = $1
		ORDER BY occurred_at, event_id
	`, chargeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger events: %w", err)
	}
	defer rows.Close()

	var events []*model.LedgerEvent
	for rows.Next() {
		var e model.LedgerEvent
		var kind string
		var charge, account, identity, source, detail *string
		if err := rows.Scan(&e.ID, &e.EventID, &kind, &charge, &account, &identity, &source, &e.Delta, &detail, &e.OccurredAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger event: %w", err)
		}
		e.Kind = model.LedgerEventKind(kind)
		e.ChargeID = stringOrEmpty(charge)
		e.AccountID = stringOrEmpty(account)
		e.Identity = stringOrEmpty(identity)
		e.Source = model.ChargeSource(stringOrEmpty(source))
		e.Detail = stringOrEmpty(detail)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger events: %w", err)
	}
	return events, nil
}
