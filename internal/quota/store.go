package quota

import (
	"context"
	"time"

	"github.com/chenjf2025/BookQuoteApp/internal/model"
)

// Store persists ledger counters and charge records.
//
// Every mutating method must be atomic with respect to concurrent callers:
// ChargeFree never lets free_used exceed cap, ChargePaid never lets the paid
// balance go negative, and Refund/Settle transition a charge out of
// "charged" at most once.
type Store interface {
	// ChargeFree increments free_used for (a.Identity, a.UsageDate) if it is
	// below dailyCap and records a. Returns false without mutation otherwise.
	ChargeFree(ctx context.Context, a *model.GenerationAttempt, dailyCap int) (bool, error)

	// ChargePaid decrements the paid balance of a.AccountID if positive and
	// records a. Returns false without mutation otherwise.
	ChargePaid(ctx context.Context, a *model.GenerationAttempt) (bool, error)

	// Refund moves a charged attempt to refunded and reverses its counter.
	// Returns false if the attempt was already refunded or settled.
	Refund(ctx context.Context, chargeID, reason string) (*model.GenerationAttempt, bool, error)

	// Settle moves a charged attempt to settled.
	Settle(ctx context.Context, chargeID, artifactURL string) (bool, error)

	// FreeUsed returns free_used for identity on day (0 when absent).
	FreeUsed(ctx context.Context, identity string, day time.Time) (int, error)

	// PaidQuota returns the paid balance of an account.
	PaidQuota(ctx context.Context, accountID string) (int, error)

	// StaleCharges lists attempts still "charged" that were created before
	// the given time, oldest first.
	StaleCharges(ctx context.Context, before time.Time, limit int) ([]*model.GenerationAttempt, error)
}
