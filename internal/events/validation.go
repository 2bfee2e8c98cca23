package events

import (
	"fmt"
	"slices"

	"github.com/chenjf2025/BookQuoteApp/internal/model"
)

const (
	maxIdentityLength = 64
	maxDetailLength   = 500
)

// ValidatePayload rejects payloads that cannot be stored as a ledger event.
func ValidatePayload(p Payload) error {
	kind := model.LedgerEventKind(p.Kind)
	if !slices.Contains(model.ValidLedgerEventKinds, kind) {
		return fmt.Errorf("unknown kind %q", p.Kind)
	}
	if p.OccurredAt <= 0 {
		return fmt.Errorf("occurred_at must be set")
	}
	if p.Source != "" && !model.ChargeSource(p.Source).IsValid() {
		return fmt.Errorf("unknown source %q", p.Source)
	}
	if len(p.Identity) > maxIdentityLength {
		return fmt.Errorf("identity too long")
	}
	if len(p.Detail) > maxDetailLength {
		return fmt.Errorf("detail too long")
	}

	switch kind {
	case model.LedgerCharged, model.LedgerRefunded, model.LedgerSettled:
		if p.ChargeID == "" {
			return fmt.Errorf("charge_id is required for %s", kind)
		}
		if p.Source == "" {
			return fmt.Errorf("source is required for %s", kind)
		}
	case model.LedgerPayment:
		if p.AccountID == "" {
			return fmt.Errorf("account_id is required for payment")
		}
		if p.Delta <= 0 {
			return fmt.Errorf("payment delta must be positive")
		}
	case model.LedgerDenied:
		if p.Identity == "" && p.AccountID == "" {
			return fmt.Errorf("identity or account_id is required for denied")
		}
	}
	return nil
}
