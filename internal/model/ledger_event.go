package model

import "time"

// LedgerEventKind enumerates balance-affecting events.
type LedgerEventKind string

const (
	LedgerCharged  LedgerEventKind = "charged"
	LedgerRefunded LedgerEventKind = "refunded"
	LedgerSettled  LedgerEventKind = "settled"
	LedgerDenied   LedgerEventKind = "denied"
	LedgerPayment  LedgerEventKind = "payment"
)

// ValidLedgerEventKinds lists every accepted kind.
var ValidLedgerEventKinds = []LedgerEventKind{
	LedgerCharged, LedgerRefunded, LedgerSettled, LedgerDenied, LedgerPayment,
}

// LedgerEvent is one row of the quota audit trail.
type LedgerEvent struct {
	ID      string `json:"id"`       // ULID
	EventID string `json:"event_id"` // Redis stream ID, idempotency key

	Kind      LedgerEventKind `json:"kind"`
	ChargeID  string          `json:"charge_id,omitempty"`
	AccountID string          `json:"account_id,omitempty"`
	Identity  string          `json:"identity,omitempty"`
	Source    ChargeSource    `json:"source,omitempty"`
	Delta     int             `json:"delta"` // quota units, signed from the user's view
	Detail    string          `json:"detail,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}
