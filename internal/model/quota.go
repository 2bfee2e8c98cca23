package model

import "time"

// ChargeSource identifies which quota pool paid for a generation.
type ChargeSource string

const (
	SourceFreeDaily ChargeSource = "free_daily"
	SourcePaid      ChargeSource = "paid"
)

// IsValid reports whether s is a known source.
func (s ChargeSource) IsValid() bool {
	return s == SourceFreeDaily || s == SourcePaid
}

// Label is the value reported to mini-program clients in quota_used.
func (s ChargeSource) Label() string {
	switch s {
	case SourceFreeDaily:
		return "free_daily_quota"
	case SourcePaid:
		return "paid_quota"
	default:
		return ""
	}
}

// AttemptStatus is the ledger state of a charged generation attempt.
//
//	charged -> refunded   (generation failed)
//	charged -> settled    (artifact delivered)
type AttemptStatus string

const (
	AttemptCharged  AttemptStatus = "charged"
	AttemptRefunded AttemptStatus = "refunded"
	AttemptSettled  AttemptStatus = "settled"
)

// IsTerminal reports whether no further ledger effect can follow.
func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptRefunded || s == AttemptSettled
}

// GenerationAttempt is the durable record of one quota charge. Its ID is the
// idempotency key for refund and settle.
type GenerationAttempt struct {
	ID            string        `json:"id"` // ULID
	AccountID     string        `json:"account_id"`
	Identity      string        `json:"identity"`
	UsageDate     time.Time     `json:"usage_date"` // date only, in the quota location
	Source        ChargeSource  `json:"source"`
	Status        AttemptStatus `json:"status"`
	Subject       string        `json:"subject"`
	ArtifactURL   string        `json:"artifact_url,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// DailyUsage is the free-tier counter for one identity on one calendar date.
type DailyUsage struct {
	Identity  string    `json:"identity"`
	UsageDate time.Time `json:"usage_date"`
	FreeUsed  int       `json:"free_used"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UsageDay truncates t to its calendar date in loc.
func UsageDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
