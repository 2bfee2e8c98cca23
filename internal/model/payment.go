package model

import "time"

// PaymentTransaction is an append-only record of a quota top-up.
type PaymentTransaction struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"account_id"`
	AmountRMB  int       `json:"amount_rmb"`
	QuotaAdded int       `json:"quota_added"`
	CreatedAt  time.Time `json:"created_at"`
}

// PaymentPackage is the single purchasable bundle.
type PaymentPackage struct {
	AmountRMB int
	Quota     int
}
