package quota

import "errors"

var (
	// ErrQuotaExhausted means neither the daily free allowance nor the paid
	// balance can cover another generation. It is a normal, user-visible
	// denial and must not be retried without a top-up.
	ErrQuotaExhausted = errors.New("quota: daily free allowance and paid quota exhausted")

	// ErrChargeNotFound is returned by stores when a charge ID is unknown.
	ErrChargeNotFound = errors.New("quota: charge not found")

	// ErrInvalidCharge rejects a charge request without identity or account.
	ErrInvalidCharge = errors.New("quota: identity and account are required")
)

// IsQuotaError reports whether err is a quota denial.
func IsQuotaError(err error) bool {
	return errors.Is(err, ErrQuotaExhausted)
}
