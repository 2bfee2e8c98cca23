// Package outcome models results of best-effort collaborators that never
// fail: they either produce a real value or a locally computed fallback.
package outcome

// Outcome carries a value and whether it is a fallback.
type Outcome[T any] struct {
	Value    T
	Degraded bool
	// Reason is a short machine-readable code such as "http_request" or
	// "not_configured". Empty when not degraded.
	Reason string
	// Err is the underlying failure, kept for logging only.
	Err error
}

// OK wraps a real value.
func OK[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

// Fallback wraps a substitute value produced because of err.
func Fallback[T any](v T, reason string, err error) Outcome[T] {
	return Outcome[T]{Value: v, Degraded: true, Reason: reason, Err: err}
}

// Get returns the value regardless of degradation.
func (o Outcome[T]) Get() T {
	return o.Value
}
