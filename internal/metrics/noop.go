package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncQuotaCharged(string)                  {}
func (n *NoopRecorder) IncQuotaRefunded(string)                 {}
func (n *NoopRecorder) IncQuotaSettled()                        {}
func (n *NoopRecorder) IncQuotaDenied()                         {}
func (n *NoopRecorder) ObserveGeneration(string, time.Duration) {}
func (n *NoopRecorder) IncCollaboratorFallback(string)          {}
func (n *NoopRecorder) IncSearchCache(string)                   {}
func (n *NoopRecorder) IncLedgerEventPublished(string)          {}
func (n *NoopRecorder) IncLedgerEventProcessed(string)          {}
func (n *NoopRecorder) ObserveLedgerBatch(int, time.Duration)   {}
func (n *NoopRecorder) SetLedgerQueueDepth(int64)               {}
