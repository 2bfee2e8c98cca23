package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	ChargedFree  uint64
	ChargedPaid  uint64
	RefundedFree uint64
	RefundedPaid uint64
	Settled      uint64
	Denied       uint64

	GenerationSuccess       uint64
	GenerationFailed        uint64
	GenerationDenied        uint64
	GenerationDurationCount uint64
	GenerationDurationNs    int64

	FallbackSearch uint64
	FallbackLLM    uint64
	FallbackImage  uint64
	FallbackRender uint64
	FallbackPoster uint64

	SearchCacheHitLocal  uint64
	SearchCacheHitShared uint64
	SearchCacheMiss      uint64

	LedgerEventsPublished      uint64
	LedgerEventsDropped        uint64
	LedgerEventsProcessed      uint64
	LedgerEventsFailed         uint64
	LedgerEventsDeadLettered   uint64
	LedgerBatchCount           uint64
	LedgerBatchDurationTotalNs int64
	LedgerQueueDepth           int64
}

// InMemoryRecorder keeps counters in process memory; /metrics renders them.
type InMemoryRecorder struct {
	chargedFree  atomic.Uint64
	chargedPaid  atomic.Uint64
	refundedFree atomic.Uint64
	refundedPaid atomic.Uint64
	settled      atomic.Uint64
	denied       atomic.Uint64

	genSuccess       atomic.Uint64
	genFailed        atomic.Uint64
	genDenied        atomic.Uint64
	genDurationCount atomic.Uint64
	genDurationNs    atomic.Int64

	fallbackSearch atomic.Uint64
	fallbackLLM    atomic.Uint64
	fallbackImage  atomic.Uint64
	fallbackRender atomic.Uint64
	fallbackPoster atomic.Uint64

	cacheHitLocal  atomic.Uint64
	cacheHitShared atomic.Uint64
	cacheMiss      atomic.Uint64

	eventsPublished    atomic.Uint64
	eventsDropped      atomic.Uint64
	eventsProcessed    atomic.Uint64
	eventsFailed       atomic.Uint64
	eventsDeadLettered atomic.Uint64
	batchCount         atomic.Uint64
	batchDurationNs    atomic.Int64
	queueDepth         atomic.Int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		ChargedFree:  m.chargedFree.Load(),
		ChargedPaid:  m.chargedPaid.Load(),
		RefundedFree: m.refundedFree.Load(),
		RefundedPaid: m.refundedPaid.Load(),
		Settled:      m.settled.Load(),
		Denied:       m.denied.Load(),

		GenerationSuccess:       m.genSuccess.Load(),
		GenerationFailed:        m.genFailed.Load(),
		GenerationDenied:        m.genDenied.Load(),
		GenerationDurationCount: m.genDurationCount.Load(),
		GenerationDurationNs:    m.genDurationNs.Load(),

		FallbackSearch: m.fallbackSearch.Load(),
		FallbackLLM:    m.fallbackLLM.Load(),
		FallbackImage:  m.fallbackImage.Load(),
		FallbackRender: m.fallbackRender.Load(),
		FallbackPoster: m.fallbackPoster.Load(),

		SearchCacheHitLocal:  m.cacheHitLocal.Load(),
		SearchCacheHitShared: m.cacheHitShared.Load(),
		SearchCacheMiss:      m.cacheMiss.Load(),

		LedgerEventsPublished:      m.eventsPublished.Load(),
		LedgerEventsDropped:        m.eventsDropped.Load(),
		LedgerEventsProcessed:      m.eventsProcessed.Load(),
		LedgerEventsFailed:         m.eventsFailed.Load(),
		LedgerEventsDeadLettered:   m.eventsDeadLettered.Load(),
		LedgerBatchCount:           m.batchCount.Load(),
		LedgerBatchDurationTotalNs: m.batchDurationNs.Load(),
		LedgerQueueDepth:           m.queueDepth.Load(),
	}
}

// IncQuotaCharged counts a successful charge by source.
func (m *InMemoryRecorder) IncQuotaCharged(source string) {
	switch source {
	case SourceFreeDaily:
		m.chargedFree.Add(1)
	case SourcePaid:
		m.chargedPaid.Add(1)
	}
}

// IncQuotaRefunded counts a refund by source.
func (m *InMemoryRecorder) IncQuotaRefunded(source string) {
	switch source {
	case SourceFreeDaily:
		m.refundedFree.Add(1)
	case SourcePaid:
		m.refundedPaid.Add(1)
	}
}

// IncQuotaSettled counts a charge made permanent.
func (m *InMemoryRecorder) IncQuotaSettled() {
	m.settled.Add(1)
}

// IncQuotaDenied counts a rejected charge.
func (m *InMemoryRecorder) IncQuotaDenied() {
	m.denied.Add(1)
}

// ObserveGeneration records the outcome and latency of one gated request.
func (m *InMemoryRecorder) ObserveGeneration(status string, duration time.Duration) {
	switch status {
	case GenerationSuccess:
		m.genSuccess.Add(1)
	case GenerationFailed:
		m.genFailed.Add(1)
	case GenerationDenied:
		m.genDenied.Add(1)
	}
	m.genDurationCount.Add(1)
	m.genDurationNs.Add(duration.Nanoseconds())
}

// IncCollaboratorFallback counts a degraded collaborator result.
func (m *InMemoryRecorder) IncCollaboratorFallback(collaborator string) {
	switch collaborator {
	case CollaboratorSearch:
		m.fallbackSearch.Add(1)
	case CollaboratorLLM:
		m.fallbackLLM.Add(1)
	case CollaboratorImage:
		m.fallbackImage.Add(1)
	case CollaboratorRender:
		m.fallbackRender.Add(1)
	case CollaboratorPoster:
		m.fallbackPoster.Add(1)
	}
}

// IncSearchCache counts a search cache lookup result.
func (m *InMemoryRecorder) IncSearchCache(result string) {
	switch result {
	case CacheHitLocal:
		m.cacheHitLocal.Add(1)
	case CacheHitShared:
		m.cacheHitShared.Add(1)
	case CacheMiss:
		m.cacheMiss.Add(1)
	}
}

// IncLedgerEventPublished counts stream appends.
func (m *InMemoryRecorder) IncLedgerEventPublished(status string) {
	if status == "dropped" {
		m.eventsDropped.Add(1)
		return
	}
	m.eventsPublished.Add(1)
}

// IncLedgerEventProcessed counts consumer outcomes.
func (m *InMemoryRecorder) IncLedgerEventProcessed(status string) {
	switch status {
	case "success":
		m.eventsProcessed.Add(1)
	case "failed":
		m.eventsFailed.Add(1)
	case "dead_lettered":
		m.eventsDeadLettered.Add(1)
	}
}

// ObserveLedgerBatch records one persisted batch.
func (m *InMemoryRecorder) ObserveLedgerBatch(size int, duration time.Duration) {
	m.batchCount.Add(1)
	m.batchDurationNs.Add(duration.Nanoseconds())
}

// SetLedgerQueueDepth stores the consumer group backlog.
func (m *InMemoryRecorder) SetLedgerQueueDepth(depth int64) {
	m.queueDepth.Store(depth)
}
