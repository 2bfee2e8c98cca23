// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Label values shared by recorders and callers.
const (
	SourceFreeDaily = "free_daily"
	SourcePaid      = "paid"

	GenerationSuccess = "success"
	GenerationFailed  = "failed"
	GenerationDenied  = "denied"

	CollaboratorSearch = "search"
	CollaboratorLLM    = "llm"
	CollaboratorImage  = "image"
	CollaboratorRender = "render"
	CollaboratorPoster = "poster"

	CacheHitLocal  = "hit_local"
	CacheHitShared = "hit_shared"
	CacheMiss      = "miss"
)

// Recorder captures metric events for the application.
type Recorder interface {
	// Quota ledger
	IncQuotaCharged(source string)
	IncQuotaRefunded(source string)
	IncQuotaSettled()
	IncQuotaDenied()

	// Gated generation workflow
	ObserveGeneration(status string, duration time.Duration)

	// Best-effort collaborators
	IncCollaboratorFallback(collaborator string)
	IncSearchCache(result string)

	// Ledger audit pipeline
	IncLedgerEventPublished(status string) // status: "success" or "dropped"
	IncLedgerEventProcessed(status string) // status: "success", "failed", "dead_lettered"
	ObserveLedgerBatch(size int, duration time.Duration)
	SetLedgerQueueDepth(depth int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
