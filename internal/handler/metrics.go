package handler

import (
	"fmt"
	"net/http"

	"github.com/chenjf2025/BookQuoteApp/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "bookquote_quota_charged_total{source=\"free_daily\"} %d\n", snap.ChargedFree)
	writeMetric(w, "bookquote_quota_charged_total{source=\"paid\"} %d\n", snap.ChargedPaid)
	writeMetric(w, "bookquote_quota_refunded_total{source=\"free_daily\"} %d\n", snap.RefundedFree)
	writeMetric(w, "bookquote_quota_refunded_total{source=\"paid\"} %d\n", snap.RefundedPaid)
	writeMetric(w, "bookquote_quota_settled_total %d\n", snap.Settled)
	writeMetric(w, "bookquote_quota_denied_total %d\n", snap.Denied)

	writeMetric(w, "bookquote_generations_total{status=\"success\"} %d\n", snap.GenerationSuccess)
	writeMetric(w, "bookquote_generations_total{status=\"failed\"} %d\n", snap.GenerationFailed)
	writeMetric(w, "bookquote_generations_total{status=\"denied\"} %d\n", snap.GenerationDenied)
	writeMetric(w, "bookquote_generation_duration_seconds_count %d\n", snap.GenerationDurationCount)
	writeMetric(w, "bookquote_generation_duration_seconds_sum %.6f\n", float64(snap.GenerationDurationNs)/1e9)

	writeMetric(w, "bookquote_collaborator_fallbacks_total{collaborator=\"search\"} %d\n", snap.FallbackSearch)
	writeMetric(w, "bookquote_collaborator_fallbacks_total{collaborator=\"llm\"} %d\n", snap.FallbackLLM)
	writeMetric(w, "bookquote_collaborator_fallbacks_total{collaborator=\"image\"} %d\n", snap.FallbackImage)
	writeMetric(w, "bookquote_collaborator_fallbacks_total{collaborator=\"render\"} %d\n", snap.FallbackRender)
	writeMetric(w, "bookquote_collaborator_fallbacks_total{collaborator=\"poster\"} %d\n", snap.FallbackPoster)

	writeMetric(w, "bookquote_search_cache_total{result=\"hit_local\"} %d\n", snap.SearchCacheHitLocal)
	writeMetric(w, "bookquote_search_cache_total{result=\"hit_shared\"} %d\n", snap.SearchCacheHitShared)
	writeMetric(w, "bookquote_search_cache_total{result=\"miss\"} %d\n", snap.SearchCacheMiss)

	writeMetric(w, "bookquote_ledger_events_published_total{status=\"success\"} %d\n", snap.LedgerEventsPublished)
	writeMetric(w, "bookquote_ledger_events_published_total{status=\"dropped\"} %d\n", snap.LedgerEventsDropped)
	writeMetric(w, "bookquote_ledger_events_processed_total{status=\"success\"} %d\n", snap.LedgerEventsProcessed)
	writeMetric(w, "bookquote_ledger_events_processed_total{status=\"failed\"} %d\n", snap.LedgerEventsFailed)
	writeMetric(w, "bookquote_ledger_events_processed_total{status=\"dead_lettered\"} %d\n", snap.LedgerEventsDeadLettered)
	writeMetric(w, "bookquote_ledger_batches_total %d\n", snap.LedgerBatchCount)
	writeMetric(w, "bookquote_ledger_batch_duration_seconds_sum %.6f\n", float64(snap.LedgerBatchDurationTotalNs)/1e9)
	writeMetric(w, "bookquote_ledger_queue_depth %d\n", snap.LedgerQueueDepth)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
