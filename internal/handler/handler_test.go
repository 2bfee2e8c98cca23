package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chenjf2025/BookQuoteApp/internal/handler/dto"
	"github.com/chenjf2025/BookQuoteApp/internal/metrics"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) dto.ErrorBody {
	t.Helper()
	var resp dto.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	return resp.Error
}

func TestHandler_Root(t *testing.T) {
	h := New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	h.Root(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var response dto.StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != "ok" || response.Message != "Book Quote Generator API is running" {
		t.Errorf("unexpected response: %+v", response)
	}
}

func TestHandler_ErrorEnvelopes(t *testing.T) {
	h := New()

	tests := []struct {
		name     string
		serve    http.HandlerFunc
		wantCode int
		wantErr  string
	}{
		{"not found", h.NotFound, http.StatusNotFound, "not_found"},
		{"method not allowed", h.MethodNotAllowed, http.StatusMethodNotAllowed, "method_not_allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.serve(rec, httptest.NewRequest(http.MethodPost, "/nowhere", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if got := decodeError(t, rec); got.Code != tt.wantErr {
				t.Errorf("code = %q, want %q", got.Code, tt.wantErr)
			}
		})
	}
}

func TestMetricsHandler(t *testing.T) {
	rec := metrics.NewInMemory()
	rec.IncQuotaCharged(metrics.SourceFreeDaily)
	rec.IncQuotaCharged(metrics.SourcePaid)
	rec.IncQuotaRefunded(metrics.SourcePaid)
	rec.IncCollaboratorFallback(metrics.CollaboratorSearch)
	rec.SetLedgerQueueDepth(7)

	h := NewMetricsHandler(rec)
	w := httptest.NewRecorder()
	h.Metrics(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, line := range []string{
		`bookquote_quota_charged_total{source="free_daily"} 1`,
		`bookquote_quota_charged_total{source="paid"} 1`,
		`bookquote_quota_refunded_total{source="paid"} 1`,
		`bookquote_collaborator_fallbacks_total{collaborator="search"} 1`,
		`bookquote_ledger_queue_depth 7`,
	} {
		if !strings.Contains(body, line+"\n") {
			t.Errorf("metrics output missing %q", line)
		}
	}
}

func TestMetricsHandler_NoSnapshotter(t *testing.T) {
	h := NewMetricsHandler(nil)
	w := httptest.NewRecorder()
	h.Metrics(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}
