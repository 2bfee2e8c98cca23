package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/chenjf2025/BookQuoteApp/internal/handler/dto"
	"github.com/chenjf2025/BookQuoteApp/internal/middleware"
	"github.com/chenjf2025/BookQuoteApp/internal/outcome"
	"github.com/chenjf2025/BookQuoteApp/internal/service"
)

// BookService is the ungated book pipeline.
type BookService interface {
	Quotes(ctx context.Context, title string) (*service.QuotesResult, error)
	Poster(ctx context.Context, in service.PosterInput) (*service.PosterResult, error)
	Mindmap(ctx context.Context, title string) (outcome.Outcome[string], error)
}

// BookHandler handles the public book endpoints.
type BookHandler struct {
	svc    BookService
	logger *slog.Logger
}

// NewBookHandler creates a new BookHandler.
func NewBookHandler(svc BookService, logger *slog.Logger) *BookHandler {
	return &BookHandler{
		svc:    svc,
		logger: logger,
	}
}

// GetQuotes handles POST /api/get_quotes.
func (h *BookHandler) GetQuotes(w http.ResponseWriter, r *http.Request) {
	var req dto.BookTitleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}
	title, err := middleware.NormalizeBookTitle(req.BookTitle)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_book_title", err.Error())
		return
	}

	result, err := h.svc.Quotes(r.Context(), title)
	if err != nil {
		h.internalError(w, r, "quotes", err)
		return
	}

	quotes := result.Quotes
	if quotes == nil {
		quotes = []string{}
	}
	writeJSON(w, http.StatusOK, dto.QuotesResponse{
		Quotes:   quotes,
		Message:  dto.MessageSuccess,
		Degraded: result.Degraded,
	})
}

// GeneratePoster handles POST /api/generate_poster.
func (h *BookHandler) GeneratePoster(w http.ResponseWriter, r *http.Request) {
	var req dto.PosterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}
	title, err := middleware.NormalizeBookTitle(req.BookTitle)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_book_title", err.Error())
		return
	}
	quotes, err := middleware.NormalizeQuotes(req.SelectedQuotes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_quotes", err.Error())
		return
	}

	result, err := h.svc.Poster(r.Context(), service.PosterInput{
		Title:         title,
		Quotes:        quotes,
		GenerateImage: req.WantsImage(),
	})
	if err != nil {
		h.internalError(w, r, "poster", err)
		return
	}

	h.logger.Info("poster_generated",
		"title", title,
		"poster_url", result.PosterURL,
		"degraded", result.Degraded,
	)

	writeJSON(w, http.StatusOK, dto.PosterResponse{
		PosterURL:   result.PosterURL,
		ImageURL:    result.ImageURL,
		CoreThought: result.CoreThought,
		Message:     dto.MessageSuccess,
		Degraded:    result.Degraded,
	})
}

// GenerateMindmap handles POST /api/generate_mindmap.
func (h *BookHandler) GenerateMindmap(w http.ResponseWriter, r *http.Request) {
	var req dto.BookTitleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}
	title, err := middleware.NormalizeBookTitle(req.BookTitle)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_book_title", err.Error())
		return
	}

	doc, err := h.svc.Mindmap(r.Context(), title)
	if err != nil {
		h.internalError(w, r, "mindmap", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MindmapResponse{
		PDFURL:   doc.Value,
		Message:  dto.MessageSuccess,
		Degraded: doc.Degraded,
	})
}

func (h *BookHandler) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Error("book_request_failed",
		"op", op,
		"request_id", middleware.GetRequestID(r.Context()),
		"error", err,
	)
	writeError(w, http.StatusInternalServerError, "internal_error", "An internal error occurred")
}
