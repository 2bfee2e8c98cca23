package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/chenjf2025/BookQuoteApp/internal/storage"
)

// artifactContentTypes is set explicitly so serving does not depend on the
// host's MIME registry.
var artifactContentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".md":   "text/markdown; charset=utf-8",
	".txt":  "text/plain; charset=utf-8",
}

// artifactCSP lets the rendered mind-map pages load the markmap runtime.
const artifactCSP = "default-src 'self'; " +
	"script-src 'self' 'unsafe-inline' https://cdn.jsdelivr.net; " +
	"style-src 'self' 'unsafe-inline' https://cdn.jsdelivr.net; " +
	"img-src 'self' data:; font-src 'self' data: https://cdn.jsdelivr.net; " +
	"frame-ancestors 'none'"

// StaticHandler serves generated artifacts.
type StaticHandler struct {
	store  *storage.FileStore
	logger *slog.Logger
}

// NewStaticHandler creates a new StaticHandler.
func NewStaticHandler(store *storage.FileStore, logger *slog.Logger) *StaticHandler {
	return &StaticHandler{
		store:  store,
		logger: logger,
	}
}

// Serve handles GET /static/{filename}.
func (h *StaticHandler) Serve(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	if !storage.ValidName(name) {
		writeError(w, http.StatusNotFound, "not_found", "File not found")
		return
	}

	f, info, err := h.store.Open(name)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrInvalidName) {
			h.logger.Error("static_open_failed", "name", name, "error", err)
		}
		writeError(w, http.StatusNotFound, "not_found", "File not found")
		return
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := artifactContentTypes[ext]; ok {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	if ext == ".html" {
		w.Header().Set("Content-Security-Policy", artifactCSP)
	}
	w.Header().Set("Cross-Origin-Resource-Policy", "cross-origin")
	w.Header().Set("Cache-Control", "public, max-age=3600")

	http.ServeContent(w, r, name, info.ModTime(), f)
}
