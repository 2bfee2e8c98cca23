// Package render turns a markdown outline into a mind-map page with JPEG
// and PDF exports. When the tool chain fails the outline is saved as a
// plain-text fallback instead.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chenjf2025/BookQuoteApp/internal/metrics"
	"github.com/chenjf2025/BookQuoteApp/internal/outcome"
	"github.com/chenjf2025/BookQuoteApp/internal/storage"
)

// Fallback reasons.
const (
	ReasonWrite    = "write_markdown"
	ReasonConvert  = "convert"
	ReasonExport   = "export"
	ReasonDecorate = "decorate"
)

// Config configures a Renderer.
type Config struct {
	Store     *storage.FileStore
	Converter Converter
	Exporter  Exporter
	Now       func() time.Time
	Metrics   metrics.Recorder
	Logger    *slog.Logger
}

// Renderer runs the markdown to HTML, JPEG and PDF pipeline.
type Renderer struct {
	store     *storage.FileStore
	converter Converter
	exporter  Exporter
	now       func() time.Time
	metrics   metrics.Recorder
	logger    *slog.Logger
}

// New creates a Renderer.
func New(cfg Config) *Renderer {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Renderer{
		store:     cfg.Store,
		converter: cfg.Converter,
		exporter:  cfg.Exporter,
		now:       cfg.Now,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger.With("component", "render"),
	}
}

// Render produces the mind map for title and returns the page address.
// A tool-chain failure yields the fallback text address as a degraded
// outcome; the returned error is set only when even that cannot be written.
func (r *Renderer) Render(ctx context.Context, title, markdown string) (outcome.Outcome[string], error) {
	names := NamesFor(title, r.now().Unix())

	reason, err := r.render(ctx, names, markdown)
	if err == nil {
		return outcome.OK(storage.URL(names.HTML)), nil
	}

	r.metrics.IncCollaboratorFallback(metrics.CollaboratorRender)
	r.logger.Warn("render degraded", "title", title, "reason", reason, "error", err)

	if werr := r.store.WriteFile(names.Fallback, []byte(markdown)); werr != nil {
		return outcome.Outcome[string]{}, fmt.Errorf("write fallback after %s failure: %w", reason, werr)
	}
	return outcome.Fallback(storage.URL(names.Fallback), reason, err), nil
}

func (r *Renderer) render(ctx context.Context, names Names, markdown string) (string, error) {
	if err := r.store.WriteFile(names.Markdown, []byte(markdown)); err != nil {
		return ReasonWrite, err
	}

	mdPath, _ := r.store.Path(names.Markdown)
	tempPath, err := r.store.Path(names.TempHTML)
	if err != nil {
		return ReasonConvert, err
	}
	defer func() {
		if err := r.store.Remove(names.TempHTML); err != nil {
			r.logger.Warn("remove temp html failed", "name", names.TempHTML, "error", err)
		}
	}()

	if err := r.converter.Convert(ctx, mdPath, tempPath); err != nil {
		return ReasonConvert, err
	}

	jpgPath, _ := r.store.Path(names.JPG)
	pdfPath, _ := r.store.Path(names.PDF)
	if err := r.exporter.Export(ctx, tempPath, jpgPath, pdfPath); err != nil {
		return ReasonExport, err
	}

	page, err := r.store.ReadFile(names.TempHTML)
	if err != nil {
		return ReasonDecorate, err
	}
	if err := r.store.WriteFile(names.HTML, []byte(Decorate(string(page), names))); err != nil {
		return ReasonDecorate, err
	}
	return "", nil
}
