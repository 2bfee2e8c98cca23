// Package poster composes square quote posters: the selected quotes
// centred over a darkened illustration, or over a plain paper tone when no
// illustration is available.
package poster

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"time"

	"github.com/fogleman/gg"

	"github.com/chenjf2025/BookQuoteApp/internal/metrics"
	"github.com/chenjf2025/BookQuoteApp/internal/outcome"
	"github.com/chenjf2025/BookQuoteApp/internal/storage"
)

// ReasonBackground marks a poster drawn on the plain background because
// the illustration could not be fetched.
const ReasonBackground = "background"

const (
	jpegQuality    = 95
	overlayOpacity = 0.4
)

var (
	paperColor        = color.RGBA{250, 240, 230, 255}
	inkOnPaper        = color.RGBA{60, 50, 50, 255}
	inkOnIllustration = color.White
)

// Request describes one poster.
type Request struct {
	Title         string
	Quotes        []string
	BackgroundURL string // optional
}

// Config configures a Compositor.
type Config struct {
	Store      *storage.FileStore
	Fonts      *Fonts // nil uses the built-in bitmap face
	Downloader *Downloader
	Now        func() time.Time
	Metrics    metrics.Recorder
	Logger     *slog.Logger
}

// Compositor draws posters and stores them as JPEG files.
type Compositor struct {
	store      *storage.FileStore
	fonts      *Fonts
	downloader *Downloader
	now        func() time.Time
	metrics    metrics.Recorder
	logger     *slog.Logger
}

// New creates a Compositor.
func New(cfg Config) *Compositor {
	if cfg.Downloader == nil {
		cfg.Downloader = NewDownloader(nil)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Compositor{
		store:      cfg.Store,
		fonts:      cfg.Fonts,
		downloader: cfg.Downloader,
		now:        cfg.Now,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.With("component", "poster"),
	}
}

// FileName returns the artifact name of a poster.
func FileName(title string, unix int64) string {
	return fmt.Sprintf("poster_%s_%d.jpg", storage.SafeName(title), unix)
}

// Compose draws and stores the poster, returning its address. A background
// that cannot be fetched degrades to the plain layout; the error is set only
// when the poster cannot be written.
func (c *Compositor) Compose(ctx context.Context, req Request) (outcome.Outcome[string], error) {
	var bg image.Image
	var bgErr error
	if req.BackgroundURL != "" {
		bg, bgErr = c.downloader.Fetch(ctx, req.BackgroundURL)
		if bgErr != nil {
			c.metrics.IncCollaboratorFallback(metrics.CollaboratorPoster)
			c.logger.Warn("background unavailable, using plain layout", "title", req.Title, "error", bgErr)
		}
	}

	img := c.Draw(req.Title, req.Quotes, bg)

	name := FileName(req.Title, c.now().Unix())
	w, err := c.store.Create(name)
	if err != nil {
		return outcome.Outcome[string]{}, err
	}
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		w.Close()
		_ = c.store.Remove(name)
		return outcome.Outcome[string]{}, fmt.Errorf("encode poster: %w", err)
	}
	if err := w.Close(); err != nil {
		return outcome.Outcome[string]{}, fmt.Errorf("close poster: %w", err)
	}

	if bgErr != nil {
		return outcome.Fallback(storage.URL(name), ReasonBackground, bgErr), nil
	}
	return outcome.OK(storage.URL(name)), nil
}

// Draw renders the poster in memory. bg may be nil.
func (c *Compositor) Draw(title string, quotes []string, bg image.Image) image.Image {
	dc := gg.NewContext(Size, Size)

	var ink color.Color
	if bg != nil {
		dc.DrawImage(Cover(bg, Size), 0, 0)
		dc.SetRGBA(0, 0, 0, overlayOpacity)
		dc.DrawRectangle(0, 0, Size, Size)
		dc.Fill()
		ink = inkOnIllustration
	} else {
		dc.SetColor(paperColor)
		dc.Clear()
		ink = inkOnPaper
	}
	dc.SetColor(ink)

	m := MetricsFor(quotes)

	quoteFace := c.fonts.Face(m.QuoteSize)
	defer quoteFace.Close()
	dc.SetFontFace(quoteFace)
	for _, line := range Place(quotes, m, dc.FontHeight()) {
		dc.DrawStringAnchored(line.Text, Size/2, line.Y, 0.5, 1)
	}

	signatureFace := c.fonts.Face(m.SignatureSize)
	defer signatureFace.Close()
	dc.SetFontFace(signatureFace)
	dc.DrawStringAnchored(Signature(title), Size/2, Size*signatureYScale, 0.5, 1)

	return dc.Image()
}
