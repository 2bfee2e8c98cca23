package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/chenjf2025/BookQuoteApp/internal/model"
	"github.com/chenjf2025/BookQuoteApp/internal/outcome"
	"github.com/chenjf2025/BookQuoteApp/internal/poster"
)

// PlainLayoutThought is reported as the core thought of posters drawn
// without an illustration.
const PlainLayoutThought = "使用纯色纯文字排版。"

// Searcher looks up background text about a book.
type Searcher interface {
	Lookup(ctx context.Context, title string) outcome.Outcome[string]
}

// Writer is the language model collaborator.
type Writer interface {
	ExtractQuotes(ctx context.Context, title, bookContext string) outcome.Outcome[[]string]
	ComposeCoreThought(ctx context.Context, title, bookContext string) outcome.Outcome[string]
	ComposeOutline(ctx context.Context, title, bookContext string) outcome.Outcome[string]
}

// Illustrator generates an image for a prompt and returns its URL.
type Illustrator interface {
	Generate(ctx context.Context, prompt string) outcome.Outcome[string]
}

// Composer draws posters.
type Composer interface {
	Compose(ctx context.Context, req poster.Request) (outcome.Outcome[string], error)
}

// Renderer turns an outline into a mind-map document.
type Renderer interface {
	Render(ctx context.Context, title, markdown string) (outcome.Outcome[string], error)
}

// PosterHistory records generated posters.
type PosterHistory interface {
	CreatePoster(ctx context.Context, p *model.Poster) error
}

// BookConfig configures a BookService.
type BookConfig struct {
	Search      Searcher
	Writer      Writer
	Illustrator Illustrator
	Composer    Composer
	Renderer    Renderer
	History     PosterHistory // optional
	Now         func() time.Time
	Logger      *slog.Logger
}

// BookService runs the public generation pipelines. None of them touch
// quota.
type BookService struct {
	search      Searcher
	writer      Writer
	illustrator Illustrator
	composer    Composer
	renderer    Renderer
	history     PosterHistory
	now         func() time.Time
	logger      *slog.Logger
}

// NewBookService creates a BookService.
func NewBookService(cfg BookConfig) *BookService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &BookService{
		search:      cfg.Search,
		writer:      cfg.Writer,
		illustrator: cfg.Illustrator,
		composer:    cfg.Composer,
		renderer:    cfg.Renderer,
		history:     cfg.History,
		now:         cfg.Now,
		logger:      cfg.Logger.With("component", "book"),
	}
}

// QuotesResult is the output of Quotes.
type QuotesResult struct {
	Quotes   []string
	Degraded bool
}

// Quotes searches for the book and extracts shareable quotes.
func (s *BookService) Quotes(ctx context.Context, title string) (*QuotesResult, error) {
	bookContext := s.search.Lookup(ctx, title)
	quotes := s.writer.ExtractQuotes(ctx, title, bookContext.Value)
	return &QuotesResult{
		Quotes:   quotes.Value,
		Degraded: bookContext.Degraded || quotes.Degraded,
	}, nil
}

// PosterInput describes a poster request.
type PosterInput struct {
	Title         string
	Quotes        []string
	GenerateImage bool
}

// PosterResult is the output of Poster.
type PosterResult struct {
	PosterURL   string
	ImageURL    string
	CoreThought string
	Degraded    bool
}

// Poster composes a quote poster. With GenerateImage the book's core
// thought is illustrated and used as the background.
func (s *BookService) Poster(ctx context.Context, in PosterInput) (*PosterResult, error) {
	res := &PosterResult{CoreThought: PlainLayoutThought}
	background := ""

	if in.GenerateImage {
		bookContext := s.search.Lookup(ctx, in.Title)
		thought := s.writer.ComposeCoreThought(ctx, in.Title, bookContext.Value)
		image := s.illustrator.Generate(ctx, thought.Value)

		res.CoreThought = thought.Value
		res.ImageURL = image.Value
		res.Degraded = bookContext.Degraded || thought.Degraded || image.Degraded
		if !image.Degraded {
			background = image.Value
		}
	}

	composed, err := s.composer.Compose(ctx, poster.Request{
		Title:         in.Title,
		Quotes:        in.Quotes,
		BackgroundURL: background,
	})
	if err != nil {
		return nil, fmt.Errorf("compose poster: %w", err)
	}
	res.PosterURL = composed.Value
	res.Degraded = res.Degraded || composed.Degraded

	if s.history != nil {
		p := &model.Poster{
			ID:          ulid.Make().String(),
			BookTitle:   in.Title,
			Quotes:      in.Quotes,
			PosterURL:   res.PosterURL,
			ImageURL:    res.ImageURL,
			CoreThought: res.CoreThought,
			CreatedAt:   s.now(),
		}
		if err := s.history.CreatePoster(ctx, p); err != nil {
			s.logger.Warn("failed to record poster", "title", in.Title, "error", err)
		}
	}
	return res, nil
}

// Mindmap builds the outline and renders it, without quota.
func (s *BookService) Mindmap(ctx context.Context, title string) (outcome.Outcome[string], error) {
	bookContext := s.search.Lookup(ctx, title)
	outline := s.writer.ComposeOutline(ctx, title, bookContext.Value)

	doc, err := s.renderer.Render(ctx, title, outline.Value)
	if err != nil {
		return outcome.Outcome[string]{}, fmt.Errorf("render mind map: %w", err)
	}
	if outline.Degraded && !doc.Degraded {
		return outcome.Fallback(doc.Value, outline.Reason, outline.Err), nil
	}
	return doc, nil
}

// MindmapGenerator adapts the mind-map pipeline to the quota-gated
// workflow. In strict mode a degraded outline or a fallback document counts
// as a failed generation.
type MindmapGenerator struct {
	Books  *BookService
	Strict bool
}

// Generate implements Generator.
func (g MindmapGenerator) Generate(ctx context.Context, title string) (string, error) {
	doc, err := g.Books.Mindmap(ctx, title)
	if err != nil {
		return "", err
	}
	if g.Strict && doc.Degraded {
		return "", fmt.Errorf("%w: %s", ErrDegradedArtifact, doc.Reason)
	}
	return doc.Value, nil
}
