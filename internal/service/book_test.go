package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chenjf2025/BookQuoteApp/internal/model"
	"github.com/chenjf2025/BookQuoteApp/internal/outcome"
	"github.com/chenjf2025/BookQuoteApp/internal/poster"
)

type fakeSearch struct{ degraded bool }

func (f fakeSearch) Lookup(_ context.Context, title string) outcome.Outcome[string] {
	if f.degraded {
		return outcome.Fallback("no context for "+title, "http_request", errors.New("offline"))
	}
	return outcome.OK("context for " + title)
}

type fakeWriter struct {
	mu          sync.Mutex
	seenContext string
	outlineBad  bool
}

func (f *fakeWriter) ExtractQuotes(_ context.Context, title, bookContext string) outcome.Outcome[[]string] {
	f.mu.Lock()
	f.seenContext = bookContext
	f.mu.Unlock()
	return outcome.OK([]string{title + " q1", title + " q2"})
}

func (f *fakeWriter) ComposeCoreThought(_ context.Context, title, _ string) outcome.Outcome[string] {
	return outcome.OK("a lighthouse over " + title)
}

func (f *fakeWriter) ComposeOutline(_ context.Context, title, _ string) outcome.Outcome[string] {
	if f.outlineBad {
		return outcome.Fallback("# "+title, "request", errors.New("llm down"))
	}
	return outcome.OK("# " + title + "\n- idea")
}

type fakeIllustrator struct{ degraded bool }

func (f fakeIllustrator) Generate(_ context.Context, prompt string) outcome.Outcome[string] {
	if f.degraded {
		return outcome.Fallback("https://placeholder.invalid/x.png", "request", errors.New("quota"))
	}
	return outcome.OK("https://img.example/" + prompt)
}

type fakeComposer struct {
	mu   sync.Mutex
	last poster.Request
	err  error
}

func (f *fakeComposer) Compose(_ context.Context, req poster.Request) (outcome.Outcome[string], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = req
	if f.err != nil {
		return outcome.Outcome[string]{}, f.err
	}
	return outcome.OK("/static/poster_" + req.Title + "_1.jpg"), nil
}

type fakeRender struct {
	degraded bool
	err      error
	markdown string
}

func (f *fakeRender) Render(_ context.Context, title, markdown string) (outcome.Outcome[string], error) {
	f.markdown = markdown
	if f.err != nil {
		return outcome.Outcome[string]{}, f.err
	}
	if f.degraded {
		return outcome.Fallback("/static/mindmap_"+title+"_fallback.txt", "convert", errors.New("npx missing")), nil
	}
	return outcome.OK("/static/mindmap_" + title + "_1.html"), nil
}

type fakeHistory struct {
	posters []*model.Poster
}

func (f *fakeHistory) CreatePoster(_ context.Context, p *model.Poster) error {
	f.posters = append(f.posters, p)
	return nil
}

type fakeBook struct {
	search      fakeSearch
	writer      *fakeWriter
	illustrator fakeIllustrator
	composer    *fakeComposer
	render      *fakeRender
	history     *fakeHistory
}

func newFakeBook() *fakeBook {
	return &fakeBook{
		writer:   &fakeWriter{},
		composer: &fakeComposer{},
		render:   &fakeRender{},
		history:  &fakeHistory{},
	}
}

func (f *fakeBook) service() *BookService {
	return NewBookService(BookConfig{
		Search:      f.search,
		Writer:      f.writer,
		Illustrator: f.illustrator,
		Composer:    f.composer,
		Renderer:    f.render,
		History:     f.history,
		Logger:      discardLogger(),
	})
}

func TestBookService_Quotes(t *testing.T) {
	t.Parallel()

	fb := newFakeBook()
	res, err := fb.service().Quotes(context.Background(), "Dune")
	if err != nil {
		t.Fatalf("Quotes: %v", err)
	}
	if diff := cmp.Diff([]string{"Dune q1", "Dune q2"}, res.Quotes); diff != "" {
		t.Errorf("quotes mismatch (-want +got):\n%s", diff)
	}
	if fb.writer.seenContext != "context for Dune" {
		t.Errorf("writer saw %q", fb.writer.seenContext)
	}

	fb.search.degraded = true
	res, _ = fb.service().Quotes(context.Background(), "Dune")
	if !res.Degraded {
		t.Error("degraded search must mark result degraded")
	}
}

func TestBookService_PosterWithImage(t *testing.T) {
	t.Parallel()

	fb := newFakeBook()
	res, err := fb.service().Poster(context.Background(), PosterInput{
		Title:         "Dune",
		Quotes:        []string{"Fear is the mind-killer."},
		GenerateImage: true,
	})
	if err != nil {
		t.Fatalf("Poster: %v", err)
	}

	want := &PosterResult{
		PosterURL:   "/static/poster_Dune_1.jpg",
		ImageURL:    "https://img.example/a lighthouse over Dune",
		CoreThought: "a lighthouse over Dune",
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if fb.composer.last.BackgroundURL != want.ImageURL {
		t.Errorf("background = %q", fb.composer.last.BackgroundURL)
	}
	if len(fb.history.posters) != 1 || fb.history.posters[0].PosterURL != want.PosterURL {
		t.Errorf("history = %+v", fb.history.posters)
	}
}

func TestBookService_PosterPlain(t *testing.T) {
	t.Parallel()

	fb := newFakeBook()
	res, err := fb.service().Poster(context.Background(), PosterInput{Title: "Dune", Quotes: []string{"q"}})
	if err != nil {
		t.Fatalf("Poster: %v", err)
	}
	if res.CoreThought != PlainLayoutThought || res.ImageURL != "" {
		t.Errorf("plain poster = %+v", res)
	}
	if fb.composer.last.BackgroundURL != "" {
		t.Error("plain poster must not request a background")
	}
}

func TestBookService_PosterSkipsPlaceholderBackground(t *testing.T) {
	t.Parallel()

	fb := newFakeBook()
	fb.illustrator.degraded = true
	res, err := fb.service().Poster(context.Background(), PosterInput{Title: "Dune", Quotes: []string{"q"}, GenerateImage: true})
	if err != nil {
		t.Fatalf("Poster: %v", err)
	}
	if !res.Degraded || res.ImageURL == "" {
		t.Errorf("result = %+v, want degraded with placeholder image url", res)
	}
	if fb.composer.last.BackgroundURL != "" {
		t.Error("placeholder image must not be used as background")
	}
}

func TestBookService_PosterComposeError(t *testing.T) {
	t.Parallel()

	fb := newFakeBook()
	fb.composer.err = errors.New("disk full")
	if _, err := fb.service().Poster(context.Background(), PosterInput{Title: "Dune"}); err == nil {
		t.Fatal("expected compose error")
	}
}

func TestBookService_Mindmap(t *testing.T) {
	t.Parallel()

	fb := newFakeBook()
	doc, err := fb.service().Mindmap(context.Background(), "Dune")
	if err != nil || doc.Degraded {
		t.Fatalf("Mindmap = %+v, %v", doc, err)
	}
	if fb.render.markdown != "# Dune\n- idea" {
		t.Errorf("renderer got %q", fb.render.markdown)
	}

	fb.writer.outlineBad = true
	doc, err = fb.service().Mindmap(context.Background(), "Dune")
	if err != nil {
		t.Fatalf("Mindmap: %v", err)
	}
	if !doc.Degraded || doc.Reason != "request" {
		t.Errorf("degraded outline must degrade the document: %+v", doc)
	}

	fb.render.err = errors.New("cannot write fallback")
	if _, err := fb.service().Mindmap(context.Background(), "Dune"); err == nil {
		t.Error("expected render error")
	}
}
