package render

import (
	"fmt"

	"github.com/chenjf2025/BookQuoteApp/internal/storage"
)

// Names are the artifact file names of one rendering.
type Names struct {
	Markdown string
	HTML     string
	TempHTML string
	PDF      string
	JPG      string
	Fallback string
}

// NamesFor derives file names from the book title and a unix timestamp.
// The fallback name carries no timestamp, so a later failure for the same
// title overwrites it.
func NamesFor(title string, unix int64) Names {
	base := fmt.Sprintf("mindmap_%s_%d", storage.SafeName(title), unix)
	return Names{
		Markdown: base + ".md",
		HTML:     base + ".html",
		TempHTML: base + "_temp.html",
		PDF:      base + ".pdf",
		JPG:      base + ".jpg",
		Fallback: fmt.Sprintf("mindmap_%s_fallback.txt", storage.SafeName(title)),
	}
}
