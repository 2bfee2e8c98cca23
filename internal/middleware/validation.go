package middleware

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/chenjf2025/BookQuoteApp/internal/model"
)

// Request field limits for the book endpoints.
const (
	// MaxBookTitleLength is the maximum rune length for a book title.
	MaxBookTitleLength = 200

	// MaxSelectedQuotes is the maximum number of quotes on one poster.
	MaxSelectedQuotes = 10

	// MaxQuoteLength is the maximum rune length for one quote.
	MaxQuoteLength = 300
)

// Validation errors.
var (
	ErrTooManyQuotes    = errors.New("at most 10 quotes can be placed on a poster")
	ErrQuoteTooLong     = errors.New("quote exceeds maximum length")
	ErrControlCharacter = errors.New("text contains control characters")
)

// NormalizeBookTitle trims a title and validates it. The normalized title
// is what the services and file names see.
func NormalizeBookTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > MaxBookTitleLength {
		return "", model.ErrInvalidBookTitle
	}
	if hasControl(title) {
		return "", model.ErrInvalidBookTitle
	}
	return title, nil
}

// NormalizeQuotes trims quotes, drops empty ones and enforces the limits.
func NormalizeQuotes(quotes []string) ([]string, error) {
	out := make([]string, 0, len(quotes))
	for _, q := range quotes {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if utf8.RuneCountInString(q) > MaxQuoteLength {
			return nil, ErrQuoteTooLong
		}
		if hasControl(q) {
			return nil, ErrControlCharacter
		}
		out = append(out, q)
	}
	if len(out) > MaxSelectedQuotes {
		return nil, ErrTooManyQuotes
	}
	return out, nil
}

// hasControl reports control characters other than ordinary whitespace.
func hasControl(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return true
		}
	}
	return false
}
