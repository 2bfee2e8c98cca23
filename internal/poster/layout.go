package poster

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Canvas and typography constants, expressed relative to the canvas size.
const (
	Size = 1024

	quoteScale      = 0.035
	quoteScaleDense = 0.032
	quoteScaleLong  = 0.028
	signatureScale  = 0.03

	lineGapScale      = 0.015
	paragraphGapScale = 0.03
	liftScale         = 0.05
	signatureYScale   = 0.85

	denseChars = 80
	longChars  = 150

	wrapWidth     = 22
	wrapWidthLong = 30
)

// Metrics is the typographic plan for one poster.
type Metrics struct {
	QuoteSize     float64
	SignatureSize float64
	WrapWidth     int
	LineGap       float64
	ParagraphGap  float64
}

// totalRunes counts characters across all quotes.
func totalRunes(quotes []string) int {
	n := 0
	for _, q := range quotes {
		n += utf8.RuneCountInString(q)
	}
	return n
}

// MetricsFor picks font sizes and wrap width from the amount of text.
// Longer texts get smaller type and wider lines.
func MetricsFor(quotes []string) Metrics {
	total := totalRunes(quotes)

	scale := quoteScale
	switch {
	case total > longChars:
		scale = quoteScaleLong
	case total > denseChars:
		scale = quoteScaleDense
	}

	width := wrapWidth
	if total >= longChars {
		width = wrapWidthLong
	}

	return Metrics{
		QuoteSize:     math.Floor(Size * scale),
		SignatureSize: math.Floor(Size * signatureScale),
		WrapWidth:     width,
		LineGap:       math.Floor(Size * lineGapScale),
		ParagraphGap:  math.Floor(Size * paragraphGapScale),
	}
}

// Wrap breaks text into lines of at most width runes. Breaks happen at
// spaces where possible; words longer than a line, which is the norm for
// Chinese text, are split mid-word.
func Wrap(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	var line []rune
	flush := func() {
		if len(line) > 0 {
			lines = append(lines, string(line))
			line = line[:0]
		}
	}

	for _, word := range strings.Fields(text) {
		w := []rune(word)
		for len(w) > 0 {
			sep := 0
			if len(line) > 0 {
				sep = 1
			}
			room := width - len(line) - sep
			switch {
			case len(w) <= room:
				if sep == 1 {
					line = append(line, ' ')
				}
				line = append(line, w...)
				w = nil
			case len(line) > 0:
				flush()
			default:
				line = append(line, w[:width]...)
				w = w[width:]
				flush()
			}
		}
	}
	flush()
	return lines
}

// Signature is the attribution line drawn under the quotes.
func Signature(title string) string {
	return "—— 《" + title + "》"
}

// Line is one line of quote text and the y of its top edge.
type Line struct {
	Text string
	Y    float64
}

// Place wraps quotes into lines and stacks them as one block centred on
// the canvas, lifted slightly to leave room for the signature.
func Place(quotes []string, m Metrics, lineHeight float64) []Line {
	var blocks [][]string
	total := 0.0
	for _, q := range quotes {
		lines := Wrap(q, m.WrapWidth)
		if len(lines) == 0 {
			continue
		}
		blocks = append(blocks, lines)
		total += float64(len(lines))*lineHeight + float64(len(lines)-1)*m.LineGap + m.ParagraphGap
	}
	if len(blocks) == 0 {
		return nil
	}
	total -= m.ParagraphGap

	y := (Size-total)/2 - Size*liftScale
	var placed []Line
	for _, lines := range blocks {
		for i, text := range lines {
			placed = append(placed, Line{Text: text, Y: y})
			y += lineHeight
			if i < len(lines)-1 {
				y += m.LineGap
			}
		}
		y += m.ParagraphGap
	}
	return placed
}
