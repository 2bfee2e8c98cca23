package poster

import (
	"fmt"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
)

// Fonts produces faces at the sizes a poster needs.
type Fonts struct {
	font *opentype.Font
}

// LoadFonts parses an OpenType or TrueType file. CFF outlines, as used by
// Source Han Sans, are supported.
func LoadFonts(path string) (*Fonts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font: %w", err)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	return &Fonts{font: f}, nil
}

// Face returns a face of the given pixel size. Without a parsed font, or
// if the face cannot be built, the built-in bitmap face is used.
func (f *Fonts) Face(size float64) font.Face {
	if f == nil || f.font == nil {
		return basicfont.Face7x13
	}
	face, err := opentype.NewFace(f.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	return face
}
