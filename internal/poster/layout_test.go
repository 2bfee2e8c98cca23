package poster

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestMetricsFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		total     int
		wantSize  float64
		wantWidth int
	}{
		{"short", 40, 35, 22},
		{"at dense threshold", 80, 35, 22},
		{"dense", 81, 32, 22},
		{"at long threshold", 150, 32, 30},
		{"long", 151, 28, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := MetricsFor([]string{strings.Repeat("字", tt.total)})
			if m.QuoteSize != tt.wantSize || m.WrapWidth != tt.wantWidth {
				t.Errorf("MetricsFor(%d runes) = size %v width %d, want %v %d",
					tt.total, m.QuoteSize, m.WrapWidth, tt.wantSize, tt.wantWidth)
			}
			if m.SignatureSize != 30 || m.LineGap != 15 || m.ParagraphGap != 30 {
				t.Errorf("fixed metrics = %+v", m)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		width int
		want  []string
	}{
		{"fits", "hello world", 22, []string{"hello world"}},
		{"breaks at space", "the quick brown fox", 10, []string{"the quick", "brown fox"}},
		{"splits long word", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"chinese", "人生没有白走的路每一步都算数", 5, []string{"人生没有白", "走的路每一", "步都算数"}},
		{"collapses whitespace", "  a \n b  ", 10, []string{"a b"}},
		{"empty", "   ", 10, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if diff := cmp.Diff(tt.want, Wrap(tt.text, tt.width)); diff != "" {
				t.Errorf("Wrap() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlace(t *testing.T) {
	t.Parallel()

	m := Metrics{WrapWidth: 4, LineGap: 10, ParagraphGap: 20}

	got := Place([]string{"abcdefgh", "xy", ""}, m, 40)
	// Block: 2 lines (40+10+40) + gap 20 + 1 line 40 = 150.
	top := (Size-150.0)/2 - Size*liftScale
	want := []Line{
		{Text: "abcd", Y: top},
		{Text: "efgh", Y: top + 50},
		{Text: "xy", Y: top + 110},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("Place() mismatch (-want +got):\n%s", diff)
	}

	if got := Place(nil, m, 40); got != nil {
		t.Errorf("Place(nil) = %v, want nil", got)
	}
}

func TestSignature(t *testing.T) {
	t.Parallel()

	if got := Signature("活着"); got != "—— 《活着》" {
		t.Errorf("Signature() = %q", got)
	}
}
