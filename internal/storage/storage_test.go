package storage

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSafeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"spaces", "The Old Man and the Sea", "The_Old_Man_and_the_Sea"},
		{"slash", "AC/DC", "AC_DC"},
		{"backslash", `a\b`, "a_b"},
		{"chinese untouched", "百年孤独", "百年孤独"},
		{"trimmed", "  活着 ", "活着"},
		{"nfc", "Café", "Café"},
		{"nul removed", "a\x00b", "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SafeName(tt.title); got != tt.want {
				t.Errorf("SafeName(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestSafeName_LongTitles(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("书", 200)
	got := SafeName(long)
	if len(got) > MaxSafeNameBytes {
		t.Errorf("len(SafeName) = %d bytes, want <= %d", len(got), MaxSafeNameBytes)
	}
	if !utf8.ValidString(got) {
		t.Errorf("SafeName(%d runes) = %q, not valid UTF-8", 200, got)
	}
	if !strings.HasPrefix(got, "书书书") {
		t.Errorf("SafeName lost the title prefix: %q", got)
	}
	if again := SafeName(long); again != got {
		t.Errorf("SafeName not deterministic: %q vs %q", got, again)
	}
	if other := SafeName(long + "续"); other == got {
		t.Errorf("distinct long titles share name %q", got)
	}
	if !ValidName("mindmap_" + got + "_1700000000_temp.html") {
		t.Error("derived artifact name rejected by ValidName")
	}
}

func TestValidName(t *testing.T) {
	t.Parallel()

	valid := []string{"poster_活着_1700000000.jpg", "mindmap_x_fallback.txt", "a..b.md"}
	invalid := []string{"", ".", "..", "../etc/passwd", "a/b", `a\b`, "..hidden", "x\x00y", strings.Repeat("a", 256)}

	for _, n := range valid {
		if !ValidName(n) {
			t.Errorf("ValidName(%q) = false, want true", n)
		}
	}
	for _, n := range invalid {
		if ValidName(n) {
			t.Errorf("ValidName(%q) = true, want false", n)
		}
	}
}

func TestFileStore_WriteReadRemove(t *testing.T) {
	t.Parallel()

	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if err := s.WriteFile("a.md", []byte("# hi")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := s.ReadFile("a.md")
	if err != nil || string(data) != "# hi" {
		t.Fatalf("ReadFile() = %q, %v", data, err)
	}

	f, info, err := s.Open("a.md")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f.Close()
	if info.Size() != 4 {
		t.Errorf("size = %d, want 4", info.Size())
	}

	if err := s.Remove("a.md"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove("a.md"); err != nil {
		t.Errorf("second Remove should be a no-op, got %v", err)
	}
	if _, err := s.ReadFile("a.md"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadFile after remove error = %v, want ErrNotFound", err)
	}
	if _, _, err := s.Open("../a.md"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Open traversal error = %v, want ErrInvalidName", err)
	}
}

func TestURL(t *testing.T) {
	t.Parallel()

	if got := URL("poster_x_1.jpg"); got != "/static/poster_x_1.jpg" {
		t.Errorf("URL() = %q", got)
	}
}
