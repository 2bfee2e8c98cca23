// Package storage manages the directory of generated artifacts that is
// served under /static/.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"
)

// URLPrefix is the public path prefix for stored artifacts.
const URLPrefix = "/static/"

const (
	// MaxSafeNameBytes caps SafeName so prefixed, suffixed artifact names
	// stay well under the 255-byte file name limit.
	MaxSafeNameBytes = 80
	maxNameBytes     = 255
)

var (
	// ErrInvalidName is returned for names that could escape the directory.
	ErrInvalidName = errors.New("invalid artifact name")
	// ErrNotFound is returned when an artifact does not exist.
	ErrNotFound = errors.New("artifact not found")
)

// FileStore is a flat directory of artifacts.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create static dir: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve static dir: %w", err)
	}
	return &FileStore{dir: abs}, nil
}

// Dir returns the absolute directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// SafeName turns a book title into a file-name fragment. Spaces and path
// separators become underscores; the title is NFC-normalised first so the
// same title always maps to the same name. Names longer than
// MaxSafeNameBytes are cut on a rune boundary and tagged with a hash of
// the full name, so distinct long titles stay distinct.
func SafeName(title string) string {
	title = norm.NFC.String(strings.TrimSpace(title))
	name := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\':
			return '_'
		case 0:
			return -1
		}
		return r
	}, title)
	if len(name) <= MaxSafeNameBytes {
		return name
	}

	tag := fmt.Sprintf("~%08x", uint32(xxhash.Sum64String(name)))
	cut := MaxSafeNameBytes - len(tag)
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut] + tag
}

// ValidName reports whether name is a plain file name inside the store.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." || len(name) > maxNameBytes {
		return false
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return false
	}
	return !strings.HasPrefix(name, "..")
}

// Path returns the absolute path of name.
func (s *FileStore) Path(name string) (string, error) {
	if !ValidName(name) {
		return "", ErrInvalidName
	}
	return filepath.Join(s.dir, name), nil
}

// URL returns the public address of name.
func URL(name string) string {
	return URLPrefix + name
}

// WriteFile writes data to name, replacing any previous content.
func (s *FileStore) WriteFile(name string, data []byte) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Create opens name for writing.
func (s *FileStore) Create(name string) (io.WriteCloser, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	return f, nil
}

// ReadFile returns the content of name.
func (s *FileStore) ReadFile(name string) ([]byte, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// Open opens name for reading. Directories are reported as not found.
func (s *FileStore) Open(name string) (*os.File, os.FileInfo, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat %s: %w", name, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, ErrNotFound
	}
	return f, info, nil
}

// Remove deletes name; a missing file is not an error.
func (s *FileStore) Remove(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}
