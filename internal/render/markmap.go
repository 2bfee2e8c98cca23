package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Converter turns a markdown outline file into an interactive HTML page.
type Converter interface {
	Convert(ctx context.Context, markdownPath, htmlPath string) error
}

// MarkmapCLI runs the markmap command line tool.
type MarkmapCLI struct {
	argv []string
	dir  string
}

// NewMarkmapCLI parses command, for example "npx markmap-cli", into argv.
// dir is the working directory for the subprocess.
func NewMarkmapCLI(command, dir string) (*MarkmapCLI, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, errors.New("markmap command is empty")
	}
	return &MarkmapCLI{argv: argv, dir: dir}, nil
}

// Convert runs `<command> <md> -o <html> --no-open`.
func (m *MarkmapCLI) Convert(ctx context.Context, markdownPath, htmlPath string) error {
	args := append(append([]string{}, m.argv[1:]...), markdownPath, "-o", htmlPath, "--no-open")
	cmd := exec.CommandContext(ctx, m.argv[0], args...)
	cmd.Dir = m.dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("markmap: %w: %s", err, tail(stderr.String(), 512))
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
