package poster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	maxImageBytes   = 20 << 20
	maxImagePixels  = 40_000_000 // decoded RGBA is 4 bytes per pixel
	downloadTimeout = 30 * time.Second
)

// ErrImageTooLarge is returned when a background exceeds the download cap
// or the pixel cap.
var ErrImageTooLarge = errors.New("background image too large")

// Downloader fetches and decodes a background image.
type Downloader struct {
	client    *http.Client
	maxPixels int
}

// NewDownloader creates a Downloader. A nil client gets a bounded default.
func NewDownloader(client *http.Client) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: downloadTimeout}
	}
	return &Downloader{client: client, maxPixels: maxImagePixels}
}

// Fetch downloads and decodes the image at rawURL.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download background: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download background: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read background: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, ErrImageTooLarge
	}

	// A small compressed file can declare enormous dimensions.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode background header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > d.maxPixels/cfg.Height {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode background: %w", err)
	}
	return img, nil
}

// Cover scales src to fill a size x size square, cropping the overflow of
// the longer side around the centre.
func Cover(src image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return dst
	}

	crop := b
	if w > h {
		off := (w - h) / 2
		crop = image.Rect(b.Min.X+off, b.Min.Y, b.Min.X+off+h, b.Max.Y)
	} else if h > w {
		off := (h - w) / 2
		crop = image.Rect(b.Min.X, b.Min.Y+off, b.Max.X, b.Min.Y+off+w)
	}

	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return dst
}
