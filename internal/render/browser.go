package render

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Exporter captures a rendered page as a long JPEG and a printable PDF.
type Exporter interface {
	Export(ctx context.Context, htmlPath, jpgPath, pdfPath string) error
}

// Capture settings.
const (
	viewportWidth  = 1587
	viewportHeight = 1122
	deviceScale    = 3

	jpegQuality = 100

	// A3 landscape in inches, 1cm margins.
	a3LongInches  = 16.54
	a3ShortInches = 11.69
	marginInches  = 0.3937

	networkIdle = 500 * time.Millisecond
)

// BrowserExporter drives a headless Chromium through the DevTools protocol.
// The browser is launched on first use and shared by all exports; each
// export gets its own page.
type BrowserExporter struct {
	bin         string
	darkSettle  time.Duration
	lightSettle time.Duration

	// alive reports whether a browser still answers; a browser that does
	// not is discarded so the next export relaunches it.
	alive func(*rod.Browser) error

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// NewBrowserExporter creates an exporter. An empty bin lets the launcher
// find or download a browser.
func NewBrowserExporter(bin string) *BrowserExporter {
	return &BrowserExporter{
		bin:         bin,
		darkSettle:  2 * time.Second,
		lightSettle: 500 * time.Millisecond,
		alive: func(b *rod.Browser) error {
			_, err := b.Version()
			return err
		},
	}
}

func (e *BrowserExporter) connect(ctx context.Context) (*rod.Browser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.browser != nil {
		return e.browser, nil
	}

	l := launcher.New().Headless(true).NoSandbox(true).
		Set("disable-dev-shm-usage").
		Set("disable-gpu")
	if e.bin != "" {
		l = l.Bin(e.bin)
	}
	// The launcher kills the browser when its context ends, and the browser
	// outlives the request that launched it.
	controlURL, err := l.Context(context.WithoutCancel(ctx)).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	e.browser, e.launcher = b, l
	return b, nil
}

// discardIfDead drops b when it no longer answers, killing its process.
// A failure caused by the caller's own deadline is not a crash.
func (e *BrowserExporter) discardIfDead(ctx context.Context, b *rod.Browser) {
	if ctx.Err() != nil || e.alive(b) == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.browser != b {
		return
	}
	if e.launcher != nil {
		e.launcher.Kill()
	}
	e.browser, e.launcher = nil, nil
}

// Export loads htmlPath, then writes the dark full-page JPEG and the light
// A3 landscape PDF.
func (e *BrowserExporter) Export(ctx context.Context, htmlPath, jpgPath, pdfPath string) error {
	b, err := e.connect(ctx)
	if err != nil {
		return err
	}
	if err := e.export(ctx, b, htmlPath, jpgPath, pdfPath); err != nil {
		e.discardIfDead(ctx, b)
		return err
	}
	return nil
}

func (e *BrowserExporter) export(ctx context.Context, b *rod.Browser, htmlPath, jpgPath, pdfPath string) error {
	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("create page: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             viewportWidth,
		Height:            viewportHeight,
		DeviceScaleFactor: deviceScale,
	}); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}

	waitIdle := page.WaitRequestIdle(networkIdle, nil, nil, nil)
	if err := page.Navigate(fileURL(htmlPath)); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	waitIdle()

	if err := page.AddStyleTag("", darkCSS); err != nil {
		return fmt.Errorf("inject dark style: %w", err)
	}
	if err := sleep(ctx, e.darkSettle); err != nil {
		return err
	}

	quality := jpegQuality
	img, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: &quality,
	})
	if err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	if err := os.WriteFile(jpgPath, img, 0o644); err != nil {
		return fmt.Errorf("write jpg: %w", err)
	}

	if err := page.AddStyleTag("", lightCSS); err != nil {
		return fmt.Errorf("inject light style: %w", err)
	}
	if err := sleep(ctx, e.lightSettle); err != nil {
		return err
	}

	width, height, margin := a3LongInches, a3ShortInches, marginInches
	stream, err := page.PDF(&proto.PagePrintToPDF{
		Landscape:       true,
		PrintBackground: true,
		PaperWidth:      &width,
		PaperHeight:     &height,
		MarginTop:       &margin,
		MarginBottom:    &margin,
		MarginLeft:      &margin,
		MarginRight:     &margin,
	})
	if err != nil {
		return fmt.Errorf("print pdf: %w", err)
	}
	pdf, err := io.ReadAll(stream)
	if err != nil {
		return fmt.Errorf("read pdf stream: %w", err)
	}
	if err := os.WriteFile(pdfPath, pdf, 0o644); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// Close shuts the shared browser down.
func (e *BrowserExporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.browser == nil {
		return nil
	}
	err := e.browser.Close()
	if e.launcher != nil {
		e.launcher.Kill()
	}
	e.browser, e.launcher = nil, nil
	return err
}

func fileURL(path string) string {
	return (&url.URL{Scheme: "file", Path: path}).String()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
