package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
)

// ChromeRasterizer screenshots HTML files with headless Chrome.
type ChromeRasterizer struct {
	// ExecPath overrides the browser binary; empty uses the chromedp lookup.
	ExecPath string
	Timeout  time.Duration
	// Settle is how long the page gets for fonts and images.
	Settle time.Duration
}

var _ Rasterizer = (*ChromeRasterizer)(nil)

func NewChromeRasterizer(execPath string) *ChromeRasterizer {
	return &ChromeRasterizer{ExecPath: execPath, Timeout: 30 * time.Second, Settle: 1500 * time.Millisecond}
}

func (c *ChromeRasterizer) Rasterize(ctx context.Context, htmlPath, jpegPath string, opts ImageOptions) error {
	abs, err := filepath.Abs(htmlPath)
	if err != nil {
		return err
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.WindowSize(opts.Width, opts.Height))
	if c.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(c.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		browserCtx, cancel = context.WithTimeout(browserCtx, c.Timeout)
		defer cancel()
	}

	var buf []byte
	if err := chromedp.Run(browserCtx,
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate("file://"+filepath.ToSlash(abs)),
		chromedp.Sleep(c.Settle),
		chromedp.FullScreenshot(&buf, opts.Quality),
	); err != nil {
		return fmt.Errorf("chrome screenshot failed: %w", err)
	}
	if err := os.WriteFile(jpegPath, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write JPEG: %w", err)
	}
	return nil
}
