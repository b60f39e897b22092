// Package thumbnail renders a still frame of a downloaded video by playing
// it in a headless browser page.
package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/raphaelgruber/fbparty-go/internal/browser"
	"github.com/raphaelgruber/fbparty-go/internal/metrics"
)

// Options controls frame selection and output.
type Options struct {
	Offset      time.Duration // seek target; shorter videos use half their duration
	Settle      time.Duration // wait after seeking before capture
	Quality     int           // JPEG quality
	NavTimeout  time.Duration
	SeekTimeout time.Duration
}

// Capturer writes JPEG thumbnails.
type Capturer struct {
	launcher browser.Launcher
	opts     Options
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// New creates a Capturer. Zero options fall back to 10s offset, 1s settle
// and quality 80.
func New(l browser.Launcher, opts Options, mc *metrics.Collector, logger *slog.Logger) *Capturer {
	if opts.Offset <= 0 {
		opts.Offset = 10 * time.Second
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	} else if opts.Settle == 0 {
		opts.Settle = time.Second
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 80
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 30 * time.Second
	}
	if opts.SeekTimeout <= 0 {
		opts.SeekTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Capturer{launcher: l, opts: opts, metrics: mc, logger: logger}
}

// Capture opens videoPath in a page, seeks and writes a frame to outPath.
func (c *Capturer) Capture(ctx context.Context, videoPath, outPath string) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordResult(metrics.OpThumbnail, time.Since(start), err)
		if err != nil {
			err = fmt.Errorf("capture thumbnail: %w", err)
		}
	}()

	src, err := fileURL(videoPath)
	if err != nil {
		return err
	}

	var shot []byte
	err = browser.With(ctx, c.launcher, browser.Options{}, func(page browser.Page) error {
		if err := page.Navigate(ctx, src, c.opts.NavTimeout); err != nil {
			return err
		}
		var problem string
		if err := page.Evaluate(ctx, seekScript(c.opts.Offset, c.opts.SeekTimeout), &problem); err != nil {
			return fmt.Errorf("seek: %w", err)
		}
		if problem != "" {
			return errors.New(problem)
		}
		if err := browser.Sleep(ctx, c.opts.Settle); err != nil {
			return err
		}
		var err error
		shot, err = page.Screenshot(ctx, c.opts.Quality)
		return err
	})
	if err != nil {
		return err
	}
	if len(shot) == 0 {
		return errors.New("empty screenshot")
	}

	if err := os.WriteFile(outPath, shot, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	c.logger.Debug("thumbnail written", "path", outPath, "bytes", len(shot))
	return nil
}

func fileURL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

// seekScript resolves to "" once the frame at the offset is shown, or to a
// description of what went wrong.
func seekScript(offset, timeout time.Duration) string {
	return fmt.Sprintf(`new Promise((resolve) => {
	const v = document.querySelector('video');
	if (!v) { resolve('no video element'); return; }
	const offset = %f;
	const seek = () => {
		const d = isFinite(v.duration) ? v.duration : 0;
		v.pause();
		v.addEventListener('seeked', () => resolve(''), {once: true});
		v.currentTime = d > 0 && d < offset ? d / 2 : offset;
	};
	v.addEventListener('error', () => resolve('video failed to load'), {once: true});
	if (v.readyState >= 1) { seek(); } else { v.addEventListener('loadedmetadata', seek, {once: true}); }
	setTimeout(() => resolve('timed out waiting for seek'), %d);
})`, offset.Seconds(), timeout.Milliseconds())
}
