// Package fetch downloads media streams from the CDN with browser-like
// request headers, bounded retries and atomic file placement.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/raphaelgruber/fbparty-go/internal/media"
	"github.com/raphaelgruber/fbparty-go/internal/metrics"
	"github.com/raphaelgruber/fbparty-go/internal/platform"
)

// DownloadError describes a failed transfer. StatusCode is zero when no
// response was received.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: status %d", Redact(e.URL), e.StatusCode)
	}
	return fmt.Sprintf("download %s: %v", Redact(e.URL), e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Options tunes the downloader. Zero values select the defaults.
type Options struct {
	Timeout        time.Duration // whole download including retries; default 300s
	Retries        int           // extra attempts after the first
	MaxRedirects   int           // default 5
	InitialBackoff time.Duration // default 500ms
	MaxBackoff     time.Duration // default 5s
}

// Downloader fetches stream URLs to local files.
type Downloader struct {
	client  *http.Client
	headers platform.Headers
	opts    Options
	metrics *metrics.Collector
	logger  *slog.Logger
}

// New creates a downloader sending headers on every request.
func New(headers platform.Headers, opts Options, mc *metrics.Collector, logger *slog.Logger) *Downloader {
	if opts.Timeout <= 0 {
		opts.Timeout = 300 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 5
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	maxRedirects := opts.MaxRedirects
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return &redirectLimitError{max: maxRedirects}
			}
			return nil
		},
	}

	return &Downloader{
		client:  client,
		headers: headers,
		opts:    opts,
		metrics: mc,
		logger:  logger,
	}
}

// Download fetches rawURL into dest and returns the number of bytes written.
// The body is streamed to a temporary file in dest's directory and renamed
// into place, so dest either holds a complete file or does not exist.
func (d *Downloader) Download(ctx context.Context, rawURL, dest string, kind media.Kind) (int64, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	var written int64
	attempt := 0
	op := func() error {
		attempt++
		n, err := d.fetchOnce(ctx, rawURL, dest, kind)
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		written = n
		return nil
	}
	notify := func(err error, wait time.Duration) {
		d.logger.Warn("download attempt failed, retrying",
			"url", Redact(rawURL),
			"attempt", attempt,
			"retry_in", wait,
			"error", err)
	}

	if err := backoff.RetryNotify(op, d.newBackOff(ctx), notify); err != nil {
		d.metrics.RecordResult(metrics.OpDownload, time.Since(start), err)
		return 0, err
	}

	d.metrics.RecordTransfer(metrics.OpDownload, time.Since(start), written)
	d.logger.Info("download complete",
		"url", Redact(rawURL),
		"kind", kind,
		"bytes", written,
		"attempts", attempt,
		"duration_ms", time.Since(start).Milliseconds())
	return written, nil
}

func (d *Downloader) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.opts.InitialBackoff
	b.MaxInterval = d.opts.MaxBackoff
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(d.opts.Retries)), ctx)
}

func (d *Downloader) fetchOnce(ctx context.Context, rawURL, dest string, kind media.Kind) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, backoff.Permanent(&DownloadError{URL: rawURL, Err: err})
	}
	d.applyHeaders(req, kind)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, &DownloadError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, &DownloadError{URL: rawURL, StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	tmp := filepath.Join(filepath.Dir(dest), "."+uuid.New().String()+".part")
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr == nil && n == 0 {
		copyErr = errors.New("empty response body")
	}
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(tmp)
		return 0, &DownloadError{URL: rawURL, Err: err}
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("place download: %w", err)
	}
	return n, nil
}

func (d *Downloader) applyHeaders(req *http.Request, kind media.Kind) {
	h := d.headers
	set := func(key, val string) {
		if val != "" {
			req.Header.Set(key, val)
		}
	}
	set("User-Agent", h.UserAgent)
	set("Referer", h.Referer)
	set("Origin", h.Origin)
	set("Accept-Language", h.AcceptLanguage)
	if kind == media.KindAudio {
		set("Accept", h.AcceptAudio)
	} else {
		set("Accept", h.AcceptVideo)
	}
}

// retryable reports whether another attempt may succeed: connection
// failures, timeouts of a single attempt, 408, 429 and 5xx responses.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var de *DownloadError
	if !errors.As(err, &de) {
		return false
	}
	switch {
	case de.StatusCode == 0:
		var rl *redirectLimitError
		return !errors.As(de.Err, &rl)
	case de.StatusCode == http.StatusRequestTimeout, de.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return de.StatusCode >= 500
	}
}

type redirectLimitError struct {
	max int
}

func (e *redirectLimitError) Error() string {
	return fmt.Sprintf("stopped after %d redirects", e.max)
}

// Redact strips the query string, which carries signatures, for logging.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		if len(rawURL) > 80 {
			return rawURL[:80] + "..."
		}
		return rawURL
	}
	return u.Scheme + "://" + u.Host + u.Path
}
