// Package browser drives disposable headless browser pages.
//
// Every page owns its own browser process. Callers acquire pages through
// With, which releases the process on every exit path.
package browser

import (
	"context"
	"log/slog"
	"time"

	"github.com/raphaelgruber/fbparty-go/internal/models"
)

// Options configures a page before it is handed to the caller.
type Options struct {
	// Cookies are injected before the first navigation.
	Cookies []models.Cookie

	// ObserveRequests records the URL of every request the page issues.
	ObserveRequests bool
}

// Page is an open browser tab.
type Page interface {
	// Navigate loads url and waits for the load event, bounded by timeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	// Location returns the URL the tab currently shows.
	Location(ctx context.Context) (string, error)

	// Evaluate runs a script expression, awaiting a returned promise, and
	// decodes its JSON result into out.
	Evaluate(ctx context.Context, expr string, out any) error

	// HTML returns the serialized document.
	HTML(ctx context.Context) (string, error)

	// Screenshot captures the viewport as JPEG at quality (0-100).
	Screenshot(ctx context.Context, quality int) ([]byte, error)

	// Requests returns the URLs observed so far, in issue order.
	Requests() []string

	// Close releases the tab and its browser process. It is idempotent.
	Close() error
}

// Launcher opens pages.
type Launcher interface {
	Open(ctx context.Context, opts Options) (Page, error)
}

// With opens a page, runs fn and closes the page whatever fn does,
// including panicking.
func With(ctx context.Context, l Launcher, opts Options, fn func(Page) error) error {
	p, err := l.Open(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil {
			slog.Debug("close browser page", "error", cerr)
		}
	}()
	return fn(p)
}

// Sleep waits for d or until ctx is done. Page scripts settle on their own
// schedule, so callers wait fixed delays instead of polling.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
