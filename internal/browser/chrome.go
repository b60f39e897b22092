package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/raphaelgruber/fbparty-go/internal/models"
)

// ChromeConfig controls how Chrome processes are started.
type ChromeConfig struct {
	ExecPath  string // empty lets chromedp search the usual locations
	Headless  bool
	UserAgent string
}

// Chrome launches a fresh Chrome process per page.
type Chrome struct {
	cfg    ChromeConfig
	logger *slog.Logger
}

// NewChrome creates a Chrome launcher.
func NewChrome(cfg ChromeConfig, logger *slog.Logger) *Chrome {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chrome{cfg: cfg, logger: logger}
}

// Open starts Chrome, enables the network domain and injects cookies.
func (c *Chrome) Open(ctx context.Context, opts Options) (Page, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.Flag("allow-file-access-from-files", true),
		chromedp.WindowSize(1280, 800),
	)
	if c.cfg.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(c.cfg.UserAgent))
	}
	if c.cfg.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(c.cfg.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		c.logger.Debug(fmt.Sprintf(format, args...), "component", "chromedp")
	}))

	t := &tab{ctx: tabCtx, cancelTab: cancelTab, cancelAlloc: cancelAlloc}
	if opts.ObserveRequests {
		chromedp.ListenTarget(tabCtx, func(ev any) {
			if e, ok := ev.(*network.EventRequestWillBeSent); ok && e.Request != nil {
				t.record(e.Request.URL)
			}
		})
	}

	// The first Run starts the browser process.
	actions := []chromedp.Action{network.Enable()}
	if params := cookieParams(opts.Cookies); len(params) > 0 {
		actions = append(actions, network.SetCookies(params))
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	c.logger.Debug("browser page opened", "observe_requests", opts.ObserveRequests, "cookies", len(opts.Cookies))
	return t, nil
}

// tab is a chromedp-backed Page.
type tab struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc

	mu       sync.Mutex
	requests []string

	closeOnce sync.Once
	closeErr  error
}

func (t *tab) record(url string) {
	t.mu.Lock()
	t.requests = append(t.requests, url)
	t.mu.Unlock()
}

// run executes actions on the tab, honouring both the caller's ctx and an
// optional timeout. Cancelling the derived context aborts the actions
// without closing the tab.
func (t *tab) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := runContext(t.ctx, ctx, timeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// runContext derives one context from the tab context that also ends when
// caller ends or timeout elapses.
func runContext(tabCtx, caller context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(tabCtx, timeout)
	} else {
		ctx, cancel = context.WithCancel(tabCtx)
	}
	stop := context.AfterFunc(caller, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (t *tab) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := t.run(ctx, timeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (t *tab) Location(ctx context.Context) (string, error) {
	var loc string
	if err := t.run(ctx, 0, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

func (t *tab) Evaluate(ctx context.Context, expr string, out any) error {
	err := t.run(ctx, 0, chromedp.Evaluate(expr, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

func (t *tab) HTML(ctx context.Context) (string, error) {
	var html string
	if err := t.Evaluate(ctx, `document.documentElement ? document.documentElement.outerHTML : ""`, &html); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

func (t *tab) Screenshot(ctx context.Context, quality int) ([]byte, error) {
	var buf []byte
	err := t.run(ctx, 0, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(int64(quality)).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

func (t *tab) Requests() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.requests...)
}

func (t *tab) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = chromedp.Cancel(t.ctx)
		t.cancelTab()
		t.cancelAlloc()
	})
	return t.closeErr
}

// cookieParams converts stored cookies to CDP parameters. Cookies without
// a domain cannot be set and are skipped.
func cookieParams(cookies []models.Cookie) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" || c.Domain == "" {
			continue
		}
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if p.Path == "" {
			p.Path = "/"
		}
		if c.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			p.Expires = &exp
		}
		switch c.SameSite {
		case "Strict":
			p.SameSite = network.CookieSameSiteStrict
		case "Lax":
			p.SameSite = network.CookieSameSiteLax
		case "None":
			p.SameSite = network.CookieSameSiteNone
		}
		params = append(params, p)
	}
	return params
}
