package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/raphaelgruber/fbparty-go/internal/browser"
	"github.com/raphaelgruber/fbparty-go/internal/metrics"
	"github.com/raphaelgruber/fbparty-go/internal/platform"
)

// Validation reasons.
const (
	ReasonNoCookie  = "no_cookie"
	ReasonNotLogged = "not_logged"
	ReasonError     = "error"
)

// Validation is the outcome of a session check.
type Validation struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Validator checks whether the stored session is still logged in.
// It never modifies the credential.
type Validator struct {
	sessions *Sessions
	launcher browser.Launcher
	profile  *platform.Profile
	timeout  time.Duration
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// NewValidator creates a validator that bounds the landing navigation by timeout.
func NewValidator(sessions *Sessions, l browser.Launcher, profile *platform.Profile, timeout time.Duration, mc *metrics.Collector, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		sessions: sessions,
		launcher: launcher{l},
		profile:  profile,
		timeout:  timeout,
		metrics:  mc,
		logger:   logger,
	}
}

// Validate injects the stored cookies, opens the landing page and looks for
// any logged-in marker.
func (v *Validator) Validate(ctx context.Context) (res Validation) {
	start := time.Now()
	defer func() {
		var err error
		if !res.OK {
			err = errors.New(res.Reason)
		}
		v.metrics.RecordResult(metrics.OpValidate, time.Since(start), err)
		v.logger.Info("session validated", "ok", res.OK, "reason", res.Reason, "duration_ms", time.Since(start).Milliseconds())
	}()

	cookies, err := v.sessions.Load(ctx)
	if errors.Is(err, ErrNoCredential) {
		return Validation{Reason: ReasonNoCookie}
	}
	if err != nil {
		return Validation{Reason: ReasonError, Detail: err.Error()}
	}

	var loggedIn bool
	err = browser.With(ctx, v.launcher, browser.Options{Cookies: cookies}, func(page browser.Page) error {
		if err := page.Navigate(ctx, v.profile.LandingURL, v.timeout); err != nil {
			return &NavigationError{URL: v.profile.LandingURL, Err: err}
		}
		if landed, err := page.Location(ctx); err == nil && v.profile.IsLoginURL(landed) {
			return nil
		}
		return page.Evaluate(ctx, loggedInScript(v.profile.LoggedInSelectors), &loggedIn)
	})
	if err != nil {
		v.logger.Warn("session validation failed", "error", err)
		return Validation{Reason: ReasonError, Detail: err.Error()}
	}
	if !loggedIn {
		return Validation{Reason: ReasonNotLogged}
	}
	return Validation{OK: true}
}
