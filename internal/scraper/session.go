// Package scraper inspects the platform through a logged-in browser: it
// checks stored sessions and locates raw media streams behind page URLs.
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/fbparty-go/internal/browser"
	"github.com/raphaelgruber/fbparty-go/internal/models"
	"github.com/raphaelgruber/fbparty-go/internal/platform"
)

// CredentialStore reads and flags stored session credentials.
type CredentialStore interface {
	// LatestCookie returns the newest record, or nil when none exists.
	LatestCookie(ctx context.Context) (*models.CookieRecord, error)
	MarkCookieInvalid(ctx context.Context, id string) error
}

// Decrypter opens encrypted credential payloads.
type Decrypter interface {
	Decrypt(payload string) ([]byte, error)
}

// Sessions turns the latest stored credential into injectable cookies.
type Sessions struct {
	store   CredentialStore
	dec     Decrypter
	profile *platform.Profile
	logger  *slog.Logger
}

// NewSessions creates a session adapter.
func NewSessions(store CredentialStore, dec Decrypter, profile *platform.Profile, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{store: store, dec: dec, profile: profile, logger: logger}
}

// Load returns the cookies of the latest credential that belong to the
// platform. A missing, undecryptable or unparsable credential yields
// ErrNoCredential.
func (s *Sessions) Load(ctx context.Context) ([]models.Cookie, error) {
	rec, err := s.store.LatestCookie(ctx)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if rec == nil {
		return nil, ErrNoCredential
	}

	plain, err := s.dec.Decrypt(rec.Encrypted)
	if err != nil {
		s.logger.Warn("stored cookies cannot be decrypted", "error", err)
		return nil, ErrNoCredential
	}

	var cookies []models.Cookie
	if err := json.Unmarshal(plain, &cookies); err != nil {
		s.logger.Warn("stored cookies cannot be parsed", "error", err)
		return nil, ErrNoCredential
	}

	usable := cookies[:0]
	for _, c := range cookies {
		if s.profile.AllowsCookieDomain(c.Domain) {
			usable = append(usable, c)
		}
	}
	if len(usable) == 0 {
		return nil, ErrNoCredential
	}
	return usable, nil
}

// MarkInvalid flags the latest credential as rejected by the platform.
func (s *Sessions) MarkInvalid(ctx context.Context) error {
	rec, err := s.store.LatestCookie(ctx)
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}
	if rec == nil {
		return ErrNoCredential
	}
	id, err := models.RecordIDString(rec.ID)
	if err != nil {
		return err
	}
	if err := s.store.MarkCookieInvalid(ctx, id); err != nil {
		return fmt.Errorf("mark credential invalid: %w", err)
	}
	s.logger.Info("credential marked invalid", "cookie_id", id)
	return nil
}

// launcher reports Open failures as LaunchError.
type launcher struct {
	browser.Launcher
}

func (l launcher) Open(ctx context.Context, opts browser.Options) (browser.Page, error) {
	p, err := l.Launcher.Open(ctx, opts)
	if err != nil {
		return nil, &LaunchError{Err: err}
	}
	return p, nil
}
