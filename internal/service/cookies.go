package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/fbparty-go/internal/models"
	"github.com/raphaelgruber/fbparty-go/internal/scraper"
)

// CookieStore persists encrypted session credentials.
type CookieStore interface {
	CreateCookie(ctx context.Context, encrypted string, expiresAt *time.Time) (*models.CookieRecord, error)
	LatestCookie(ctx context.Context) (*models.CookieRecord, error)
	TouchCookie(ctx context.Context, id string) error
}

// Encrypter seals credential payloads.
type Encrypter interface {
	Encrypt(plaintext []byte) (string, error)
}

// SessionValidator checks the stored session against the platform.
type SessionValidator interface {
	Validate(ctx context.Context) scraper.Validation
}

// CookieService manages the session credential: upload, status, checks
// and the standalone extraction used to debug it.
type CookieService struct {
	store     CookieStore
	enc       Encrypter
	validator SessionValidator
	sessions  CredentialInvalidator
	locator   Locator
	logger    *slog.Logger
}

// NewCookieService creates a cookie service.
func NewCookieService(store CookieStore, enc Encrypter, validator SessionValidator, sessions CredentialInvalidator, locator Locator, logger *slog.Logger) *CookieService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CookieService{
		store:     store,
		enc:       enc,
		validator: validator,
		sessions:  sessions,
		locator:   locator,
		logger:    logger,
	}
}

// UploadResult describes a stored credential and its first check.
type UploadResult struct {
	ID         string             `json:"id"`
	Count      int                `json:"count"`
	SavedAt    time.Time          `json:"saved_at"`
	ExpiresAt  *time.Time         `json:"expires_at,omitempty"`
	Validation scraper.Validation `json:"validation"`
}

// Upload parses a cookie export, stores it encrypted as the latest
// credential and validates it right away.
func (s *CookieService) Upload(ctx context.Context, data []byte) (*UploadResult, error) {
	cookies, err := models.ParseCookies(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	plain, err := json.Marshal(cookies)
	if err != nil {
		return nil, fmt.Errorf("encode cookies: %w", err)
	}
	sealed, err := s.enc.Encrypt(plain)
	if err != nil {
		return nil, fmt.Errorf("encrypt cookies: %w", err)
	}

	rec, err := s.store.CreateCookie(ctx, sealed, models.EarliestExpiry(cookies))
	if err != nil {
		return nil, err
	}
	id, err := models.RecordIDString(rec.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("cookies uploaded", "cookie_id", id, "count", len(cookies))

	return &UploadResult{
		ID:         id,
		Count:      len(cookies),
		SavedAt:    rec.SavedAt,
		ExpiresAt:  rec.ExpiresAt,
		Validation: s.Validate(ctx),
	}, nil
}

// CookieStatus is the metadata of the latest credential, never its content.
type CookieStatus struct {
	Present     bool       `json:"present"`
	ID          string     `json:"id,omitempty"`
	SavedAt     *time.Time `json:"saved_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Expired     bool       `json:"expired"`
	Valid       bool       `json:"valid"`
	LastChecked *time.Time `json:"last_checked,omitempty"`
}

// Status reports on the latest credential.
func (s *CookieService) Status(ctx context.Context) (*CookieStatus, error) {
	rec, err := s.store.LatestCookie(ctx)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return &CookieStatus{}, nil
	}
	id, err := models.RecordIDString(rec.ID)
	if err != nil {
		return nil, err
	}
	savedAt := rec.SavedAt
	return &CookieStatus{
		Present:     true,
		ID:          id,
		SavedAt:     &savedAt,
		ExpiresAt:   rec.ExpiresAt,
		Expired:     rec.ExpiresAt != nil && rec.ExpiresAt.Before(time.Now()),
		Valid:       rec.Valid,
		LastChecked: rec.LastChecked,
	}, nil
}

// Validate checks the session and records the check time on the latest
// credential. The validity flag itself only changes through Invalidate.
func (s *CookieService) Validate(ctx context.Context) scraper.Validation {
	res := s.validator.Validate(ctx)

	rec, err := s.store.LatestCookie(ctx)
	if err != nil || rec == nil {
		return res
	}
	id, err := models.RecordIDString(rec.ID)
	if err != nil {
		return res
	}
	if err := s.store.TouchCookie(ctx, id); err != nil {
		s.logger.Warn("failed to record cookie check", "cookie_id", id, "error", err)
	}
	return res
}

// Invalidate flags the latest credential as rejected.
func (s *CookieService) Invalidate(ctx context.Context) error {
	return s.sessions.MarkInvalid(ctx)
}

// Extract locates the media behind a page without creating a video.
// A login wall invalidates the credential, as during processing.
func (s *CookieService) Extract(ctx context.Context, pageURL string) (*scraper.Location, error) {
	pageURL = strings.TrimSpace(pageURL)
	if pageURL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidInput)
	}

	loc, err := s.locator.Locate(ctx, pageURL)
	if errors.Is(err, scraper.ErrNotAuthenticated) {
		if mErr := s.sessions.MarkInvalid(ctx); mErr != nil {
			s.logger.Warn("failed to invalidate credential", "error", mErr)
		}
	}
	return loc, err
}
