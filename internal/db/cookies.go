package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/fbparty-go/internal/models"
)

// CreateCookie stores a new encrypted credential. It becomes the latest one.
func (c *Client) CreateCookie(ctx context.Context, encrypted string, expiresAt *time.Time) (*models.CookieRecord, error) {
	res, err := query[[]models.CookieRecord](ctx, c, `
		CREATE type::record("cookie", $id) CONTENT {
			encrypted: $encrypted,
			expires_at: $expires_at,
			saved_at: time::now(),
			valid: true
		}
	`, map[string]any{
		"id":         uuid.New().String(),
		"encrypted":  encrypted,
		"expires_at": expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("create cookie: %w", err)
	}
	rows := first(res)
	if len(rows) == 0 {
		return nil, fmt.Errorf("create cookie: no record returned")
	}
	return &rows[0], nil
}

// LatestCookie returns the most recently saved credential, or nil when
// none was ever stored.
func (c *Client) LatestCookie(ctx context.Context) (*models.CookieRecord, error) {
	res, err := query[[]models.CookieRecord](ctx, c, `
		SELECT * FROM cookie ORDER BY saved_at DESC LIMIT 1
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("latest cookie: %w", err)
	}
	rows := first(res)
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// MarkCookieInvalid flags a credential as rejected by the platform.
func (c *Client) MarkCookieInvalid(ctx context.Context, id string) error {
	res, err := query[[]models.CookieRecord](ctx, c, `
		UPDATE type::record("cookie", $id) SET valid = false RETURN AFTER
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("mark cookie invalid: %w", err)
	}
	if len(first(res)) == 0 {
		return notFound("cookie", id)
	}
	return nil
}

// TouchCookie records that a credential was just checked.
func (c *Client) TouchCookie(ctx context.Context, id string) error {
	res, err := query[[]models.CookieRecord](ctx, c, `
		UPDATE type::record("cookie", $id) SET last_checked = time::now() RETURN AFTER
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("touch cookie: %w", err)
	}
	if len(first(res)) == 0 {
		return notFound("cookie", id)
	}
	return nil
}
