package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/fbparty-go/internal/models"
)

// nextID increments and returns the named sequence.
func (c *Client) nextID(ctx context.Context, name string) (int64, error) {
	type counter struct {
		Value int64 `json:"value"`
	}
	res, err := query[[]counter](ctx, c, `
		UPSERT type::record("counter", $name) SET value += 1 RETURN value
	`, map[string]any{"name": name})
	if err != nil {
		return 0, fmt.Errorf("next %s id: %w", name, err)
	}
	rows := first(res)
	if len(rows) == 0 || rows[0].Value == 0 {
		return 0, fmt.Errorf("next %s id: counter not returned", name)
	}
	return rows[0].Value, nil
}

// CreateRoom inserts an active room under the next sequential id.
// A duplicate code yields ErrEntityAlreadyExists.
func (c *Client) CreateRoom(ctx context.Context, code, name string, description *string) (*models.Room, error) {
	id, err := c.nextID(ctx, "room")
	if err != nil {
		return nil, err
	}

	res, err := query[[]models.Room](ctx, c, `
		CREATE type::record("room", $id) CONTENT {
			code: $code,
			name: $name,
			description: $description,
			active: true,
			created_at: time::now(),
			updated_at: time::now()
		}
	`, map[string]any{
		"id":          id,
		"code":        code,
		"name":        name,
		"description": description,
	})
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	rows := first(res)
	if len(rows) == 0 {
		return nil, fmt.Errorf("create room: no record returned")
	}
	return &rows[0], nil
}

// GetRoom returns the room with id, active or not.
func (c *Client) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	res, err := query[[]models.Room](ctx, c, `
		SELECT * FROM type::record("room", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	rows := first(res)
	if len(rows) == 0 {
		return nil, notFound("room", id)
	}
	return &rows[0], nil
}

// GetRoomByCode resolves an active room by its share code.
func (c *Client) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	res, err := query[[]models.Room](ctx, c, `
		SELECT * FROM room WHERE code = $code AND active = true LIMIT 1
	`, map[string]any{"code": strings.ToUpper(code)})
	if err != nil {
		return nil, fmt.Errorf("get room by code: %w", err)
	}
	rows := first(res)
	if len(rows) == 0 {
		return nil, notFound("room", code)
	}
	return &rows[0], nil
}

// ListRooms returns active rooms, newest first.
func (c *Client) ListRooms(ctx context.Context) ([]models.Room, error) {
	res, err := query[[]models.Room](ctx, c, `
		SELECT * FROM room WHERE active = true ORDER BY created_at DESC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	rows := first(res)
	if rows == nil {
		return []models.Room{}, nil
	}
	return rows, nil
}

// UpdateRoom applies the non-nil fields of upd.
func (c *Client) UpdateRoom(ctx context.Context, id int64, upd models.RoomUpdate) (*models.Room, error) {
	sets := []string{"updated_at = time::now()"}
	vars := map[string]any{"id": id}
	if upd.Name != nil {
		sets = append(sets, "name = $name")
		vars["name"] = *upd.Name
	}
	if upd.Description != nil {
		sets = append(sets, "description = $description")
		vars["description"] = *upd.Description
	}
	if upd.Active != nil {
		sets = append(sets, "active = $active")
		vars["active"] = *upd.Active
	}

	sql := fmt.Sprintf(`UPDATE type::record("room", $id) SET %s RETURN AFTER`, strings.Join(sets, ", "))
	res, err := query[[]models.Room](ctx, c, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("update room: %w", err)
	}
	rows := first(res)
	if len(rows) == 0 {
		return nil, notFound("room", id)
	}
	return &rows[0], nil
}

// DeleteRoom removes the room and its videos. The deleted videos are
// returned so their files can be cleaned up.
func (c *Client) DeleteRoom(ctx context.Context, id int64) ([]models.Video, error) {
	res, err := query[[]models.Room](ctx, c, `
		DELETE type::record("room", $id) RETURN BEFORE
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("delete room: %w", err)
	}
	if len(first(res)) == 0 {
		return nil, notFound("room", id)
	}

	videos, err := query[[]models.Video](ctx, c, `
		DELETE video WHERE room = $id RETURN BEFORE
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("delete room videos: %w", err)
	}
	return first(videos), nil
}
