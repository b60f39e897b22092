package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/fbparty-go/internal/models"
)

// CreateVideo adds a pending video to a room. The room must exist.
func (c *Client) CreateVideo(ctx context.Context, roomID int64, code, pageURL string) (*models.Video, error) {
	if _, err := c.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}

	id, err := c.nextID(ctx, "video")
	if err != nil {
		return nil, err
	}

	res, err := query[[]models.Video](ctx, c, `
		CREATE type::record("video", $id) CONTENT {
			room: $room,
			code: $code,
			page_url: $page_url,
			status: "pending",
			watched: false,
			created_at: time::now(),
			updated_at: time::now()
		}
	`, map[string]any{
		"id":       id,
		"room":     roomID,
		"code":     code,
		"page_url": pageURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create video: %w", err)
	}
	rows := first(res)
	if len(rows) == 0 {
		return nil, fmt.Errorf("create video: no record returned")
	}
	return &rows[0], nil
}

// GetVideo returns the video with id.
func (c *Client) GetVideo(ctx context.Context, id int64) (*models.Video, error) {
	res, err := query[[]models.Video](ctx, c, `
		SELECT * FROM type::record("video", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	rows := first(res)
	if len(rows) == 0 {
		return nil, notFound("video", id)
	}
	return &rows[0], nil
}

// GetVideoByCode resolves a video by its share code.
func (c *Client) GetVideoByCode(ctx context.Context, code string) (*models.Video, error) {
	res, err := query[[]models.Video](ctx, c, `
		SELECT * FROM video WHERE code = $code LIMIT 1
	`, map[string]any{"code": strings.ToUpper(code)})
	if err != nil {
		return nil, fmt.Errorf("get video by code: %w", err)
	}
	rows := first(res)
	if len(rows) == 0 {
		return nil, notFound("video", code)
	}
	return &rows[0], nil
}

// ListVideos returns the videos of a room in insertion order.
func (c *Client) ListVideos(ctx context.Context, roomID int64) ([]models.Video, error) {
	res, err := query[[]models.Video](ctx, c, `
		SELECT * FROM video WHERE room = $room ORDER BY created_at ASC, id ASC
	`, map[string]any{"room": roomID})
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	rows := first(res)
	if rows == nil {
		return []models.Video{}, nil
	}
	return rows, nil
}

// BeginProcessing claims a pending or failed video for one acquisition.
// The status check and the write are a single statement, so of two
// concurrent callers exactly one wins; the other gets
// models.ErrAlreadyProcessing. Completed videos yield
// models.ErrInvalidTransition.
func (c *Client) BeginProcessing(ctx context.Context, id int64) (*models.Video, error) {
	res, err := query[[]models.Video](ctx, c, `
		UPDATE type::record("video", $id) SET
			status = "processing",
			stage = NONE,
			error_message = NONE,
			updated_at = time::now()
		WHERE status IN $claimable
		RETURN AFTER
	`, map[string]any{"id": id, "claimable": models.ClaimableStatuses()})
	if err != nil {
		return nil, fmt.Errorf("begin processing: %w", err)
	}
	if rows := first(res); len(rows) > 0 {
		return &rows[0], nil
	}

	v, err := c.GetVideo(ctx, id)
	if err != nil {
		return nil, err
	}
	if v.Status == models.VideoStatusProcessing {
		return nil, fmt.Errorf("video %d: %w", id, models.ErrAlreadyProcessing)
	}
	return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, v.Status, models.VideoStatusProcessing)
}

// FailInterrupted moves every processing video to failed with msg and
// returns them. It must only run while no acquisition is in flight, i.e.
// at startup, since a live owner would lose its claim.
func (c *Client) FailInterrupted(ctx context.Context, msg string) ([]models.Video, error) {
	res, err := query[[]models.Video](ctx, c, `
		UPDATE video SET
			status = "failed",
			stage = NONE,
			error_message = $msg,
			updated_at = time::now()
		WHERE status = "processing"
		RETURN AFTER
	`, map[string]any{"msg": msg})
	if err != nil {
		return nil, fmt.Errorf("fail interrupted videos: %w", err)
	}
	return first(res), nil
}

// SetStage records the current pipeline step of a processing video.
func (c *Client) SetStage(ctx context.Context, id int64, stage string) error {
	_, err := query[[]models.Video](ctx, c, `
		UPDATE type::record("video", $id) SET stage = $stage, updated_at = time::now()
		WHERE status = "processing"
	`, map[string]any{"id": id, "stage": stage})
	if err != nil {
		return fmt.Errorf("set stage: %w", err)
	}
	return nil
}

// SaveVideo writes the outcome of an acquisition. Only the owner of a
// processing video may save it.
func (c *Client) SaveVideo(ctx context.Context, v *models.Video) (*models.Video, error) {
	id, err := models.RecordIDInt(v.ID)
	if err != nil {
		return nil, fmt.Errorf("save video: %w", err)
	}

	res, err := query[[]models.Video](ctx, c, `
		UPDATE type::record("video", $id) SET
			status = $status,
			stage = $stage,
			error_message = $error_message,
			title = $title,
			video_url = $video_url,
			audio_url = $audio_url,
			video_path = $video_path,
			audio_path = $audio_path,
			thumbnail_path = $thumbnail_path,
			public_video_url = $public_video_url,
			public_audio_url = $public_audio_url,
			public_thumbnail_url = $public_thumbnail_url,
			processed_at = $processed_at,
			updated_at = time::now()
		WHERE status = "processing"
		RETURN AFTER
	`, map[string]any{
		"id":                   id,
		"status":               string(v.Status),
		"stage":                v.Stage,
		"error_message":        v.ErrorMessage,
		"title":                v.Title,
		"video_url":            v.VideoURL,
		"audio_url":            v.AudioURL,
		"video_path":           v.VideoPath,
		"audio_path":           v.AudioPath,
		"thumbnail_path":       v.ThumbnailPath,
		"public_video_url":     v.PublicVideoURL,
		"public_audio_url":     v.PublicAudioURL,
		"public_thumbnail_url": v.PublicThumbnailURL,
		"processed_at":         v.ProcessedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("save video: %w", err)
	}
	if rows := first(res); len(rows) > 0 {
		return &rows[0], nil
	}

	cur, err := c.GetVideo(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("save video %d: %w: %s -> %s", id, models.ErrInvalidTransition, cur.Status, v.Status)
}

// SetWatched flags a video as watched or not, at any status.
func (c *Client) SetWatched(ctx context.Context, id int64, watched bool) (*models.Video, error) {
	res, err := query[[]models.Video](ctx, c, `
		UPDATE type::record("video", $id) SET watched = $watched, updated_at = time::now()
		RETURN AFTER
	`, map[string]any{"id": id, "watched": watched})
	if err != nil {
		return nil, fmt.Errorf("set watched: %w", err)
	}
	rows := first(res)
	if len(rows) == 0 {
		return nil, notFound("video", id)
	}
	return &rows[0], nil
}

// DeleteVideo removes a video and returns the deleted record.
func (c *Client) DeleteVideo(ctx context.Context, id int64) (*models.Video, error) {
	res, err := query[[]models.Video](ctx, c, `
		DELETE type::record("video", $id) RETURN BEFORE
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("delete video: %w", err)
	}
	rows := first(res)
	if len(rows) == 0 {
		return nil, notFound("video", id)
	}
	return &rows[0], nil
}
