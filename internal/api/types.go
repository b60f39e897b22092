// Package api defines the JSON shapes shared by the HTTP server, the
// websocket hub and the client.
package api

import (
	"time"

	"github.com/raphaelgruber/fbparty-go/internal/models"
)

// Room is a watch-party room.
type Room struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Video is a queued page URL and its acquisition state. Local paths stay
// on the server; clients get the public URLs.
type Video struct {
	ID      int64  `json:"id"`
	RoomID  int64  `json:"room_id"`
	Code    string `json:"code"`
	PageURL string `json:"page_url"`

	Title    *string `json:"title,omitempty"`
	VideoURL *string `json:"video_url,omitempty"`
	AudioURL *string `json:"audio_url,omitempty"`

	PublicVideoURL     *string `json:"public_video_url,omitempty"`
	PublicAudioURL     *string `json:"public_audio_url,omitempty"`
	PublicThumbnailURL *string `json:"public_thumbnail_url,omitempty"`

	Status       models.VideoStatus `json:"status"`
	Stage        *string            `json:"stage,omitempty"`
	ErrorMessage *string            `json:"error_message,omitempty"`
	Watched      bool               `json:"watched"`

	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Error is the body of every failed request.
type Error struct {
	Error string `json:"error"`
}

// CreateRoomRequest is the body of POST /rooms.
type CreateRoomRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// AddVideoRequest is the body of POST /rooms/{id}/videos.
type AddVideoRequest struct {
	URL string `json:"url"`
}

// AddVideosRequest is the body of POST /rooms/{id}/videos/batch.
type AddVideosRequest struct {
	URLs []string `json:"urls"`
}

// WatchedRequest is the body of PATCH /rooms/videos/{id}/watched.
type WatchedRequest struct {
	Watched bool `json:"watched"`
}

// ExtractRequest is the body of POST /admin/extract.
type ExtractRequest struct {
	URL string `json:"url"`
}

// Health is the body of GET /health.
type Health struct {
	Status string `json:"status"`
}
