// Package client provides an HTTP and websocket client for the fbparty server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/fbparty-go/internal/api"
	"github.com/raphaelgruber/fbparty-go/internal/metrics"
	"github.com/raphaelgruber/fbparty-go/internal/models"
	"github.com/raphaelgruber/fbparty-go/internal/party"
	"github.com/raphaelgruber/fbparty-go/internal/scraper"
	"github.com/raphaelgruber/fbparty-go/internal/service"
)

// DefaultServerURL is used when neither an explicit URL nor FBPARTY_SERVER_URL is set.
const DefaultServerURL = "http://localhost:3020"

// Client talks to the fbparty server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new client.
// If baseURL is empty, uses FBPARTY_SERVER_URL or defaults to localhost:3020.
// Timeout can be configured via FBPARTY_CLIENT_TIMEOUT (default 15m, long
// enough for a synchronous acquisition).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("FBPARTY_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = DefaultServerURL
	}

	timeout := 15 * time.Minute
	if t := os.Getenv("FBPARTY_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the server URL requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error: %d %s - %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// do sends a request and decodes a JSON response into result. body is
// encoded as JSON unless it is already a []byte.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var r io.Reader
	contentType := "application/json"
	switch b := body.(type) {
	case nil:
	case []byte:
		r = bytes.NewReader(b)
		contentType = "application/octet-stream"
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if r != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr api.Error
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// =============================================================================
// SERVER
// =============================================================================

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) (*api.Health, error) {
	var out api.Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats returns operation timings collected by the server.
func (c *Client) Stats(ctx context.Context) (*metrics.Snapshot, error) {
	var out metrics.Snapshot
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// ROOMS
// =============================================================================

// CreateRoom creates a room.
func (c *Client) CreateRoom(ctx context.Context, name string, description *string) (*api.Room, error) {
	var out api.Room
	req := api.CreateRoomRequest{Name: name, Description: description}
	if err := c.do(ctx, http.MethodPost, "/rooms", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRooms lists active rooms.
func (c *Client) ListRooms(ctx context.Context) ([]api.Room, error) {
	var out []api.Room
	if err := c.do(ctx, http.MethodGet, "/rooms", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRoom gets a room by id.
func (c *Client) GetRoom(ctx context.Context, id int64) (*api.Room, error) {
	var out api.Room
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/rooms/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRoomByCode gets an active room by its share code.
func (c *Client) GetRoomByCode(ctx context.Context, code string) (*api.Room, error) {
	var out api.Room
	if err := c.do(ctx, http.MethodGet, "/rooms/code/"+url.PathEscape(code), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateRoom applies the non-nil fields of upd.
func (c *Client) UpdateRoom(ctx context.Context, id int64, upd models.RoomUpdate) (*api.Room, error) {
	var out api.Room
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/rooms/%d", id), upd, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteRoom deletes a room with its videos and their files.
func (c *Client) DeleteRoom(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/rooms/%d", id), nil, nil)
}

// =============================================================================
// VIDEOS
// =============================================================================

// AddVideo queues a page URL in a room.
func (c *Client) AddVideo(ctx context.Context, roomID int64, pageURL string) (*api.Video, error) {
	var out api.Video
	path := fmt.Sprintf("/rooms/%d/videos", roomID)
	if err := c.do(ctx, http.MethodPost, path, api.AddVideoRequest{URL: pageURL}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddVideos queues several page URLs at once. Nothing is stored if any URL is rejected.
func (c *Client) AddVideos(ctx context.Context, roomID int64, pageURLs []string) ([]api.Video, error) {
	var out []api.Video
	path := fmt.Sprintf("/rooms/%d/videos/batch", roomID)
	if err := c.do(ctx, http.MethodPost, path, api.AddVideosRequest{URLs: pageURLs}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListVideos lists the videos of a room in queue order.
func (c *Client) ListVideos(ctx context.Context, roomID int64) ([]api.Video, error) {
	var out []api.Video
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/rooms/%d/videos", roomID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetVideo gets a video by id.
func (c *Client) GetVideo(ctx context.Context, id int64) (*api.Video, error) {
	var out api.Video
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/rooms/videos/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetVideoByCode gets a video by its short code.
func (c *Client) GetVideoByCode(ctx context.Context, code string) (*api.Video, error) {
	var out api.Video
	if err := c.do(ctx, http.MethodGet, "/rooms/videos/code/"+url.PathEscape(code), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProcessVideo starts an acquisition. Without async the call blocks until
// the video completed or failed; with async it returns the claimed video.
func (c *Client) ProcessVideo(ctx context.Context, id int64, async bool) (*api.Video, error) {
	var out api.Video
	path := fmt.Sprintf("/rooms/videos/%d/process", id)
	if async {
		path += "?async=true"
	}
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VideoURLs returns the public artifact URLs of a completed video.
func (c *Client) VideoURLs(ctx context.Context, id int64) (*models.PublicURLs, error) {
	var out models.PublicURLs
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/rooms/videos/%d/urls", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetWatched flags or unflags a video as watched.
func (c *Client) SetWatched(ctx context.Context, id int64, watched bool) (*api.Video, error) {
	var out api.Video
	path := fmt.Sprintf("/rooms/videos/%d/watched", id)
	if err := c.do(ctx, http.MethodPatch, path, api.WatchedRequest{Watched: watched}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteVideo deletes a video and its files.
func (c *Client) DeleteVideo(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/rooms/videos/%d", id), nil, nil)
}

// =============================================================================
// ADMIN
// =============================================================================

// UploadCookies stores a cookie export (JSON or Netscape format) as the
// session credential.
func (c *Client) UploadCookies(ctx context.Context, data []byte) (*service.UploadResult, error) {
	var out service.UploadResult
	if err := c.do(ctx, http.MethodPost, "/admin/cookies", data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CookieStatus reports on the stored credential without its content.
func (c *Client) CookieStatus(ctx context.Context) (*service.CookieStatus, error) {
	var out service.CookieStatus
	if err := c.do(ctx, http.MethodGet, "/admin/cookies/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateCookies checks the stored credential against the platform.
func (c *Client) ValidateCookies(ctx context.Context) (*scraper.Validation, error) {
	var out scraper.Validation
	if err := c.do(ctx, http.MethodPost, "/admin/cookies/validate", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InvalidateCookies marks the stored credential invalid.
func (c *Client) InvalidateCookies(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/admin/cookies/invalidate", nil, nil)
}

// Extract locates the media of a page without storing anything.
func (c *Client) Extract(ctx context.Context, pageURL string) (*scraper.Location, error) {
	var out scraper.Location
	if err := c.do(ctx, http.MethodPost, "/admin/extract", api.ExtractRequest{URL: pageURL}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// WATCH PARTY
// =============================================================================

// WatchRoom joins a room over the websocket and calls onMsg for every event
// until ctx is done or onMsg returns an error, which is returned as is.
func (c *Client) WatchRoom(ctx context.Context, code, userName string, onMsg func(party.Message) error) error {
	wsEndpoint := c.baseURL
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint + "/ws")
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}

	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	join := party.Message{Action: party.ActionJoinRoom, RoomCode: code, UserName: userName}
	if err := conn.WriteJSON(join); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var msg party.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read message: %w", err)
		}
		if err := onMsg(msg); err != nil {
			return err
		}
	}
}
