package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/raphaelgruber/fbparty-go/internal/api"
	"github.com/raphaelgruber/fbparty-go/internal/db/dbtest"
	"github.com/raphaelgruber/fbparty-go/internal/media"
	"github.com/raphaelgruber/fbparty-go/internal/metrics"
	"github.com/raphaelgruber/fbparty-go/internal/models"
	"github.com/raphaelgruber/fbparty-go/internal/platform"
	"github.com/raphaelgruber/fbparty-go/internal/scraper"
	"github.com/raphaelgruber/fbparty-go/internal/service"
	"github.com/raphaelgruber/fbparty-go/internal/storage"
	"github.com/raphaelgruber/fbparty-go/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

type stubLocator struct {
	loc *scraper.Location
	err error
}

func (l *stubLocator) Locate(ctx context.Context, pageURL string) (*scraper.Location, error) {
	return l.loc, l.err
}

type stubDownloader struct{}

func (stubDownloader) Download(ctx context.Context, rawURL, dest string, kind media.Kind) (int64, error) {
	return int64(len(rawURL)), os.WriteFile(dest, []byte(rawURL), 0o644)
}

type stubValidator struct{}

func (stubValidator) Validate(ctx context.Context) scraper.Validation {
	return scraper.Validation{OK: true}
}

type stubInvalidator struct{}

func (stubInvalidator) MarkInvalid(ctx context.Context) error { return nil }

type harness struct {
	ts      *httptest.Server
	store   *dbtest.Store
	files   *storage.Store
	locator *stubLocator
	svc     *service.AcquisitionService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	profile, err := platform.Default()
	require.NoError(t, err)
	v, err := vault.New(testSecret)
	require.NoError(t, err)

	h := &harness{
		store: dbtest.NewStore(),
		locator: &stubLocator{loc: &scraper.Location{
			VideoURL: "https://video.example.net/v.mp4",
			Title:    "Cat video",
			Strategy: "network",
		}},
	}
	h.files, err = storage.New(t.TempDir(), "http://localhost:3020", logger)
	require.NoError(t, err)

	mc := metrics.NewCollector()
	h.svc = service.NewAcquisitionService(service.AcquisitionDeps{
		Store:      h.store,
		Locator:    h.locator,
		Downloader: stubDownloader{},
		Files:      h.files,
		Metrics:    mc,
	}, "separate", logger)

	srv := New(Deps{
		Rooms:       service.NewRoomService(h.store, h.files, profile, logger),
		Acquisition: h.svc,
		Cookies:     service.NewCookieService(h.store, v, stubValidator{}, stubInvalidator{}, h.locator, logger),
		Files:       h.files,
		Metrics:     mc,
	}, logger)

	h.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(h.ts.Close)
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.ts.URL+path, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func pathf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (h *harness) createRoom(t *testing.T, name string) api.Room {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/rooms", api.CreateRoomRequest{Name: name})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[api.Room](t, resp)
}

func (h *harness) addVideo(t *testing.T, roomID int64) api.Video {
	t.Helper()
	resp := h.do(t, http.MethodPost, pathf("/rooms/%d/videos", roomID),
		api.AddVideoRequest{URL: "https://www.facebook.com/watch/?v=1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[api.Video](t, resp)
}

func TestHealthAndStats(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[api.Health](t, resp).Status)

	resp = h.do(t, http.MethodGet, "/stats", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	resp = h.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRoomRoutes(t *testing.T) {
	h := newHarness(t)
	room := h.createRoom(t, "Movie night")
	assert.Len(t, room.Code, 8)

	t.Run("by id", func(t *testing.T) {
		resp := h.do(t, http.MethodGet, pathf("/rooms/%d", room.ID), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, room.Code, decode[api.Room](t, resp).Code)
	})

	t.Run("by code", func(t *testing.T) {
		resp := h.do(t, http.MethodGet, "/rooms/code/"+strings.ToLower(room.Code), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, room.ID, decode[api.Room](t, resp).ID)
	})

	t.Run("list", func(t *testing.T) {
		resp := h.do(t, http.MethodGet, "/rooms", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Len(t, decode[[]api.Room](t, resp), 1)
	})

	t.Run("update", func(t *testing.T) {
		resp := h.do(t, http.MethodPatch, pathf("/rooms/%d", room.ID), map[string]any{"name": "Renamed"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Renamed", decode[api.Room](t, resp).Name)
	})

	t.Run("delete", func(t *testing.T) {
		resp := h.do(t, http.MethodDelete, pathf("/rooms/%d", room.ID), nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp = h.do(t, http.MethodGet, pathf("/rooms/%d", room.ID), nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t)
	room := h.createRoom(t, "Errors")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"invalid id", http.MethodGet, "/rooms/abc", nil, http.StatusBadRequest},
		{"unknown room", http.MethodGet, "/rooms/999", nil, http.StatusNotFound},
		{"unknown code", http.MethodGet, "/rooms/code/FFFFFFFF", nil, http.StatusNotFound},
		{"unknown nested route", http.MethodGet, "/rooms/1/other", nil, http.StatusNotFound},
		{"malformed body", http.MethodPost, "/rooms", "{", http.StatusBadRequest},
		{"blank name", http.MethodPost, "/rooms", api.CreateRoomRequest{Name: " "}, http.StatusBadRequest},
		{"foreign url", http.MethodPost, pathf("/rooms/%d/videos", room.ID), api.AddVideoRequest{URL: "https://example.com/v"}, http.StatusBadRequest},
		{"urls of unknown video", http.MethodGet, "/rooms/videos/999/urls", nil, http.StatusNotFound},
		{"no credential stored", http.MethodGet, "/admin/cookies/status", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
			if tt.want >= http.StatusBadRequest {
				assert.NotEmpty(t, decode[api.Error](t, resp).Error)
			}
		})
	}
}

func TestVideoLifecycle(t *testing.T) {
	h := newHarness(t)
	room := h.createRoom(t, "Queue")
	video := h.addVideo(t, room.ID)
	assert.Equal(t, models.VideoStatusPending, video.Status)

	resp := h.do(t, http.MethodGet, pathf("/rooms/videos/%d/urls", video.ID), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "urls before completion")

	resp = h.do(t, http.MethodPost, pathf("/rooms/videos/%d/process", video.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	done := decode[api.Video](t, resp)
	assert.Equal(t, models.VideoStatusCompleted, done.Status)
	require.NotNil(t, done.PublicVideoURL)
	assert.True(t, strings.HasPrefix(*done.PublicVideoURL, "http://localhost:3020/videos/"))

	resp = h.do(t, http.MethodPost, pathf("/rooms/videos/%d/process", video.ID), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "completed videos are not reprocessed")

	resp = h.do(t, http.MethodGet, pathf("/rooms/videos/%d/urls", video.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	urls := decode[models.PublicURLs](t, resp)
	assert.Equal(t, *done.PublicVideoURL, urls.Video)

	t.Run("artifact is served", func(t *testing.T) {
		name := filepath.Base(urls.Video)
		resp := h.do(t, http.MethodGet, "/videos/"+name, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "video/mp4", resp.Header.Get("Content-Type"))
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "https://video.example.net/v.mp4", string(body))
	})

	t.Run("lookup by code and room", func(t *testing.T) {
		resp := h.do(t, http.MethodGet, "/rooms/videos/code/"+video.Code, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, video.ID, decode[api.Video](t, resp).ID)

		resp = h.do(t, http.MethodGet, pathf("/rooms/videos/%d", video.ID), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = h.do(t, http.MethodGet, pathf("/rooms/%d/videos", room.ID), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Len(t, decode[[]api.Video](t, resp), 1)
	})

	t.Run("watched", func(t *testing.T) {
		resp := h.do(t, http.MethodPatch, pathf("/rooms/videos/%d/watched", video.ID), api.WatchedRequest{Watched: true})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, decode[api.Video](t, resp).Watched)
	})

	t.Run("delete removes artifacts", func(t *testing.T) {
		resp := h.do(t, http.MethodDelete, pathf("/rooms/videos/%d", video.ID), nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp = h.do(t, http.MethodGet, "/videos/"+filepath.Base(urls.Video), nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestProcessFailureIsRecorded(t *testing.T) {
	h := newHarness(t)
	h.locator.loc, h.locator.err = nil, scraper.ErrNoMediaFound
	room := h.createRoom(t, "Failing")
	video := h.addVideo(t, room.ID)

	resp := h.do(t, http.MethodPost, pathf("/rooms/videos/%d/process", video.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	failed := decode[api.Video](t, resp)
	assert.Equal(t, models.VideoStatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)
	assert.Contains(t, *failed.ErrorMessage, "No video URL found")
}

func TestProcessAsync(t *testing.T) {
	h := newHarness(t)
	room := h.createRoom(t, "Async")
	video := h.addVideo(t, room.ID)

	resp := h.do(t, http.MethodPost, pathf("/rooms/videos/%d/process?async=true", video.ID), nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, models.VideoStatusProcessing, decode[api.Video](t, resp).Status)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.svc.Wait(ctx))

	resp = h.do(t, http.MethodGet, pathf("/rooms/videos/%d", video.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.VideoStatusCompleted, decode[api.Video](t, resp).Status)
}

func TestCookieRoutes(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPost, "/admin/cookies", "not cookies")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	upload := `[{"name":"c_user","value":"42","domain":".facebook.com","path":"/"},` +
		`{"name":"xs","value":"secret","domain":".facebook.com","path":"/"}]`
	resp = h.do(t, http.MethodPost, "/admin/cookies", upload)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	res := decode[service.UploadResult](t, resp)
	assert.Equal(t, 2, res.Count)
	assert.True(t, res.Validation.OK)

	resp = h.do(t, http.MethodGet, "/admin/cookies/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret", "status never exposes cookie values")
	var status service.CookieStatus
	require.NoError(t, json.Unmarshal(raw, &status))
	assert.True(t, status.Present)

	resp = h.do(t, http.MethodPost, "/admin/cookies/validate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[scraper.Validation](t, resp).OK)

	resp = h.do(t, http.MethodPost, "/admin/extract", api.ExtractRequest{URL: "https://www.facebook.com/watch/?v=9"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Cat video", decode[scraper.Location](t, resp).Title)

	resp = h.do(t, http.MethodPost, "/admin/cookies/invalidate", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestRecoverMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := RecoverMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abc", 2, "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.in, tt.max))
		})
	}
}
