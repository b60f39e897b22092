package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raphaelgruber/fbparty-go/internal/media"
	"github.com/raphaelgruber/fbparty-go/internal/metrics"
	"github.com/raphaelgruber/fbparty-go/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testHeaders = platform.Headers{
	UserAgent:      "Mozilla/5.0 Chrome/120.0.0.0",
	Referer:        "https://www.facebook.com/",
	Origin:         "https://www.facebook.com",
	AcceptLanguage: "en-US,en;q=0.9",
	AcceptVideo:    "video/*",
	AcceptAudio:    "audio/*",
}

func newTestDownloader(retries int, mc *metrics.Collector) *Downloader {
	return New(testHeaders, Options{
		Timeout:        5 * time.Second,
		Retries:        retries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, mc, nil)
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestDownloadSendsBrowserHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte("mp4-bytes"))
	}))
	defer srv.Close()

	mc := metrics.NewCollector()
	dir := t.TempDir()
	dest := filepath.Join(dir, "video_ABC123_1.mp4")

	n, err := newTestDownloader(0, mc).Download(context.Background(), srv.URL+"/v.mp4?oh=sig", dest, media.KindVideo)
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "mp4-bytes", string(data))
	assert.Equal(t, []string{"video_ABC123_1.mp4"}, dirEntries(t, dir))

	assert.Equal(t, testHeaders.UserAgent, got.Get("User-Agent"))
	assert.Equal(t, testHeaders.Referer, got.Get("Referer"))
	assert.Equal(t, testHeaders.Origin, got.Get("Origin"))
	assert.Equal(t, "video/*", got.Get("Accept"))
	assert.Equal(t, testHeaders.AcceptLanguage, got.Get("Accept-Language"))

	snap := mc.Snapshot()
	require.NotNil(t, snap.Download)
	assert.Equal(t, int64(9), *snap.Download.TotalBytes)
}

func TestDownloadAudioAccept(t *testing.T) {
	var accept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		_, _ = w.Write([]byte("m4a"))
	}))
	defer srv.Close()

	_, err := newTestDownloader(0, nil).Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "a.m4a"), media.KindAudio)
	require.NoError(t, err)
	assert.Equal(t, "audio/*", accept)
}

func TestDownloadRetries(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		status    int
		retries   int
		wantErr   bool
		wantCalls int32
	}{
		{name: "recovers from 503", failures: 2, status: http.StatusServiceUnavailable, retries: 2, wantCalls: 3},
		{name: "recovers from 429", failures: 1, status: http.StatusTooManyRequests, retries: 1, wantCalls: 2},
		{name: "gives up after retries", failures: 5, status: http.StatusBadGateway, retries: 2, wantErr: true, wantCalls: 3},
		{name: "404 is permanent", failures: 5, status: http.StatusNotFound, retries: 3, wantErr: true, wantCalls: 1},
		{name: "403 is permanent", failures: 5, status: http.StatusForbidden, retries: 3, wantErr: true, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if int(calls.Add(1)) <= tt.failures {
					w.WriteHeader(tt.status)
					return
				}
				_, _ = w.Write([]byte("ok"))
			}))
			defer srv.Close()

			dir := t.TempDir()
			dest := filepath.Join(dir, "out.mp4")
			_, err := newTestDownloader(tt.retries, nil).Download(context.Background(), srv.URL, dest, media.KindVideo)
			assert.Equal(t, tt.wantCalls, calls.Load())

			if tt.wantErr {
				var de *DownloadError
				require.ErrorAs(t, err, &de)
				assert.Equal(t, tt.status, de.StatusCode)
				assert.Empty(t, dirEntries(t, dir))
				return
			}
			require.NoError(t, err)
			assert.FileExists(t, dest)
		})
	}
}

func TestDownloadFollowsLimitedRedirects(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/short":
			http.Redirect(w, r, srv.URL+"/final", http.StatusFound)
		case "/final":
			_, _ = w.Write([]byte("done"))
		default:
			http.Redirect(w, r, srv.URL+r.URL.Path+"x", http.StatusFound)
		}
	}))
	defer srv.Close()

	d := newTestDownloader(3, nil)

	_, err := d.Download(context.Background(), srv.URL+"/short", filepath.Join(t.TempDir(), "a.mp4"), media.KindVideo)
	require.NoError(t, err)

	_, err = d.Download(context.Background(), srv.URL+"/loop", filepath.Join(t.TempDir(), "b.mp4"), media.KindVideo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopped after 5 redirects")
}

func TestDownloadEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	dir := t.TempDir()
	_, err := newTestDownloader(0, nil).Download(context.Background(), srv.URL, filepath.Join(dir, "e.mp4"), media.KindVideo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response body")
	assert.Empty(t, dirEntries(t, dir))
}

func TestDownloadCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestDownloader(5, nil).Download(ctx, srv.URL, filepath.Join(t.TempDir(), "c.mp4"), media.KindVideo)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "https://video.xx.fbcdn.net/v/a.mp4", Redact("https://video.xx.fbcdn.net/v/a.mp4?oh=secret&oe=1"))
	assert.Equal(t, "not a url", Redact("not a url"))
}
