// Package storage places acquired artifacts in the media directory and
// serves them over HTTP.
package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Artifacts are the file paths one acquisition attempt may produce.
type Artifacts struct {
	Video     string
	Audio     string
	Muxed     string
	Thumbnail string
}

// Store is the media directory.
type Store struct {
	dir     string
	baseURL string
	logger  *slog.Logger
}

// New creates the media directory if needed. baseURL is the public origin
// artifacts are served under, e.g. http://localhost:3020.
func New(dir, baseURL string, logger *slog.Logger) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve media dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: abs, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}, nil
}

// Dir returns the absolute media directory.
func (s *Store) Dir() string {
	return s.dir
}

// Paths names the artifacts of an attempt on the video with code, started at ts.
func (s *Store) Paths(code string, ts time.Time) Artifacts {
	stem := fmt.Sprintf("%s_%d", code, ts.UnixMilli())
	return Artifacts{
		Video:     filepath.Join(s.dir, "video_"+stem+".mp4"),
		Audio:     filepath.Join(s.dir, "audio_"+stem+".m4a"),
		Muxed:     filepath.Join(s.dir, "video_"+stem+"_muxed.mp4"),
		Thumbnail: filepath.Join(s.dir, "thumbnail_"+stem+".jpg"),
	}
}

// PublicURL returns the served URL of a file in the media directory.
func (s *Store) PublicURL(path string) string {
	return s.baseURL + "/videos/" + url.PathEscape(filepath.Base(path))
}

// Remove deletes files, ignoring empty paths and files already gone.
func (s *Store) Remove(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove artifact", "path", p, "error", err)
		}
	}
}

// RemoveCode deletes every artifact named after the video with code,
// whichever attempt wrote it.
func (s *Store) RemoveCode(code string) {
	if code == "" {
		return
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, "*_"+code+"_*"))
	if err != nil {
		s.logger.Warn("failed to list artifacts", "code", code, "error", err)
		return
	}
	s.Remove(matches...)
}

var contentTypes = map[string]string{
	".mp4": "video/mp4",
	".m4a": "audio/mp4",
	".jpg": "image/jpeg",
}

// Handler serves artifacts by base name from the {file} path value, with
// byte ranges and permissive CORS for browser players.
func (s *Store) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Range")
		h.Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		name := r.PathValue("file")
		if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
			http.NotFound(w, r)
			return
		}

		f, err := os.Open(filepath.Join(s.dir, name))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}

		if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
			h.Set("Content-Type", ct)
		}
		h.Set("Accept-Ranges", "bytes")
		http.ServeContent(w, r, name, info.ModTime(), f)
	})
}
