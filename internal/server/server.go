// Package server exposes rooms, videos, credentials and artifacts over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/raphaelgruber/fbparty-go/internal/api"
	"github.com/raphaelgruber/fbparty-go/internal/metrics"
	"github.com/raphaelgruber/fbparty-go/internal/party"
	"github.com/raphaelgruber/fbparty-go/internal/service"
	"github.com/raphaelgruber/fbparty-go/internal/storage"
)

// Deps are the services behind the routes. Hub and Metrics are optional.
type Deps struct {
	Rooms       *service.RoomService
	Acquisition *service.AcquisitionService
	Cookies     *service.CookieService
	Files       *storage.Store
	Hub         *party.Hub
	Metrics     *metrics.Collector
}

// Server is the HTTP API with lifecycle management.
type Server struct {
	Deps
	logger  *slog.Logger
	handler http.Handler
}

// New creates the server and registers its routes.
func New(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{Deps: deps, logger: logger}
	s.handler = RecoverMiddleware(logger)(LoggingMiddleware(logger)(s.routes()))
	return s
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, api.Health{Status: "ok"})
	})
	mux.HandleFunc("GET /stats", s.handleStats)
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics.Handler())
	}

	mux.HandleFunc("POST /admin/cookies", s.handleUploadCookies)
	mux.HandleFunc("GET /admin/cookies/status", s.handleCookieStatus)
	mux.HandleFunc("POST /admin/cookies/validate", s.handleValidateCookies)
	mux.HandleFunc("POST /admin/cookies/invalidate", s.handleInvalidateCookies)
	mux.HandleFunc("POST /admin/extract", s.handleExtract)

	mux.HandleFunc("POST /rooms", s.handleCreateRoom)
	mux.HandleFunc("GET /rooms", s.handleListRooms)
	mux.HandleFunc("GET /rooms/{id}", s.handleGetRoom)
	mux.HandleFunc("GET /rooms/{first}/{second}", s.dispatchRoomGet)
	mux.HandleFunc("PATCH /rooms/{id}", s.handleUpdateRoom)
	mux.HandleFunc("DELETE /rooms/{id}", s.handleDeleteRoom)
	mux.HandleFunc("POST /rooms/{id}/videos", s.handleAddVideo)
	mux.HandleFunc("POST /rooms/{id}/videos/batch", s.handleAddVideos)

	mux.HandleFunc("GET /rooms/videos/{first}/{second}", s.dispatchVideoGet)
	mux.HandleFunc("POST /rooms/videos/{id}/process", s.handleProcessVideo)
	mux.HandleFunc("PATCH /rooms/videos/{id}/watched", s.handleSetWatched)
	mux.HandleFunc("DELETE /rooms/videos/{id}", s.handleDeleteVideo)

	if s.Files != nil {
		files := s.Files.Handler()
		mux.Handle("GET /videos/{file}", files)
		mux.Handle("HEAD /videos/{file}", files)
		mux.Handle("OPTIONS /videos/{file}", files)
	}
	if s.Hub != nil {
		mux.Handle("GET /ws", s.Hub)
	}
	return mux
}

// Run serves on addr until ctx is done, then shuts down gracefully and
// waits for background acquisitions.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      15 * time.Minute, // synchronous processing and large artifacts
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.Hub != nil {
		s.Hub.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if s.Acquisition != nil {
		if err := s.Acquisition.Wait(shutdownCtx); err != nil {
			s.logger.Warn("background acquisitions still running at shutdown", "error", err)
		}
	}
	s.logger.Info("server stopped")
	return nil
}

// dispatchRoomGet serves /rooms/code/{code}, /rooms/videos/{id} and
// /rooms/{id}/videos, which overlap as mux patterns.
func (s *Server) dispatchRoomGet(w http.ResponseWriter, r *http.Request) {
	first, second := r.PathValue("first"), r.PathValue("second")
	switch {
	case first == "code":
		r.SetPathValue("code", second)
		s.handleGetRoomByCode(w, r)
	case first == "videos":
		r.SetPathValue("id", second)
		s.handleGetVideo(w, r)
	case second == "videos":
		r.SetPathValue("id", first)
		s.handleListVideos(w, r)
	default:
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	}
}

// dispatchVideoGet serves /rooms/videos/code/{code} and /rooms/videos/{id}/urls.
func (s *Server) dispatchVideoGet(w http.ResponseWriter, r *http.Request) {
	first, second := r.PathValue("first"), r.PathValue("second")
	switch {
	case first == "code":
		r.SetPathValue("code", second)
		s.handleGetVideoByCode(w, r)
	case second == "urls":
		r.SetPathValue("id", first)
		s.handleVideoURLs(w, r)
	default:
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.Metrics == nil {
		writeJSON(w, http.StatusOK, metrics.Snapshot{})
		return
	}
	writeJSON(w, http.StatusOK, s.Metrics.Snapshot())
}
