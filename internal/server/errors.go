package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/raphaelgruber/fbparty-go/internal/api"
	"github.com/raphaelgruber/fbparty-go/internal/db"
	"github.com/raphaelgruber/fbparty-go/internal/scraper"
	"github.com/raphaelgruber/fbparty-go/internal/service"
)

// statusFor maps service and storage errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		launchErr *scraper.LaunchError
		navErr    *scraper.NavigationError
	)
	switch {
	case errors.Is(err, db.ErrNotFound), errors.Is(err, scraper.ErrNoCredential):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyProcessing),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrNotReady),
		errors.Is(err, db.ErrEntityAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, scraper.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, scraper.ErrNoMediaFound):
		return http.StatusUnprocessableEntity
	case errors.As(err, &launchErr), errors.As(err, &navErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(msg string) api.Error {
	return api.Error{Error: msg}
}

// writeError writes err as a JSON error body. Internal errors are logged and
// hidden from the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request error", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal server error"
	}
	writeJSON(w, status, errorBody(msg))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
