package scraper

import (
	"errors"
	"fmt"
)

// Sentinel errors. Their messages are surfaced to users verbatim.
var (
	ErrNoCredential     = errors.New("No cookie stored")
	ErrNotAuthenticated = errors.New("session is not logged in")
	ErrNoMediaFound     = errors.New("No video URL found")
)

// LaunchError indicates the browser could not be started.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch browser: %v", e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// NavigationError indicates a page failed to load, including timeouts.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("load %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }
