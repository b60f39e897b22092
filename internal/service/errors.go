// Package service provides the business logic of the watch-party server:
// rooms, session credentials and the video acquisition pipeline.
package service

import (
	"errors"

	"github.com/raphaelgruber/fbparty-go/internal/models"
)

var (
	// ErrAlreadyProcessing is returned when another acquisition owns the video.
	ErrAlreadyProcessing = models.ErrAlreadyProcessing

	// ErrInvalidTransition is returned for lifecycle steps that are not allowed,
	// such as processing a completed video again.
	ErrInvalidTransition = models.ErrInvalidTransition

	// ErrNotReady is returned when artifacts of a video are requested before
	// it completed.
	ErrNotReady = errors.New("video is not ready")

	// ErrInvalidInput wraps request validation failures.
	ErrInvalidInput = errors.New("invalid input")
)
