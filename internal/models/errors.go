package models

import "errors"

var (
	// ErrInvalidTransition indicates a status change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAlreadyProcessing indicates another acquisition owns the video.
	ErrAlreadyProcessing = errors.New("video is already processing")
)
