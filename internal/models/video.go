package models

import (
	"fmt"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// VideoStatus is the acquisition lifecycle state of a Video.
type VideoStatus string

const (
	VideoStatusPending    VideoStatus = "pending"
	VideoStatusProcessing VideoStatus = "processing"
	VideoStatusCompleted  VideoStatus = "completed"
	VideoStatusFailed     VideoStatus = "failed"
)

// Pipeline stages reported while a video is processing.
const (
	StageLocating    = "locating"
	StageDownloading = "downloading"
	StageMuxing      = "muxing"
	StageThumbnail   = "thumbnail"
)

// Stages lists the processing stages in execution order.
var Stages = []string{StageLocating, StageDownloading, StageMuxing, StageThumbnail}

var allowedTransitions = map[VideoStatus]map[VideoStatus]bool{
	"":                    {VideoStatusPending: true},
	VideoStatusPending:    {VideoStatusProcessing: true},
	VideoStatusFailed:     {VideoStatusProcessing: true},
	VideoStatusProcessing: {VideoStatusCompleted: true, VideoStatusFailed: true},
}

// Valid reports whether s is a known status.
func (s VideoStatus) Valid() bool {
	switch s {
	case VideoStatusPending, VideoStatusProcessing, VideoStatusCompleted, VideoStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no automatic transition leaves s.
func (s VideoStatus) Terminal() bool {
	return s == VideoStatusCompleted || s == VideoStatusFailed
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to VideoStatus) bool {
	return allowedTransitions[from][to]
}

// ClaimableStatuses are the states a video may enter processing from.
func ClaimableStatuses() []VideoStatus {
	return []VideoStatus{VideoStatusPending, VideoStatusFailed}
}

// Video is one requested page URL within a room and its acquisition state.
type Video struct {
	ID      surrealmodels.RecordID `json:"id"`
	Room    int64                  `json:"room"`
	Code    string                 `json:"code"`
	PageURL string                 `json:"page_url"`

	VideoURL *string `json:"video_url,omitempty"`
	AudioURL *string `json:"audio_url,omitempty"`
	Title    *string `json:"title,omitempty"`

	VideoPath     *string `json:"video_path,omitempty"`
	AudioPath     *string `json:"audio_path,omitempty"`
	ThumbnailPath *string `json:"thumbnail_path,omitempty"`

	PublicVideoURL     *string `json:"public_video_url,omitempty"`
	PublicAudioURL     *string `json:"public_audio_url,omitempty"`
	PublicThumbnailURL *string `json:"public_thumbnail_url,omitempty"`

	Status       VideoStatus `json:"status"`
	Stage        *string     `json:"stage,omitempty"`
	ErrorMessage *string     `json:"error_message,omitempty"`
	Watched      bool        `json:"watched"`

	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Transition moves v to status, rejecting illegal steps. Entering
// processing clears the previous error; leaving it clears the stage.
func (v *Video) Transition(to VideoStatus) error {
	if !CanTransition(v.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, v.Status, to)
	}
	v.Status = to
	switch to {
	case VideoStatusProcessing:
		v.ErrorMessage = nil
	case VideoStatusCompleted:
		v.ErrorMessage = nil
		v.Stage = nil
	case VideoStatusFailed:
		v.Stage = nil
	}
	return nil
}

// Fail moves a processing video to failed and drops every artifact field,
// so a failed item never exposes partial results.
func (v *Video) Fail(msg string) error {
	if err := v.Transition(VideoStatusFailed); err != nil {
		return err
	}
	v.ErrorMessage = &msg
	v.ClearArtifacts()
	return nil
}

// ClearArtifacts unsets every resolved URL, local path and public URL.
func (v *Video) ClearArtifacts() {
	v.VideoURL, v.AudioURL = nil, nil
	v.VideoPath, v.AudioPath, v.ThumbnailPath = nil, nil, nil
	v.PublicVideoURL, v.PublicAudioURL, v.PublicThumbnailURL = nil, nil, nil
}

// IDInt returns the numeric record key.
func (v *Video) IDInt() int64 {
	return MustRecordIDInt(v.ID)
}

// PublicURLs are the served locations of a completed video's artifacts.
type PublicURLs struct {
	Video     string  `json:"video"`
	Audio     *string `json:"audio,omitempty"`
	Thumbnail *string `json:"thumbnail,omitempty"`
}
