package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to VideoStatus
		want     bool
	}{
		{"", VideoStatusPending, true},
		{VideoStatusPending, VideoStatusProcessing, true},
		{VideoStatusFailed, VideoStatusProcessing, true},
		{VideoStatusProcessing, VideoStatusCompleted, true},
		{VideoStatusProcessing, VideoStatusFailed, true},
		{VideoStatusPending, VideoStatusCompleted, false},
		{VideoStatusCompleted, VideoStatusProcessing, false},
		{VideoStatusFailed, VideoStatusCompleted, false},
		{VideoStatusProcessing, VideoStatusProcessing, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTransitionClearsError(t *testing.T) {
	msg := "No video URL found"
	v := &Video{Status: VideoStatusFailed, ErrorMessage: &msg}

	require.NoError(t, v.Transition(VideoStatusProcessing))
	assert.Nil(t, v.ErrorMessage)

	stage := StageDownloading
	v.Stage = &stage
	require.NoError(t, v.Transition(VideoStatusCompleted))
	assert.Nil(t, v.ErrorMessage)
	assert.Nil(t, v.Stage)

	err := v.Transition(VideoStatusProcessing)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestFailClearsArtifacts(t *testing.T) {
	u := "https://video.xx.fbcdn.net/v.mp4"
	p := "videos/video_ABC_1.mp4"
	v := &Video{Status: VideoStatusProcessing, VideoURL: &u, VideoPath: &p, PublicVideoURL: &u}

	require.NoError(t, v.Fail("download video: status 403"))
	assert.Equal(t, VideoStatusFailed, v.Status)
	require.NotNil(t, v.ErrorMessage)
	assert.Equal(t, "download video: status 403", *v.ErrorMessage)
	assert.Nil(t, v.VideoURL)
	assert.Nil(t, v.VideoPath)
	assert.Nil(t, v.PublicVideoURL)

	pending := &Video{Status: VideoStatusPending}
	assert.ErrorIs(t, pending.Fail("x"), ErrInvalidTransition)
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, VideoStatusCompleted.Terminal())
	assert.True(t, VideoStatusFailed.Terminal())
	assert.False(t, VideoStatusProcessing.Terminal())
	assert.True(t, VideoStatusPending.Valid())
	assert.False(t, VideoStatus("queued").Valid())
	assert.ElementsMatch(t, []VideoStatus{VideoStatusPending, VideoStatusFailed}, ClaimableStatuses())
}
