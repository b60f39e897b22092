package api

import (
	"github.com/raphaelgruber/fbparty-go/internal/models"
)

// FromRoom converts a stored room.
func FromRoom(r *models.Room) *Room {
	if r == nil {
		return nil
	}
	return &Room{
		ID:          r.IDInt(),
		Code:        r.Code,
		Name:        r.Name,
		Description: r.Description,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// FromRooms converts a room list, never returning nil.
func FromRooms(rooms []models.Room) []Room {
	out := make([]Room, 0, len(rooms))
	for i := range rooms {
		out = append(out, *FromRoom(&rooms[i]))
	}
	return out
}

// FromVideo converts a stored video.
func FromVideo(v *models.Video) *Video {
	if v == nil {
		return nil
	}
	return &Video{
		ID:                 v.IDInt(),
		RoomID:             v.Room,
		Code:               v.Code,
		PageURL:            v.PageURL,
		Title:              v.Title,
		VideoURL:           v.VideoURL,
		AudioURL:           v.AudioURL,
		PublicVideoURL:     v.PublicVideoURL,
		PublicAudioURL:     v.PublicAudioURL,
		PublicThumbnailURL: v.PublicThumbnailURL,
		Status:             v.Status,
		Stage:              v.Stage,
		ErrorMessage:       v.ErrorMessage,
		Watched:            v.Watched,
		ProcessedAt:        v.ProcessedAt,
		CreatedAt:          v.CreatedAt,
		UpdatedAt:          v.UpdatedAt,
	}
}

// FromVideos converts a video list, never returning nil.
func FromVideos(videos []models.Video) []Video {
	out := make([]Video, 0, len(videos))
	for i := range videos {
		out = append(out, *FromVideo(&videos[i]))
	}
	return out
}
