package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/raphaelgruber/fbparty-go/internal/db"
	"github.com/raphaelgruber/fbparty-go/internal/models"
	"github.com/raphaelgruber/fbparty-go/internal/platform"
	"github.com/raphaelgruber/fbparty-go/internal/storage"
)

// Code lengths of rooms and videos.
const (
	roomCodeLength  = 8
	videoCodeLength = 6
	codeAttempts    = 5
)

// RoomStore persists rooms and their videos.
type RoomStore interface {
	CreateRoom(ctx context.Context, code, name string, description *string) (*models.Room, error)
	GetRoom(ctx context.Context, id int64) (*models.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*models.Room, error)
	ListRooms(ctx context.Context) ([]models.Room, error)
	UpdateRoom(ctx context.Context, id int64, upd models.RoomUpdate) (*models.Room, error)
	DeleteRoom(ctx context.Context, id int64) ([]models.Video, error)

	CreateVideo(ctx context.Context, roomID int64, code, pageURL string) (*models.Video, error)
	GetVideo(ctx context.Context, id int64) (*models.Video, error)
	GetVideoByCode(ctx context.Context, code string) (*models.Video, error)
	ListVideos(ctx context.Context, roomID int64) ([]models.Video, error)
	SetWatched(ctx context.Context, id int64, watched bool) (*models.Video, error)
	DeleteVideo(ctx context.Context, id int64) (*models.Video, error)
}

// RoomService manages rooms and the videos queued in them.
type RoomService struct {
	store   RoomStore
	files   *storage.Store
	profile *platform.Profile
	logger  *slog.Logger
}

// NewRoomService creates a room service.
func NewRoomService(store RoomStore, files *storage.Store, profile *platform.Profile, logger *slog.Logger) *RoomService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoomService{store: store, files: files, profile: profile, logger: logger}
}

// newCode returns n upper-case hex characters.
func newCode(n int) string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:n])
}

// withUniqueCode retries create with fresh codes while the code is taken.
func withUniqueCode[T any](n int, create func(code string) (T, error)) (T, error) {
	var (
		out T
		err error
	)
	for range codeAttempts {
		out, err = create(newCode(n))
		if !errors.Is(err, db.ErrEntityAlreadyExists) {
			return out, err
		}
	}
	return out, err
}

// CreateRoom creates an active room with a fresh share code.
func (s *RoomService) CreateRoom(ctx context.Context, name string, description *string) (*models.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: room name is required", ErrInvalidInput)
	}

	room, err := withUniqueCode(roomCodeLength, func(code string) (*models.Room, error) {
		return s.store.CreateRoom(ctx, code, name, description)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("room created", "room_id", room.IDInt(), "code", room.Code)
	return room, nil
}

// Room returns a room by id.
func (s *RoomService) Room(ctx context.Context, id int64) (*models.Room, error) {
	return s.store.GetRoom(ctx, id)
}

// RoomByCode resolves an active room by share code.
func (s *RoomService) RoomByCode(ctx context.Context, code string) (*models.Room, error) {
	return s.store.GetRoomByCode(ctx, strings.TrimSpace(code))
}

// ListRooms returns the active rooms.
func (s *RoomService) ListRooms(ctx context.Context) ([]models.Room, error) {
	return s.store.ListRooms(ctx)
}

// UpdateRoom changes name, description or active flag.
func (s *RoomService) UpdateRoom(ctx context.Context, id int64, upd models.RoomUpdate) (*models.Room, error) {
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: room name cannot be empty", ErrInvalidInput)
		}
		upd.Name = &name
	}
	return s.store.UpdateRoom(ctx, id, upd)
}

// DeleteRoom removes a room, its videos and their files.
func (s *RoomService) DeleteRoom(ctx context.Context, id int64) error {
	videos, err := s.store.DeleteRoom(ctx, id)
	if err != nil {
		return err
	}
	for i := range videos {
		s.removeFiles(&videos[i])
	}
	s.logger.Info("room deleted", "room_id", id, "videos", len(videos))
	return nil
}

// AddVideo queues a page URL in a room as a pending video.
func (s *RoomService) AddVideo(ctx context.Context, roomID int64, pageURL string) (*models.Video, error) {
	pageURL, err := s.checkURL(pageURL)
	if err != nil {
		return nil, err
	}
	return s.addVideo(ctx, roomID, pageURL)
}

// AddVideos queues several page URLs. Every URL is checked before any is stored.
func (s *RoomService) AddVideos(ctx context.Context, roomID int64, pageURLs []string) ([]models.Video, error) {
	if len(pageURLs) == 0 {
		return nil, fmt.Errorf("%w: at least one url is required", ErrInvalidInput)
	}
	clean := make([]string, 0, len(pageURLs))
	for _, u := range pageURLs {
		c, err := s.checkURL(u)
		if err != nil {
			return nil, err
		}
		clean = append(clean, c)
	}

	out := make([]models.Video, 0, len(clean))
	for _, u := range clean {
		v, err := s.addVideo(ctx, roomID, u)
		if err != nil {
			return out, err
		}
		out = append(out, *v)
	}
	return out, nil
}

func (s *RoomService) addVideo(ctx context.Context, roomID int64, pageURL string) (*models.Video, error) {
	v, err := withUniqueCode(videoCodeLength, func(code string) (*models.Video, error) {
		return s.store.CreateVideo(ctx, roomID, code, pageURL)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("video added", "room_id", roomID, "video_id", v.IDInt(), "code", v.Code)
	return v, nil
}

func (s *RoomService) checkURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	if !s.profile.MatchesURL(raw) {
		return "", fmt.Errorf("%w: %q is not a %s URL", ErrInvalidInput, raw, s.profile.Name)
	}
	return raw, nil
}

// Video returns a video by id.
func (s *RoomService) Video(ctx context.Context, id int64) (*models.Video, error) {
	return s.store.GetVideo(ctx, id)
}

// VideoByCode returns a video by share code.
func (s *RoomService) VideoByCode(ctx context.Context, code string) (*models.Video, error) {
	return s.store.GetVideoByCode(ctx, strings.TrimSpace(code))
}

// ListVideos returns the videos of an existing room.
func (s *RoomService) ListVideos(ctx context.Context, roomID int64) ([]models.Video, error) {
	if _, err := s.store.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.store.ListVideos(ctx, roomID)
}

// SetWatched flags a video as watched or not.
func (s *RoomService) SetWatched(ctx context.Context, id int64, watched bool) (*models.Video, error) {
	return s.store.SetWatched(ctx, id, watched)
}

// DeleteVideo removes a video and its files. A video that is being
// processed cannot be deleted.
func (s *RoomService) DeleteVideo(ctx context.Context, id int64) error {
	v, err := s.store.GetVideo(ctx, id)
	if err != nil {
		return err
	}
	if v.Status == models.VideoStatusProcessing {
		return fmt.Errorf("video %d: %w", id, ErrAlreadyProcessing)
	}
	deleted, err := s.store.DeleteVideo(ctx, id)
	if err != nil {
		return err
	}
	s.removeFiles(deleted)
	return nil
}

func (s *RoomService) removeFiles(v *models.Video) {
	var paths []string
	for _, p := range []*string{v.VideoPath, v.AudioPath, v.ThumbnailPath} {
		if p != nil {
			paths = append(paths, *p)
		}
	}
	s.files.Remove(paths...)
}
