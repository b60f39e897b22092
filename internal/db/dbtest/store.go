// Package dbtest provides an in-memory implementation of the database
// client for tests.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/fbparty-go/internal/db"
	"github.com/raphaelgruber/fbparty-go/internal/models"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Store is an in-memory stand-in for the database client. It implements
// the same room, video and cookie methods, including the processing claim.
type Store struct {
	mu      sync.Mutex
	nextID  int64
	rooms   map[int64]*models.Room
	videos  map[int64]*models.Video
	cookies []*models.CookieRecord
	stages  []string

	// SaveErr is returned by every SaveVideo call when set.
	SaveErr error
	// TakenCodes is the number of upcoming creates that report a code clash.
	TakenCodes int
}

func NewStore() *Store {
	return &Store{rooms: map[int64]*models.Room{}, videos: map[int64]*models.Video{}}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) clash() bool {
	if s.TakenCodes > 0 {
		s.TakenCodes--
		return true
	}
	return false
}

func (s *Store) CreateRoom(ctx context.Context, code, name string, description *string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clash() {
		return nil, fmt.Errorf("%w: code %s", db.ErrEntityAlreadyExists, code)
	}
	id := s.id()
	r := &models.Room{
		ID:          surrealmodels.RecordID{Table: "room", ID: id},
		Code:        code,
		Name:        name,
		Description: description,
		Active:      true,
		CreatedAt:   time.Now(),
	}
	s.rooms[id] = r
	cp := *r
	return &cp, nil
}

func (s *Store) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		if r.Active && r.Code == strings.ToUpper(code) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *Store) ListRooms(ctx context.Context) ([]models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Room{}
	for _, r := range s.rooms {
		if r.Active {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *Store) UpdateRoom(ctx context.Context, id int64, upd models.RoomUpdate) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	if upd.Name != nil {
		r.Name = *upd.Name
	}
	if upd.Description != nil {
		r.Description = upd.Description
	}
	if upd.Active != nil {
		r.Active = *upd.Active
	}
	cp := *r
	return &cp, nil
}

func (s *Store) DeleteRoom(ctx context.Context, id int64) ([]models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; !ok {
		return nil, db.ErrNotFound
	}
	delete(s.rooms, id)
	var out []models.Video
	for vid, v := range s.videos {
		if v.Room == id {
			out = append(out, *v)
			delete(s.videos, vid)
		}
	}
	return out, nil
}

func (s *Store) CreateVideo(ctx context.Context, roomID int64, code, pageURL string) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return nil, db.ErrNotFound
	}
	if s.clash() {
		return nil, fmt.Errorf("%w: code %s", db.ErrEntityAlreadyExists, code)
	}
	id := s.id()
	v := &models.Video{
		ID:        surrealmodels.RecordID{Table: "video", ID: id},
		Room:      roomID,
		Code:      code,
		PageURL:   pageURL,
		Status:    models.VideoStatusPending,
		CreatedAt: time.Now(),
	}
	s.videos[id] = v
	cp := *v
	return &cp, nil
}

// Put stores v as is under a fresh id, for tests that need a given status.
func (s *Store) Put(v models.Video) *models.Video {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	v.ID = surrealmodels.RecordID{Table: "video", ID: id}
	if v.Code == "" {
		v.Code = fmt.Sprintf("C%05d", id)
	}
	s.videos[id] = &v
	cp := v
	return &cp
}

func (s *Store) GetVideo(ctx context.Context, id int64) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *Store) GetVideoByCode(ctx context.Context, code string) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.videos {
		if v.Code == strings.ToUpper(code) {
			cp := *v
			return &cp, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *Store) ListVideos(ctx context.Context, roomID int64) ([]models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Video{}
	for id := int64(1); id <= s.nextID; id++ {
		if v, ok := s.videos[id]; ok && v.Room == roomID {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (s *Store) BeginProcessing(ctx context.Context, id int64) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	if v.Status == models.VideoStatusProcessing {
		return nil, fmt.Errorf("video %d: %w", id, models.ErrAlreadyProcessing)
	}
	if err := v.Transition(models.VideoStatusProcessing); err != nil {
		return nil, err
	}
	v.Stage = nil
	cp := *v
	return &cp, nil
}

func (s *Store) FailInterrupted(ctx context.Context, msg string) ([]models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Video{}
	for id := int64(1); id <= s.nextID; id++ {
		v, ok := s.videos[id]
		if !ok || v.Status != models.VideoStatusProcessing {
			continue
		}
		if err := v.Fail(msg); err != nil {
			return nil, err
		}
		v.UpdatedAt = time.Now().UTC()
		out = append(out, *v)
	}
	return out, nil
}

func (s *Store) SetStage(ctx context.Context, id int64, stage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages = append(s.stages, stage)
	if v, ok := s.videos[id]; ok && v.Status == models.VideoStatusProcessing {
		v.Stage = &stage
	}
	return nil
}

func (s *Store) SaveVideo(ctx context.Context, v *models.Video) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return nil, s.SaveErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := models.MustRecordIDInt(v.ID)
	cur, ok := s.videos[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	if cur.Status != models.VideoStatusProcessing {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, cur.Status, v.Status)
	}
	cp := *v
	cp.Watched = cur.Watched
	s.videos[id] = &cp
	out := cp
	return &out, nil
}

func (s *Store) SetWatched(ctx context.Context, id int64, watched bool) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	v.Watched = watched
	cp := *v
	return &cp, nil
}

func (s *Store) DeleteVideo(ctx context.Context, id int64) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	delete(s.videos, id)
	return v, nil
}

func (s *Store) CreateCookie(ctx context.Context, encrypted string, expiresAt *time.Time) (*models.CookieRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &models.CookieRecord{
		ID:        surrealmodels.RecordID{Table: "cookie", ID: fmt.Sprintf("c%d", len(s.cookies)+1)},
		Encrypted: encrypted,
		SavedAt:   time.Now(),
		ExpiresAt: expiresAt,
		Valid:     true,
	}
	s.cookies = append(s.cookies, rec)
	cp := *rec
	return &cp, nil
}

func (s *Store) LatestCookie(ctx context.Context) (*models.CookieRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cookies) == 0 {
		return nil, nil
	}
	cp := *s.cookies[len(s.cookies)-1]
	return &cp, nil
}

func (s *Store) MarkCookieInvalid(ctx context.Context, id string) error {
	return s.updateCookie(id, func(r *models.CookieRecord) { r.Valid = false })
}

func (s *Store) TouchCookie(ctx context.Context, id string) error {
	now := time.Now()
	return s.updateCookie(id, func(r *models.CookieRecord) { r.LastChecked = &now })
}

func (s *Store) updateCookie(id string, fn func(*models.CookieRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.cookies {
		if r.ID.ID == id {
			fn(r)
			return nil
		}
	}
	return db.ErrNotFound
}

// Stages returns every stage recorded by SetStage, in order.
func (s *Store) Stages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.stages...)
}

// CookieCount returns the number of stored credentials.
func (s *Store) CookieCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cookies)
}
