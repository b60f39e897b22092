package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Room groups videos watched together.
type Room struct {
	ID          surrealmodels.RecordID `json:"id"`
	Code        string                 `json:"code"`
	Name        string                 `json:"name"`
	Description *string                `json:"description,omitempty"`
	Active      bool                   `json:"active"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// IDInt returns the numeric record key.
func (r *Room) IDInt() int64 {
	return MustRecordIDInt(r.ID)
}

// RoomUpdate holds optional room changes; nil fields are left alone.
type RoomUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}
