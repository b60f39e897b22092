// Package party relays playback and chat between members of a watch-party
// room over websockets, and pushes acquisition results to them.
package party

import (
	"github.com/raphaelgruber/fbparty-go/internal/api"
)

// Client actions.
const (
	ActionJoinRoom    = "join_room"
	ActionPlayerEvent = "player_event"
	ActionChatMessage = "chat_message"
)

// Server events.
const (
	EventJoined      = "joined"
	EventUserJoin    = "user_join"
	EventUserLeave   = "user_leave"
	EventVideoStatus = "video_status"
	EventError       = "error"
)

// Player event types.
const (
	PlayerPlay          = "play"
	PlayerPause         = "pause"
	PlayerSeek          = "seek"
	PlayerEpisodeChange = "episode_change"
)

var playerTypes = map[string]bool{
	PlayerPlay:          true,
	PlayerPause:         true,
	PlayerSeek:          true,
	PlayerEpisodeChange: true,
}

// Message is the JSON envelope exchanged in both directions. Action names
// what the client asked for or which event the server emits.
type Message struct {
	Action string `json:"action"`

	RoomCode string `json:"roomCode,omitempty"`
	RoomID   int64  `json:"roomId,omitempty"`
	UserID   string `json:"userId,omitempty"`
	UserName string `json:"userName,omitempty"`

	Type        string   `json:"type,omitempty"`
	CurrentTime *float64 `json:"currentTime,omitempty"`
	VideoID     *int64   `json:"videoId,omitempty"`

	Message string `json:"message,omitempty"`

	Video   *api.Video `json:"video,omitempty"`
	Members int        `json:"members,omitempty"`
	Error   string     `json:"error,omitempty"`

	Timestamp int64 `json:"timestamp,omitempty"`
}
