package party

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/fbparty-go/internal/models"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRooms map[string]int64

func (f fakeRooms) RoomByCode(ctx context.Context, code string) (*models.Room, error) {
	id, ok := f[strings.ToUpper(code)]
	if !ok {
		return nil, errors.New("not found")
	}
	return &models.Room{ID: surrealmodels.RecordID{Table: "room", ID: id}, Code: strings.ToUpper(code), Active: true}, nil
}

func newTestHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(fakeRooms{"ROOMAAAA": 1, "ROOMBBBB": 2}, nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg Message) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func recv(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// expectSilence asserts nothing arrives on conn for a short while.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	var msg Message
	err := conn.ReadJSON(&msg)
	require.Error(t, err, "unexpected message %+v", msg)
}

func join(t *testing.T, conn *websocket.Conn, code, name string) Message {
	t.Helper()
	send(t, conn, Message{Action: ActionJoinRoom, RoomCode: code, UserName: name})
	msg := recv(t, conn)
	require.Equal(t, EventJoined, msg.Action, "join failed: %s", msg.Error)
	return msg
}

func TestJoinRoom(t *testing.T) {
	hub, url := newTestHub(t)

	alice := dial(t, url)
	joined := join(t, alice, "roomaaaa", "alice")
	assert.Equal(t, int64(1), joined.RoomID)
	assert.Equal(t, "ROOMAAAA", joined.RoomCode)
	assert.Equal(t, 1, joined.Members)
	assert.NotEmpty(t, joined.UserID)

	bob := dial(t, url)
	join(t, bob, "ROOMAAAA", "bob")

	ev := recv(t, alice)
	assert.Equal(t, EventUserJoin, ev.Action)
	assert.Equal(t, "bob", ev.UserName)
	assert.Equal(t, 2, ev.Members)
	assert.Equal(t, 2, hub.Members(1))

	t.Run("unknown room", func(t *testing.T) {
		carol := dial(t, url)
		send(t, carol, Message{Action: ActionJoinRoom, RoomCode: "NOPE"})
		msg := recv(t, carol)
		assert.Equal(t, EventError, msg.Action)
		assert.Equal(t, "room not found", msg.Error)
	})
}

func TestRelayExcludesSender(t *testing.T) {
	hub, url := newTestHub(t)

	alice, bob, other := dial(t, url), dial(t, url), dial(t, url)
	join(t, alice, "ROOMAAAA", "alice")
	join(t, bob, "ROOMAAAA", "bob")
	recv(t, alice) // bob's user_join
	join(t, other, "ROOMBBBB", "other")

	at := 42.5
	vid := int64(7)
	tests := []struct {
		name  string
		msg   Message
		check func(t *testing.T, got Message)
	}{
		{
			name: "player event",
			msg:  Message{Action: ActionPlayerEvent, Type: PlayerSeek, CurrentTime: &at, VideoID: &vid},
			check: func(t *testing.T, got Message) {
				assert.Equal(t, ActionPlayerEvent, got.Action)
				assert.Equal(t, PlayerSeek, got.Type)
				require.NotNil(t, got.CurrentTime)
				assert.InDelta(t, 42.5, *got.CurrentTime, 0.001)
				assert.Equal(t, int64(7), *got.VideoID)
			},
		},
		{
			name: "chat message",
			msg:  Message{Action: ActionChatMessage, Message: "hola"},
			check: func(t *testing.T, got Message) {
				assert.Equal(t, ActionChatMessage, got.Action)
				assert.Equal(t, "hola", got.Message)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send(t, alice, tt.msg)

			got := recv(t, bob)
			tt.check(t, got)
			assert.Equal(t, "alice", got.UserName)
			assert.Equal(t, int64(1), got.RoomID)

			// The sender's next message is bob's answer, not its own echo.
			send(t, bob, Message{Action: ActionChatMessage, Message: "ack"})
			ack := recv(t, alice)
			assert.Equal(t, "ack", ack.Message)
			assert.Equal(t, "bob", ack.UserName)
		})
	}

	// Nothing relayed above reached the other room.
	hub.VideoStatus(&models.Video{ID: surrealmodels.RecordID{Table: "video", ID: int64(9)}, Room: 2, Status: models.VideoStatusFailed})
	assert.Equal(t, EventVideoStatus, recv(t, other).Action)
}

func TestRelayRejectsInvalidMessages(t *testing.T) {
	_, url := newTestHub(t)
	conn := dial(t, url)

	tests := []struct {
		name    string
		before  func()
		msg     Message
		wantErr string
	}{
		{name: "not joined", msg: Message{Action: ActionChatMessage, Message: "hi"}, wantErr: "join a room first"},
		{name: "unknown action", msg: Message{Action: "dance"}, wantErr: "unknown action dance"},
		{
			name:    "bad player type",
			before:  func() { join(t, conn, "ROOMAAAA", "") },
			msg:     Message{Action: ActionPlayerEvent, Type: "rewind"},
			wantErr: "unknown player event type rewind",
		},
		{name: "empty chat", msg: Message{Action: ActionChatMessage}, wantErr: "message is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.before != nil {
				tt.before()
			}
			send(t, conn, tt.msg)
			got := recv(t, conn)
			assert.Equal(t, EventError, got.Action)
			assert.Equal(t, tt.wantErr, got.Error)
		})
	}
}

func TestUserLeave(t *testing.T) {
	hub, url := newTestHub(t)

	alice, bob := dial(t, url), dial(t, url)
	join(t, alice, "ROOMAAAA", "alice")
	join(t, bob, "ROOMAAAA", "bob")
	recv(t, alice)

	require.NoError(t, bob.Close())

	ev := recv(t, alice)
	assert.Equal(t, EventUserLeave, ev.Action)
	assert.Equal(t, "bob", ev.UserName)
	assert.Equal(t, 1, ev.Members)
	assert.Equal(t, 1, hub.Members(1))
}

func TestSwitchingRoomsLeavesPrevious(t *testing.T) {
	hub, url := newTestHub(t)

	alice, bob := dial(t, url), dial(t, url)
	join(t, alice, "ROOMAAAA", "alice")
	join(t, bob, "ROOMAAAA", "bob")
	recv(t, alice)

	join(t, bob, "ROOMBBBB", "bob")
	ev := recv(t, alice)
	assert.Equal(t, EventUserLeave, ev.Action)
	assert.Equal(t, 1, hub.Members(1))
	assert.Equal(t, 1, hub.Members(2))
}

func TestVideoStatusReachesRoom(t *testing.T) {
	hub, url := newTestHub(t)

	alice, other := dial(t, url), dial(t, url)
	join(t, alice, "ROOMAAAA", "alice")
	join(t, other, "ROOMBBBB", "other")

	v := &models.Video{
		ID:     surrealmodels.RecordID{Table: "video", ID: int64(3)},
		Room:   1,
		Code:   "ABC123",
		Status: models.VideoStatusCompleted,
	}
	hub.VideoStatus(v)

	got := recv(t, alice)
	assert.Equal(t, EventVideoStatus, got.Action)
	require.NotNil(t, got.Video)
	assert.Equal(t, "ABC123", got.Video.Code)
	assert.Equal(t, models.VideoStatusCompleted, got.Video.Status)
	expectSilence(t, other)
}
