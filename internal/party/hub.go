package party

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/fbparty-go/internal/api"
	"github.com/raphaelgruber/fbparty-go/internal/models"
)

// RoomResolver looks up joinable rooms.
type RoomResolver interface {
	RoomByCode(ctx context.Context, code string) (*models.Room, error)
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	// Players are embedded on other origins.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub tracks connected members per room.
type Hub struct {
	rooms  RoomResolver
	logger *slog.Logger

	mu      sync.RWMutex
	members map[int64]map[*client]struct{}
	conns   map[*client]struct{}
	closed  bool
}

// NewHub creates a hub resolving join requests through rooms.
func NewHub(rooms RoomResolver, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:   rooms,
		logger:  logger,
		members: make(map[int64]map[*client]struct{}),
		conns:   make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		id:   uuid.New().String(),
	}
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	h.logger.Debug("websocket connected", "client_id", c.id, "remote", r.RemoteAddr)

	go c.writePump()
	c.readPump()
}

// VideoStatus pushes a video that reached a terminal state to its room.
func (h *Hub) VideoStatus(v *models.Video) {
	h.broadcast(v.Room, nil, Message{
		Action:    EventVideoStatus,
		RoomID:    v.Room,
		Video:     api.FromVideo(v),
		Timestamp: time.Now().UnixMilli(),
	})
}

// Members returns the number of members joined to a room.
func (h *Hub) Members(roomID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members[roomID])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*client, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = c.conn.Close()
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c] = struct{}{}
	return true
}

// unregister drops c and, if it had joined a room, tells the others.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.conns[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c)
	close(c.send)
	roomID := c.room
	if roomID != 0 {
		h.leaveLocked(c)
	}
	h.mu.Unlock()

	if roomID != 0 {
		h.broadcast(roomID, nil, Message{
			Action:    EventUserLeave,
			RoomID:    roomID,
			UserID:    c.id,
			UserName:  c.name,
			Members:   h.Members(roomID),
			Timestamp: time.Now().UnixMilli(),
		})
		h.logger.Info("member left room", "room_id", roomID, "client_id", c.id)
	}
}

func (h *Hub) leaveLocked(c *client) {
	set := h.members[c.room]
	delete(set, c)
	if len(set) == 0 {
		delete(h.members, c.room)
	}
	c.room = 0
}

// join moves c into the room with code. The client learns the outcome
// before the rest of the room does.
func (h *Hub) join(ctx context.Context, c *client, msg Message) {
	room, err := h.rooms.RoomByCode(ctx, msg.RoomCode)
	if err != nil {
		c.reply(Message{Action: EventError, Error: "room not found"})
		return
	}
	roomID := room.IDInt()

	name := msg.UserName
	if name == "" {
		name = "guest-" + c.id[:4]
	}

	h.mu.Lock()
	prev := c.room
	if prev == roomID {
		h.mu.Unlock()
		c.reply(Message{Action: EventJoined, RoomID: roomID, RoomCode: room.Code, UserID: c.id, UserName: c.name, Members: h.Members(roomID)})
		return
	}
	if prev != 0 {
		h.leaveLocked(c)
	}
	c.room, c.name = roomID, name
	if h.members[roomID] == nil {
		h.members[roomID] = make(map[*client]struct{})
	}
	h.members[roomID][c] = struct{}{}
	members := len(h.members[roomID])
	h.mu.Unlock()

	if prev != 0 {
		h.broadcast(prev, c, Message{Action: EventUserLeave, RoomID: prev, UserID: c.id, UserName: name, Members: h.Members(prev), Timestamp: time.Now().UnixMilli()})
	}

	c.reply(Message{Action: EventJoined, RoomID: roomID, RoomCode: room.Code, UserID: c.id, UserName: name, Members: members})
	h.broadcast(roomID, c, Message{
		Action:    EventUserJoin,
		RoomID:    roomID,
		UserID:    c.id,
		UserName:  name,
		Members:   members,
		Timestamp: time.Now().UnixMilli(),
	})
	h.logger.Info("member joined room", "room_id", roomID, "client_id", c.id, "members", members)
}

// relay forwards a player event or chat message to the sender's room.
func (h *Hub) relay(c *client, msg Message) {
	h.mu.RLock()
	roomID, name := c.room, c.name
	h.mu.RUnlock()
	if roomID == 0 {
		c.reply(Message{Action: EventError, Error: "join a room first"})
		return
	}

	out := Message{
		Action:    msg.Action,
		RoomID:    roomID,
		UserID:    c.id,
		UserName:  name,
		Timestamp: time.Now().UnixMilli(),
	}
	switch msg.Action {
	case ActionPlayerEvent:
		if !playerTypes[msg.Type] {
			c.reply(Message{Action: EventError, Error: "unknown player event type " + msg.Type})
			return
		}
		out.Type, out.CurrentTime, out.VideoID = msg.Type, msg.CurrentTime, msg.VideoID
	case ActionChatMessage:
		if msg.Message == "" {
			c.reply(Message{Action: EventError, Error: "message is required"})
			return
		}
		out.Message = msg.Message
	}
	h.broadcast(roomID, c, out)
}

// broadcast sends msg to every member of roomID except skip. Members whose
// buffer is full are disconnected.
func (h *Hub) broadcast(roomID int64, skip *client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode websocket message", "action", msg.Action, "error", err)
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.members[roomID] {
		if c == skip {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client", "room_id", roomID, "client_id", c.id)
		_ = c.conn.Close()
	}
}
