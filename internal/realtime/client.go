package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/liveqa/backend/internal/metrics"
	"github.com/liveqa/backend/internal/models"
	"github.com/liveqa/backend/pkg/response"
)

// Client invocations.
const (
	MethodJoinRoom         = "JoinRoom"
	MethodLeaveRoom        = "LeaveRoom"
	MethodJoinRoomAsOwner  = "JoinRoomAsOwner"
	MethodLeaveRoomAsOwner = "LeaveRoomAsOwner"
	MethodJoinQueue        = "JoinQueue"
	MethodLeaveQueue       = "LeaveQueue"
	MethodJoinAllQueues    = "JoinAllQueues"
	MethodLeaveAllQueues   = "LeaveAllQueues"

	// EventCompletion answers every invocation, echoing its id.
	EventCompletion = "Completion"
)

const invokeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced on the HTTP API; the hub is public
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	ID    string          `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

type roomArgs struct {
	RoomID string `json:"room_id"`
}

type queueArgs struct {
	QueueID string `json:"queue_id"`
}

// RoomLookup resolves rooms for owner joins. qa.RoomService satisfies it.
type RoomLookup interface {
	GetRoomByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
}

// TokenValidator returns the user id carried by an access token.
type TokenValidator func(token string) (uuid.UUID, error)

// Client represents a single WebSocket connection.
type Client struct {
	ID     string
	UserID uuid.UUID // uuid.Nil for anonymous participants
	hub    *Hub
	rooms  RoomLookup
	conn   *websocket.Conn
	send   chan WSMessage
	groups map[string]struct{} // guarded by hub.mu
	logger *zap.Logger
}

func newClient(hub *Hub, rooms RoomLookup, userID uuid.UUID, conn *websocket.Conn, logger *zap.Logger) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		hub:    hub,
		rooms:  rooms,
		conn:   conn,
		send:   make(chan WSMessage, 256),
		groups: make(map[string]struct{}),
		logger: logger,
	}
}

// ServeWs handles the WebSocket upgrade and runs the client loop. token
// extracts the access token from the request; an empty token means an
// anonymous connection, an invalid one is rejected with 401.
func ServeWs(hub *Hub, rooms RoomLookup, token func(*http.Request) string, validate TokenValidator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := uuid.Nil
		if t := token(c.Request); t != "" {
			id, err := validate(t)
			if err != nil {
				response.Unauthorized(c, "invalid token")
				return
			}
			userID = id
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := newClient(hub, rooms, userID, conn, logger)
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", zap.String("client_id", c.ID), zap.Error(err))
			}
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		ctx, cancel := context.WithTimeout(context.Background(), invokeTimeout)
		err := c.invoke(ctx, msg)
		cancel()

		reply := WSMessage{ID: msg.ID, Event: EventCompletion}
		if err != nil {
			reply.Error = err.Error()
		}
		c.deliver(reply)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// deliver queues msg without blocking. A full buffer drops the message.
func (c *Client) deliver(msg WSMessage) {
	select {
	case c.send <- msg:
	default:
		metrics.DroppedMessages.Inc()
		c.logger.Debug("send buffer full, dropping message", zap.String("client_id", c.ID), zap.String("event", msg.Event))
	}
}

// invoke runs one client method. The returned error text is sent back to the caller.
func (c *Client) invoke(ctx context.Context, msg WSMessage) error {
	switch msg.Event {
	case MethodJoinRoom:
		roomID, err := parseRoomArgs(msg.Data)
		if err != nil {
			return err
		}
		c.hub.AddToGroup(c, GroupName(roomID))
	case MethodLeaveRoom:
		roomID, err := parseRoomArgs(msg.Data)
		if err != nil {
			return err
		}
		c.hub.RemoveFromGroup(c, GroupName(roomID))
	case MethodJoinRoomAsOwner:
		return c.joinAsOwner(ctx, msg.Data)
	case MethodLeaveRoomAsOwner:
		roomID, err := parseRoomArgs(msg.Data)
		if err != nil {
			return err
		}
		c.hub.RemoveFromGroup(c, OwnerGroupName(roomID))
		c.hub.RemoveFromGroup(c, GroupName(roomID))
	case MethodJoinQueue:
		queueID, err := parseQueueArgs(msg.Data)
		if err != nil {
			return err
		}
		c.hub.AddToGroup(c, QueueGroupName(queueID))
	case MethodLeaveQueue:
		queueID, err := parseQueueArgs(msg.Data)
		if err != nil {
			return err
		}
		c.hub.RemoveFromGroup(c, QueueGroupName(queueID))
	case MethodJoinAllQueues:
		c.hub.AddToGroup(c, AllQueuesGroup)
	case MethodLeaveAllQueues:
		c.hub.RemoveFromGroup(c, AllQueuesGroup)
	default:
		return fmt.Errorf("Unknown method '%s'.", msg.Event)
	}
	return nil
}

func (c *Client) joinAsOwner(ctx context.Context, data json.RawMessage) error {
	if c.UserID == uuid.Nil {
		return errors.New("User is not authenticated.")
	}
	roomID, err := parseRoomArgs(data)
	if err != nil {
		return err
	}
	room, err := c.rooms.GetRoomByID(ctx, roomID)
	if err != nil {
		c.logger.Error("owner join room lookup failed", zap.String("room_id", roomID.String()), zap.Error(err))
		return errors.New("Room lookup failed.")
	}
	if room == nil {
		return errors.New("Room not found.")
	}
	if !room.IsOwnedBy(c.UserID) {
		return errors.New("You are not the owner of this room.")
	}
	c.hub.AddToGroup(c, GroupName(roomID))
	c.hub.AddToGroup(c, OwnerGroupName(roomID))
	c.logger.Debug("owner joined room", zap.String("client_id", c.ID), zap.String("room_id", roomID.String()))
	return nil
}

func parseRoomArgs(data json.RawMessage) (uuid.UUID, error) {
	var args roomArgs
	if len(data) == 0 || json.Unmarshal(data, &args) != nil {
		return uuid.Nil, errors.New("Invalid room ID.")
	}
	id, err := uuid.Parse(args.RoomID)
	if err != nil {
		return uuid.Nil, errors.New("Invalid room ID.")
	}
	return id, nil
}

func parseQueueArgs(data json.RawMessage) (uuid.UUID, error) {
	var args queueArgs
	if len(data) == 0 || json.Unmarshal(data, &args) != nil {
		return uuid.Nil, errors.New("Invalid queue ID.")
	}
	id, err := uuid.Parse(args.QueueID)
	if err != nil {
		return uuid.Nil, errors.New("Invalid queue ID.")
	}
	return id, nil
}
