package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/liveqa/backend/internal/models"
)

type fakeRooms struct {
	rooms map[uuid.UUID]*models.Room
	err   error
}

func (f *fakeRooms) GetRoomByID(_ context.Context, id uuid.UUID) (*models.Room, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rooms[id], nil
}

func testClient(h *Hub, rooms RoomLookup, userID uuid.UUID) *Client {
	c := newClient(h, rooms, userID, nil, zap.NewNop())
	h.Register(c)
	return c
}

// drain returns every queued message without blocking.
func drain(c *Client) []WSMessage {
	var out []WSMessage
	for {
		select {
		case m, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

func events(msgs []WSMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Event)
	}
	return out
}

func roomArgsJSON(id string) json.RawMessage {
	b, _ := json.Marshal(roomArgs{RoomID: id})
	return b
}

func TestHubGroupBroadcast(t *testing.T) {
	h := NewHub(zap.NewNop(), nil, nil)
	a := testClient(h, nil, uuid.Nil)
	b := testClient(h, nil, uuid.Nil)

	h.AddToGroup(a, "room-1")
	h.BroadcastToGroup("room-1", "Ping", map[string]int{"n": 1})

	got := drain(a)
	require.Len(t, got, 1)
	assert.Equal(t, "Ping", got[0].Event)
	assert.JSONEq(t, `{"n":1}`, string(got[0].Data))
	assert.Empty(t, drain(b))

	h.BroadcastToAll("Hello", nil)
	assert.Equal(t, []string{"Hello"}, events(drain(a)))
	assert.Equal(t, []string{"Hello"}, events(drain(b)))
}

func TestHubRemoveAndUnregister(t *testing.T) {
	h := NewHub(zap.NewNop(), nil, nil)
	a := testClient(h, nil, uuid.Nil)

	h.AddToGroup(a, "room-1")
	h.AddToGroup(a, "room-2")
	assert.Equal(t, 1, h.GroupSize("room-1"))

	h.RemoveFromGroup(a, "room-1")
	h.RemoveFromGroup(a, "room-1")
	assert.Equal(t, 0, h.GroupSize("room-1"))

	h.Unregister(a)
	assert.Equal(t, 0, h.GroupSize("room-2"))
	assert.Equal(t, 0, h.ClientCount())
	_, open := <-a.send
	assert.False(t, open)

	// No panic on repeat or on late membership changes.
	h.Unregister(a)
	h.AddToGroup(a, "room-3")
	assert.Equal(t, 0, h.GroupSize("room-3"))
}

func TestDeliverDropsWhenBufferFull(t *testing.T) {
	h := NewHub(zap.NewNop(), nil, nil)
	a := testClient(h, nil, uuid.Nil)
	for i := 0; i < cap(a.send)+10; i++ {
		h.BroadcastToAll("Flood", i)
	}
	assert.Len(t, drain(a), cap(a.send))
}

func TestJoinAndLeaveRoom(t *testing.T) {
	h := NewHub(zap.NewNop(), nil, nil)
	a := testClient(h, nil, uuid.Nil)
	roomID := uuid.New()
	ctx := context.Background()

	require.NoError(t, a.invoke(ctx, WSMessage{Event: MethodJoinRoom, Data: roomArgsJSON(roomID.String())}))
	assert.Equal(t, 1, h.GroupSize(GroupName(roomID)))

	require.NoError(t, a.invoke(ctx, WSMessage{Event: MethodLeaveRoom, Data: roomArgsJSON(roomID.String())}))
	assert.Equal(t, 0, h.GroupSize(GroupName(roomID)))

	err := a.invoke(ctx, WSMessage{Event: MethodJoinRoom, Data: roomArgsJSON("not-a-guid")})
	assert.EqualError(t, err, "Invalid room ID.")

	err = a.invoke(ctx, WSMessage{Event: "Shout"})
	assert.EqualError(t, err, "Unknown method 'Shout'.")
}

func TestJoinRoomAsOwner(t *testing.T) {
	owner, other := uuid.New(), uuid.New()
	room := &models.Room{ID: uuid.New(), FriendlyName: "Owners", CreatedByUserID: owner}
	rooms := &fakeRooms{rooms: map[uuid.UUID]*models.Room{room.ID: room}}
	ctx := context.Background()

	tests := []struct {
		name    string
		userID  uuid.UUID
		roomID  string
		lookup  error
		wantErr string
	}{
		{name: "anonymous", userID: uuid.Nil, roomID: room.ID.String(), wantErr: "User is not authenticated."},
		{name: "bad id", userID: owner, roomID: "nope", wantErr: "Invalid room ID."},
		{name: "missing room", userID: owner, roomID: uuid.NewString(), wantErr: "Room not found."},
		{name: "not owner", userID: other, roomID: room.ID.String(), wantErr: "You are not the owner of this room."},
		{name: "lookup failure", userID: owner, roomID: room.ID.String(), lookup: errors.New("db down"), wantErr: "Room lookup failed."},
		{name: "owner", userID: owner, roomID: room.ID.String()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHub(zap.NewNop(), nil, nil)
			rooms.err = tt.lookup
			c := testClient(h, rooms, tt.userID)

			err := c.invoke(ctx, WSMessage{Event: MethodJoinRoomAsOwner, Data: roomArgsJSON(tt.roomID)})
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				assert.Equal(t, 0, h.GroupSize(OwnerGroupName(room.ID)))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, h.GroupSize(GroupName(room.ID)))
			assert.Equal(t, 1, h.GroupSize(OwnerGroupName(room.ID)))

			require.NoError(t, c.invoke(ctx, WSMessage{Event: MethodLeaveRoomAsOwner, Data: roomArgsJSON(tt.roomID)}))
			assert.Equal(t, 0, h.GroupSize(GroupName(room.ID)))
			assert.Equal(t, 0, h.GroupSize(OwnerGroupName(room.ID)))
		})
	}
}

type published struct {
	channel string
	event   string
	payload []byte
}

// memPubSub routes published events to subscribers synchronously.
type memPubSub struct {
	mu       sync.Mutex
	sent     []published
	handlers map[string]func(string, []byte)
}

func newMemPubSub() *memPubSub {
	return &memPubSub{handlers: make(map[string]func(string, []byte))}
}

func (m *memPubSub) PublishGroupEvent(group, event string, payload []byte) error {
	return m.publish(GroupChannel(group), event, payload)
}

func (m *memPubSub) PublishGlobalEvent(event string, payload []byte) error {
	return m.publish(globalChannel, event, payload)
}

func (m *memPubSub) publish(channel, event string, payload []byte) error {
	m.mu.Lock()
	m.sent = append(m.sent, published{channel: channel, event: event, payload: payload})
	handler := m.handlers[channel]
	m.mu.Unlock()
	if handler != nil {
		handler(event, payload)
	}
	return nil
}

func (m *memPubSub) SubscribeGroup(group string, handler func(string, []byte)) (func(), error) {
	return m.subscribe(GroupChannel(group), handler)
}

func (m *memPubSub) SubscribeGlobal(handler func(string, []byte)) (func(), error) {
	return m.subscribe(globalChannel, handler)
}

func (m *memPubSub) subscribe(channel string, handler func(string, []byte)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[channel] = handler
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.handlers, channel)
	}, nil
}

func (m *memPubSub) subscribed(channel string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handlers[channel]
	return ok
}

func TestHubWithRedisDeliversOnceViaSubscription(t *testing.T) {
	ps := newMemPubSub()
	h := NewHub(zap.NewNop(), ps, ps)
	a := testClient(h, nil, uuid.Nil)
	assert.True(t, ps.subscribed(globalChannel))

	h.AddToGroup(a, "room-x")
	assert.True(t, ps.subscribed(GroupChannel("room-x")))

	h.PublishToGroup("room-x", "Ping", "hi")
	got := drain(a)
	require.Len(t, got, 1)
	assert.JSONEq(t, `"hi"`, string(got[0].Data))

	h.PublishToAll("Hello", 1)
	assert.Equal(t, []string{"Hello"}, events(drain(a)))
	assert.Len(t, ps.sent, 2)

	h.RemoveFromGroup(a, "room-x")
	assert.False(t, ps.subscribed(GroupChannel("room-x")))
	h.Unregister(a)
	assert.False(t, ps.subscribed(globalChannel))
}

// flakySub fails the first failures subscribe calls, then behaves like memPubSub.
type flakySub struct {
	*memPubSub
	mu       sync.Mutex
	failures int
}

func (f *flakySub) fail() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return true
	}
	return false
}

func (f *flakySub) SubscribeGroup(group string, handler func(string, []byte)) (func(), error) {
	if f.fail() {
		return nil, errors.New("redis: connection refused")
	}
	return f.memPubSub.SubscribeGroup(group, handler)
}

func (f *flakySub) SubscribeGlobal(handler func(string, []byte)) (func(), error) {
	if f.fail() {
		return nil, errors.New("redis: connection refused")
	}
	return f.memPubSub.SubscribeGlobal(handler)
}

func TestHubRetriesFailedGroupSubscription(t *testing.T) {
	ps := newMemPubSub()
	sub := &flakySub{memPubSub: ps}
	h := NewHub(zap.NewNop(), ps, sub)
	a := testClient(h, nil, uuid.Nil)
	b := testClient(h, nil, uuid.Nil)

	sub.failures = 1
	h.AddToGroup(a, "room-x")
	assert.False(t, ps.subscribed(GroupChannel("room-x")))

	h.PublishToGroup("room-x", "Ping", 1)
	assert.Equal(t, []string{"Ping"}, events(drain(a)), "members are served locally without a subscription")

	h.AddToGroup(b, "room-x")
	assert.True(t, ps.subscribed(GroupChannel("room-x")))

	h.PublishToGroup("room-x", "Ping", 2)
	assert.Equal(t, []string{"Ping"}, events(drain(a)))
	assert.Equal(t, []string{"Ping"}, events(drain(b)))
}

func TestHubRetriesFailedGlobalSubscription(t *testing.T) {
	ps := newMemPubSub()
	sub := &flakySub{memPubSub: ps, failures: 1}
	h := NewHub(zap.NewNop(), ps, sub)
	a := testClient(h, nil, uuid.Nil)
	assert.False(t, ps.subscribed(globalChannel))

	h.PublishToAll("Hello", 1)
	assert.Equal(t, []string{"Hello"}, events(drain(a)))

	b := testClient(h, nil, uuid.Nil)
	assert.True(t, ps.subscribed(globalChannel))
	h.PublishToAll("Hello", 2)
	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)
}

type failingPub struct{}

func (failingPub) PublishGroupEvent(string, string, []byte) error { return errors.New("redis down") }
func (failingPub) PublishGlobalEvent(string, []byte) error        { return errors.New("redis down") }

func TestHubDeliversLocallyWhenPublishFails(t *testing.T) {
	ps := newMemPubSub()
	h := NewHub(zap.NewNop(), failingPub{}, ps)
	a := testClient(h, nil, uuid.Nil)
	h.AddToGroup(a, "room-x")
	require.True(t, ps.subscribed(GroupChannel("room-x")))

	h.PublishToGroup("room-x", "Ping", "hi")
	got := drain(a)
	require.Len(t, got, 1)
	assert.JSONEq(t, `"hi"`, string(got[0].Data))

	h.PublishToAll("Hello", 1)
	assert.Equal(t, []string{"Hello"}, events(drain(a)))
}

// inspectingSub reads hub state from inside the subscribe call, which only
// works when the hub does not hold its lock across the Redis round trip.
type inspectingSub struct {
	*memPubSub
	hub  *Hub
	seen []int
}

func (s *inspectingSub) SubscribeGroup(group string, handler func(string, []byte)) (func(), error) {
	s.seen = append(s.seen, s.hub.GroupSize(group))
	return s.memPubSub.SubscribeGroup(group, handler)
}

func (s *inspectingSub) SubscribeGlobal(handler func(string, []byte)) (func(), error) {
	s.seen = append(s.seen, s.hub.ClientCount())
	return s.memPubSub.SubscribeGlobal(handler)
}

func TestHubSubscribesWithoutHoldingLock(t *testing.T) {
	ps := newMemPubSub()
	sub := &inspectingSub{memPubSub: ps}
	h := NewHub(zap.NewNop(), ps, sub)
	sub.hub = h

	done := make(chan struct{})
	go func() {
		defer close(done)
		a := testClient(h, nil, uuid.Nil)
		h.AddToGroup(a, "room-x")
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe blocked on the hub lock")
	}
	assert.Equal(t, []int{1, 1}, sub.seen)
}
