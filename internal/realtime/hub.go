package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/liveqa/backend/internal/metrics"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Hub tracks connections and their group memberships and delivers events.
// With Redis configured, events are published and each instance delivers them
// to its local members from its subscription. Groups whose subscription could
// not be established are served locally until a later join re-subscribes.
type Hub struct {
	clients    map[string]*Client
	groups     map[string]map[string]*Client
	subs       map[string]func() // cancel Redis subscription per group
	pending    map[string]bool   // group subscriptions in flight
	allSub     func()
	allPending bool
	mu         sync.RWMutex
	logger     *zap.Logger
	redis      RedisPublisher
	redisSub   RedisSubscriber
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishGroupEvent(group, event string, payload []byte) error
	PublishGlobalEvent(event string, payload []byte) error
}

// RedisSubscriber subscribes to group and global channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeGroup(group string, handler func(event string, payload []byte)) (cancel func(), err error)
	SubscribeGlobal(handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. Both Redis arguments may be nil for a single instance.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		groups:   make(map[string]map[string]*Client),
		subs:     make(map[string]func()),
		pending:  make(map[string]bool),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a connection and makes sure the global subscription is running.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	metrics.WSConnections.Inc()
	h.logger.Debug("client connected", zap.String("client_id", c.ID))
	h.ensureGlobalSubscription()
}

// Unregister removes a connection from the hub and from every group, then
// closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	var cancels []func()
	for group := range c.groups {
		if cancel := h.removeLocked(c, group); cancel != nil {
			cancels = append(cancels, cancel)
		}
	}
	if len(h.clients) == 0 && h.allSub != nil {
		cancels = append(cancels, h.allSub)
		h.allSub = nil
	}
	close(c.send)
	h.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	metrics.WSConnections.Dec()
	h.logger.Debug("client disconnected", zap.String("client_id", c.ID))
}

// AddToGroup adds a connection to a group and makes sure the group's Redis
// subscription is running.
func (h *Hub) AddToGroup(c *Client, group string) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	if h.groups[group] == nil {
		h.groups[group] = make(map[string]*Client)
	}
	h.groups[group][c.ID] = c
	c.groups[group] = struct{}{}
	h.mu.Unlock()
	h.ensureGroupSubscription(group)
}

// RemoveFromGroup removes a connection from a group. Removing a non-member is a no-op.
func (h *Hub) RemoveFromGroup(c *Client, group string) {
	h.mu.Lock()
	cancel := h.removeLocked(c, group)
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// removeLocked drops c from group and returns the subscription cancel to run
// once the lock is released when the group became empty.
func (h *Hub) removeLocked(c *Client, group string) func() {
	delete(c.groups, group)
	m, ok := h.groups[group]
	if !ok {
		return nil
	}
	delete(m, c.ID)
	if len(m) > 0 {
		return nil
	}
	delete(h.groups, group)
	cancel := h.subs[group]
	delete(h.subs, group)
	return cancel
}

// ensureGroupSubscription subscribes to group's channel when it has local
// members and no subscription. The Redis round trip runs without the lock.
func (h *Hub) ensureGroupSubscription(group string) {
	h.mu.Lock()
	if h.redisSub == nil || h.subs[group] != nil || h.pending[group] || len(h.groups[group]) == 0 {
		h.mu.Unlock()
		return
	}
	h.pending[group] = true
	h.mu.Unlock()

	cancel, err := h.redisSub.SubscribeGroup(group, func(event string, payload []byte) {
		h.BroadcastToGroup(group, event, json.RawMessage(payload))
	})

	h.mu.Lock()
	delete(h.pending, group)
	if err == nil && len(h.groups[group]) > 0 {
		h.subs[group] = cancel
		cancel = nil
	}
	h.mu.Unlock()

	if err != nil {
		h.logger.Warn("redis group subscribe failed", zap.String("group", group), zap.Error(err))
		return
	}
	if cancel != nil {
		cancel()
	}
}

// ensureGlobalSubscription is the global-channel counterpart of ensureGroupSubscription.
func (h *Hub) ensureGlobalSubscription() {
	h.mu.Lock()
	if h.redisSub == nil || h.allSub != nil || h.allPending || len(h.clients) == 0 {
		h.mu.Unlock()
		return
	}
	h.allPending = true
	h.mu.Unlock()

	cancel, err := h.redisSub.SubscribeGlobal(func(event string, payload []byte) {
		h.BroadcastToAll(event, json.RawMessage(payload))
	})

	h.mu.Lock()
	h.allPending = false
	if err == nil && len(h.clients) > 0 {
		h.allSub = cancel
		cancel = nil
	}
	h.mu.Unlock()

	if err != nil {
		h.logger.Warn("redis global subscribe failed", zap.Error(err))
		return
	}
	if cancel != nil {
		cancel()
	}
}

// BroadcastToGroup sends a message to the local members of a group.
func (h *Hub) BroadcastToGroup(group, event string, payload interface{}) {
	msg, ok := h.message(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.groups[group] {
		c.deliver(msg)
	}
}

// BroadcastToAll sends a message to every local connection.
func (h *Hub) BroadcastToAll(event string, payload interface{}) {
	msg, ok := h.message(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.deliver(msg)
	}
}

// PublishToGroup delivers an event to a group on every instance. Local members
// are served directly when the publish fails or the group has no subscription.
func (h *Hub) PublishToGroup(group, event string, payload interface{}) {
	metrics.RealtimeEvents.WithLabelValues(event).Inc()
	if h.redis == nil {
		h.BroadcastToGroup(group, event, payload)
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("marshal event", zap.String("event", event), zap.Error(err))
		return
	}
	if err := h.redis.PublishGroupEvent(group, event, data); err != nil {
		h.logger.Warn("redis publish failed, delivering locally", zap.String("group", group), zap.String("event", event), zap.Error(err))
		h.BroadcastToGroup(group, event, json.RawMessage(data))
		return
	}
	if !h.groupSubscribed(group) {
		h.BroadcastToGroup(group, event, json.RawMessage(data))
	}
}

// PublishToAll delivers an event to every connection on every instance.
func (h *Hub) PublishToAll(event string, payload interface{}) {
	metrics.RealtimeEvents.WithLabelValues(event).Inc()
	if h.redis == nil {
		h.BroadcastToAll(event, payload)
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("marshal event", zap.String("event", event), zap.Error(err))
		return
	}
	if err := h.redis.PublishGlobalEvent(event, data); err != nil {
		h.logger.Warn("redis publish failed, delivering locally", zap.String("event", event), zap.Error(err))
		h.BroadcastToAll(event, json.RawMessage(data))
		return
	}
	if !h.globalSubscribed() {
		h.BroadcastToAll(event, json.RawMessage(data))
	}
}

func (h *Hub) groupSubscribed(group string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.redisSub != nil && h.subs[group] != nil
}

func (h *Hub) globalSubscribed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.redisSub != nil && h.allSub != nil
}

// GroupSize returns the number of local members of a group.
func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

// ClientCount returns the number of local connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) message(event string, payload interface{}) (WSMessage, bool) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			h.logger.Error("marshal event", zap.String("event", event), zap.Error(err))
			return WSMessage{}, false
		}
	}
	return WSMessage{Event: event, Data: data}, true
}
