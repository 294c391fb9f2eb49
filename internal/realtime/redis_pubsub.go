package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	groupChannelPrefix = "qa:group:"
	globalChannel      = "qa:all"
	eventTTL           = 5 * time.Second
)

// redisPayload is the message published to Redis for cross-instance broadcast.
type redisPayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	At    int64           `json:"at"`
}

// RedisPubSub implements RedisPublisher and RedisSubscriber using Redis pub/sub.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for hub events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	return &RedisPubSub{client: client, logger: logger}
}

// GroupChannel returns the Redis channel carrying a group's events.
func GroupChannel(group string) string {
	return groupChannelPrefix + group
}

// PublishGroupEvent publishes an event to the group's Redis channel.
func (r *RedisPubSub) PublishGroupEvent(group, event string, payload []byte) error {
	return r.publish(GroupChannel(group), event, payload)
}

// PublishGlobalEvent publishes an event meant for every connection.
func (r *RedisPubSub) PublishGlobalEvent(event string, payload []byte) error {
	return r.publish(globalChannel, event, payload)
}

func (r *RedisPubSub) publish(channel, event string, payload []byte) error {
	body, err := json.Marshal(redisPayload{Event: event, Data: payload, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventTTL)
	defer cancel()
	return r.client.Publish(ctx, channel, body).Err()
}

// SubscribeGroup subscribes to a group's channel and calls handler for each message.
func (r *RedisPubSub) SubscribeGroup(group string, handler func(event string, payload []byte)) (cancel func(), err error) {
	return r.subscribe(GroupChannel(group), handler)
}

// SubscribeGlobal subscribes to the channel of events for every connection.
func (r *RedisPubSub) SubscribeGlobal(handler func(event string, payload []byte)) (cancel func(), err error) {
	return r.subscribe(globalChannel, handler)
}

// subscribe returns a cancel function to stop the subscription.
func (r *RedisPubSub) subscribe(channel string, handler func(event string, payload []byte)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channel)
	_, err = pubsub.Receive(ctx)
	if err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var p redisPayload
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					r.logger.Warn("bad pubsub payload", zap.String("channel", channel), zap.Error(err))
					continue
				}
				handler(p.Event, p.Data)
			}
		}
	}()
	return cancelCtx, nil
}
