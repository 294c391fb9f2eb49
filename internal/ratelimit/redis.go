package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "qa:ratelimit:"

// Redis shares the submission window across server instances. Each allowed
// submission sets a key that expires after the window.
type Redis struct {
	client redis.Cmdable
	window time.Duration
	logger *zap.Logger
}

// NewRedis creates a Redis-backed limiter. A non-positive window uses DefaultWindow.
func NewRedis(client redis.Cmdable, window time.Duration, logger *zap.Logger) *Redis {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, window: window, logger: logger}
}

// TryConsume reports whether clientID may submit now. Redis failures let the
// submission through.
func (r *Redis) TryConsume(ctx context.Context, clientID string) bool {
	ok, err := r.client.SetNX(ctx, keyPrefix+clientID, time.Now().UnixMilli(), r.window).Result()
	if err != nil {
		r.logger.Warn("rate limiter unavailable, allowing submission",
			zap.String("client_id", clientID), zap.Error(err))
		return true
	}
	return ok
}
