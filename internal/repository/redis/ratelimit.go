package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "ratelimit:"

// RateLimiter throttles websocket handshake attempts per user in a
// fixed one-minute window. It only answers allow or deny; a refused
// handshake carries no retry metadata.
type RateLimiter struct {
	client            *Client
	requestsPerMinute int
	burst             int
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client *Client, requestsPerMinute, burst int) *RateLimiter {
	return &RateLimiter{
		client:            client,
		requestsPerMinute: requestsPerMinute,
		burst:             burst,
	}
}

// Allow reports whether another handshake attempt fits this key's window
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	fullKey := rateLimitPrefix + key

	pipe := r.client.rdb.Pipeline()
	incrCmd := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, time.Minute)

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return false, fmt.Errorf("failed to execute rate limit check: %w", err)
	}

	return incrCmd.Val() <= int64(r.requestsPerMinute+r.burst), nil
}
