package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares fixed-window counters between instances through Redis.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter constructs a RedisLimiter.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: strings.TrimSpace(prefix)}
}

// Allow increments the window counter for key and expires it one window after it ends.
func (l *RedisLimiter) Allow(ctx context.Context, key string, policy Policy, now time.Time) (Result, error) {
	if l == nil || l.client == nil || key == "" || !policy.Enabled() {
		return allowAll, nil
	}
	start := policy.windowStart(now)
	reset := start.Add(policy.Window)
	redisKey := l.windowKey(key, start)

	var incr *redis.IntCmd
	_, errPipe := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.PExpireAt(ctx, redisKey, reset.Add(policy.Window))
		return nil
	})
	if errPipe != nil {
		return Result{}, fmt.Errorf("ratelimit: redis incr %s: %w", redisKey, errPipe)
	}
	return decide(incr.Val(), policy, reset), nil
}

// windowKey names the counter for key in the window starting at start.
func (l *RedisLimiter) windowKey(key string, start time.Time) string {
	parts := make([]string, 0, 3)
	if l.prefix != "" {
		parts = append(parts, l.prefix)
	}
	parts = append(parts, key, strconv.FormatInt(start.UnixMilli(), 10))
	return strings.Join(parts, ":")
}
