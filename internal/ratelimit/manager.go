package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	// redisBreakerDuration is how long Redis is skipped after a failure.
	redisBreakerDuration = 30 * time.Second
	redisPingTimeout     = 2 * time.Second
)

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

// Manager applies the checkout policy, preferring Redis and falling back to memory.
type Manager struct {
	settings       Settings
	nowFn          func() time.Time
	memory         *MemoryLimiter
	newRedisClient RedisClientFactory

	mu           sync.Mutex
	redis        *RedisLimiter
	breakerUntil time.Time
}

// NewManager constructs a Manager. A nil nowFn uses time.Now and a nil factory uses redis.NewClient.
func NewManager(settings Settings, nowFn func() time.Time, newRedisClient RedisClientFactory) *Manager {
	if nowFn == nil {
		nowFn = time.Now
	}
	if newRedisClient == nil {
		newRedisClient = redis.NewClient
	}
	return &Manager{
		settings:       settings,
		nowFn:          nowFn,
		memory:         NewMemoryLimiter(),
		newRedisClient: newRedisClient,
	}
}

// Policy returns the configured policy.
func (m *Manager) Policy() Policy {
	if m == nil {
		return Policy{}
	}
	return m.settings.Policy
}

// Allow counts an attempt for key against the configured policy.
// Redis errors never fail the caller; the memory counter takes over until the breaker closes.
func (m *Manager) Allow(ctx context.Context, key string) (Result, error) {
	if m == nil || key == "" || !m.settings.Policy.Enabled() {
		return allowAll, nil
	}
	now := m.nowFn()
	if m.settings.Redis.Enabled {
		if result, ok := m.allowRedis(ctx, key, now); ok {
			return result, nil
		}
	}
	return m.memory.Allow(ctx, key, m.settings.Policy, now)
}

// allowRedis reports ok=false whenever the memory limiter must decide instead.
func (m *Manager) allowRedis(ctx context.Context, key string, now time.Time) (Result, bool) {
	limiter, errConnect := m.redisLimiter(ctx, now)
	if errConnect != nil {
		m.trip(errConnect, now)
		return Result{}, false
	}
	if limiter == nil {
		return Result{}, false
	}
	result, errAllow := limiter.Allow(ctx, key, m.settings.Policy, now)
	if errAllow != nil {
		m.trip(errAllow, now)
		return Result{}, false
	}
	return result, true
}

// redisLimiter returns the connected limiter, dialing lazily. It returns nil while the breaker is open.
func (m *Manager) redisLimiter(ctx context.Context, now time.Time) (*RedisLimiter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now.Before(m.breakerUntil) {
		return nil, nil
	}
	if m.redis != nil {
		return m.redis, nil
	}
	cfg := m.settings.Redis
	if cfg.Addr == "" {
		return nil, errors.New("ratelimit: redis address not configured")
	}
	client := m.newRedisClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if errPing := client.Ping(pingCtx).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	m.redis = NewRedisLimiter(client, cfg.Prefix)
	log.WithField("addr", cfg.Addr).Info("ratelimit: using redis backend")
	return m.redis, nil
}

// trip opens the breaker and drops the client so the next attempt redials.
func (m *Manager) trip(err error, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now.Before(m.breakerUntil) {
		return
	}
	m.breakerUntil = now.Add(redisBreakerDuration)
	if m.redis != nil {
		_ = m.redis.client.Close()
		m.redis = nil
	}
	log.WithError(err).Warn("ratelimit: redis unavailable, falling back to memory")
}

// breakerOpen reports whether Redis is being skipped at now.
func (m *Manager) breakerOpen(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return now.Before(m.breakerUntil)
}

// Close releases the Redis client when one was opened.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redis == nil {
		return nil
	}
	errClose := m.redis.client.Close()
	m.redis = nil
	return errClose
}
