package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/router-for-me/APIMarketplace/internal/config"
)

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	limiter := NewMemoryLimiter()
	policy := Policy{Limit: 2, Window: time.Minute}
	start := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := limiter.Allow(ctx, "checkout:u:1", policy, start.Add(time.Duration(i)*10*time.Second))
		if err != nil || !res.Allowed {
			t.Fatalf("attempt %d: expected allowed, got %+v err=%v", i+1, res, err)
		}
		if res.Remaining != 1-i {
			t.Fatalf("attempt %d: expected remaining %d, got %d", i+1, 1-i, res.Remaining)
		}
	}
	res, _ := limiter.Allow(ctx, "checkout:u:1", policy, start.Add(59*time.Second))
	if res.Allowed {
		t.Fatalf("expected third attempt in the same window to be denied")
	}
	if !res.Reset.Equal(start.Add(time.Minute)) {
		t.Fatalf("expected reset at window end, got %v", res.Reset)
	}
	res, _ = limiter.Allow(ctx, "checkout:u:1", policy, start.Add(time.Minute))
	if !res.Allowed || res.Remaining != 1 {
		t.Fatalf("expected new window to allow, got %+v", res)
	}
	res, _ = limiter.Allow(ctx, "checkout:u:2", policy, start)
	if !res.Allowed {
		t.Fatalf("expected other users to be unaffected")
	}
}

func TestMemoryLimiter_DisabledPolicyAllows(t *testing.T) {
	limiter := NewMemoryLimiter()
	for _, policy := range []Policy{{}, {Limit: 1}, {Window: time.Second}} {
		res, err := limiter.Allow(context.Background(), "checkout:u:1", policy, time.Now())
		if err != nil || !res.Allowed {
			t.Fatalf("policy %+v: expected allowed, got %+v err=%v", policy, res, err)
		}
	}
	if limiter.Len() != 0 {
		t.Fatalf("expected disabled policies to track nothing, got %d keys", limiter.Len())
	}
}

func TestMemoryLimiter_PrunesEndedWindows(t *testing.T) {
	limiter := NewMemoryLimiter()
	policy := Policy{Limit: 5, Window: time.Second}
	start := time.Unix(1_700_000_000, 0)
	for i := 0; i < pruneEvery-1; i++ {
		_, _ = limiter.Allow(context.Background(), fmt.Sprintf("checkout:u:%d", i+1), policy, start)
	}
	if limiter.Len() != pruneEvery-1 {
		t.Fatalf("expected %d keys, got %d", pruneEvery-1, limiter.Len())
	}
	_, _ = limiter.Allow(context.Background(), "checkout:u:0", policy, start.Add(time.Minute))
	if limiter.Len() != 1 {
		t.Fatalf("expected ended windows to be pruned, got %d keys", limiter.Len())
	}
}

func TestRedisLimiter_WindowKey(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	if got := NewRedisLimiter(nil, "marketplace:rl").windowKey("checkout:u:7", start); got != "marketplace:rl:checkout:u:7:1700000000000" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := NewRedisLimiter(nil, " ").windowKey("checkout:u:7", start); got != "checkout:u:7:1700000000000" {
		t.Fatalf("unexpected unprefixed key %q", got)
	}
}

func TestManager_FallsBackToMemoryWhenRedisDown(t *testing.T) {
	settings := SettingsFromConfig(config.CheckoutConfig{
		RateLimit: 1,
		Redis:     config.RedisConfig{Enabled: true, Addr: "127.0.0.1:1"},
	})
	now := time.Unix(1_700_000_000, 0)
	manager := NewManager(settings, func() time.Time { return now }, func(options *redis.Options) *redis.Client {
		options.MaxRetries = -1
		options.DialTimeout = 200 * time.Millisecond
		return redis.NewClient(options)
	})
	defer func() { _ = manager.Close() }()

	key := CheckoutKey(7)
	res, err := manager.Allow(context.Background(), key)
	if err != nil || !res.Allowed {
		t.Fatalf("expected first attempt allowed by memory fallback, got %+v err=%v", res, err)
	}
	if !manager.breakerOpen(now) {
		t.Fatalf("expected redis breaker to be open")
	}
	res, _ = manager.Allow(context.Background(), key)
	if res.Allowed {
		t.Fatalf("expected second attempt denied")
	}
	if manager.breakerOpen(now.Add(redisBreakerDuration)) {
		t.Fatalf("expected breaker to close after %s", redisBreakerDuration)
	}
}

func TestSettingsFromConfig_Normalizes(t *testing.T) {
	settings := SettingsFromConfig(config.CheckoutConfig{RateLimit: -3, Redis: config.RedisConfig{Enabled: true, DB: -1, Addr: "  "}})
	if settings.Policy.Limit != 0 || settings.Redis.DB != 0 {
		t.Fatalf("expected negatives clamped, got %+v", settings)
	}
	if settings.Policy.Window != config.DefaultRateWindow {
		t.Fatalf("expected default window, got %s", settings.Policy.Window)
	}
	if settings.Redis.Enabled {
		t.Fatalf("expected redis disabled without an address")
	}
	if settings.Redis.Prefix != config.DefaultRateLimitPrefix {
		t.Fatalf("expected default prefix, got %q", settings.Redis.Prefix)
	}
	if settings.Policy.Enabled() {
		t.Fatalf("expected zero limit to disable the policy")
	}
	if CheckoutKey(0) != "" {
		t.Fatalf("expected no key for anonymous callers")
	}
}
