// Package ratelimit throttles checkout attempts per user with a Redis or in-memory window counter.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/APIMarketplace/internal/config"
)

// Policy caps attempts per fixed window. A zero Limit disables throttling.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Enabled reports whether the policy throttles anything.
func (p Policy) Enabled() bool { return p.Limit > 0 && p.Window > 0 }

// windowStart returns the start of the window containing now.
func (p Policy) windowStart(now time.Time) time.Time {
	return now.Truncate(p.Window)
}

// RedisSettings selects the shared Redis counter backend.
type RedisSettings struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Settings is the resolved limiter configuration.
type Settings struct {
	Policy Policy
	Redis  RedisSettings
}

// SettingsFromConfig maps the server checkout section onto limiter settings.
func SettingsFromConfig(cfg config.CheckoutConfig) Settings {
	out := Settings{
		Policy: Policy{Limit: cfg.RateLimit, Window: cfg.RateWindow},
		Redis: RedisSettings{
			Enabled:  cfg.Redis.Enabled,
			Addr:     strings.TrimSpace(cfg.Redis.Addr),
			Password: strings.TrimSpace(cfg.Redis.Password),
			DB:       cfg.Redis.DB,
			Prefix:   strings.TrimSpace(cfg.Redis.Prefix),
		},
	}
	if out.Policy.Limit < 0 {
		out.Policy.Limit = 0
	}
	if out.Policy.Window <= 0 {
		out.Policy.Window = config.DefaultRateWindow
	}
	if out.Redis.Prefix == "" {
		out.Redis.Prefix = config.DefaultRateLimitPrefix
	}
	if out.Redis.DB < 0 {
		out.Redis.DB = 0
	}
	if out.Redis.Addr == "" {
		out.Redis.Enabled = false
	}
	return out
}

// CheckoutKey is the limiter key for a user's checkout attempts.
func CheckoutKey(userID uint64) string {
	if userID == 0 {
		return ""
	}
	return fmt.Sprintf("checkout:u:%d", userID)
}

// Result describes one limiter decision.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Limiter counts attempts for a key inside the policy window.
type Limiter interface {
	Allow(ctx context.Context, key string, policy Policy, now time.Time) (Result, error)
}

// allowAll is returned whenever throttling does not apply.
var allowAll = Result{Allowed: true}

// decide turns a post-increment count into a Result.
func decide(count int64, policy Policy, reset time.Time) Result {
	if count > int64(policy.Limit) {
		return Result{Allowed: false, Remaining: 0, Reset: reset}
	}
	return Result{Allowed: true, Remaining: policy.Limit - int(count), Reset: reset}
}

var (
	_ Limiter = (*MemoryLimiter)(nil)
	_ Limiter = (*RedisLimiter)(nil)
)
