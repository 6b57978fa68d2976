package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath          = "CONFIG_PATH"
	EnvDBConnection        = "DB_CONNECTION"
	EnvJWTSecret           = "JWT_SECRET"
	EnvJWTExpiry           = "JWT_EXPIRY"
	EnvLogLevel            = "LOG_LEVEL"
	EnvExpirySweepInterval = "EXPIRY_SWEEP_INTERVAL"
	EnvCheckoutRateLimit   = "CHECKOUT_RATE_LIMIT"
	EnvCheckoutRateWindow  = "CHECKOUT_RATE_WINDOW"
	EnvRedisAddr           = "REDIS_ADDR"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

// Defaults applied by LoadServerConfig.
const (
	DefaultPort                = 8318
	DefaultLogLevel            = "info"
	DefaultRateLimitPrefix     = "marketplace:rl"
	DefaultRateWindow          = time.Minute
	defaultExpirySweepInterval = 10 * time.Minute
)

// RedisConfig holds connection settings for the Redis rate limit backend.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// CheckoutConfig holds checkout throttling settings.
type CheckoutConfig struct {
	RateLimit  int           `yaml:"rate-limit"`  // Attempts per window per user, 0 disables.
	RateWindow time.Duration `yaml:"rate-window"` // Counting window, defaults to DefaultRateWindow.
	Redis      RedisConfig   `yaml:"redis"`
}

// ServerConfig holds HTTP server and background worker settings.
type ServerConfig struct {
	Host                string         `yaml:"host"`
	Port                int            `yaml:"port"`
	Debug               bool           `yaml:"debug"`
	LogLevel            string         `yaml:"log-level"`
	ExpirySweepInterval time.Duration  `yaml:"expiry-sweep-interval"` // 0 disables the sweeper.
	Checkout            CheckoutConfig `yaml:"checkout"`
}

// LoadServerConfig loads server settings from the YAML config file and environment.
// A missing file yields defaults; a malformed file is an error.
func LoadServerConfig(configPath string, defaultPort int) (ServerConfig, error) {
	result := ServerConfig{
		ExpirySweepInterval: defaultExpirySweepInterval,
	}

	data, errRead := os.ReadFile(configPath)
	switch {
	case errRead == nil:
		if errUnmarshal := yaml.Unmarshal(data, &result); errUnmarshal != nil {
			return ServerConfig{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	case errors.Is(errRead, os.ErrNotExist):
	default:
		return ServerConfig{}, fmt.Errorf("read config file: %w", errRead)
	}

	if level := strings.TrimSpace(os.Getenv(EnvLogLevel)); level != "" {
		result.LogLevel = level
	}
	if raw := strings.TrimSpace(os.Getenv(EnvExpirySweepInterval)); raw != "" {
		if interval, errParse := time.ParseDuration(raw); errParse == nil && interval >= 0 {
			result.ExpirySweepInterval = interval
		}
	}
	if raw := strings.TrimSpace(os.Getenv(EnvCheckoutRateLimit)); raw != "" {
		if limit, errParse := strconv.Atoi(raw); errParse == nil && limit >= 0 {
			result.Checkout.RateLimit = limit
		}
	}
	if raw := strings.TrimSpace(os.Getenv(EnvCheckoutRateWindow)); raw != "" {
		if window, errParse := time.ParseDuration(raw); errParse == nil && window > 0 {
			result.Checkout.RateWindow = window
		}
	}
	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		result.Checkout.Redis.Addr = addr
		result.Checkout.Redis.Enabled = true
	}

	if result.Port <= 0 {
		result.Port = defaultPort
	}
	if result.Port <= 0 {
		result.Port = DefaultPort
	}
	result.LogLevel = strings.ToLower(strings.TrimSpace(result.LogLevel))
	if result.LogLevel == "" {
		result.LogLevel = DefaultLogLevel
	}
	if result.ExpirySweepInterval < 0 {
		result.ExpirySweepInterval = 0
	}
	if result.Checkout.RateLimit < 0 {
		result.Checkout.RateLimit = 0
	}
	if result.Checkout.RateWindow <= 0 {
		result.Checkout.RateWindow = DefaultRateWindow
	}
	result.Checkout.Redis.Addr = strings.TrimSpace(result.Checkout.Redis.Addr)
	result.Checkout.Redis.Prefix = strings.TrimSpace(result.Checkout.Redis.Prefix)
	if result.Checkout.Redis.Prefix == "" {
		result.Checkout.Redis.Prefix = DefaultRateLimitPrefix
	}
	if result.Checkout.Redis.DB < 0 {
		result.Checkout.Redis.DB = 0
	}
	return result, nil
}
