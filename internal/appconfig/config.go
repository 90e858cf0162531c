// Package appconfig loads the authcore CLI configuration from the environment and an
// optional .env file using Viper, and maps it onto [authcore.Config].
package appconfig

import (
	"errors"
	"fmt"
	"strings"
	"time"

	authcore "github.com/MrEthical07/authcore"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config holds process configuration loaded from the environment.
type Config struct {
	// RedisAddr is host:port of the shared store; empty runs against an embedded miniredis.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword authenticates against RedisAddr.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// KeyPrefix namespaces every store key.
	KeyPrefix string `mapstructure:"AUTHCORE_KEY_PREFIX"`
	// DatabaseURL, when set, keeps sessions in Postgres instead of Redis.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// NATSURL, when set, publishes audit events to NATS.
	NATSURL string `mapstructure:"NATS_URL"`
	// NATSSubjectPrefix is the audit subject prefix.
	NATSSubjectPrefix string `mapstructure:"NATS_SUBJECT_PREFIX"`
	// LogLevel is a zerolog level name.
	LogLevel string `mapstructure:"LOG_LEVEL"`

	RateLimitWindow   string `mapstructure:"RATE_LIMIT_WINDOW"`
	RateLimitMax      int    `mapstructure:"RATE_LIMIT_MAX"`
	LockoutThreshold  int    `mapstructure:"LOCKOUT_THRESHOLD"`
	LockoutDuration   string `mapstructure:"LOCKOUT_DURATION"`
	SessionIdle       string `mapstructure:"SESSION_IDLE_TIMEOUT"`
	StoreTimeout      string `mapstructure:"STORE_TIMEOUT"`
	TokenSecret       string `mapstructure:"TOKEN_SECRET"`
	TokenTTL          string `mapstructure:"TOKEN_TTL"`
	MetricsListenAddr string `mapstructure:"METRICS_ADDR"`
}

// Load reads .env (if present), then builds and validates Config from the environment.
// Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("AUTHCORE_KEY_PREFIX", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("NATS_URL", "")
	v.SetDefault("NATS_SUBJECT_PREFIX", "authcore.audit")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")
	v.SetDefault("RATE_LIMIT_MAX", 60)
	v.SetDefault("LOCKOUT_THRESHOLD", 5)
	v.SetDefault("LOCKOUT_DURATION", "15m")
	v.SetDefault("SESSION_IDLE_TIMEOUT", "0s")
	v.SetDefault("STORE_TIMEOUT", "250ms")
	v.SetDefault("TOKEN_SECRET", "")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("METRICS_ADDR", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	for name, raw := range map[string]string{
		"RATE_LIMIT_WINDOW":    cfg.RateLimitWindow,
		"LOCKOUT_DURATION":     cfg.LockoutDuration,
		"SESSION_IDLE_TIMEOUT": cfg.SessionIdle,
		"STORE_TIMEOUT":        cfg.StoreTimeout,
		"TOKEN_TTL":            cfg.TokenTTL,
	} {
		if _, err := time.ParseDuration(raw); err != nil {
			return nil, fmt.Errorf("config: %s: %w", name, err)
		}
	}
	if cfg.TokenSecret != "" && len(cfg.TokenSecret) < 32 {
		return nil, errors.New("config: TOKEN_SECRET must be at least 32 bytes")
	}

	return &cfg, nil
}

// Level returns the configured log level.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// Engine maps the loaded values onto authcore defaults. Tokens are enabled only
// when TOKEN_SECRET is set.
func (c *Config) Engine() authcore.Config {
	cfg := authcore.DefaultConfig()
	cfg.Store.KeyPrefix = strings.TrimSpace(c.KeyPrefix)
	cfg.Store.OperationTimeout = duration(c.StoreTimeout, cfg.Store.OperationTimeout)
	cfg.RateLimit.Window = duration(c.RateLimitWindow, cfg.RateLimit.Window)
	if c.RateLimitMax > 0 {
		cfg.RateLimit.MaxRequests = c.RateLimitMax
	}
	if c.LockoutThreshold > 0 {
		cfg.Lockout.Threshold = c.LockoutThreshold
	}
	cfg.Lockout.Duration = duration(c.LockoutDuration, cfg.Lockout.Duration)
	cfg.Sessions.IdleTimeout = duration(c.SessionIdle, 0)
	if c.TokenSecret != "" {
		cfg.Token.Enabled = true
		cfg.Token.PrivateKey = []byte(c.TokenSecret)
		cfg.Token.TTL = duration(c.TokenTTL, cfg.Token.TTL)
	}
	return cfg
}

func duration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
