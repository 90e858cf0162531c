package authcore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/plan"
)

// Config holds every engine setting. Start from [DefaultConfig] and override fields.
type Config struct {
	Store     StoreConfig
	RateLimit RateLimitConfig
	Lockout   LockoutConfig
	Sessions  SessionsConfig
	Plans     PlansConfig
	Token     TokenConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig controls key layout and store call bounds.
type StoreConfig struct {
	// KeyPrefix namespaces every Redis key. Empty keeps the per-store defaults
	// ("ads", "rl", "alo").
	KeyPrefix string
	// OperationTimeout bounds every store round-trip.
	OperationTimeout time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig is the sliding-window limit applied to login requests per client.
type RateLimitConfig struct {
	Enabled     bool
	Window      time.Duration
	MaxRequests int
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig drives the login guard.
type LockoutConfig struct {
	// Threshold is the number of consecutive failures that locks an identifier.
	Threshold int
	// Duration is how long a lock lasts.
	Duration time.Duration
	// Retention is how long an idle failure counter is kept.
	Retention time.Duration
}

/*
====================================
SESSIONS CONFIG
====================================
*/

// SessionsConfig controls device session bookkeeping.
type SessionsConfig struct {
	// IdleTimeout stops counting sessions idle for longer than this. Zero disables it.
	IdleTimeout time.Duration
}

/*
====================================
PLANS CONFIG
====================================
*/

// PlansConfig is the plan tag to device limit table. Tags missing from it are unmanaged.
type PlansConfig struct {
	Limits map[plan.Tag]int
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls device-session tokens issued on login.
type TokenConfig struct {
	Enabled       bool
	TTL           time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults: 60 login requests per minute per
// client, lock after 5 failures for 15 minutes, individuel → 1 device, famille → 5.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Store: StoreConfig{
			OperationTimeout: 250 * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			Window:      time.Minute,
			MaxRequests: 60,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  15 * time.Minute,
			Retention: 24 * time.Hour,
		},
		Plans: PlansConfig{
			Limits: plan.DefaultLimits(),
		},
		Token: TokenConfig{
			TTL:           24 * time.Hour,
			SigningMethod: "hs256",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Plans.Limits != nil {
		out.Plans.Limits = make(map[plan.Tag]int, len(cfg.Plans.Limits))
		for k, v := range cfg.Plans.Limits {
			out.Plans.Limits[k] = v
		}
	}
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	// Store
	if c.Store.OperationTimeout <= 0 {
		return errors.New("Store OperationTimeout must be > 0")
	}
	if strings.ContainsAny(c.Store.KeyPrefix, " {}") {
		return errors.New("Store KeyPrefix must not contain spaces or braces")
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if c.RateLimit.Window <= 0 {
			return errors.New("RateLimit Window must be > 0")
		}
		if c.RateLimit.MaxRequests <= 0 {
			return errors.New("RateLimit MaxRequests must be > 0")
		}
	}

	// Lockout
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}
	if c.Lockout.Retention < 0 {
		return errors.New("Lockout Retention must be >= 0")
	}

	// Sessions
	if c.Sessions.IdleTimeout < 0 {
		return errors.New("Sessions IdleTimeout must be >= 0")
	}

	// Plans
	for tag, n := range c.Plans.Limits {
		if plan.Normalize(tag) == "" {
			return errors.New("Plans contains an empty tag")
		}
		if n <= 0 {
			return fmt.Errorf("Plans limit for %q must be > 0", tag)
		}
	}

	// Token
	if c.Token.Enabled {
		if c.Token.TTL <= 0 {
			return errors.New("Token TTL must be > 0")
		}
		switch c.Token.SigningMethod {
		case "hs256":
			if len(c.Token.PrivateKey) < 32 {
				return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
			}
		case "ed25519":
			if len(c.Token.PrivateKey) == 0 || len(c.Token.PublicKey) == 0 {
				return errors.New("ed25519 requires PrivateKey and PublicKey")
			}
		default:
			return errors.New("unsupported Token signing method")
		}
		if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
			return errors.New("Token Leeway must be within [0, 2m]")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}

// LintWarning is a non-fatal configuration finding.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the result of [Config.Lint].
type LintWarnings []LintWarning

// Codes lists the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that are valid but probably unintended.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code, msg string) {
		ws = append(ws, LintWarning{Code: code, Message: msg})
	}

	if !c.RateLimit.Enabled {
		add("rate_limit_disabled", "login requests are not rate limited")
	}
	if c.Lockout.Retention > 0 && c.Lockout.Retention < c.Lockout.Duration {
		add("lockout_retention_short", "lockout retention is shorter than the lock and is raised to Duration")
	}
	if c.Lockout.Threshold > 20 {
		add("lockout_threshold_high", "more than 20 failures are allowed before locking")
	}
	if len(c.Plans.Limits) == 0 {
		add("no_managed_plans", "no plan has a device limit; every login is unmanaged")
	}
	if c.Token.Enabled && c.Token.TTL > 7*24*time.Hour {
		add("token_ttl_long", "session tokens live longer than 7 days")
	}
	if c.Token.Enabled && c.Token.SigningMethod == "hs256" {
		add("token_hs256", "hs256 shares the signing secret with every verifier")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", "login attempts are not audited")
	}
	if c.Sessions.IdleTimeout > 0 && c.Sessions.IdleTimeout < time.Minute {
		add("idle_timeout_short", "sessions idle for less than a minute stop counting")
	}
	return ws
}
