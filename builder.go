package authcore

import (
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/plan"
	"github.com/MrEthical07/authcore/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an [Engine]. It is single-use: Build may be called once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	sessionStore session.Store
	inMemory     bool

	devices   session.ClientIdentifierProvider
	auditSink AuditSink
	logger    zerolog.Logger
	now       func() time.Time

	permissions []string
	roles       map[string][]string
	superRoles  []string

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
		logger: zerolog.Nop(),
		roles:  make(map[string][]string),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs rate windows, lock state and sessions with client.
// The client must be created with ContextTimeoutEnabled; go-redis otherwise ignores
// the per-call deadline and waits for its socket timeouts. Build logs a warning when
// a *redis.Client or *redis.ClusterClient has it disabled.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSessionStore overrides the session store, e.g. with session/postgres.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.sessionStore = store
	return b
}

// WithInMemoryStores uses process-local stores for everything not set explicitly.
// Counts are per process, so this is meant for tests and single-instance tools.
func (b *Builder) WithInMemoryStores() *Builder {
	b.inMemory = true
	return b
}

// WithDeviceIdentifierProvider sets how the caller's device is identified.
// The default reads the value attached with [WithDeviceID].
func (b *Builder) WithDeviceIdentifierProvider(p session.ClientIdentifierProvider) *Builder {
	b.devices = p
	return b
}

// WithAuditSink sets the audit destination.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger for degraded-mode warnings.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for every time-based decision.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithPermissions registers additional permission names next to sessions:revoke.
func (b *Builder) WithPermissions(names ...string) *Builder {
	b.permissions = append(b.permissions, names...)
	return b
}

// WithRole defines a role holding exactly perms.
func (b *Builder) WithRole(name string, perms ...string) *Builder {
	b.roles[name] = append([]string(nil), perms...)
	return b
}

// WithSuperRole defines a role holding every permission.
func (b *Builder) WithSuperRole(name string) *Builder {
	b.superRoles = append(b.superRoles, name)
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the login latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- STORES --------
	prefix := func(name string) string {
		if cfg.Store.KeyPrefix == "" {
			return name
		}
		return cfg.Store.KeyPrefix + ":" + name
	}

	sessionStore := b.sessionStore
	var rateStore rate.Store
	var lockStore limiters.LockStore
	switch {
	case b.redis != nil:
		if sessionStore == nil {
			sessionStore = session.NewRedisStore(b.redis, prefix("ads"))
		}
		rateStore = rate.NewRedisStore(b.redis, prefix("rl"))
		lockStore = limiters.NewRedisLockStore(b.redis, prefix("alo"))
	case b.inMemory:
		if sessionStore == nil {
			sessionStore = session.NewMemoryStore()
		}
		rateStore = rate.NewMemoryStore()
		lockStore = limiters.NewMemoryLockStore(now)
	}
	if sessionStore == nil || rateStore == nil || lockStore == nil {
		return nil, errors.New("redis client or in-memory stores required")
	}
	if b.redis != nil && !honoursDeadlines(b.redis) {
		b.logger.Warn().
			Dur("operation_timeout", cfg.Store.OperationTimeout).
			Msg("redis client has ContextTimeoutEnabled off, store calls will not honour operation timeout")
	}

	// -------- PLANS --------
	plans, err := plan.NewResolver(cfg.Plans.Limits)
	if err != nil {
		return nil, err
	}

	// -------- PERMISSION REGISTRY --------
	registry, err := permission.NewRegistry(flows.PermissionRevokeSessions)
	if err != nil {
		return nil, err
	}
	for _, p := range b.permissions {
		if _, known := registry.Bit(p); known {
			continue
		}
		if _, err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	registry.Freeze()

	// -------- ROLE MANAGER --------
	roles := permission.NewRoleManager(registry)
	for name, perms := range b.roles {
		if err := roles.RegisterRole(name, perms); err != nil {
			return nil, err
		}
	}
	for _, name := range b.superRoles {
		if err := roles.RegisterSuperRole(name); err != nil {
			return nil, err
		}
	}
	roles.Freeze()

	engine := &Engine{
		config:   cfg,
		logger:   b.logger,
		now:      now,
		registry: registry,
		roles:    roles,
		metrics:  NewMetrics(cfg.Metrics),
	}

	engine.sessions = session.NewManager(sessionStore, plans, b.devices, session.ManagerConfig{
		OperationTimeout: cfg.Store.OperationTimeout,
		IdleTimeout:      cfg.Sessions.IdleTimeout,
		Now:              now,
	})
	engine.lockout = limiters.NewLockoutLimiter(lockStore, limiters.LockoutConfig{
		Threshold: cfg.Lockout.Threshold,
		Duration:  cfg.Lockout.Duration,
		Retention: cfg.Lockout.Retention,
	}, now)
	engine.limiter = rate.New(rateStore,
		rate.WithClock(now),
		rate.WithLogger(b.logger),
		rate.WithTimeout(cfg.Store.OperationTimeout),
		rate.WithFailOpenHook(func(string, error) {
			engine.metricInc(MetricRateLimiterFailOpen)
		}),
	)

	if cfg.Token.Enabled {
		tm, err := jwt.NewManager(jwt.Config{
			TTL:           cfg.Token.TTL,
			SigningMethod: jwt.SigningMethod(cfg.Token.SigningMethod),
			PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
			PublicKey:     cloneBytes(cfg.Token.PublicKey),
			Issuer:        cfg.Token.Issuer,
			Audience:      cfg.Token.Audience,
			Leeway:        cfg.Token.Leeway,
			KeyID:         cfg.Token.KeyID,
			RequireIAT:    true,
			Now:           now,
		})
		if err != nil {
			return nil, err
		}
		engine.tokens = tm
	}

	logger := b.logger
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop: func(ev internalaudit.Event) {
			logger.Warn().Str("event_type", ev.EventType).Msg("audit buffer full, event dropped")
		},
		OnSinkPanic: func(ev internalaudit.Event, r any) {
			logger.Error().Str("event_type", ev.EventType).Interface("panic", r).Msg("audit sink panicked")
		},
	}, b.auditSink)

	engine.flowDeps = engine.buildFlowDeps()

	b.built = true
	return engine, nil
}

func honoursDeadlines(client redis.UniversalClient) bool {
	switch c := client.(type) {
	case *redis.Client:
		return c.Options().ContextTimeoutEnabled
	case *redis.ClusterClient:
		return c.Options().ContextTimeoutEnabled
	}
	return true
}
