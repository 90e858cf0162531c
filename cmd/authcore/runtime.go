package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	authcore "github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/audit/natssink"
	"github.com/MrEthical07/authcore/internal/appconfig"
	promexport "github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/session/postgres"
	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// runtime is one engine plus everything it was wired to.
type runtime struct {
	engine  *authcore.Engine
	logger  zerolog.Logger
	closers []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

type runtimeOptions struct {
	configure func(*authcore.Config)
	builder   func(*authcore.Builder)
	out       io.Writer
}

func openRuntime(ctx context.Context, opts runtimeOptions) (*runtime, error) {
	cfg, err := appconfig.Load()
	if err != nil {
		return nil, err
	}
	out := opts.out
	if out == nil {
		out = os.Stderr
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}).
		Level(cfg.Level()).
		With().Timestamp().Logger()

	rt := &runtime{logger: logger}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	addr := cfg.RedisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start miniredis: %w", err)
		}
		rt.closers = append(rt.closers, mr.Close)
		addr = mr.Addr()
		logger.Info().Str("addr", addr).Msg("using miniredis")
	} else {
		logger.Info().Str("addr", addr).Msg("using redis")
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:                 []string{addr},
		Password:              cfg.RedisPassword,
		ContextTimeoutEnabled: true,
	})
	rt.closers = append(rt.closers, func() { _ = client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	engineCfg := cfg.Engine()
	if opts.configure != nil {
		opts.configure(&engineCfg)
	}

	b := authcore.New().
		WithConfig(engineCfg).
		WithRedis(client).
		WithLogger(logger).
		WithSuperRole("admin")

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		rt.closers = append(rt.closers, pool.Close)
		if err := postgres.Migrate(ctx, pool); err != nil {
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		b.WithSessionStore(postgres.New(pool))
		logger.Info().Msg("sessions stored in postgres")
	}

	sinks := authcore.MultiSink{authcore.NewLogSink(logger)}
	if cfg.NATSURL != "" {
		ns, err := natssink.Connect(cfg.NATSURL, cfg.NATSSubjectPrefix, logger)
		if err != nil {
			return nil, fmt.Errorf("nats: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = ns.Close() })
		sinks = append(sinks, ns)
		logger.Info().Str("url", cfg.NATSURL).Msg("publishing audit events to nats")
	}
	b.WithAuditSink(sinks)

	if opts.builder != nil {
		opts.builder(b)
	}

	engine, err := b.Build()
	if err != nil {
		return nil, err
	}
	rt.engine = engine
	rt.closers = append(rt.closers, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := engine.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("audit drain did not finish")
		}
	})

	if cfg.MetricsListenAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsListenAddr,
			Handler:           promexport.NewPrometheusExporter(engine).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		rt.closers = append(rt.closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
		logger.Info().Str("addr", cfg.MetricsListenAddr).Msg("serving prometheus metrics")
	}

	ok = true
	return rt, nil
}
