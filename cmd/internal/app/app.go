// Package app wires the chat server runtime: config, logging, backends,
// HTTP routes, the realtime gateway and the fan-out listener.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/haontuhcmut/chat-app/cmd/identity"
	authapi "github.com/haontuhcmut/chat-app/cmd/internal/auth/api"
	"github.com/haontuhcmut/chat-app/cmd/internal/auth/session"
	"github.com/haontuhcmut/chat-app/cmd/internal/realtime"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const presencePublishTimeout = 2 * time.Second

// App is the server runtime. It owns the backend clients and every
// long-lived component built on them.
type App struct {
	cfg Config
	log Logger

	pool *pgxpool.Pool
	rdb  *redis.Client

	metricsReg *prometheus.Registry

	registry  *realtime.Registry
	listener  *realtime.Listener
	publisher *realtime.Publisher
	ws        *realtime.WSGateway
	auth      *authapi.Handler
}

// New constructs a fully wired App from config and logger.
//
// An empty DatabaseURL selects the in-memory user store; an empty RedisURL
// selects the in-process denylist, handshake store and bus. Both in-memory
// modes are only correct for a single instance.
func New(cfg Config, log Logger) (_ *App, err error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}
	if err := ValidateSecurityConfig(cfg, sessCfg.Secret); err != nil {
		return nil, err
	}

	pwParams, err := identity.PasswordParamsFromEnv()
	if err != nil {
		return nil, fmt.Errorf("password params: %w", err)
	}

	a := &App{cfg: cfg, log: log, metricsReg: newMetricsRegistry()}
	defer func() {
		if err != nil {
			a.closeBackends()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	users, err := a.newUserStore(ctx, pwParams)
	if err != nil {
		return nil, err
	}

	var (
		deny       session.Denylist
		handshakes realtime.HandshakeStore
		bus        realtime.Bus
	)
	if cfg.RedisURL != "" {
		a.rdb, err = NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		deny = session.NewRedisDenylist(a.rdb)
		handshakes = realtime.NewRedisHandshakeStore(a.rdb)
		bus = realtime.NewRedisBus(a.rdb, cfg.FanoutChannel)
		log.Info("redis.enabled", "fanout_channel", cfg.FanoutChannel)
	} else {
		deny = session.NewMemoryDenylist(nil)
		handshakes = realtime.NewMemoryHandshakeStore(nil)
		bus = realtime.NewMemoryBus(0)
		log.Warn("redis.disabled.inmemory", "note", "single instance only")
	}

	codec, err := session.NewCodec(sessCfg.Secret, sessCfg.Issuer)
	if err != nil {
		return nil, err
	}
	sessions := session.NewService(sessCfg, codec, session.NewStore(deny, users), users,
		session.WithLogger(log),
		session.WithPasswordParams(pwParams),
	)

	metrics := realtime.NewMetrics(a.metricsReg)
	a.publisher = realtime.NewPublisher(bus, log, metrics)
	a.registry = realtime.NewRegistry(log, metrics, realtime.WithPresence(a.publisher.PresenceHook(presencePublishTimeout)))
	a.listener = realtime.NewListener(bus, a.registry, log, metrics)

	broker := realtime.NewHandshakeBroker(handshakes, cfg.HandshakeTTL, metrics)
	a.ws = realtime.NewWSGateway(log, realtime.GatewayConfigFromEnv(), broker, a.registry, metrics)

	a.auth, err = authapi.NewHandler(log, authapi.LoadConfigFromEnv(sessCfg.RefreshTokenTTL), sessions, users, broker)
	if err != nil {
		return nil, err
	}

	return a, nil
}

func (a *App) newUserStore(ctx context.Context, params identity.PasswordParams) (identity.Store, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Warn("db.disabled.inmemory_store")
		return identity.NewMemoryStore(params), nil
	}

	if a.cfg.DBMigrate {
		if err := identity.ApplyMigrations(a.cfg.DatabaseURL); err != nil {
			return nil, err
		}
		a.log.Info("db.migrated")
	}

	pool, err := OpenPostgres(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	a.pool = pool

	st, err := identity.NewPostgresStore(pool, identity.WithPasswordParams(params))
	if err != nil {
		return nil, err
	}
	a.log.Info("db.enabled.postgres_store")
	return st, nil
}

// Publisher returns the event publisher for producers living in this process.
func (a *App) Publisher() *realtime.Publisher { return a.publisher }

// Handler returns the full HTTP handler chain.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.registerHTTP(mux)
	return WithRequestLogging(WithSecurityHeaders(WithCORS(mux, a.cfg, a.log)), a.log)
}

// Run serves HTTP and runs the fan-out listener until ctx is cancelled or
// either fails. Shutdown closes sockets with 1001 before draining HTTP.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	base := runtimeBaseURL(a.cfg.HTTPAddr)
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"http", base,
		"ws", wsBaseURL(base)+"/ws",
		"db_enabled", a.pool != nil,
		"redis_enabled", a.rdb != nil,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.listener.Run(gctx)
	})

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
		defer cancel()

		if err := a.ws.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("ws.shutdown.fail", "err", err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})

	err := g.Wait()
	a.closeBackends()
	a.log.Info("server.stopped")
	return err
}

func (a *App) closeBackends() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Warn("redis.close.fail", "err", err)
		}
	}
}

// runtimeBaseURL turns a listen address into a URL a local client can reach.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func wsBaseURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	default:
		return "ws://" + httpURL
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
