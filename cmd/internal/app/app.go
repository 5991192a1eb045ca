// Package app wires the portal server runtime: config, logging, HTTP routes, the reissue
// endpoint, the auth events socket and the resource API forwarder.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"workfolio/cmd/internal/audit"
	"workfolio/cmd/internal/credential"
	"workfolio/cmd/internal/metrics"
	"workfolio/cmd/internal/realtime"
	"workfolio/cmd/internal/reissue"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// App is the portal server runtime. It owns the HTTP handler tree and the DB/Redis clients.
type App struct {
	cfg Config
	log Logger

	dbPool *pgxpool.Pool
	rdb    *redis.Client

	metrics *metrics.Collectors
	reissue *reissue.Handler
	gateway *realtime.Gateway
	api     http.Handler
	cookies []*credential.Cookies
}

// New constructs a fully wired App. Postgres and Redis are optional: without them audit
// entries are dropped and the reissue replay cache is disabled.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	cfg.normalize()
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	hasher, err := securityHasher(cfg)
	if err != nil {
		return nil, err
	}

	for _, c := range []credential.Config{cfg.UserCookies, cfg.AdminCookies} {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("%s credentials: %w", c.Namespace, err)
		}
	}
	userCookies := credential.NewCookies(cfg.UserCookies)
	adminCookies := credential.NewCookies(cfg.AdminCookies)

	a := &App{
		cfg:     cfg,
		log:     log,
		cookies: []*credential.Cookies{userCookies, adminCookies},
	}

	if cfg.MetricsEnabled {
		if a.metrics, err = metrics.New(); err != nil {
			return nil, err
		}
	}

	var sink audit.Sink = audit.NopSink{}
	var throttle reissue.FailureCounter
	if cfg.DatabaseURL != "" {
		if a.dbPool, err = NewDBPool(ctx, cfg); err != nil {
			return nil, err
		}
		pg, err := audit.NewPostgresSink(a.dbPool, audit.WithSchema(cfg.AuditSchema))
		if err != nil {
			a.close()
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			a.close()
			return nil, err
		}
		sink = pg
		throttle = pg
		log.Info("db.enabled.audit", "schema", cfg.AuditSchema)
	} else {
		log.Info("db.disabled.audit_nop")
	}

	svcOpts := []reissue.ServiceOption{
		reissue.WithHasher(hasher),
		reissue.WithServiceLogger(log),
	}
	if cfg.RedisAddr != "" {
		if a.rdb, err = NewRedisClient(ctx, cfg); err != nil {
			a.close()
			return nil, err
		}
		svcOpts = append(svcOpts, reissue.WithReplayCache(reissue.NewRedisReplayCache(a.rdb), cfg.Reissue.ReplayWindow))
		log.Info("redis.enabled.replay_cache", "window", cfg.Reissue.ReplayWindow)
	}

	upstream := reissue.NewHTTPUpstream(nil, cfg.Reissue)
	svc := reissue.NewService(upstream, svcOpts...)

	hubOpts := []realtime.HubOption{}
	if a.metrics != nil {
		hubOpts = append(hubOpts, realtime.WithHubObserver(a.metrics))
	}
	hub := realtime.NewHub(log, hubOpts...)
	a.gateway = realtime.NewGateway(log, hub, cfg.Gateway, hasher)

	handlerOpts := []reissue.HandlerOption{
		reissue.WithAudit(sink),
		reissue.WithNotifier(hub),
	}
	if throttle != nil {
		handlerOpts = append(handlerOpts, reissue.WithThrottle(throttle))
	}
	if a.metrics != nil {
		handlerOpts = append(handlerOpts, reissue.WithObserver(a.metrics))
	}
	if a.reissue, err = reissue.NewHandler(log, cfg.Reissue, svc, a.cookies, handlerOpts...); err != nil {
		a.close()
		return nil, err
	}

	if a.api, err = newForwarder(log, cfg.APIBaseURL, userCookies, adminCookies); err != nil {
		a.close()
		return nil, err
	}

	return a, nil
}

// Handler returns the full middleware-wrapped handler tree.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a)
	return WithRequestID(WithRequestLogging(WithSecurityHeaders(mux), a.log))
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		a.close()
		return err
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	defer a.close()

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		ReadTimeout:       a.cfg.ReadTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	a.log.Info("server.start",
		"addr", ln.Addr().String(),
		"base_url", runtimeBaseURL(ln.Addr().String()),
		"events_url", wsBaseURL(runtimeBaseURL(ln.Addr().String()))+realtime.EventsPath(credential.NamespaceUser),
		"db_enabled", a.dbPool != nil,
		"redis_enabled", a.rdb != nil,
		"metrics_enabled", a.metrics != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

func (a *App) close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("redis.close.fail", "err", err)
		}
		a.rdb = nil
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}
