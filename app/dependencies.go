package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/upb/admin-portal/config"
	"github.com/upb/admin-portal/handlers"
	"github.com/upb/admin-portal/internal/observability"
	"github.com/upb/admin-portal/middleware"
	"github.com/upb/admin-portal/repositories"
	"github.com/upb/admin-portal/repositories/postgres"
	"github.com/upb/admin-portal/services/audit"
	"github.com/upb/admin-portal/services/authclient"
	"github.com/upb/admin-portal/services/ratelimit"
	"github.com/upb/admin-portal/session"
)

// auditStopTimeout bounds how long Close waits for queued audit events
const auditStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	// Sessions
	Redis    *redis.Client // nil unless SESSION_DRIVER=redis
	Medium   session.Medium
	Sessions *session.Store

	// Audit trail
	AuditDB *postgres.DB
	Audit   *audit.Service

	// Auth
	Client         *authclient.Client
	Guard          *middleware.RouteGuard
	BrowserSession *middleware.BrowserSession
	SignInLimiter  *ratelimit.Limiter

	// Handlers
	AuthHandler   *handlers.AuthHandler
	ViewHandler   *handlers.ViewHandler
	AdminHandler  *handlers.AdminHandler
	ProxyHandler  *handlers.ProxyHandler
	HealthHandler *handlers.HealthHandler
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := deps.initSessions(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize sessions: %w", err)
	}

	if err := deps.initAudit(ctx); err != nil {
		_ = deps.Medium.Close()
		return nil, fmt.Errorf("failed to initialize audit trail: %w", err)
	}

	if err := deps.initAuth(); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	deps.initHandlers()

	logger.Info("all dependencies initialized successfully",
		zap.String("session_driver", cfg.Session.Driver),
		zap.Bool("audit_persisted", deps.AuditDB != nil))
	return deps, nil
}

// initMetrics creates a private registry so tests can build several instances
func (d *Dependencies) initMetrics() error {
	d.Registry = prometheus.NewRegistry()
	if !d.Config.Observability.MetricsEnabled {
		return nil
	}

	d.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := observability.NewMetrics(d.Registry)
	if err != nil {
		return err
	}
	d.Metrics = m
	return nil
}

// initSessions opens the configured session medium
func (d *Dependencies) initSessions(ctx context.Context) error {
	cfg := d.Config.Session

	switch cfg.Driver {
	case config.SessionDriverRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     d.Config.Redis.Addr,
			Password: d.Config.Redis.Password,
			DB:       d.Config.Redis.DB,
		})
		medium := session.NewRedisMedium(rdb, cfg.TTL)
		if err := medium.Ping(ctx); err != nil {
			_ = medium.Close()
			return fmt.Errorf("redis ping failed: %w", err)
		}
		d.Redis = rdb
		d.Medium = medium
		d.Logger.Info("session medium connected",
			zap.String("driver", cfg.Driver),
			zap.String("addr", d.Config.Redis.Addr))
	default:
		d.Medium = session.NewMemoryMedium(cfg.TTL)
		d.Logger.Info("session medium ready", zap.String("driver", cfg.Driver))
	}

	d.Sessions = session.NewStore(d.Medium, cfg.Namespace, d.Logger)
	return nil
}

// initAudit persists audit events to PostgreSQL when configured, else to the log
func (d *Dependencies) initAudit(ctx context.Context) error {
	var repo repositories.AuditRepository

	if d.Config.AuditDatabase != nil {
		db, err := postgres.NewDB(*d.Config.AuditDatabase, d.Logger)
		if err != nil {
			return err
		}
		if err := db.EnsureAuditSchema(ctx); err != nil {
			_ = db.Close()
			return err
		}
		d.AuditDB = db
		repo = postgres.NewAuditRepository(db, d.Logger)
	} else {
		d.Logger.Warn("AUDIT_DATABASE_URL not set, audit events go to the log only")
	}

	d.Audit = audit.NewService(repo, d.Logger, audit.DefaultConfig())
	return nil
}

// initAuth wires the auth client, the route guard and the browser binding
func (d *Dependencies) initAuth() error {
	cfg := d.Config

	d.Client = authclient.NewClient(cfg.API.BaseURL, d.Sessions, d.Logger,
		authclient.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		authclient.WithMetrics(d.Metrics),
		authclient.WithAuditRecorder(d.Audit),
	)

	client := d.Client
	guard, err := middleware.NewRouteGuard(middleware.GuardConfig{
		LoginPath:    cfg.Guard.LoginPath,
		FallbackPath: cfg.Guard.FallbackPath,
		HomePath:     cfg.Guard.HomePath,
	}, d.Logger,
		middleware.WithExpirer(func(s *session.Store) middleware.Expirer { return client.WithStore(s) }),
		middleware.WithGuardMetrics(d.Metrics),
		middleware.WithGuardAudit(d.Audit),
	)
	if err != nil {
		return err
	}
	d.Guard = guard

	d.BrowserSession = middleware.NewBrowserSession(d.Sessions, middleware.BrowserSessionConfig{
		CookieName: cfg.Session.CookieName,
		Secure:     cfg.Session.CookieSecure,
		MaxAge:     cfg.Session.TTL,
	}, d.Logger)

	// failed sign-ins share the session backend so every replica sees them
	var counter ratelimit.Counter = ratelimit.NewMemoryCounter()
	if d.Redis != nil {
		counter = ratelimit.NewRedisCounter(d.Redis)
	}
	d.SignInLimiter = ratelimit.NewLimiter(counter, cfg.Session.Namespace, ratelimit.Limits{
		PerMinute: cfg.SignInLimit.PerMinute,
		PerHour:   cfg.SignInLimit.PerHour,
	}, d.Logger)
	return nil
}

func (d *Dependencies) initHandlers() {
	d.AuthHandler = handlers.NewAuthHandler(d.Client, d.Guard, d.SignInLimiter, d.Logger)
	d.ViewHandler = handlers.NewViewHandler(d.Guard, d.Logger)
	d.AdminHandler = handlers.NewAdminHandler(d.Client, d.Audit, d.Logger)
	d.ProxyHandler = handlers.NewProxyHandler(d.Client, d.Logger)

	checks := map[string]handlers.CheckFunc{
		"sessions": d.Sessions.Ping,
	}
	if d.AuditDB != nil {
		checks["audit_db"] = d.AuditDB.HealthCheck
	}
	d.HealthHandler = handlers.NewHealthHandler(checks, d.Logger)
}

// Start starts the background audit workers
func (d *Dependencies) Start() error {
	return d.Audit.Start()
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Audit != nil {
		timeout := auditStopTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Audit.Stop(timeout); err != nil && !errors.Is(err, audit.ErrNotStarted) {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.AuditDB != nil {
		if err := d.AuditDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close audit database: %w", err))
		}
	}

	if d.Medium != nil {
		if err := d.Medium.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close session medium: %w", err))
		} else {
			d.Logger.Info("session medium closed")
		}
	}

	_ = d.Logger.Sync()

	return errors.Join(errs...)
}
