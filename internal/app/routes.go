package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/meridianhq/corpweb/internal/collection"
	"github.com/meridianhq/corpweb/internal/middleware"
	"github.com/meridianhq/corpweb/internal/plugins/audit"
	"github.com/meridianhq/corpweb/internal/plugins/auth"
	"github.com/meridianhq/corpweb/internal/plugins/content"
	"github.com/meridianhq/corpweb/internal/session"
	"github.com/meridianhq/corpweb/internal/templates/layouts"
)

// healthTimeout bounds each dependency ping in /healthz.
const healthTimeout = 2 * time.Second

// RegisterRoutes sets up all application routes. It builds each plugin's
// service and handler from the shared dependencies and delegates to the
// plugin's route registration function.
//
// This is the single place where all routes are aggregated. When a new
// plugin is added, its routes are registered here.
func (a *App) RegisterRoutes(ctx context.Context) error {
	e := a.Echo
	cfg := a.Config

	// Template data flows from the Echo context into the templ context on
	// every render.
	middleware.LayoutInjector = injectLayout

	// --- Audit plugin (optional, needs MariaDB) ---
	var (
		events   auth.EventRecorder
		activity content.ActivityFeed
	)
	if cfg.Auth.AuditEnabled && a.DB != nil {
		auditService := audit.NewAuditService(audit.NewAuditRepository(a.DB))
		events = auditService
		activity = auditService
		audit.RegisterRoutes(e, audit.NewHandler(auditService))
	}

	// --- Auth plugin ---
	authService := auth.NewAuthService(a.Backend, session.NewRedisStore(a.Redis), auth.ServiceConfig{
		SessionTTL: cfg.Auth.SessionTTL,
		BaseURL:    cfg.BaseURL,
		Providers:  cfg.Auth.OAuthProviders,
	}, events)
	a.authHandler = auth.NewHandler(authService, auth.HandlerConfig{
		CookieName:          cfg.Auth.CookieName,
		SecureCookies:       cfg.IsProduction(),
		FailedRedirectDelay: cfg.Auth.FailedRedirectDelay,
	})
	auth.RegisterRoutes(ctx, e, a.authHandler)

	// Every request resolves its session, then passes the gate.
	e.Use(a.authHandler.LoadSession(), auth.Gate())

	// --- Content plugin ---
	contentService, err := content.NewContentService(a.Backend, collection.NewRedisCache(a.Redis), content.Config{
		CacheTTL: cfg.Content.CacheTTL,
		MaxTries: cfg.Content.MaxTries,
	})
	if err != nil {
		return err
	}
	content.RegisterRoutes(e, content.NewHandler(contentService, activity))

	// Health check endpoint for container health monitoring.
	e.GET("/healthz", a.healthz)

	return nil
}

// healthz pings Redis and, when the audit log is on, MariaDB.
func (a *App) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Redis.Ping(ctx).Err() })
	if a.DB != nil {
		g.Go(func() error { return a.DB.PingContext(ctx) })
	}

	if err := g.Wait(); err != nil {
		middleware.Logger(c).Warn("health check failed", slog.Any("error", err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// injectLayout copies session, CSRF, flash and request data into the templ
// context so layouts can read them without an Echo dependency.
func injectLayout(c echo.Context, ctx context.Context) context.Context {
	if s := auth.CurrentUser(c); s != nil {
		ctx = layouts.SetIsAuthenticated(ctx, true)
		ctx = layouts.SetUserID(ctx, s.SubjectID)
		ctx = layouts.SetUserName(ctx, s.DisplayName)
		ctx = layouts.SetUserEmail(ctx, s.Email)
		ctx = layouts.SetIsAdmin(ctx, s.IsElevated())
	}
	ctx = layouts.SetCSRFToken(ctx, middleware.GetCSRFToken(c))
	if f := middleware.GetFlash(c); f != nil {
		ctx = layouts.SetFlash(ctx, string(f.Kind), f.Message)
	}
	ctx = layouts.SetActivePath(ctx, c.Request().URL.Path)
	ctx = layouts.SetRequestID(ctx, middleware.GetRequestID(c))
	return ctx
}
