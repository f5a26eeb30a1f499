// Package app is the application bootstrap and dependency injection root.
// It creates and holds all shared infrastructure (Redis client, optional
// DB pool, backend client, Echo instance) and wires together all plugins.
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/meridianhq/corpweb/internal/apperror"
	"github.com/meridianhq/corpweb/internal/backend"
	"github.com/meridianhq/corpweb/internal/config"
	"github.com/meridianhq/corpweb/internal/gate"
	"github.com/meridianhq/corpweb/internal/middleware"
	"github.com/meridianhq/corpweb/internal/plugins/auth"
	"github.com/meridianhq/corpweb/internal/templates/pages"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the MariaDB pool for the audit log. Nil when auditing is off.
	DB *sql.DB

	// Redis holds sessions and cached content.
	Redis *redis.Client

	// Backend is the REST API client shared by the auth and content plugins.
	Backend *backend.Client

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	// authHandler ends sessions whose token the backend rejected. Set by
	// RegisterRoutes.
	authHandler *auth.Handler
}

// New creates a new App instance with the given dependencies and configures
// the Echo server with global middleware and error handling.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client, api *backend.Client) *App {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	// Configure trusted reverse proxy IPs so c.RealIP() returns the actual
	// client IP instead of the proxy's IP. Rate limiting, the duplicate
	// login key and the audit log all depend on it.
	middleware.TrustedProxies(e, cfg.TrustedProxies)

	app := &App{
		Config:  cfg,
		DB:      db,
		Redis:   rdb,
		Backend: api,
		Echo:    e,
	}

	// Register global middleware in order of execution.
	app.setupMiddleware()

	// Register the custom error handler that maps AppErrors to HTTP responses.
	e.HTTPErrorHandler = app.errorHandler

	// Serve static files (CSS, JS, images).
	e.Static("/static", "static")

	return app
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first. Session loading and the
// gate are added by RegisterRoutes once the auth service exists.
func (a *App) setupMiddleware() {
	// Panic recovery -- must be outermost to catch panics from all other middleware.
	a.Echo.Use(middleware.Recovery())

	// Request ID before logging so every log line carries it.
	a.Echo.Use(middleware.RequestID())
	a.Echo.Use(middleware.RequestLogger())

	// Security headers -- CSP, X-Frame-Options, X-Content-Type-Options, etc.
	a.Echo.Use(middleware.SecurityHeaders(a.Config.IsProduction()))

	// CORS -- only the JSON session and gate endpoints are called cross-origin.
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   append([]string{a.Config.BaseURL}, a.Config.CORSOrigins...),
		AllowCredentials: true,
	}))

	// CSRF -- double-submit cookie pattern on all state-changing requests.
	a.Echo.Use(middleware.CSRF(a.Config.IsProduction()))

	// Flash messages carried across redirects.
	a.Echo.Use(middleware.Flashes())
}

// errorHandler is the custom Echo error handler. It maps domain errors
// (AppError) to appropriate HTTP responses, and renders error pages for
// browser requests or JSON for API requests.
//
// For HTMX partial requests that hit errors, we set HX-Retarget and
// HX-Reswap headers so the error page replaces the full body instead of
// being swapped into a partial target.
//
// A 401 while a session exists means the backend rejected its token: the
// session is destroyed and the browser goes to the login page. Anonymous
// 401s redirect to the login page for the requested area.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	logger := middleware.Logger(c)
	code := http.StatusInternalServerError
	message := defaultErrorMessage(code)
	errType := "internal_error"

	// Check if it's our domain error type.
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
		message = appErr.Message
		errType = appErr.Type

		// Log internal errors with the underlying cause.
		if appErr.Internal != nil {
			logger.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
			)
		}
	} else {
		// Check for Echo's built-in HTTP errors (e.g., 404 from router).
		var echoErr *echo.HTTPError
		if errors.As(err, &echoErr) {
			code = echoErr.Code
			message = defaultErrorMessage(code)
			errType = "http_error"
		} else {
			// Truly unexpected error -- log it.
			logger.Error("unhandled error", slog.Any("error", err))
		}
	}

	if apperror.IsUnauthorized(err) && auth.IsAuthenticated(c) && a.authHandler != nil {
		// Browser requests are redirected here; API requests get the 401
		// back to report as JSON below.
		if err := a.authHandler.ExpireSession(c); err == nil {
			return
		}
	}

	// API requests always get JSON.
	if middleware.IsAPI(c) {
		body := map[string]any{
			"error":   errType,
			"message": message,
		}
		if appErr != nil && len(appErr.Fields) > 0 {
			body["fields"] = appErr.Fields
		}
		_ = c.JSON(code, body)
		return
	}

	if code == http.StatusUnauthorized {
		req := c.Request()
		location := gate.LoginFor(req.URL.Path)
		if req.Method == http.MethodGet {
			location = gate.WithReturnTo(location, gate.SafeReturnTo(req.URL.RequestURI(), ""))
		}
		middleware.SetFlash(c, middleware.FlashInfo, gate.NoticeSignIn)
		_ = middleware.Redirect(c, location)
		return
	}

	if middleware.IsHTMX(c) {
		// Retarget to body so the full error page replaces the entire page
		// instead of landing in a partial target.
		c.Response().Header().Set("HX-Retarget", "body")
		c.Response().Header().Set("HX-Reswap", "innerHTML")
	}

	if err := middleware.Render(c, code, pages.ErrorPage(code, message)); err != nil {
		logger.Error("rendering error page", slog.Any("error", err))
	}
}

// defaultErrorMessage returns a user-friendly message for common HTTP status codes
// when no specific message was provided by the error.
func defaultErrorMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "The request was invalid or cannot be processed."
	case http.StatusUnauthorized:
		return "You need to sign in to access this page."
	case http.StatusForbidden:
		return "You don't have permission to access this page."
	case http.StatusNotFound:
		return "The page you're looking for doesn't exist or has been moved."
	case http.StatusMethodNotAllowed:
		return "This action is not allowed."
	case http.StatusTooManyRequests:
		return "You're making too many requests. Please slow down."
	case http.StatusBadGateway:
		return "We couldn't reach our services. Please try again shortly."
	case http.StatusServiceUnavailable:
		return "The service is temporarily unavailable. Please try again later."
	default:
		return "Something went wrong on our end. Please try again."
	}
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting web server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	return a.Echo.Start(addr)
}
