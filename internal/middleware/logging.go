// Package middleware provides HTTP middleware for the site's Echo server.
// Middleware is applied globally or per route group; see
// internal/app/routes.go for registration.
package middleware

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDHeader carries the per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

// Echo context keys owned by this package.
const (
	contextKeyRequestID = "request_id"
	contextKeyLogger    = "request_logger"
)

// RequestID assigns every request a correlation ID, reusing a well-formed
// incoming header from a trusted proxy, and stores a logger carrying it.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(id); err != nil {
				if v7, err := uuid.NewV7(); err == nil {
					id = v7.String()
				} else {
					id = uuid.NewString()
				}
			}

			c.Set(contextKeyRequestID, id)
			c.Set(contextKeyLogger, slog.Default().With(slog.String("request_id", id)))
			c.Response().Header().Set(RequestIDHeader, id)

			return next(c)
		}
	}
}

// GetRequestID returns the request's correlation ID, or "".
func GetRequestID(c echo.Context) string {
	id, _ := c.Get(contextKeyRequestID).(string)
	return id
}

// Logger returns the request-scoped logger, falling back to slog.Default.
func Logger(c echo.Context) *slog.Logger {
	if l, ok := c.Get(contextKeyLogger).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// RequestLogger logs every request with method, path, status, latency and
// remote IP, at a level that follows the status code.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", res.Status),
				slog.Duration("latency", time.Since(start)),
				slog.String("remote_ip", c.RealIP()),
			}

			// Query strings on auth routes can carry tokens; never log them.
			if req.URL.RawQuery != "" && !isSensitivePath(req.URL.Path) {
				attrs = append(attrs, slog.String("query", req.URL.RawQuery))
			}

			level := slog.LevelInfo
			if res.Status >= 500 {
				level = slog.LevelError
			} else if res.Status >= 400 {
				level = slog.LevelWarn
			}

			Logger(c).LogAttrs(req.Context(), level, "request", attrs...)

			return err
		}
	}
}

func isSensitivePath(p string) bool {
	return len(p) >= 5 && p[:5] == "/auth"
}
