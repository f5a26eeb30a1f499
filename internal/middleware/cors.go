package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins may call the JSON API from another origin. "*" allows
	// any origin but never with credentials.
	AllowedOrigins []string

	// AllowCredentials lets the browser send the session cookie, which the
	// session API needs to answer for the signed-in user.
	AllowCredentials bool
}

// CORS handles cross-origin requests to the read-only JSON API, used by
// widgets on sibling marketing sites. HTML routes are same-origin only.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	allowAll := false
	originSet := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			allowAll = true
		}
		if o != "" {
			originSet[o] = true
		}
	}

	if allowAll && cfg.AllowCredentials {
		slog.Warn("CORS: wildcard origin with credentials is insecure; credentials disabled")
		cfg.AllowCredentials = false
	}

	allowMethods := strings.Join([]string{http.MethodGet, http.MethodOptions}, ", ")
	allowHeaders := strings.Join([]string{"Content-Type", "X-Requested-With", RequestIDHeader}, ", ")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			origin := req.Header.Get("Origin")
			if origin == "" || !IsAPI(c) {
				return next(c)
			}
			if !allowAll && !originSet[origin] {
				return next(c)
			}

			h := c.Response().Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if req.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", allowMethods)
				h.Set("Access-Control-Allow-Headers", allowHeaders)
				h.Set("Access-Control-Max-Age", "3600")
				return c.NoContent(http.StatusNoContent)
			}

			h.Set("Access-Control-Expose-Headers", RequestIDHeader)
			return next(c)
		}
	}
}
