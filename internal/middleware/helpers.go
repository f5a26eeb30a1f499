package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// LayoutInjector copies layout-relevant data from the Echo context (session,
// CSRF token, flash) into the Go context so templ components can read it.
// Registered once at startup in app/routes.go, which keeps this package free
// of plugin imports.
var LayoutInjector func(echo.Context, context.Context) context.Context

// IsHTMX returns true if the request was initiated by HTMX and is not a
// boosted navigation. Boosted requests expect full pages.
func IsHTMX(c echo.Context) bool {
	return c.Request().Header.Get("HX-Request") == "true" &&
		c.Request().Header.Get("HX-Boosted") != "true"
}

// IsAPI returns true for requests under /api/, which always get JSON.
func IsAPI(c echo.Context) bool {
	p := c.Request().URL.Path
	return p == "/api" || strings.HasPrefix(p, "/api/")
}

// Render writes a templ component with the given status code, running the
// LayoutInjector first.
func Render(c echo.Context, statusCode int, component templ.Component) error {
	ctx := c.Request().Context()
	if LayoutInjector != nil {
		ctx = LayoutInjector(c, ctx)
	}

	c.Response().Header().Set("Content-Type", "text/html; charset=utf-8")
	c.Response().WriteHeader(statusCode)
	return component.Render(ctx, c.Response().Writer)
}

// Redirect sends the browser to location: an HX-Redirect header for HTMX
// requests, a 303 otherwise.
func Redirect(c echo.Context, location string) error {
	if c.Request().Header.Get("HX-Request") == "true" {
		c.Response().Header().Set("HX-Redirect", location)
		return c.NoContent(http.StatusNoContent)
	}
	return c.Redirect(http.StatusSeeOther, location)
}
