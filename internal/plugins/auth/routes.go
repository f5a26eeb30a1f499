package auth

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/meridianhq/corpweb/internal/gate"
	"github.com/meridianhq/corpweb/internal/middleware"
)

// RegisterRoutes sets up all auth-related routes on the given Echo instance.
// Auth routes are public (no session required); LoadSession and Gate are
// installed globally by the app.
//
// POST endpoints are rate-limited to slow down credential stuffing: 10
// attempts per IP per minute for sign-in (both entry points share one
// budget), 5 for registration. ctx stops the limiters' cleanup loops.
func RegisterRoutes(ctx context.Context, e *echo.Echo, h *Handler) {
	loginLimit := middleware.RateLimit(ctx, 10, time.Minute)
	registerLimit := middleware.RateLimit(ctx, 5, time.Minute)
	callbackLimit := middleware.RateLimit(ctx, 20, time.Minute)

	e.GET(gate.LoginPath, h.LoginForm)
	e.POST(gate.LoginPath, h.Login, loginLimit)
	e.GET(gate.AdminLoginPath, h.AdminLoginForm)
	e.POST(gate.AdminLoginPath, h.AdminLogin, loginLimit)

	e.GET(gate.RegisterPath, h.RegisterForm)
	e.POST(gate.RegisterPath, h.Register, registerLimit)
	e.GET(gate.AdminRegisterPath, h.AdminRegisterForm)
	e.POST(gate.AdminRegisterPath, h.AdminRegister, registerLimit)

	// The static callback route wins over the provider parameter.
	e.GET(gate.CallbackPath, h.Callback, callbackLimit)
	e.GET("/auth/:provider", h.OAuthStart)

	e.GET(gate.ChangePasswordPath, h.ChangePasswordForm)
	e.POST(gate.ChangePasswordPath, h.ChangePassword, loginLimit)

	e.POST("/logout", h.Logout)

	api := e.Group("/api/v1")
	api.GET("/session", h.SessionInfo)
	api.GET("/resolve", h.Resolve)
}
