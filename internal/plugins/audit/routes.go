package audit

import (
	"github.com/labstack/echo/v4"

	"github.com/meridianhq/corpweb/internal/plugins/auth"
)

// RegisterRoutes sets up the activity routes. The HTML page lives in the
// admin area, which the gate middleware already restricts to elevated
// sessions; the JSON route sits outside it and checks the role itself.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/admin/activity", h.Activity)

	api := e.Group("/api/v1/admin", auth.RequireElevated())
	api.GET("/auth-events", h.Events)
}
