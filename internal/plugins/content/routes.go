package content

import (
	"github.com/labstack/echo/v4"

	"github.com/meridianhq/corpweb/internal/gate"
	"github.com/meridianhq/corpweb/internal/plugins/auth"
)

// RegisterRoutes sets up the content pages. The gate middleware decides
// who reaches the dashboards; the cache refresh also requires an elevated
// session because it is a POST the gate does not inspect.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET(gate.HomePath, h.Home)
	e.GET("/services", h.Services)
	e.GET("/services/:slug", h.ServiceDetail)
	e.GET("/team", h.Team)
	e.GET("/announcements", h.Announcements)
	e.GET("/announcements/:id", h.AnnouncementDetail)
	e.GET("/tools", h.Tools)

	e.GET(gate.LandingPath, h.Dashboard)
	e.GET(gate.AdminLandingPath, h.AdminDashboard)
	e.POST("/admin/content/refresh", h.Refresh, auth.RequireElevated())
}
