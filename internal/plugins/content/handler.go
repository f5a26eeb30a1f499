package content

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/meridianhq/corpweb/internal/apperror"
	"github.com/meridianhq/corpweb/internal/middleware"
	"github.com/meridianhq/corpweb/internal/plugins/audit"
	"github.com/meridianhq/corpweb/internal/plugins/auth"
)

// recentActivity is how many auth events the admin dashboard shows.
const recentActivity = 10

// dashboardNews is how many announcements the dashboards show.
const dashboardNews = 5

// ActivityFeed is the part of the audit service the admin dashboard reads.
// Nil when auditing is disabled.
type ActivityFeed interface {
	Latest(ctx context.Context, n int) ([]audit.AuthEvent, error)
	Summary(ctx context.Context) (*audit.Summary, error)
}

// Handler handles HTTP requests for the content pages. Access control is
// the gate middleware's job; handlers only read the session to personalize.
type Handler struct {
	service  ContentService
	activity ActivityFeed
}

// NewHandler creates a new content handler. activity may be nil.
func NewHandler(service ContentService, activity ActivityFeed) *Handler {
	return &Handler{service: service, activity: activity}
}

// Home renders the landing page (GET /).
func (h *Handler) Home(c echo.Context) error {
	hl, err := h.service.Highlights(c.Request().Context())
	if err != nil {
		return err
	}
	return middleware.Render(c, http.StatusOK, HomePage(hl))
}

// Services renders the services list (GET /services).
func (h *Handler) Services(c echo.Context) error {
	list, err := h.service.Services(c.Request().Context())
	if err != nil {
		return err
	}
	return middleware.Render(c, http.StatusOK, ServicesPage(list))
}

// ServiceDetail renders one service (GET /services/:slug).
func (h *Handler) ServiceDetail(c echo.Context) error {
	svc, err := h.service.Service(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	return middleware.Render(c, http.StatusOK, ServicePage(svc))
}

// Team renders the team page (GET /team). HTMX filter requests get the
// results fragment only.
func (h *Handler) Team(c echo.Context) error {
	var q TeamQuery
	if err := c.Bind(&q); err != nil {
		return apperror.NewBadRequest("invalid filter")
	}

	list, err := h.service.Team(c.Request().Context(), q)
	if err != nil {
		return err
	}
	if isFilterRequest(c) {
		return middleware.Render(c, http.StatusOK, TeamResults(list))
	}
	return middleware.Render(c, http.StatusOK, TeamPage(q, list))
}

// Announcements renders the announcements page (GET /announcements).
func (h *Handler) Announcements(c echo.Context) error {
	var q AnnouncementQuery
	if err := c.Bind(&q); err != nil {
		return apperror.NewBadRequest("invalid filter")
	}

	list, err := h.service.Announcements(c.Request().Context(), q)
	if err != nil {
		return err
	}
	if isFilterRequest(c) {
		return middleware.Render(c, http.StatusOK, AnnouncementResults(list))
	}
	return middleware.Render(c, http.StatusOK, AnnouncementsPage(q, list))
}

// AnnouncementDetail renders one announcement (GET /announcements/:id).
func (h *Handler) AnnouncementDetail(c echo.Context) error {
	a, err := h.service.Announcement(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return middleware.Render(c, http.StatusOK, AnnouncementPage(a))
}

// Tools renders the tools page (GET /tools). Admin-only tools are listed
// for elevated sessions.
func (h *Handler) Tools(c echo.Context) error {
	var q ToolQuery
	if err := c.Bind(&q); err != nil {
		return apperror.NewBadRequest("invalid filter")
	}

	list, err := h.service.Tools(c.Request().Context(), q, auth.IsAdmin(c))
	if err != nil {
		return err
	}
	if isFilterRequest(c) {
		return middleware.Render(c, http.StatusOK, ToolResults(list))
	}
	return middleware.Render(c, http.StatusOK, ToolsPage(q, list, auth.IsAuthenticated(c)))
}

// Dashboard renders the signed-in landing page (GET /dashboard).
func (h *Handler) Dashboard(c echo.Context) error {
	ctx := c.Request().Context()
	s := auth.CurrentUser(c)
	if s == nil {
		return apperror.NewUnauthorized("authentication required")
	}

	// A rejected token surfaces here as a 401 and the app error handler
	// ends the session.
	stats, err := h.service.Stats(ctx, s.Token)
	if err != nil {
		return err
	}
	news, err := h.service.Announcements(ctx, AnnouncementQuery{Limit: dashboardNews})
	if err != nil {
		return err
	}
	tools, err := h.service.Tools(ctx, ToolQuery{}, s.IsElevated())
	if err != nil {
		return err
	}

	return middleware.Render(c, http.StatusOK, DashboardPage(s.DisplayName, stats, news, tools))
}

// AdminDashboard renders the administrator landing page
// (GET /admin/dashboard).
func (h *Handler) AdminDashboard(c echo.Context) error {
	ctx := c.Request().Context()
	s := auth.CurrentUser(c)
	if s == nil {
		return apperror.NewUnauthorized("authentication required")
	}
	if !s.IsElevated() {
		return apperror.NewForbidden("administrator access required")
	}

	stats, err := h.service.Stats(ctx, s.Token)
	if err != nil {
		return err
	}
	news, err := h.service.Announcements(ctx, AnnouncementQuery{Sort: SortNewest, Limit: dashboardNews})
	if err != nil {
		return err
	}

	view := adminView{Name: s.DisplayName, Stats: stats, News: news}
	if h.activity != nil {
		view.AuditEnabled = true
		// Activity is a convenience on this page; failures only hide it.
		if events, err := h.activity.Latest(ctx, recentActivity); err == nil {
			view.Events = events
		} else {
			middleware.Logger(c).Warn("loading recent activity", slog.Any("error", err))
		}
		if sum, err := h.activity.Summary(ctx); err == nil {
			view.Summary = sum
		} else {
			middleware.Logger(c).Warn("loading activity summary", slog.Any("error", err))
		}
	}

	return middleware.Render(c, http.StatusOK, AdminDashboardPage(view))
}

// Refresh drops the cached collections (POST /admin/content/refresh).
func (h *Handler) Refresh(c echo.Context) error {
	if err := h.service.Refresh(c.Request().Context()); err != nil {
		return err
	}
	middleware.SetFlash(c, middleware.FlashSuccess, "Content cache cleared.")
	return middleware.Redirect(c, "/admin/dashboard")
}

// isFilterRequest reports whether an HTMX filter form targeted the results
// list rather than the whole page.
func isFilterRequest(c echo.Context) bool {
	return middleware.IsHTMX(c) && c.Request().Header.Get("HX-Target") == resultsID
}
