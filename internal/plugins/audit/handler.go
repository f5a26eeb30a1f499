package audit

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/meridianhq/corpweb/internal/middleware"
)

// Handler handles HTTP requests for the auth event log. Handlers are thin:
// bind request, call service, render response. No business logic lives here.
type Handler struct {
	service AuditService
}

// NewHandler creates a new audit handler.
func NewHandler(service AuditService) *Handler {
	return &Handler{service: service}
}

// Activity renders the account activity page (GET /admin/activity).
// Reaching it requires an elevated session; the gate middleware enforces
// that for the whole admin area.
func (h *Handler) Activity(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}

	ctx := c.Request().Context()

	events, total, err := h.service.Activity(ctx, page)
	if err != nil {
		return err
	}

	summary, err := h.service.Summary(ctx)
	if err != nil {
		return err
	}

	return middleware.Render(c, http.StatusOK, ActivityPage(summary, events, total, page, perPage))
}

// Events returns one page of events as JSON (GET /api/v1/admin/auth-events).
func (h *Handler) Events(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))

	events, total, err := h.service.Activity(c.Request().Context(), page)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"events": events,
		"total":  total,
	})
}
