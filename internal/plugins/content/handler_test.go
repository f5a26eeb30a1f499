package content

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/corpweb/internal/apperror"
	"github.com/meridianhq/corpweb/internal/backend"
	"github.com/meridianhq/corpweb/internal/plugins/audit"
	"github.com/meridianhq/corpweb/internal/plugins/auth"
	"github.com/meridianhq/corpweb/internal/session"
)

// mockFeed implements ActivityFeed.
type mockFeed struct {
	events []audit.AuthEvent
	err    error
}

func (m *mockFeed) Latest(ctx context.Context, n int) ([]audit.AuthEvent, error) {
	return m.events, m.err
}

func (m *mockFeed) Summary(ctx context.Context) (*audit.Summary, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &audit.Summary{Logins: 1200, Failures: 3}, nil
}

func serve(t *testing.T, h *Handler, target string, s *session.Session, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		_ = c.NoContent(apperror.SafeCode(err))
	}
	RegisterRoutes(e, h)

	// Stands in for the auth plugin's LoadSession.
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if s != nil {
				auth.SetSession(c, "sid", s)
			}
			return next(c)
		}
	})

	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func newTestHandler(t *testing.T, feed ActivityFeed) *Handler {
	t.Helper()
	api := healthyAPI()
	api.statsFn = func(context.Context, string) (*backend.DashboardStats, error) {
		return &backend.DashboardStats{Services: 2, ActiveUsers: 1234, UpdatedAt: time.Now()}, nil
	}
	return NewHandler(newTestContentService(t, api, nil), feed)
}

func TestHome(t *testing.T) {
	rec := serve(t, newTestHandler(t, nil), "/", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `href="/services/cloud"`)
	assert.Contains(t, body, "Pinned welcome")
	assert.NotContains(t, body, degradedNotice)
}

func TestTeam_FilterFragment(t *testing.T) {
	h := newTestHandler(t, nil)

	rec := serve(t, h, "/team?department=Design", nil, map[string]string{
		"HX-Request": "true",
		"HX-Target":  resultsID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.NotContains(t, body, "<!doctype html>")
	assert.Contains(t, body, "Zoë Park")
	assert.NotContains(t, body, "Ana Ruiz")
	assert.Contains(t, body, "Showing 1 of 4")

	rec = serve(t, h, "/team?department=Design", nil, nil)
	assert.Contains(t, rec.Body.String(), "<!doctype html>")
	assert.Contains(t, rec.Body.String(), `<option value="Design" selected>`)
}

func TestAnnouncementDetail(t *testing.T) {
	h := newTestHandler(t, nil)

	rec := serve(t, h, "/announcements/new", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<p>We moved!</p>")
	assert.NotContains(t, rec.Body.String(), "alert(1)")

	rec = serve(t, h, "/announcements/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTools_AdminOnlyForElevated(t *testing.T) {
	h := newTestHandler(t, nil)

	rec := serve(t, h, "/tools", nil, nil)
	assert.NotContains(t, rec.Body.String(), "Admin Console")
	assert.Contains(t, rec.Body.String(), "return_to=%2Ftools")

	rec = serve(t, h, "/tools", &session.Session{DisplayName: "Ada", Permissions: []string{"manage_users"}}, nil)
	assert.Contains(t, rec.Body.String(), "Admin Console")
}

func TestDashboard(t *testing.T) {
	h := newTestHandler(t, nil)

	rec := serve(t, h, "/dashboard", &session.Session{DisplayName: "Bob", Role: session.RoleUser, Token: "tok"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Welcome, Bob")
	assert.Contains(t, body, "1,234")
	assert.NotContains(t, body, "Admin Console")
}

func TestDashboard_TokenRejected(t *testing.T) {
	api := healthyAPI()
	api.statsFn = func(context.Context, string) (*backend.DashboardStats, error) {
		return nil, apperror.NewUnauthorized("your session has expired")
	}
	h := NewHandler(newTestContentService(t, api, nil), nil)

	rec := serve(t, h, "/dashboard", &session.Session{DisplayName: "Bob", Token: "stale"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminDashboard(t *testing.T) {
	admin := &session.Session{DisplayName: "Ada", Role: session.RoleAdmin, Token: "tok"}

	t.Run("with activity", func(t *testing.T) {
		feed := &mockFeed{events: []audit.AuthEvent{{
			Action: "auth.login", Outcome: "failure", Username: "mallory", CreatedAt: time.Now(),
		}}}
		rec := serve(t, newTestHandler(t, feed), "/admin/dashboard", admin, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "mallory")
		assert.Contains(t, body, "1,200 sign-ins")
	})

	t.Run("activity failure hides the section", func(t *testing.T) {
		rec := serve(t, newTestHandler(t, &mockFeed{err: errors.New("db down")}), "/admin/dashboard", admin, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "No account activity recorded yet.")
	})

	t.Run("audit disabled", func(t *testing.T) {
		rec := serve(t, newTestHandler(t, nil), "/admin/dashboard", admin, nil)
		assert.Contains(t, rec.Body.String(), "Activity logging is turned off.")
	})

	t.Run("regular session", func(t *testing.T) {
		rec := serve(t, newTestHandler(t, nil), "/admin/dashboard", &session.Session{Role: session.RoleUser}, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
