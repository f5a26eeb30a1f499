package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/meridianhq/corpweb/internal/apperror"
	"github.com/meridianhq/corpweb/internal/gate"
	"github.com/meridianhq/corpweb/internal/middleware"
	"github.com/meridianhq/corpweb/internal/session"
)

// Context keys for storing session data in Echo context. Other plugins
// use these keys (via the exported getter functions below) to access
// the signed-in user.
const (
	contextKeySession   = "auth_session"
	contextKeySessionID = "auth_session_id"
)

// ungatedPrefixes are never redirected by the gate: assets, health checks
// and the callback, which must be able to replace any session.
var ungatedPrefixes = []string{
	"/static/",
	"/healthz",
	"/favicon.ico",
	gate.CallbackPath,
}

// pendingChangeAllowed are the only form posts and API calls a session
// that must change its password may make. Everything else is refused
// until the new password is set.
var pendingChangeAllowed = []string{
	gate.ChangePasswordPath,
	gate.LoginPath,
	gate.AdminLoginPath,
	"/logout",
	"/api/v1/session",
	"/api/v1/resolve",
}

// LoadSession returns middleware that resolves the session cookie and
// stores the session in the request context. It never rejects a request:
// anonymous visitors simply have no session, and the Gate middleware
// decides what they may see.
func (h *Handler) LoadSession() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := getSessionID(c, h.cfg.CookieName)
			if id == "" {
				return next(c)
			}

			sess, err := h.service.ValidateSession(c.Request().Context(), id)
			switch {
			case err == nil:
				SetSession(c, id, sess)
			case apperror.IsUnauthorized(err):
				// Expired or unknown -- clear the stale cookie.
				h.clearCookie(c, h.cfg.CookieName, "/")
			default:
				return err
			}

			return next(c)
		}
	}
}

// Gate returns middleware that applies gate.Resolve to page navigations.
// Only GET and HEAD requests outside /api are resolved. Form posts and API
// calls are left to their handlers, except that a session which must
// change its password may only reach the paths in pendingChangeAllowed.
func Gate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if ungated(req.URL.Path) {
				return next(c)
			}
			if (req.Method != http.MethodGet && req.Method != http.MethodHead) || middleware.IsAPI(c) {
				return guardPendingChange(c, next)
			}

			d := gate.Resolve(GetSession(c), gate.Intent{Path: req.URL.RequestURI()})
			if !d.Redirects() {
				return next(c)
			}

			middleware.Logger(c).Debug("gate redirect",
				slog.String("rule", d.Rule.String()),
				slog.String("from", gate.CleanPath(d.Target)),
				slog.String("to", d.Path),
			)

			if d.Notice != "" {
				middleware.SetFlash(c, middleware.FlashInfo, d.Notice)
			}
			return middleware.Redirect(c, d.Location())
		}
	}
}

// guardPendingChange refuses state-changing and API requests from a
// session that must change its password. API callers get a 403; browsers
// are sent to the password-change page.
func guardPendingChange(c echo.Context, next echo.HandlerFunc) error {
	s := GetSession(c)
	if s == nil || !s.MustChangePassword || pendingChangeAllows(c.Request().URL.Path) {
		return next(c)
	}

	middleware.Logger(c).Debug("request blocked pending password change",
		slog.String("method", c.Request().Method),
		slog.String("path", c.Request().URL.Path),
	)

	if middleware.IsAPI(c) {
		return apperror.NewForbidden("password change required")
	}
	middleware.SetFlash(c, middleware.FlashInfo, gate.NoticePasswordChange)
	return middleware.Redirect(c, gate.ChangePasswordPath)
}

// RequireElevated returns middleware for endpoints that only
// administrators may call: 401 without a session, 403 for regular users
// and for administrators who still have to change their password.
func RequireElevated() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s := GetSession(c)
			if s == nil {
				return apperror.NewUnauthorized("authentication required")
			}
			if !s.IsElevated() {
				return apperror.NewForbidden("administrator access required")
			}
			if s.MustChangePassword {
				return apperror.NewForbidden("password change required")
			}
			return next(c)
		}
	}
}

func pendingChangeAllows(p string) bool {
	p = gate.CleanPath(p)
	for _, allowed := range pendingChangeAllowed {
		if p == allowed {
			return true
		}
	}
	return false
}

func ungated(p string) bool {
	for _, prefix := range ungatedPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// --- Exported getters for other plugins ---

// SetSession stores a resolved session and its ID on the request.
func SetSession(c echo.Context, id string, s *session.Session) {
	c.Set(contextKeySession, s)
	c.Set(contextKeySessionID, id)
}

// GetSession retrieves the session from the Echo context. Returns nil for
// anonymous requests.
func GetSession(c echo.Context) *session.Session {
	s, ok := c.Get(contextKeySession).(*session.Session)
	if !ok {
		return nil
	}
	return s
}

// GetSessionID retrieves the session ID from the Echo context, or "".
func GetSessionID(c echo.Context) string {
	id, _ := c.Get(contextKeySessionID).(string)
	return id
}

// CurrentUser returns the signed-in session, or nil. An alias of
// GetSession named for template and handler call sites.
func CurrentUser(c echo.Context) *session.Session {
	return GetSession(c)
}

// IsAuthenticated reports whether the request has a live session.
func IsAuthenticated(c echo.Context) bool {
	return GetSession(c) != nil
}

// IsAdmin reports whether the request's session is elevated. This is the
// only admin check handlers and templates should use.
func IsAdmin(c echo.Context) bool {
	return GetSession(c).IsElevated()
}

// Token returns the backend token of the current session, or "" for
// anonymous requests.
func Token(c echo.Context) string {
	if s := GetSession(c); s != nil {
		return s.Token
	}
	return ""
}
