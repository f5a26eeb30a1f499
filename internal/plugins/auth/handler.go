package auth

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/meridianhq/corpweb/internal/apperror"
	"github.com/meridianhq/corpweb/internal/gate"
	"github.com/meridianhq/corpweb/internal/middleware"
	"github.com/meridianhq/corpweb/internal/validate"
)

// returnToCookieName carries the post-login destination across the
// identity-provider round trip.
const returnToCookieName = "meridian_return_to"

// returnToCookieMaxAge bounds how long a provider sign-in may take.
const returnToCookieMaxAge = 10 * 60

// HandlerConfig holds the cookie and timing settings for the handlers.
type HandlerConfig struct {
	// CookieName is the session cookie name.
	CookieName string

	// SecureCookies forces the Secure flag even without TLS on the hop.
	SecureCookies bool

	// FailedRedirectDelay is how long the callback failure page waits
	// before sending the browser back to the login page.
	FailedRedirectDelay time.Duration
}

// Handler handles HTTP requests for authentication. Handlers are thin: they
// bind the request, call the service, resolve the gate and render the
// response. No business logic lives here.
type Handler struct {
	service AuthService
	cfg     HandlerConfig
}

// NewHandler creates a new auth handler with the given service.
func NewHandler(service AuthService, cfg HandlerConfig) *Handler {
	if cfg.CookieName == "" {
		cfg.CookieName = "meridian_session"
	}
	return &Handler{service: service, cfg: cfg}
}

// --- Login ---

// LoginForm renders the login page (GET /login).
func (h *Handler) LoginForm(c echo.Context) error {
	return h.loginForm(c, gate.EntryRegular)
}

// AdminLoginForm renders the administrator login page (GET /admin/login).
func (h *Handler) AdminLoginForm(c echo.Context) error {
	return h.loginForm(c, gate.EntryAdmin)
}

// Login processes the login form submission (POST /login).
func (h *Handler) Login(c echo.Context) error {
	return h.login(c, gate.EntryRegular)
}

// AdminLogin processes the administrator login form (POST /admin/login).
func (h *Handler) AdminLogin(c echo.Context) error {
	return h.login(c, gate.EntryAdmin)
}

func (h *Handler) loginForm(c echo.Context, entry gate.Entry) error {
	if s := GetSession(c); s != nil {
		// The gate middleware has already moved sessions that arrived
		// through the wrong entry point.
		return middleware.Redirect(c, gate.LandingFor(s))
	}

	view := loginView{
		Admin:     entry == gate.EntryAdmin,
		ReturnTo:  gate.SafeReturnTo(c.QueryParam(gate.ReturnToParam), ""),
		Providers: h.service.Providers(),
	}
	return middleware.Render(c, http.StatusOK, LoginPage(view))
}

func (h *Handler) login(c echo.Context, entry gate.Entry) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	view := loginView{
		Admin:     entry == gate.EntryAdmin,
		Username:  strings.TrimSpace(req.Username),
		ReturnTo:  gate.SafeReturnTo(req.ReturnTo, ""),
		Providers: h.service.Providers(),
	}

	res, err := h.service.Login(c.Request().Context(), LoginInput{
		ClientKey: middleware.ClientKey(c),
		Username:  req.Username,
		Password:  req.Password,
		Entry:     entry,
		RemoteIP:  c.RealIP(),
		Replaces:  GetSessionID(c),
	})
	if err != nil {
		// The browser's session, if any, is left exactly as it was.
		view.Error, view.Fields = formError(err)
		if middleware.IsHTMX(c) {
			return middleware.Render(c, http.StatusOK, LoginFormComponent(view))
		}
		return middleware.Render(c, apperror.SafeCode(err), LoginPage(view))
	}

	h.setSessionCookie(c, res.SessionID, res.TTL)

	target := view.ReturnTo
	if target == "" {
		target = defaultLanding(entry)
	}
	d := gate.Resolve(res.Session, gate.Intent{Path: target, Entry: entry})

	middleware.Logger(c).Debug("login resolved",
		slog.String("rule", d.Rule.String()),
		slog.String("path", d.Path),
		slog.String("state", res.State.String()),
	)

	if d.Notice != "" {
		middleware.SetFlash(c, middleware.FlashInfo, d.Notice)
	} else {
		middleware.SetFlash(c, middleware.FlashSuccess, "Welcome back, "+res.Session.DisplayName+".")
	}
	return middleware.Redirect(c, d.Path)
}

// --- Registration ---

// RegisterForm renders the registration page (GET /register).
func (h *Handler) RegisterForm(c echo.Context) error {
	return h.registerForm(c, false)
}

// AdminRegisterForm renders the administrator registration page
// (GET /admin/register).
func (h *Handler) AdminRegisterForm(c echo.Context) error {
	return h.registerForm(c, true)
}

// Register processes the registration form (POST /register).
func (h *Handler) Register(c echo.Context) error {
	return h.register(c, false)
}

// AdminRegister processes the administrator registration form
// (POST /admin/register).
func (h *Handler) AdminRegister(c echo.Context) error {
	return h.register(c, true)
}

func (h *Handler) registerForm(c echo.Context, admin bool) error {
	if s := GetSession(c); s != nil {
		return middleware.Redirect(c, gate.LandingFor(s))
	}
	return middleware.Render(c, http.StatusOK, RegisterPage(registerView{Admin: admin}))
}

func (h *Handler) register(c echo.Context, admin bool) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	msg, err := h.service.Register(c.Request().Context(), RegisterInput{
		RegisterRequest: req,
		Admin:           admin,
		RemoteIP:        c.RealIP(),
	})
	if err != nil {
		view := registerView{Admin: admin, Form: req}
		view.Error, view.Fields = formError(err)
		if middleware.IsHTMX(c) {
			return middleware.Render(c, http.StatusOK, RegisterFormComponent(view))
		}
		return middleware.Render(c, apperror.SafeCode(err), RegisterPage(view))
	}

	// Registration never signs the user in; they continue at the login
	// page for the same audience.
	middleware.SetFlash(c, middleware.FlashSuccess, msg)
	if admin {
		return middleware.Redirect(c, gate.AdminLoginPath)
	}
	return middleware.Redirect(c, gate.LoginPath)
}

// --- Identity provider ---

// OAuthStart sends the browser to the backend's provider sign-in
// (GET /auth/:provider).
func (h *Handler) OAuthStart(c echo.Context) error {
	target, err := h.service.OAuthURL(c.Param("provider"))
	if err != nil {
		return err
	}

	if rt := gate.SafeReturnTo(c.QueryParam(gate.ReturnToParam), ""); rt != "" {
		c.SetCookie(&http.Cookie{
			Name:     returnToCookieName,
			Value:    rt,
			Path:     gate.CallbackPath,
			HttpOnly: true,
			Secure:   h.secure(c),
			SameSite: http.SameSiteLaxMode,
			MaxAge:   returnToCookieMaxAge,
		})
	}
	return c.Redirect(http.StatusSeeOther, target)
}

// Callback completes a provider sign-in (GET /auth/callback). A malformed
// callback renders a failure notice that returns to the login page after
// a short delay; any existing session is left intact.
func (h *Handler) Callback(c echo.Context) error {
	res, err := h.service.Callback(c.Request().Context(), c.QueryParams(), c.RealIP(), GetSessionID(c))
	if err != nil {
		middleware.Logger(c).Warn("oauth callback rejected", slog.String("error", err.Error()))
		return middleware.Render(c, apperror.SafeCode(err),
			CallbackFailedPage(apperror.SafeMessage(err), gate.LoginPath, h.cfg.FailedRedirectDelay))
	}

	h.setSessionCookie(c, res.SessionID, res.TTL)

	target := gate.LandingPath
	if ck, err := c.Cookie(returnToCookieName); err == nil {
		target = gate.SafeReturnTo(ck.Value, target)
		h.clearCookie(c, returnToCookieName, gate.CallbackPath)
	}

	d := gate.Resolve(res.Session, gate.Intent{Path: target, Entry: gate.EntryRegular})
	if d.Notice != "" {
		middleware.SetFlash(c, middleware.FlashInfo, d.Notice)
	} else {
		middleware.SetFlash(c, middleware.FlashSuccess, "Welcome, "+res.Session.DisplayName+".")
	}
	return c.Redirect(http.StatusSeeOther, d.Path)
}

// --- Password change ---

// ChangePasswordForm renders the password change page (GET /change-password).
func (h *Handler) ChangePasswordForm(c echo.Context) error {
	s := GetSession(c)
	if s == nil {
		return middleware.Redirect(c, gate.WithReturnTo(gate.LoginPath, gate.ChangePasswordPath))
	}
	return middleware.Render(c, http.StatusOK, ChangePasswordPage(changePasswordView{Required: s.MustChangePassword}))
}

// ChangePassword processes the password change form (POST /change-password).
func (h *Handler) ChangePassword(c echo.Context) error {
	s := GetSession(c)
	if s == nil {
		return middleware.Redirect(c, gate.WithReturnTo(gate.LoginPath, gate.ChangePasswordPath))
	}

	var req ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	next, err := h.service.ChangePassword(c.Request().Context(), ChangePasswordInput{
		SessionID: GetSessionID(c),
		Session:   s,
		Current:   req.Current,
		New:       req.New,
		Confirm:   req.Confirm,
		RemoteIP:  c.RealIP(),
	})
	if err != nil {
		if apperror.IsUnauthorized(err) {
			// The service already expired the session.
			return h.signedOut(c, NoticeSessionExpired)
		}
		view := changePasswordView{Required: s.MustChangePassword}
		view.Error, view.Fields = formError(err)
		if middleware.IsHTMX(c) {
			return middleware.Render(c, http.StatusOK, ChangePasswordFormComponent(view))
		}
		return middleware.Render(c, apperror.SafeCode(err), ChangePasswordPage(view))
	}

	d := gate.Resolve(next, gate.Intent{Path: gate.LandingFor(next)})
	middleware.SetFlash(c, middleware.FlashSuccess, "Your password has been changed.")
	return middleware.Redirect(c, d.Path)
}

// --- Logout ---

// Logout destroys the session and clears the cookie (POST /logout).
func (h *Handler) Logout(c echo.Context) error {
	if id := GetSessionID(c); id != "" {
		// Ignore errors -- the cookie is cleared regardless.
		_ = h.service.Logout(c.Request().Context(), id, GetSession(c), c.RealIP())
	}
	h.clearCookie(c, h.cfg.CookieName, "/")
	middleware.SetFlash(c, middleware.FlashSuccess, "You have been signed out.")
	return middleware.Redirect(c, gate.LoginPath)
}

// ExpireSession handles a backend rejection of the session token seen
// anywhere in the app: the session is destroyed and the browser is sent
// to the login page with a notice. Called by the central error handler.
func (h *Handler) ExpireSession(c echo.Context) error {
	if id := GetSessionID(c); id != "" {
		if err := h.service.ExpireSession(c.Request().Context(), id, GetSession(c)); err != nil {
			middleware.Logger(c).Warn("failed to expire session", slog.Any("error", err))
		}
	}
	return h.signedOut(c, NoticeSessionExpired)
}

// NoticeSessionExpired is shown after the backend rejects a token.
const NoticeSessionExpired = "Your session has expired. Please sign in again."

// signedOut clears the cookie and redirects to login, keeping the current
// page as the return target for page navigations.
func (h *Handler) signedOut(c echo.Context, notice string) error {
	h.clearCookie(c, h.cfg.CookieName, "/")
	c.Set(contextKeySession, nil)
	c.Set(contextKeySessionID, "")

	if middleware.IsAPI(c) {
		return apperror.NewUnauthorized(notice)
	}

	middleware.SetFlash(c, middleware.FlashInfo, notice)
	req := c.Request()
	location := gate.LoginFor(req.URL.Path)
	if req.Method == http.MethodGet {
		location = gate.WithReturnTo(location, gate.SafeReturnTo(req.URL.RequestURI(), ""))
	}
	return middleware.Redirect(c, location)
}

// --- Cookie helpers ---

// getSessionID reads the session ID from the cookie.
func getSessionID(c echo.Context, name string) string {
	cookie, err := c.Cookie(name)
	if err != nil || cookie.Value == "" {
		return ""
	}
	return cookie.Value
}

// setSessionCookie sets the session cookie on the response. The cookie is
// HttpOnly (JS can't read it), Secure if behind TLS, and SameSite=Lax. It
// lives exactly as long as the Redis entry.
func (h *Handler) setSessionCookie(c echo.Context, id string, ttl time.Duration) {
	c.SetCookie(&http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure(c),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl / time.Second),
	})
}

// clearCookie removes a cookie by setting MaxAge to -1.
func (h *Handler) clearCookie(c echo.Context, name, path string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		HttpOnly: true,
		Secure:   h.secure(c),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func (h *Handler) secure(c echo.Context) bool {
	req := c.Request()
	return h.cfg.SecureCookies || req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https"
}

// --- Helpers ---

// defaultLanding is where a sign-in through entry goes without a return target.
func defaultLanding(entry gate.Entry) string {
	if entry == gate.EntryAdmin {
		return gate.AdminLandingPath
	}
	return gate.LandingPath
}

// formError splits a service error into a form-level message and per-field
// messages. Validation errors are shown next to their fields only.
func formError(err error) (string, map[string]string) {
	if fields := validate.FieldMap(err); len(fields) > 0 {
		return "", fields
	}
	return apperror.SafeMessage(err), nil
}
