package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/meridianhq/corpweb/internal/apperror"
	"github.com/meridianhq/corpweb/internal/authflow"
	"github.com/meridianhq/corpweb/internal/gate"
	"github.com/meridianhq/corpweb/internal/session"
	"github.com/meridianhq/corpweb/internal/validate"
)

// --- Mock Service ---

// mockAuthService implements AuthService for handler tests.
type mockAuthService struct {
	loginFn          func(ctx context.Context, input LoginInput) (*LoginResult, error)
	callbackFn       func(ctx context.Context, q url.Values, remoteIP, replaces string) (*LoginResult, error)
	registerFn       func(ctx context.Context, input RegisterInput) (string, error)
	changePasswordFn func(ctx context.Context, input ChangePasswordInput) (*session.Session, error)
	logoutFn         func(ctx context.Context, id string, s *session.Session, remoteIP string) error
	expireFn         func(ctx context.Context, id string, s *session.Session) error
	validateFn       func(ctx context.Context, id string) (*session.Session, error)
}

func (m *mockAuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, input)
	}
	return nil, apperror.NewInvalidCredentials("")
}

func (m *mockAuthService) Callback(ctx context.Context, q url.Values, remoteIP, replaces string) (*LoginResult, error) {
	if m.callbackFn != nil {
		return m.callbackFn(ctx, q, remoteIP, replaces)
	}
	return nil, apperror.NewCallback("bad callback")
}

func (m *mockAuthService) Register(ctx context.Context, input RegisterInput) (string, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, input)
	}
	return "Registration successful.", nil
}

func (m *mockAuthService) ChangePassword(ctx context.Context, input ChangePasswordInput) (*session.Session, error) {
	if m.changePasswordFn != nil {
		return m.changePasswordFn(ctx, input)
	}
	return input.Session.WithPasswordChanged(), nil
}

func (m *mockAuthService) Logout(ctx context.Context, id string, s *session.Session, remoteIP string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, id, s, remoteIP)
	}
	return nil
}

func (m *mockAuthService) ExpireSession(ctx context.Context, id string, s *session.Session) error {
	if m.expireFn != nil {
		return m.expireFn(ctx, id, s)
	}
	return nil
}

func (m *mockAuthService) ValidateSession(ctx context.Context, id string) (*session.Session, error) {
	if m.validateFn != nil {
		return m.validateFn(ctx, id)
	}
	return nil, apperror.NewUnauthorized("session expired or invalid")
}

func (m *mockAuthService) OAuthURL(provider string) (string, error) {
	if provider != "google" {
		return "", apperror.NewNotFound("unknown sign-in provider")
	}
	return "https://api.example.com/auth/google", nil
}

func (m *mockAuthService) Providers() []string {
	return []string{"google"}
}

// --- Helpers ---

const testCookie = "meridian_session"

func newTestHandler(svc AuthService) *Handler {
	return NewHandler(svc, HandlerConfig{CookieName: testCookie, FailedRedirectDelay: 3 * time.Second})
}

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return req
}

func withSession(c echo.Context, id string, s *session.Session) {
	c.Set(contextKeySession, s)
	c.Set(contextKeySessionID, id)
}

func result(l *LoginResult) func(context.Context, LoginInput) (*LoginResult, error) {
	return func(context.Context, LoginInput) (*LoginResult, error) { return l, nil }
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func adminSession() *session.Session {
	return &session.Session{SubjectID: "1", DisplayName: "Ada", Role: session.RoleAdmin, Token: "t"}
}

func userSession() *session.Session {
	return &session.Session{SubjectID: "2", DisplayName: "Bob", Role: session.RoleUser, Token: "t"}
}

// --- Login ---

func TestLogin_ElevatedViaRegularEntryGoesToAdmin(t *testing.T) {
	sess := adminSession()
	h := newTestHandler(&mockAuthService{loginFn: result(&LoginResult{
		SessionID: "new", Session: sess, TTL: time.Hour, State: authflow.Authenticated,
	})})

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(postForm(gate.LoginPath, url.Values{"username": {"ada"}, "password": {"secret1"}}), rec)

	if err := h.Login(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != gate.AdminLandingPath {
		t.Fatalf("expected redirect to admin landing, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	ck := cookieNamed(rec, testCookie)
	if ck == nil || ck.Value != "new" || !ck.HttpOnly || ck.MaxAge != 3600 {
		t.Errorf("expected session cookie kept, got %+v", ck)
	}
	if cookieNamed(rec, "meridian_flash") == nil {
		t.Error("expected an informational notice")
	}
}

func TestLogin_MustChangePasswordIgnoresReturnTo(t *testing.T) {
	sess := userSession()
	sess.MustChangePassword = true
	h := newTestHandler(&mockAuthService{loginFn: result(&LoginResult{SessionID: "new", Session: sess, TTL: time.Hour})})

	e := echo.New()
	rec := httptest.NewRecorder()
	form := url.Values{"username": {"bob"}, "password": {"secret1"}, "return_to": {"/"}}
	c := e.NewContext(postForm(gate.LoginPath, form), rec)

	if err := h.Login(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Header().Get("Location"); got != gate.ChangePasswordPath {
		t.Errorf("expected password change, got %q", got)
	}
}

func TestLogin_RegularViaAdminEntryGoesToDashboard(t *testing.T) {
	h := newTestHandler(&mockAuthService{loginFn: result(&LoginResult{SessionID: "new", Session: userSession(), TTL: time.Hour})})

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(postForm(gate.AdminLoginPath, url.Values{"username": {"bob"}, "password": {"secret1"}}), rec)

	if err := h.AdminLogin(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Header().Get("Location"); got != gate.LandingPath {
		t.Errorf("expected regular landing, got %q", got)
	}
}

func TestLogin_HonorsSafeReturnTo(t *testing.T) {
	var gotEntry gate.Entry
	h := newTestHandler(&mockAuthService{loginFn: func(ctx context.Context, in LoginInput) (*LoginResult, error) {
		gotEntry = in.Entry
		return &LoginResult{SessionID: "new", Session: userSession(), TTL: time.Hour}, nil
	}})

	tests := []struct {
		returnTo string
		want     string
	}{
		{"/announcements?category=news", "/announcements?category=news"},
		{"https://evil.example/", gate.LandingPath},
		{"//evil.example/", gate.LandingPath},
	}
	for _, tt := range tests {
		e := echo.New()
		rec := httptest.NewRecorder()
		form := url.Values{"username": {"bob"}, "password": {"secret1"}, "return_to": {tt.returnTo}}
		c := e.NewContext(postForm(gate.LoginPath, form), rec)

		if err := h.Login(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := rec.Header().Get("Location"); got != tt.want {
			t.Errorf("return_to %q: expected %q, got %q", tt.returnTo, tt.want, got)
		}
	}
	if gotEntry != gate.EntryRegular {
		t.Errorf("expected regular entry, got %s", gotEntry)
	}
}

func TestLogin_FailureRerendersFormWithoutCookie(t *testing.T) {
	h := newTestHandler(&mockAuthService{})

	e := echo.New()
	rec := httptest.NewRecorder()
	req := postForm(gate.LoginPath, url.Values{"username": {"bob"}, "password": {"wrong"}})
	req.Header.Set("HX-Request", "true")
	c := e.NewContext(req, rec)
	withSession(c, "existing", userSession())

	if err := h.Login(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("HTMX re-render should be 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `id="login-form"`) || !strings.Contains(body, "invalid username or password") {
		t.Errorf("expected the form with the error, got %s", body)
	}
	if strings.Contains(body, "<!doctype html>") {
		t.Error("HTMX requests get the form fragment only")
	}
	if cookieNamed(rec, testCookie) != nil {
		t.Error("a failed sign-in must not touch the session cookie")
	}
}

func TestRegister_ValidationErrorShownOnField(t *testing.T) {
	h := newTestHandler(&mockAuthService{registerFn: func(ctx context.Context, in RegisterInput) (string, error) {
		return "", validate.New().Password("password", in.Password).Err()
	}})

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(postForm(gate.RegisterPath, url.Values{"first_name": {"Al"}, "password": {"abcd"}}), rec)

	if err := h.Register(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `id="f-password-error"`) {
		t.Error("expected the password field error")
	}
	if !strings.Contains(body, `value="Al"`) {
		t.Error("expected submitted values to be kept")
	}
}

func TestRegister_SuccessRedirectsToMatchingLogin(t *testing.T) {
	h := newTestHandler(&mockAuthService{})

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(postForm(gate.AdminRegisterPath, url.Values{}), rec)

	if err := h.AdminRegister(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Header().Get("Location"); got != gate.AdminLoginPath {
		t.Errorf("expected admin login, got %q", got)
	}
	if cookieNamed(rec, testCookie) != nil {
		t.Error("registration must not sign the user in")
	}
}

// --- Callback ---

func TestCallback_FailureRendersNoticeAndRefresh(t *testing.T) {
	h := newTestHandler(&mockAuthService{})

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, gate.CallbackPath+"?token=abc", nil), rec)
	withSession(c, "existing", userSession())

	if err := h.Callback(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `http-equiv="refresh" content="3;url=/login"`) {
		t.Errorf("expected a delayed redirect to login, got %s", body)
	}
	if !strings.Contains(body, "bad callback") {
		t.Error("expected the failure notice")
	}
	if cookieNamed(rec, testCookie) != nil {
		t.Error("the existing session cookie must be left alone")
	}
}

func TestCallback_SuccessUsesStoredReturnTo(t *testing.T) {
	var gotReplaces string
	h := newTestHandler(&mockAuthService{callbackFn: func(ctx context.Context, q url.Values, ip, replaces string) (*LoginResult, error) {
		gotReplaces = replaces
		return &LoginResult{SessionID: "oauth", Session: userSession(), TTL: time.Hour}, nil
	}})

	e := echo.New()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, gate.CallbackPath+"?token=t&user=u", nil)
	req.AddCookie(&http.Cookie{Name: returnToCookieName, Value: "/team"})
	c := e.NewContext(req, rec)
	withSession(c, "old", userSession())

	if err := h.Callback(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Header().Get("Location"); got != "/team" {
		t.Errorf("expected return target, got %q", got)
	}
	if gotReplaces != "old" {
		t.Errorf("expected the old session to be replaced, got %q", gotReplaces)
	}
	if ck := cookieNamed(rec, testCookie); ck == nil || ck.Value != "oauth" {
		t.Errorf("expected new session cookie, got %+v", ck)
	}
}

func TestOAuthStart(t *testing.T) {
	h := newTestHandler(&mockAuthService{})
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/auth/google?return_to=%2Fteam", nil), rec)
	c.SetParamNames("provider")
	c.SetParamValues("google")

	if err := h.OAuthStart(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get("Location") != "https://api.example.com/auth/google" {
		t.Errorf("unexpected redirect %q", rec.Header().Get("Location"))
	}
	if ck := cookieNamed(rec, returnToCookieName); ck == nil || ck.Value != "/team" {
		t.Errorf("expected return target cookie, got %+v", ck)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/auth/myspace", nil), httptest.NewRecorder())
	c.SetParamNames("provider")
	c.SetParamValues("myspace")
	assertAppError(t, h.OAuthStart(c), http.StatusNotFound)
}

// --- Password change / logout ---

func TestChangePassword_TokenRejectedSignsOut(t *testing.T) {
	h := newTestHandler(&mockAuthService{changePasswordFn: func(ctx context.Context, in ChangePasswordInput) (*session.Session, error) {
		return nil, apperror.NewUnauthorized("your session has expired")
	}})

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(postForm(gate.ChangePasswordPath, url.Values{"current_password": {"a"}}), rec)
	withSession(c, "sid", userSession())

	if err := h.ChangePassword(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Header().Get("Location"); got != gate.LoginPath {
		t.Errorf("expected login, got %q", got)
	}
	if ck := cookieNamed(rec, testCookie); ck == nil || ck.MaxAge >= 0 {
		t.Errorf("expected the session cookie cleared, got %+v", ck)
	}
}

func TestChangePassword_WrongCurrentPasswordRerendersForm(t *testing.T) {
	expired := false
	h := newTestHandler(&mockAuthService{
		changePasswordFn: func(ctx context.Context, in ChangePasswordInput) (*session.Session, error) {
			return nil, apperror.NewInvalidCredentials("current password is incorrect")
		},
		expireFn: func(ctx context.Context, id string, s *session.Session) error {
			expired = true
			return nil
		},
	})

	e := echo.New()
	rec := httptest.NewRecorder()
	req := postForm(gate.ChangePasswordPath, url.Values{"current_password": {"typo"}})
	req.Header.Set("HX-Request", "true")
	c := e.NewContext(req, rec)
	withSession(c, "sid", userSession())

	if err := h.ChangePassword(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected the form re-rendered with 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "current password is incorrect") {
		t.Errorf("expected the notice in the form, got %s", rec.Body.String())
	}
	if expired || cookieNamed(rec, testCookie) != nil || rec.Header().Get("HX-Redirect") != "" {
		t.Error("a wrong current password must not sign the user out")
	}
}

func TestChangePassword_SuccessLandsByRole(t *testing.T) {
	h := newTestHandler(&mockAuthService{})

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(postForm(gate.ChangePasswordPath, url.Values{}), rec)
	sess := adminSession()
	sess.MustChangePassword = true
	withSession(c, "sid", sess)

	if err := h.ChangePassword(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Header().Get("Location"); got != gate.AdminLandingPath {
		t.Errorf("expected admin landing, got %q", got)
	}
}

func TestLogoutHandler_ClearsCookie(t *testing.T) {
	var gotID string
	h := newTestHandler(&mockAuthService{logoutFn: func(ctx context.Context, id string, s *session.Session, ip string) error {
		gotID = id
		return errors.New("redis down")
	}})

	e := echo.New()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.Header.Set("HX-Request", "true")
	c := e.NewContext(req, rec)
	withSession(c, "sid", userSession())

	if err := h.Logout(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotID != "sid" {
		t.Errorf("expected session destroyed, got %q", gotID)
	}
	if rec.Header().Get("HX-Redirect") != gate.LoginPath {
		t.Errorf("expected HX-Redirect to login, got %q", rec.Header().Get("HX-Redirect"))
	}
	if ck := cookieNamed(rec, testCookie); ck == nil || ck.MaxAge >= 0 {
		t.Error("expected the cookie cleared even when the store fails")
	}
}

// --- Middleware ---

func runGate(t *testing.T, target string, s *session.Session) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), rec)
	if s != nil {
		withSession(c, "sid", s)
	}
	err := Gate()(func(c echo.Context) error {
		return c.String(http.StatusOK, "page")
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return rec
}

func TestGateMiddleware(t *testing.T) {
	mustChange := userSession()
	mustChange.MustChangePassword = true

	tests := []struct {
		name     string
		target   string
		session  *session.Session
		location string
	}{
		{"anonymous protected", "/dashboard", nil, "/login?return_to=%2Fdashboard"},
		{"anonymous admin area", "/admin/activity?page=2", nil, "/admin/login?return_to=%2Fadmin%2Factivity%3Fpage%3D2"},
		{"anonymous public", "/team", nil, ""},
		{"admin via regular login page", "/login", adminSession(), gate.AdminLandingPath},
		{"admin browsing dashboard", "/dashboard", adminSession(), ""},
		{"user in admin area", "/admin/dashboard", userSession(), gate.LandingPath},
		{"must change anywhere", "/services", mustChange, gate.ChangePasswordPath},
		{"must change on its page", gate.ChangePasswordPath, mustChange, ""},
		{"static assets never gated", "/static/css/site.css", mustChange, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := runGate(t, tt.target, tt.session)
			if tt.location == "" {
				if rec.Code != http.StatusOK {
					t.Errorf("expected pass-through, got %d to %q", rec.Code, rec.Header().Get("Location"))
				}
				return
			}
			if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != tt.location {
				t.Errorf("expected redirect to %q, got %d %q", tt.location, rec.Code, rec.Header().Get("Location"))
			}
		})
	}
}

func TestGateMiddleware_PendingPasswordChangeBlocksWrites(t *testing.T) {
	pending := adminSession()
	pending.MustChangePassword = true

	run := func(method, target string, s *session.Session) (*httptest.ResponseRecorder, bool, error) {
		e := echo.New()
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(method, target, nil), rec)
		if s != nil {
			withSession(c, "sid", s)
		}
		reached := false
		err := Gate()(func(c echo.Context) error {
			reached = true
			return c.NoContent(http.StatusOK)
		})(c)
		return rec, reached, err
	}

	t.Run("admin post redirects to change password", func(t *testing.T) {
		rec, reached, err := run(http.MethodPost, "/admin/content/refresh", pending)
		if err != nil || reached {
			t.Fatalf("expected the handler to be skipped, got reached=%v err=%v", reached, err)
		}
		if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != gate.ChangePasswordPath {
			t.Errorf("expected redirect to %s, got %d %q", gate.ChangePasswordPath, rec.Code, rec.Header().Get("Location"))
		}
	})

	t.Run("admin api is forbidden", func(t *testing.T) {
		_, reached, err := run(http.MethodGet, "/api/v1/admin/auth-events", pending)
		if reached {
			t.Fatal("expected the handler to be skipped")
		}
		assertAppError(t, err, http.StatusForbidden)
	})

	allowed := []struct {
		method string
		target string
	}{
		{http.MethodPost, gate.ChangePasswordPath},
		{http.MethodPost, "/logout"},
		{http.MethodPost, gate.LoginPath},
		{http.MethodGet, "/api/v1/session"},
		{http.MethodGet, "/api/v1/resolve?path=%2Fdashboard"},
	}
	for _, a := range allowed {
		t.Run("allows "+a.method+" "+a.target, func(t *testing.T) {
			_, reached, err := run(a.method, a.target, pending)
			if err != nil || !reached {
				t.Errorf("expected pass-through, got reached=%v err=%v", reached, err)
			}
		})
	}

	t.Run("other sessions unaffected", func(t *testing.T) {
		_, reached, err := run(http.MethodPost, "/admin/content/refresh", adminSession())
		if err != nil || !reached {
			t.Errorf("expected pass-through, got reached=%v err=%v", reached, err)
		}
	})
}

func TestLoadSession(t *testing.T) {
	sess := userSession()
	svc := &mockAuthService{validateFn: func(ctx context.Context, id string) (*session.Session, error) {
		if id == "live" {
			return sess, nil
		}
		return nil, apperror.NewUnauthorized("session expired or invalid")
	}}

	h := newTestHandler(svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "live"})
	c := e.NewContext(req, httptest.NewRecorder())
	var got *session.Session
	err := h.LoadSession()(func(c echo.Context) error {
		got = CurrentUser(c)
		return nil
	})(c)
	if err != nil || got != sess || GetSessionID(c) != "live" || !IsAuthenticated(c) || IsAdmin(c) {
		t.Fatalf("expected loaded session, got %v %v", got, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "gone"})
	rec := httptest.NewRecorder()
	c = e.NewContext(req, rec)
	err = h.LoadSession()(func(c echo.Context) error {
		got = GetSession(c)
		return nil
	})(c)
	if err != nil || got != nil {
		t.Fatalf("expected anonymous request, got %v %v", got, err)
	}
	ck := cookieNamed(rec, testCookie)
	if ck == nil || ck.MaxAge >= 0 {
		t.Fatal("expected stale cookie cleared")
	}
	if !ck.Secure || ck.SameSite != http.SameSiteLaxMode || !ck.HttpOnly || ck.Path != "/" {
		t.Errorf("stale cookie cleared without the session cookie attributes: %+v", ck)
	}
}

func TestRequireElevated(t *testing.T) {
	e := echo.New()
	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/admin/auth-events", nil), httptest.NewRecorder())
	assertAppError(t, RequireElevated()(next)(c), http.StatusUnauthorized)

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/admin/auth-events", nil), httptest.NewRecorder())
	withSession(c, "sid", userSession())
	assertAppError(t, RequireElevated()(next)(c), http.StatusForbidden)

	perms := userSession()
	perms.Permissions = session.NormalizePermissions([]string{"Manage_Users"})
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/admin/auth-events", nil), httptest.NewRecorder())
	withSession(c, "sid", perms)
	if err := RequireElevated()(next)(c); err != nil {
		t.Errorf("elevated permission should pass, got %v", err)
	}

	pending := adminSession()
	pending.MustChangePassword = true
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/admin/auth-events", nil), httptest.NewRecorder())
	withSession(c, "sid", pending)
	assertAppError(t, RequireElevated()(next)(c), http.StatusForbidden)
}

// --- JSON API ---

func TestSessionInfo(t *testing.T) {
	h := newTestHandler(&mockAuthService{})
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/session", nil), rec)
	withSession(c, "sid", adminSession())
	if err := h.SessionInfo(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["isAuthenticated"] != true || body["isAdmin"] != true {
		t.Errorf("unexpected body %v", body)
	}
	if strings.Contains(rec.Body.String(), `"t"`) {
		t.Error("the backend token must never be exposed")
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/session", nil), rec)
	if err := h.SessionInfo(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"currentUser":null`) {
		t.Errorf("expected null user for anonymous, got %s", rec.Body.String())
	}
}

func TestResolveAPI(t *testing.T) {
	h := newTestHandler(&mockAuthService{})
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/resolve?path=%2Fdashboard&entry=regular", nil), rec)
	withSession(c, "sid", adminSession())
	if err := h.Resolve(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got struct {
		Path     string `json:"path"`
		Rule     string `json:"rule"`
		Redirect bool   `json:"redirect"`
		Notice   string `json:"notice"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Path != gate.AdminLandingPath || got.Rule != "elevated_entry" || !got.Redirect || got.Notice == "" {
		t.Errorf("unexpected decision %+v", got)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/resolve?path=https%3A%2F%2Fevil.example", nil), httptest.NewRecorder())
	assertAppError(t, h.Resolve(c), http.StatusBadRequest)
}
