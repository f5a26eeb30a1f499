package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestCSRF_IssuesTokenOnGet(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := CSRF(false)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	token := GetCSRFToken(c)
	if len(token) != 64 {
		t.Fatalf("expected 64-char token, got %q", token)
	}
	if !strings.Contains(rec.Header().Get("Set-Cookie"), csrfCookieName+"="+token) {
		t.Errorf("expected cookie to carry the token, got %q", rec.Header().Get("Set-Cookie"))
	}
	if ClientKey(c) != token {
		t.Error("client key should be the CSRF token")
	}
}

func TestCSRF_RejectsMismatch(t *testing.T) {
	token := strings.Repeat("ab", 32)
	tests := []struct {
		name      string
		formToken string
		header    string
		wantCode  int
	}{
		{"form token matches", token, "", http.StatusOK},
		{"header matches", "", token, http.StatusOK},
		{"missing", "", "", http.StatusForbidden},
		{"wrong", strings.Repeat("cd", 32), "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			form := url.Values{}
			if tt.formToken != "" {
				form.Set(CSRFFormField, tt.formToken)
			}
			req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: token})
			if tt.header != "" {
				req.Header.Set(csrfHeaderName, tt.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := CSRF(false)(okHandler)(c)
			code := http.StatusOK
			var he *echo.HTTPError
			if errors.As(err, &he) {
				code = he.Code
			}
			if code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, code)
			}
		})
	}
}

func TestCSRF_PostWithoutCookieRejected(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	err := CSRF(false)(okHandler)(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Fatal("fourth request should be limited")
	}
	if !rl.Allow("5.6.7.8") {
		t.Fatal("other clients have their own bucket")
	}

	// One token refills every 20 seconds.
	clock = clock.Add(21 * time.Second)
	if !rl.Allow("1.2.3.4") {
		t.Fatal("expected a refilled token")
	}

	clock = clock.Add(limiterIdleTTL + time.Second)
	rl.prune()
	if len(rl.clients) != 0 {
		t.Errorf("expected idle clients pruned, have %d", len(rl.clients))
	}
}

func TestFlash_RoundTrip(t *testing.T) {
	e := echo.New()

	// First request sets the flash.
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/login", nil), rec)
	SetFlash(c, FlashInfo, "Welcome back")
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}

	// Next page load consumes it.
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)

	var got *Flash
	err := Flashes()(func(c echo.Context) error {
		got = GetFlash(c)
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.Message != "Welcome back" || got.Kind != FlashInfo {
		t.Fatalf("unexpected flash %+v", got)
	}
	if !strings.Contains(rec.Header().Get("Set-Cookie"), "Max-Age=0") {
		t.Errorf("expected flash cookie cleared, got %q", rec.Header().Get("Set-Cookie"))
	}
}

func TestRedirect_HTMX(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := Redirect(c, "/dashboard"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent || rec.Header().Get("HX-Redirect") != "/dashboard" {
		t.Errorf("unexpected response %d %q", rec.Code, rec.Header().Get("HX-Redirect"))
	}
}

func TestIPExtractor_TrustsOnlyProxies(t *testing.T) {
	extract := buildIPExtractor([]string{"10.0.0.0/8"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5000"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.1.2.3")
	if got := extract(req); got != "203.0.113.9" {
		t.Errorf("expected forwarded client, got %q", got)
	}

	req.RemoteAddr = "198.51.100.7:5000"
	if got := extract(req); got != "198.51.100.7" {
		t.Errorf("expected direct peer, got %q", got)
	}
}
