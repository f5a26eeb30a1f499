package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	csrfTokenLength = 32
	csrfCookieName  = "meridian_csrf"
	csrfHeaderName  = "X-CSRF-Token"
	csrfFormField   = "csrf_token"
	csrfContextKey  = "csrf_token"
)

// CSRFFormField is the hidden input name forms must use.
const CSRFFormField = csrfFormField

// CSRF implements the double-submit cookie pattern. Every browser gets a
// random token cookie; mutating requests must echo it back in the
// X-CSRF-Token header (HTMX) or the csrf_token form field.
//
// The JSON API is read-only and skipped.
func CSRF(secure bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if IsAPI(c) {
				return next(c)
			}
			req := c.Request()

			token := ""
			if cookie, err := req.Cookie(csrfCookieName); err == nil && len(cookie.Value) == 2*csrfTokenLength {
				token = cookie.Value
			}
			fresh := token == ""
			if fresh {
				var err error
				if token, err = generateCSRFToken(); err != nil {
					return echo.NewHTTPError(http.StatusInternalServerError, "failed to generate CSRF token")
				}
				c.SetCookie(&http.Cookie{
					Name:     csrfCookieName,
					Value:    token,
					Path:     "/",
					HttpOnly: false, // HTMX reads it to set the header.
					Secure:   secure || req.TLS != nil,
					SameSite: http.SameSiteLaxMode,
				})
			}
			c.Set(csrfContextKey, token)

			if isSafeMethod(req.Method) {
				return next(c)
			}

			// A browser without the cookie cannot have submitted a valid token.
			if fresh {
				return echo.NewHTTPError(http.StatusForbidden, "Your form expired. Please reload the page and try again.")
			}

			submitted := req.Header.Get(csrfHeaderName)
			if submitted == "" {
				submitted = req.FormValue(csrfFormField)
			}
			if submitted == "" || subtle.ConstantTimeCompare([]byte(submitted), []byte(token)) != 1 {
				return echo.NewHTTPError(http.StatusForbidden, "Your form expired. Please reload the page and try again.")
			}

			return next(c)
		}
	}
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

func generateCSRFToken() (string, error) {
	b := make([]byte, csrfTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GetCSRFToken returns the request's CSRF token for embedding in forms.
func GetCSRFToken(c echo.Context) string {
	token, _ := c.Get(csrfContextKey).(string)
	return token
}

// ClientKey identifies the browser behind a request. The CSRF cookie is
// stable per browser and already validated on mutating requests, which makes
// it a suitable key for collapsing duplicate submissions.
func ClientKey(c echo.Context) string {
	if token := GetCSRFToken(c); token != "" {
		return token
	}
	return c.RealIP()
}
