package middleware

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
)

const (
	flashCookieName = "meridian_flash"
	flashContextKey = "flash"
	flashMaxLen     = 300
)

// FlashKind selects how a flash message is styled.
type FlashKind string

const (
	FlashInfo    FlashKind = "info"
	FlashSuccess FlashKind = "success"
	FlashError   FlashKind = "error"
)

// Flash is a one-shot message carried across a redirect.
type Flash struct {
	Kind    FlashKind `json:"k"`
	Message string    `json:"m"`
}

// SetFlash stores a message for the next page the browser loads.
func SetFlash(c echo.Context, kind FlashKind, message string) {
	if message == "" {
		return
	}
	if utf8.RuneCountInString(message) > flashMaxLen {
		message = string([]rune(message)[:flashMaxLen])
	}
	data, err := json.Marshal(Flash{Kind: kind, Message: message})
	if err != nil {
		return
	}
	c.SetCookie(&http.Cookie{
		Name:     flashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(data),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   60,
	})
}

// Flashes reads and clears the flash cookie, exposing the message to the
// current request through GetFlash. Only full page loads consume it.
func Flashes() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet || IsHTMX(c) || IsAPI(c) {
				return next(c)
			}
			cookie, err := req.Cookie(flashCookieName)
			if err != nil || cookie.Value == "" {
				return next(c)
			}

			c.SetCookie(&http.Cookie{
				Name:     flashCookieName,
				Value:    "",
				Path:     "/",
				HttpOnly: true,
				MaxAge:   -1,
			})

			data, err := base64.RawURLEncoding.DecodeString(cookie.Value)
			if err != nil {
				return next(c)
			}
			var f Flash
			if err := json.Unmarshal(data, &f); err == nil && f.Message != "" {
				c.Set(flashContextKey, &f)
			}
			return next(c)
		}
	}
}

// GetFlash returns the flash for this request, or nil.
func GetFlash(c echo.Context) *Flash {
	f, _ := c.Get(flashContextKey).(*Flash)
	return f
}

// AddFlash shows a message on the page rendered by this same request.
func AddFlash(c echo.Context, kind FlashKind, message string) {
	c.Set(flashContextKey, &Flash{Kind: kind, Message: message})
}
