// data.go provides typed context helpers for passing layout data from
// handlers and middleware to templ components. Only simple types are
// stored, so this package never imports plugin types.
//
// Data flow: Handler/Middleware → Echo Context → LayoutInjector → Go Context → templ
package layouts

import "context"

// ctxKey is a private type for context keys to prevent collisions.
type ctxKey string

const (
	keyIsAuthenticated ctxKey = "layout_is_authenticated"
	keyUserID          ctxKey = "layout_user_id"
	keyUserName        ctxKey = "layout_user_name"
	keyUserEmail       ctxKey = "layout_user_email"
	keyIsAdmin         ctxKey = "layout_is_admin"
	keyCSRFToken       ctxKey = "layout_csrf_token"
	keyFlashKind       ctxKey = "layout_flash_kind"
	keyFlashMessage    ctxKey = "layout_flash_message"
	keyActivePath      ctxKey = "layout_active_path"
	keyRequestID       ctxKey = "layout_request_id"
)

// --- Setters (called by the layout injector in app/routes.go) ---

// SetIsAuthenticated marks whether the current request has a session.
func SetIsAuthenticated(ctx context.Context, authed bool) context.Context {
	return context.WithValue(ctx, keyIsAuthenticated, authed)
}

// SetUserID stores the signed-in user's ID.
func SetUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyUserID, id)
}

// SetUserName stores the signed-in user's display name.
func SetUserName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyUserName, name)
}

// SetUserEmail stores the signed-in user's email.
func SetUserEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, keyUserEmail, email)
}

// SetIsAdmin stores the result of the elevated-role check.
func SetIsAdmin(ctx context.Context, isAdmin bool) context.Context {
	return context.WithValue(ctx, keyIsAdmin, isAdmin)
}

// SetCSRFToken stores the CSRF token for forms.
func SetCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, keyCSRFToken, token)
}

// SetFlash stores the one-shot notice for the current render.
func SetFlash(ctx context.Context, kind, message string) context.Context {
	ctx = context.WithValue(ctx, keyFlashKind, kind)
	return context.WithValue(ctx, keyFlashMessage, message)
}

// SetActivePath stores the request path for nav highlighting.
func SetActivePath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, keyActivePath, path)
}

// SetRequestID stores the correlation ID shown on error pages.
func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// --- Getters (called from templ components) ---

// IsAuthenticated returns true if the request has a session.
func IsAuthenticated(ctx context.Context) bool {
	v, _ := ctx.Value(keyIsAuthenticated).(bool)
	return v
}

// GetUserID returns the signed-in user's ID, or "".
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(keyUserID).(string)
	return v
}

// GetUserName returns the signed-in user's display name, or "".
func GetUserName(ctx context.Context) string {
	v, _ := ctx.Value(keyUserName).(string)
	return v
}

// GetUserEmail returns the signed-in user's email, or "".
func GetUserEmail(ctx context.Context) string {
	v, _ := ctx.Value(keyUserEmail).(string)
	return v
}

// GetIsAdmin returns true if the signed-in user is elevated.
func GetIsAdmin(ctx context.Context) bool {
	v, _ := ctx.Value(keyIsAdmin).(bool)
	return v
}

// GetCSRFToken returns the CSRF token, or "".
func GetCSRFToken(ctx context.Context) string {
	v, _ := ctx.Value(keyCSRFToken).(string)
	return v
}

// GetFlash returns the flash kind and message, or two empty strings.
func GetFlash(ctx context.Context) (kind, message string) {
	kind, _ = ctx.Value(keyFlashKind).(string)
	message, _ = ctx.Value(keyFlashMessage).(string)
	return kind, message
}

// GetActivePath returns the request path, or "".
func GetActivePath(ctx context.Context) string {
	v, _ := ctx.Value(keyActivePath).(string)
	return v
}

// GetRequestID returns the correlation ID, or "".
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(keyRequestID).(string)
	return v
}

// IsActive reports whether a nav link for href should be highlighted.
func IsActive(ctx context.Context, href string) bool {
	p := GetActivePath(ctx)
	if href == "/" {
		return p == "/"
	}
	return p == href || (len(p) > len(href) && p[:len(href)] == href && p[len(href)] == '/')
}
