// Package gate decides where a navigation actually lands. Resolve is a pure
// function of the current session and the requested destination; callers
// perform the redirect and own any session writes.
package gate

import (
	"net/url"
	"path"
	"strings"

	"github.com/meridianhq/corpweb/internal/session"
)

// Route table. Handlers and templates refer to these instead of literals.
const (
	LoginPath          = "/login"
	AdminLoginPath     = "/admin/login"
	RegisterPath       = "/register"
	AdminRegisterPath  = "/admin/register"
	ChangePasswordPath = "/change-password"
	LandingPath        = "/dashboard"
	AdminLandingPath   = "/admin/dashboard"
	CallbackPath       = "/auth/callback"
	HomePath           = "/"
)

// ReturnToParam is the query parameter carrying the post-login destination.
const ReturnToParam = "return_to"

// adminAreaPrefix covers every admin page except its two entry pages.
const adminAreaPrefix = "/admin"

// protectedPrefixes require a session.
var protectedPrefixes = []string{
	LandingPath,
	adminAreaPrefix,
	ChangePasswordPath,
}

// Entry identifies which audience-specific entry point a request came
// through. EntryNone means an ordinary page navigation.
type Entry int

const (
	EntryNone Entry = iota
	EntryRegular
	EntryAdmin
)

// String returns the entry name used in logs and the JSON API.
func (e Entry) String() string {
	switch e {
	case EntryRegular:
		return "regular"
	case EntryAdmin:
		return "admin"
	default:
		return "none"
	}
}

// ParseEntry is the inverse of Entry.String. Unknown values map to EntryNone.
func ParseEntry(s string) Entry {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "regular":
		return EntryRegular
	case "admin":
		return EntryAdmin
	default:
		return EntryNone
	}
}

// EntryFor derives the entry point implied by a path alone.
func EntryFor(p string) Entry {
	p = CleanPath(p)
	switch {
	case p == LoginPath || p == RegisterPath:
		return EntryRegular
	case p == AdminLoginPath || p == AdminRegisterPath || IsAdminArea(p):
		return EntryAdmin
	default:
		return EntryNone
	}
}

// IsEntryPage reports whether p is one of the four login/registration pages.
func IsEntryPage(p string) bool {
	switch CleanPath(p) {
	case LoginPath, RegisterPath, AdminLoginPath, AdminRegisterPath:
		return true
	}
	return false
}

// IsAdminArea reports whether p is an admin page other than the admin
// entry pages.
func IsAdminArea(p string) bool {
	p = CleanPath(p)
	if p == AdminLoginPath || p == AdminRegisterPath {
		return false
	}
	return hasPathPrefix(p, adminAreaPrefix)
}

// RequiresAuth reports whether anonymous visitors must sign in to see p.
func RequiresAuth(p string) bool {
	p = CleanPath(p)
	if IsEntryPage(p) {
		return false
	}
	for _, prefix := range protectedPrefixes {
		if hasPathPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// LoginFor returns the login page that should handle an anonymous visit to p.
func LoginFor(p string) string {
	if IsAdminArea(p) {
		return AdminLoginPath
	}
	return LoginPath
}

// LandingFor returns the default landing page for a session.
func LandingFor(s *session.Session) string {
	if s.IsElevated() {
		return AdminLandingPath
	}
	return LandingPath
}

// CleanPath strips query and fragment and normalizes the path so that
// prefix checks operate on whole segments.
func CleanPath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" || p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}

// hasPathPrefix matches prefix on a segment boundary: /admin matches
// /admin and /admin/x but not /administrator.
func hasPathPrefix(p, prefix string) bool {
	if !strings.HasPrefix(p, prefix) {
		return false
	}
	return len(p) == len(prefix) || p[len(prefix)] == '/'
}

// SafeReturnTo returns raw when it is a local absolute path that is worth
// returning to, otherwise fallback. Scheme-relative URLs, backslash tricks,
// absolute URLs and the entry pages themselves are all rejected.
func SafeReturnTo(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw[0] != '/' || strings.HasPrefix(raw, "//") || strings.ContainsAny(raw, "\\\r\n\t") {
		return fallback
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return fallback
	}
	clean := CleanPath(u.Path)
	if IsEntryPage(clean) || clean == CallbackPath {
		return fallback
	}
	if u.RawQuery != "" {
		return clean + "?" + u.RawQuery
	}
	return clean
}

// WithReturnTo appends a return_to parameter to a local path.
func WithReturnTo(p, returnTo string) string {
	if returnTo == "" {
		return p
	}
	q := url.Values{}
	q.Set(ReturnToParam, returnTo)
	return p + "?" + q.Encode()
}
