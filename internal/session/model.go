// Package session defines the server-held record of who is signed in and
// the Redis store that owns it. A session is only ever written as a whole
// value; no caller mutates individual fields of a stored session.
package session

import (
	"slices"
	"strings"
	"time"
)

// Role is the privilege level reported by the backend for a user.
type Role string

const (
	RoleAnonymous  Role = "anonymous"
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// ElevatedPermissions are permission strings that mark a user as an
// administrator even when the backend reports a regular role.
var ElevatedPermissions = []string{
	"view_users",
	"manage_users",
	"manage_system",
}

// Session is the authenticated identity of one browser. It is created by
// a successful credential or OAuth-callback exchange and destroyed on
// logout or when the backend rejects the token.
type Session struct {
	SubjectID          string    `json:"subject_id"`
	DisplayName        string    `json:"display_name"`
	Username           string    `json:"username,omitempty"`
	Email              string    `json:"email,omitempty"`
	Role               Role      `json:"role"`
	MustChangePassword bool      `json:"must_change_password"`
	Permissions        []string  `json:"permissions,omitempty"`
	Token              string    `json:"token"`
	CreatedAt          time.Time `json:"created_at"`
	ExpiresAt          time.Time `json:"expires_at,omitzero"`
}

// IsElevated is the single authoritative admin check: an elevated role or
// any elevated permission.
func (s *Session) IsElevated() bool {
	if s == nil {
		return false
	}
	if s.Role == RoleAdmin || s.Role == RoleSuperAdmin {
		return true
	}
	for _, p := range ElevatedPermissions {
		if s.HasPermission(p) {
			return true
		}
	}
	return false
}

// HasPermission reports whether the session carries the named permission.
func (s *Session) HasPermission(name string) bool {
	if s == nil {
		return false
	}
	_, found := slices.BinarySearch(s.Permissions, normalizePermission(name))
	return found
}

// WithPasswordChanged returns a copy of the session with the password
// change requirement cleared. The original is left untouched so the caller
// can store the copy as one replacement value.
func (s *Session) WithPasswordChanged() *Session {
	next := *s
	next.Permissions = slices.Clone(s.Permissions)
	next.MustChangePassword = false
	return &next
}

// NormalizeRole maps backend role strings onto Role, treating anything
// unrecognized as a regular user.
func NormalizeRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "admin", "administrator":
		return RoleAdmin
	case "super_admin", "superadmin", "super-admin":
		return RoleSuperAdmin
	case "", "anonymous":
		return RoleAnonymous
	default:
		return RoleUser
	}
}

// NormalizePermissions turns a backend permission list into a sorted set:
// trimmed, lower-cased, de-duplicated. HasPermission relies on the order.
func NormalizePermissions(perms []string) []string {
	if len(perms) == 0 {
		return nil
	}
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		if p = normalizePermission(p); p != "" {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func normalizePermission(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}
