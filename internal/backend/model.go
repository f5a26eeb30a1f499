package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/meridianhq/corpweb/internal/session"
)

// ID is a backend identifier. The API emits numeric IDs from some
// endpoints and string IDs from others; both decode to the same value.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// User is the user object returned by the login endpoint and embedded in
// the OAuth callback.
type User struct {
	ID                 ID       `json:"id"`
	Username           string   `json:"username"`
	Email              string   `json:"email,omitempty"`
	FirstName          string   `json:"first_name,omitempty"`
	LastName           string   `json:"last_name,omitempty"`
	DisplayName        string   `json:"display_name,omitempty"`
	Role               string   `json:"role"`
	MustChangePassword bool     `json:"must_change_password"`
	Permissions        []string `json:"permissions,omitempty"`
}

// Name picks the best human-readable name the backend provided.
func (u User) Name() string {
	if n := strings.TrimSpace(u.DisplayName); n != "" {
		return n
	}
	if n := strings.TrimSpace(u.FirstName + " " + u.LastName); n != "" {
		return n
	}
	return u.Username
}

// Session builds the complete session value for this user. Permissions
// from the user object and from the response envelope are merged.
func (u User) Session(token string, extra []string, now time.Time) *session.Session {
	perms := append(append([]string{}, u.Permissions...), extra...)
	return &session.Session{
		SubjectID:          string(u.ID),
		DisplayName:        u.Name(),
		Username:           u.Username,
		Email:              u.Email,
		Role:               session.NormalizeRole(u.Role),
		MustChangePassword: u.MustChangePassword,
		Permissions:        session.NormalizePermissions(perms),
		Token:              token,
		CreatedAt:          now.UTC(),
	}
}

// envelope is the common response wrapper used by the auth endpoints.
type envelope[T any] struct {
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    T      `json:"data"`
}

// failed reports whether the envelope signals an application-level failure.
func (e envelope[T]) failed() bool {
	if e.Success != nil {
		return !*e.Success
	}
	return e.Error != ""
}

// reason returns the backend's explanation, preferring error over message.
func (e envelope[T]) reason() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

// LoginData is the data section of a successful login response.
type LoginData struct {
	User        User     `json:"user"`
	Token       string   `json:"token"`
	Permissions []string `json:"permissions,omitempty"`
	Modules     []string `json:"modules,omitempty"`
}

// Credentials are submitted to POST /auth/login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Registration is submitted to POST /auth/register and /auth/admin-register.
type Registration struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Phone        string `json:"phone,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// PasswordChange is submitted to POST /auth/change-password.
type PasswordChange struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// --- Content ---

// Service is one offering shown on the services pages.
type Service struct {
	Slug        string   `json:"slug" yaml:"slug"`
	Name        string   `json:"name" yaml:"name"`
	Summary     string   `json:"summary" yaml:"summary"`
	Description string   `json:"description" yaml:"description"`
	Icon        string   `json:"icon,omitempty" yaml:"icon"`
	Features    []string `json:"features,omitempty" yaml:"features"`
}

// TeamMember is one person on the team page.
type TeamMember struct {
	ID         ID     `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Title      string `json:"title" yaml:"title"`
	Department string `json:"department" yaml:"department"`
	Bio        string `json:"bio,omitempty" yaml:"bio"`
	PhotoURL   string `json:"photo_url,omitempty" yaml:"photo_url"`
	Email      string `json:"email,omitempty" yaml:"email"`
	Order      int    `json:"order" yaml:"order"`
}

// Announcement is a news item. BodyHTML comes from the CMS and must be
// sanitized before rendering.
type Announcement struct {
	ID          ID        `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Summary     string    `json:"summary" yaml:"summary"`
	BodyHTML    string    `json:"body_html" yaml:"body_html"`
	Category    string    `json:"category" yaml:"category"`
	Priority    int       `json:"priority" yaml:"priority"`
	Pinned      bool      `json:"pinned" yaml:"pinned"`
	PublishedAt time.Time `json:"published_at" yaml:"published_at"`
}

// Tool is an entry in the tools configuration.
type Tool struct {
	ID          ID     `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Category    string `json:"category" yaml:"category"`
	URL         string `json:"url" yaml:"url"`
	Icon        string `json:"icon,omitempty" yaml:"icon"`
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	AdminOnly   bool   `json:"admin_only" yaml:"admin_only"`
}

// DashboardStats are the headline numbers on the dashboards.
type DashboardStats struct {
	Announcements int       `json:"announcements"`
	TeamMembers   int       `json:"team_members"`
	Tools         int       `json:"tools"`
	Services      int       `json:"services"`
	ActiveUsers   int       `json:"active_users"`
	UpdatedAt     time.Time `json:"updated_at"`
}
