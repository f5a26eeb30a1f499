// Package auth signs browsers in and out against the backend API and keeps
// the resulting session in Redis. It owns the login, registration, OAuth
// callback and password-change pages, plus the middleware that loads the
// session and applies the gate to every page navigation.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package auth

import (
	"context"
	"time"

	"github.com/meridianhq/corpweb/internal/authflow"
	"github.com/meridianhq/corpweb/internal/gate"
	"github.com/meridianhq/corpweb/internal/session"
)

// --- Request DTOs (bound from HTTP requests) ---

// LoginRequest holds the data submitted by both login forms.
type LoginRequest struct {
	Username string `form:"username"`
	Password string `form:"password"`
	ReturnTo string `form:"return_to"`
}

// RegisterRequest holds the data submitted by both registration forms.
type RegisterRequest struct {
	FirstName    string `form:"first_name"`
	LastName     string `form:"last_name"`
	Email        string `form:"email"`
	Username     string `form:"username"`
	Password     string `form:"password"`
	Confirm      string `form:"confirm"`
	Phone        string `form:"phone"`
	Organization string `form:"organization"`
}

// ChangePasswordRequest holds the data submitted by the password form.
type ChangePasswordRequest struct {
	Current string `form:"current_password"`
	New     string `form:"new_password"`
	Confirm string `form:"confirm_password"`
}

// --- Service Input DTOs (passed from handler to service) ---

// LoginInput is a credential sign-in attempt.
type LoginInput struct {
	// ClientKey identifies the browser; duplicate submissions are only
	// collapsed when it matches.
	ClientKey string

	Username string
	Password string

	// Entry is the login page the attempt came through.
	Entry gate.Entry

	// RemoteIP is recorded in the audit log.
	RemoteIP string

	// Replaces is the browser's previous session ID, destroyed once the new
	// session exists.
	Replaces string
}

// RegisterInput is a registration attempt. Admin selects the
// administrator registration endpoint.
type RegisterInput struct {
	RegisterRequest
	Admin    bool
	RemoteIP string
}

// ChangePasswordInput is a password change for the current session.
type ChangePasswordInput struct {
	SessionID string
	Session   *session.Session
	Current   string
	New       string
	Confirm   string
	RemoteIP  string
}

// LoginResult is a freshly created session.
type LoginResult struct {
	SessionID string
	Session   *session.Session

	// TTL is how long the session lives in Redis; the cookie matches it.
	TTL time.Duration

	// State is where the sign-in left the auth flow.
	State authflow.State
}

// --- Audit events ---

// Actions reported to the EventRecorder.
const (
	ActionLogin          = "auth.login"
	ActionCallback       = "auth.callback"
	ActionRegister       = "auth.register"
	ActionAdminRegister  = "auth.admin_register"
	ActionPasswordChange = "auth.password_change"
	ActionLogout         = "auth.logout"
	ActionTokenRejected  = "auth.token_rejected"
)

// Outcomes reported to the EventRecorder.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event is one authentication outcome.
type Event struct {
	Action    string
	Outcome   string
	SubjectID string
	Username  string
	Entry     string
	RemoteIP  string
	Detail    string
	At        time.Time
}

// EventRecorder receives auth events. The audit plugin implements it; a
// nil recorder drops them.
type EventRecorder interface {
	RecordAuthEvent(ctx context.Context, ev Event)
}
