// Package audit records authentication events (sign-ins, failures, logouts,
// rejected tokens) in MariaDB so administrators can see recent account
// activity on the admin dashboard.
//
// This is an optional plugin, enabled with AUDIT_ENABLED. It only observes
// what the auth plugin reports; nothing in the sign-in path depends on a
// write succeeding.
package audit

import (
	"time"

	"github.com/meridianhq/corpweb/internal/plugins/auth"
)

// AuthEvent is one recorded authentication event. Action and Outcome hold
// the auth.Action* and auth.Outcome* values. SubjectID is empty for attempts
// that never produced a session.
type AuthEvent struct {
	ID        int64     `json:"id"`
	SubjectID string    `json:"subjectId,omitempty"`
	Username  string    `json:"username,omitempty"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	Entry     string    `json:"entry,omitempty"`
	RemoteIP  string    `json:"remoteIp,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Failed reports whether the event records a failure.
func (e AuthEvent) Failed() bool {
	return e.Outcome == auth.OutcomeFailure
}

// Summary holds headline numbers for the admin dashboard.
type Summary struct {
	// Logins is the number of successful sign-ins in the window.
	Logins int `json:"logins"`

	// Failures is the number of failed attempts of any kind in the window.
	Failures int `json:"failures"`

	// DistinctUsers counts subjects that signed in during the window.
	DistinctUsers int `json:"distinctUsers"`

	// LastEventAt is the newest event timestamp, nil when the log is empty.
	LastEventAt *time.Time `json:"lastEventAt,omitempty"`
}
