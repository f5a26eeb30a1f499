package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/meridianhq/corpweb/internal/apperror"
	"github.com/meridianhq/corpweb/internal/gate"
	"github.com/meridianhq/corpweb/internal/session"
)

// sessionResponse is the JSON view of the current session for client-side
// widgets. The token never leaves the server.
type sessionResponse struct {
	IsAuthenticated    bool          `json:"isAuthenticated"`
	IsAdmin            bool          `json:"isAdmin"`
	MustChangePassword bool          `json:"mustChangePassword"`
	CurrentUser        *userResponse `json:"currentUser"`
}

type userResponse struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Username    string   `json:"username,omitempty"`
	Email       string   `json:"email,omitempty"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// resolveResponse is the JSON view of a gate decision.
type resolveResponse struct {
	gate.Decision
	Rule     string `json:"rule"`
	Entry    string `json:"entry"`
	Redirect bool   `json:"redirect"`
	Location string `json:"location"`
}

// SessionInfo returns the current session (GET /api/v1/session).
func (h *Handler) SessionInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, newSessionResponse(GetSession(c)))
}

// Resolve runs the gate for the current session (GET /api/v1/resolve).
// path must be a local path; entry is "regular", "admin" or empty.
func (h *Handler) Resolve(c echo.Context) error {
	p := c.QueryParam("path")
	if p == "" {
		p = gate.HomePath
	}
	if gate.SafeReturnTo(p, "") == "" && !gate.IsEntryPage(p) {
		return apperror.NewBadRequest("path must be a local path")
	}

	entry := gate.ParseEntry(c.QueryParam("entry"))
	d := gate.Resolve(GetSession(c), gate.Intent{Path: p, Entry: entry})
	if entry == gate.EntryNone {
		entry = gate.EntryFor(p)
	}

	return c.JSON(http.StatusOK, resolveResponse{
		Decision: d,
		Rule:     d.Rule.String(),
		Entry:    entry.String(),
		Redirect: d.Redirects(),
		Location: d.Location(),
	})
}

func newSessionResponse(s *session.Session) sessionResponse {
	if s == nil {
		return sessionResponse{}
	}
	perms := s.Permissions
	if perms == nil {
		perms = []string{}
	}
	return sessionResponse{
		IsAuthenticated:    true,
		IsAdmin:            s.IsElevated(),
		MustChangePassword: s.MustChangePassword,
		CurrentUser: &userResponse{
			ID:          s.SubjectID,
			DisplayName: s.DisplayName,
			Username:    s.Username,
			Email:       s.Email,
			Role:        string(s.Role),
			Permissions: perms,
		},
	}
}
