package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridianhq/corpweb/internal/session"
)

var (
	regular  = &session.Session{SubjectID: "1", Role: session.RoleUser}
	admin    = &session.Session{SubjectID: "2", Role: session.RoleAdmin}
	super    = &session.Session{SubjectID: "3", Role: session.RoleSuperAdmin}
	permUser = &session.Session{SubjectID: "4", Role: session.RoleUser, Permissions: []string{"view_users"}}
)

// destinations is a spread of targets used by the property tests.
var destinations = []string{
	"/", "/services", "/services/consulting", "/team", "/announcements/7",
	"/tools", "/dashboard", "/dashboard/settings", "/admin", "/admin/dashboard",
	"/admin/users?page=2", "/login", "/register", "/admin/login",
	"/admin/register", "/change-password", "/administrator", "/dashboard?tab=x",
}

func TestResolve_AnonymousProtected(t *testing.T) {
	d := Resolve(nil, Intent{Path: "/dashboard/settings?tab=profile"})

	assert.Equal(t, RuleLogin, d.Rule)
	assert.Equal(t, LoginPath, d.Path)
	assert.Equal(t, "/dashboard/settings?tab=profile", d.ReturnTo)
	assert.True(t, d.Redirects())
	assert.Equal(t, "/login?return_to=%2Fdashboard%2Fsettings%3Ftab%3Dprofile", d.Location())
}

func TestResolve_AnonymousAdminAreaGoesToAdminLogin(t *testing.T) {
	d := Resolve(nil, Intent{Path: "/admin/dashboard"})

	assert.Equal(t, AdminLoginPath, d.Path)
	assert.Equal(t, "/admin/dashboard", d.ReturnTo)
}

func TestResolve_AnonymousPublic(t *testing.T) {
	for _, p := range []string{"/", "/services", "/team", "/login", "/admin/login", "/admin/register", "/administrator"} {
		d := Resolve(nil, Intent{Path: p})
		assert.Equal(t, RulePassThrough, d.Rule, p)
		assert.Equal(t, p, d.Path, p)
		assert.False(t, d.Redirects(), p)
	}
}

// Property: an elevated session through the regular entry point always
// lands on the admin landing page.
func TestResolve_ElevatedRegularEntry(t *testing.T) {
	for _, s := range []*session.Session{admin, super, permUser} {
		for _, p := range destinations {
			d := Resolve(s, Intent{Path: p, Entry: EntryRegular})
			assert.Equal(t, AdminLandingPath, d.Path, "role=%s path=%s", s.Role, p)
			assert.NotEqual(t, LandingPath, CleanPath(d.Path))
			assert.Equal(t, NoticeElevatedEntry, d.Notice)
		}
	}
}

// Property: must_change_password overrides every destination and entry.
func TestResolve_MustChangePassword(t *testing.T) {
	for _, base := range []*session.Session{regular, admin, super, permUser} {
		s := *base
		s.MustChangePassword = true
		for _, p := range destinations {
			for _, e := range []Entry{EntryNone, EntryRegular, EntryAdmin} {
				d := Resolve(&s, Intent{Path: p, Entry: e})
				assert.Equal(t, ChangePasswordPath, d.Path, "path=%s entry=%s", p, e)
				assert.Equal(t, RulePasswordChange, d.Rule)
			}
		}

		cleared := s.WithPasswordChanged()
		d := Resolve(cleared, Intent{Path: "/services"})
		assert.Equal(t, "/services", d.Path)
	}
}

func TestResolve_MustChangePasswordOnTheChangePage(t *testing.T) {
	s := &session.Session{Role: session.RoleUser, MustChangePassword: true}

	d := Resolve(s, Intent{Path: ChangePasswordPath})
	assert.False(t, d.Redirects())
	assert.Empty(t, d.Notice)
}

func TestResolve_RegularAdminEntry(t *testing.T) {
	d := Resolve(regular, Intent{Path: AdminLandingPath, Entry: EntryAdmin})
	assert.Equal(t, RuleRegularEntry, d.Rule)
	assert.Equal(t, LandingPath, d.Path)
	assert.Equal(t, NoticeRegularEntry, d.Notice)

	// The admin area implies the admin entry point.
	d = Resolve(regular, Intent{Path: "/admin/users"})
	assert.Equal(t, LandingPath, d.Path)
}

func TestResolve_PassThrough(t *testing.T) {
	tests := []struct {
		name string
		sess *session.Session
		in   Intent
	}{
		{"regular on dashboard", regular, Intent{Path: "/dashboard"}},
		{"regular via regular entry", regular, Intent{Path: "/team", Entry: EntryRegular}},
		{"admin on admin dashboard", admin, Intent{Path: "/admin/dashboard"}},
		{"admin via admin entry", admin, Intent{Path: "/admin/dashboard", Entry: EntryAdmin}},
		{"admin on public page", admin, Intent{Path: "/services"}},
		{"admin on regular dashboard", admin, Intent{Path: "/dashboard"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Resolve(tt.sess, tt.in)
			assert.Equal(t, RulePassThrough, d.Rule)
			assert.Equal(t, tt.in.Path, d.Path)
			assert.Empty(t, d.Notice)
		})
	}
}

func TestResolve_EmptyPathIsHome(t *testing.T) {
	d := Resolve(nil, Intent{})
	assert.Equal(t, HomePath, d.Path)
}

func TestRule_String(t *testing.T) {
	assert.Equal(t, "login", RuleLogin.String())
	assert.Equal(t, "password_change", RulePasswordChange.String())
	assert.Equal(t, "elevated_entry", RuleElevatedEntry.String())
	assert.Equal(t, "regular_entry", RuleRegularEntry.String())
	assert.Equal(t, "pass_through", RulePassThrough.String())
}
