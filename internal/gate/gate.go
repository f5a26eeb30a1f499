package gate

import (
	"github.com/meridianhq/corpweb/internal/session"
)

// Rule names the decision rule that produced a Decision.
type Rule int

const (
	RulePassThrough Rule = iota
	RuleLogin
	RulePasswordChange
	RuleElevatedEntry
	RuleRegularEntry
)

// String returns the rule name used in logs and the JSON API.
func (r Rule) String() string {
	switch r {
	case RuleLogin:
		return "login"
	case RulePasswordChange:
		return "password_change"
	case RuleElevatedEntry:
		return "elevated_entry"
	case RuleRegularEntry:
		return "regular_entry"
	default:
		return "pass_through"
	}
}

// Notices shown alongside a redirect. Role-mismatch notices are
// informational; they never indicate a failure.
const (
	NoticeSignIn         = "Please sign in to continue."
	NoticePasswordChange = "You need to set a new password before continuing."
	NoticeElevatedEntry  = "You're signed in as an administrator, so we've taken you to the admin dashboard."
	NoticeRegularEntry   = "That area is for administrators. We've taken you to your dashboard."
)

// Intent is a requested navigation.
type Intent struct {
	// Path is the requested destination, optionally with a query.
	Path string

	// Entry is the entry point the request came through. When EntryNone,
	// the entry implied by Path is used.
	Entry Entry
}

// Decision is the outcome of Resolve.
type Decision struct {
	// Target is the requested destination as given.
	Target string `json:"target"`

	// Path is where the browser should end up.
	Path string `json:"path"`

	// ReturnTo is set when the caller should resume at Target after signing in.
	ReturnTo string `json:"return_to,omitempty"`

	// Notice is an informational message to show after the redirect.
	Notice string `json:"notice,omitempty"`

	Rule Rule `json:"-"`
}

// Redirects reports whether the browser must be sent somewhere other than
// the requested destination.
func (d Decision) Redirects() bool {
	return d.Rule != RulePassThrough && CleanPath(d.Path) != CleanPath(d.Target)
}

// Location is the redirect URL, including the return target when present.
func (d Decision) Location() string {
	return WithReturnTo(d.Path, d.ReturnTo)
}

// Resolve decides the effective destination for a session (nil when
// anonymous) and a navigation intent. The first matching rule wins:
//
//  1. anonymous and the target requires auth: the matching login page
//  2. password change required: the password-change page
//  3. elevated session through the regular entry point: the admin landing page
//  4. regular session through the admin entry point: the regular landing page
//  5. otherwise the target unchanged
func Resolve(s *session.Session, in Intent) Decision {
	target := in.Path
	if target == "" {
		target = HomePath
	}
	p := CleanPath(target)

	entry := in.Entry
	if entry == EntryNone {
		entry = EntryFor(p)
	}

	d := Decision{Target: target, Path: target, Rule: RulePassThrough}

	switch {
	case s == nil:
		if RequiresAuth(p) {
			d.Path = LoginFor(p)
			d.ReturnTo = SafeReturnTo(target, "")
			d.Notice = NoticeSignIn
			d.Rule = RuleLogin
		}
	case s.MustChangePassword:
		d.Path = ChangePasswordPath
		d.Rule = RulePasswordChange
		if p != ChangePasswordPath {
			d.Notice = NoticePasswordChange
		}
	case entry == EntryRegular && s.IsElevated():
		d.Path = AdminLandingPath
		d.Notice = NoticeElevatedEntry
		d.Rule = RuleElevatedEntry
	case entry == EntryAdmin && !s.IsElevated():
		d.Path = LandingPath
		d.Notice = NoticeRegularEntry
		d.Rule = RuleRegularEntry
	}

	return d
}
