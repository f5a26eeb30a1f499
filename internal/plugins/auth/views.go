package auth

import (
	"strings"
	"time"

	"github.com/meridianhq/corpweb/internal/gate"
)

type loginView struct {
	Admin     bool
	Username  string
	ReturnTo  string
	Error     string
	Fields    map[string]string
	Providers []string
}

func (v loginView) title() string {
	if v.Admin {
		return "Administrator sign in"
	}
	return "Sign in"
}

func (v loginView) action() string {
	if v.Admin {
		return gate.AdminLoginPath
	}
	return gate.LoginPath
}

type registerView struct {
	Admin  bool
	Form   RegisterRequest
	Error  string
	Fields map[string]string
}

func (v registerView) title() string {
	if v.Admin {
		return "Request administrator access"
	}
	return "Create an account"
}

func (v registerView) action() string {
	if v.Admin {
		return gate.AdminRegisterPath
	}
	return gate.RegisterPath
}

func (v registerView) loginPath() string {
	if v.Admin {
		return gate.AdminLoginPath
	}
	return gate.LoginPath
}

type changePasswordView struct {
	Required bool
	Error    string
	Fields   map[string]string
}

var providerLabels = map[string]string{
	"google":    "Google",
	"microsoft": "Microsoft",
	"github":    "GitHub",
	"okta":      "Okta",
}

func providerLabel(p string) string {
	if l, ok := providerLabels[p]; ok {
		return l
	}
	if p == "" {
		return p
	}
	return strings.ToUpper(p[:1]) + p[1:]
}

func providerHref(p, returnTo string) string {
	return gate.WithReturnTo("/auth/"+p, returnTo)
}

// failedDelay keeps the callback failure page from refreshing instantly.
func failedDelay(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	return d
}
