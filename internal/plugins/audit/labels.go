package audit

import (
	"strconv"

	"github.com/meridianhq/corpweb/internal/plugins/auth"
)

var actionLabels = map[string]string{
	auth.ActionLogin:          "Sign in",
	auth.ActionCallback:       "Provider sign in",
	auth.ActionRegister:       "Registration",
	auth.ActionAdminRegister:  "Admin registration",
	auth.ActionPasswordChange: "Password change",
	auth.ActionLogout:         "Sign out",
	auth.ActionTokenRejected:  "Session expired",
}

// ActionLabel returns the display name of an action.
func ActionLabel(action string) string {
	if l, ok := actionLabels[action]; ok {
		return l
	}
	return action
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func pageCount(total, perPage int) int {
	if perPage < 1 {
		return 1
	}
	return (total + perPage - 1) / perPage
}

func activityPageURL(page int) string {
	return "/admin/activity?page=" + strconv.Itoa(page)
}
