package session

import "testing"

func TestIsElevated(t *testing.T) {
	tests := []struct {
		name string
		sess *Session
		want bool
	}{
		{"nil", nil, false},
		{"user", &Session{Role: RoleUser}, false},
		{"admin", &Session{Role: RoleAdmin}, true},
		{"super admin", &Session{Role: RoleSuperAdmin}, true},
		{"user with view_users", &Session{Role: RoleUser, Permissions: NormalizePermissions([]string{" View_Users "})}, true},
		{"user with unrelated permission", &Session{Role: RoleUser, Permissions: NormalizePermissions([]string{"view_reports"})}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sess.IsElevated(); got != tt.want {
				t.Errorf("IsElevated() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeRole(t *testing.T) {
	cases := map[string]Role{
		"admin":       RoleAdmin,
		"ADMIN":       RoleAdmin,
		"super_admin": RoleSuperAdmin,
		"superadmin":  RoleSuperAdmin,
		"user":        RoleUser,
		"editor":      RoleUser,
		"":            RoleAnonymous,
	}
	for in, want := range cases {
		if got := NormalizeRole(in); got != want {
			t.Errorf("NormalizeRole(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizePermissions(t *testing.T) {
	got := NormalizePermissions([]string{"b", " A ", "b", "", "c"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if NormalizePermissions(nil) != nil {
		t.Error("expected nil for empty input")
	}
}

func TestWithPasswordChanged_DoesNotMutateOriginal(t *testing.T) {
	orig := &Session{SubjectID: "1", MustChangePassword: true, Permissions: []string{"a"}}
	next := orig.WithPasswordChanged()

	if !orig.MustChangePassword {
		t.Error("original must keep its flag")
	}
	if next.MustChangePassword {
		t.Error("copy must have flag cleared")
	}
	next.Permissions[0] = "z"
	if orig.Permissions[0] != "a" {
		t.Error("copy must not share the permissions slice")
	}
}
