package layouts

import (
	"context"
	"strings"
	"testing"

	"github.com/a-h/templ"
)

func render(t *testing.T, ctx context.Context, title string) string {
	t.Helper()
	ctx = templ.WithChildren(ctx, templ.Raw("<p>body</p>"))
	var sb strings.Builder
	if err := Page(title).Render(ctx, &sb); err != nil {
		t.Fatalf("render: %v", err)
	}
	return sb.String()
}

func TestPage_Anonymous(t *testing.T) {
	ctx := SetActivePath(context.Background(), "/team")
	out := render(t, ctx, "Team <&>")

	for _, want := range []string{
		"<title>Team &lt;&amp;&gt; · Meridian</title>",
		`href="/login"`,
		`<a href="/team" class="active" aria-current="page">`,
		"<p>body</p>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(out, "/logout") {
		t.Error("anonymous page must not offer sign out")
	}
}

func TestPage_SignedInAdmin(t *testing.T) {
	ctx := context.Background()
	ctx = SetIsAuthenticated(ctx, true)
	ctx = SetIsAdmin(ctx, true)
	ctx = SetUserName(ctx, "<script>x</script>")
	ctx = SetCSRFToken(ctx, "tok")
	ctx = SetFlash(ctx, "info", "Welcome back")

	out := render(t, ctx, "")

	for _, want := range []string{
		`href="/admin/dashboard"`,
		`action="/logout"`,
		`name="csrf_token" value="tok"`,
		"&lt;script&gt;x&lt;/script&gt;",
		"Welcome back",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(out, "<script>x</script>") {
		t.Error("user name must be escaped")
	}
}

func TestPageWith_Refresh(t *testing.T) {
	var sb strings.Builder
	err := PageWith("Failed", PageOptions{RefreshAfter: 3e9, RefreshURL: "/login"}).Render(context.Background(), &sb)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(sb.String(), `<meta http-equiv="refresh" content="3;url=/login">`) {
		t.Errorf("missing refresh meta in %s", sb.String())
	}
}

func TestInput(t *testing.T) {
	var sb strings.Builder
	err := Input(Field{Label: "Password", Name: "password", Type: "password", Value: "hunter2", Error: "too short", Required: true}).
		Render(context.Background(), &sb)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	out := sb.String()

	for _, want := range []string{
		`class="field has-error"`,
		`id="f-password"`,
		`type="password"`,
		" required",
		`aria-describedby="f-password-error"`,
		`<p class="field-error" id="f-password-error">too short</p>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q in %s", want, out)
		}
	}
	if strings.Contains(out, "hunter2") {
		t.Error("password values must not be echoed")
	}
}

func TestNotice(t *testing.T) {
	var sb strings.Builder
	if err := Notice("error", "Nope").Render(context.Background(), &sb); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(sb.String(), `role="alert"`) || !strings.Contains(sb.String(), "notice-error") {
		t.Errorf("unexpected notice %s", sb.String())
	}

	sb.Reset()
	if err := Notice("info", "").Render(context.Background(), &sb); err != nil {
		t.Fatalf("render: %v", err)
	}
	if sb.Len() != 0 {
		t.Errorf("empty message should render nothing, got %s", sb.String())
	}
}

func TestIsActive(t *testing.T) {
	ctx := SetActivePath(context.Background(), "/services/consulting")
	if !IsActive(ctx, "/services") {
		t.Error("expected /services active")
	}
	if IsActive(ctx, "/") {
		t.Error("home must only match exactly")
	}
	if IsActive(ctx, "/serv") {
		t.Error("prefix must match on a segment boundary")
	}
}
