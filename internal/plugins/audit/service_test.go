package audit

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/meridianhq/corpweb/internal/apperror"
	"github.com/meridianhq/corpweb/internal/plugins/auth"
)

// --- Mock Repository ---

// mockAuditRepo implements AuditRepository for testing.
type mockAuditRepo struct {
	logFn        func(ctx context.Context, event *AuthEvent) error
	listRecentFn func(ctx context.Context, limit, offset int) ([]AuthEvent, int, error)
	summaryFn    func(ctx context.Context, since time.Time) (*Summary, error)
}

func (m *mockAuditRepo) Log(ctx context.Context, event *AuthEvent) error {
	if m.logFn != nil {
		return m.logFn(ctx, event)
	}
	return nil
}

func (m *mockAuditRepo) ListRecent(ctx context.Context, limit, offset int) ([]AuthEvent, int, error) {
	if m.listRecentFn != nil {
		return m.listRecentFn(ctx, limit, offset)
	}
	return nil, 0, nil
}

func (m *mockAuditRepo) Summary(ctx context.Context, since time.Time) (*Summary, error) {
	if m.summaryFn != nil {
		return m.summaryFn(ctx, since)
	}
	return &Summary{}, nil
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(repo *mockAuditRepo) *auditService {
	return &auditService{repo: repo, now: func() time.Time { return fixedNow }}
}

// assertAppError checks that err is an *apperror.AppError with the expected code.
func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

// --- Log Tests ---

func TestLog_Success(t *testing.T) {
	var stored *AuthEvent
	svc := newTestService(&mockAuditRepo{
		logFn: func(ctx context.Context, event *AuthEvent) error {
			stored = event
			return nil
		},
	})

	err := svc.Log(context.Background(), &AuthEvent{Action: auth.ActionLogin, Outcome: auth.OutcomeSuccess})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored == nil {
		t.Fatal("expected repository write")
	}
	if !stored.CreatedAt.Equal(fixedNow) {
		t.Errorf("expected timestamp from clock, got %v", stored.CreatedAt)
	}
}

func TestLog_Validation(t *testing.T) {
	svc := newTestService(&mockAuditRepo{
		logFn: func(ctx context.Context, event *AuthEvent) error {
			t.Fatal("invalid events must not reach the repository")
			return nil
		},
	})

	assertAppError(t, svc.Log(context.Background(), &AuthEvent{Outcome: auth.OutcomeSuccess}), 400)
	assertAppError(t, svc.Log(context.Background(), &AuthEvent{Action: auth.ActionLogin, Outcome: "maybe"}), 400)
}

func TestLog_RepoError(t *testing.T) {
	svc := newTestService(&mockAuditRepo{
		logFn: func(ctx context.Context, event *AuthEvent) error {
			return errors.New("connection refused")
		},
	})

	assertAppError(t, svc.Log(context.Background(), &AuthEvent{Action: auth.ActionLogout, Outcome: auth.OutcomeSuccess}), 500)
}

func TestRecordAuthEvent_SurvivesCancelledRequest(t *testing.T) {
	var stored *AuthEvent
	svc := newTestService(&mockAuditRepo{
		logFn: func(ctx context.Context, event *AuthEvent) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			stored = event
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc.RecordAuthEvent(ctx, auth.Event{
		Action:   auth.ActionLogin,
		Outcome:  auth.OutcomeFailure,
		Username: "alice",
		Entry:    "admin",
		RemoteIP: "203.0.113.9",
		Detail:   "invalid username or password",
	})

	if stored == nil {
		t.Fatal("expected the event to be written")
	}
	if stored.Username != "alice" || stored.Entry != "admin" || !stored.Failed() {
		t.Errorf("unexpected event %+v", stored)
	}
}

// --- Query Tests ---

func TestActivity_ClampsPage(t *testing.T) {
	var gotOffset, gotLimit int
	svc := newTestService(&mockAuditRepo{
		listRecentFn: func(ctx context.Context, limit, offset int) ([]AuthEvent, int, error) {
			gotLimit, gotOffset = limit, offset
			return nil, 0, nil
		},
	})

	if _, _, err := svc.Activity(context.Background(), -3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotOffset != 0 || gotLimit != perPage {
		t.Errorf("expected first page, got limit=%d offset=%d", gotLimit, gotOffset)
	}

	if _, _, err := svc.Activity(context.Background(), 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotOffset != 2*perPage {
		t.Errorf("expected offset %d, got %d", 2*perPage, gotOffset)
	}
}

func TestLatest_Caps(t *testing.T) {
	var gotLimit int
	svc := newTestService(&mockAuditRepo{
		listRecentFn: func(ctx context.Context, limit, offset int) ([]AuthEvent, int, error) {
			gotLimit = limit
			return nil, 0, nil
		},
	})

	if _, err := svc.Latest(context.Background(), 500); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotLimit != maxLatest {
		t.Errorf("expected limit %d, got %d", maxLatest, gotLimit)
	}

	gotLimit = -1
	events, err := svc.Latest(context.Background(), 0)
	if err != nil || events != nil || gotLimit != -1 {
		t.Errorf("zero should not query, got %v %v %d", events, err, gotLimit)
	}
}

func TestSummary_Window(t *testing.T) {
	var gotSince time.Time
	svc := newTestService(&mockAuditRepo{
		summaryFn: func(ctx context.Context, since time.Time) (*Summary, error) {
			gotSince = since
			return &Summary{Logins: 4}, nil
		},
	})

	s, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Logins != 4 {
		t.Errorf("expected 4 logins, got %d", s.Logins)
	}
	if want := fixedNow.Add(-24 * time.Hour); !gotSince.Equal(want) {
		t.Errorf("expected since %v, got %v", want, gotSince)
	}
}

// --- Rendering ---

func TestRecentEvents_Render(t *testing.T) {
	events := []AuthEvent{
		{Action: auth.ActionLogin, Outcome: auth.OutcomeFailure, Username: "<bob>", Entry: "admin", CreatedAt: fixedNow},
		{Action: "custom.action", Outcome: auth.OutcomeSuccess, CreatedAt: fixedNow},
	}

	var buf bytes.Buffer
	if err := RecentEvents(events).Render(context.Background(), &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	html := buf.String()

	for _, want := range []string{`class="failed"`, "Sign in", "&lt;bob&gt;", `<span class="badge">admin</span>`, "custom.action"} {
		if !strings.Contains(html, want) {
			t.Errorf("expected %q in output", want)
		}
	}
}

func TestActivityPage_Pager(t *testing.T) {
	var buf bytes.Buffer
	if err := ActivityPage(nil, nil, 45, 2, 20).Render(context.Background(), &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	html := buf.String()

	for _, want := range []string{`href="/admin/activity?page=1"`, `href="/admin/activity?page=3"`, "No account activity recorded yet."} {
		if !strings.Contains(html, want) {
			t.Errorf("expected %q in output", want)
		}
	}

	buf.Reset()
	if err := ActivityPage(nil, nil, 10, 1, 20).Render(context.Background(), &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(buf.String(), `class="pager"`) {
		t.Error("single page should not render a pager")
	}
}
