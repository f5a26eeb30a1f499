package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/meridianhq/corpweb/internal/apperror"
	"github.com/meridianhq/corpweb/internal/plugins/auth"
)

// perPage is the number of events shown per page in the activity feed.
const perPage = 50

// maxLatest caps Latest so a dashboard widget cannot request the whole log.
const maxLatest = 20

// summaryWindow is how far back the dashboard summary looks.
const summaryWindow = 24 * time.Hour

// AuditService handles business logic for the auth event log. It validates
// inputs, enforces limits, and delegates persistence to the repository.
type AuditService interface {
	// Log records an event. Designed to be fire-and-forget friendly:
	// errors are logged but callers may ignore them since audit failures
	// should not block sign-in.
	Log(ctx context.Context, event *AuthEvent) error

	// RecordAuthEvent adapts an auth.Event and logs it, swallowing errors.
	// It makes the service usable as an auth.EventRecorder.
	RecordAuthEvent(ctx context.Context, ev auth.Event)

	// Activity returns a paginated feed of events, newest first.
	Activity(ctx context.Context, page int) ([]AuthEvent, int, error)

	// Latest returns up to n of the newest events.
	Latest(ctx context.Context, n int) ([]AuthEvent, error)

	// Summary returns headline numbers for the last 24 hours.
	Summary(ctx context.Context) (*Summary, error)
}

// auditService implements AuditService.
type auditService struct {
	repo AuditRepository
	now  func() time.Time
}

// NewAuditService creates a new audit service with the given repository.
func NewAuditService(repo AuditRepository) AuditService {
	return &auditService{repo: repo, now: time.Now}
}

// Log validates and persists an event. Missing required fields cause a
// bad request error. Write failures are recorded via slog.
func (s *auditService) Log(ctx context.Context, event *AuthEvent) error {
	if event.Action == "" {
		return apperror.NewBadRequest("action is required for auth event")
	}
	if event.Outcome != auth.OutcomeSuccess && event.Outcome != auth.OutcomeFailure {
		return apperror.NewBadRequest("outcome must be success or failure")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}
	// Column widths from the auth_events migration.
	event.Username = truncate(event.Username, 100)
	event.Detail = truncate(event.Detail, 255)

	if err := s.repo.Log(ctx, event); err != nil {
		slog.Error("failed to write auth event",
			slog.String("action", event.Action),
			slog.String("outcome", event.Outcome),
			slog.Any("error", err),
		)
		return apperror.NewInternal(fmt.Errorf("writing auth event: %w", err))
	}

	return nil
}

// RecordAuthEvent converts ev and logs it. The request may already be
// finishing, so the write is detached from ctx cancellation.
func (s *auditService) RecordAuthEvent(ctx context.Context, ev auth.Event) {
	event := &AuthEvent{
		SubjectID: ev.SubjectID,
		Username:  ev.Username,
		Action:    ev.Action,
		Outcome:   ev.Outcome,
		Entry:     ev.Entry,
		RemoteIP:  ev.RemoteIP,
		Detail:    ev.Detail,
		CreatedAt: ev.At,
	}
	_ = s.Log(context.WithoutCancel(ctx), event)
}

// Activity returns the paginated event feed. Pages are 1-indexed. Invalid
// page numbers are clamped to 1.
func (s *auditService) Activity(ctx context.Context, page int) ([]AuthEvent, int, error) {
	if page < 1 {
		page = 1
	}

	offset := (page - 1) * perPage
	events, total, err := s.repo.ListRecent(ctx, perPage, offset)
	if err != nil {
		return nil, 0, apperror.NewInternal(fmt.Errorf("listing auth events: %w", err))
	}

	return events, total, nil
}

// Latest returns the newest events for dashboard widgets.
func (s *auditService) Latest(ctx context.Context, n int) ([]AuthEvent, error) {
	if n < 1 {
		return nil, nil
	}
	if n > maxLatest {
		n = maxLatest
	}

	events, _, err := s.repo.ListRecent(ctx, n, 0)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing latest auth events: %w", err))
	}
	return events, nil
}

// Summary returns aggregate numbers over the summary window.
func (s *auditService) Summary(ctx context.Context) (*Summary, error) {
	summary, err := s.repo.Summary(ctx, s.now().UTC().Add(-summaryWindow))
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("summarizing auth events: %w", err))
	}
	return summary, nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
