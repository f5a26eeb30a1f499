package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/meridianhq/corpweb/internal/plugins/auth"
)

// AuditRepository defines the data access contract for auth events.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type AuditRepository interface {
	// Log inserts a new event and sets its ID.
	Log(ctx context.Context, event *AuthEvent) error

	// ListRecent returns events newest first. Returns the events, the total
	// count (for pagination), and any error.
	ListRecent(ctx context.Context, limit, offset int) ([]AuthEvent, int, error)

	// Summary aggregates events created at or after since.
	Summary(ctx context.Context, since time.Time) (*Summary, error)
}

// auditRepository implements AuditRepository with MariaDB queries.
type auditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new repository backed by the given DB pool.
func NewAuditRepository(db *sql.DB) AuditRepository {
	return &auditRepository{db: db}
}

// Log inserts a new auth event. Empty optional columns are stored as NULL.
func (r *auditRepository) Log(ctx context.Context, event *AuthEvent) error {
	query := `INSERT INTO auth_events (subject_id, username, action, outcome, entry, remote_ip, detail, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, query,
		nullString(event.SubjectID), nullString(event.Username),
		event.Action, event.Outcome,
		nullString(event.Entry), nullString(event.RemoteIP), nullString(event.Detail),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting auth event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting auth event id: %w", err)
	}
	event.ID = id

	return nil
}

// ListRecent returns auth events ordered by most recent first.
func (r *auditRepository) ListRecent(ctx context.Context, limit, offset int) ([]AuthEvent, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auth_events`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting auth events: %w", err)
	}

	query := `SELECT id, subject_id, username, action, outcome,
	                 entry, remote_ip, detail, created_at
	          FROM auth_events
	          ORDER BY created_at DESC, id DESC
	          LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing auth events: %w", err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

// Summary counts successes, failures and distinct subjects since a point
// in time, plus the newest event overall.
func (r *auditRepository) Summary(ctx context.Context, since time.Time) (*Summary, error) {
	s := &Summary{}

	countQuery := `SELECT
	                 COALESCE(SUM(action IN (?, ?) AND outcome = ?), 0),
	                 COALESCE(SUM(outcome = ?), 0),
	                 COUNT(DISTINCT CASE WHEN outcome = ? THEN subject_id END)
	               FROM auth_events
	               WHERE created_at >= ?`
	if err := r.db.QueryRowContext(ctx, countQuery,
		auth.ActionLogin, auth.ActionCallback, auth.OutcomeSuccess,
		auth.OutcomeFailure,
		auth.OutcomeSuccess,
		since,
	).Scan(&s.Logins, &s.Failures, &s.DistinctUsers); err != nil {
		return nil, fmt.Errorf("querying auth event summary: %w", err)
	}

	var last sql.NullTime
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM auth_events`).Scan(&last); err != nil {
		return nil, fmt.Errorf("querying last auth event: %w", err)
	}
	if last.Valid {
		s.LastEventAt = &last.Time
	}

	return s, nil
}

// scanEventRows scans rows from an auth_events query. Expects columns: id,
// subject_id, username, action, outcome, entry, remote_ip, detail, created_at.
func scanEventRows(rows *sql.Rows) ([]AuthEvent, error) {
	var events []AuthEvent
	for rows.Next() {
		var e AuthEvent
		var subjectID, username, entry, remoteIP, detail sql.NullString
		if err := rows.Scan(
			&e.ID, &subjectID, &username, &e.Action, &e.Outcome,
			&entry, &remoteIP, &detail, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning auth event: %w", err)
		}
		e.SubjectID = subjectID.String
		e.Username = username.String
		e.Entry = entry.String
		e.RemoteIP = remoteIP.String
		e.Detail = detail.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating auth events: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
