package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clinvia/teleconsulta/internal/domain"
)

type SessionRepo struct {
	db *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

func (r *SessionRepo) Create(ctx context.Context, s domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO video_sessions (
			appointment_id, title, scheduled_start, scheduled_end,
			started_at, ended_at, recording_url, status, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		int64(s.AppointmentID),
		s.Title,
		s.ScheduledStart,
		s.ScheduledEnd,
		toNullTime(s.StartedAt),
		toNullTime(s.EndedAt),
		toNullString(s.RecordingURL),
		string(s.Status),
		s.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: session exists for appointment %d", domain.ErrConflict, s.AppointmentID)
		}
		return err
	}
	return nil
}

const sessionColumns = `
	appointment_id, title, scheduled_start, scheduled_end,
	started_at, ended_at, recording_url, status, created_at`

func (r *SessionRepo) GetByAppointment(ctx context.Context, id domain.AppointmentID) (domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM video_sessions
		WHERE appointment_id = $1
	`, int64(id))
	return scanSession(row)
}

func (r *SessionRepo) MarkActive(ctx context.Context, id domain.AppointmentID, startedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE video_sessions
		SET status = 'active', started_at = COALESCE(started_at, $2)
		WHERE appointment_id = $1 AND status = 'scheduled'
	`, int64(id), startedAt)
	return err
}

// Finalize keeps the first end timestamp on repeated calls.
func (r *SessionRepo) Finalize(ctx context.Context, id domain.AppointmentID, endedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE video_sessions
		SET status = 'ended', ended_at = COALESCE(ended_at, $2)
		WHERE appointment_id = $1
	`, int64(id), endedAt)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: session %d", domain.ErrNotFound, id)
	}
	return nil
}

func (r *SessionRepo) SetRecordingURL(ctx context.Context, id domain.AppointmentID, url string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE video_sessions SET recording_url = $2 WHERE appointment_id = $1
	`, int64(id), url)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: session %d", domain.ErrNotFound, id)
	}
	return nil
}

func (r *SessionRepo) ListActiveEndingBefore(ctx context.Context, cutoff time.Time) ([]domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM video_sessions
		WHERE status = 'active' AND scheduled_end < $1
		ORDER BY scheduled_end ASC
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.Session, error) {
	var (
		s            domain.Session
		id           int64
		status       string
		startedAt    sql.NullTime
		endedAt      sql.NullTime
		recordingURL sql.NullString
	)
	err := row.Scan(
		&id,
		&s.Title,
		&s.ScheduledStart,
		&s.ScheduledEnd,
		&startedAt,
		&endedAt,
		&recordingURL,
		&status,
		&s.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Session{}, fmt.Errorf("%w: session", domain.ErrNotFound)
		}
		return domain.Session{}, err
	}
	s.AppointmentID = domain.AppointmentID(id)
	s.Status = domain.SessionStatus(status)
	if startedAt.Valid {
		t := startedAt.Time
		s.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	if recordingURL.Valid {
		u := recordingURL.String
		s.RecordingURL = &u
	}
	return s, nil
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
