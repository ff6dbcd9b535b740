package app

import (
	"context"
	"time"

	"github.com/clinvia/teleconsulta/internal/domain"
)

// SessionRepo persists the session record, one row per appointment.
// Create must enforce uniqueness on the appointment id at the storage
// level, not with a check-then-insert.
type SessionRepo interface {
	Create(ctx context.Context, s domain.Session) error
	GetByAppointment(ctx context.Context, id domain.AppointmentID) (domain.Session, error)
	// MarkActive moves scheduled -> active. A no-op for any other
	// source status; the lifecycle never reopens an ended session.
	MarkActive(ctx context.Context, id domain.AppointmentID, startedAt time.Time) error
	// Finalize stamps the end and moves the session to ended. Calling
	// it again keeps the first end timestamp.
	Finalize(ctx context.Context, id domain.AppointmentID, endedAt time.Time) error
	SetRecordingURL(ctx context.Context, id domain.AppointmentID, url string) error
	// ListActiveEndingBefore returns active sessions whose scheduled
	// end falls before the cutoff. Used by the expiry sweeper.
	ListActiveEndingBefore(ctx context.Context, cutoff time.Time) ([]domain.Session, error)
}

// ParticipantRepo persists presences. Rows are never deleted;
// departure is stamped at most once.
type ParticipantRepo interface {
	Create(ctx context.Context, p domain.Participant) error
	GetByToken(ctx context.Context, token string) (domain.Participant, error)
	// GetBySessionAccount returns the most recent presence of the
	// account in the session, present or not.
	GetBySessionAccount(ctx context.Context, sid domain.AppointmentID, account domain.AccountID) (domain.Participant, error)
	// StampDeparture sets the leave timestamp if it is not set yet.
	// A second call leaves the first stamp untouched.
	StampDeparture(ctx context.Context, id domain.ParticipantID, t time.Time) error
	SetMediaFlags(ctx context.Context, id domain.ParticipantID, mic, camera, screen bool) error
	ListBySession(ctx context.Context, sid domain.AppointmentID) ([]domain.Participant, error)
}

// GrantRepo persists admission grants. Consume must be atomic:
// concurrent redemptions of one code yield exactly one success.
type GrantRepo interface {
	Create(ctx context.Context, g domain.AdmissionGrant) error
	// GetByCode reads the grant without consuming it. Unknown codes
	// fail with ErrUnauthorized, same as Consume.
	GetByCode(ctx context.Context, code string) (domain.AdmissionGrant, error)
	// Consume marks the grant consumed and returns it. An unknown,
	// expired or already consumed code fails with ErrUnauthorized.
	Consume(ctx context.Context, code string, now time.Time) (domain.AdmissionGrant, error)
}

// AppointmentRepo reads the clinical booking table owned elsewhere.
type AppointmentRepo interface {
	GetByID(ctx context.Context, id domain.AppointmentID) (domain.Appointment, error)
}
