package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/clinvia/teleconsulta/internal/core"
	"github.com/clinvia/teleconsulta/internal/domain"
)

// Lifecycle owns the persisted side of a session's existence,
// independent of any transient connection.
type Lifecycle struct {
	appointments AppointmentRepo
	sessions     SessionRepo
	rooms        core.RoomFactory
	roomCap      int
	now          func() time.Time
}

func NewLifecycle(appointments AppointmentRepo, sessions SessionRepo, rooms core.RoomFactory, roomCap int) *Lifecycle {
	return &Lifecycle{
		appointments: appointments,
		sessions:     sessions,
		rooms:        rooms,
		roomCap:      roomCap,
		now:          time.Now,
	}
}

// CreateSession creates the one session allowed per appointment. The
// duplicate check rides on the storage uniqueness constraint so two
// simultaneous creates race down to exactly one winner.
func (l *Lifecycle) CreateSession(ctx context.Context, appointmentID domain.AppointmentID, requester domain.AccountID) (domain.Session, error) {
	appt, err := l.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return domain.Session{}, err
	}
	if !appt.IsParty(requester) {
		return domain.Session{}, fmt.Errorf("%w: not a party of this appointment", domain.ErrForbidden)
	}
	s := domain.Session{
		AppointmentID:  appointmentID,
		Title:          fmt.Sprintf("Consulta %s / %s", appt.DoctorName, appt.PatientName),
		ScheduledStart: appt.StartsAt,
		ScheduledEnd:   appt.EndsAt,
		Status:         domain.SessionScheduled,
		CreatedAt:      l.now(),
	}
	if err := l.sessions.Create(ctx, s); err != nil {
		return domain.Session{}, err
	}
	log.Info().Str("module", "app.lifecycle").Int64("session", int64(appointmentID)).Msg("session created")
	return s, nil
}

// JoinInfoResult reports whether joining is currently permitted and
// how full the room is.
type JoinInfoResult struct {
	Permitted        bool `json:"permitted"`
	ParticipantCount int  `json:"participant_count"`
	Capacity         int  `json:"capacity"`
	CapReached       bool `json:"cap_reached"`
}

func (l *Lifecycle) JoinInfo(ctx context.Context, sessionID domain.AppointmentID, account domain.AccountID) (JoinInfoResult, error) {
	s, err := l.sessions.GetByAppointment(ctx, sessionID)
	if err != nil {
		return JoinInfoResult{}, err
	}
	appt, err := l.appointments.GetByID(ctx, sessionID)
	if err != nil {
		return JoinInfoResult{}, err
	}
	if !appt.IsParty(account) {
		return JoinInfoResult{}, fmt.Errorf("%w: not a party of this appointment", domain.ErrForbidden)
	}
	count := 0
	if room, ok := l.rooms.Get(sessionID); ok {
		count = room.MemberCount()
	}
	capReached := l.roomCap > 0 && count >= l.roomCap
	return JoinInfoResult{
		Permitted:        s.Status != domain.SessionEnded && !capReached,
		ParticipantCount: count,
		Capacity:         l.roomCap,
		CapReached:       capReached,
	}, nil
}

// FinalizeSession stamps the actual end. Safe to call after the hub
// already force-ended the room; the notify-then-persist ordering keeps
// clients from waiting on a database round-trip to learn the session
// is over. Idempotent, the first end timestamp wins.
func (l *Lifecycle) FinalizeSession(ctx context.Context, appointmentID domain.AppointmentID, endedAt time.Time) error {
	if err := l.sessions.Finalize(ctx, appointmentID, endedAt); err != nil {
		return err
	}
	log.Info().Str("module", "app.lifecycle").Int64("session", int64(appointmentID)).
		Time("ended_at", endedAt).Msg("session finalized")
	return nil
}

// AttachRecordingAsset stores the reference URL of an externally
// uploaded recording. Media itself never passes through this core.
func (l *Lifecycle) AttachRecordingAsset(ctx context.Context, appointmentID domain.AppointmentID, assetURL string, requester domain.AccountID) error {
	if assetURL == "" {
		return fmt.Errorf("%w: asset url required", domain.ErrBadRequest)
	}
	appt, err := l.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return err
	}
	if !appt.IsParty(requester) {
		return fmt.Errorf("%w: not a party of this appointment", domain.ErrForbidden)
	}
	return l.sessions.SetRecordingURL(ctx, appointmentID, assetURL)
}

// RecordingAsset returns the stored URL, or ok=false when the session
// exists but has no recording. Missing sessions are ErrNotFound.
func (l *Lifecycle) RecordingAsset(ctx context.Context, appointmentID domain.AppointmentID, requester domain.AccountID) (string, bool, error) {
	appt, err := l.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return "", false, err
	}
	if !appt.IsParty(requester) {
		return "", false, fmt.Errorf("%w: not a party of this appointment", domain.ErrForbidden)
	}
	s, err := l.sessions.GetByAppointment(ctx, appointmentID)
	if err != nil {
		return "", false, err
	}
	if !s.HasRecording() {
		return "", false, nil
	}
	return *s.RecordingURL, true, nil
}
