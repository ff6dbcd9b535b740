package domain

import "time"

type SessionStatus string

// Session lifecycle is monotonic: scheduled -> active -> ended.
const (
	SessionScheduled SessionStatus = "scheduled"
	SessionActive    SessionStatus = "active"
	SessionEnded     SessionStatus = "ended"
)

// Session is the persisted record of one video consultation,
// tied 1:1 to an appointment. The appointment id doubles as the
// room id on the live channel.
type Session struct {
	AppointmentID  AppointmentID
	Title          string
	ScheduledStart time.Time
	ScheduledEnd   time.Time
	StartedAt      *time.Time
	EndedAt        *time.Time
	RecordingURL   *string
	Status         SessionStatus
	CreatedAt      time.Time
}

func (s *Session) HasRecording() bool {
	return s.RecordingURL != nil && *s.RecordingURL != ""
}
