package domain

import (
	"time"

	"github.com/google/uuid"
)

type ParticipantID string

type Role string

const (
	RoleDoctor    Role = "doctor"
	RolePatient   Role = "patient"
	RoleGuest     Role = "guest"
	RoleCompanion Role = "acompanante"
)

// ParseRole normalizes a free-form role tag from an invitation.
// Unknown tags fall back to guest.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleDoctor, RolePatient, RoleGuest, RoleCompanion:
		return Role(s)
	case "companion":
		return RoleCompanion
	}
	return RoleGuest
}

// Participant is one presence within a session, by account or by
// guest invitation. LeftAt, once stamped, is never cleared; live
// presence is tracked by the room hub, not by this row.
type Participant struct {
	ID          ParticipantID
	SessionID   AppointmentID
	AccountID   *AccountID
	DisplayName string
	Role        Role
	// ConnToken is the opaque reconnection credential handed to the
	// client on join-confirmed.
	ConnToken     string
	JoinedAt      time.Time
	LeftAt        *time.Time
	MicOn         bool
	CameraOn      bool
	ScreenSharing bool
}

// NewParticipant mints a participant with a fresh id and connection
// token. Media starts with mic and camera on, screen share off.
func NewParticipant(sessionID AppointmentID, account *AccountID, name string, role Role, now time.Time) Participant {
	return Participant{
		ID:          ParticipantID(uuid.NewString()),
		SessionID:   sessionID,
		AccountID:   account,
		DisplayName: name,
		Role:        role,
		ConnToken:   uuid.NewString(),
		JoinedAt:    now,
		MicOn:       true,
		CameraOn:    true,
	}
}
