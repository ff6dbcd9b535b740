package app

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/clinvia/teleconsulta/internal/core"
	"github.com/clinvia/teleconsulta/internal/domain"
)

// Outbound channel event types.
const (
	EvJoinConfirmed   = "join-confirmed"
	EvMemberJoined    = "member-joined"
	EvMemberLeft      = "member-left"
	EvMediaState      = "media-state-changed"
	EvRecordingState  = "recording-state-changed"
	EvChatMessage     = "chat-message"
	EvTimeWarning     = "time-warning"
	EvSessionEnded    = "session-ended"
	EvError           = "error"
	EvPong            = "pong"
	EvSignalingOffer  = "signaling-offer"
	EvSignalingAnswer = "signaling-answer"
	EvSignalingICE    = "signaling-ice-candidate"
)

type SelfDTO struct {
	core.MemberDTO
	ConnectionToken string `json:"connection_token"`
}

type JoinConfirmedEvent struct {
	Type      string               `json:"type"`
	Room      domain.AppointmentID `json:"room"`
	Self      SelfDTO              `json:"self"`
	Members   []core.MemberDTO     `json:"members"`
	Recording core.RecordingState  `json:"recording_state"`
}

type MemberJoinedEvent struct {
	Type   string               `json:"type"`
	Room   domain.AppointmentID `json:"room"`
	Member core.MemberDTO       `json:"member"`
}

type MemberLeftEvent struct {
	Type          string               `json:"type"`
	Room          domain.AppointmentID `json:"room"`
	PeerID        core.ConnID          `json:"peer_id"`
	ParticipantID domain.ParticipantID `json:"participant_id"`
	DisplayName   string               `json:"display_name"`
}

type MediaStateEvent struct {
	Type   string         `json:"type"`
	Member core.MemberDTO `json:"member"`
}

type RecordingStateEvent struct {
	Type  string               `json:"type"`
	State core.RecordingState  `json:"state"`
	By    domain.ParticipantID `json:"by"`
}

// SignalEvent carries an opaque negotiation payload between two
// connections. The payload is relayed unmodified.
type SignalEvent struct {
	Type    string          `json:"type"`
	From    core.ConnID     `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

type ChatEvent struct {
	Type          string               `json:"type"`
	From          core.ConnID          `json:"from"`
	ParticipantID domain.ParticipantID `json:"participant_id"`
	DisplayName   string               `json:"display_name"`
	Role          domain.Role          `json:"role"`
	Text          string               `json:"text,omitempty"`
	AttachmentURL string               `json:"attachment_url,omitempty"`
	SentAt        time.Time            `json:"sent_at"`
}

type TimeWarningEvent struct {
	Type        string               `json:"type"`
	Room        domain.AppointmentID `json:"room"`
	MinutesLeft int                  `json:"minutes_left"`
}

type SessionEndedEvent struct {
	Type   string               `json:"type"`
	Room   domain.AppointmentID `json:"room"`
	Reason string               `json:"reason"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Encode marshals an event for the channel. Marshal failures are a
// programming error; they are logged and yield an empty frame that
// TrySend treats as a no-op.
func Encode(v any) core.Frame {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.events").Msg("event marshal")
		return nil
	}
	return core.Frame(b)
}

// ErrorCode maps a taxonomy error onto its channel/API code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrNotAttached):
		return "not_attached"
	case errors.Is(err, domain.ErrBadRequest):
		return "bad_request"
	}
	return "internal"
}

// ErrorFrame builds the structured error event reported back to the
// originating connection only. Channel errors are never fatal.
func ErrorFrame(err error) core.Frame {
	return Encode(ErrorEvent{Type: EvError, Code: ErrorCode(err), Message: err.Error()})
}
