package core

import "github.com/clinvia/teleconsulta/internal/domain"

// Frame is a raw, already-encoded channel payload.
type Frame []byte

// ConnID identifies one transport connection. It is the only identity
// the hub trusts: payload fields never assert who the sender is.
type ConnID string

// SignalConnection abstracts the messaging transport endpoint.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

type MediaKind string

const (
	MediaMic    MediaKind = "mic"
	MediaCamera MediaKind = "camera"
	MediaScreen MediaKind = "screen"
)

// Member binds a participant to its transport endpoint. This is what
// a room stores and fans out to.
type Member struct {
	Participant domain.Participant
	Conn        SignalConnection
}

// MemberDTO is a read-only member view for the channel (no transport
// fields). PeerID is the connection reference peers address signals to.
type MemberDTO struct {
	PeerID        ConnID               `json:"peer_id"`
	ParticipantID domain.ParticipantID `json:"participant_id"`
	DisplayName   string               `json:"display_name"`
	Role          domain.Role          `json:"role"`
	MicOn         bool                 `json:"mic_on"`
	CameraOn      bool                 `json:"camera_on"`
	ScreenSharing bool                 `json:"screen_sharing"`
}

// PublishResult reports delivery stats/backpressure to the hub.
type PublishResult struct {
	SentTo  int
	Dropped []ConnID
}

// RoomService is the hub-facing API of one live room. It owns the
// connection-to-participant binding and the recording machine but
// never touches transport resources beyond TrySend.
type RoomService interface {
	SessionID() domain.AppointmentID
	MemberCount() int
	MembersSnapshot() []MemberDTO

	// AddMember admits the member unless the room already holds cap
	// connections; cap <= 0 means unlimited. A member already in the
	// room re-attaches regardless of cap. The count check and the
	// insertion are one critical section.
	AddMember(cid ConnID, m *Member, cap int) bool
	RemoveMember(cid ConnID) (*Member, bool)
	MemberOf(cid ConnID) (*Member, bool)
	ConnOf(pid domain.ParticipantID) (ConnID, bool)
	SetMedia(cid ConnID, kind MediaKind, enabled bool) (MemberDTO, bool)

	Broadcast(from ConnID, data Frame) PublishResult
	BroadcastAll(data Frame) PublishResult
	SendTo(cid ConnID, data Frame) bool

	RecordingState() RecordingState
	ApplyRecording(action RecordingAction) (RecordingState, error)
}

// RoomFactory tracks active rooms, one entry per session, each guarded
// independently. There is no global lock around room operations.
type RoomFactory interface {
	GetOrCreate(id domain.AppointmentID) RoomService
	Get(id domain.AppointmentID) (RoomService, bool)
	List() []RoomInfo
	StopRoom(id domain.AppointmentID)
}

type RoomInfo struct {
	SessionID   domain.AppointmentID `json:"session_id"`
	MemberCount int                  `json:"member_count"`
}
