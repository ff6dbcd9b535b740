package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/clinvia/teleconsulta/internal/core"
	"github.com/clinvia/teleconsulta/internal/domain"
)

// Hub owns all live room state: who is connected right now and whether
// a room is recording. Persistence calls happen outside room locks so
// a slow write never stalls relay for other members of the room.
type Hub struct {
	rooms        core.RoomFactory
	reg          *Registry
	sessions     SessionRepo
	participants ParticipantRepo
	policy       Policy
	roomCap      int
	now          func() time.Time
}

func NewHub(rooms core.RoomFactory, sessions SessionRepo, participants ParticipantRepo, roomCap int) *Hub {
	return &Hub{
		rooms:        rooms,
		reg:          NewRegistry(),
		sessions:     sessions,
		participants: participants,
		policy:       SimplePolicy{},
		roomCap:      roomCap,
		now:          time.Now,
	}
}

// JoinSnapshot is what the joining connection gets back on attach.
type JoinSnapshot struct {
	Room      domain.AppointmentID
	Self      SelfDTO
	Members   []core.MemberDTO
	Recording core.RecordingState
}

// Attach binds the connection to the room of the participant's
// session, notifies existing members and returns the member list.
// Re-attaching the same connection replaces its prior mapping.
func (h *Hub) Attach(ctx context.Context, cid core.ConnID, conn core.SignalConnection, p domain.Participant) (JoinSnapshot, error) {
	s, err := h.sessions.GetByAppointment(ctx, p.SessionID)
	if err != nil {
		return JoinSnapshot{}, err
	}
	if s.Status == domain.SessionEnded {
		return JoinSnapshot{}, fmt.Errorf("%w: session already ended", domain.ErrForbidden)
	}

	room := h.rooms.GetOrCreate(p.SessionID)
	member := &core.Member{Participant: p, Conn: conn}
	if !room.AddMember(cid, member, h.roomCap) {
		return JoinSnapshot{}, fmt.Errorf("%w: room is full", domain.ErrConflict)
	}
	h.reg.Bind(cid, p.SessionID, p.ID)

	// An expiry sweep can finalize the session between the status read
	// above and the bind. The sweep drains members bound before the
	// ended status landed; re-reading here evicts the rest, so a late
	// attacher always gets a termination notice.
	if cur, err := h.sessions.GetByAppointment(ctx, p.SessionID); err == nil && cur.Status == domain.SessionEnded {
		_ = conn.TrySend(Encode(SessionEndedEvent{Type: EvSessionEnded, Room: p.SessionID, Reason: "time_expired"}))
		room.RemoveMember(cid)
		h.reg.Unbind(cid)
		if room.MemberCount() == 0 {
			h.rooms.StopRoom(p.SessionID)
		}
		return JoinSnapshot{}, fmt.Errorf("%w: session already ended", domain.ErrForbidden)
	}

	if s.Status == domain.SessionScheduled {
		if err := h.sessions.MarkActive(ctx, s.AppointmentID, h.now()); err != nil {
			log.Error().Err(err).Str("module", "app.hub").
				Int64("session", int64(s.AppointmentID)).Msg("mark active")
		}
	}

	self := SelfDTO{}
	members := make([]core.MemberDTO, 0)
	for _, m := range room.MembersSnapshot() {
		if m.PeerID == cid {
			self = SelfDTO{MemberDTO: m, ConnectionToken: p.ConnToken}
			continue
		}
		members = append(members, m)
	}

	joined := Encode(MemberJoinedEvent{Type: EvMemberJoined, Room: p.SessionID, Member: self.MemberDTO})
	h.handleBackpressure(ctx, p.SessionID, room.Broadcast(cid, joined))

	log.Info().Str("module", "app.hub").Int64("session", int64(p.SessionID)).
		Str("conn", string(cid)).Str("participant", string(p.ID)).Msg("attached")

	return JoinSnapshot{
		Room:      p.SessionID,
		Self:      self,
		Members:   members,
		Recording: room.RecordingState(),
	}, nil
}

// Detach runs for explicit leave requests and abrupt disconnects
// alike. Calling it twice stamps the departure once and broadcasts a
// single member-left event.
func (h *Hub) Detach(ctx context.Context, cid core.ConnID) {
	e, ok := h.reg.Unbind(cid)
	if !ok {
		return
	}
	room, ok := h.rooms.Get(e.SessionID)
	if ok {
		if m, removed := room.RemoveMember(cid); removed {
			left := Encode(MemberLeftEvent{
				Type:          EvMemberLeft,
				Room:          e.SessionID,
				PeerID:        cid,
				ParticipantID: m.Participant.ID,
				DisplayName:   m.Participant.DisplayName,
			})
			h.handleBackpressure(ctx, e.SessionID, room.BroadcastAll(left))
		}
	}
	if err := h.participants.StampDeparture(ctx, e.ParticipantID, h.now()); err != nil {
		log.Error().Err(err).Str("module", "app.hub").
			Str("participant", string(e.ParticipantID)).Msg("stamp departure")
	}
}

// RelaySignal forwards an opaque negotiation payload to one target
// connection in the sender's room. Delivery is best-effort: a gone
// target drops the signal silently, WebRTC clients time out on their
// own.
func (h *Hub) RelaySignal(cid core.ConnID, target core.ConnID, kind string, payload json.RawMessage) error {
	e, ok := h.reg.Lookup(cid)
	if !ok {
		return fmt.Errorf("%w: connection has no room", domain.ErrNotAttached)
	}
	room, ok := h.rooms.Get(e.SessionID)
	if !ok {
		return nil
	}
	frame := Encode(SignalEvent{Type: kind, From: cid, Payload: payload})
	if !room.SendTo(target, frame) {
		log.Debug().Str("module", "app.hub").Str("from", string(cid)).
			Str("target", string(target)).Msg("signal target gone, dropped")
	}
	return nil
}

// ToggleMedia flips one transient media flag and broadcasts the new
// combined media state to the room.
func (h *Hub) ToggleMedia(ctx context.Context, cid core.ConnID, kind core.MediaKind, enabled bool) error {
	e, ok := h.reg.Lookup(cid)
	if !ok {
		return fmt.Errorf("%w: connection has no room", domain.ErrNotAttached)
	}
	room, ok := h.rooms.Get(e.SessionID)
	if !ok {
		return fmt.Errorf("%w: room is gone", domain.ErrNotAttached)
	}
	dto, ok := room.SetMedia(cid, kind, enabled)
	if !ok {
		return fmt.Errorf("%w: connection has no room", domain.ErrNotAttached)
	}
	// Persisted best-effort: the room state is authoritative while the
	// room lives, rows only seed reconnection.
	if err := h.participants.SetMediaFlags(ctx, dto.ParticipantID, dto.MicOn, dto.CameraOn, dto.ScreenSharing); err != nil {
		log.Error().Err(err).Str("module", "app.hub").
			Str("participant", string(dto.ParticipantID)).Msg("persist media flags")
	}
	h.handleBackpressure(ctx, e.SessionID, room.BroadcastAll(Encode(MediaStateEvent{Type: EvMediaState, Member: dto})))
	return nil
}

// ControlRecording applies the per-room recording state machine.
// Successful transitions are broadcast to the room, failures go back
// to the initiating connection only, attributed by the caller.
func (h *Hub) ControlRecording(ctx context.Context, cid core.ConnID, action core.RecordingAction) (core.RecordingState, error) {
	e, ok := h.reg.Lookup(cid)
	if !ok {
		return "", fmt.Errorf("%w: connection has no room", domain.ErrNotAttached)
	}
	room, ok := h.rooms.Get(e.SessionID)
	if !ok {
		return "", fmt.Errorf("%w: room is gone", domain.ErrNotAttached)
	}
	state, err := room.ApplyRecording(action)
	if err != nil {
		log.Warn().Str("module", "app.hub").Int64("session", int64(e.SessionID)).
			Str("participant", string(e.ParticipantID)).Str("action", string(action)).
			Msg("recording transition rejected")
		return state, err
	}
	ev := Encode(RecordingStateEvent{Type: EvRecordingState, State: state, By: e.ParticipantID})
	h.handleBackpressure(ctx, e.SessionID, room.BroadcastAll(ev))
	return state, nil
}

// SendChat relays a chat message to the rest of the room, carrying the
// sender's display name and role as resolved from the connection.
func (h *Hub) SendChat(ctx context.Context, cid core.ConnID, text, attachmentURL string) error {
	if text == "" && attachmentURL == "" {
		return fmt.Errorf("%w: chat message needs text or attachment", domain.ErrBadRequest)
	}
	e, ok := h.reg.Lookup(cid)
	if !ok {
		return fmt.Errorf("%w: connection has no room", domain.ErrNotAttached)
	}
	room, ok := h.rooms.Get(e.SessionID)
	if !ok {
		return fmt.Errorf("%w: room is gone", domain.ErrNotAttached)
	}
	m, ok := room.MemberOf(cid)
	if !ok {
		return fmt.Errorf("%w: connection has no room", domain.ErrNotAttached)
	}
	ev := Encode(ChatEvent{
		Type:          EvChatMessage,
		From:          cid,
		ParticipantID: m.Participant.ID,
		DisplayName:   m.Participant.DisplayName,
		Role:          m.Participant.Role,
		Text:          text,
		AttachmentURL: attachmentURL,
		SentAt:        h.now(),
	})
	h.handleBackpressure(ctx, e.SessionID, room.Broadcast(cid, ev))
	return nil
}

// Warn emits a time-warning to every member of the room. No-op when
// the room has no live connections.
func (h *Hub) Warn(sessionID domain.AppointmentID, minutesLeft int) {
	room, ok := h.rooms.Get(sessionID)
	if !ok {
		return
	}
	room.BroadcastAll(Encode(TimeWarningEvent{Type: EvTimeWarning, Room: sessionID, MinutesLeft: minutesLeft}))
}

// ForceEnd broadcasts the termination notice, detaches every
// connection from the room group and discards in-memory recording
// state. Departure stamping is left to finalize, which follows the
// notify-then-persist ordering. Ending an unknown or empty room is a
// no-op.
func (h *Hub) ForceEnd(ctx context.Context, sessionID domain.AppointmentID, reason string) {
	room, ok := h.rooms.Get(sessionID)
	if !ok {
		return
	}
	room.BroadcastAll(Encode(SessionEndedEvent{Type: EvSessionEnded, Room: sessionID, Reason: reason}))
	for _, m := range room.MembersSnapshot() {
		room.RemoveMember(m.PeerID)
		h.reg.Unbind(m.PeerID)
	}
	h.rooms.StopRoom(sessionID)
	log.Info().Str("module", "app.hub").Int64("session", int64(sessionID)).
		Str("reason", reason).Msg("room force-ended")
}

// ParticipantCount reports the live member count of a room; zero when
// no room is active for the session.
func (h *Hub) ParticipantCount(sessionID domain.AppointmentID) int {
	room, ok := h.rooms.Get(sessionID)
	if !ok {
		return 0
	}
	return room.MemberCount()
}

func (h *Hub) handleBackpressure(ctx context.Context, sessionID domain.AppointmentID, res core.PublishResult) {
	for _, slow := range res.Dropped {
		switch h.policy.OnBackpressure(sessionID, slow) {
		case KickMember:
			log.Warn().Str("module", "app.hub").Str("conn", string(slow)).Msg("kicking slow connection")
			h.Detach(ctx, slow)
		case DropFrame, NoAction:
		}
	}
}
