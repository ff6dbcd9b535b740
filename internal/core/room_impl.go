package core

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/clinvia/teleconsulta/internal/domain"
)

// roomImpl is a threadsafe in-memory room. Its state is intentionally
// ephemeral: it can be rebuilt from participant rows without a leave
// timestamp. It never closes adapter-owned resources.
type roomImpl struct {
	sessionID domain.AppointmentID

	mu        sync.RWMutex
	byConn    map[ConnID]*Member
	byPart    map[domain.ParticipantID]ConnID
	recording RecordingState
}

func NewRoomService(sessionID domain.AppointmentID) RoomService {
	return &roomImpl{
		sessionID: sessionID,
		byConn:    make(map[ConnID]*Member),
		byPart:    make(map[domain.ParticipantID]ConnID),
		recording: RecordingIdle,
	}
}

func (r *roomImpl) SessionID() domain.AppointmentID { return r.sessionID }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// AddMember registers the bidirectional binding. Re-attaching the same
// connection, or the same participant on a fresh connection, replaces
// the prior mapping and is exempt from the cap. The cap is enforced
// under the room lock so concurrent attaches cannot both slip past it.
func (r *roomImpl) AddMember(cid ConnID, m *Member, cap int) bool {
	pid := m.Participant.ID
	r.mu.Lock()
	defer r.mu.Unlock()
	_, rejoinPart := r.byPart[pid]
	_, rejoinConn := r.byConn[cid]
	if !rejoinPart && !rejoinConn && cap > 0 && len(r.byConn) >= cap {
		return false
	}
	if prev, ok := r.byPart[pid]; ok && prev != cid {
		delete(r.byConn, prev)
	}
	if prev, ok := r.byConn[cid]; ok {
		delete(r.byPart, prev.Participant.ID)
	}
	r.byConn[cid] = m
	r.byPart[pid] = cid
	log.Info().Str("module", "core.room").Int64("session", int64(r.sessionID)).
		Str("conn", string(cid)).Str("participant", string(pid)).Msg("member added")
	return true
}

func (r *roomImpl) RemoveMember(cid ConnID) (*Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byConn[cid]
	if !ok {
		return nil, false
	}
	delete(r.byPart, m.Participant.ID)
	delete(r.byConn, cid)
	log.Info().Str("module", "core.room").Int64("session", int64(r.sessionID)).
		Str("conn", string(cid)).Msg("member removed")
	return m, true
}

func (r *roomImpl) MemberOf(cid ConnID) (*Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byConn[cid]
	return m, ok
}

func (r *roomImpl) ConnOf(pid domain.ParticipantID) (ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cid, ok := r.byPart[pid]
	return cid, ok
}

func (r *roomImpl) SetMedia(cid ConnID, kind MediaKind, enabled bool) (MemberDTO, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byConn[cid]
	if !ok {
		return MemberDTO{}, false
	}
	switch kind {
	case MediaMic:
		m.Participant.MicOn = enabled
	case MediaCamera:
		m.Participant.CameraOn = enabled
	case MediaScreen:
		m.Participant.ScreenSharing = enabled
	}
	return memberDTO(cid, m), true
}

func (r *roomImpl) Broadcast(from ConnID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for cid, m := range r.byConn {
		if cid == from {
			continue
		}
		if err := m.Conn.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, cid)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "core.room").Int64("session", int64(r.sessionID)).
		Str("from", string(from)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).
		Msg("broadcast result")
	return res
}

func (r *roomImpl) BroadcastAll(data Frame) PublishResult {
	return r.Broadcast("", data)
}

// SendTo delivers to exactly one connection. Best-effort: a missing or
// slow target reports false, nothing else.
func (r *roomImpl) SendTo(cid ConnID, data Frame) bool {
	r.mu.RLock()
	m, ok := r.byConn[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return m.Conn.TrySend(data) == nil
}

func (r *roomImpl) MembersSnapshot() []MemberDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberDTO, 0, len(r.byConn))
	for cid, m := range r.byConn {
		out = append(out, memberDTO(cid, m))
	}
	return out
}

func (r *roomImpl) RecordingState() RecordingState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recording
}

func (r *roomImpl) ApplyRecording(action RecordingAction) (RecordingState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, ok := transition(r.recording, action)
	if !ok {
		return r.recording, fmt.Errorf("%w: cannot %s from %s", domain.ErrInvalidState, action, r.recording)
	}
	r.recording = next
	log.Info().Str("module", "core.room").Int64("session", int64(r.sessionID)).
		Str("action", string(action)).Str("state", string(next)).Msg("recording transition")
	return next, nil
}

func memberDTO(cid ConnID, m *Member) MemberDTO {
	p := m.Participant
	return MemberDTO{
		PeerID:        cid,
		ParticipantID: p.ID,
		DisplayName:   p.DisplayName,
		Role:          p.Role,
		MicOn:         p.MicOn,
		CameraOn:      p.CameraOn,
		ScreenSharing: p.ScreenSharing,
	}
}
