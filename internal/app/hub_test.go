package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clinvia/teleconsulta/internal/core"
	"github.com/clinvia/teleconsulta/internal/domain"
)

func TestAttachSnapshotAndJoinBroadcast(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	docConn, docSnap := f.join(t, "conn-doc", doctorID)
	if len(docSnap.Members) != 0 {
		t.Fatalf("first joiner sees %d members, want 0", len(docSnap.Members))
	}
	if docSnap.Self.Role != domain.RoleDoctor || docSnap.Self.DisplayName != "Dra. Gomez" {
		t.Fatalf("self DTO = %+v", docSnap.Self)
	}
	if docSnap.Self.ConnectionToken == "" {
		t.Fatal("snapshot is missing the connection token")
	}
	if docSnap.Recording != core.RecordingIdle {
		t.Fatalf("recording state = %s, want idle", docSnap.Recording)
	}

	// Session moves scheduled -> active on the first attach.
	s, err := f.sessions.GetByAppointment(ctx, apptID)
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != domain.SessionActive || s.StartedAt == nil {
		t.Fatalf("session after first attach = %+v", s)
	}

	_, patSnap := f.join(t, "conn-pat", patientID)
	if len(patSnap.Members) != 1 || patSnap.Members[0].DisplayName != "Dra. Gomez" {
		t.Fatalf("second joiner members = %+v", patSnap.Members)
	}

	joins := docConn.ofType(t, EvMemberJoined)
	if len(joins) != 1 {
		t.Fatalf("doctor got %d member-joined events, want 1", len(joins))
	}
	member := joins[0]["member"].(map[string]any)
	if member["display_name"] != "Juan Perez" || member["role"] != "patient" {
		t.Fatalf("member-joined payload = %v", member)
	}
}

func TestAttachEndedSessionForbidden(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	p, err := f.broker.ResolveAccountEntry(ctx, apptID, patientID)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.lifecycle.FinalizeSession(ctx, apptID, f.currentTime()); err != nil {
		t.Fatal(err)
	}
	if _, err := f.hub.Attach(ctx, "conn-late", &fakeConn{}, p); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("attach to ended session: got %v, want ErrForbidden", err)
	}
}

func TestAttachRoomCap(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	f.join(t, "conn-doc", doctorID)
	_, patSnap := f.join(t, "conn-pat", patientID)

	invite, err := f.broker.IssueGuestGrant(ctx, apptID, doctorID, "Abuela", domain.RoleCompanion)
	if err != nil {
		t.Fatal(err)
	}
	redeemed, err := f.broker.RedeemGuestGrant(ctx, invite.Code)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.hub.Attach(ctx, "conn-guest", &fakeConn{}, redeemed.Participant); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("attach over cap: got %v, want ErrConflict", err)
	}

	// A member already in the room reconnects past the cap check.
	p, err := f.broker.ResolveToken(ctx, patSnap.Self.ConnectionToken)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.hub.Attach(ctx, "conn-pat-2", &fakeConn{}, p); err != nil {
		t.Fatalf("rejoin at cap: %v", err)
	}
	if n := f.hub.ParticipantCount(apptID); n != 2 {
		t.Fatalf("member count after rejoin = %d, want 2", n)
	}
}

// finalizingSessions wraps the session repo and marks the session
// ended right after the first status read, reproducing an expiry sweep
// landing in the middle of an attach.
type finalizingSessions struct {
	SessionRepo
	once sync.Once
	id   domain.AppointmentID
	at   time.Time
}

func (r *finalizingSessions) GetByAppointment(ctx context.Context, id domain.AppointmentID) (domain.Session, error) {
	s, err := r.SessionRepo.GetByAppointment(ctx, id)
	r.once.Do(func() { _ = r.SessionRepo.Finalize(ctx, r.id, r.at) })
	return s, err
}

func TestAttachRacingFinalizeGetsEndedNotice(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	p, err := f.broker.ResolveAccountEntry(ctx, apptID, patientID)
	if err != nil {
		t.Fatal(err)
	}

	wrapped := &finalizingSessions{SessionRepo: f.sessions, id: apptID, at: f.currentTime()}
	hub := NewHub(f.rooms, wrapped, f.participants, 10)
	hub.now = f.currentTime

	conn := &fakeConn{}
	if _, err := hub.Attach(ctx, "conn-late", conn, p); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("attach racing finalize: got %v, want ErrForbidden", err)
	}

	ends := conn.ofType(t, EvSessionEnded)
	if len(ends) != 1 {
		t.Fatalf("late attacher got %d session-ended notices, want 1", len(ends))
	}
	if _, ok := hub.reg.Lookup("conn-late"); ok {
		t.Fatal("late attacher still bound")
	}
	if _, ok := f.rooms.Get(apptID); ok {
		t.Fatal("room leaked past the eviction")
	}
}

func TestGuestJoinsAfterRedemption(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	docConn, _ := f.join(t, "conn-doc", doctorID)
	docConn.reset()

	invite, err := f.broker.IssueGuestGrant(ctx, apptID, patientID, "Abuela", domain.RoleCompanion)
	if err != nil {
		t.Fatal(err)
	}
	redeemed, err := f.broker.RedeemGuestGrant(ctx, invite.Code)
	if err != nil {
		t.Fatal(err)
	}

	guestConn := &fakeConn{}
	snap, err := f.hub.Attach(ctx, "conn-guest", guestConn, redeemed.Participant)
	if err != nil {
		t.Fatalf("guest attach: %v", err)
	}
	if snap.Self.Role != domain.RoleCompanion || snap.Self.DisplayName != "Abuela" {
		t.Fatalf("guest self = %+v", snap.Self)
	}
	if len(snap.Members) != 1 || snap.Members[0].Role != domain.RoleDoctor {
		t.Fatalf("guest member list = %+v", snap.Members)
	}

	joins := docConn.ofType(t, EvMemberJoined)
	if len(joins) != 1 {
		t.Fatalf("doctor got %d member-joined events, want 1", len(joins))
	}
	if member := joins[0]["member"].(map[string]any); member["role"] != "acompanante" {
		t.Fatalf("member-joined payload = %v", member)
	}
}

func TestDetachIsIdempotent(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	docConn, _ := f.join(t, "conn-doc", doctorID)
	_, patSnap := f.join(t, "conn-pat", patientID)
	docConn.reset()

	firstDetach := f.currentTime()
	f.hub.Detach(ctx, "conn-pat")
	f.advance(time.Minute)
	f.hub.Detach(ctx, "conn-pat")

	lefts := docConn.ofType(t, EvMemberLeft)
	if len(lefts) != 1 {
		t.Fatalf("doctor got %d member-left events, want 1", len(lefts))
	}
	if lefts[0]["display_name"] != "Juan Perez" {
		t.Fatalf("member-left payload = %v", lefts[0])
	}

	p, err := f.broker.ResolveToken(ctx, patSnap.Self.ConnectionToken)
	if err != nil {
		t.Fatal(err)
	}
	if p.LeftAt == nil || !p.LeftAt.Equal(firstDetach) {
		t.Fatalf("departure stamp = %v, want %v", p.LeftAt, firstDetach)
	}
	if n := f.hub.ParticipantCount(apptID); n != 1 {
		t.Fatalf("member count after detach = %d, want 1", n)
	}
}

func TestRelaySignal(t *testing.T) {
	f := newFixture(t, 10)

	docConn, _ := f.join(t, "conn-doc", doctorID)
	patConn, _ := f.join(t, "conn-pat", patientID)
	docConn.reset()
	patConn.reset()

	payload := json.RawMessage(`{"sdp":"v=0 fake offer"}`)
	if err := f.hub.RelaySignal("conn-doc", "conn-pat", EvSignalingOffer, payload); err != nil {
		t.Fatalf("relay: %v", err)
	}

	offers := patConn.ofType(t, EvSignalingOffer)
	if len(offers) != 1 {
		t.Fatalf("patient got %d offers, want 1", len(offers))
	}
	if offers[0]["from"] != "conn-doc" {
		t.Fatalf("offer attributed to %v, want conn-doc", offers[0]["from"])
	}
	if inner := offers[0]["payload"].(map[string]any); inner["sdp"] != "v=0 fake offer" {
		t.Fatalf("payload altered in transit: %v", inner)
	}
	if got := docConn.ofType(t, EvSignalingOffer); len(got) != 0 {
		t.Fatal("offer echoed back to sender")
	}

	// A vanished target is dropped without error.
	if err := f.hub.RelaySignal("conn-doc", "conn-ghost", EvSignalingICE, payload); err != nil {
		t.Fatalf("relay to gone target: %v", err)
	}

	if err := f.hub.RelaySignal("conn-stranger", "conn-pat", EvSignalingAnswer, payload); !errors.Is(err, domain.ErrNotAttached) {
		t.Fatalf("relay from unbound connection: got %v, want ErrNotAttached", err)
	}
}

func TestToggleMediaBroadcastsAndPersists(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	docConn, docSnap := f.join(t, "conn-doc", doctorID)
	patConn, _ := f.join(t, "conn-pat", patientID)
	docConn.reset()
	patConn.reset()

	if err := f.hub.ToggleMedia(ctx, "conn-doc", core.MediaMic, false); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	for name, conn := range map[string]*fakeConn{"doctor": docConn, "patient": patConn} {
		evs := conn.ofType(t, EvMediaState)
		if len(evs) != 1 {
			t.Fatalf("%s got %d media events, want 1", name, len(evs))
		}
		member := evs[0]["member"].(map[string]any)
		if member["mic_on"] != false || member["camera_on"] != true {
			t.Fatalf("%s saw media state %v", name, member)
		}
	}

	p, err := f.broker.ResolveToken(ctx, docSnap.Self.ConnectionToken)
	if err != nil {
		t.Fatal(err)
	}
	if p.MicOn || !p.CameraOn {
		t.Fatalf("persisted flags = mic:%v camera:%v", p.MicOn, p.CameraOn)
	}

	if err := f.hub.ToggleMedia(ctx, "conn-ghost", core.MediaCamera, false); !errors.Is(err, domain.ErrNotAttached) {
		t.Fatalf("toggle from unbound connection: got %v, want ErrNotAttached", err)
	}
}

func TestControlRecording(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	docConn, docSnap := f.join(t, "conn-doc", doctorID)
	patConn, _ := f.join(t, "conn-pat", patientID)
	docConn.reset()
	patConn.reset()

	state, err := f.hub.ControlRecording(ctx, "conn-doc", core.RecordStart)
	if err != nil || state != core.RecordingActive {
		t.Fatalf("start = (%s, %v)", state, err)
	}
	for name, conn := range map[string]*fakeConn{"doctor": docConn, "patient": patConn} {
		evs := conn.ofType(t, EvRecordingState)
		if len(evs) != 1 || evs[0]["state"] != "recording" {
			t.Fatalf("%s recording events = %v", name, evs)
		}
		if evs[0]["by"] != string(docSnap.Self.ParticipantID) {
			t.Fatalf("%s saw initiator %v", name, evs[0]["by"])
		}
	}
	docConn.reset()
	patConn.reset()

	// A rejected transition reaches nobody; the caller reports it back
	// to the initiator itself.
	if _, err := f.hub.ControlRecording(ctx, "conn-doc", core.RecordResume); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("resume while recording: got %v, want ErrInvalidState", err)
	}
	if evs := patConn.ofType(t, EvRecordingState); len(evs) != 0 {
		t.Fatalf("rejected transition still broadcast: %v", evs)
	}
}

func TestSendChat(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	docConn, _ := f.join(t, "conn-doc", doctorID)
	patConn, _ := f.join(t, "conn-pat", patientID)
	docConn.reset()
	patConn.reset()

	if err := f.hub.SendChat(ctx, "conn-pat", "", ""); !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("empty chat: got %v, want ErrBadRequest", err)
	}
	if err := f.hub.SendChat(ctx, "conn-pat", "Hola doctora", ""); err != nil {
		t.Fatalf("chat: %v", err)
	}

	msgs := docConn.ofType(t, EvChatMessage)
	if len(msgs) != 1 {
		t.Fatalf("doctor got %d chat messages, want 1", len(msgs))
	}
	if msgs[0]["display_name"] != "Juan Perez" || msgs[0]["text"] != "Hola doctora" {
		t.Fatalf("chat payload = %v", msgs[0])
	}
	if got := patConn.ofType(t, EvChatMessage); len(got) != 0 {
		t.Fatal("chat echoed back to sender")
	}
}

func TestForceEndDrainsRoom(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	docConn, _ := f.join(t, "conn-doc", doctorID)
	patConn, _ := f.join(t, "conn-pat", patientID)

	f.hub.ForceEnd(ctx, apptID, "time_expired")

	for name, conn := range map[string]*fakeConn{"doctor": docConn, "patient": patConn} {
		evs := conn.ofType(t, EvSessionEnded)
		if len(evs) != 1 || evs[0]["reason"] != "time_expired" {
			t.Fatalf("%s session-ended events = %v", name, evs)
		}
	}
	if n := f.hub.ParticipantCount(apptID); n != 0 {
		t.Fatalf("member count after force end = %d, want 0", n)
	}
	if _, ok := f.rooms.Get(apptID); ok {
		t.Fatal("room survived force end")
	}

	// Late detaches from connections the end already drained are no-ops.
	f.hub.Detach(ctx, "conn-doc")

	// Ending a room twice is harmless.
	f.hub.ForceEnd(ctx, apptID, "time_expired")
}

func TestBackpressureKicksSlowConnection(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	f.join(t, "conn-doc", doctorID)
	patConn, _ := f.join(t, "conn-pat", patientID)

	patConn.mu.Lock()
	patConn.full = true
	patConn.mu.Unlock()

	// The broadcast fanning out this chat finds the patient's buffer
	// full and the policy detaches the connection.
	if err := f.hub.SendChat(ctx, "conn-doc", "sigue ahi?", ""); err != nil {
		t.Fatalf("chat: %v", err)
	}

	if n := f.hub.ParticipantCount(apptID); n != 1 {
		t.Fatalf("member count after kick = %d, want 1", n)
	}
	if _, ok := f.hub.reg.Lookup("conn-pat"); ok {
		t.Fatal("kicked connection still bound")
	}
}
