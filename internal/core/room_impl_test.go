package core

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/clinvia/teleconsulta/internal/domain"
)

// stubConn records delivered frames and can be switched to refuse them.
type stubConn struct {
	frames []Frame
	full   bool
	closed bool
}

func (c *stubConn) TrySend(f Frame) error {
	if c.full {
		return errors.New("send buffer full")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *stubConn) Close() { c.closed = true }

func newMember(name string) (*Member, *stubConn) {
	conn := &stubConn{}
	p := domain.NewParticipant(42, nil, name, domain.RoleGuest, time.Now())
	return &Member{Participant: p, Conn: conn}, conn
}

func TestRoomMembership(t *testing.T) {
	room := NewRoomService(42)
	ana, _ := newMember("Ana")
	bruno, _ := newMember("Bruno")

	room.AddMember("c1", ana, 0)
	room.AddMember("c2", bruno, 0)
	if n := room.MemberCount(); n != 2 {
		t.Fatalf("member count = %d, want 2", n)
	}

	if cid, ok := room.ConnOf(ana.Participant.ID); !ok || cid != "c1" {
		t.Fatalf("ConnOf(ana) = (%s, %v)", cid, ok)
	}

	m, ok := room.RemoveMember("c1")
	if !ok || m.Participant.DisplayName != "Ana" {
		t.Fatalf("RemoveMember(c1) = (%v, %v)", m, ok)
	}
	if _, ok := room.RemoveMember("c1"); ok {
		t.Fatal("second RemoveMember(c1) should report false")
	}
	if _, ok := room.ConnOf(ana.Participant.ID); ok {
		t.Fatal("removed participant still resolvable")
	}
	if n := room.MemberCount(); n != 1 {
		t.Fatalf("member count after removal = %d, want 1", n)
	}
}

func TestAddMemberCap(t *testing.T) {
	room := NewRoomService(42)
	ana, _ := newMember("Ana")
	bruno, _ := newMember("Bruno")
	carla, _ := newMember("Carla")

	if !room.AddMember("a", ana, 2) || !room.AddMember("b", bruno, 2) {
		t.Fatal("attach below cap refused")
	}
	if room.AddMember("c", carla, 2) {
		t.Fatal("attach over cap admitted")
	}
	// Re-attach of a present member is exempt from the cap.
	if !room.AddMember("a2", ana, 2) {
		t.Fatal("re-attach at cap refused")
	}
	if n := room.MemberCount(); n != 2 {
		t.Fatalf("member count = %d, want 2", n)
	}
}

func TestAddMemberCapUnderContention(t *testing.T) {
	room := NewRoomService(42)
	const roomCap = 3
	const attempts = 16

	var wg sync.WaitGroup
	admitted := make([]bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, _ := newMember(fmt.Sprintf("member-%d", i))
			admitted[i] = room.AddMember(ConnID(fmt.Sprintf("conn-%d", i)), m, roomCap)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, ok := range admitted {
		if ok {
			wins++
		}
	}
	if wins != roomCap {
		t.Fatalf("%d concurrent attaches admitted, want %d", wins, roomCap)
	}
	if n := room.MemberCount(); n != roomCap {
		t.Fatalf("member count = %d, want %d", n, roomCap)
	}
}

func TestRoomReattachReplacesMapping(t *testing.T) {
	room := NewRoomService(42)
	ana, _ := newMember("Ana")

	room.AddMember("old", ana, 0)
	room.AddMember("new", ana, 0)

	if n := room.MemberCount(); n != 1 {
		t.Fatalf("member count after reattach = %d, want 1", n)
	}
	if cid, ok := room.ConnOf(ana.Participant.ID); !ok || cid != "new" {
		t.Fatalf("ConnOf after reattach = (%s, %v), want new", cid, ok)
	}
	if _, ok := room.MemberOf("old"); ok {
		t.Fatal("stale connection still mapped")
	}
}

func TestBroadcastExcludesSenderAndReportsSlow(t *testing.T) {
	room := NewRoomService(42)
	ana, anaConn := newMember("Ana")
	bruno, brunoConn := newMember("Bruno")
	carla, carlaConn := newMember("Carla")
	room.AddMember("a", ana, 0)
	room.AddMember("b", bruno, 0)
	room.AddMember("c", carla, 0)

	brunoConn.full = true
	res := room.Broadcast("a", Frame(`{"type":"x"}`))

	if res.SentTo != 1 {
		t.Fatalf("sent_to = %d, want 1", res.SentTo)
	}
	if len(res.Dropped) != 1 || res.Dropped[0] != "b" {
		t.Fatalf("dropped = %v, want [b]", res.Dropped)
	}
	if len(anaConn.frames) != 0 {
		t.Fatal("sender received its own broadcast")
	}
	if len(carlaConn.frames) != 1 {
		t.Fatalf("carla got %d frames, want 1", len(carlaConn.frames))
	}
}

func TestSendToUnknownTarget(t *testing.T) {
	room := NewRoomService(42)
	ana, anaConn := newMember("Ana")
	room.AddMember("a", ana, 0)

	if room.SendTo("ghost", Frame("x")) {
		t.Fatal("SendTo to unknown connection reported ok")
	}
	if !room.SendTo("a", Frame("x")) {
		t.Fatal("SendTo to live connection failed")
	}
	if len(anaConn.frames) != 1 {
		t.Fatalf("ana got %d frames, want 1", len(anaConn.frames))
	}
}

func TestSetMedia(t *testing.T) {
	room := NewRoomService(42)
	ana, _ := newMember("Ana")
	room.AddMember("a", ana, 0)

	dto, ok := room.SetMedia("a", MediaMic, false)
	if !ok || dto.MicOn {
		t.Fatalf("SetMedia mic off = (%+v, %v)", dto, ok)
	}
	dto, ok = room.SetMedia("a", MediaScreen, true)
	if !ok || !dto.ScreenSharing || dto.MicOn {
		t.Fatalf("SetMedia screen on = (%+v, %v)", dto, ok)
	}
	if _, ok := room.SetMedia("ghost", MediaCamera, false); ok {
		t.Fatal("SetMedia on unknown connection reported ok")
	}
}

func TestRoomManagerSingleInstancePerSession(t *testing.T) {
	mgr := NewRoomManager()
	r1 := mgr.GetOrCreate(1)
	r2 := mgr.GetOrCreate(1)
	if r1 != r2 {
		t.Fatal("GetOrCreate returned two rooms for one session")
	}
	if _, ok := mgr.Get(2); ok {
		t.Fatal("Get reported a room that was never created")
	}
	mgr.StopRoom(1)
	if _, ok := mgr.Get(1); ok {
		t.Fatal("room survived StopRoom")
	}
}
