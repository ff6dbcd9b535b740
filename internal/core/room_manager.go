package core

import (
	"sync"

	"github.com/clinvia/teleconsulta/internal/domain"
)

// RoomManagerImpl keeps one RoomService per active session. The map
// lock guards only lookup and insertion; every room serializes its own
// operations independently.
type RoomManagerImpl struct {
	mu    sync.RWMutex
	rooms map[domain.AppointmentID]RoomService
}

func NewRoomManager() RoomFactory {
	return &RoomManagerImpl{rooms: make(map[domain.AppointmentID]RoomService)}
}

func (f *RoomManagerImpl) GetOrCreate(id domain.AppointmentID) RoomService {
	f.mu.RLock()
	room, ok := f.rooms[id]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[id]; ok {
		return room
	}
	room = NewRoomService(id)
	f.rooms[id] = room
	return room
}

func (f *RoomManagerImpl) Get(id domain.AppointmentID) (RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	return room, ok
}

func (f *RoomManagerImpl) List() []RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]RoomInfo, 0, len(f.rooms))
	for id, r := range f.rooms {
		out = append(out, RoomInfo{SessionID: id, MemberCount: r.MemberCount()})
	}
	return out
}

func (f *RoomManagerImpl) StopRoom(id domain.AppointmentID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, id)
}
