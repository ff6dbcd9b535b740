package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/clinvia/teleconsulta/internal/core"
	"github.com/clinvia/teleconsulta/internal/domain"
)

type regEntry struct {
	SessionID     domain.AppointmentID
	ParticipantID domain.ParticipantID
}

// Registry holds the live connection-to-room binding for the whole
// process. Every inbound channel message resolves its sender here;
// nothing in a payload can claim another identity.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.ConnID]regEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[core.ConnID]regEntry)}
}

func (r *Registry) Bind(cid core.ConnID, sessionID domain.AppointmentID, pid domain.ParticipantID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[cid] = regEntry{SessionID: sessionID, ParticipantID: pid}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).
		Int64("session", int64(sessionID)).Str("participant", string(pid)).Msg("bound connection")
}

func (r *Registry) Lookup(cid core.ConnID) (regEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[cid]
	return e, ok
}

// Unbind clears the mapping and reports whether it existed. The bool
// is what makes detach idempotent.
func (r *Registry) Unbind(cid core.ConnID) (regEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[cid]
	if ok {
		delete(r.conns, cid)
		log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("unbound connection")
	}
	return e, ok
}

func (r *Registry) ConnsOfSession(id domain.AppointmentID) []core.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.ConnID, 0)
	for cid, e := range r.conns {
		if e.SessionID == id {
			out = append(out, cid)
		}
	}
	return out
}
