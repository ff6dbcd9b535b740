package app

import (
	"github.com/clinvia/teleconsulta/internal/core"
	"github.com/clinvia/teleconsulta/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a connection whose send buffer is
// full during a room broadcast.
type Policy interface {
	OnBackpressure(sessionID domain.AppointmentID, cid core.ConnID) BackpressureAction
}

// SimplePolicy detaches slow consumers; the client reconnects with its
// connection token.
type SimplePolicy struct{}

func (SimplePolicy) OnBackpressure(domain.AppointmentID, core.ConnID) BackpressureAction {
	return KickMember
}
