package domain

import "errors"

// Error taxonomy shared by services, repositories and transport adapters.
// Adapters map these onto HTTP statuses or channel error events.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrNotAttached  = errors.New("not attached")
	ErrBadRequest   = errors.New("bad request")
)
