// Package memory provides in-process repository implementations used
// by tests and by dev mode when no database is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/clinvia/teleconsulta/internal/domain"
)

type AppointmentRepo struct {
	mu   sync.RWMutex
	byID map[domain.AppointmentID]domain.Appointment
}

func NewAppointmentRepo() *AppointmentRepo {
	return &AppointmentRepo{byID: make(map[domain.AppointmentID]domain.Appointment)}
}

// Put seeds an appointment. The clinical schema is owned elsewhere, so
// the memory adapter only ever reads what was seeded.
func (r *AppointmentRepo) Put(a domain.Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[a.ID] = a
}

func (r *AppointmentRepo) GetByID(ctx context.Context, id domain.AppointmentID) (domain.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return domain.Appointment{}, fmt.Errorf("%w: appointment %d", domain.ErrNotFound, id)
	}
	return a, nil
}
