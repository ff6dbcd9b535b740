package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clinvia/teleconsulta/internal/domain"
)

type SessionRepo struct {
	mu   sync.RWMutex
	byID map[domain.AppointmentID]domain.Session
}

func NewSessionRepo() *SessionRepo {
	return &SessionRepo{byID: make(map[domain.AppointmentID]domain.Session)}
}

// Create enforces the one-session-per-appointment invariant under the
// repo lock, mirroring the unique constraint of the SQL adapter.
func (r *SessionRepo) Create(ctx context.Context, s domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[s.AppointmentID]; exists {
		return fmt.Errorf("%w: session exists for appointment %d", domain.ErrConflict, s.AppointmentID)
	}
	r.byID[s.AppointmentID] = s
	return nil
}

func (r *SessionRepo) GetByAppointment(ctx context.Context, id domain.AppointmentID) (domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return domain.Session{}, fmt.Errorf("%w: session %d", domain.ErrNotFound, id)
	}
	return s, nil
}

func (r *SessionRepo) MarkActive(ctx context.Context, id domain.AppointmentID, startedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: session %d", domain.ErrNotFound, id)
	}
	if s.Status != domain.SessionScheduled {
		return nil
	}
	s.Status = domain.SessionActive
	s.StartedAt = &startedAt
	r.byID[id] = s
	return nil
}

func (r *SessionRepo) Finalize(ctx context.Context, id domain.AppointmentID, endedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: session %d", domain.ErrNotFound, id)
	}
	if s.EndedAt == nil {
		s.EndedAt = &endedAt
	}
	s.Status = domain.SessionEnded
	r.byID[id] = s
	return nil
}

func (r *SessionRepo) SetRecordingURL(ctx context.Context, id domain.AppointmentID, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: session %d", domain.ErrNotFound, id)
	}
	s.RecordingURL = &url
	r.byID[id] = s
	return nil
}

func (r *SessionRepo) ListActiveEndingBefore(ctx context.Context, cutoff time.Time) ([]domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Session, 0)
	for _, s := range r.byID {
		if s.Status == domain.SessionActive && s.ScheduledEnd.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}
