package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clinvia/teleconsulta/internal/domain"
)

type ParticipantRepo struct {
	mu   sync.RWMutex
	byID map[domain.ParticipantID]domain.Participant
}

func NewParticipantRepo() *ParticipantRepo {
	return &ParticipantRepo{byID: make(map[domain.ParticipantID]domain.Participant)}
}

func (r *ParticipantRepo) Create(ctx context.Context, p domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		return fmt.Errorf("%w: participant id required", domain.ErrBadRequest)
	}
	if _, exists := r.byID[p.ID]; exists {
		return fmt.Errorf("%w: participant %s", domain.ErrConflict, p.ID)
	}
	r.byID[p.ID] = p
	return nil
}

func (r *ParticipantRepo) GetByToken(ctx context.Context, token string) (domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.byID {
		if p.ConnToken == token {
			return p, nil
		}
	}
	return domain.Participant{}, fmt.Errorf("%w: connection token", domain.ErrNotFound)
}

// GetBySessionAccount picks the most recent presence by join time, so
// a rejoining account holder reuses its prior row.
func (r *ParticipantRepo) GetBySessionAccount(ctx context.Context, sid domain.AppointmentID, account domain.AccountID) (domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var winner domain.Participant
	found := false
	for _, p := range r.byID {
		if p.SessionID != sid || p.AccountID == nil || *p.AccountID != account {
			continue
		}
		if !found || p.JoinedAt.After(winner.JoinedAt) {
			winner = p
			found = true
		}
	}
	if !found {
		return domain.Participant{}, fmt.Errorf("%w: participant for account %s", domain.ErrNotFound, account)
	}
	return winner, nil
}

func (r *ParticipantRepo) StampDeparture(ctx context.Context, id domain.ParticipantID, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: participant %s", domain.ErrNotFound, id)
	}
	if p.LeftAt != nil {
		return nil
	}
	p.LeftAt = &t
	r.byID[id] = p
	return nil
}

func (r *ParticipantRepo) SetMediaFlags(ctx context.Context, id domain.ParticipantID, mic, camera, screen bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: participant %s", domain.ErrNotFound, id)
	}
	p.MicOn, p.CameraOn, p.ScreenSharing = mic, camera, screen
	r.byID[id] = p
	return nil
}

func (r *ParticipantRepo) ListBySession(ctx context.Context, sid domain.AppointmentID) ([]domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Participant, 0)
	for _, p := range r.byID {
		if p.SessionID == sid {
			out = append(out, p)
		}
	}
	return out, nil
}
