package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clinvia/teleconsulta/internal/domain"
)

type GrantRepo struct {
	mu     sync.Mutex
	byCode map[string]domain.AdmissionGrant
}

func NewGrantRepo() *GrantRepo {
	return &GrantRepo{byCode: make(map[string]domain.AdmissionGrant)}
}

func (r *GrantRepo) Create(ctx context.Context, g domain.AdmissionGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byCode[g.Code]; exists {
		return fmt.Errorf("%w: grant code collision", domain.ErrConflict)
	}
	r.byCode[g.Code] = g
	return nil
}

func (r *GrantRepo) GetByCode(ctx context.Context, code string) (domain.AdmissionGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.byCode[code]
	if !ok {
		return domain.AdmissionGrant{}, fmt.Errorf("%w: admission code invalid, expired or used", domain.ErrUnauthorized)
	}
	return g, nil
}

// Consume is the whole check-and-mark under one lock, matching the
// single conditional UPDATE of the SQL adapter: exactly one concurrent
// redeemer wins.
func (r *GrantRepo) Consume(ctx context.Context, code string, now time.Time) (domain.AdmissionGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.byCode[code]
	if !ok || !g.Redeemable(now) {
		return domain.AdmissionGrant{}, fmt.Errorf("%w: admission code invalid, expired or used", domain.ErrUnauthorized)
	}
	g.ConsumedAt = &now
	r.byCode[code] = g
	return g, nil
}
