package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clinvia/teleconsulta/internal/domain"
)

type GrantRepo struct {
	db *sql.DB
}

func NewGrantRepo(db *sql.DB) *GrantRepo {
	return &GrantRepo{db: db}
}

func (r *GrantRepo) Create(ctx context.Context, g domain.AdmissionGrant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO admission_grants (
			code, appointment_id, grantor_id, invitee_name,
			invitee_role, created_at, expires_at, consumed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		g.Code,
		int64(g.SessionID),
		string(g.GrantorID),
		g.InviteeName,
		string(g.InviteeRole),
		g.CreatedAt,
		g.ExpiresAt,
		toNullTime(g.ConsumedAt),
	)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: grant code collision", domain.ErrConflict)
	}
	return err
}

func (r *GrantRepo) GetByCode(ctx context.Context, code string) (domain.AdmissionGrant, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT code, appointment_id, grantor_id, invitee_name,
		       invitee_role, created_at, expires_at, consumed_at
		FROM admission_grants
		WHERE code = $1
	`, code)
	return scanGrant(row)
}

// Consume is a single conditional UPDATE, so exactly one of any number
// of concurrent redeemers sees a row. Unknown, expired and already
// consumed codes are indistinguishable to the caller.
func (r *GrantRepo) Consume(ctx context.Context, code string, now time.Time) (domain.AdmissionGrant, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE admission_grants
		SET consumed_at = $2
		WHERE code = $1 AND consumed_at IS NULL AND expires_at > $2
		RETURNING code, appointment_id, grantor_id, invitee_name,
		          invitee_role, created_at, expires_at, consumed_at
	`, code, now)
	return scanGrant(row)
}

func scanGrant(row *sql.Row) (domain.AdmissionGrant, error) {
	var (
		g        domain.AdmissionGrant
		sid      int64
		grantor  string
		role     string
		consumed sql.NullTime
	)
	err := row.Scan(&g.Code, &sid, &grantor, &g.InviteeName, &role, &g.CreatedAt, &g.ExpiresAt, &consumed)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.AdmissionGrant{}, fmt.Errorf("%w: admission code invalid, expired or used", domain.ErrUnauthorized)
		}
		return domain.AdmissionGrant{}, err
	}
	g.SessionID = domain.AppointmentID(sid)
	g.GrantorID = domain.AccountID(grantor)
	g.InviteeRole = domain.Role(role)
	if consumed.Valid {
		t := consumed.Time
		g.ConsumedAt = &t
	}
	return g, nil
}
