package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clinvia/teleconsulta/internal/domain"
)

type ParticipantRepo struct {
	db *sql.DB
}

func NewParticipantRepo(db *sql.DB) *ParticipantRepo {
	return &ParticipantRepo{db: db}
}

const participantColumns = `
	id, appointment_id, account_id, display_name, role,
	conn_token, joined_at, left_at, mic_on, camera_on, screen_sharing`

func (r *ParticipantRepo) Create(ctx context.Context, p domain.Participant) error {
	var account sql.NullString
	if p.AccountID != nil {
		account = sql.NullString{String: string(*p.AccountID), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session_participants (`+participantColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		string(p.ID),
		int64(p.SessionID),
		account,
		p.DisplayName,
		string(p.Role),
		p.ConnToken,
		p.JoinedAt,
		toNullTime(p.LeftAt),
		p.MicOn,
		p.CameraOn,
		p.ScreenSharing,
	)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: participant %s", domain.ErrConflict, p.ID)
	}
	return err
}

func (r *ParticipantRepo) GetByToken(ctx context.Context, token string) (domain.Participant, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+participantColumns+`
		FROM session_participants
		WHERE conn_token = $1
	`, token)
	return scanParticipant(row)
}

func (r *ParticipantRepo) GetBySessionAccount(ctx context.Context, sid domain.AppointmentID, account domain.AccountID) (domain.Participant, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+participantColumns+`
		FROM session_participants
		WHERE appointment_id = $1 AND account_id = $2
		ORDER BY joined_at DESC
		LIMIT 1
	`, int64(sid), string(account))
	return scanParticipant(row)
}

// StampDeparture writes the leave timestamp only once; a second call
// matches no row and is a no-op.
func (r *ParticipantRepo) StampDeparture(ctx context.Context, id domain.ParticipantID, t time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE session_participants
		SET left_at = $2
		WHERE id = $1 AND left_at IS NULL
	`, string(id), t)
	return err
}

func (r *ParticipantRepo) SetMediaFlags(ctx context.Context, id domain.ParticipantID, mic, camera, screen bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE session_participants
		SET mic_on = $2, camera_on = $3, screen_sharing = $4
		WHERE id = $1
	`, string(id), mic, camera, screen)
	return err
}

func (r *ParticipantRepo) ListBySession(ctx context.Context, sid domain.AppointmentID) ([]domain.Participant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+participantColumns+`
		FROM session_participants
		WHERE appointment_id = $1
		ORDER BY joined_at ASC
	`, int64(sid))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Participant, 0)
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanParticipant(row rowScanner) (domain.Participant, error) {
	var (
		p       domain.Participant
		id      string
		sid     int64
		account sql.NullString
		role    string
		leftAt  sql.NullTime
	)
	err := row.Scan(
		&id,
		&sid,
		&account,
		&p.DisplayName,
		&role,
		&p.ConnToken,
		&p.JoinedAt,
		&leftAt,
		&p.MicOn,
		&p.CameraOn,
		&p.ScreenSharing,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Participant{}, fmt.Errorf("%w: participant", domain.ErrNotFound)
		}
		return domain.Participant{}, err
	}
	p.ID = domain.ParticipantID(id)
	p.SessionID = domain.AppointmentID(sid)
	p.Role = domain.Role(role)
	if account.Valid {
		a := domain.AccountID(account.String)
		p.AccountID = &a
	}
	if leftAt.Valid {
		t := leftAt.Time
		p.LeftAt = &t
	}
	return p, nil
}
