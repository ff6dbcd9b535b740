package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/clinvia/teleconsulta/internal/domain"
)

// AccessBroker decides whether and how a caller may join a room:
// as an account holder, as a bearer of a single-use admission code, or
// as a holder of a previously issued connection token.
type AccessBroker struct {
	appointments AppointmentRepo
	sessions     SessionRepo
	participants ParticipantRepo
	grants       GrantRepo
	baseURL      string
	grantTTL     time.Duration
	now          func() time.Time
}

func NewAccessBroker(appointments AppointmentRepo, sessions SessionRepo, participants ParticipantRepo, grants GrantRepo, baseURL string, grantTTL time.Duration) *AccessBroker {
	return &AccessBroker{
		appointments: appointments,
		sessions:     sessions,
		participants: participants,
		grants:       grants,
		baseURL:      baseURL,
		grantTTL:     grantTTL,
		now:          time.Now,
	}
}

type GuestInvite struct {
	Code      string
	Link      string
	ExpiresAt time.Time
}

// RedeemedGrant carries everything the caller needs after exchanging a
// code: the freshly created participant (with its connection token)
// and descriptive session metadata for the landing screen.
type RedeemedGrant struct {
	Participant domain.Participant
	Session     domain.Session
	DoctorName  string
	PatientName string
}

// IssueGuestGrant creates a single-use admission grant for a named
// guest. Only the doctor or the patient of the appointment may invite.
func (b *AccessBroker) IssueGuestGrant(ctx context.Context, sessionID domain.AppointmentID, grantor domain.AccountID, inviteeName string, inviteeRole domain.Role) (GuestInvite, error) {
	if inviteeName == "" {
		return GuestInvite{}, fmt.Errorf("%w: invitee name required", domain.ErrBadRequest)
	}
	if _, err := b.sessions.GetByAppointment(ctx, sessionID); err != nil {
		return GuestInvite{}, err
	}
	appt, err := b.appointments.GetByID(ctx, sessionID)
	if err != nil {
		return GuestInvite{}, err
	}
	if !appt.IsParty(grantor) {
		return GuestInvite{}, fmt.Errorf("%w: only the doctor or patient may invite", domain.ErrForbidden)
	}

	code, err := randomCode(16)
	if err != nil {
		return GuestInvite{}, err
	}
	now := b.now()
	g := domain.AdmissionGrant{
		Code:        code,
		SessionID:   sessionID,
		GrantorID:   grantor,
		InviteeName: inviteeName,
		InviteeRole: inviteeRole,
		CreatedAt:   now,
		ExpiresAt:   now.Add(b.grantTTL),
	}
	if err := b.grants.Create(ctx, g); err != nil {
		return GuestInvite{}, err
	}
	log.Info().Str("module", "app.access").Int64("session", int64(sessionID)).
		Str("invitee", inviteeName).Str("role", string(inviteeRole)).Msg("guest grant issued")
	return GuestInvite{
		Code:      code,
		Link:      fmt.Sprintf("%s/consulta/invitacion?code=%s", b.baseURL, code),
		ExpiresAt: g.ExpiresAt,
	}, nil
}

// RedeemGuestGrant atomically consumes the code and materializes the
// guest's participant row. Concurrent redemptions of one code yield
// exactly one success; the rest fail with ErrUnauthorized. The
// appointment and session are checked before consuming, so a rejected
// redemption does not burn the code.
func (b *AccessBroker) RedeemGuestGrant(ctx context.Context, code string) (RedeemedGrant, error) {
	peek, err := b.grants.GetByCode(ctx, code)
	if err != nil {
		return RedeemedGrant{}, err
	}
	appt, err := b.appointments.GetByID(ctx, peek.SessionID)
	if err != nil {
		return RedeemedGrant{}, err
	}
	if appt.Status == domain.AppointmentCancelled {
		return RedeemedGrant{}, fmt.Errorf("%w: appointment is cancelled", domain.ErrForbidden)
	}
	s, err := b.sessions.GetByAppointment(ctx, peek.SessionID)
	if err != nil {
		return RedeemedGrant{}, err
	}

	g, err := b.grants.Consume(ctx, code, b.now())
	if err != nil {
		return RedeemedGrant{}, err
	}

	p := domain.NewParticipant(g.SessionID, nil, g.InviteeName, g.InviteeRole, b.now())
	if err := b.participants.Create(ctx, p); err != nil {
		return RedeemedGrant{}, err
	}
	log.Info().Str("module", "app.access").Int64("session", int64(g.SessionID)).
		Str("participant", string(p.ID)).Msg("guest grant redeemed")
	return RedeemedGrant{
		Participant: p,
		Session:     s,
		DoctorName:  appt.DoctorName,
		PatientName: appt.PatientName,
	}, nil
}

// ResolveAccountEntry returns the participant for an authenticated
// account joining a session it is permitted to attend. An account
// rejoining the same session reuses its prior participant row.
func (b *AccessBroker) ResolveAccountEntry(ctx context.Context, sessionID domain.AppointmentID, account domain.AccountID) (domain.Participant, error) {
	s, err := b.sessions.GetByAppointment(ctx, sessionID)
	if err != nil {
		return domain.Participant{}, err
	}
	if s.Status == domain.SessionEnded {
		return domain.Participant{}, fmt.Errorf("%w: session already ended", domain.ErrForbidden)
	}
	appt, err := b.appointments.GetByID(ctx, sessionID)
	if err != nil {
		return domain.Participant{}, err
	}
	if !appt.IsParty(account) {
		return domain.Participant{}, fmt.Errorf("%w: not a party of this appointment", domain.ErrForbidden)
	}

	existing, err := b.participants.GetBySessionAccount(ctx, sessionID, account)
	switch {
	case err == nil:
		return existing, nil
	case errors.Is(err, domain.ErrNotFound):
	default:
		return domain.Participant{}, err
	}

	role := appt.RoleOf(account)
	name := appt.PatientName
	if role == domain.RoleDoctor {
		name = appt.DoctorName
	}
	p := domain.NewParticipant(sessionID, &account, name, role, b.now())
	if err := b.participants.Create(ctx, p); err != nil {
		return domain.Participant{}, err
	}
	return p, nil
}

// ResolveToken readmits a reconnecting participant by its connection
// token. Unknown tokens fail with ErrUnauthorized.
func (b *AccessBroker) ResolveToken(ctx context.Context, token string) (domain.Participant, error) {
	p, err := b.participants.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Participant{}, fmt.Errorf("%w: unknown connection token", domain.ErrUnauthorized)
		}
		return domain.Participant{}, err
	}
	return p, nil
}

func randomCode(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
