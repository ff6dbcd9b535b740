package domain

import "time"

// AdmissionGrant is a single-use, time-boxed credential letting a
// named guest enter one session without an account. Consumption and
// expiry are both terminal.
type AdmissionGrant struct {
	Code        string
	SessionID   AppointmentID
	GrantorID   AccountID
	InviteeName string
	InviteeRole Role
	CreatedAt   time.Time
	ExpiresAt   time.Time
	ConsumedAt  *time.Time
}

// Redeemable reports whether the grant is still valid at the given
// instant. Validity is checked by timestamp comparison only, there is
// no active timer per grant.
func (g *AdmissionGrant) Redeemable(now time.Time) bool {
	return g.ConsumedAt == nil && now.Before(g.ExpiresAt)
}
