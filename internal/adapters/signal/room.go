package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/clinvia/teleconsulta/internal/app"
	"github.com/clinvia/teleconsulta/internal/core"
	"github.com/clinvia/teleconsulta/internal/domain"
)

// handleJoin admits the connection into a room through one of the
// three entry paths: account holder, reconnection token, or guest
// code. The resolved participant is bound to this connection; nothing
// in later payloads can change it.
func (ctl *WSController) handleJoin(ctx context.Context, cid core.ConnID, c *WsSignalConn, data []byte) {
	var p struct {
		Type        string `json:"type"`
		Room        int64  `json:"room"`
		AccountID   string `json:"account_id,omitempty"`
		Token       string `json:"token,omitempty"`
		GuestCode   string `json:"guest_code,omitempty"`
		DisplayName string `json:"display_name,omitempty"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.reportErr(c, fmt.Errorf("%w: malformed join payload", domain.ErrBadRequest))
		return
	}

	participant, err := ctl.resolveEntry(ctx, p.Room, p.AccountID, p.Token, p.GuestCode, p.DisplayName)
	if err != nil {
		ctl.reportErr(c, err)
		return
	}

	snap, err := ctl.Hub.Attach(ctx, cid, c, participant)
	if err != nil {
		ctl.reportErr(c, err)
		return
	}

	log.Info().Str("module", "signal").Str("conn", string(cid)).
		Int64("room", int64(snap.Room)).Str("participant", string(participant.ID)).Msg("joined room")

	ctl.sendJSON(c, app.JoinConfirmedEvent{
		Type:      app.EvJoinConfirmed,
		Room:      snap.Room,
		Self:      snap.Self,
		Members:   snap.Members,
		Recording: snap.Recording,
	})
}

func (ctl *WSController) resolveEntry(ctx context.Context, room int64, account, token, guestCode, displayName string) (domain.Participant, error) {
	switch {
	case token != "":
		p, err := ctl.Broker.ResolveToken(ctx, token)
		if err != nil {
			return domain.Participant{}, err
		}
		if room != 0 && p.SessionID != domain.AppointmentID(room) {
			return domain.Participant{}, fmt.Errorf("%w: token does not belong to this room", domain.ErrBadRequest)
		}
		return p, nil
	case guestCode != "":
		redeemed, err := ctl.Broker.RedeemGuestGrant(ctx, guestCode)
		if err != nil {
			return domain.Participant{}, err
		}
		p := redeemed.Participant
		if displayName != "" {
			p.DisplayName = displayName
		}
		return p, nil
	case account != "":
		if room == 0 {
			return domain.Participant{}, fmt.Errorf("%w: room required", domain.ErrBadRequest)
		}
		return ctl.Broker.ResolveAccountEntry(ctx, domain.AppointmentID(room), domain.AccountID(account))
	}
	return domain.Participant{}, fmt.Errorf("%w: join needs an account, token or guest code", domain.ErrBadRequest)
}

// handleLeave detaches from the room; the connection itself stays
// open so the client can join again.
func (ctl *WSController) handleLeave(ctx context.Context, cid core.ConnID) {
	log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("leave")
	ctl.Hub.Detach(ctx, cid)
}
