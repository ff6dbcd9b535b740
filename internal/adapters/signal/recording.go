package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/clinvia/teleconsulta/internal/core"
	"github.com/clinvia/teleconsulta/internal/domain"
)

func (ctl *WSController) handleRecording(ctx context.Context, cid core.ConnID, c *WsSignalConn, data []byte) {
	var p struct {
		Type   string `json:"type"`
		Action string `json:"action"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.reportErr(c, fmt.Errorf("%w: malformed recording payload", domain.ErrBadRequest))
		return
	}
	action, err := core.ParseRecordingAction(p.Action)
	if err != nil {
		ctl.reportErr(c, err)
		return
	}
	// Rejected transitions go back to the initiator only; the room
	// hears nothing.
	if _, err := ctl.Hub.ControlRecording(ctx, cid, action); err != nil {
		ctl.reportErr(c, err)
	}
}
