package signal

import (
	"encoding/json"
	"fmt"

	"github.com/clinvia/teleconsulta/internal/core"
	"github.com/clinvia/teleconsulta/internal/domain"
)

// handleRelay forwards an offer, answer or ICE candidate to one named
// peer connection. The payload is opaque to the server; only signaling
// metadata is relayed, never media. A vanished target is dropped
// silently, the peers recover by their own timeouts.
func (ctl *WSController) handleRelay(cid core.ConnID, c *WsSignalConn, kind string, data []byte) {
	var p struct {
		Type    string          `json:"type"`
		To      string          `json:"to"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.reportErr(c, fmt.Errorf("%w: malformed signaling payload", domain.ErrBadRequest))
		return
	}
	if p.To == "" || len(p.Payload) == 0 {
		ctl.reportErr(c, fmt.Errorf("%w: signaling needs a target and a payload", domain.ErrBadRequest))
		return
	}
	if err := ctl.Hub.RelaySignal(cid, core.ConnID(p.To), kind, p.Payload); err != nil {
		ctl.reportErr(c, err)
	}
}
