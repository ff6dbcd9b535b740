package signal

import "github.com/clinvia/teleconsulta/internal/app"

func (ctl *WSController) handlePing(c *WsSignalConn) {
	ctl.sendJSON(c, struct {
		Type string `json:"type"`
	}{Type: app.EvPong})
}
