package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/clinvia/teleconsulta/internal/core"
	"github.com/clinvia/teleconsulta/internal/domain"
)

func (ctl *WSController) handleToggle(ctx context.Context, cid core.ConnID, c *WsSignalConn, kind core.MediaKind, data []byte) {
	var p struct {
		Type    string `json:"type"`
		Enabled bool   `json:"enabled"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.reportErr(c, fmt.Errorf("%w: malformed toggle payload", domain.ErrBadRequest))
		return
	}
	if err := ctl.Hub.ToggleMedia(ctx, cid, kind, p.Enabled); err != nil {
		ctl.reportErr(c, err)
	}
}
