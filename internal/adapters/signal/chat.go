package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/clinvia/teleconsulta/internal/core"
	"github.com/clinvia/teleconsulta/internal/domain"
)

func (ctl *WSController) handleChat(ctx context.Context, cid core.ConnID, c *WsSignalConn, data []byte) {
	var p struct {
		Type          string `json:"type"`
		Text          string `json:"text,omitempty"`
		AttachmentURL string `json:"attachment_url,omitempty"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.reportErr(c, fmt.Errorf("%w: malformed chat payload", domain.ErrBadRequest))
		return
	}
	if err := ctl.Hub.SendChat(ctx, cid, p.Text, p.AttachmentURL); err != nil {
		ctl.reportErr(c, err)
	}
}
