package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/clinvia/teleconsulta/internal/app"
	"github.com/clinvia/teleconsulta/internal/core"
	"github.com/clinvia/teleconsulta/internal/domain"
)

func (ctl *WSController) writePump(ctx context.Context, cancel context.CancelFunc, c *WsSignalConn) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump drains inbound messages until the transport drops. An
// abrupt disconnect runs the same detach path as an explicit leave.
func (ctl *WSController) readPump(ctx context.Context, cancel context.CancelFunc, cid core.ConnID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("readPump closing")
		ctl.Hub.Detach(context.WithoutCancel(ctx), cid)
		ctl.limiter.Forget(cid)
		cancel()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("readPump read error")
				return
			}
			ctl.handleMessage(ctx, cid, c, data)
		}
	}
}

// handleMessage dispatches one inbound frame. Validation and state
// errors go back to this connection only; the connection stays open.
func (ctl *WSController) handleMessage(ctx context.Context, cid core.ConnID, c *WsSignalConn, data []byte) {
	if !ctl.limiter.Allow(cid) {
		log.Warn().Str("module", "signal").Str("conn", string(cid)).Msg("rate limited, frame dropped")
		return
	}

	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		ctl.reportErr(c, fmt.Errorf("%w: malformed message", domain.ErrBadRequest))
		return
	}

	switch env.Type {
	case "join-room":
		ctl.handleJoin(ctx, cid, c, data)
	case "leave-room":
		ctl.handleLeave(ctx, cid)
	case "toggle-mic":
		ctl.handleToggle(ctx, cid, c, core.MediaMic, data)
	case "toggle-camera":
		ctl.handleToggle(ctx, cid, c, core.MediaCamera, data)
	case "toggle-screen":
		ctl.handleToggle(ctx, cid, c, core.MediaScreen, data)
	case "recording-control":
		ctl.handleRecording(ctx, cid, c, data)
	case app.EvSignalingOffer, app.EvSignalingAnswer, app.EvSignalingICE:
		ctl.handleRelay(cid, c, env.Type, data)
	case "chat-message":
		ctl.handleChat(ctx, cid, c, data)
	case "ping":
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown message type")
		ctl.reportErr(c, fmt.Errorf("%w: unknown message type %q", domain.ErrBadRequest, env.Type))
	}
}

func (ctl *WSController) sendJSON(c *WsSignalConn, v any) {
	_ = c.TrySend(app.Encode(v))
}

func (ctl *WSController) reportErr(c *WsSignalConn, err error) {
	_ = c.TrySend(app.ErrorFrame(err))
}
