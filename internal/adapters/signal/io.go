package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/domain"
	"github.com/neutron420/bloom/internal/protocol"
)

const cleanupTimeout = 10 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		}
	}
}

// readPump handles frames one at a time in receipt order. The disconnect
// cleanup runs here, after the last handler has returned.
func (ctl *SignalWSController) readPump(ctx context.Context, id core.ConnID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(id)).Msg("readPump closing")
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		ctl.Orch.OnDisconnect(cctx, id)
		cancel()
		c.Close()
	}()

	pongWait := ctl.opts.PingPeriod * 2
	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		ctl.handleFrame(ctx, id, data)
	}
}

func (ctl *SignalWSController) handleFrame(ctx context.Context, id core.ConnID, data []byte) {
	reqID, msg, err := protocol.Decode(data)
	if !ctl.Orch.Allow(id) {
		ctl.replyError(id, reqID, domain.ErrRateLimited)
		return
	}
	if err != nil {
		ctl.replyError(id, reqID, err)
		return
	}

	result, err := msg.Dispatch(ctx, ctl.Orch, id)
	if err != nil {
		ctl.replyError(id, reqID, err)
		return
	}
	if ev, ok := result.(protocol.Event); ok {
		ev.ReqID = reqID
		ctl.Orch.Notify.ConnID(id, ev)
		return
	}
	ctl.Orch.Notify.ConnID(id, protocol.Response(reqID, result))
}
