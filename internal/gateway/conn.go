package gateway

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quizengine/session-engine/internal/registry"
	"github.com/rs/zerolog/log"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxFrameSize is the hard cap enforced by the socket library itself,
	// set comfortably above the protocol-level 10 KB limit so an oversized
	// frame can be read, measured, and answered with an inline error
	// instead of the connection being torn down mid-read.
	maxFrameSize = 64 * 1024
	// maxMessageSize is the protocol-level limit from the external
	// interface contract.
	maxMessageSize = 10 * 1024
)

var newline = []byte{'\n'}

// wsConn bridges a gorilla websocket connection to the Connection
// Registry and the Gateway's dispatch loop.
type wsConn struct {
	conn   *websocket.Conn
	reg    *registry.Connection
	gw     *Gateway
	code   string
	userID string
	isHost bool
}

// readPump reads frames until the connection closes or errors,
// dispatching each to the Gateway's handler switch. It owns detaching the
// connection from the registry on exit.
func (c *wsConn) readPump() {
	defer func() {
		c.gw.handleDisconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("code", c.code).Str("user_id", c.userID).Msg("websocket read error")
			}
			return
		}

		if len(message) > maxMessageSize {
			c.writeOutbound(newFrame(OutError, ErrorPayload{Message: "Message too large"}))
			continue
		}

		message = bytes.TrimSpace(message)
		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.writeOutbound(newFrame(OutError, ErrorPayload{Message: "malformed frame"}))
			continue
		}

		c.gw.dispatch(c, frame)
	}
}

// writePump drains the registry send channel to the socket and emits
// periodic pings, matching the keepalive discipline used throughout this
// codebase's other long-lived-connection handling.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.reg.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.reg.Send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-c.reg.Send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeOutbound marshals and enqueues an outbound frame directly onto
// this connection's send channel, bypassing the registry (used for
// immediate inline replies, e.g. a malformed-frame error, that don't need
// registry fan-out semantics).
func (c *wsConn) writeOutbound(frame OutFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal outbound frame")
		return
	}
	select {
	case c.reg.Send <- data:
	default:
		log.Warn().Str("code", c.code).Str("user_id", c.userID).Msg("outbound channel full, dropping frame")
	}
}
