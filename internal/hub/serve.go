// This file is the only place outside registry.go/connection.go that
// touches a raw *websocket.Conn on behalf of a caller outside the actor
// loop: it owns the read/write pumps for both connection kinds so that,
// per §5's shared-resource policy, no code outside the hub package ever
// writes to a socket directly. The Acceptor calls these two methods and
// blocks on them for the lifetime of the connection.
package hub

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relaybridge/hub/internal/models"
)

const (
	pongWait       = 60 * time.Second
	maxMessageSize = 512 * 1024
)

// HandshakeTimeout exposes the configured registration window so the
// Acceptor can report consistent timeouts in its own logging.
func (h *Hub) HandshakeTimeout() time.Duration {
	return h.config.HandshakeTimeout
}

// ServeClientSocket runs the full lifecycle of one client connection: the
// registration handshake (§4.1), the read pump dispatching frames through
// the Hub's job queue, and cleanup on disconnect. Blocks until the socket
// closes.
func (h *Hub) ServeClientSocket(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.config.HandshakeTimeout))

	_, raw, err := conn.ReadMessage()
	if err != nil {
		closeHandshake(conn, 1008, "handshake timeout")
		return
	}

	var payload models.RegisterPayload
	if jsonErr := json.Unmarshal(raw, &payload); jsonErr != nil || payload.Type != models.TagRegister || payload.ClientID == "" {
		closeHandshake(conn, 1008, "first frame must be register")
		return
	}

	cc := h.ConnectClient(payload.ClientID, payload.Metadata, conn)

	go cc.writePump()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			break
		}
		h.Submit(func(h *Hub) { h.dispatchClientFrame(cc, frame) })
	}
	h.DisconnectClient(payload.ClientID, cc)
}

// ServeBrowserSocket runs the full lifecycle of one Browser Observer
// connection. Blocks until the socket closes.
func (h *Hub) ServeBrowserSocket(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	bc := h.ConnectBrowser(conn)

	go bc.writePump()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			break
		}
		h.Submit(func(h *Hub) { h.dispatchBrowserFrame(bc, frame) })
	}
	h.DisconnectBrowser(bc)
}

func closeHandshake(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	_ = conn.Close()
}
