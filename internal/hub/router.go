// This file implements the Message Router (spec §4.3): inbound tag
// dispatch, the three-strikes malformed-frame rule, and the broadcast
// policy that fans Registry mutations out to Browser Observers. All of
// its methods run inside the Hub's single event-loop goroutine — they are
// always invoked from inside a job submitted via Hub.Submit, never called
// directly from a connection's own goroutine.
package hub

import (
	"encoding/json"
	"time"

	"github.com/relaybridge/hub/internal/models"
)

// dispatchClientFrame routes one text frame received from a registered
// client socket. Called from inside a Hub job.
func (h *Hub) dispatchClientFrame(cc *clientConn, raw []byte) {
	var envelope models.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		h.handleMalformed(cc)
		return
	}

	switch envelope.Type {
	case models.TagStatusUpdate:
		h.handleStatusUpdate(cc, raw)
	case models.TagPing:
		h.handlePing(cc, raw)
	case models.TagProxyHTTPResp:
		h.handleProxyHTTPResp(raw)
	case models.TagProxyWSFrame:
		h.handleProxyWSFrame(raw)
	case models.TagProxyWSClose:
		h.handleProxyWSClose(raw)
	case models.TagRegister:
		// A client may only register once per socket (§4.1); a second
		// register frame on an already-registered socket is a role/tag
		// violation, not a fresh registration.
		h.replyError(cc, "already registered on this connection")
		cc.malformedCount = 0
	case "":
		h.handleMalformed(cc)
	default:
		h.replyError(cc, "unknown message type: "+envelope.Type)
		cc.malformedCount = 0
	}
}

// dispatchBrowserFrame routes one text frame received from a Browser
// Observer socket.
func (h *Hub) dispatchBrowserFrame(bc *browserConn, raw []byte) {
	var envelope models.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		h.replyErrorToBrowser(bc, "malformed frame")
		return
	}

	switch envelope.Type {
	case models.TagGetClients:
		h.sendClientList(bc)
	case models.TagRegister, models.TagStatusUpdate, models.TagPing:
		h.replyErrorToBrowser(bc, "message type not valid for a browser connection: "+envelope.Type)
	default:
		h.replyErrorToBrowser(bc, "unknown message type: "+envelope.Type)
	}
}

func (h *Hub) handleMalformed(cc *clientConn) {
	cc.malformedCount++
	h.replyError(cc, "malformed or unrecognized frame")
	if cc.malformedCount >= 3 {
		cc.closeWithCode(1002, "too many malformed frames")
	}
}

func (h *Hub) handleStatusUpdate(cc *clientConn, raw []byte) {
	var payload models.StatusUpdatePayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ClientID == "" {
		h.handleMalformed(cc)
		return
	}
	if payload.ClientID != cc.clientID {
		h.replyError(cc, "client_id does not match the id registered on this connection")
		cc.malformedCount = 0
		return
	}

	client, ok, err := h.reg.updateStatus(payload.ClientID, payload.Status)
	if err != nil {
		// updateStatus already retried once; a still-failing durable write
		// means the store is unhealthy, so the socket is closed rather than
		// left open against state we can no longer persist (§7).
		h.replyError(cc, "failed to persist status update")
		cc.closeWithCode(1011, "durable store write failed")
		return
	}
	if !ok {
		h.replyError(cc, "client is not registered")
		return
	}
	cc.malformedCount = 0
	h.broadcastClientUpdate(client)
}

func (h *Hub) handlePing(cc *clientConn, raw []byte) {
	var payload models.PingPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ClientID == "" {
		h.handleMalformed(cc)
		return
	}
	if payload.ClientID != cc.clientID {
		h.replyError(cc, "client_id does not match the id registered on this connection")
		cc.malformedCount = 0
		return
	}

	_, ok, err := h.reg.touch(payload.ClientID)
	if err != nil {
		// touch already retried once; same durable-store-unhealthy handling
		// as handleStatusUpdate (§7).
		h.replyError(cc, "failed to persist ping")
		cc.closeWithCode(1011, "durable store write failed")
		return
	}
	if !ok {
		h.replyError(cc, "client is not registered")
		return
	}
	cc.malformedCount = 0
	pong, _ := json.Marshal(models.PongPayload{Type: models.TagPong, ClientID: payload.ClientID})
	cc.trySend(pong)
}

func (h *Hub) replyError(cc *clientConn, message string) {
	frame, _ := json.Marshal(models.ErrorPayload{Type: models.TagError, Message: message})
	cc.trySend(frame)
}

func (h *Hub) replyErrorToBrowser(bc *browserConn, message string) {
	frame, _ := json.Marshal(models.ErrorPayload{Type: models.TagError, Message: message})
	bc.trySend(frame)
}

// sendClientList replies with a point-in-time snapshot (§4.1, §4.3).
func (h *Hub) sendClientList(bc *browserConn) {
	frame, _ := json.Marshal(models.ClientListPayload{Type: models.TagClientList, Clients: h.reg.snapshot()})
	bc.trySend(frame)
}

// broadcastClientUpdate fans a Registry mutation out to every Browser
// Observer, pruning any whose write fails (§4.3 broadcast policy).
func (h *Hub) broadcastClientUpdate(client models.Client) {
	metadata := client.Metadata
	frame, _ := json.Marshal(models.ClientUpdatePayload{
		Type:     models.TagClientUpdate,
		ID:       client.ID,
		Status:   client.Metadata.Status,
		Metadata: &metadata,
	})
	h.broadcast(frame)
}

// broadcastDisconnected emits the final ClientUpdate for a removed client
// (§3: "Disconnected is never persisted for a present Client; it is only
// emitted in a final broadcast at removal time").
func (h *Hub) broadcastDisconnected(clientID string) {
	frame, _ := json.Marshal(models.ClientUpdatePayload{
		Type:   models.TagClientUpdate,
		ID:     clientID,
		Status: models.StatusDisconnected,
	})
	h.broadcast(frame)
}

func (h *Hub) broadcast(frame []byte) {
	var failed []uint64
	for id, bc := range h.browsers {
		if !bc.trySend(frame) {
			failed = append(failed, id)
		}
	}
	for _, id := range failed {
		if bc, ok := h.browsers[id]; ok {
			delete(h.browsers, id)
			close(bc.send)
		}
	}
}

func (h *Hub) pruneExpiredProxyRequests() {
	now := time.Now()
	for id, p := range h.pending {
		if !p.deadline.Before(now) {
			continue
		}
		delete(h.pending, id)
		switch p.kind {
		case proxyKindHTTP:
			select {
			case p.result <- proxyResult{timedOut: true}:
			default:
			}
		case proxyKindWS:
			select {
			case p.frames <- WSFrame{Closed: true, Reason: "timeout"}:
			default:
			}
			close(p.frames)
		}
	}
}
