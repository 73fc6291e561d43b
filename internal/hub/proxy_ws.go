// This file implements the WebSocket tunnel mode of the Proxy Bridge
// (spec §4.4): used when a Client has no callback_url, or when the
// browser itself upgrades to WebSocket under the proxy path. Request/
// response pairs are correlated by request id over the client's already-
// open hub socket, with a bounded timeout per §5.
//
// Grounded on the request/response relay in the teacher's VNC proxy
// (internal/handlers/vnc_proxy.go relayVNCData): two independent
// directions pumped by separate goroutines, correlated through a channel
// rather than a shared connection reference, so the Hub never exposes a
// socket handle outside its own goroutine (§9 cyclic-reference note).
package hub

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/relaybridge/hub/internal/errors"
	"github.com/relaybridge/hub/internal/models"
)

// BeginHTTPTunnel sends a proxy_http_req frame over the client's socket
// and waits for the correlated proxy_http_resp, or a synthetic timeout
// (§4.4, §8 invariant 6).
func (h *Hub) BeginHTTPTunnel(clientID string, req ProxyHTTPRequest) (*ProxyHTTPResponse, error) {
	requestID := uuid.NewString()
	resultCh := make(chan proxyResult, 1)

	body := ""
	if req.Body != nil {
		buf := make([]byte, 0)
		bufChunk := make([]byte, 32*1024)
		for {
			n, err := req.Body.Read(bufChunk)
			if n > 0 {
				buf = append(buf, bufChunk[:n]...)
			}
			if err != nil {
				break
			}
		}
		body = base64.StdEncoding.EncodeToString(buf)
	}

	headers := make(map[string]string, len(req.Headers))
	for k := range req.Headers {
		headers[k] = req.Headers.Get(k)
	}

	done := make(chan error, 1)
	h.Submit(func(h *Hub) {
		_, cc, ok := h.reg.find(clientID)
		if !ok || cc == nil {
			done <- errors.ClientNotFound(clientID)
			return
		}
		frame, _ := json.Marshal(models.ProxyHTTPReqPayload{
			Type:      models.TagProxyHTTPReq,
			RequestID: requestID,
			Method:    req.Method,
			Path:      "/" + req.Tail,
			Headers:   headers,
			Body:      body,
		})
		h.pending[requestID] = &pendingProxyRequest{
			kind:     proxyKindHTTP,
			result:   resultCh,
			deadline: time.Now().Add(h.config.ProxyTimeout),
		}
		if !cc.trySend(frame) {
			delete(h.pending, requestID)
			done <- errors.GatewayError(nil)
			return
		}
		done <- nil
	})
	if err := <-done; err != nil {
		return nil, err
	}

	select {
	case result := <-resultCh:
		if result.timedOut {
			return nil, errors.GatewayTimeout()
		}
		out := &ProxyHTTPResponse{StatusCode: result.statusCode, Headers: make(http.Header), Body: result.body}
		for k, v := range result.headers {
			out.Headers.Set(k, v)
		}
		return out, nil
	case <-time.After(h.config.ProxyTimeout + time.Second):
		h.Submit(func(h *Hub) { delete(h.pending, requestID) })
		return nil, errors.GatewayTimeout()
	}
}

func (h *Hub) handleProxyHTTPResp(raw []byte) {
	var payload models.ProxyHTTPRespPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	p, ok := h.pending[payload.RequestID]
	if !ok || p.kind != proxyKindHTTP {
		return // unmatched response, dropped per §4.4
	}
	delete(h.pending, payload.RequestID)

	body, _ := base64.StdEncoding.DecodeString(payload.Body)
	headers := make(map[string]string, len(payload.Headers))
	for k, v := range payload.Headers {
		headers[k] = v
	}
	select {
	case p.result <- proxyResult{statusCode: payload.StatusCode, headers: headers, body: body}:
	default:
	}
}

// BeginWSTunnel opens a proxy_ws_open correlation for a browser's own
// WebSocket upgrade under the proxy path. The returned channel streams
// frames relayed from the client; SendWSFrame/CloseWSTunnel push frames
// the other way.
func (h *Hub) BeginWSTunnel(clientID, path string, headers map[string]string) (requestID string, frames <-chan WSFrame, err error) {
	requestID = uuid.NewString()
	frameCh := make(chan WSFrame, 32)

	done := make(chan error, 1)
	h.Submit(func(h *Hub) {
		_, cc, ok := h.reg.find(clientID)
		if !ok || cc == nil {
			done <- errors.ClientNotFound(clientID)
			return
		}
		frame, _ := json.Marshal(models.ProxyWSOpenPayload{
			Type:      models.TagProxyWSOpen,
			RequestID: requestID,
			Path:      path,
			Headers:   headers,
		})
		h.pending[requestID] = &pendingProxyRequest{
			kind:     proxyKindWS,
			frames:   frameCh,
			deadline: time.Now().Add(h.config.ProxyTimeout),
		}
		if !cc.trySend(frame) {
			delete(h.pending, requestID)
			done <- errors.GatewayError(nil)
			return
		}
		done <- nil
	})
	if err := <-done; err != nil {
		return "", nil, err
	}
	return requestID, frameCh, nil
}

// SendWSFrame relays a browser-originated frame to the client over the
// already-open proxy_ws_* correlation.
func (h *Hub) SendWSFrame(clientID, requestID string, data []byte, binary bool) {
	h.Submit(func(h *Hub) {
		if _, ok := h.pending[requestID]; !ok {
			return
		}
		_, cc, ok := h.reg.find(clientID)
		if !ok || cc == nil {
			return
		}
		frame, _ := json.Marshal(models.ProxyWSFramePayload{
			Type:      models.TagProxyWSFrame,
			RequestID: requestID,
			Data:      base64.StdEncoding.EncodeToString(data),
			Binary:    binary,
		})
		cc.trySend(frame)
	})
}

// CloseWSTunnel tears down a WS bridge correlation from the browser side.
func (h *Hub) CloseWSTunnel(clientID, requestID, reason string) {
	h.Submit(func(h *Hub) {
		p, ok := h.pending[requestID]
		if !ok {
			return
		}
		delete(h.pending, requestID)
		close(p.frames)
		if _, cc, ok := h.reg.find(clientID); ok && cc != nil {
			frame, _ := json.Marshal(models.ProxyWSClosePayload{
				Type:      models.TagProxyWSClose,
				RequestID: requestID,
				Reason:    reason,
			})
			cc.trySend(frame)
		}
	})
}

func (h *Hub) handleProxyWSFrame(raw []byte) {
	var payload models.ProxyWSFramePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	p, ok := h.pending[payload.RequestID]
	if !ok || p.kind != proxyKindWS {
		return
	}
	data, _ := base64.StdEncoding.DecodeString(payload.Data)
	select {
	case p.frames <- WSFrame{Data: data, Binary: payload.Binary}:
	default:
	}
}

func (h *Hub) handleProxyWSClose(raw []byte) {
	var payload models.ProxyWSClosePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	p, ok := h.pending[payload.RequestID]
	if !ok || p.kind != proxyKindWS {
		return
	}
	delete(h.pending, payload.RequestID)
	select {
	case p.frames <- WSFrame{Closed: true, Reason: payload.Reason}:
	default:
	}
	close(p.frames)
}
