// This file implements the HTTP proxy surface named in spec §6:
// `{METHOD} /clients/{client_id}/proxy/{tail...}`. It authorizes the
// request against the caller's own hub, then tries the Proxy Bridge's HTTP
// mode first, falling back to the WebSocket tunnel mode when the target
// Client has no callback_url (§4.4).
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/relaybridge/hub/internal/auth"
	appErrors "github.com/relaybridge/hub/internal/errors"
	"github.com/relaybridge/hub/internal/hub"
)

type ProxyHandler struct {
	manager  *hub.Manager
	prefix   string
	upgrader websocket.Upgrader
}

func NewProxyHandler(manager *hub.Manager, prefix string) *ProxyHandler {
	return &ProxyHandler{
		manager: manager,
		prefix:  prefix,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handle implements the full proxy surface for any HTTP method. The caller
// must already be authenticated by auth.BrowserSession; the Proxy Bridge's
// authorization check (§4.4) is satisfied by construction here, since the
// only hub consulted is the one keyed by the caller's own user id.
//
// A browser upgrading the request to WebSocket (§4.4 "or when the browser
// issues a WebSocket upgrade") is routed to the streamed tunnel bridge
// instead of the single-reply HTTP path.
func (p *ProxyHandler) Handle(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		appErrors.AbortWithError(c, appErrors.Unauthorized("session required"))
		return
	}

	clientID := c.Param("client_id")
	tail := strings.TrimPrefix(c.Param("tail"), "/")

	h, err := p.manager.GetOrCreate(userID)
	if err != nil {
		appErrors.AbortWithError(c, appErrors.InternalServer("hub unavailable"))
		return
	}

	if websocket.IsWebSocketUpgrade(c.Request) {
		p.handleWSBridge(c, h, clientID, tail)
		return
	}

	req := hub.ProxyHTTPRequest{
		Method:   c.Request.Method,
		Tail:     tail,
		RawQuery: c.Request.URL.RawQuery,
		Headers:  c.Request.Header,
		Body:     c.Request.Body,
	}

	resp, err := h.HTTPProxy(clientID, p.prefix, req)
	if err == hub.ErrFallbackToWSBridge {
		resp, err = h.BeginHTTPTunnel(clientID, req)
	}
	if err != nil {
		appErrors.HandleError(c, err)
		return
	}

	for key, values := range resp.Headers {
		for _, v := range values {
			c.Writer.Header().Add(key, v)
		}
	}
	c.Data(resp.StatusCode, resp.Headers.Get("Content-Type"), resp.Body)
}

// handleWSBridge upgrades the browser's connection and pumps frames in
// both directions over the Proxy Bridge's WS tunnel correlation (§4.4
// proxy_ws_open/proxy_ws_frame/proxy_ws_close).
func (p *ProxyHandler) handleWSBridge(c *gin.Context, h *hub.Hub, clientID, tail string) {
	headers := make(map[string]string, len(c.Request.Header))
	for k := range c.Request.Header {
		headers[k] = c.Request.Header.Get(k)
	}

	requestID, frames, err := h.BeginWSTunnel(clientID, "/"+tail, headers)
	if err != nil {
		appErrors.HandleError(c, err)
		return
	}

	conn, err := p.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.CloseWSTunnel(clientID, requestID, "browser upgrade failed")
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range frames {
			if msg.Closed {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(1011, msg.Reason), time.Now().Add(time.Second))
				return
			}
			messageType := websocket.TextMessage
			if msg.Binary {
				messageType = websocket.BinaryMessage
			}
			if err := conn.WriteMessage(messageType, msg.Data); err != nil {
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		h.SendWSFrame(clientID, requestID, data, messageType == websocket.BinaryMessage)
	}

	h.CloseWSTunnel(clientID, requestID, "browser disconnected")
	<-done
}
