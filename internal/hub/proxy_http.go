// This file implements the HTTP reverse-proxy mode of the Proxy Bridge
// (spec §4.4): when a Client advertises a callback_url, the bridge
// forwards the browser's request there directly instead of tunneling it
// over the client's hub socket.
//
// Grounded on the forwarder in
// _examples/CirtusX-ctrl-ai-v1/internal/proxy/forwarder.go (hop-by-hop
// header stripping, header copy helpers); wrapped in a circuit breaker per
// (client_id, callback host) pair (see Hub.breakerFor in hub.go) so a
// single client's flaky callback doesn't fast-fail another client's
// healthy proxy traffic in the same hub.
package hub

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/relaybridge/hub/internal/errors"
)

var hopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailers":            true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// ProxyHTTPRequest is the inbound browser request the bridge forwards.
type ProxyHTTPRequest struct {
	Method      string
	Tail        string
	RawQuery    string
	Headers     http.Header
	Body        io.Reader
	ContentType string
}

// ProxyHTTPResponse is what the bridge hands back to the HTTP front to
// write to the browser.
type ProxyHTTPResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// HTTPProxy forwards a browser request to a Client's callback URL if the
// browser's owning user matches the Client's, per §4.4 authorization.
func (h *Hub) HTTPProxy(clientID string, prefix string, req ProxyHTTPRequest) (*ProxyHTTPResponse, error) {
	done := make(chan struct{})
	var callbackURL string
	var found bool
	h.Submit(func(h *Hub) {
		defer close(done)
		client, _, ok := h.reg.find(clientID)
		if !ok {
			found = false
			return
		}
		found = true
		callbackURL = client.Metadata.CallbackURL
	})
	<-done

	if !found {
		return nil, errors.ClientNotFound(clientID)
	}
	if callbackURL == "" {
		return nil, ErrFallbackToWSBridge
	}

	target := strings.TrimRight(callbackURL, "/") + "/" + strings.TrimLeft(req.Tail, "/")
	upstream, err := url.Parse(target)
	if err != nil {
		return nil, errors.GatewayError(err)
	}
	if req.RawQuery != "" {
		upstream.RawQuery = req.RawQuery
	}

	breaker := h.breakerFor(clientID, upstream.Host)
	result, err := breaker.Execute(func() (interface{}, error) {
		upstreamReq, err := http.NewRequest(req.Method, upstream.String(), req.Body)
		if err != nil {
			return nil, fmt.Errorf("creating upstream request: %w", err)
		}
		copyHeaders(upstreamReq.Header, req.Headers)
		resp, err := h.httpClient.Do(upstreamReq)
		if err != nil {
			return nil, fmt.Errorf("forwarding to callback %s: %w", upstream.String(), err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		if err != nil {
			return nil, fmt.Errorf("reading upstream response: %w", err)
		}

		out := &ProxyHTTPResponse{StatusCode: resp.StatusCode, Headers: make(http.Header), Body: body}
		copyResponseHeaders(out.Headers, resp.Header)
		if loc := resp.Header.Get("Location"); loc != "" {
			out.Headers.Set("Location", rewriteRedirect(loc, upstream, prefix, clientID))
		}
		return out, nil
	})
	if err != nil {
		return nil, errors.GatewayError(err)
	}
	return result.(*ProxyHTTPResponse), nil
}

// ErrFallbackToWSBridge signals the HTTP front to retry via the WebSocket
// tunnel mode instead (§4.4: "Invoked when callback_url is absent").
var ErrFallbackToWSBridge = fmt.Errorf("no callback_url: fall back to websocket bridge")

// rewriteRedirect keeps a callback's redirect inside the
// {prefix}/{id}/proxy/ prefix, i.e. /clients/{id}/proxy/ with the default
// prefix (§4.4).
func rewriteRedirect(location string, upstream *url.URL, prefix, clientID string) string {
	target, err := url.Parse(location)
	if err != nil {
		return location
	}
	resolved := upstream.ResolveReference(target)
	if resolved.Host != upstream.Host {
		// Cross-origin redirect: leave untouched, the browser will follow
		// it directly and exit the proxy's authorization boundary.
		return resolved.String()
	}
	callbackPath := strings.TrimPrefix(resolved.Path, "/")
	rewritten := fmt.Sprintf("%s/%s/proxy/%s", strings.TrimRight(prefix, "/"), clientID, callbackPath)
	if resolved.RawQuery != "" {
		rewritten += "?" + resolved.RawQuery
	}
	return rewritten
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if hopByHopHeaders[key] || strings.EqualFold(key, "Host") {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func copyResponseHeaders(dst, src http.Header) {
	for key, values := range src {
		if hopByHopHeaders[key] {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}
