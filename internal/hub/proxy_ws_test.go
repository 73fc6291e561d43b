package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaybridge/hub/internal/models"
)

func TestBeginHTTPTunnelRoundTripsThroughClientSocket(t *testing.T) {
	h := newTestHub(t, Config{ProxyTimeout: 2 * time.Second})
	registerTestClient(t, h, "client-a", models.ClientMetadata{})

	respCh := make(chan *ProxyHTTPResponse, 1)
	errCh := make(chan error, 1)
	go func() {
		resp, err := h.BeginHTTPTunnel("client-a", ProxyHTTPRequest{Method: "GET", Tail: "status"})
		respCh <- resp
		errCh <- err
	}()

	_, cc, ok := findTestClient(t, h, "client-a")
	require.True(t, ok)
	frame := recvFrame(t, cc.send)

	var req models.ProxyHTTPReqPayload
	require.NoError(t, json.Unmarshal(frame, &req))
	assert.Equal(t, "/status", req.Path)

	h.Submit(func(h *Hub) {
		reply, _ := json.Marshal(models.ProxyHTTPRespPayload{
			Type:       models.TagProxyHTTPResp,
			RequestID:  req.RequestID,
			StatusCode: 204,
		})
		h.handleProxyHTTPResp(reply)
	})

	require.NoError(t, <-errCh)
	resp := <-respCh
	assert.Equal(t, 204, resp.StatusCode)
}

func TestBeginHTTPTunnelUnknownClientFailsFast(t *testing.T) {
	h := newTestHub(t, Config{ProxyTimeout: time.Second})

	_, err := h.BeginHTTPTunnel("missing", ProxyHTTPRequest{Method: "GET", Tail: "x"})
	assert.Error(t, err)
}

func TestBeginHTTPTunnelTimesOutWhenClientNeverResponds(t *testing.T) {
	h := newTestHub(t, Config{ProxyTimeout: 10 * time.Millisecond})
	registerTestClient(t, h, "client-a", models.ClientMetadata{})

	requestID := "timeout-req"
	resultCh := make(chan proxyResult, 1)
	h.Submit(func(h *Hub) {
		h.pending[requestID] = &pendingProxyRequest{
			kind:     proxyKindHTTP,
			result:   resultCh,
			deadline: time.Now().Add(-time.Second), // already expired
		}
		h.pruneExpiredProxyRequests()
	})

	select {
	case result := <-resultCh:
		assert.True(t, result.timedOut)
	case <-time.After(time.Second):
		t.Fatal("expired proxy request was never pruned")
	}
}

func TestWSTunnelRelaysFramesBothWaysAndCloses(t *testing.T) {
	h := newTestHub(t, Config{ProxyTimeout: 2 * time.Second})
	registerTestClient(t, h, "client-a", models.ClientMetadata{})

	requestID, frames, err := h.BeginWSTunnel("client-a", "/shell", map[string]string{})
	require.NoError(t, err)

	_, cc, ok := findTestClient(t, h, "client-a")
	require.True(t, ok)
	openFrame := recvFrame(t, cc.send)
	var open models.ProxyWSOpenPayload
	require.NoError(t, json.Unmarshal(openFrame, &open))
	assert.Equal(t, requestID, open.RequestID)

	h.SendWSFrame("client-a", requestID, []byte("hello"), false)
	relayed := recvFrame(t, cc.send)
	var relayedFrame models.ProxyWSFramePayload
	require.NoError(t, json.Unmarshal(relayed, &relayedFrame))
	assert.Equal(t, requestID, relayedFrame.RequestID)

	// Simulate the client relaying a frame back.
	clientFrame, _ := json.Marshal(models.ProxyWSFramePayload{
		Type:      models.TagProxyWSFrame,
		RequestID: requestID,
		Data:      "d29ybGQ=", // "world"
	})
	h.Submit(func(h *Hub) { h.handleProxyWSFrame(clientFrame) })

	select {
	case f := <-frames:
		assert.Equal(t, "world", string(f.Data))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for relayed frame")
	}

	h.CloseWSTunnel("client-a", requestID, "done")
	closeFrame := recvFrame(t, cc.send)
	var closePayload models.ProxyWSClosePayload
	require.NoError(t, json.Unmarshal(closeFrame, &closePayload))
	assert.Equal(t, "done", closePayload.Reason)

	_, stillOpen := <-frames
	assert.False(t, stillOpen, "frames channel must be closed once the tunnel is torn down")
}

func findTestClient(t *testing.T, h *Hub, clientID string) (models.Client, *clientConn, bool) {
	t.Helper()
	type result struct {
		c  models.Client
		cc *clientConn
		ok bool
	}
	done := make(chan result, 1)
	h.Submit(func(h *Hub) {
		c, cc, ok := h.reg.find(clientID)
		done <- result{c, cc, ok}
	})
	r := <-done
	return r.c, r.cc, r.ok
}
