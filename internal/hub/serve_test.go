package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaybridge/hub/internal/models"
)

func TestServeClientSocketRejectsNonRegisterFirstFrame(t *testing.T) {
	h := newTestHub(t, Config{HandshakeTimeout: time.Second})
	server, client := newConnPair(t)

	go h.ServeClientSocket(server)

	require.NoError(t, client.WriteJSON(models.PingPayload{Type: models.TagPing, ClientID: "client-a"}))

	_, _, err := client.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok)
	assert.Equal(t, 1008, closeErr.Code)
}

func TestServeClientSocketHandshakeTimeout(t *testing.T) {
	h := newTestHub(t, Config{HandshakeTimeout: 30 * time.Millisecond})
	server, client := newConnPair(t)

	go h.ServeClientSocket(server)

	_, _, err := client.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok)
	assert.Equal(t, 1008, closeErr.Code)
}

func TestServeClientSocketRegistersAndRespondsToPing(t *testing.T) {
	h := newTestHub(t, Config{HandshakeTimeout: time.Second})
	server, client := newConnPair(t)

	go h.ServeClientSocket(server)

	require.NoError(t, client.WriteJSON(models.RegisterPayload{
		Type:     models.TagRegister,
		ClientID: "client-a",
		Metadata: models.ClientMetadata{Hostname: "box-1"},
	}))

	require.Eventually(t, func() bool {
		snap := h.Snapshot()
		return len(snap) == 1 && snap[0].ID == "client-a"
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, client.WriteJSON(models.PingPayload{Type: models.TagPing, ClientID: "client-a"}))

	_, raw, err := client.ReadMessage()
	require.NoError(t, err)
	var pong models.PongPayload
	require.NoError(t, json.Unmarshal(raw, &pong))
	assert.Equal(t, models.TagPong, pong.Type)
	assert.Equal(t, "client-a", pong.ClientID)

	require.NoError(t, client.Close())

	require.Eventually(t, func() bool {
		return len(h.Snapshot()) == 0
	}, time.Second, 10*time.Millisecond)
}
