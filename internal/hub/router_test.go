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

func recvFrame(t *testing.T, ch chan []byte) []byte {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a frame on send channel")
		return nil
	}
}

func TestDispatchClientFrameMalformedJSONRepliesErrorWithoutClosing(t *testing.T) {
	h := newTestHub(t, Config{})
	cc := newClientConn("client-a", nil)

	done := make(chan struct{})
	h.Submit(func(h *Hub) {
		defer close(done)
		h.dispatchClientFrame(cc, []byte("not json"))
	})
	<-done

	msg := recvFrame(t, cc.send)
	assert.Contains(t, string(msg), "malformed")
	assert.Equal(t, 1, cc.malformedCount)
}

func TestDispatchClientFrameThreeStrikesClosesWithProtocolError(t *testing.T) {
	h := newTestHub(t, Config{})
	server, client := newConnPair(t)
	cc := h.ConnectClient("client-a", models.ClientMetadata{}, server)

	for i := 0; i < 3; i++ {
		done := make(chan struct{})
		h.Submit(func(h *Hub) {
			defer close(done)
			h.dispatchClientFrame(cc, []byte("garbage"))
		})
		<-done
		// Drain the error reply so the send buffer never fills.
		<-cc.send
	}

	require.Eventually(t, func() bool {
		_, _, err := client.ReadMessage()
		if err == nil {
			return false
		}
		closeErr, ok := err.(*websocket.CloseError)
		return ok && closeErr.Code == 1002
	}, time.Second, 10*time.Millisecond)
}

func TestDispatchClientFrameStatusUpdateRequiresMatchingClientID(t *testing.T) {
	h := newTestHub(t, Config{})
	cc := newClientConn("client-a", nil)

	done := make(chan struct{})
	h.Submit(func(h *Hub) {
		defer close(done)
		require.NoError(t, h.reg.register(models.Client{ID: "client-a"}, cc))
		payload, _ := json.Marshal(models.StatusUpdatePayload{Type: models.TagStatusUpdate, ClientID: "someone-else", Status: models.StatusBusy})
		h.dispatchClientFrame(cc, payload)
	})
	<-done

	msg := recvFrame(t, cc.send)
	assert.Contains(t, string(msg), "does not match")
}

func TestDispatchClientFrameStatusUpdateBroadcastsToBrowsers(t *testing.T) {
	h := newTestHub(t, Config{})
	cc := newClientConn("client-a", nil)
	bc := newBrowserConn(1, nil)

	done := make(chan struct{})
	h.Submit(func(h *Hub) {
		defer close(done)
		require.NoError(t, h.reg.register(models.Client{ID: "client-a"}, cc))
		h.browsers[bc.id] = bc
		payload, _ := json.Marshal(models.StatusUpdatePayload{Type: models.TagStatusUpdate, ClientID: "client-a", Status: models.StatusBusy})
		h.dispatchClientFrame(cc, payload)
	})
	<-done

	msg := recvFrame(t, bc.send)
	var update models.ClientUpdatePayload
	require.NoError(t, json.Unmarshal(msg, &update))
	assert.Equal(t, "client-a", update.ID)
	assert.Equal(t, models.StatusBusy, update.Status)
}

func TestHandleStatusUpdateClosesSocketOnDurableWriteFailure(t *testing.T) {
	h := newTestHub(t, Config{})
	server, client := newConnPair(t)
	cc := h.ConnectClient("client-a", models.ClientMetadata{}, server)

	require.NoError(t, h.store.Close())

	payload, _ := json.Marshal(models.StatusUpdatePayload{Type: models.TagStatusUpdate, ClientID: "client-a", Status: models.StatusBusy})
	h.Submit(func(h *Hub) { h.dispatchClientFrame(cc, payload) })

	_, msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "failed to persist status update")

	_, _, err = client.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected a websocket close error, got %v", err)
	assert.Equal(t, 1011, closeErr.Code)
}

func TestDispatchBrowserFrameGetClientsRepliesSnapshot(t *testing.T) {
	h := newTestHub(t, Config{})
	bc := newBrowserConn(1, nil)

	done := make(chan struct{})
	h.Submit(func(h *Hub) {
		defer close(done)
		require.NoError(t, h.reg.register(models.Client{ID: "client-a"}, newClientConn("client-a", nil)))
		h.dispatchBrowserFrame(bc, []byte(`{"type":"get_clients"}`))
	})
	<-done

	msg := recvFrame(t, bc.send)
	var list models.ClientListPayload
	require.NoError(t, json.Unmarshal(msg, &list))
	require.Len(t, list.Clients, 1)
	assert.Equal(t, "client-a", list.Clients[0].ID)
}

func TestDispatchBrowserFrameRejectsClientOnlyMessageTypes(t *testing.T) {
	h := newTestHub(t, Config{})
	bc := newBrowserConn(1, nil)

	for _, tag := range []string{models.TagRegister, models.TagStatusUpdate, models.TagPing} {
		done := make(chan struct{})
		h.Submit(func(h *Hub) {
			defer close(done)
			h.dispatchBrowserFrame(bc, []byte(`{"type":"`+tag+`"}`))
		})
		<-done

		msg := recvFrame(t, bc.send)
		assert.Contains(t, string(msg), "not valid for a browser connection")
	}
}

// TestConnectClientDisplacementClosesPreviousSendChannel is a regression
// test: displacement used to close the old socket via closeWithCode without
// ever closing cc.send, leaving the old connection's writePump goroutine
// parked on an empty channel forever (spec scenario S2).
func TestConnectClientDisplacementClosesPreviousSendChannel(t *testing.T) {
	h := newTestHub(t, Config{})

	serverA, _ := newConnPair(t)
	ccA := h.ConnectClient("client-a", models.ClientMetadata{}, serverA)

	pumpDone := make(chan struct{})
	go func() {
		ccA.writePump()
		close(pumpDone)
	}()

	serverB, _ := newConnPair(t)
	h.ConnectClient("client-a", models.ClientMetadata{}, serverB)

	select {
	case <-pumpDone:
	case <-time.After(2 * time.Second):
		t.Fatal("displaced connection's writePump never exited: cc.send was not closed")
	}
}

func TestDisconnectClientClosesSendChannelEvenWithoutDisplacement(t *testing.T) {
	h := newTestHub(t, Config{})
	server, _ := newConnPair(t)
	cc := h.ConnectClient("client-a", models.ClientMetadata{}, server)

	h.DisconnectClient("client-a", cc)

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-cc.send:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}
