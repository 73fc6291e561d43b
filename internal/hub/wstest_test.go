package hub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// newConnPair returns a live client/server websocket.Conn pair backed by a
// real TCP loopback connection, for the handful of tests that exercise
// closeWithCode's control-frame write and can't be satisfied by a bare
// clientConn wrapping a nil *websocket.Conn (SPEC_FULL.md "Test tooling":
// httptest.Server + gorilla/websocket.Dialer).
func newConnPair(t *testing.T) (serverSide, clientSide *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		accepted <- conn
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	dialer := websocket.DefaultDialer
	clientSide, _, err := dialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientSide.Close() })

	select {
	case serverSide = <-accepted:
		t.Cleanup(func() { serverSide.Close() })
		return serverSide, clientSide
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server-side upgrade")
		return nil, nil
	}
}
