package hub

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/relaybridge/hub/internal/errors"
	"github.com/relaybridge/hub/internal/models"
)

func registerTestClient(t *testing.T, h *Hub, id string, metadata models.ClientMetadata) {
	t.Helper()
	done := make(chan struct{})
	h.Submit(func(h *Hub) {
		defer close(done)
		require.NoError(t, h.reg.register(models.Client{ID: id, Metadata: metadata}, newClientConn(id, nil)))
	})
	<-done
}

func TestHTTPProxyForwardsToCallbackURL(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/widgets", r.URL.Path)
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	h := newTestHub(t, Config{ProxyTimeout: time.Second})
	registerTestClient(t, h, "client-a", models.ClientMetadata{CallbackURL: upstream.URL})

	resp, err := h.HTTPProxy("client-a", "/clients", ProxyHTTPRequest{
		Method:  http.MethodGet,
		Tail:    "widgets",
		Headers: http.Header{},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, "yes", resp.Headers.Get("X-Upstream"))
}

func TestHTTPProxyFallsBackToWSBridgeWithoutCallbackURL(t *testing.T) {
	h := newTestHub(t, Config{ProxyTimeout: time.Second})
	registerTestClient(t, h, "client-a", models.ClientMetadata{})

	_, err := h.HTTPProxy("client-a", "/clients", ProxyHTTPRequest{Method: http.MethodGet, Tail: "x", Headers: http.Header{}})
	assert.ErrorIs(t, err, ErrFallbackToWSBridge)
}

func TestHTTPProxyUnknownClientReturnsClientNotFound(t *testing.T) {
	h := newTestHub(t, Config{ProxyTimeout: time.Second})

	_, err := h.HTTPProxy("missing", "/clients", ProxyHTTPRequest{Method: http.MethodGet, Tail: "x", Headers: http.Header{}})
	require.Error(t, err)
	appErr, ok := err.(*appErrors.AppError)
	require.True(t, ok, "expected an *AppError, got %T", err)
	assert.Equal(t, appErrors.ErrCodeClientNotFound, appErr.Code)
}

// TestBreakerForIsolatesByClientAndHost is a regression test for the
// previous shared-per-hub circuit breaker: a single client's wedged
// callback must not share trip state with another client's healthy one.
func TestBreakerForIsolatesByClientAndHost(t *testing.T) {
	h := newTestHub(t, Config{})

	a1 := h.breakerFor("client-a", "api.example.com")
	a2 := h.breakerFor("client-a", "api.example.com")
	assert.Same(t, a1, a2, "repeated calls for the same (client, host) pair must reuse the breaker")

	b := h.breakerFor("client-b", "api.example.com")
	assert.NotSame(t, a1, b, "different clients must not share a breaker even for the same host")

	c := h.breakerFor("client-a", "other.example.com")
	assert.NotSame(t, a1, c, "different callback hosts for the same client must not share a breaker")
}
