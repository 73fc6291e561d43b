package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaybridge/hub/internal/models"
)

func newTestHub(t *testing.T, cfg Config) *Hub {
	t.Helper()
	store, err := OpenStore(t.TempDir(), "user-hub")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHub("user-hub", store, nil, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func TestHubIdleRequiresNoSocketsAndQuietPeriod(t *testing.T) {
	h := newTestHub(t, Config{HibernateAfter: 20 * time.Millisecond})

	assert.False(t, h.Idle(), "freshly created hub should not be idle yet")

	time.Sleep(30 * time.Millisecond)
	assert.True(t, h.Idle())
}

func TestHubResumeMarksColdStartClientsDisconnected(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := OpenStore(tmpDir, "user-resume")
	require.NoError(t, err)
	require.NoError(t, store.PutClient(models.Client{
		ID:       "client-a",
		Metadata: models.ClientMetadata{Status: models.StatusActive},
	}))
	store.Close()

	store, err = OpenStore(tmpDir, "user-resume")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHub("user-resume", store, nil, Config{})
	require.NoError(t, h.Resume())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	assert.Empty(t, h.Snapshot(), "unrestored clients are removed from the live registry on cold start")
}

func TestHubSnapshotReflectsRegisteredClients(t *testing.T) {
	h := newTestHub(t, Config{})

	done := make(chan struct{})
	h.Submit(func(h *Hub) {
		defer close(done)
		require.NoError(t, h.reg.register(models.Client{ID: "client-a"}, newClientConn("client-a", nil)))
	})
	<-done

	snap := h.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "client-a", snap[0].ID)
}
