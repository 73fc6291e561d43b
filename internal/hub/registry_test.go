package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaybridge/hub/internal/models"
)

func newTestRegistry(t *testing.T) *registry {
	t.Helper()
	store, err := OpenStore(t.TempDir(), "user-registry")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return newRegistry(store)
}

func TestRegistryRegisterFindSnapshot(t *testing.T) {
	r := newTestRegistry(t)
	cc := newClientConn("client-a", nil)

	require.NoError(t, r.register(models.Client{ID: "client-a"}, cc))

	c, found, ok := r.find("client-a")
	require.True(t, ok)
	assert.Equal(t, cc, found)
	assert.Equal(t, "client-a", c.ID)

	snap := r.snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "client-a", snap[0].ID)
}

func TestRegistryUpdateStatusRequiresExistingClient(t *testing.T) {
	r := newTestRegistry(t)

	_, ok, err := r.updateStatus("missing", models.StatusBusy)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.register(models.Client{ID: "client-a"}, newClientConn("client-a", nil)))
	updated, ok, err := r.updateStatus("client-a", models.StatusBusy)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.StatusBusy, updated.Metadata.Status)
}

func TestRegistryRemoveDeletesClientAndSocket(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.register(models.Client{ID: "client-a"}, newClientConn("client-a", nil)))

	removed, err := r.remove("client-a")
	require.NoError(t, err)
	assert.True(t, removed)

	_, _, ok := r.find("client-a")
	assert.False(t, ok)

	removedAgain, err := r.remove("client-a")
	require.NoError(t, err)
	assert.False(t, removedAgain)
}

func TestRegistryUpdateStatusSurfacesErrorWhenStoreUnavailable(t *testing.T) {
	store, err := OpenStore(t.TempDir(), "user-registry-unhealthy")
	require.NoError(t, err)

	r := newRegistry(store)
	require.NoError(t, r.register(models.Client{ID: "client-a"}, newClientConn("client-a", nil)))

	// Closing the underlying DB mid-test simulates the store going
	// unhealthy: both putWithRetry attempts (the initial write and the
	// fresh-read retry) hit the same closed *sql.DB, so the call surfaces
	// the error per §7 rather than silently dropping the update.
	require.NoError(t, store.Close())

	_, ok, err := r.updateStatus("client-a", models.StatusBusy)
	assert.True(t, ok, "client still exists in memory even though the durable write failed")
	assert.Error(t, err)

	_, ok, err = r.touch("client-a")
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestRegistryLoadMarksPersistedClientsDisconnected(t *testing.T) {
	store, err := OpenStore(t.TempDir(), "user-cold-start")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.PutClient(models.Client{
		ID:       "client-a",
		Metadata: models.ClientMetadata{Status: models.StatusActive},
	}))

	r := newRegistry(store)
	stale, err := r.load()
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, models.StatusDisconnected, stale[0].Metadata.Status)

	remaining, err := store.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, remaining)
}
