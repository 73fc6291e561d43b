package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaybridge/hub/internal/models"
)

func TestStorePutLoadDeleteClient(t *testing.T) {
	store, err := OpenStore(t.TempDir(), "user-1")
	require.NoError(t, err)
	defer store.Close()

	c := models.Client{
		ID: "client-a",
		Metadata: models.ClientMetadata{
			Hostname: "box-a",
			Status:   models.StatusActive,
		},
	}
	require.NoError(t, store.PutClient(c))

	loaded, err := store.LoadAll()
	require.NoError(t, err)
	require.Contains(t, loaded, "client-a")
	assert.Equal(t, "box-a", loaded["client-a"].Metadata.Hostname)

	require.NoError(t, store.DeleteClient("client-a"))
	loaded, err = store.LoadAll()
	require.NoError(t, err)
	assert.NotContains(t, loaded, "client-a")
}

func TestStoreInitializedRoundTrip(t *testing.T) {
	store, err := OpenStore(t.TempDir(), "user-2")
	require.NoError(t, err)
	defer store.Close()

	initialized, err := store.Initialized()
	require.NoError(t, err)
	assert.False(t, initialized)

	require.NoError(t, store.MarkInitialized())

	initialized, err = store.Initialized()
	require.NoError(t, err)
	assert.True(t, initialized)
}

func TestStorePutClientOverwritesByID(t *testing.T) {
	store, err := OpenStore(t.TempDir(), "user-3")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.PutClient(models.Client{ID: "client-b", Metadata: models.ClientMetadata{Status: models.StatusActive}}))
	require.NoError(t, store.PutClient(models.Client{ID: "client-b", Metadata: models.ClientMetadata{Status: models.StatusDisconnected}}))

	loaded, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, models.StatusDisconnected, loaded["client-b"].Metadata.Status)
}
