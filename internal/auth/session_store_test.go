package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/relaybridge/hub/internal/cache"
)

func newTestSessionStore(t *testing.T) *SessionStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c, err := cache.NewCache(cache.Config{Host: mr.Host(), Port: mr.Port(), Enabled: true})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return NewSessionStore(c)
}

func TestSessionStoreCreateValidateDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestSessionStore(t)

	session := &SessionData{SessionID: "sess-1", UserID: "user-1", CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.CreateSession(ctx, session, time.Hour))

	valid, err := store.ValidateSession(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, valid)

	require.NoError(t, store.DeleteSession(ctx, "sess-1"))

	valid, err = store.ValidateSession(ctx, "sess-1")
	require.NoError(t, err)
	require.False(t, valid)
}

func TestSessionStoreClearAllSessions(t *testing.T) {
	ctx := context.Background()
	store := newTestSessionStore(t)

	require.NoError(t, store.CreateSession(ctx, &SessionData{SessionID: "a", ExpiresAt: time.Now().Add(time.Hour)}, time.Hour))
	require.NoError(t, store.CreateSession(ctx, &SessionData{SessionID: "b", ExpiresAt: time.Now().Add(time.Hour)}, time.Hour))

	require.NoError(t, store.ClearAllSessions(ctx))

	for _, id := range []string{"a", "b"} {
		valid, err := store.ValidateSession(ctx, id)
		require.NoError(t, err)
		require.False(t, valid, "session %s should be gone after ClearAllSessions", id)
	}
}
