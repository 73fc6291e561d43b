package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerGetOrCreateReturnsSameHubOnSecondCall(t *testing.T) {
	m := NewManager(t.TempDir(), Config{}, nil)

	h1, err := m.GetOrCreate("user-a")
	require.NoError(t, err)
	h2, err := m.GetOrCreate("user-a")
	require.NoError(t, err)

	assert.Same(t, h1, h2)
}

func TestManagerHibernateStopsHubAndAllowsRestart(t *testing.T) {
	m := NewManager(t.TempDir(), Config{}, nil)

	h1, err := m.GetOrCreate("user-b")
	require.NoError(t, err)

	m.Hibernate("user-b")

	h2, err := m.GetOrCreate("user-b")
	require.NoError(t, err)
	assert.NotSame(t, h1, h2, "a fresh GetOrCreate after hibernation must start a new Hub")
}

func TestManagerHibernateOfUnknownUserIsNoop(t *testing.T) {
	m := NewManager(t.TempDir(), Config{}, nil)
	m.Hibernate("never-existed")
}
