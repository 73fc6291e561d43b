package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relaybridge/hub/internal/config"
)

func TestAllowlistEmptyPermitsEveryone(t *testing.T) {
	a := NewAllowlist(&config.AllowlistFile{})
	assert.True(t, a.Allowed(Profile{UserID: "anyone"}))
}

func TestAllowlistChecksEachDimension(t *testing.T) {
	a := NewAllowlist(&config.AllowlistFile{
		AllowedOrgs:  []string{"acme"},
		AllowedUsers: []string{"u-1"},
		AllowedTeams: []string{"platform"},
	})

	assert.True(t, a.Allowed(Profile{UserID: "u-1"}))
	assert.True(t, a.Allowed(Profile{Org: "acme"}))
	assert.True(t, a.Allowed(Profile{Team: "platform"}))
	assert.False(t, a.Allowed(Profile{UserID: "u-2", Org: "other", Team: "other"}))
}
