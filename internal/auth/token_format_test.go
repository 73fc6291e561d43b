package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWireTokenRoundTripsThroughParseAndVerify(t *testing.T) {
	hasher := NewTokenHasher()

	plaintext, hash, err := NewWireToken(hasher, "tok-123")
	require.NoError(t, err)

	parsed, err := ParseWireToken(plaintext)
	require.NoError(t, err)
	assert.Equal(t, "rbh", parsed.Scheme)
	assert.Equal(t, "tok-123", parsed.ID)

	assert.True(t, VerifySecret(hasher, parsed.Secret, hash))
	assert.False(t, VerifySecret(hasher, "wrong-secret-wrong-secret-wrong", hash))
}

func TestParseWireTokenRejectsMalformedInput(t *testing.T) {
	cases := []string{
		"",
		"rbh_onlyid",
		"wrongscheme_id_" + string(make([]byte, 40)),
		"rbh__" + string(make([]byte, 40)),
		"rbh_id_tooshort",
	}
	for _, raw := range cases {
		_, err := ParseWireToken(raw)
		assert.Error(t, err, "expected error for input %q", raw)
	}
}
