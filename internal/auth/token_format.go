// This file implements the client bearer-token wire format (spec §3, §9):
//
//	<scheme>_<id>_<secret>
//
// where scheme and id are public (id is the lookup key into the tokens
// table) and secret is hashed with bcrypt before storage. The scheme
// prefix and the two underscore separators are an external contract with
// every connecting tool and must not change without a migration.
package auth

import (
	"fmt"
	"strings"

	"github.com/relaybridge/hub/internal/models"
)

// ParsedToken is the wire token split into its three structural parts.
type ParsedToken struct {
	Scheme string
	ID     string
	Secret string
}

// ParseWireToken splits and validates a presented token's shape. It does
// not consult the database — the acceptor's client classification looks
// the id up and then calls VerifySecret.
func ParseWireToken(raw string) (*ParsedToken, error) {
	parts := strings.SplitN(raw, "_", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed token: expected <scheme>_<id>_<secret>")
	}
	scheme, id, secret := parts[0], parts[1], parts[2]
	if scheme != models.TokenScheme {
		return nil, fmt.Errorf("unrecognized token scheme: %s", scheme)
	}
	if id == "" {
		return nil, fmt.Errorf("malformed token: empty id")
	}
	if len(secret) < 32 {
		return nil, fmt.Errorf("malformed token: secret too short")
	}
	return &ParsedToken{Scheme: scheme, ID: id, Secret: secret}, nil
}

// NewWireToken mints a fresh <scheme>_<id>_<secret> token, returning the
// plaintext (shown to the user exactly once) and its bcrypt hash (stored).
// This is reachable only from the out-of-scope token CRUD surface; the hub
// itself never mints tokens.
func NewWireToken(hasher *TokenHasher, id string) (plaintext string, secretHash string, err error) {
	secret, hash, err := hasher.GenerateSecureToken(48)
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf("%s_%s_%s", models.TokenScheme, id, secret), hash, nil
}

// VerifySecret does the constant-time bcrypt comparison of a presented
// secret against the stored hash (spec §4.1 classification rule 1).
func VerifySecret(hasher *TokenHasher, presentedSecret, storedHash string) bool {
	return hasher.VerifyToken(presentedSecret, storedHash)
}
