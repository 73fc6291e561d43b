// This file defines the Redis key naming convention for the session cache
// (spec §1: the only thing this hub caches through Redis is the JWT session
// store — the hub's own Client state lives in the durable per-user store,
// not here, so the teacher's user/template/quota/repository/share key
// families have no referent in this domain).
package cache

import "fmt"

const PrefixSession = "session"

// SessionKey is the Redis key for a single tracked session, keyed by jti.
func SessionKey(sessionID string) string {
	return fmt.Sprintf("%s:%s", PrefixSession, sessionID)
}

// UserSessionsKey namespaces a user's own session list for pattern deletes.
func UserSessionsKey(userID string) string {
	return fmt.Sprintf("%s:user:%s:list", PrefixSession, userID)
}

// SessionPattern matches every tracked session, for a full revoke-all.
func SessionPattern() string {
	return fmt.Sprintf("%s:*", PrefixSession)
}
