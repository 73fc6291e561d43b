// This file implements the identity whitelist (spec §6 config keys, §9
// "Implement as a function over the identity-provider-returned profile;
// the hub never calls the identity provider itself"). It is consulted by
// the HTTP login front before a user's hub is created; the hub core never
// imports this package.
package auth

import "github.com/relaybridge/hub/internal/config"

// Allowlist decides whether an identity-provider profile is permitted to
// own a hub.
type Allowlist struct {
	orgs  map[string]struct{}
	users map[string]struct{}
	teams map[string]struct{}
}

// Profile is the subset of an OIDC profile the allowlist checks against.
type Profile struct {
	UserID string
	Org    string
	Team   string
}

func NewAllowlist(f *config.AllowlistFile) *Allowlist {
	a := &Allowlist{
		orgs:  toSet(f.AllowedOrgs),
		users: toSet(f.AllowedUsers),
		teams: toSet(f.AllowedTeams),
	}
	return a
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// Allowed reports whether profile may create/own a hub. An empty allowlist
// (no orgs, users, or teams configured) permits everyone — the boundary is
// opt-in, not a default-deny posture baked into the hub.
func (a *Allowlist) Allowed(p Profile) bool {
	if len(a.orgs) == 0 && len(a.users) == 0 && len(a.teams) == 0 {
		return true
	}
	if _, ok := a.users[p.UserID]; ok {
		return true
	}
	if _, ok := a.orgs[p.Org]; ok {
		return true
	}
	if _, ok := a.teams[p.Team]; ok {
		return true
	}
	return false
}
