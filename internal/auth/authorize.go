package auth

import "sort"

// Principal represents a user with the resolved closure of their permissions.
type Principal struct {
	User        User
	Permissions map[string]struct{}
}

// NewPrincipal resolves the permission closure of user's direct entitlements.
func NewPrincipal(user User) Principal {
	return Principal{User: user, Permissions: PermissionSet(user.Entitlements)}
}

// HasPermission reports whether the principal can execute the action identified by key.
func (p Principal) HasPermission(key string) bool {
	_, ok := p.Permissions[key]
	return ok
}

// PermissionIDs returns the closure sorted by id.
func (p Principal) PermissionIDs() []string {
	out := make([]string, 0, len(p.Permissions))
	for k := range p.Permissions {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
