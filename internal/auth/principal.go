package auth

import "estatehub.org/internal/community"

// Principal is the resolved caller identity: who, with which role, in which tenant.
type Principal struct {
	UserID   string
	Role     community.Role
	TenantID string
}

// IsPlatform reports whether the caller acts above tenant boundaries.
func (p Principal) IsPlatform() bool {
	return p.Role == community.RoleSuperadmin
}

// Scope returns the tenant filter every data access of this caller must use.
func (p Principal) Scope() community.Scope {
	if p.IsPlatform() {
		return community.PlatformScope()
	}
	return community.TenantScope(p.TenantID)
}
