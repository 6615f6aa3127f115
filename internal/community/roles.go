package community

import "strings"

// Role is the caller's platform role carried in the bearer credential.
type Role string

const (
	RoleSuperadmin   Role = "superadmin"
	RoleAdminHead    Role = "admin_head"
	RoleAdminOfficer Role = "admin_officer"
	RoleResident     Role = "resident"
	RoleSecurity     Role = "security"
)

// ParseRole normalises s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleSuperadmin, RoleAdminHead, RoleAdminOfficer, RoleResident, RoleSecurity:
		return r, true
	}
	return "", false
}

// IsAdminRole reports whether r may be stored on an admin user record.
func IsAdminRole(r Role) bool {
	return r == RoleAdminHead || r == RoleAdminOfficer
}

// Scope is the tenant filter applied to every read and write.
// A zero Scope matches nothing; only platform callers get All.
type Scope struct {
	TenantID string
	All      bool
}

// TenantScope restricts access to a single tenant.
func TenantScope(tenantID string) Scope {
	return Scope{TenantID: strings.TrimSpace(tenantID)}
}

// PlatformScope grants cross-tenant access.
func PlatformScope() Scope {
	return Scope{All: true}
}

// Allows reports whether a record owned by tenantID is visible in the scope.
func (s Scope) Allows(tenantID string) bool {
	if s.All {
		return true
	}
	return s.TenantID != "" && s.TenantID == tenantID
}
