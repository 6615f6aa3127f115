// Package store defines the persistence gateway used by the decision and
// provisioning services. Every read and conditional write takes the caller's
// tenant scope.
package store

import (
	"context"
	"errors"
	"strings"

	"estatehub.org/internal/community"
	"estatehub.org/internal/workflow"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrUnavailable is returned when the backing database is not configured.
	ErrUnavailable = errors.New("database connection unavailable")
)

// StickerStore reads stickers and applies validated sticker changes.
type StickerStore interface {
	GetSticker(ctx context.Context, scope community.Scope, id string) (community.Sticker, error)
	// ApplyStickerChange writes change only if the stored status is still one
	// of change.From. When the guard fails it returns a stale
	// *workflow.TransitionError carrying the status found.
	ApplyStickerChange(ctx context.Context, scope community.Scope, id string, change workflow.StickerChange) (community.Sticker, error)
}

// PermitStore reads permits and applies validated permit changes.
type PermitStore interface {
	GetPermit(ctx context.Context, scope community.Scope, id string) (community.Permit, error)
	ApplyPermitChange(ctx context.Context, scope community.Scope, id string, change workflow.PermitChange) (community.Permit, error)
}

type TenantStore interface {
	GetTenant(ctx context.Context, id string) (community.Tenant, error)
}

// IdentityStore manages login identities backing admin records.
type IdentityStore interface {
	FindAccountByEmail(ctx context.Context, email string) (community.IdentityAccount, error)
	CreateAccount(ctx context.Context, acct community.IdentityAccount) (community.IdentityAccount, error)
	DeleteAccount(ctx context.Context, id string) error
}

type AdminStore interface {
	AdminEmailExists(ctx context.Context, email string) (bool, error)
	CreateAdmin(ctx context.Context, admin community.AdminUser) (community.AdminUser, error)
}

// AuditFilter narrows ListAudit. Empty fields match everything.
type AuditFilter struct {
	ResourceType string
	ResourceID   string
	Limit        int
}

type AuditStore interface {
	AppendAudit(ctx context.Context, entry community.AuditEntry) error
	ListAudit(ctx context.Context, scope community.Scope, filter AuditFilter) ([]community.AuditEntry, error)
}

// Store is the full gateway implemented by the postgres and memory backends.
type Store interface {
	StickerStore
	PermitStore
	TenantStore
	IdentityStore
	AdminStore
	AuditStore
	Ping(ctx context.Context) error
}

// NormalizeEmail is the canonical form used for uniqueness checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PageSize clamps the requested page size.
func (f AuditFilter) PageSize() int {
	if f.Limit <= 0 || f.Limit > 500 {
		return 100
	}
	return f.Limit
}
