// Package memory is an in-process store.Store used in dev mode and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"estatehub.org/internal/community"
	"estatehub.org/internal/ids"
	"estatehub.org/internal/store"
	"estatehub.org/internal/workflow"
)

type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	tenants  map[string]community.Tenant
	stickers map[string]community.Sticker
	permits  map[string]community.Permit
	accounts map[string]community.IdentityAccount
	admins   map[string]community.AdminUser
	audit    []community.AuditEntry
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		now:      time.Now,
		tenants:  make(map[string]community.Tenant),
		stickers: make(map[string]community.Sticker),
		permits:  make(map[string]community.Permit),
		accounts: make(map[string]community.IdentityAccount),
		admins:   make(map[string]community.AdminUser),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

// PutTenant inserts or replaces a tenant.
func (s *Store) PutTenant(t community.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	s.tenants[t.ID] = t
}

// PutSticker inserts or replaces a sticker.
func (s *Store) PutSticker(st community.Sticker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = s.now().UTC()
		st.UpdatedAt = st.CreatedAt
	}
	s.stickers[st.ID] = st
}

// PutPermit inserts or replaces a permit.
func (s *Store) PutPermit(p community.Permit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
		p.UpdatedAt = p.CreatedAt
	}
	s.permits[p.ID] = p
}

func (s *Store) GetTenant(_ context.Context, id string) (community.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return community.Tenant{}, store.ErrNotFound
	}
	return t, nil
}

func (s *Store) GetSticker(_ context.Context, scope community.Scope, id string) (community.Sticker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stickers[id]
	if !ok || !scope.Allows(st.TenantID) {
		return community.Sticker{}, store.ErrNotFound
	}
	return st, nil
}

func (s *Store) ApplyStickerChange(_ context.Context, scope community.Scope, id string, change workflow.StickerChange) (community.Sticker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stickers[id]
	if !ok || !scope.Allows(st.TenantID) {
		return community.Sticker{}, store.ErrNotFound
	}
	if !lo.Contains(change.From, st.Status) {
		return community.Sticker{}, workflow.Stale("sticker", string(change.Action), string(st.Status))
	}
	st = change.Apply(st, s.now())
	s.stickers[id] = st
	return st, nil
}

func (s *Store) GetPermit(_ context.Context, scope community.Scope, id string) (community.Permit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.permits[id]
	if !ok || !scope.Allows(p.TenantID) {
		return community.Permit{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) ApplyPermitChange(_ context.Context, scope community.Scope, id string, change workflow.PermitChange) (community.Permit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.permits[id]
	if !ok || !scope.Allows(p.TenantID) {
		return community.Permit{}, store.ErrNotFound
	}
	if !lo.Contains(change.From, p.Status) || (change.ExpectFeeUnpaid && p.RoadFeePaid) {
		return community.Permit{}, workflow.Stale("permit", string(change.Action), string(p.Status))
	}
	p = change.Apply(p, s.now())
	s.permits[id] = p
	return p, nil
}

func (s *Store) FindAccountByEmail(_ context.Context, email string) (community.IdentityAccount, error) {
	email = store.NormalizeEmail(email)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return community.IdentityAccount{}, store.ErrNotFound
}

func (s *Store) CreateAccount(_ context.Context, acct community.IdentityAccount) (community.IdentityAccount, error) {
	acct.Email = store.NormalizeEmail(acct.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == acct.Email {
			return community.IdentityAccount{}, fmt.Errorf("%w: account %s exists", store.ErrConflict, acct.Email)
		}
	}
	if acct.ID == "" {
		acct.ID = ids.New()
	}
	acct.CreatedAt = s.now().UTC()
	s.accounts[acct.ID] = acct
	return acct, nil
}

func (s *Store) DeleteAccount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.accounts, id)
	return nil
}

func (s *Store) AdminEmailExists(_ context.Context, email string) (bool, error) {
	email = store.NormalizeEmail(email)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, found := lo.FindKeyBy(s.admins, func(_ string, a community.AdminUser) bool { return a.Email == email })
	return found, nil
}

func (s *Store) CreateAdmin(_ context.Context, admin community.AdminUser) (community.AdminUser, error) {
	admin.Email = store.NormalizeEmail(admin.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[admin.TenantID]; !ok {
		return community.AdminUser{}, store.ErrNotFound
	}
	for _, a := range s.admins {
		if a.Email == admin.Email || a.UserID == admin.UserID {
			return community.AdminUser{}, fmt.Errorf("%w: admin %s exists", store.ErrConflict, admin.Email)
		}
	}
	if admin.ID == "" {
		admin.ID = ids.New()
	}
	if admin.Status == "" {
		admin.Status = community.AdminStatusActive
	}
	admin.CreatedAt = s.now().UTC()
	admin.UpdatedAt = admin.CreatedAt
	s.admins[admin.ID] = admin
	return admin, nil
}

// Admins returns every admin record, for tests and the dev seed.
func (s *Store) Admins() []community.AdminUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Values(s.admins)
}

// Accounts returns every identity account.
func (s *Store) Accounts() []community.IdentityAccount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Values(s.accounts)
}

func (s *Store) AppendAudit(_ context.Context, entry community.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = s.now().UTC()
	}
	s.audit = append(s.audit, entry)
	return nil
}

func (s *Store) ListAudit(_ context.Context, scope community.Scope, filter store.AuditFilter) ([]community.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := lo.Filter(s.audit, func(e community.AuditEntry, _ int) bool {
		if !scope.Allows(e.TenantID) {
			return false
		}
		if filter.ResourceType != "" && e.ResourceType != filter.ResourceType {
			return false
		}
		return filter.ResourceID == "" || e.ResourceID == filter.ResourceID
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if n := filter.PageSize(); len(out) > n {
		out = out[:n]
	}
	return out, nil
}
