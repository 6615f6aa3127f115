package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"estatehub.org/internal/community"
	"estatehub.org/internal/ids"
	"estatehub.org/internal/store"
)

func (s *Store) FindAccountByEmail(ctx context.Context, email string) (community.IdentityAccount, error) {
	if s.db == nil {
		return community.IdentityAccount{}, store.ErrUnavailable
	}
	var acct community.IdentityAccount
	err := s.db.QueryRowContext(ctx, `
		select id, email, password_hash, must_change_password, created_at
		from auth_accounts
		where email = $1
	`, store.NormalizeEmail(email)).Scan(&acct.ID, &acct.Email, &acct.PasswordHash, &acct.MustChangePassword, &acct.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return community.IdentityAccount{}, store.ErrNotFound
	}
	if err != nil {
		return community.IdentityAccount{}, err
	}
	return acct, nil
}

func (s *Store) CreateAccount(ctx context.Context, acct community.IdentityAccount) (community.IdentityAccount, error) {
	if s.db == nil {
		return community.IdentityAccount{}, store.ErrUnavailable
	}
	if acct.ID == "" {
		acct.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into auth_accounts (id, email, password_hash, must_change_password)
		values ($1, $2, $3, $4)
		returning id, email, must_change_password, created_at
	`, acct.ID, store.NormalizeEmail(acct.Email), acct.PasswordHash, acct.MustChangePassword)
	var out community.IdentityAccount
	if err := row.Scan(&out.ID, &out.Email, &out.MustChangePassword, &out.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return community.IdentityAccount{}, fmt.Errorf("%w: account %s exists", store.ErrConflict, store.NormalizeEmail(acct.Email))
		}
		return community.IdentityAccount{}, err
	}
	out.PasswordHash = acct.PasswordHash
	return out, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	if s.db == nil {
		return store.ErrUnavailable
	}
	res, err := s.db.ExecContext(ctx, `delete from auth_accounts where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AdminEmailExists(ctx context.Context, email string) (bool, error) {
	if s.db == nil {
		return false, store.ErrUnavailable
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, `select exists(select 1 from admin_users where email = $1)`,
		store.NormalizeEmail(email)).Scan(&exists)
	return exists, err
}

func (s *Store) CreateAdmin(ctx context.Context, admin community.AdminUser) (community.AdminUser, error) {
	if s.db == nil {
		return community.AdminUser{}, store.ErrUnavailable
	}
	if admin.ID == "" {
		admin.ID = ids.New()
	}
	if admin.Status == "" {
		admin.Status = community.AdminStatusActive
	}
	var (
		out          community.AdminUser
		role         string
		phone, actor sql.NullString
	)
	row := s.db.QueryRowContext(ctx, `
		insert into admin_users (id, user_id, tenant_id, role, status, email, first_name, last_name, phone, created_by)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		returning id, user_id, tenant_id, role, status, email, first_name, last_name, phone, created_by, created_at, updated_at
	`, admin.ID, admin.UserID, admin.TenantID, string(admin.Role), admin.Status,
		store.NormalizeEmail(admin.Email), admin.FirstName, admin.LastName,
		nullIfEmpty(admin.Phone), nullIfEmpty(admin.CreatedBy))
	if err := row.Scan(&out.ID, &out.UserID, &out.TenantID, &role, &out.Status, &out.Email,
		&out.FirstName, &out.LastName, &phone, &actor, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return community.AdminUser{}, fmt.Errorf("%w: admin %s exists", store.ErrConflict, admin.Email)
			case pgErrForeignKeyViolation:
				return community.AdminUser{}, store.ErrNotFound
			}
		}
		return community.AdminUser{}, err
	}
	out.Role = community.Role(role)
	out.Phone = phone.String
	out.CreatedBy = actor.String
	return out, nil
}
