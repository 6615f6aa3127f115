// Package provision creates tenant administrators together with their login
// identity. The two writes form one logical unit: when the admin record
// cannot be stored the identity account is deleted again.
package provision

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"estatehub.org/internal/audit"
	"estatehub.org/internal/auth"
	"estatehub.org/internal/community"
	"estatehub.org/internal/notify"
	"estatehub.org/internal/obs"
	"estatehub.org/internal/store"
	"estatehub.org/internal/workflow"
)

// ErrDuplicateEmail means an identity or admin with the email already exists.
var ErrDuplicateEmail = errors.New("duplicate email")

const (
	maxNameLength  = 100
	maxPhoneLength = 32
)

// Store is the part of the gateway provisioning writes to.
type Store interface {
	store.TenantStore
	store.IdentityStore
	store.AdminStore
}

// Request is the caller-provided admin profile.
type Request struct {
	TenantID  string
	Email     string
	FirstName string
	LastName  string
	Role      string
	Phone     string
}

// Result describes the created admin. The temporary password is never part of it.
type Result struct {
	Admin                community.AdminUser
	MustChangePassword   bool
	CredentialDispatched bool
}

type Service struct {
	guard      *auth.Guard
	store      Store
	dispatcher notify.Dispatcher
	recorder   *audit.Recorder
	now        func() time.Time
	password   func() (string, error)
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPasswordGenerator overrides temporary password generation.
func WithPasswordGenerator(gen func() (string, error)) Option {
	return func(s *Service) {
		if gen != nil {
			s.password = gen
		}
	}
}

func NewService(guard *auth.Guard, st Store, dispatcher notify.Dispatcher, recorder *audit.Recorder, opts ...Option) *Service {
	if dispatcher == nil {
		dispatcher = notify.Disabled{}
	}
	if recorder == nil {
		recorder = audit.NewRecorder(nil)
	}
	s := &Service{
		guard:      guard,
		store:      st,
		dispatcher: dispatcher,
		recorder:   recorder,
		now:        time.Now,
		password:   auth.GenerateTemporaryPassword,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateAdmin provisions an admin account on behalf of caller.
func (s *Service) CreateAdmin(ctx context.Context, caller auth.Principal, req Request) (Result, error) {
	if err := s.guard.Authorize(caller, community.RoleSuperadmin, community.RoleAdminHead); err != nil {
		return Result{}, err
	}
	role, ok := community.ParseRole(req.Role)
	if !ok || !community.IsAdminRole(role) {
		return Result{}, fmt.Errorf("%w: role must be admin_head or admin_officer", workflow.ErrValidation)
	}
	tenantID := strings.TrimSpace(req.TenantID)
	if caller.Role == community.RoleAdminHead {
		if role == community.RoleAdminHead {
			return Result{}, fmt.Errorf("%w: admin_head may only create admin_officer accounts", auth.ErrForbidden)
		}
		if err := s.guard.AuthorizeTenant(caller, tenantID); err != nil {
			return Result{}, err
		}
	}
	profile, err := validate(req, tenantID, role)
	if err != nil {
		return Result{}, err
	}

	if _, err := s.store.GetTenant(ctx, tenantID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: tenant %s", store.ErrNotFound, tenantID)
		}
		return Result{}, err
	}
	if err := s.ensureEmailFree(ctx, profile.Email); err != nil {
		return Result{}, err
	}

	temp, err := s.password()
	if err != nil {
		return Result{}, fmt.Errorf("generate temporary password: %w", err)
	}
	hash, err := auth.HashPassword(temp)
	if err != nil {
		return Result{}, fmt.Errorf("hash temporary password: %w", err)
	}

	acct, err := s.store.CreateAccount(ctx, community.IdentityAccount{
		Email:              profile.Email,
		PasswordHash:       hash,
		MustChangePassword: true,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return Result{}, fmt.Errorf("%w: %s", ErrDuplicateEmail, profile.Email)
		}
		return Result{}, fmt.Errorf("create identity account: %w", err)
	}

	profile.UserID = acct.ID
	profile.CreatedBy = caller.UserID
	admin, err := s.store.CreateAdmin(ctx, profile)
	if err != nil {
		s.rollback(ctx, acct, err)
		if errors.Is(err, store.ErrConflict) {
			return Result{}, fmt.Errorf("%w: %s", ErrDuplicateEmail, profile.Email)
		}
		return Result{}, fmt.Errorf("create admin record: %w", err)
	}

	dispatched := s.dispatch(ctx, notify.Credential{
		AccountID:         acct.ID,
		Email:             admin.Email,
		TenantID:          admin.TenantID,
		Role:              string(admin.Role),
		TemporaryPassword: temp,
		IssuedAt:          s.now().UTC(),
	})

	s.recorder.Record(ctx, community.AuditEntry{
		TenantID:     admin.TenantID,
		ActorID:      caller.UserID,
		ActorRole:    caller.Role,
		Action:       "admin.create",
		ResourceType: "admin_user",
		ResourceID:   admin.ID,
		After: map[string]any{
			"user_id":               admin.UserID,
			"email":                 admin.Email,
			"role":                  string(admin.Role),
			"status":                admin.Status,
			"credential_dispatched": dispatched,
		},
	})

	return Result{Admin: admin, MustChangePassword: acct.MustChangePassword, CredentialDispatched: dispatched}, nil
}

func (s *Service) ensureEmailFree(ctx context.Context, email string) error {
	_, err := s.store.FindAccountByEmail(ctx, email)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrDuplicateEmail, email)
	case !errors.Is(err, store.ErrNotFound):
		return err
	}
	exists, err := s.store.AdminEmailExists(ctx, email)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEmail, email)
	}
	return nil
}

// rollback deletes the identity account created for a failed admin insert.
// A failed delete leaves an orphan that needs manual reconciliation.
func (s *Service) rollback(ctx context.Context, acct community.IdentityAccount, cause error) {
	err := s.store.DeleteAccount(context.WithoutCancel(ctx), acct.ID)
	if err == nil {
		obs.ProvisionRollbacks.WithLabelValues("succeeded").Inc()
		obs.Logger().Warn("admin provisioning rolled back",
			zap.String("account_id", acct.ID),
			zap.String("request_id", audit.RequestIDFromContext(ctx)),
			zap.NamedError("cause", cause),
		)
		return
	}
	obs.ProvisionRollbacks.WithLabelValues("failed").Inc()
	obs.Logger().Error("admin provisioning rollback failed",
		zap.Bool("reconciliation_required", true),
		zap.String("account_id", acct.ID),
		zap.String("email", acct.Email),
		zap.String("request_id", audit.RequestIDFromContext(ctx)),
		zap.NamedError("cause", cause),
		zap.Error(err),
	)
}

func (s *Service) dispatch(ctx context.Context, c notify.Credential) bool {
	if err := s.dispatcher.Dispatch(ctx, c); err != nil {
		obs.CredentialsDispatched.WithLabelValues("enqueue_failed").Inc()
		obs.Logger().Warn("temporary credential not dispatched",
			zap.String("account_id", c.AccountID),
			zap.String("request_id", audit.RequestIDFromContext(ctx)),
			zap.Error(err),
		)
		return false
	}
	obs.CredentialsDispatched.WithLabelValues("queued").Inc()
	return true
}

func validate(req Request, tenantID string, role community.Role) (community.AdminUser, error) {
	if tenantID == "" {
		return community.AdminUser{}, fmt.Errorf("%w: tenant_id is required", workflow.ErrValidation)
	}
	email := store.NormalizeEmail(req.Email)
	addr, err := mail.ParseAddress(email)
	if email == "" || err != nil || addr.Address != email {
		return community.AdminUser{}, fmt.Errorf("%w: email is invalid", workflow.ErrValidation)
	}
	first, err := requiredText("first_name", req.FirstName, maxNameLength)
	if err != nil {
		return community.AdminUser{}, err
	}
	last, err := requiredText("last_name", req.LastName, maxNameLength)
	if err != nil {
		return community.AdminUser{}, err
	}
	phone := strings.TrimSpace(req.Phone)
	if utf8.RuneCountInString(phone) > maxPhoneLength {
		return community.AdminUser{}, fmt.Errorf("%w: phone is too long", workflow.ErrValidation)
	}
	return community.AdminUser{
		TenantID:  tenantID,
		Role:      role,
		Status:    community.AdminStatusActive,
		Email:     email,
		FirstName: first,
		LastName:  last,
		Phone:     phone,
	}, nil
}

func requiredText(field, v string, max int) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", workflow.ErrValidation, field)
	}
	if utf8.RuneCountInString(v) > max {
		return "", fmt.Errorf("%w: %s must be at most %d characters", workflow.ErrValidation, field, max)
	}
	return v, nil
}
