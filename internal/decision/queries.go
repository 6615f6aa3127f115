package decision

import (
	"context"
	"fmt"
	"strings"

	"estatehub.org/internal/auth"
	"estatehub.org/internal/community"
	"estatehub.org/internal/stickercode"
	"estatehub.org/internal/store"
	"estatehub.org/internal/workflow"
)

var (
	readers  = []community.Role{community.RoleSuperadmin, community.RoleAdminHead, community.RoleAdminOfficer, community.RoleSecurity}
	auditors = []community.Role{community.RoleSuperadmin, community.RoleAdminHead, community.RoleAdminOfficer}
)

// Sticker returns one sticker visible to caller.
func (s *Service) Sticker(ctx context.Context, caller auth.Principal, id string) (community.Sticker, error) {
	if err := s.guard.Authorize(caller, readers...); err != nil {
		return community.Sticker{}, err
	}
	st, err := s.store.GetSticker(ctx, caller.Scope(), strings.TrimSpace(id))
	if err != nil {
		return community.Sticker{}, notFound(err, "sticker", id)
	}
	return st, nil
}

// Permit returns one permit visible to caller.
func (s *Service) Permit(ctx context.Context, caller auth.Principal, id string) (community.Permit, error) {
	if err := s.guard.Authorize(caller, auditors...); err != nil {
		return community.Permit{}, err
	}
	p, err := s.store.GetPermit(ctx, caller.Scope(), strings.TrimSpace(id))
	if err != nil {
		return community.Permit{}, notFound(err, "permit", id)
	}
	return p, nil
}

// Verification is the outcome of checking a scanned sticker code.
type Verification struct {
	Payload stickercode.Payload
	Sticker community.Sticker
	// Valid is set when the sticker is active, unexpired and carries this exact code.
	Valid bool
}

// VerifyStickerCode checks a code's signature and compares it with the stored sticker.
func (s *Service) VerifyStickerCode(ctx context.Context, caller auth.Principal, code string) (Verification, error) {
	if err := s.guard.Authorize(caller, readers...); err != nil {
		return Verification{}, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return Verification{}, fmt.Errorf("%w: rfid_code is required", workflow.ErrValidation)
	}
	if s.codes == nil {
		return Verification{}, fmt.Errorf("%w: sticker codes are not configured", workflow.ErrValidation)
	}
	payload, err := s.codes.Verify(code)
	if err != nil {
		return Verification{}, fmt.Errorf("%w: %v", workflow.ErrValidation, err)
	}
	if err := s.guard.AuthorizeTenant(caller, payload.TenantID); err != nil {
		return Verification{}, err
	}
	st, err := s.store.GetSticker(ctx, caller.Scope(), payload.StickerID)
	if err != nil {
		return Verification{}, notFound(err, "sticker", payload.StickerID)
	}
	valid := st.RFIDCode != nil && *st.RFIDCode == code &&
		(st.Status == community.StickerActive || st.Status == community.StickerExpiring) &&
		s.now().Before(payload.Expiry.AddDate(0, 0, 1))
	return Verification{Payload: payload, Sticker: st, Valid: valid}, nil
}

// AuditTrail lists audit entries visible to caller.
func (s *Service) AuditTrail(ctx context.Context, caller auth.Principal, filter store.AuditFilter) ([]community.AuditEntry, error) {
	if err := s.guard.Authorize(caller, auditors...); err != nil {
		return nil, err
	}
	return s.store.ListAudit(ctx, caller.Scope(), filter)
}
