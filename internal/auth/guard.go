package auth

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"estatehub.org/internal/community"
)

const bearerPrefix = "bearer "

// Guard resolves bearer credentials and enforces role and tenant policy.
// It must run before any data access.
type Guard struct {
	tokens *Tokens
}

// NewGuard returns a guard verifying credentials with tokens.
func NewGuard(tokens *Tokens) *Guard {
	return &Guard{tokens: tokens}
}

// Authenticate resolves the Authorization header value into a principal.
func (g *Guard) Authenticate(header string) (Principal, error) {
	token, err := ExtractBearerToken(header)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %s", ErrUnauthorized, err.Error())
	}
	if g == nil || g.tokens == nil {
		return Principal{}, fmt.Errorf("%w: %s", ErrUnauthorized, errMissingSecret.Error())
	}
	p, err := g.tokens.Parse(token)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %s", ErrUnauthorized, err.Error())
	}
	return p, nil
}

// Authorize fails with ErrForbidden unless the principal holds one of the allowed roles.
func (g *Guard) Authorize(p Principal, allowed ...community.Role) error {
	if strings.TrimSpace(p.UserID) == "" {
		return ErrUnauthorized
	}
	if !lo.Contains(allowed, p.Role) {
		return fmt.Errorf("%w: role %s may not perform this operation", ErrForbidden, p.Role)
	}
	return nil
}

// AuthorizeTenant fails with ErrForbidden when the principal targets a tenant other than its own.
// Platform callers may target any tenant.
func (g *Guard) AuthorizeTenant(p Principal, tenantID string) error {
	if p.IsPlatform() {
		return nil
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" || tenantID != p.TenantID {
		return fmt.Errorf("%w: tenant %q is outside the caller's tenant", ErrForbidden, tenantID)
	}
	return nil
}

// ExtractBearerToken returns the token from an "Authorization: Bearer <token>" value.
func ExtractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", fmt.Errorf("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), bearerPrefix) {
		return "", fmt.Errorf("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", fmt.Errorf("missing bearer token")
	}
	return token, nil
}
