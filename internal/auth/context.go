package auth

import (
	"context"
	"strings"
)

type ctxKey int

const (
	principalKey ctxKey = iota
	bearerKey
)

// ContextWithPrincipal stores the caller resolved by the Guard.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the stored caller. A principal without a user
// id is treated as absent.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok && p.UserID != ""
}

// ContextWithToken keeps the raw bearer so outbound calls can forward it.
// Blank tokens leave ctx unchanged.
func ContextWithToken(ctx context.Context, token string) context.Context {
	token = strings.TrimSpace(token)
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, bearerKey, token)
}

func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	token, _ := ctx.Value(bearerKey).(string)
	return token, token != ""
}
