package httpapi

import (
	"net/http"

	"github.com/samber/lo"

	"estatehub.org/internal/auth"
	"estatehub.org/internal/community"
)

var publicPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
}

// withAuth resolves the bearer credential once per request. Handlers read the
// principal from the context; role and tenant checks stay in the services.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || lo.Contains(publicPaths, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if a.guard == nil {
			unauthorized(w, r, "authentication is not configured")
			return
		}
		header := r.Header.Get("Authorization")
		principal, err := a.guard.Authenticate(header)
		if err != nil {
			unauthorized(w, r, "invalid or missing bearer token")
			return
		}
		token, _ := auth.ExtractBearerToken(header)
		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects requests whose principal holds none of roles.
func RequireRole(roles ...community.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok || principal.UserID == "" {
				unauthorized(w, r, "authentication required")
				return
			}
			if !lo.Contains(roles, principal.Role) {
				w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
				writeError(w, r, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="estatehub"`)
	writeError(w, r, http.StatusUnauthorized, msg)
}

// principal returns the caller resolved by withAuth.
func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}
