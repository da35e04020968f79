package api

import (
	"context"
	"net/http"
	"strings"

	"coursecast/internal/identity"
)

type contextKey string

const (
	principalContextKey contextKey = "authenticatedPrincipal"

	// RoleAdmin is the role grant required by the administrative endpoints.
	RoleAdmin = "admin"
)

// ContextWithPrincipal stores the authenticated principal in the provided
// context.
func ContextWithPrincipal(ctx context.Context, principal identity.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromContext retrieves the authenticated principal from context if
// present.
func PrincipalFromContext(ctx context.Context) (identity.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(identity.Principal)
	return principal, ok
}

// ExtractBearer returns the credential from the Authorization header, or ""
// when the header is absent or not a bearer scheme.
func ExtractBearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
