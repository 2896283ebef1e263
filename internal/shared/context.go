package shared

import (
	"context"
	"strings"
)

// Roles recognised by the clinic. They arrive as claims from the identity provider.
const (
	RoleAdmin      = "admin"
	RolePharmacist = "pharmacist"
	RoleCashier    = "cashier"
	RoleDoctor     = "doctor"
)

// AuthorizationContext describes the acting user as asserted by the identity provider.
// It is built once per request and passed down instead of re-deriving roles per endpoint.
type AuthorizationContext struct {
	UserID string
	Name   string
	Roles  []string
}

// HasAnyRole reports whether at least one of roles is granted. Comparison is case-insensitive.
func (a AuthorizationContext) HasAnyRole(roles ...string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, granted := range a.Roles {
		for _, want := range roles {
			if strings.EqualFold(strings.TrimSpace(granted), want) {
				return true
			}
		}
	}
	return false
}

// Actor returns the opaque identity recorded on documents the user writes.
func (a AuthorizationContext) Actor() string {
	if a.UserID == "" {
		return "anonymous"
	}
	return a.UserID
}

type authContextKey struct{}

// ContextWithAuthorization stores the authorization context.
func ContextWithAuthorization(ctx context.Context, auth AuthorizationContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// AuthorizationFromContext extracts the authorization context.
func AuthorizationFromContext(ctx context.Context) (AuthorizationContext, bool) {
	auth, ok := ctx.Value(authContextKey{}).(AuthorizationContext)
	return auth, ok
}
