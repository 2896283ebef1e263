package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/clinicdesk/clinicdesk/internal/platform/httpx"
	"github.com/clinicdesk/clinicdesk/internal/shared"
)

// Middleware wires role checks for HTTP handlers. Roles come from the
// AuthorizationContext placed in the request by the token verifier.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny ensures the current user holds at least one of the roles.
// admin always passes.
func (m Middleware) RequireAny(roles ...string) func(http.Handler) http.Handler {
	normalized := normalizeRoles(append(roles, shared.RoleAdmin))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, ok := shared.AuthorizationFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
				return
			}
			if authCtx.HasAnyRole(normalized...) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Warn("rbac denied",
					slog.String("user_id", authCtx.UserID),
					slog.String("path", r.URL.Path),
					slog.Any("required", normalized),
				)
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
		})
	}
}

func normalizeRoles(roles []string) []string {
	unique := make(map[string]struct{}, len(roles))
	normalized := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.TrimSpace(strings.ToLower(role))
		if role == "" {
			continue
		}
		if _, dup := unique[role]; dup {
			continue
		}
		unique[role] = struct{}{}
		normalized = append(normalized, role)
	}
	return normalized
}
